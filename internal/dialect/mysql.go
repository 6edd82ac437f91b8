package dialect

import (
	"fmt"
	"strings"
	"time"

	"partialdump/internal/dump"
)

// MySQL escapes like the mysql client library: backslash escapes inside
// single quotes, TRUE/FALSE booleans, X'..' binary literals.
type MySQL struct{}

func (MySQL) Name() string { return "mysql" }

func (MySQL) EscapeValue(v any) string {
	if s, ok := formatNumber(v); ok {
		return s
	}
	switch val := v.(type) {
	case nil:
		return "NULL"
	case bool:
		if val {
			return "true"
		}
		return "false"
	case string:
		return "'" + mysqlEscapeString(val) + "'"
	case []byte:
		return "X'" + hexString(val) + "'"
	case time.Time:
		return "'" + val.Format("2006-01-02 15:04:05.999999") + "'"
	case dump.Point:
		return fmt.Sprintf("ST_GeomFromText('POINT(%g %g)')", val.X, val.Y)
	default:
		return "'" + mysqlEscapeString(fmt.Sprint(val)) + "'"
	}
}

func (MySQL) QuoteIdentifier(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}

var mysqlReplacer = strings.NewReplacer(
	"\x00", `\0`,
	"\b", `\b`,
	"\t", `\t`,
	"\n", `\n`,
	"\r", `\r`,
	"\x1a", `\Z`,
	`"`, `\"`,
	`'`, `\'`,
	`\`, `\\`,
)

func mysqlEscapeString(s string) string {
	return mysqlReplacer.Replace(s)
}
