package dialect

import (
	"fmt"
	"strings"
	"time"

	"partialdump/internal/dump"
)

// SQLite stores booleans as 1/0 and times as ISO-8601 text.
type SQLite struct{}

func (SQLite) Name() string { return "sqlite" }

func (SQLite) EscapeValue(v any) string {
	if s, ok := formatNumber(v); ok {
		return s
	}
	switch val := v.(type) {
	case nil:
		return "NULL"
	case bool:
		if val {
			return "1"
		}
		return "0"
	case string:
		return quoteSingle(val)
	case []byte:
		return "X'" + hexString(val) + "'"
	case time.Time:
		return quoteSingle(val.UTC().Format("2006-01-02T15:04:05.000Z"))
	case dump.Point:
		return quoteSingle(fmt.Sprintf("POINT(%g %g)", val.X, val.Y))
	default:
		return quoteSingle(fmt.Sprint(val))
	}
}

func (SQLite) QuoteIdentifier(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func quoteSingle(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
