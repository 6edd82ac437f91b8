package dialect

import (
	"fmt"
	"strings"
	"time"

	"partialdump/internal/dump"
)

// MSSQL uses N'' unicode literals and [bracketed] identifiers.
type MSSQL struct{}

func (MSSQL) Name() string { return "mssql" }

func (MSSQL) EscapeValue(v any) string {
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
		return "N" + quoteSingle(val)
	case []byte:
		return "0x" + hexString(val)
	case time.Time:
		return quoteSingle(val.Format("2006-01-02T15:04:05.9999999"))
	case dump.Point:
		return fmt.Sprintf("geometry::Point(%g, %g, 0)", val.X, val.Y)
	default:
		return "N" + quoteSingle(fmt.Sprint(val))
	}
}

func (MSSQL) QuoteIdentifier(name string) string {
	return "[" + strings.ReplaceAll(name, "]", "]]") + "]"
}
