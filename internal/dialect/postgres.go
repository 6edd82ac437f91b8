package dialect

import (
	"fmt"
	"time"

	"github.com/lib/pq"

	"partialdump/internal/dump"
)

// Postgres delegates string and identifier quoting to lib/pq.
type Postgres struct{}

func (Postgres) Name() string { return "postgres" }

func (Postgres) EscapeValue(v any) string {
	if s, ok := formatNumber(v); ok {
		return s
	}
	switch val := v.(type) {
	case nil:
		return "NULL"
	case bool:
		if val {
			return "TRUE"
		}
		return "FALSE"
	case string:
		return pq.QuoteLiteral(val)
	case []byte:
		return `'\x` + hexString(val) + `'::bytea`
	case time.Time:
		return pq.QuoteLiteral(val.Format(time.RFC3339Nano))
	case dump.Point:
		return fmt.Sprintf("point(%g, %g)", val.X, val.Y)
	default:
		return pq.QuoteLiteral(fmt.Sprint(val))
	}
}

func (Postgres) QuoteIdentifier(name string) string {
	return pq.QuoteIdentifier(name)
}
