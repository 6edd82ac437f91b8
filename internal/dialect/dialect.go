// Package dialect holds the single literal-escaping policy of each supported
// database product, shared by relation template resolution and insert
// statement generation.
package dialect

import (
	"encoding/hex"
	"fmt"
	"strconv"

	"partialdump/internal/domain"
)

// Dialect renders literals and identifiers for one database product.
type Dialect interface {
	Name() string
	EscapeValue(v any) string
	QuoteIdentifier(name string) string
}

// ForDriver returns the dialect matching a connection driver.
func ForDriver(driver domain.DatabaseDriver) (Dialect, error) {
	switch driver {
	case domain.DatabaseDriverMySQL:
		return MySQL{}, nil
	case domain.DatabaseDriverPostgres:
		return Postgres{}, nil
	case domain.DatabaseDriverSQLite:
		return SQLite{}, nil
	case domain.DatabaseDriverMSSQL:
		return MSSQL{}, nil
	default:
		return nil, fmt.Errorf("unsupported driver: %s", driver)
	}
}

// formatNumber renders Go numeric types. ok is false for anything else.
func formatNumber(v any) (string, bool) {
	switch n := v.(type) {
	case int:
		return strconv.Itoa(n), true
	case int8:
		return strconv.FormatInt(int64(n), 10), true
	case int16:
		return strconv.FormatInt(int64(n), 10), true
	case int32:
		return strconv.FormatInt(int64(n), 10), true
	case int64:
		return strconv.FormatInt(n, 10), true
	case uint:
		return strconv.FormatUint(uint64(n), 10), true
	case uint8:
		return strconv.FormatUint(uint64(n), 10), true
	case uint16:
		return strconv.FormatUint(uint64(n), 10), true
	case uint32:
		return strconv.FormatUint(uint64(n), 10), true
	case uint64:
		return strconv.FormatUint(n, 10), true
	case float32:
		return strconv.FormatFloat(float64(n), 'g', -1, 32), true
	case float64:
		return strconv.FormatFloat(n, 'g', -1, 64), true
	default:
		return "", false
	}
}

func hexString(b []byte) string {
	return hex.EncodeToString(b)
}
