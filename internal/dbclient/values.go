package dbclient

import (
	"database/sql/driver"
	"encoding/binary"
	"encoding/json"
	"math"
	"net/netip"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	mssql "github.com/microsoft/go-mssqldb"

	"partialdump/internal/dump"
)

// ── Value normalisation ────────────────────────────────────
// Driver values are converted to the small set of types the dialects know
// how to escape: nil, bool, integers, floats, string, []byte, time.Time and
// dump.Point.

type normalizer func(v any, dbType string) any

// normalizeValue is the default: text is returned as string, binary column
// types keep their bytes.
func normalizeValue(v any, dbType string) any {
	b, ok := v.([]byte)
	if !ok {
		return v
	}
	if isBinaryType(dbType) {
		return append([]byte(nil), b...)
	}
	return string(b)
}

func normalizeMySQLValue(v any, dbType string) any {
	if b, ok := v.([]byte); ok {
		switch strings.ToUpper(dbType) {
		case "GEOMETRY", "POINT":
			if p, ok := parseMySQLPoint(b); ok {
				return p
			}
			return append([]byte(nil), b...)
		}
	}
	return normalizeValue(v, dbType)
}

func normalizeMSSQLValue(v any, dbType string) any {
	if b, ok := v.([]byte); ok && strings.EqualFold(dbType, "UNIQUEIDENTIFIER") {
		var id mssql.UniqueIdentifier
		if err := id.Scan(b); err == nil {
			return id.String()
		}
	}
	return normalizeValue(v, dbType)
}

// normalizePgxValue converts the decoded values of pgx Rows.Values.
func normalizePgxValue(v any) any {
	switch val := v.(type) {
	case nil:
		return nil
	case [16]byte:
		return uuid.UUID(val).String()
	case pgtype.Point:
		if !val.Valid {
			return nil
		}
		return dump.Point{X: val.P.X, Y: val.P.Y}
	case netip.Prefix:
		if val.Bits() == val.Addr().BitLen() {
			return val.Addr().String()
		}
		return val.String()
	case map[string]any, []any:
		b, err := json.Marshal(val)
		if err != nil {
			return nil
		}
		return string(b)
	case driver.Valuer:
		// pgtype.Numeric, Interval, Time and friends render through their
		// driver.Valuer text form.
		dv, err := val.Value()
		if err != nil {
			return nil
		}
		return normalizePgxValue(dv)
	default:
		return v
	}
}

func isBinaryType(dbType string) bool {
	t := strings.ToUpper(dbType)
	return strings.Contains(t, "BLOB") || strings.Contains(t, "BINARY") ||
		t == "BYTEA" || t == "IMAGE"
}

// parseMySQLPoint decodes MySQL's internal geometry format: a 4-byte SRID
// followed by a WKB point.
func parseMySQLPoint(b []byte) (dump.Point, bool) {
	if len(b) != 25 {
		return dump.Point{}, false
	}
	wkb := b[4:]
	var order binary.ByteOrder = binary.LittleEndian
	if wkb[0] == 0 {
		order = binary.BigEndian
	}
	if order.Uint32(wkb[1:5]) != 1 {
		return dump.Point{}, false
	}
	return dump.Point{
		X: math.Float64frombits(order.Uint64(wkb[5:13])),
		Y: math.Float64frombits(order.Uint64(wkb[13:21])),
	}, true
}
