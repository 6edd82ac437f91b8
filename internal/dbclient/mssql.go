package dbclient

import (
	"fmt"
	"net/url"
	"strconv"

	_ "github.com/microsoft/go-mssqldb"

	"partialdump/internal/domain"
)

// buildMSSQLDSN constructs a "sqlserver://" URL from a DatabaseConnection.
func buildMSSQLDSN(conn *domain.DatabaseConnection) string {
	port := conn.Port
	if port == 0 {
		port = domain.DatabaseDriverMSSQL.DefaultPort()
	}
	q := url.Values{}
	q.Set("database", conn.Database)
	switch conn.SSLMode {
	case "", "disable":
		q.Set("encrypt", "disable")
	case "require":
		q.Set("encrypt", "true")
	default:
		q.Set("encrypt", conn.SSLMode)
	}
	u := &url.URL{
		Scheme:   "sqlserver",
		User:     url.UserPassword(conn.User, conn.Password),
		Host:     fmt.Sprintf("%s:%s", conn.Host, strconv.Itoa(port)),
		RawQuery: q.Encode(),
	}
	return u.String()
}
