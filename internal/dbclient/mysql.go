package dbclient

import (
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/go-sql-driver/mysql"

	"partialdump/internal/domain"
)

// buildMySQLDSN constructs a MySQL DSN from a DatabaseConnection.
func buildMySQLDSN(conn *domain.DatabaseConnection) (string, error) {
	port := conn.Port
	if port == 0 {
		port = domain.DatabaseDriverMySQL.DefaultPort()
	}
	cfg := mysql.NewConfig()
	cfg.User = conn.User
	cfg.Passwd = conn.Password
	cfg.Net = "tcp"
	cfg.Addr = net.JoinHostPort(conn.Host, strconv.Itoa(port))
	cfg.DBName = conn.Database
	cfg.ParseTime = true
	cfg.Loc = time.UTC
	cfg.Params = map[string]string{"charset": "utf8mb4"}
	switch conn.SSLMode {
	case "", "disable":
	case "require":
		cfg.TLSConfig = "true"
	case "skip-verify", "preferred":
		cfg.TLSConfig = conn.SSLMode
	default:
		return "", fmt.Errorf("mysql: unsupported sslmode %q", conn.SSLMode)
	}
	return cfg.FormatDSN(), nil
}
