package domain

// DatabaseDriver represents the type of database engine.
type DatabaseDriver string

const (
	DatabaseDriverMySQL    DatabaseDriver = "mysql"
	DatabaseDriverPostgres DatabaseDriver = "postgres"
	DatabaseDriverSQLite   DatabaseDriver = "sqlite"
	DatabaseDriverMSSQL    DatabaseDriver = "mssql"
)

// Drivers lists every supported driver, for flag help and validation.
var Drivers = []DatabaseDriver{
	DatabaseDriverMySQL,
	DatabaseDriverPostgres,
	DatabaseDriverSQLite,
	DatabaseDriverMSSQL,
}

// Valid reports whether d is a supported driver.
func (d DatabaseDriver) Valid() bool {
	for _, x := range Drivers {
		if x == d {
			return true
		}
	}
	return false
}

// DefaultPort returns the conventional port of the driver, 0 for sqlite.
func (d DatabaseDriver) DefaultPort() int {
	switch d {
	case DatabaseDriverMySQL:
		return 3306
	case DatabaseDriverPostgres:
		return 5432
	case DatabaseDriverMSSQL:
		return 1433
	default:
		return 0
	}
}

// DatabaseConnection holds the parameters for connecting to the source database.
type DatabaseConnection struct {
	Driver   DatabaseDriver `mapstructure:"driver" json:"driver"`
	Host     string         `mapstructure:"host" json:"host"` // hostname or file path (sqlite)
	Port     int            `mapstructure:"port" json:"port"` // 0: driver default
	Database string         `mapstructure:"database" json:"database"`
	User     string         `mapstructure:"user" json:"user"`
	Password string         `mapstructure:"password" json:"password,omitempty"`
	// PasswordSecret names a password kept outside the config file,
	// "keychain:<key>" or "env:<VAR>". Ignored when Password is set.
	PasswordSecret string `mapstructure:"password_secret" json:"password_secret,omitempty"`
	SSLMode  string         `mapstructure:"sslmode" json:"sslmode,omitempty"`
	// MaxConnections is the pool size and the ceiling of simultaneous queries.
	MaxConnections int `mapstructure:"max_connections" json:"max_connections"`
	// MaxQPS throttles query starts per second; 0 disables throttling.
	MaxQPS float64 `mapstructure:"max_qps" json:"max_qps,omitempty"`
}
