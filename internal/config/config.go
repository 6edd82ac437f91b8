// Package config loads the partialdump configuration from partialdump.yaml,
// PARTIALDUMP_* environment variables and defaults.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"partialdump/internal/domain"
	"partialdump/internal/dump"
	"partialdump/internal/patch"
	"partialdump/internal/secret"
)

const (
	maxWalkDepth = 25
	envPrefix    = "PARTIALDUMP"
)

// Config represents the partialdump configuration.
type Config struct {
	Source domain.DatabaseConnection `mapstructure:"source" json:"source"`

	// Seed queries and relation templates
	Queries        []string `mapstructure:"queries" json:"queries"`
	PreRequisites  []string `mapstructure:"pre_requisites" json:"pre_requisites,omitempty"`
	PostRequisites []string `mapstructure:"post_requisites" json:"post_requisites,omitempty"`
	// Relations is the legacy name of pre-requisites; appended to them.
	Relations   []string `mapstructure:"relations" json:"relations,omitempty"`
	FKRelations bool     `mapstructure:"fk_relations" json:"fk_relations"`

	// Output shaping
	Patches         []patch.Spec `mapstructure:"patches" json:"patches,omitempty"`
	PostDumpQueries []string     `mapstructure:"post_dump_queries" json:"post_dump_queries,omitempty"`
	// SchemaMap holds "source:target" pairs.
	SchemaMap []string `mapstructure:"schema_map" json:"schema_map,omitempty"`
	Output    string   `mapstructure:"output" json:"output"`

	// Tuning
	BatchSize int     `mapstructure:"batch_size" json:"batch_size"`
	MaxQPS    float64 `mapstructure:"max_qps" json:"max_qps"`

	// Operations
	History  string `mapstructure:"history" json:"history,omitempty"`
	Schedule string `mapstructure:"schedule" json:"schedule,omitempty"`
	LogLevel string `mapstructure:"log_level" json:"log_level"`
}

// LoadConfig discovers and loads configuration with proper precedence:
// flags > env > config file > defaults.
//
// Returns the loaded config, the path to the config file (empty if none found),
// and any error encountered. The returned config is not validated.
func LoadConfig(explicitConfigPath string) (*Config, string, error) {
	v := viper.New()

	// 1. Set defaults first (lowest precedence)
	setDefaults(v)

	// 2. Set up environment variable binding
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// 3. Find and load config file
	configPath, err := findConfigFile(explicitConfigPath)
	if err != nil {
		return nil, "", err
	}

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, configPath, fmt.Errorf("reading config file: %w", err)
		}
	}

	// 4. Unmarshal into Config struct
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, configPath, fmt.Errorf("unmarshaling config: %w", err)
	}

	return &cfg, configPath, nil
}

func setDefaults(v *viper.Viper) {
	// Source defaults
	v.SetDefault("source.driver", string(domain.DatabaseDriverMySQL))
	v.SetDefault("source.host", "")
	v.SetDefault("source.port", 0)
	v.SetDefault("source.user", "")
	v.SetDefault("source.password", "")
	v.SetDefault("source.password_secret", "")
	v.SetDefault("source.database", "")
	v.SetDefault("source.sslmode", "")
	v.SetDefault("source.max_connections", 10)

	// Dump defaults
	v.SetDefault("queries", []string{})
	v.SetDefault("fk_relations", false)
	v.SetDefault("output", "-")
	v.SetDefault("batch_size", dump.DefaultBatchSize)
	v.SetDefault("max_qps", 0)

	// Operations defaults
	v.SetDefault("history", "")
	v.SetDefault("schedule", "")
	v.SetDefault("log_level", "warn")
}

// findConfigFile finds the config file to use.
// If explicitPath is provided, it validates the file exists.
// Otherwise, it walks up from cwd looking for partialdump.yaml or partialdump.yml,
// stopping at a .git directory or after maxWalkDepth levels.
func findConfigFile(explicitPath string) (string, error) {
	if explicitPath != "" {
		if _, err := os.Stat(explicitPath); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicitPath)
		}
		return explicitPath, nil
	}

	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("getting cwd: %w", err)
	}

	dir := cwd
	for i := 0; i < maxWalkDepth; i++ {
		for _, name := range []string{"partialdump.yaml", "partialdump.yml"} {
			path := filepath.Join(dir, name)
			if _, err := os.Stat(path); err == nil {
				return path, nil
			}
		}

		if _, err := os.Stat(filepath.Join(dir, ".git")); err == nil {
			break
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return "", nil
}

// Connection returns the source connection with the top-level max_qps applied.
func (c *Config) Connection() domain.DatabaseConnection {
	conn := c.Source
	if conn.MaxQPS == 0 {
		conn.MaxQPS = c.MaxQPS
	}
	return conn
}

// ResolveConnection returns Connection with the password looked up from
// password_secret when no literal password is configured.
func (c *Config) ResolveConnection() (domain.DatabaseConnection, error) {
	conn := c.Connection()
	if conn.Password == "" && conn.PasswordSecret != "" {
		pw, err := secret.Resolve(conn.PasswordSecret)
		if err != nil {
			return conn, fmt.Errorf("source password: %w", err)
		}
		conn.Password = pw
	}
	return conn, nil
}

// AllPreRequisites returns pre_requisites followed by the legacy relations.
func (c *Config) AllPreRequisites() []string {
	out := make([]string, 0, len(c.PreRequisites)+len(c.Relations))
	out = append(out, c.PreRequisites...)
	return append(out, c.Relations...)
}

// ParsedSchemaMap parses the "source:target" pairs of schema_map.
func (c *Config) ParsedSchemaMap() (map[string]string, error) {
	return ParseSchemaMap(c.SchemaMap)
}

// ParseSchemaMap parses "source:target" pairs. An empty target removes the
// schema qualifier.
func ParseSchemaMap(pairs []string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	m := make(map[string]string, len(pairs))
	for _, p := range pairs {
		src, target, ok := strings.Cut(p, ":")
		src = strings.TrimSpace(src)
		if !ok || src == "" {
			return nil, fmt.Errorf("invalid schema map entry %q: expected source:target", p)
		}
		m[src] = strings.TrimSpace(target)
	}
	return m, nil
}

// Redacted returns a copy safe to print.
func (c *Config) Redacted() *Config {
	out := *c
	if out.Source.Password != "" {
		out.Source.Password = "********"
	}
	return &out
}
