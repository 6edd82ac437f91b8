package config

import (
	"errors"
	"fmt"

	"github.com/robfig/cron/v3"

	"partialdump/internal/domain"
	"partialdump/internal/dump"
	"partialdump/internal/patch"
)

// ErrNoQueries is returned when there is nothing to dump.
var ErrNoQueries = errors.New("at least one query is required")

// Validate checks the configuration before any connection is opened.
// Template errors are returned as *dump.TemplateFormatError.
func (c *Config) Validate() error {
	src := c.Source
	if !src.Driver.Valid() {
		return fmt.Errorf("source.driver: unsupported driver %q (supported: %v)", src.Driver, domain.Drivers)
	}
	if src.Host == "" {
		if src.Driver == domain.DatabaseDriverSQLite {
			return fmt.Errorf("source.host: the sqlite database file path is required")
		}
		return fmt.Errorf("source.host is required")
	}
	if src.Driver != domain.DatabaseDriverSQLite && src.Database == "" {
		return fmt.Errorf("source.database is required")
	}
	if src.MaxConnections < 0 {
		return fmt.Errorf("source.max_connections must not be negative")
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("batch_size must be positive, got %d", c.BatchSize)
	}
	if c.MaxQPS < 0 || src.MaxQPS < 0 {
		return fmt.Errorf("max_qps must not be negative")
	}

	if len(c.Queries) == 0 {
		return ErrNoQueries
	}
	if _, err := dump.ParseRelations(c.AllPreRequisites(), c.PostRequisites); err != nil {
		return err
	}
	if _, err := patch.Build(c.Patches); err != nil {
		return fmt.Errorf("patches: %w", err)
	}
	if _, err := c.ParsedSchemaMap(); err != nil {
		return fmt.Errorf("schema_map: %w", err)
	}
	if c.Schedule != "" {
		if _, err := cron.ParseStandard(c.Schedule); err != nil {
			return fmt.Errorf("schedule: %w", err)
		}
	}
	return nil
}
