// Package config loads project configuration for schemaforge. It is
// decoupled from CLI concerns so the engine and tests can load project
// configuration directly.
package config

import (
	"fmt"
	"strings"

	"github.com/schemaforge-labs/schemaforge/internal/adapter"
)

// TargetConfig holds the target database configuration: where compiled
// DDL is provisioned.
type TargetConfig struct {
	Type string `koanf:"type"` // postgres

	Host     string `koanf:"host"`
	Port     int    `koanf:"port"`
	Database string `koanf:"database"`
	Schema   string `koanf:"schema"`
	User     string `koanf:"user"`
	Password string `koanf:"password"`

	// Options contains additional driver-specific options appended to
	// the connection string.
	Options map[string]string `koanf:"options"`
}

// Validate checks the target configuration against the adapter registry.
func (t *TargetConfig) Validate() error {
	if t.Type == "" {
		return fmt.Errorf("target type is required")
	}
	if _, ok := adapter.Get(strings.ToLower(t.Type)); !ok {
		return &adapter.UnknownAdapterError{
			Type:      t.Type,
			Available: adapter.ListAdapters(),
		}
	}
	return nil
}

// ToAdapterConfig converts the target configuration to the adapter
// connection config.
func (t *TargetConfig) ToAdapterConfig() adapter.Config {
	return adapter.Config{
		Type:     strings.ToLower(t.Type),
		Host:     t.Host,
		Port:     t.Port,
		Database: t.Database,
		Schema:   t.Schema,
		Username: t.User,
		Password: t.Password,
		Options:  t.Options,
	}
}

// ValidationConfig overrides the structural limits on candidate schemas.
// Zero values fall back to the built-in defaults.
type ValidationConfig struct {
	MaxTables         int `koanf:"max_tables"`
	MaxColumns        int `koanf:"max_columns"`
	MaxReferenceDepth int `koanf:"max_reference_depth"`
}

// Config holds the full project configuration.
type Config struct {
	// ProjectID scopes versions, traces and locks. Empty is valid for
	// single-project deployments.
	ProjectID string `koanf:"project_id"`

	// StatePath is the SQLite version-store location.
	StatePath string `koanf:"state_path"`

	// Owner identifies this process in edit locks.
	Owner string `koanf:"owner"`

	// LockTTLSeconds is the edit-lock lifetime in seconds.
	LockTTLSeconds int `koanf:"lock_ttl_seconds"`

	Target     *TargetConfig    `koanf:"target"`
	Validation ValidationConfig `koanf:"validation"`

	Verbose bool `koanf:"verbose"`
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.StatePath == "" {
		return fmt.Errorf("state_path is required")
	}
	if c.Target != nil && c.Target.Type != "" {
		return c.Target.Validate()
	}
	return nil
}
