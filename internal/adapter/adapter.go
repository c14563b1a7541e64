// Package adapter provides database adapter interfaces and the factory
// registry used by the provisioning executor. Adapters are the only
// components that talk to the live database.
package adapter

import (
	"context"
	"database/sql"
)

// Config holds the configuration for connecting to a database.
type Config struct {
	// Type specifies the database type (e.g., "postgres")
	Type string

	// Host is the hostname for network-based databases
	Host string

	// Port is the port number for network-based databases
	Port int

	// Database is the database name
	Database string

	// Schema is the default schema to use
	Schema string

	// Username for authentication
	Username string

	// Password for authentication
	Password string

	// Options contains additional driver-specific options
	Options map[string]string
}

// Rows wraps sql.Rows to provide a consistent interface across adapters.
type Rows struct {
	*sql.Rows
}

// Adapter is the interface every database adapter implements. The
// provisioning executor holds the only privileged execution channel in
// the system; all statement text it submits comes from the compiler.
type Adapter interface {
	// Connect establishes a connection using the provided config.
	Connect(ctx context.Context, cfg Config) error

	// Close closes the database connection and releases resources.
	Close() error

	// Exec executes statement text that doesn't return rows. Multi-
	// statement DDL blocks are submitted as a single unit.
	Exec(ctx context.Context, sql string) error

	// Query executes a statement that returns rows.
	Query(ctx context.Context, sql string) (*Rows, error)

	// SupportsTransactionalDDL reports whether the database applies a
	// BEGIN..COMMIT DDL block atomically. The provisioner probes this
	// to choose between atomic and per-entity execution.
	SupportsTransactionalDDL() bool

	// DialectName returns the SQL dialect name for this adapter.
	DialectName() string
}
