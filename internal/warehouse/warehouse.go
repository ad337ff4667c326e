// Package warehouse provides the storage backend for the star schema.
// It exposes a small adapter interface over database/sql so the loader can
// treat the warehouse as an opaque key-value-returning dependency, with
// concrete adapters for DuckDB and PostgreSQL.
package warehouse

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// Config holds the configuration for connecting to a warehouse.
type Config struct {
	// Type specifies the warehouse type (e.g., "duckdb", "postgres")
	Type string `koanf:"type"`

	// Path is the file path for file-based databases.
	// Use ":memory:" for an in-memory database.
	Path string `koanf:"path"`

	// Host is the hostname for network-based databases
	Host string `koanf:"host"`

	// Port is the port number for network-based databases
	Port int `koanf:"port"`

	// Database is the database name
	Database string `koanf:"database"`

	// Username for authentication
	Username string `koanf:"user"`

	// Password for authentication
	Password string `koanf:"password"`

	// Options contains additional driver-specific options
	Options map[string]string `koanf:"options"`
}

// Adapter defines the interface all warehouse adapters implement.
//
// A load runs inside a single transaction: BeginLoad is called once before
// dimension loading, Commit once after fact loading. Exec/Query/QueryRow
// route through the open transaction when one exists. There is no rollback
// operation; an uncommitted transaction is discarded on Close.
type Adapter interface {
	// Connect establishes the connection and verifies it with a ping.
	Connect(ctx context.Context, cfg Config) error

	// Close closes the connection, discarding any uncommitted transaction.
	Close() error

	// DialectName returns the SQL dialect name (e.g., "duckdb", "postgres").
	DialectName() string

	// Rebind converts a query written with ? placeholders to the
	// adapter's bindvar style.
	Rebind(query string) string

	// Exec executes a statement that doesn't return rows.
	Exec(ctx context.Context, query string, args ...any) error

	// Query executes a statement that returns rows.
	Query(ctx context.Context, query string, args ...any) (*sql.Rows, error)

	// QueryRow executes a statement expected to return at most one row.
	QueryRow(ctx context.Context, query string, args ...any) *sql.Row

	// BeginLoad opens the load transaction.
	BeginLoad(ctx context.Context) error

	// Commit commits the load transaction.
	Commit() error

	// EnsureSchema creates the star-schema tables if they don't exist.
	EnsureSchema(ctx context.Context) error
}

// UnknownAdapterError is returned when an adapter type is not registered.
type UnknownAdapterError struct {
	Type      string
	Available []string
}

func (e *UnknownAdapterError) Error() string {
	return fmt.Sprintf("unknown warehouse type %q (available: %s)", e.Type, strings.Join(e.Available, ", "))
}
