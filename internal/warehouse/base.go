package warehouse

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jmoiron/sqlx"
)

//go:embed schema/*.sql
var schemaFS embed.FS

// BaseSQLAdapter provides common database/sql functionality for adapters.
// Embed this struct in concrete adapter implementations to get standard
// Close, Exec, Query, transaction, and schema handling.
type BaseSQLAdapter struct {
	DB     *sqlx.DB
	Tx     *sqlx.Tx
	Cfg    Config
	Logger *slog.Logger
}

// Close closes the connection. An open load transaction is discarded
// (the driver rolls it back when the connection drops).
func (b *BaseSQLAdapter) Close() error {
	if b.Tx != nil {
		if b.Logger != nil {
			b.Logger.Warn("closing warehouse with uncommitted load transaction")
		}
		_ = b.Tx.Rollback()
		b.Tx = nil
	}
	if b.DB != nil {
		if b.Logger != nil {
			b.Logger.Debug("closing warehouse connection")
		}
		return b.DB.Close()
	}
	return nil
}

// Rebind converts ? placeholders to the driver's bindvar style.
func (b *BaseSQLAdapter) Rebind(query string) string {
	if b.DB == nil {
		return query
	}
	return b.DB.Rebind(query)
}

// Exec executes a statement that doesn't return rows, inside the load
// transaction when one is open.
func (b *BaseSQLAdapter) Exec(ctx context.Context, query string, args ...any) error {
	if b.DB == nil {
		return fmt.Errorf("warehouse connection not established")
	}
	var err error
	if b.Tx != nil {
		_, err = b.Tx.ExecContext(ctx, query, args...)
	} else {
		_, err = b.DB.ExecContext(ctx, query, args...)
	}
	if err != nil {
		return fmt.Errorf("failed to execute SQL: %w", err)
	}
	return nil
}

// Query executes a statement that returns rows.
func (b *BaseSQLAdapter) Query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	if b.DB == nil {
		return nil, fmt.Errorf("warehouse connection not established")
	}
	//nolint:rowserrcheck // rows.Err() must be checked by caller after iteration completes
	if b.Tx != nil {
		return b.Tx.QueryContext(ctx, query, args...)
	}
	return b.DB.QueryContext(ctx, query, args...)
}

// QueryRow executes a statement expected to return at most one row.
func (b *BaseSQLAdapter) QueryRow(ctx context.Context, query string, args ...any) *sql.Row {
	if b.Tx != nil {
		return b.Tx.QueryRowContext(ctx, query, args...)
	}
	return b.DB.QueryRowContext(ctx, query, args...)
}

// BeginLoad opens the load transaction. All writes for a run happen inside
// it and are flushed together by Commit.
func (b *BaseSQLAdapter) BeginLoad(ctx context.Context) error {
	if b.DB == nil {
		return fmt.Errorf("warehouse connection not established")
	}
	if b.Tx != nil {
		return fmt.Errorf("load transaction already open")
	}
	tx, err := b.DB.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin load transaction: %w", err)
	}
	b.Tx = tx
	return nil
}

// Commit commits the load transaction.
func (b *BaseSQLAdapter) Commit() error {
	if b.Tx == nil {
		return fmt.Errorf("no load transaction open")
	}
	if err := b.Tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit load transaction: %w", err)
	}
	b.Tx = nil
	return nil
}

// IsConnected returns true if the connection is established.
func (b *BaseSQLAdapter) IsConnected() bool {
	return b.DB != nil
}

// ensureSchemaFromFile executes the embedded DDL for the given dialect,
// one statement at a time (pgx's extended protocol rejects multi-statement
// strings).
func (b *BaseSQLAdapter) ensureSchemaFromFile(ctx context.Context, dialect string) error {
	if b.DB == nil {
		return fmt.Errorf("warehouse connection not established")
	}

	ddl, err := schemaFS.ReadFile("schema/" + dialect + ".sql")
	if err != nil {
		return fmt.Errorf("failed to read embedded schema for %s: %w", dialect, err)
	}

	for _, stmt := range strings.Split(string(ddl), ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if err := b.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	return nil
}
