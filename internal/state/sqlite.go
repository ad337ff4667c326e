package state

import (
	"database/sql"
	"embed"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite" // sqlite driver
)

//go:embed migrations/*.sql
var migrations embed.FS

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db     *sql.DB
	path   string
	logger *slog.Logger
}

// NewSQLiteStore creates a new SQLite state store instance.
// If logger is nil, a discard logger is used.
func NewSQLiteStore(logger *slog.Logger) *SQLiteStore {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &SQLiteStore{logger: logger}
}

// Open opens a connection to the SQLite database.
// Use ":memory:" for an in-memory database.
func (s *SQLiteStore) Open(path string) error {
	dsn := path
	if path != ":memory:" {
		dsn = fmt.Sprintf("%s?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)", path)
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return fmt.Errorf("failed to open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping sqlite database: %w", err)
	}

	s.db = db
	s.path = path
	return nil
}

// Close closes the SQLite database connection.
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Migrate runs all pending schema migrations from the embedded FS.
func (s *SQLiteStore) Migrate() error {
	if s.db == nil {
		return fmt.Errorf("database not opened")
	}

	goose.SetBaseFS(migrations)
	goose.SetLogger(goose.NopLogger())

	if err := goose.SetDialect("sqlite"); err != nil {
		return fmt.Errorf("failed to set dialect: %w", err)
	}

	if err := goose.Up(s.db, "migrations"); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// CreateRun creates a new load run in running state.
func (s *SQLiteStore) CreateRun(environment string) (*LoadRun, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not opened")
	}

	run := &LoadRun{
		ID:          uuid.New().String(),
		Environment: environment,
		Status:      RunStatusRunning,
		StartedAt:   time.Now().UTC(),
	}

	_, err := s.db.Exec(
		`INSERT INTO load_runs (id, environment, status, started_at) VALUES (?, ?, ?, ?)`,
		run.ID, run.Environment, run.Status, run.StartedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create run: %w", err)
	}

	s.logger.Debug("created load run", "run_id", run.ID, "environment", environment)
	return run, nil
}

// RecordFactStats updates the fact counters on a run.
func (s *SQLiteStore) RecordFactStats(runID string, admitted, rejected, invalidProduct, unresolvedRef, rowError int) error {
	if s.db == nil {
		return fmt.Errorf("database not opened")
	}

	_, err := s.db.Exec(
		`UPDATE load_runs SET
			facts_admitted = ?,
			facts_rejected = ?,
			rejected_invalid_product = ?,
			rejected_unresolved_ref = ?,
			rejected_row_error = ?
		WHERE id = ?`,
		admitted, rejected, invalidProduct, unresolvedRef, rowError, runID,
	)
	if err != nil {
		return fmt.Errorf("failed to record fact stats: %w", err)
	}
	return nil
}

// CompleteRun finishes a run with the given status and optional error text.
func (s *SQLiteStore) CompleteRun(runID string, status RunStatus, errMsg string) error {
	if s.db == nil {
		return fmt.Errorf("database not opened")
	}

	_, err := s.db.Exec(
		`UPDATE load_runs SET status = ?, completed_at = ?, error = ? WHERE id = ?`,
		status, time.Now().UTC(), errMsg, runID,
	)
	if err != nil {
		return fmt.Errorf("failed to complete run: %w", err)
	}
	return nil
}

// RecordDimensionLoad upserts one dimension's counts for a run.
func (s *SQLiteStore) RecordDimensionLoad(dl *DimensionLoad) error {
	if s.db == nil {
		return fmt.Errorf("database not opened")
	}

	_, err := s.db.Exec(
		`INSERT INTO dimension_loads (run_id, dimension, rows_seen, rows_created)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (run_id, dimension) DO UPDATE SET
			rows_seen = excluded.rows_seen,
			rows_created = excluded.rows_created`,
		dl.RunID, dl.Dimension, dl.RowsSeen, dl.RowsCreated,
	)
	if err != nil {
		return fmt.Errorf("failed to record dimension load: %w", err)
	}
	return nil
}

// GetRun retrieves a run by ID. Returns nil if not found.
func (s *SQLiteStore) GetRun(runID string) (*LoadRun, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not opened")
	}

	row := s.db.QueryRow(
		`SELECT id, environment, status, started_at, completed_at, error,
			facts_admitted, facts_rejected,
			rejected_invalid_product, rejected_unresolved_ref, rejected_row_error
		FROM load_runs WHERE id = ?`, runID)

	run, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return run, nil
}

// GetDimensionLoads returns the per-dimension counts for a run.
func (s *SQLiteStore) GetDimensionLoads(runID string) ([]*DimensionLoad, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not opened")
	}

	rows, err := s.db.Query(
		`SELECT run_id, dimension, rows_seen, rows_created
		FROM dimension_loads WHERE run_id = ? ORDER BY dimension`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query dimension loads: %w", err)
	}
	defer rows.Close()

	var out []*DimensionLoad
	for rows.Next() {
		dl := &DimensionLoad{}
		if err := rows.Scan(&dl.RunID, &dl.Dimension, &dl.RowsSeen, &dl.RowsCreated); err != nil {
			return nil, fmt.Errorf("failed to scan dimension load: %w", err)
		}
		out = append(out, dl)
	}
	return out, rows.Err()
}

// ListRuns returns the most recent runs, newest first.
func (s *SQLiteStore) ListRuns(limit int) ([]*LoadRun, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not opened")
	}
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.Query(
		`SELECT id, environment, status, started_at, completed_at, error,
			facts_admitted, facts_rejected,
			rejected_invalid_product, rejected_unresolved_ref, rejected_row_error
		FROM load_runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var out []*LoadRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		out = append(out, run)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*LoadRun, error) {
	run := &LoadRun{}
	var completedAt sql.NullTime
	err := row.Scan(
		&run.ID, &run.Environment, &run.Status, &run.StartedAt, &completedAt, &run.Error,
		&run.FactsAdmitted, &run.FactsRejected,
		&run.RejectedInvalidProduct, &run.RejectedUnresolvedRef, &run.RejectedRowError,
	)
	if err != nil {
		return nil, err
	}
	if completedAt.Valid {
		t := completedAt.Time
		run.CompletedAt = &t
	}
	return run, nil
}

var _ Store = (*SQLiteStore)(nil)
