// Package state tracks load-run history in a local SQLite database:
// one row per pipeline run plus per-dimension load counts.
package state

import "time"

// RunStatus is the lifecycle status of a load run.
type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// LoadRun is one pipeline execution.
type LoadRun struct {
	ID          string
	Environment string
	Status      RunStatus
	StartedAt   time.Time
	CompletedAt *time.Time
	Error       string

	FactsAdmitted          int
	FactsRejected          int
	RejectedInvalidProduct int
	RejectedUnresolvedRef  int
	RejectedRowError       int
}

// DimensionLoad is one dimension's outcome within a run.
type DimensionLoad struct {
	RunID       string
	Dimension   string
	RowsSeen    int
	RowsCreated int
}

// Store persists load-run history.
type Store interface {
	Open(path string) error
	Close() error

	// Migrate applies pending schema migrations.
	Migrate() error

	CreateRun(environment string) (*LoadRun, error)

	// RecordFactStats updates the fact counters on a run.
	RecordFactStats(runID string, admitted, rejected, invalidProduct, unresolvedRef, rowError int) error

	// CompleteRun finishes a run with the given status and optional error text.
	CompleteRun(runID string, status RunStatus, errMsg string) error

	RecordDimensionLoad(dl *DimensionLoad) error

	GetRun(runID string) (*LoadRun, error)
	GetDimensionLoads(runID string) ([]*DimensionLoad, error)

	// ListRuns returns the most recent runs, newest first.
	ListRuns(limit int) ([]*LoadRun, error)
}
