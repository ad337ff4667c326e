package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/loamworks/starload/internal/cli/config"
	"github.com/loamworks/starload/internal/state"
)

// RunsOptions holds options for the runs command.
type RunsOptions struct {
	Limit      int
	JSONOutput bool
}

// NewRunsCommand creates the runs command.
func NewRunsCommand() *cobra.Command {
	opts := &RunsOptions{}

	cmd := &cobra.Command{
		Use:   "runs [run-id]",
		Short: "Show load-run history",
		Long: `List recent load runs, or show the details of a single run
including per-dimension load counts.`,
		Example: `  # List the last 20 runs
  starload runs

  # Show one run in detail
  starload runs 4f1c2d8e-...

  # Machine-readable history
  starload runs --json`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRuns(cmd, opts, args)
		},
	}

	cmd.Flags().IntVarP(&opts.Limit, "limit", "n", 20, "Maximum number of runs to list")
	cmd.Flags().BoolVar(&opts.JSONOutput, "json", false, "Output as JSON")

	return cmd
}

func runRuns(cmd *cobra.Command, opts *RunsOptions, args []string) error {
	cfg := getConfig()
	logger := config.GetLogger(cmd.Context())

	store := state.NewSQLiteStore(logger)
	if err := store.Open(cfg.StatePath); err != nil {
		return fmt.Errorf("failed to open state store: %w", err)
	}
	defer store.Close()
	if err := store.Migrate(); err != nil {
		return fmt.Errorf("failed to migrate state store: %w", err)
	}

	if len(args) == 1 {
		return showRun(cmd.OutOrStdout(), store, args[0], opts.JSONOutput)
	}
	return listRuns(cmd.OutOrStdout(), store, opts)
}

func listRuns(w io.Writer, store state.Store, opts *RunsOptions) error {
	runs, err := store.ListRuns(opts.Limit)
	if err != nil {
		return fmt.Errorf("failed to list runs: %w", err)
	}

	if opts.JSONOutput {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(runs)
	}

	if len(runs) == 0 {
		fmt.Fprintln(w, "No runs recorded yet. Run 'starload load' first.")
		return nil
	}

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Run", "Env", "Status", "Started", "Duration", "Admitted", "Rejected"})
	for _, run := range runs {
		t.AppendRow(table.Row{
			shortID(run.ID),
			run.Environment,
			run.Status,
			run.StartedAt.Format(time.RFC3339),
			runDuration(run),
			run.FactsAdmitted,
			run.FactsRejected,
		})
	}
	t.Render()
	return nil
}

func showRun(w io.Writer, store state.Store, runID string, jsonOutput bool) error {
	run, err := store.GetRun(runID)
	if err != nil {
		return fmt.Errorf("failed to read run: %w", err)
	}
	if run == nil {
		return fmt.Errorf("run not found: %s", runID)
	}

	loads, err := store.GetDimensionLoads(runID)
	if err != nil {
		return fmt.Errorf("failed to read dimension loads: %w", err)
	}

	if jsonOutput {
		out := struct {
			Run        *state.LoadRun         `json:"run"`
			Dimensions []*state.DimensionLoad `json:"dimensions"`
		}{run, loads}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}

	fmt.Fprintf(w, "Run:         %s\n", run.ID)
	fmt.Fprintf(w, "Environment: %s\n", run.Environment)
	fmt.Fprintf(w, "Status:      %s\n", run.Status)
	fmt.Fprintf(w, "Started:     %s\n", run.StartedAt.Format(time.RFC3339))
	fmt.Fprintf(w, "Duration:    %s\n", runDuration(run))
	if run.Error != "" {
		fmt.Fprintf(w, "Error:       %s\n", run.Error)
	}
	fmt.Fprintf(w, "Facts:       %d admitted, %d rejected", run.FactsAdmitted, run.FactsRejected)
	if run.FactsRejected > 0 {
		fmt.Fprintf(w, " (invalid product: %d, unresolved reference: %d, row error: %d)",
			run.RejectedInvalidProduct, run.RejectedUnresolvedRef, run.RejectedRowError)
	}
	fmt.Fprintln(w)

	if len(loads) > 0 {
		fmt.Fprintln(w)
		t := table.NewWriter()
		t.SetOutputMirror(w)
		t.SetStyle(table.StyleLight)
		t.AppendHeader(table.Row{"Dimension", "Rows Seen", "Rows Created"})
		for _, dl := range loads {
			t.AppendRow(table.Row{dl.Dimension, dl.RowsSeen, dl.RowsCreated})
		}
		t.Render()
	}
	return nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func runDuration(run *state.LoadRun) string {
	if run.CompletedAt == nil {
		return "-"
	}
	return run.CompletedAt.Sub(run.StartedAt).Round(reportElapsedPrecision).String()
}
