// Package commands implements the starload subcommands.
package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/loamworks/starload/internal/cli/config"
	"github.com/loamworks/starload/internal/model"
	"github.com/loamworks/starload/internal/pipeline"
	"github.com/loamworks/starload/internal/warehouse"
)

// reportElapsedPrecision is the rounding applied to elapsed times in output.
const reportElapsedPrecision = time.Millisecond

// LoadOptions holds options for the load command.
type LoadOptions struct {
	JSONOutput bool
}

// NewLoadCommand creates the load command.
func NewLoadCommand() *cobra.Command {
	opts := &LoadOptions{}

	cmd := &cobra.Command{
		Use:   "load",
		Short: "Run a full warehouse load",
		Long: `Extract the configured source files, load the conformed dimensions,
and admit facts into the warehouse.

Dimension loading is idempotent: rows already present keep their surrogate
keys and are not duplicated. Facts are admitted only when the product is
valid and every dimension reference resolves; rejected rows are counted
by cause and never abort the run.`,
		Example: `  # Load using starload.yaml in the current directory
  starload load

  # Load specific extracts into a named warehouse file
  starload load --transactions sales.csv --warehouse-path prod.duckdb

  # Machine-readable summary for CI
  starload load --json`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runLoad(cmd, opts)
		},
	}

	cmd.Flags().BoolVar(&opts.JSONOutput, "json", false, "Output the load report as JSON")

	return cmd
}

func runLoad(cmd *cobra.Command, opts *LoadOptions) error {
	cfg := getConfig()
	logger := config.GetLogger(cmd.Context())

	if err := cfg.ValidateSources(); err != nil {
		return err
	}
	if err := ensureStateDir(cfg.StatePath); err != nil {
		return err
	}

	p, err := pipeline.New(pipeline.Config{
		Sources:     cfg.Sources,
		Warehouse:   *cfg.Warehouse,
		StatePath:   cfg.StatePath,
		Environment: cfg.Environment,
		Logger:      logger,
	})
	if err != nil {
		return err
	}
	defer p.Close()

	report, err := p.Run(cmd.Context())
	if err != nil {
		return fmt.Errorf("load failed: %w", err)
	}

	if opts.JSONOutput {
		return renderReportJSON(cmd.OutOrStdout(), report)
	}
	renderReport(cmd.OutOrStdout(), report)
	return nil
}

func renderReport(w io.Writer, report *model.LoadReport) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Dimension", "Rows Seen", "Rows Created"})
	for _, d := range report.Dimensions {
		t.AppendRow(table.Row{d.Dimension, d.RowsSeen, d.RowsCreated})
	}
	t.Render()

	fmt.Fprintf(w, "\nFacts admitted: %d\n", report.FactsAdmitted)
	fmt.Fprintf(w, "Facts rejected: %d\n", report.FactsRejected)
	for _, reason := range []model.RejectReason{
		model.ReasonInvalidProduct,
		model.ReasonUnresolvedReference,
		model.ReasonRowError,
	} {
		if n := report.RejectsByCause[reason]; n > 0 {
			fmt.Fprintf(w, "  %s: %d\n", reason, n)
		}
	}
	fmt.Fprintf(w, "Completed in %s\n", report.Elapsed.Round(reportElapsedPrecision))
}

func renderReportJSON(w io.Writer, report *model.LoadReport) error {
	out := struct {
		Dimensions     []model.DimensionLoad        `json:"dimensions"`
		FactsAdmitted  int                          `json:"facts_admitted"`
		FactsRejected  int                          `json:"facts_rejected"`
		RejectsByCause map[model.RejectReason]int   `json:"rejects_by_cause,omitempty"`
		ElapsedMillis  int64                        `json:"elapsed_ms"`
	}{
		Dimensions:     report.Dimensions,
		FactsAdmitted:  report.FactsAdmitted,
		FactsRejected:  report.FactsRejected,
		RejectsByCause: report.RejectsByCause,
		ElapsedMillis:  report.Elapsed.Milliseconds(),
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

// getConfig returns the current configuration, falling back to defaults when
// no config has been loaded (e.g., in tests calling commands directly).
func getConfig() *config.Config {
	if cfg := config.GetCurrentConfig(); cfg != nil {
		return cfg
	}
	return &config.Config{
		Sources: config.Sources{
			Transactions: config.DefaultTransactions,
			Customers:    config.DefaultCustomers,
			Products:     config.DefaultProducts,
			Regions:      config.DefaultRegions,
		},
		StatePath:   config.DefaultStateFile,
		Environment: config.DefaultEnv,
		Warehouse: &warehouse.Config{
			Type: "duckdb",
			Path: config.DefaultWarehouse,
		},
	}
}

// ensureStateDir creates the directory holding the run-history database.
func ensureStateDir(statePath string) error {
	dir := filepath.Dir(statePath)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return fmt.Errorf("failed to create state directory: %w", err)
		}
	}
	return nil
}
