package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/loamworks/starload/internal/cli/config"
	"github.com/loamworks/starload/internal/state"
	"github.com/loamworks/starload/internal/warehouse"
)

// NewInitCommand creates the init command.
func NewInitCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create the star-schema tables and the run-history database",
		Long: `Bootstrap the configured warehouse and local state.

Creates the dimension and fact tables in the warehouse (if they don't
already exist) and initializes the run-history database. Safe to run
repeatedly.`,
		Example: `  # Bootstrap the default DuckDB warehouse
  starload init

  # Bootstrap a postgres warehouse
  starload init --warehouse-type postgres`,
		RunE: runInit,
	}
}

func runInit(cmd *cobra.Command, _ []string) error {
	cfg := getConfig()
	logger := config.GetLogger(cmd.Context())
	ctx := cmd.Context()

	wh, err := warehouse.New(*cfg.Warehouse, logger)
	if err != nil {
		return err
	}
	if err := wh.Connect(ctx, *cfg.Warehouse); err != nil {
		return fmt.Errorf("warehouse unreachable: %w", err)
	}
	defer wh.Close()

	if err := wh.EnsureSchema(ctx); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Warehouse schema ready (%s)\n", wh.DialectName())

	if err := ensureStateDir(cfg.StatePath); err != nil {
		return err
	}
	store := state.NewSQLiteStore(logger)
	if err := store.Open(cfg.StatePath); err != nil {
		return fmt.Errorf("failed to open state store: %w", err)
	}
	defer store.Close()
	if err := store.Migrate(); err != nil {
		return fmt.Errorf("failed to migrate state store: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Run history ready (%s)\n", cfg.StatePath)

	return nil
}
