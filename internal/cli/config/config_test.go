package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loamworks/starload/internal/warehouse"
)

func TestLoad_Defaults(t *testing.T) {
	ResetConfig()
	t.Cleanup(ResetConfig)

	// Run from an empty directory so no starload.yaml is picked up.
	t.Chdir(t.TempDir())

	cfg, err := Load("", nil)
	require.NoError(t, err)

	assert.Equal(t, DefaultTransactions, cfg.Sources.Transactions)
	assert.Equal(t, DefaultCustomers, cfg.Sources.Customers)
	assert.Equal(t, DefaultProducts, cfg.Sources.Products)
	assert.Equal(t, DefaultRegions, cfg.Sources.Regions)
	assert.Equal(t, DefaultStateFile, cfg.StatePath)
	assert.Equal(t, DefaultEnv, cfg.Environment)
	assert.False(t, cfg.Verbose)

	require.NotNil(t, cfg.Warehouse)
	assert.Equal(t, "duckdb", cfg.Warehouse.Type)
	assert.Equal(t, DefaultWarehouse, cfg.Warehouse.Path)
}

func TestLoad_ConfigFile(t *testing.T) {
	ResetConfig()
	t.Cleanup(ResetConfig)

	dir := t.TempDir()
	cfgFile := filepath.Join(dir, "starload.yaml")
	content := `
sources:
  transactions: extracts/sales.csv
  customers: extracts/customers.json
state_path: .state/history.db
environment: staging
warehouse:
  type: postgres
  host: db.internal
  port: 5433
  database: analytics
  user: loader
`
	require.NoError(t, os.WriteFile(cfgFile, []byte(content), 0o644))

	cfg, err := Load(cfgFile, nil)
	require.NoError(t, err)

	assert.Equal(t, "extracts/sales.csv", cfg.Sources.Transactions)
	assert.Equal(t, "extracts/customers.json", cfg.Sources.Customers)
	// Unset keys keep their defaults.
	assert.Equal(t, DefaultProducts, cfg.Sources.Products)
	assert.Equal(t, ".state/history.db", cfg.StatePath)
	assert.Equal(t, "staging", cfg.Environment)

	require.NotNil(t, cfg.Warehouse)
	assert.Equal(t, "postgres", cfg.Warehouse.Type)
	assert.Equal(t, "db.internal", cfg.Warehouse.Host)
	assert.Equal(t, 5433, cfg.Warehouse.Port)
	assert.Equal(t, "analytics", cfg.Warehouse.Database)
	assert.Equal(t, "loader", cfg.Warehouse.Username)
}

func TestLoad_EnvVars(t *testing.T) {
	ResetConfig()
	t.Cleanup(ResetConfig)
	t.Chdir(t.TempDir())

	t.Setenv("STARLOAD_ENVIRONMENT", "prod")
	t.Setenv("STARLOAD_STATE_PATH", "/var/lib/starload/state.db")
	t.Setenv("STARLOAD_WAREHOUSE__PATH", "/data/warehouse.duckdb")

	cfg, err := Load("", nil)
	require.NoError(t, err)

	assert.Equal(t, "prod", cfg.Environment)
	assert.Equal(t, "/var/lib/starload/state.db", cfg.StatePath)
	assert.Equal(t, "/data/warehouse.duckdb", cfg.Warehouse.Path)
}

func TestLoad_FlagsOverrideEverything(t *testing.T) {
	ResetConfig()
	t.Cleanup(ResetConfig)
	t.Chdir(t.TempDir())

	t.Setenv("STARLOAD_ENVIRONMENT", "prod")

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("env", "", "")
	flags.String("state", "", "")
	flags.String("transactions", "", "")
	require.NoError(t, flags.Parse([]string{
		"--env", "staging",
		"--state", "custom.db",
		"--transactions", "sales.csv",
	}))

	cfg, err := Load("", flags)
	require.NoError(t, err)

	assert.Equal(t, "staging", cfg.Environment)
	assert.Equal(t, "custom.db", cfg.StatePath)
	assert.Equal(t, "sales.csv", cfg.Sources.Transactions)
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	ResetConfig()
	t.Cleanup(ResetConfig)

	dir := t.TempDir()
	cfgFile := filepath.Join(dir, "starload.yaml")
	content := `
environment: prod
warehouse:
  type: duckdb
  path: dev.duckdb
environments:
  prod:
    state_path: /var/lib/starload/state.db
    warehouse:
      type: postgres
      host: warehouse.prod
      database: analytics
`
	require.NoError(t, os.WriteFile(cfgFile, []byte(content), 0o644))

	cfg, err := Load(cfgFile, nil)
	require.NoError(t, err)

	assert.Equal(t, "/var/lib/starload/state.db", cfg.StatePath)
	assert.Equal(t, "postgres", cfg.Warehouse.Type)
	assert.Equal(t, "warehouse.prod", cfg.Warehouse.Host)
	// Fields not overridden keep their base values.
	assert.Equal(t, "dev.duckdb", cfg.Warehouse.Path)
}

func TestLoad_ExpandsCredentialEnvVars(t *testing.T) {
	ResetConfig()
	t.Cleanup(ResetConfig)

	t.Setenv("WAREHOUSE_PASSWORD", "s3cret")

	dir := t.TempDir()
	cfgFile := filepath.Join(dir, "starload.yaml")
	content := `
warehouse:
  type: postgres
  host: db.internal
  database: analytics
  password: ${WAREHOUSE_PASSWORD}
`
	require.NoError(t, os.WriteFile(cfgFile, []byte(content), 0o644))

	cfg, err := Load(cfgFile, nil)
	require.NoError(t, err)
	assert.Equal(t, "s3cret", cfg.Warehouse.Password)
}

func TestLoad_UnknownWarehouseType(t *testing.T) {
	ResetConfig()
	t.Cleanup(ResetConfig)

	dir := t.TempDir()
	cfgFile := filepath.Join(dir, "starload.yaml")
	content := `
warehouse:
  type: snowflake
`
	require.NoError(t, os.WriteFile(cfgFile, []byte(content), 0o644))

	_, err := Load(cfgFile, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown warehouse type")
	assert.Contains(t, err.Error(), "duckdb", "error should list available adapters")
}

func TestValidate_PostgresRequiresHostAndDatabase(t *testing.T) {
	cfg := &Config{Warehouse: &warehouse.Config{Type: "postgres", Host: "db.internal"}}
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database is required")

	cfg = &Config{Warehouse: &warehouse.Config{Type: "postgres", Database: "analytics"}}
	err = cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "host is required")
}

func TestValidateSources(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"t.csv", "c.json", "p.csv", "r.csv"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644))
	}

	cfg := &Config{Sources: Sources{
		Transactions: filepath.Join(dir, "t.csv"),
		Customers:    filepath.Join(dir, "c.json"),
		Products:     filepath.Join(dir, "p.csv"),
		Regions:      filepath.Join(dir, "r.csv"),
	}}
	assert.NoError(t, cfg.ValidateSources())

	cfg.Sources.Regions = filepath.Join(dir, "missing.csv")
	err := cfg.ValidateSources()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "regions source does not exist")

	cfg.Sources.Regions = ""
	err = cfg.ValidateSources()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "regions source path is required")
}
