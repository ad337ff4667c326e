// Package config provides configuration management for the starload CLI.
//
// Configuration is layered: built-in defaults, then an optional YAML config
// file, then STARLOAD_-prefixed environment variables, then command-line
// flags. Environment-specific overrides (dev, staging, prod) are applied
// after the layers are merged.
package config

import (
	"fmt"
	"os"

	"github.com/loamworks/starload/internal/pipeline"
	"github.com/loamworks/starload/internal/warehouse"
)

// Sources is an alias for the pipeline's source-path set, so CLI code can
// use config.Sources without importing the pipeline package.
type Sources = pipeline.Sources

// Config holds all CLI configuration options.
type Config struct {
	Sources      Sources              `koanf:"sources"`
	StatePath    string               `koanf:"state_path"`
	Environment  string               `koanf:"environment"`
	Verbose      bool                 `koanf:"verbose"`
	OutputFormat string               `koanf:"output"`
	Warehouse    *warehouse.Config    `koanf:"warehouse"`
	Environments map[string]EnvConfig `koanf:"environments"`
}

// EnvConfig holds environment-specific configuration overrides.
type EnvConfig struct {
	Sources   *Sources          `koanf:"sources"`
	StatePath string            `koanf:"state_path"`
	Warehouse *warehouse.Config `koanf:"warehouse"`
}

// Default configuration values.
const (
	DefaultTransactions = "data/sales_transactions.csv"
	DefaultCustomers    = "data/customers.json"
	DefaultProducts     = "data/products.csv"
	DefaultRegions      = "data/regions.csv"
	DefaultStateFile    = ".starload/state.db"
	DefaultEnv          = "dev"
	DefaultOutput       = "table"
	DefaultWarehouse    = "warehouse.duckdb"
)

// Validate checks that the configuration can drive a load.
func (c *Config) Validate() error {
	if c.Warehouse == nil {
		return fmt.Errorf("warehouse configuration is required")
	}
	if !warehouse.IsRegistered(c.Warehouse.Type) {
		return &warehouse.UnknownAdapterError{
			Type:      c.Warehouse.Type,
			Available: warehouse.List(),
		}
	}
	if c.Warehouse.Type == "postgres" {
		if c.Warehouse.Host == "" {
			return fmt.Errorf("warehouse host is required for postgres")
		}
		if c.Warehouse.Database == "" {
			return fmt.Errorf("warehouse database is required for postgres")
		}
	}
	return nil
}

// ValidateSources checks that every source extract exists on disk.
// Split from Validate so commands that only read history don't require the
// extracts to be present.
func (c *Config) ValidateSources() error {
	paths := map[string]string{
		"transactions": c.Sources.Transactions,
		"customers":    c.Sources.Customers,
		"products":     c.Sources.Products,
		"regions":      c.Sources.Regions,
	}
	for name, path := range paths {
		if path == "" {
			return fmt.Errorf("%s source path is required", name)
		}
		if _, err := os.Stat(path); os.IsNotExist(err) {
			return fmt.Errorf("%s source does not exist: %s", name, path)
		}
	}
	return nil
}
