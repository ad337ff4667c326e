package config

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"

	"github.com/loamworks/starload/internal/warehouse"
)

// loggerKey is used to store the logger in context.
type loggerKey struct{}

// Package-level koanf instance and config file tracking.
var (
	k              = koanf.New(".")
	configFileUsed string
	currentConfig  *Config
)

// flagKeyMap bridges kebab-case flag names to config keys.
var flagKeyMap = map[string]string{
	"state":          "state_path",
	"env":            "environment",
	"transactions":   "sources.transactions",
	"customers":      "sources.customers",
	"products":       "sources.products",
	"regions":        "sources.regions",
	"warehouse-type": "warehouse.type",
	"warehouse-path": "warehouse.path",
}

// findConfigFile finds the config file to use.
// Priority: explicit path > starload.yaml > starload.yml
func findConfigFile(explicit string) string {
	if explicit != "" {
		return explicit
	}
	for _, name := range []string{"starload.yaml", "starload.yml"} {
		if _, err := os.Stat(name); err == nil {
			return name
		}
	}
	return ""
}

// ResetConfig resets the koanf instance. Used for testing.
func ResetConfig() {
	k = koanf.New(".")
	configFileUsed = ""
	currentConfig = nil
}

// Load loads configuration from file, environment variables, and flags.
// Precedence (highest to lowest): flags > env vars > config file > defaults
func Load(cfgFile string, flags *pflag.FlagSet) (*Config, error) {
	k = koanf.New(".")

	// 1. Defaults
	if err := k.Load(confmap.Provider(map[string]interface{}{
		"sources.transactions": DefaultTransactions,
		"sources.customers":    DefaultCustomers,
		"sources.products":     DefaultProducts,
		"sources.regions":      DefaultRegions,
		"state_path":           DefaultStateFile,
		"environment":          DefaultEnv,
		"verbose":              false,
		"output":               DefaultOutput,
	}, "."), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	// 2. Config file
	configFileUsed = findConfigFile(cfgFile)
	if configFileUsed != "" {
		if err := k.Load(file.Provider(configFileUsed), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("error reading config file %s: %w", configFileUsed, err)
		}
	}

	// 3. Environment variables (STARLOAD_ prefix).
	// Transform: STARLOAD_STATE_PATH -> state_path, and a double underscore
	// descends into nested keys: STARLOAD_WAREHOUSE__TYPE -> warehouse.type.
	if err := k.Load(env.Provider("STARLOAD_", ".", func(s string) string {
		s = strings.ToLower(strings.TrimPrefix(s, "STARLOAD_"))
		return strings.ReplaceAll(s, "__", ".")
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	// 4. Flags (highest priority)
	if flags != nil {
		if err := k.Load(posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, interface{}) {
			if !f.Changed {
				return "", nil
			}
			key := f.Name
			if mapped, ok := flagKeyMap[key]; ok {
				key = mapped
			} else {
				key = strings.ReplaceAll(key, "-", "_")
			}
			return key, posflag.FlagVal(flags, f)
		}), nil); err != nil {
			return nil, fmt.Errorf("failed to load flags: %w", err)
		}
	}

	// 5. Unmarshal
	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	// 6. Environment-specific overrides
	if cfg.Environment != "" && cfg.Environments != nil {
		if envCfg, ok := cfg.Environments[cfg.Environment]; ok {
			applyEnvOverrides(&cfg, envCfg)
		}
	}

	// 7. Default warehouse target
	if cfg.Warehouse == nil {
		cfg.Warehouse = &warehouse.Config{
			Type: "duckdb",
			Path: DefaultWarehouse,
		}
	}
	if cfg.Warehouse.Type == "" {
		cfg.Warehouse.Type = "duckdb"
	}
	if cfg.Warehouse.Type == "duckdb" && cfg.Warehouse.Path == "" {
		cfg.Warehouse.Path = DefaultWarehouse
	}

	expandWarehouseEnvVars(cfg.Warehouse)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	currentConfig = &cfg
	return &cfg, nil
}

func applyEnvOverrides(cfg *Config, envCfg EnvConfig) {
	if envCfg.StatePath != "" {
		cfg.StatePath = envCfg.StatePath
	}
	if envCfg.Sources != nil {
		if envCfg.Sources.Transactions != "" {
			cfg.Sources.Transactions = envCfg.Sources.Transactions
		}
		if envCfg.Sources.Customers != "" {
			cfg.Sources.Customers = envCfg.Sources.Customers
		}
		if envCfg.Sources.Products != "" {
			cfg.Sources.Products = envCfg.Sources.Products
		}
		if envCfg.Sources.Regions != "" {
			cfg.Sources.Regions = envCfg.Sources.Regions
		}
	}
	if envCfg.Warehouse != nil {
		cfg.Warehouse = MergeWarehouseConfig(cfg.Warehouse, envCfg.Warehouse)
	}
}

// MergeWarehouseConfig merges two warehouse configs, with override taking
// precedence field by field.
func MergeWarehouseConfig(base, override *warehouse.Config) *warehouse.Config {
	if base == nil {
		return override
	}
	if override == nil {
		return base
	}

	merged := *base
	if merged.Options == nil {
		merged.Options = make(map[string]string)
	} else {
		opts := make(map[string]string, len(merged.Options))
		for k, v := range merged.Options {
			opts[k] = v
		}
		merged.Options = opts
	}

	if override.Type != "" {
		merged.Type = override.Type
	}
	if override.Path != "" {
		merged.Path = override.Path
	}
	if override.Host != "" {
		merged.Host = override.Host
	}
	if override.Port != 0 {
		merged.Port = override.Port
	}
	if override.Database != "" {
		merged.Database = override.Database
	}
	if override.Username != "" {
		merged.Username = override.Username
	}
	if override.Password != "" {
		merged.Password = override.Password
	}
	for k, v := range override.Options {
		merged.Options[k] = v
	}

	return &merged
}

// GetConfigFileUsed returns the path to the config file being used, if any.
func GetConfigFileUsed() string {
	return configFileUsed
}

// GetCurrentConfig returns the currently loaded configuration.
// This is available after Load is called.
func GetCurrentConfig() *Config {
	return currentConfig
}

// LoggerKey returns the context key used for storing the logger.
// This allows the commands package to retrieve the logger from context
// without creating an import cycle with the cli package.
func LoggerKey() interface{} {
	return loggerKey{}
}

// GetLogger retrieves the logger from the command context.
func GetLogger(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(loggerKey{}).(*slog.Logger); ok {
		return l
	}
	return slog.New(slog.DiscardHandler)
}

// expandEnvVars expands ${VAR} patterns with environment variable values.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)
	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := match[2 : len(match)-1]
		if val := os.Getenv(varName); val != "" {
			return val
		}
		return match
	})
}

// expandWarehouseEnvVars expands environment variables in sensitive
// warehouse fields.
func expandWarehouseEnvVars(w *warehouse.Config) {
	if w == nil {
		return
	}
	w.Host = expandEnvVars(w.Host)
	w.Database = expandEnvVars(w.Database)
	w.Username = expandEnvVars(w.Username)
	w.Password = expandEnvVars(w.Password)
}
