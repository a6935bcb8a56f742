// Package config loads the sweep configuration from file and environment.
package config

import (
	"fmt"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	// Set defaults
	config := GetDefaults()

	// Configure viper
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./configs")
	viper.AddConfigPath("/etc/piisweep/")
	viper.AddConfigPath("$HOME/.piisweep/")

	// Environment variable overrides
	viper.SetEnvPrefix("PIISWEEP")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Use specific config file if provided
	if configPath != "" {
		viper.SetConfigFile(configPath)
	}

	// Read configuration
	if err := viper.ReadInConfig(); err != nil {
		// Config file not found is not an error - we'll use defaults
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Unmarshal into config struct
	if err := viper.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Validate configuration
	if err := validateConfig(config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// validateConfig validates the loaded configuration
func validateConfig(config *Config) error {
	if config.Store.URL == "" {
		return fmt.Errorf("store.url is required")
	}

	if config.Store.Index == "" {
		return fmt.Errorf("store.index is required")
	}

	if config.Store.PageSize <= 0 {
		return fmt.Errorf("invalid page size: %d", config.Store.PageSize)
	}

	if config.Update.BulkSize <= 0 {
		return fmt.Errorf("invalid bulk size: %d", config.Update.BulkSize)
	}

	switch config.Report.Format {
	case "", "csv", "parquet":
	default:
		return fmt.Errorf("invalid report format: %s (must be csv or parquet)", config.Report.Format)
	}

	switch config.Report.DedupeBackend {
	case "", "memory":
	case "redis":
		if config.Report.RedisURL == "" {
			return fmt.Errorf("report.redis_url is required for the redis dedupe backend")
		}
	default:
		return fmt.Errorf("invalid dedupe backend: %s (must be memory or redis)", config.Report.DedupeBackend)
	}

	if config.Logging.Level != "debug" && config.Logging.Level != "info" && config.Logging.Level != "warn" && config.Logging.Level != "error" {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", config.Logging.Level)
	}

	if config.Logging.Format != "json" && config.Logging.Format != "console" {
		return fmt.Errorf("invalid log format: %s (must be json or console)", config.Logging.Format)
	}

	return nil
}

// Watch starts watching the configuration file for changes. The callback
// receives each new valid configuration; invalid updates are dropped.
func Watch(callback func(*Config)) error {
	if viper.ConfigFileUsed() == "" {
		return fmt.Errorf("no configuration file in use to watch")
	}

	viper.WatchConfig()
	viper.OnConfigChange(func(e fsnotify.Event) {
		newConfig := GetDefaults()
		if err := viper.Unmarshal(newConfig); err != nil {
			// Log error but don't crash
			return
		}

		if err := validateConfig(newConfig); err != nil {
			// Log error but don't crash
			return
		}

		callback(newConfig)
	})

	return nil
}
