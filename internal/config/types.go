package config

import (
	"time"

	"github.com/pii-sweep/piisweep/internal/extract"
	"github.com/pii-sweep/piisweep/internal/store"
)

// Config represents the main configuration structure
type Config struct {
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Extract   extract.Config  `yaml:"extract" mapstructure:"extract"`
	Detectors DetectorsConfig `yaml:"detectors" mapstructure:"detectors"`
	Report    ReportConfig    `yaml:"report" mapstructure:"report"`
	Update    UpdateConfig    `yaml:"update" mapstructure:"update"`
	Logging   LoggingConfig   `yaml:"logging" mapstructure:"logging"`
}

// UpdateConfig contains write-back settings
type UpdateConfig struct {
	Apply    bool `yaml:"apply" mapstructure:"apply"`
	BulkSize int  `yaml:"bulk_size" mapstructure:"bulk_size"`
}

// StoreConfig contains document store connection and query settings
type StoreConfig struct {
	store.Config `yaml:",inline" mapstructure:",squash"`

	Index     string `yaml:"index" mapstructure:"index"`
	PageSize  int    `yaml:"page_size" mapstructure:"page_size"`
	ScrollTTL string `yaml:"scroll_ttl" mapstructure:"scroll_ttl"`
	QueryFile string `yaml:"query_file" mapstructure:"query_file"`
}

// DetectorsConfig contains detector loading and field mapping settings
type DetectorsConfig struct {
	File        string            `yaml:"file" mapstructure:"file"`
	FieldMap    map[string]string `yaml:"field_map" mapstructure:"field_map"`
	FieldPrefix string            `yaml:"field_prefix" mapstructure:"field_prefix"`
}

// ReportConfig contains report output settings
type ReportConfig struct {
	Output        string        `yaml:"output" mapstructure:"output"`
	Format        string        `yaml:"format" mapstructure:"format"` // "", csv or parquet
	Dedupe        bool          `yaml:"dedupe" mapstructure:"dedupe"`
	DedupeBackend string        `yaml:"dedupe_backend" mapstructure:"dedupe_backend"` // memory or redis
	RedisURL      string        `yaml:"redis_url" mapstructure:"redis_url"`
	RedisPrefix   string        `yaml:"redis_key_prefix" mapstructure:"redis_key_prefix"`
	RedisTTL      time.Duration `yaml:"redis_ttl" mapstructure:"redis_ttl"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"` // json or console
	File   struct {
		Enabled bool   `yaml:"enabled" mapstructure:"enabled"`
		Path    string `yaml:"path" mapstructure:"path"`
	} `yaml:"file" mapstructure:"file"`
}

// GetDefaults returns a configuration with sensible defaults
func GetDefaults() *Config {
	return &Config{
		Store: StoreConfig{
			Config: store.Config{
				Timeout: 60 * time.Second,
			},
			PageSize:  500,
			ScrollTTL: "2m",
		},
		Extract: extract.Config{
			ContentField:    "content",
			AltContentField: "attachment.content",
			PathField:       "path.virtual",
		},
		Detectors: DetectorsConfig{
			FieldPrefix: "pii.",
		},
		Report: ReportConfig{
			Output:        "pii.csv",
			DedupeBackend: "memory",
			RedisPrefix:   "piisweep",
			RedisTTL:      time.Hour,
		},
		Update: UpdateConfig{
			Apply:    false,
			BulkSize: 1000,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}
