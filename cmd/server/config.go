// Package main provides the logscanner server CLI.
package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the server configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	File       FileConfig       `yaml:"file"`
	Processing ProcessingConfig `yaml:"processing"`
	ClickHouse ClickHouseConfig `yaml:"clickhouse"`
	SQLite     SQLiteConfig     `yaml:"sqlite"`
	Metrics    MetricsConfig    `yaml:"metrics"`
	Verbose    bool             `yaml:"-"` // set via CLI flag
}

// MetricsConfig controls the optional dedicated metrics listener.
// Metrics are always served on the API port at /metrics; setting an
// address here additionally exposes them on a separate port.
type MetricsConfig struct {
	Address string `yaml:"address"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Address string    `yaml:"address"` // HTTP listen address (default: :8080)
	TLS     TLSConfig `yaml:"tls"`
}

// TLSConfig contains TLS settings for the HTTP server.
type TLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// FileConfig constrains accepted uploads.
type FileConfig struct {
	MaxSize      int64    `yaml:"max-size"`      // bytes (default: 52428800)
	AllowedTypes []string `yaml:"allowed-types"` // extensions without dot (default: log, txt)
}

// ProcessingConfig tunes the ingestion pipeline.
type ProcessingConfig struct {
	BatchSize     int    `yaml:"batch-size"`      // entries per ClickHouse insert
	BufferSize    int    `yaml:"buffer-size"`     // reader buffer in bytes
	MaxLineLength int    `yaml:"max-line-length"` // lines longer than this are truncated
	RetentionDays int    `yaml:"retention-days"`  // ClickHouse TTL for log entries
	TempDir       string `yaml:"temp-dir"`        // spool directory for uploads
	Strict        bool   `yaml:"strict"`          // fail a job on its first malformed line

	ThreadPool ThreadPoolConfig `yaml:"thread-pool"`
}

// ThreadPoolConfig sizes the job worker pool.
type ThreadPoolConfig struct {
	CoreSize      int `yaml:"core-size"`
	MaxSize       int `yaml:"max-size"`
	QueueCapacity int `yaml:"queue-capacity"`
}

// ClickHouseConfig contains ClickHouse connection settings.
type ClickHouseConfig struct {
	Addresses    []string      `yaml:"addresses"`
	Database     string        `yaml:"database"`
	Username     string        `yaml:"username"`
	Password     string        `yaml:"password"`
	DialTimeout  time.Duration `yaml:"dial-timeout"`
	MaxOpenConns int           `yaml:"max-open-conns"`
	MaxIdleConns int           `yaml:"max-idle-conns"`
	Compression  bool          `yaml:"compression"`
}

// SQLiteConfig contains job store settings.
type SQLiteConfig struct {
	Path   string        `yaml:"path"`    // database file (default: data/jobs.db)
	JobTTL time.Duration `yaml:"job-ttl"` // how long finished jobs are kept
}

// LoadConfig loads configuration from a YAML file. Environment
// variables with the LOGSCANNER_ prefix override file values.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	cfg.setDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}

// DefaultConfig returns a configuration with default values, with
// LOGSCANNER_ environment overrides applied.
func DefaultConfig() (*Config, error) {
	cfg := &Config{}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	cfg.setDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

// setDefaults sets default values for missing config fields.
func (c *Config) setDefaults() {
	if c.Server.Address == "" {
		c.Server.Address = ":8080"
	}
	if c.File.MaxSize == 0 {
		c.File.MaxSize = 50 * 1024 * 1024
	}
	if len(c.File.AllowedTypes) == 0 {
		c.File.AllowedTypes = []string{"log", "txt"}
	}
	if c.Processing.BatchSize == 0 {
		c.Processing.BatchSize = 1000
	}
	if c.Processing.BufferSize == 0 {
		c.Processing.BufferSize = 8192
	}
	if c.Processing.MaxLineLength == 0 {
		c.Processing.MaxLineLength = 100000
	}
	if c.Processing.RetentionDays == 0 {
		c.Processing.RetentionDays = 30
	}
	if c.Processing.ThreadPool.CoreSize == 0 {
		c.Processing.ThreadPool.CoreSize = 4
	}
	if c.Processing.ThreadPool.MaxSize == 0 {
		c.Processing.ThreadPool.MaxSize = 10
	}
	if c.Processing.ThreadPool.QueueCapacity == 0 {
		c.Processing.ThreadPool.QueueCapacity = 100
	}
	if len(c.ClickHouse.Addresses) == 0 {
		c.ClickHouse.Addresses = []string{"localhost:9000"}
	}
	if c.ClickHouse.Database == "" {
		c.ClickHouse.Database = "logscanner"
	}
	if c.ClickHouse.Username == "" {
		c.ClickHouse.Username = "default"
	}
	if c.ClickHouse.DialTimeout == 0 {
		c.ClickHouse.DialTimeout = 10 * time.Second
	}
	if c.ClickHouse.MaxOpenConns == 0 {
		c.ClickHouse.MaxOpenConns = 10
	}
	if c.ClickHouse.MaxIdleConns == 0 {
		c.ClickHouse.MaxIdleConns = 5
	}
	if c.SQLite.Path == "" {
		c.SQLite.Path = "data/jobs.db"
	}
	if c.SQLite.JobTTL == 0 {
		c.SQLite.JobTTL = 24 * time.Hour
	}
}

// applyEnv overrides config values from LOGSCANNER_ environment variables.
func (c *Config) applyEnv() error {
	if v := os.Getenv("LOGSCANNER_SERVER_ADDRESS"); v != "" {
		c.Server.Address = v
	}
	if v := os.Getenv("LOGSCANNER_MAX_FILE_SIZE"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("LOGSCANNER_MAX_FILE_SIZE: %w", err)
		}
		c.File.MaxSize = n
	}
	if v := os.Getenv("LOGSCANNER_ALLOWED_TYPES"); v != "" {
		c.File.AllowedTypes = splitTrim(v)
	}
	if v := os.Getenv("LOGSCANNER_TEMP_DIR"); v != "" {
		c.Processing.TempDir = v
	}
	if v := os.Getenv("LOGSCANNER_CLICKHOUSE_ADDR"); v != "" {
		c.ClickHouse.Addresses = splitTrim(v)
	}
	if v := os.Getenv("LOGSCANNER_CLICKHOUSE_DATABASE"); v != "" {
		c.ClickHouse.Database = v
	}
	if v := os.Getenv("LOGSCANNER_CLICKHOUSE_USERNAME"); v != "" {
		c.ClickHouse.Username = v
	}
	if v := os.Getenv("LOGSCANNER_CLICKHOUSE_PASSWORD"); v != "" {
		c.ClickHouse.Password = v
	}
	if v := os.Getenv("LOGSCANNER_SQLITE_PATH"); v != "" {
		c.SQLite.Path = v
	}
	if v := os.Getenv("LOGSCANNER_METRICS_ADDRESS"); v != "" {
		c.Metrics.Address = v
	}
	return nil
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Server.Address == "" {
		return fmt.Errorf("server.address is required")
	}
	if c.Server.TLS.Enabled {
		if c.Server.TLS.CertFile == "" {
			return fmt.Errorf("server.tls.cert_file is required when TLS is enabled")
		}
		if c.Server.TLS.KeyFile == "" {
			return fmt.Errorf("server.tls.key_file is required when TLS is enabled")
		}
	}
	if c.File.MaxSize < 0 {
		return fmt.Errorf("file.max-size must not be negative")
	}
	if c.Processing.BatchSize < 0 {
		return fmt.Errorf("processing.batch-size must not be negative")
	}
	if c.Processing.ThreadPool.MaxSize < c.Processing.ThreadPool.CoreSize {
		return fmt.Errorf("processing.thread-pool.max-size must be >= core-size")
	}
	if len(c.ClickHouse.Addresses) == 0 {
		return fmt.Errorf("clickhouse.addresses is required")
	}
	if c.SQLite.Path == "" {
		return fmt.Errorf("sqlite.path is required")
	}
	return nil
}

func splitTrim(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
