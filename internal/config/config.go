// Package config provides centralized configuration management for the ingestion pipeline.
// It loads configuration from an optional YAML file and environment variables with
// sensible defaults, and validates all settings on startup to fail fast on misconfiguration.
package config

import (
	"fmt"
	"strings"
	"time"
)

// DefaultExpectedColumns are the header names the on-hand extract must carry.
// Their order matches the positional order of the staging table columns.
var DefaultExpectedColumns = []string{
	"Item_Number", "Item_Description", "Qty", "UOM",
	"Locator", "Subinventory", "Planner", "Organization_Code",
}

// Config holds all pipeline configuration.
// All settings can be configured via environment variables.
type Config struct {
	Source    SourceConfig    `yaml:"source"`
	Local     LocalConfig     `yaml:"local"`
	Stability StabilityConfig `yaml:"stability"`
	Schema    SchemaConfig    `yaml:"schema"`
	Database  DatabaseConfig  `yaml:"database"`
	Load      LoadConfig      `yaml:"load"`
	Logging   LoggingConfig   `yaml:"logging"`
	Schedule  ScheduleConfig  `yaml:"schedule"`
	Status    StatusConfig    `yaml:"status"`
}

// SourceConfig describes where the extract is produced.
type SourceConfig struct {
	// Driver selects the remote source: file or s3 (default: file)
	Driver string `yaml:"driver" env:"SOURCE_DRIVER" default:"file"`

	// Path is the share path of the extract when Driver is file
	Path string `yaml:"path" env:"SOURCE_PATH"`

	// S3Bucket and S3Key locate the extract when Driver is s3
	S3Bucket string `yaml:"s3_bucket" env:"SOURCE_S3_BUCKET"`
	S3Key    string `yaml:"s3_key" env:"SOURCE_S3_KEY"`

	// S3Region is the bucket region (default: us-east-1)
	S3Region string `yaml:"s3_region" env:"SOURCE_S3_REGION" default:"us-east-1"`

	// S3Endpoint overrides the endpoint, e.g. for MinIO
	S3Endpoint string `yaml:"s3_endpoint" env:"SOURCE_S3_ENDPOINT"`

	// S3PathStyle forces path-style addressing (default: false)
	S3PathStyle bool `yaml:"s3_path_style" env:"SOURCE_S3_PATH_STYLE" default:"false"`

	// S3AccessKeyID and S3SecretAccessKey are optional static credentials;
	// the default AWS credential chain is used when empty
	S3AccessKeyID     string `yaml:"s3_access_key_id" env:"SOURCE_S3_ACCESS_KEY_ID"`
	S3SecretAccessKey string `yaml:"s3_secret_access_key" env:"SOURCE_S3_SECRET_ACCESS_KEY"`
}

// LocalConfig holds the local working copy location.
type LocalConfig struct {
	// Path is the fixed local copy of the extract (default: imports/RPT_OnHand.csv)
	Path string `yaml:"path" env:"LOCAL_PATH" default:"imports/RPT_OnHand.csv"`
}

// StabilityConfig controls the wait for the extract to stop growing.
type StabilityConfig struct {
	// Timeout bounds the whole wait (default: 10m)
	Timeout time.Duration `yaml:"timeout" env:"STABILITY_TIMEOUT" default:"10m"`

	// Interval is the polling interval between size samples (default: 5s)
	Interval time.Duration `yaml:"interval" env:"STABILITY_INTERVAL" default:"5s"`
}

// SchemaConfig holds header expectations.
type SchemaConfig struct {
	// ExpectedColumns must all be present in the header, comma-separated
	ExpectedColumns []string `yaml:"expected_columns" env:"SCHEMA_EXPECTED_COLUMNS" default:"Item_Number,Item_Description,Qty,UOM,Locator,Subinventory,Planner,Organization_Code"`

	// SniffBytes is the prefix length inspected for line endings (default: 4096)
	SniffBytes int `yaml:"sniff_bytes" env:"SCHEMA_SNIFF_BYTES" default:"4096"`
}

// DatabaseConfig holds staging store settings.
type DatabaseConfig struct {
	// Driver is the staging store: postgres or mysql (default: postgres)
	Driver string `yaml:"driver" env:"DB_DRIVER" default:"postgres"`

	// URL is the connection string (required)
	// Supports both DATABASE_URL and DB_URL env vars for compatibility
	URL string `yaml:"url" env:"DATABASE_URL" envAlt:"DB_URL" required:"true"`

	// MaxConns is the maximum number of connections in the pool (default: 4)
	MaxConns int `yaml:"max_conns" env:"DB_MAX_CONNS" default:"4"`

	// MinConns is the minimum number of connections to keep open (default: 0)
	MinConns int `yaml:"min_conns" env:"DB_MIN_CONNS" default:"0"`

	// StagingTable is the table replaced on every run (default: existencias_staging)
	StagingTable string `yaml:"staging_table" env:"DB_STAGING_TABLE" default:"existencias_staging"`

	// RecordRuns appends every run record to the ingest_runs table (default: false)
	RecordRuns bool `yaml:"record_runs" env:"DB_RECORD_RUNS" default:"false"`
}

// LoadConfig holds bulk load behaviour.
type LoadConfig struct {
	// InvalidQuantity decides what happens to unparseable quantities: null or reject (default: null)
	InvalidQuantity string `yaml:"invalid_quantity" env:"LOAD_INVALID_QUANTITY" default:"null"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error (default: info)
	Level string `yaml:"level" env:"LOG_LEVEL" default:"info"`

	// Format is the console format: text or json (default: text)
	Format string `yaml:"format" env:"LOG_FORMAT" default:"text"`

	// Dir receives one run log file per calendar day (default: logs)
	Dir string `yaml:"dir" env:"LOG_DIR" default:"logs"`

	// FilePrefix names the daily files <prefix>_YYYY-MM-DD.log (default: onhand)
	FilePrefix string `yaml:"file_prefix" env:"LOG_FILE_PREFIX" default:"onhand"`
}

// ScheduleConfig controls the in-process scheduler.
type ScheduleConfig struct {
	// Interval between runs (default: 1h)
	Interval time.Duration `yaml:"interval" env:"SCHEDULE_INTERVAL" default:"1h"`

	// RunOnStart triggers a run as soon as the scheduler starts (default: true)
	RunOnStart bool `yaml:"run_on_start" env:"SCHEDULE_RUN_ON_START" default:"true"`
}

// StatusConfig holds the run status HTTP server settings.
type StatusConfig struct {
	// Enabled starts the status server in schedule mode (default: false)
	Enabled bool `yaml:"enabled" env:"STATUS_ENABLED" default:"false"`

	// Host is the interface to bind to (default: 127.0.0.1)
	Host string `yaml:"host" env:"STATUS_HOST" default:"127.0.0.1"`

	// Port is the port to listen on (default: 9090)
	Port int `yaml:"port" env:"STATUS_PORT" default:"9090"`
}

// Addr returns the status listen address in host:port format.
func (c *StatusConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// RemoteDescription names the configured source for log lines.
func (c *SourceConfig) RemoteDescription() string {
	if strings.EqualFold(c.Driver, "s3") {
		return "s3://" + c.S3Bucket + "/" + strings.TrimPrefix(c.S3Key, "/")
	}
	return c.Path
}
