package config

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// FileEnv names the environment variable pointing at an optional YAML config file.
const FileEnv = "ONHAND_CONFIG_FILE"

// Load reads configuration in three layers: struct defaults, the optional YAML
// file named by ONHAND_CONFIG_FILE, then environment variables.
// Returns an error if required values are missing or validation fails.
func Load() (*Config, error) {
	cfg := &Config{}
	root := reflect.ValueOf(cfg).Elem()

	if err := applyDefaults(root); err != nil {
		return nil, fmt.Errorf("config defaults: %w", err)
	}

	if path := os.Getenv(FileEnv); path != "" {
		if err := loadFile(path, cfg); err != nil {
			return nil, fmt.Errorf("config file: %w", err)
		}
	}

	if err := applyEnv(root); err != nil {
		return nil, fmt.Errorf("config load: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

// MustLoad loads configuration and panics on error.
// Use this only in main() where early termination is desired.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load configuration: %v", err))
	}
	return cfg
}

// loadFile decodes a YAML document over cfg. Keys absent from the file keep their defaults.
func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

// applyDefaults recursively sets every field carrying a default tag.
func applyDefaults(v reflect.Value) error {
	return walk(v, func(field reflect.StructField, fieldVal reflect.Value) error {
		def := field.Tag.Get("default")
		if def == "" {
			return nil
		}
		if err := setField(fieldVal, def); err != nil {
			return fmt.Errorf("invalid default for %s=%q: %w", field.Tag.Get("env"), def, err)
		}
		return nil
	})
}

// applyEnv recursively overrides fields from environment variables and
// enforces required fields that are still unset afterwards.
func applyEnv(v reflect.Value) error {
	return walk(v, func(field reflect.StructField, fieldVal reflect.Value) error {
		envName := field.Tag.Get("env")
		envAlt := field.Tag.Get("envAlt")
		required := field.Tag.Get("required") == "true"

		if envName == "" {
			return nil
		}

		// Try primary env var, then alternate
		value := os.Getenv(envName)
		if value == "" && envAlt != "" {
			value = os.Getenv(envAlt)
		}

		if value == "" {
			if required && fieldVal.IsZero() {
				return fmt.Errorf("required environment variable %s is not set", envName)
			}
			return nil
		}

		if err := setField(fieldVal, value); err != nil {
			return fmt.Errorf("invalid value for %s=%q: %w", envName, value, err)
		}
		return nil
	})
}

// walk visits every settable leaf field, recursing into nested structs.
func walk(v reflect.Value, fn func(reflect.StructField, reflect.Value) error) error {
	t := v.Type()

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		fieldVal := v.Field(i)

		// Skip unexported fields
		if !fieldVal.CanSet() {
			continue
		}

		if field.Type.Kind() == reflect.Struct && field.Type != reflect.TypeOf(time.Time{}) {
			if err := walk(fieldVal, fn); err != nil {
				return err
			}
			continue
		}

		if err := fn(field, fieldVal); err != nil {
			return err
		}
	}

	return nil
}

// setField sets a reflect.Value from a string based on its type.
func setField(field reflect.Value, value string) error {
	switch field.Kind() {
	case reflect.String:
		field.SetString(value)

	case reflect.Int, reflect.Int64:
		// Handle time.Duration specially
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			d, err := time.ParseDuration(value)
			if err != nil {
				return fmt.Errorf("invalid duration: %w", err)
			}
			field.Set(reflect.ValueOf(d))
		} else {
			i, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid integer: %w", err)
			}
			field.SetInt(i)
		}

	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid boolean: %w", err)
		}
		field.SetBool(b)

	case reflect.Slice:
		if field.Type().Elem().Kind() == reflect.String {
			// Split comma-separated values, trim whitespace
			parts := strings.Split(value, ",")
			result := make([]string, 0, len(parts))
			for _, p := range parts {
				p = strings.TrimSpace(p)
				if p != "" {
					result = append(result, p)
				}
			}
			field.Set(reflect.ValueOf(result))
		} else {
			return fmt.Errorf("unsupported slice type: %s", field.Type().Elem().Kind())
		}

	default:
		return fmt.Errorf("unsupported field type: %s", field.Kind())
	}

	return nil
}

// Validate checks that the configuration is valid.
// Returns an error describing all validation failures.
func (c *Config) Validate() error {
	var errs []string

	// Source validation
	switch strings.ToLower(c.Source.Driver) {
	case "file":
		if c.Source.Path == "" {
			errs = append(errs, "SOURCE_PATH is required when SOURCE_DRIVER is file")
		}
	case "s3":
		if c.Source.S3Bucket == "" || c.Source.S3Key == "" {
			errs = append(errs, "SOURCE_S3_BUCKET and SOURCE_S3_KEY are required when SOURCE_DRIVER is s3")
		}
	default:
		errs = append(errs, fmt.Sprintf("SOURCE_DRIVER (%q) must be one of: file, s3", c.Source.Driver))
	}

	if c.Local.Path == "" {
		errs = append(errs, "LOCAL_PATH is required")
	}

	// Stability validation
	if c.Stability.Timeout <= 0 {
		errs = append(errs, "STABILITY_TIMEOUT must be positive")
	}
	if c.Stability.Interval <= 0 {
		errs = append(errs, "STABILITY_INTERVAL must be positive")
	}
	if c.Stability.Interval > 0 && c.Stability.Timeout > 0 && c.Stability.Interval >= c.Stability.Timeout {
		errs = append(errs, fmt.Sprintf("STABILITY_INTERVAL (%s) must be shorter than STABILITY_TIMEOUT (%s)",
			c.Stability.Interval, c.Stability.Timeout))
	}

	// Schema validation
	if len(c.Schema.ExpectedColumns) == 0 {
		errs = append(errs, "SCHEMA_EXPECTED_COLUMNS must list at least one column")
	}
	seen := make(map[string]bool, len(c.Schema.ExpectedColumns))
	for _, col := range c.Schema.ExpectedColumns {
		if seen[col] {
			errs = append(errs, fmt.Sprintf("SCHEMA_EXPECTED_COLUMNS lists %q more than once", col))
		}
		seen[col] = true
	}
	if c.Schema.SniffBytes <= 0 {
		errs = append(errs, "SCHEMA_SNIFF_BYTES must be positive")
	}

	// Database validation
	if c.Database.URL == "" {
		errs = append(errs, "DATABASE_URL is required")
	}
	validDrivers := map[string]bool{"postgres": true, "mysql": true}
	if !validDrivers[strings.ToLower(c.Database.Driver)] {
		errs = append(errs, fmt.Sprintf("DB_DRIVER (%q) must be one of: postgres, mysql", c.Database.Driver))
	}
	if c.Database.MaxConns < c.Database.MinConns {
		errs = append(errs, fmt.Sprintf("DB_MAX_CONNS (%d) must be >= DB_MIN_CONNS (%d)",
			c.Database.MaxConns, c.Database.MinConns))
	}
	if c.Database.MaxConns <= 0 {
		errs = append(errs, "DB_MAX_CONNS must be positive")
	}
	if c.Database.MinConns < 0 {
		errs = append(errs, "DB_MIN_CONNS must be non-negative")
	}
	if c.Database.StagingTable == "" {
		errs = append(errs, "DB_STAGING_TABLE is required")
	}

	// Load validation
	validModes := map[string]bool{"null": true, "reject": true}
	if !validModes[strings.ToLower(c.Load.InvalidQuantity)] {
		errs = append(errs, fmt.Sprintf("LOAD_INVALID_QUANTITY (%q) must be one of: null, reject", c.Load.InvalidQuantity))
	}

	// Logging validation
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, fmt.Sprintf("LOG_LEVEL (%q) must be one of: debug, info, warn, error", c.Logging.Level))
	}

	validFormats := map[string]bool{"text": true, "json": true}
	if !validFormats[strings.ToLower(c.Logging.Format)] {
		errs = append(errs, fmt.Sprintf("LOG_FORMAT (%q) must be one of: text, json", c.Logging.Format))
	}
	if c.Logging.Dir == "" {
		errs = append(errs, "LOG_DIR is required")
	}

	// Schedule validation
	if c.Schedule.Interval <= 0 {
		errs = append(errs, "SCHEDULE_INTERVAL must be positive")
	}

	// Status validation
	if c.Status.Enabled && (c.Status.Port <= 0 || c.Status.Port > 65535) {
		errs = append(errs, fmt.Sprintf("STATUS_PORT (%d) must be 1-65535", c.Status.Port))
	}

	if len(errs) > 0 {
		return errors.New("validation failed:\n  - " + strings.Join(errs, "\n  - "))
	}

	return nil
}

// String returns a safe string representation of the config for logging.
// Sensitive values like database URLs are masked.
func (c *Config) String() string {
	var b strings.Builder
	b.WriteString("Config{")
	b.WriteString(fmt.Sprintf("Source: {Driver: %q, Remote: %q}, ", c.Source.Driver, c.Source.RemoteDescription()))
	b.WriteString(fmt.Sprintf("Local: {Path: %q}, ", c.Local.Path))
	b.WriteString(fmt.Sprintf("Stability: {Timeout: %s, Interval: %s}, ", c.Stability.Timeout, c.Stability.Interval))
	b.WriteString(fmt.Sprintf("Schema: {ExpectedColumns: %v}, ", c.Schema.ExpectedColumns))
	b.WriteString(fmt.Sprintf("Database: {Driver: %q, URL: [MASKED], StagingTable: %q}, ",
		c.Database.Driver, c.Database.StagingTable))
	b.WriteString(fmt.Sprintf("Load: {InvalidQuantity: %q}, ", c.Load.InvalidQuantity))
	b.WriteString(fmt.Sprintf("Logging: {Level: %q, Format: %q, Dir: %q}",
		c.Logging.Level, c.Logging.Format, c.Logging.Dir))
	b.WriteString("}")
	return b.String()
}
