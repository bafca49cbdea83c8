// Package config provides the closure tracer's filter configuration and the
// tool configuration consumed by cmd/closuretrace.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/polisai/closure-trace/pkg/domain"
)

// Environment variables that override file values.
const (
	EnvLogLevel = "CLOSURETRACE_LOG_LEVEL"
	EnvDebug    = "CLOSURETRACE_DEBUG"
	EnvBase     = "CLOSURETRACE_BASE"
)

// Config holds the tool configuration.
type Config struct {
	Logging LoggingConfig `yaml:"logging"`
	Filter  FilterConfig  `yaml:"filter"`

	// Debug enables one log line per registration.
	Debug bool `yaml:"debug"`
}

// LoggingConfig holds configuration for logging.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// FilterConfig locates the filter resources.
type FilterConfig struct {
	BaseFile   string   `yaml:"base_file"`
	SearchPath []string `yaml:"search_path"`

	// PackageIncludes is passed as the registration argument.
	PackageIncludes string `yaml:"package_includes"`
}

// Load reads configuration from a file and applies environment variable overrides.
func Load(path string) (*Config, error) {
	cfg := &Config{
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}

	if path != "" {
		//nolint:gosec // Config file path is controlled by the operator
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

func applyEnvOverrides(cfg *Config) error {
	if val := os.Getenv(EnvLogLevel); val != "" {
		cfg.Logging.Level = val
	}
	if val := os.Getenv(EnvDebug); val != "" {
		debug, err := strconv.ParseBool(val)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", EnvDebug, val, err)
		}
		cfg.Debug = debug
	}
	if val := os.Getenv(EnvBase); val != "" {
		cfg.Filter.BaseFile = val
	}
	if val := os.Getenv(EnvSearchPath); val != "" {
		cfg.Filter.SearchPath = ParseSearchPath(val)
	}
	return nil
}

// FilterOptions translates the file configuration into LoadFilter options.
func (c *Config) FilterOptions() []FilterOption {
	opts := []FilterOption{WithDiscoverer(SearchPath(c.Filter.SearchPath))}
	if c.Filter.BaseFile != "" {
		opts = append(opts, WithBaseFile(c.Filter.BaseFile))
	}
	return opts
}

// Validate performs validation of the entire configuration
func (c *Config) Validate() error {
	if err := c.Logging.Validate(); err != nil {
		return &domain.DomainError{
			Err:     domain.ErrConfigInvalid,
			Code:    "logging",
			Message: fmt.Sprintf("logging configuration: %v", err),
		}
	}
	return nil
}

// Validate performs validation of logging configuration
func (c *LoggingConfig) Validate() error {
	if strings.TrimSpace(c.Level) == "" {
		c.Level = "info"
	}
	if strings.TrimSpace(c.Format) == "" {
		c.Format = "text"
	}

	level := strings.TrimSpace(strings.ToLower(c.Level))
	switch level {
	case "debug", "info", "warn", "error":
		c.Level = level
	default:
		return fmt.Errorf("invalid log level %q, supported levels: debug, info, warn, error", c.Level)
	}

	format := strings.TrimSpace(strings.ToLower(c.Format))
	switch format {
	case "text", "json":
		c.Format = format
	default:
		return fmt.Errorf("invalid log format %q, supported formats: text, json", c.Format)
	}
	return nil
}
