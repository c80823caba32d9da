// Package config loads crashkit settings from YAML.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/strongdm/crashkit/pkg/crashkit"
	"github.com/strongdm/crashkit/pkg/crashkit/report"
	"github.com/strongdm/crashkit/pkg/crashkit/sinks/cxdb"
)

// ErrInvalid is wrapped by every Validate failure.
var ErrInvalid = errors.New("invalid config")

// Config holds all crashkit configuration.
type Config struct {
	Router     RouterConfig     `yaml:"router"`
	Translator TranslatorConfig `yaml:"translator"`
	Report     ReportConfig     `yaml:"report"`
	Sinks      SinksConfig      `yaml:"sinks"`
	Tasks      TasksConfig      `yaml:"tasks"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// RouterConfig configures the uncaught failure router.
type RouterConfig struct {
	ExitCode int `yaml:"exit_code"` // 1-255
	// Monitor re-executes the process so runtime panics the router cannot
	// recover are still reported.
	Monitor bool `yaml:"monitor"`
}

// TranslatorConfig configures stack trace translation.
type TranslatorConfig struct {
	SourceExtension string `yaml:"source_extension"`
	MaxCauseDepth   int    `yaml:"max_cause_depth"`
}

// ReportConfig configures the report client.
type ReportConfig struct {
	Version        string        `yaml:"version"`
	MaxBreadcrumbs int           `yaml:"max_breadcrumbs"`
	MaxKeys        int           `yaml:"max_keys"`
	Scrub          bool          `yaml:"scrub"`
	FlushTimeout   time.Duration `yaml:"flush_timeout"` // 0 = wait for the sink
	ContextID      uint64        `yaml:"context_id"`
}

// SinksConfig selects report destinations.
type SinksConfig struct {
	Stderr StderrConfig `yaml:"stderr"`
	Async  AsyncConfig  `yaml:"async"`
	CXDB   CXDBConfig   `yaml:"cxdb"`
}

// StderrConfig configures the human-readable sink.
type StderrConfig struct {
	Enabled bool `yaml:"enabled"`
	Verbose bool `yaml:"verbose"`
}

// AsyncConfig wraps the other sinks in a background queue.
type AsyncConfig struct {
	Enabled   bool `yaml:"enabled"`
	QueueSize int  `yaml:"queue_size"`
}

// CXDBConfig configures the cxdb sink. An empty address disables it.
type CXDBConfig struct {
	Address   string   `yaml:"address"`
	ClientTag string   `yaml:"client_tag"`
	Labels    []string `yaml:"labels"`
	ContextID uint64   `yaml:"context_id"`
}

// Enabled reports whether an address is configured.
func (c CXDBConfig) Enabled() bool {
	return c.Address != ""
}

// TasksConfig configures the background task scheduler.
type TasksConfig struct {
	Limit int `yaml:"limit"` // 0 = unbounded
}

// LoggingConfig configures the zap logger.
type LoggingConfig struct {
	Level       string `yaml:"level"` // debug, info, warn, error
	Development bool   `yaml:"development"`
}

// ValidLevels lists the accepted logging levels.
var ValidLevels = []string{"debug", "info", "warn", "error"}

// DefaultConfig returns the built-in configuration.
func DefaultConfig() *Config {
	return &Config{
		Router: RouterConfig{
			ExitCode: crashkit.DefaultExitCode,
		},
		Translator: TranslatorConfig{
			SourceExtension: crashkit.DefaultSourceExtension,
			MaxCauseDepth:   crashkit.DefaultMaxCauseDepth,
		},
		Report: ReportConfig{
			Version:        report.Version,
			MaxBreadcrumbs: report.DefaultMaxBreadcrumbs,
			MaxKeys:        report.DefaultMaxKeys,
			Scrub:          true,
		},
		Sinks: SinksConfig{
			Stderr: StderrConfig{Enabled: true},
			Async:  AsyncConfig{QueueSize: 1000},
			CXDB: CXDBConfig{
				ClientTag: cxdb.DefaultClientTag,
				Labels:    append([]string(nil), cxdb.DefaultLabels...),
			},
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load reads path over the defaults. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}

// Save writes the configuration as YAML, creating parent directories.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// Validate checks value ranges. Every failure wraps ErrInvalid.
func (c *Config) Validate() error {
	var errs []error
	invalid := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalid}, args...)...))
	}

	if c.Router.ExitCode < 1 || c.Router.ExitCode > 255 {
		invalid("router.exit_code %d out of range 1-255", c.Router.ExitCode)
	}
	if c.Translator.SourceExtension == "" || strings.ContainsAny(c.Translator.SourceExtension, ". /") {
		invalid("translator.source_extension %q must be a bare extension", c.Translator.SourceExtension)
	}
	if c.Translator.MaxCauseDepth < 1 {
		invalid("translator.max_cause_depth must be positive")
	}
	if c.Report.MaxBreadcrumbs < 0 {
		invalid("report.max_breadcrumbs must not be negative")
	}
	if c.Report.MaxKeys < 0 {
		invalid("report.max_keys must not be negative")
	}
	if c.Report.FlushTimeout < 0 {
		invalid("report.flush_timeout must not be negative")
	}
	if c.Sinks.Async.Enabled && c.Sinks.Async.QueueSize < 1 {
		invalid("sinks.async.queue_size must be positive")
	}
	if c.Tasks.Limit < 0 {
		invalid("tasks.limit must not be negative")
	}

	validLevel := false
	for _, l := range ValidLevels {
		if c.Logging.Level == l {
			validLevel = true
			break
		}
	}
	if !validLevel {
		invalid("logging.level %q (valid: %v)", c.Logging.Level, ValidLevels)
	}

	return errors.Join(errs...)
}
