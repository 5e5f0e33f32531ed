// Package config loads ephemera settings from ~/.ephemera/config.yaml and
// EPHEMERA_* environment variables.
//
// The cooldown interval and the payload version are deliberately absent:
// they are protocol constants, not settings.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/samber/lo"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "EPHEMERA_"

// Entropy source kinds.
const (
	SourceSystem = "system"
	SourceTPM    = "tpm"
	SourceHWRNG  = "hwrng"
)

// Output formats.
const (
	FormatJSON = "json"
	FormatText = "text"
	FormatCBOR = "cbor"
)

var (
	validSources = []string{SourceSystem, SourceTPM, SourceHWRNG}
	validFormats = []string{FormatJSON, FormatText, FormatCBOR}
)

// Config holds ephemera settings.
type Config struct {
	Entropy EntropyConfig `yaml:"entropy" envPrefix:"ENTROPY_"`
	Output  OutputConfig  `yaml:"output" envPrefix:"OUTPUT_"`
	Trigger TriggerConfig `yaml:"trigger" envPrefix:"TRIGGER_"`
	Debug   DebugConfig   `yaml:"debug" envPrefix:"DEBUG_"`
}

// EntropyConfig selects where key seeds come from.
type EntropyConfig struct {
	Source    string `yaml:"source" env:"SOURCE"`
	TPMPath   string `yaml:"tpm_path" env:"TPM_PATH"`
	HWRNGPath string `yaml:"hwrng_path" env:"HWRNG_PATH"`
	// Retries bounds how often opening and self-checking the source is
	// retried at startup.
	Retries uint64 `yaml:"retries" env:"RETRIES"`
}

// OutputConfig selects how attestations are delivered.
type OutputConfig struct {
	Format      string `yaml:"format" env:"FORMAT"`
	Journal     bool   `yaml:"journal" env:"JOURNAL"`
	JournalPath string `yaml:"journal_path" env:"JOURNAL_PATH"`
}

// TriggerConfig selects the inputs of `ephemera run`.
type TriggerConfig struct {
	GPIO     uint8         `yaml:"gpio" env:"GPIO"`
	Keyboard bool          `yaml:"keyboard" env:"KEYBOARD"`
	Socket   string        `yaml:"socket" env:"SOCKET"`
	Interval time.Duration `yaml:"interval" env:"INTERVAL"`
}

// DebugConfig controls the debug log files.
type DebugConfig struct {
	RetentionDays int `yaml:"retention_days" env:"RETENTION_DAYS"`
}

// Default returns the default configuration.
func Default() *Config {
	dir := Dir()
	return &Config{
		Entropy: EntropyConfig{
			Source:    SourceSystem,
			TPMPath:   "/dev/tpmrm0",
			HWRNGPath: "/dev/hwrng",
			Retries:   5,
		},
		Output: OutputConfig{
			Format:      FormatJSON,
			JournalPath: filepath.Join(dir, "journal.db"),
		},
		Trigger: TriggerConfig{
			Keyboard: true,
		},
		Debug: DebugConfig{
			RetentionDays: 14,
		},
	}
}

// Load reads the config file at path, or ~/.ephemera/config.yaml when path
// is empty, then applies environment overrides and validates the result.
// A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = filepath.Join(Dir(), "config.yaml")
	}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, fmt.Errorf("applying environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks enumerated and numeric settings.
func (c *Config) Validate() error {
	if !lo.Contains(validSources, c.Entropy.Source) {
		return &InvalidValueError{Key: "entropy.source", Value: c.Entropy.Source, Allowed: validSources}
	}
	if !lo.Contains(validFormats, c.Output.Format) {
		return &InvalidValueError{Key: "output.format", Value: c.Output.Format, Allowed: validFormats}
	}
	if c.Trigger.Interval < 0 {
		return &InvalidValueError{Key: "trigger.interval", Value: c.Trigger.Interval.String()}
	}
	if c.Debug.RetentionDays < 0 {
		return &InvalidValueError{Key: "debug.retention_days", Value: fmt.Sprint(c.Debug.RetentionDays)}
	}
	if c.Output.Journal && c.Output.JournalPath == "" {
		return &InvalidValueError{Key: "output.journal_path", Value: ""}
	}
	return nil
}

// Dir returns the path to ~/.ephemera.
func Dir() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".ephemera")
	}
	return filepath.Join(homeDir, ".ephemera")
}

// DebugDir returns the directory for debug log files.
func DebugDir() string {
	return filepath.Join(Dir(), "debug")
}
