// Package config loads the registry configuration file.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/roach88/resmodel/internal/bootstrap"
	"github.com/roach88/resmodel/internal/compiler"
	"github.com/roach88/resmodel/internal/ir"
)

// Defaults applied by Load and Default.
const (
	DefaultVersion    = bootstrap.DefaultVersion
	DefaultActivation = bootstrap.DefaultActivation
	DefaultLogLevel   = "info"
)

// Config is the content of a resmodel.yaml file.
type Config struct {
	// Specs is the directory holding the CUE resource definitions.
	// Relative paths are resolved against the config file's directory.
	Specs string `yaml:"specs"`

	// Database is the SQLite file. Empty means the default location under
	// DataDir (see bootstrap.StorageDir).
	Database string `yaml:"database,omitempty"`
	Storage  string `yaml:"storage,omitempty"`
	DataDir  string `yaml:"data_dir,omitempty"`

	Activation bootstrap.Activation `yaml:"activation,omitempty"`
	LogLevel   string               `yaml:"log_level,omitempty"`

	// Versions overrides the policy declared next to the definitions.
	Versions *Versions `yaml:"versions,omitempty"`
}

// Versions is the model version policy.
type Versions struct {
	Current    string            `yaml:"current"`
	Thresholds map[string]string `yaml:"thresholds,omitempty"`
}

// Default returns the configuration used without a file.
func Default() *Config {
	return &Config{
		Activation: DefaultActivation,
		LogLevel:   DefaultLogLevel,
	}
}

// Load reads and validates a configuration file. Unknown fields are
// rejected.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	cfg, err := Parse(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	cfg.resolvePaths(filepath.Dir(path))
	return cfg, nil
}

// Parse decodes a configuration document and applies defaults.
func Parse(r io.Reader) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true) // catches typos like "data-dir:"
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if cfg.Activation == "" {
		cfg.Activation = DefaultActivation
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = DefaultLogLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func (c *Config) resolvePaths(base string) {
	for _, p := range []*string{&c.Specs, &c.Database, &c.Storage, &c.DataDir} {
		if *p != "" && *p != ":memory:" && !filepath.IsAbs(*p) {
			*p = filepath.Join(base, *p)
		}
	}
}

// Validate checks field values.
func (c *Config) Validate() error {
	if _, err := bootstrap.ParseActivation(string(c.Activation)); err != nil {
		return err
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		return err
	}
	if c.Versions != nil {
		if _, err := c.Policy(); err != nil {
			return fmt.Errorf("versions: %w", err)
		}
	}
	return nil
}

// VersionSpec returns the configured version override, or nil.
func (c *Config) VersionSpec() *compiler.VersionSpec {
	if c.Versions == nil {
		return nil
	}
	return &compiler.VersionSpec{Current: c.Versions.Current, Thresholds: c.Versions.Thresholds}
}

// Policy parses the configured versions. Without a versions block the
// policy is DefaultVersion with no thresholds.
func (c *Config) Policy() (ir.VersionPolicy, error) {
	if c.Versions == nil {
		return ir.NewVersionPolicy(DefaultVersion, nil)
	}
	return ir.NewVersionPolicy(c.Versions.Current, c.Versions.Thresholds)
}

// ParseLevel maps a log level name to a slog level.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("unknown log level %q", s)
	}
}

// SystemConfig maps the file onto a bootstrap configuration.
func (c *Config) SystemConfig() bootstrap.SystemConfig {
	return bootstrap.SystemConfig{
		SpecsDir:   c.Specs,
		Database:   c.Database,
		Storage:    c.Storage,
		DataDir:    c.DataDir,
		Versions:   c.VersionSpec(),
		Activation: c.Activation,
	}
}
