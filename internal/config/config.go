// Package config provides configuration management for pushsub.
//
// Configuration is read from a YAML file, filled in with defaults for
// absent keys, and checked against an embedded CUE schema. The signing
// secret may come from the PUSHSUB_SECRET environment variable instead of
// the file.
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"gopkg.in/yaml.v3"

	"github.com/roach88/pushsub/internal/model"
)

//go:embed schema.cue
var schemaSource string

// SecretEnv overrides the secret from the file when set.
const SecretEnv = "PUSHSUB_SECRET"

// Validation error codes (C100-C199)
const (
	ErrSchemaViolation = "C100" // value rejected by the schema
	ErrInvalidDuration = "C101" // duration string does not parse
	ErrSchemaBroken    = "C102" // embedded schema failed to compile
)

// Config represents the pushsub configuration.
type Config struct {
	// Database is the SQLite file path.
	Database string `yaml:"database"`

	// Listen is the address the callback server binds.
	Listen string `yaml:"listen"`

	// CallbackBaseURL is the public URL hubs call back on. Subscription
	// IDs are appended as the last path segment.
	CallbackBaseURL string `yaml:"callback_base_url"`

	Secret    string `yaml:"secret"`
	TokenHash string `yaml:"token_hash"`

	LeaseSeconds     int    `yaml:"lease_seconds"`
	RenewWindow      string `yaml:"renew_window"`
	RenewInterval    string `yaml:"renew_interval"`
	RenewConcurrency int    `yaml:"renew_concurrency"`
	HTTPTimeout      string `yaml:"http_timeout"`
	LogLevel         string `yaml:"log_level"`
}

// ValidationError describes one rejected configuration value.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

// Default returns a default configuration. The secret is left empty.
func Default() *Config {
	return &Config{
		Database:         filepath.Join(dataDir(), "pushsub.db"),
		Listen:           ":8080",
		TokenHash:        "sha256",
		LeaseSeconds:     model.DefaultLeaseSeconds,
		RenewWindow:      "24h",
		RenewInterval:    "1h",
		RenewConcurrency: 4,
		HTTPTimeout:      "30s",
		LogLevel:         "info",
	}
}

// DefaultPath returns the default configuration file path.
func DefaultPath() string {
	return filepath.Join(dataDir(), "config.yaml")
}

func dataDir() string {
	homeDir, _ := os.UserHomeDir()
	return filepath.Join(homeDir, ".pushsub")
}

// Load reads the configuration at path over the defaults. An empty path
// means DefaultPath; a missing file yields the defaults. Unknown keys are
// rejected. The result is not validated.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultPath()
	}

	cfg := Default()

	f, err := os.Open(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		slog.Debug("config file not found, using defaults", "path", path)
	case err != nil:
		return nil, fmt.Errorf("open config: %w", err)
	default:
		defer f.Close()
		dec := yaml.NewDecoder(f)
		dec.KnownFields(true)
		if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if secret := os.Getenv(SecretEnv); secret != "" {
		cfg.Secret = secret
	}
	return cfg, nil
}

// Save writes cfg to path as YAML, creating the directory if needed.
func Save(path string, cfg *Config) error {
	if path == "" {
		path = DefaultPath()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	return os.WriteFile(path, data, 0o600)
}

// Validate checks cfg against the schema and parses its durations.
// Returns all errors found (does not fail-fast).
func Validate(cfg *Config) []ValidationError {
	ctx := cuecontext.New()

	schema := ctx.CompileString(schemaSource, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return []ValidationError{{Field: "schema", Message: err.Error(), Code: ErrSchemaBroken}}
	}

	value := schema.LookupPath(cue.ParsePath("#Config")).Unify(ctx.Encode(cfg.fields()))

	var errs []ValidationError
	if err := value.Validate(cue.Concrete(true)); err != nil {
		for _, e := range cueerrors.Errors(err) {
			format, args := e.Msg()
			errs = append(errs, ValidationError{
				Field:   strings.Join(e.Path(), "."),
				Message: fmt.Sprintf(format, args...),
				Code:    ErrSchemaViolation,
			})
		}
	}

	for field, raw := range map[string]string{
		"renew_window":   cfg.RenewWindow,
		"renew_interval": cfg.RenewInterval,
		"http_timeout":   cfg.HTTPTimeout,
	} {
		if raw == "" {
			continue
		}
		if d, err := time.ParseDuration(raw); err != nil || d <= 0 {
			errs = append(errs, ValidationError{
				Field:   field,
				Message: fmt.Sprintf("%q is not a positive duration", raw),
				Code:    ErrInvalidDuration,
			})
		}
	}
	return errs
}

// fields returns cfg keyed by its YAML names for schema unification.
func (c *Config) fields() map[string]any {
	return map[string]any{
		"database":          c.Database,
		"listen":            c.Listen,
		"callback_base_url": c.CallbackBaseURL,
		"secret":            c.Secret,
		"token_hash":        c.TokenHash,
		"lease_seconds":     c.LeaseSeconds,
		"renew_window":      c.RenewWindow,
		"renew_interval":    c.RenewInterval,
		"renew_concurrency": c.RenewConcurrency,
		"http_timeout":      c.HTTPTimeout,
		"log_level":         c.LogLevel,
	}
}

// RenewWindowDuration returns the parsed renew window, or 24h when it
// does not parse.
func (c *Config) RenewWindowDuration() time.Duration {
	return parseOr(c.RenewWindow, 24*time.Hour)
}

// RenewIntervalDuration returns the parsed renew interval, or 1h when it
// does not parse.
func (c *Config) RenewIntervalDuration() time.Duration {
	return parseOr(c.RenewInterval, time.Hour)
}

// HTTPTimeoutDuration returns the parsed hub request timeout, or 30s when
// it does not parse.
func (c *Config) HTTPTimeoutDuration() time.Duration {
	return parseOr(c.HTTPTimeout, 30*time.Second)
}

// SlogLevel maps LogLevel to a slog level. Unknown values map to info.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func parseOr(raw string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
