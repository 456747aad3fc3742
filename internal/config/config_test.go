package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	cfg := Default()
	cfg.Secret = "s3cret"
	cfg.CallbackBaseURL = "https://subscriber.example/push"
	return cfg
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func hasField(errs []ValidationError, field string) bool {
	for _, e := range errs {
		if strings.Contains(e.Field, field) {
			return true
		}
	}
	return false
}

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, "sha256", cfg.TokenHash)
	assert.Equal(t, 2592000, cfg.LeaseSeconds)
	assert.Equal(t, 24*time.Hour, cfg.RenewWindowDuration())
	assert.Equal(t, time.Hour, cfg.RenewIntervalDuration())
	assert.Equal(t, 30*time.Second, cfg.HTTPTimeoutDuration())
	assert.Equal(t, 4, cfg.RenewConcurrency)
	assert.Empty(t, cfg.Secret)
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	t.Setenv(SecretEnv, "")

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoad_OverlaysDefaults(t *testing.T) {
	t.Setenv(SecretEnv, "")
	path := writeConfig(t, `
database: /var/lib/pushsub/subs.db
callback_base_url: https://subscriber.example/push
secret: file-secret
renew_window: 12h
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/var/lib/pushsub/subs.db", cfg.Database)
	assert.Equal(t, "file-secret", cfg.Secret)
	assert.Equal(t, 12*time.Hour, cfg.RenewWindowDuration())
	assert.Equal(t, ":8080", cfg.Listen, "absent keys keep defaults")
	assert.Equal(t, "sha256", cfg.TokenHash)
}

func TestLoad_EnvSecretOverrides(t *testing.T) {
	t.Setenv(SecretEnv, "env-secret")
	path := writeConfig(t, "secret: file-secret\n")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "env-secret", cfg.Secret)
}

func TestLoad_EmptyFile(t *testing.T) {
	t.Setenv(SecretEnv, "")
	cfg, err := Load(writeConfig(t, ""))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoad_RejectsUnknownKeys(t *testing.T) {
	_, err := Load(writeConfig(t, "secrt: typo\n"))
	assert.Error(t, err)
}

func TestLoad_RejectsMalformedYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "lease_seconds: [\n"))
	assert.Error(t, err)
}

func TestSave_RoundTrip(t *testing.T) {
	t.Setenv(SecretEnv, "")
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	cfg := validConfig()

	require.NoError(t, Save(path, cfg))
	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}

func TestValidate_Valid(t *testing.T) {
	assert.Empty(t, Validate(validConfig()))
}

func TestValidate_Rejections(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
		code   string
	}{
		{"missing secret", func(c *Config) { c.Secret = "" }, "secret", ErrSchemaViolation},
		{"unknown hash", func(c *Config) { c.TokenHash = "md5" }, "token_hash", ErrSchemaViolation},
		{"zero lease", func(c *Config) { c.LeaseSeconds = 0 }, "lease_seconds", ErrSchemaViolation},
		{"relative callback", func(c *Config) { c.CallbackBaseURL = "/push" }, "callback_base_url", ErrSchemaViolation},
		{"concurrency too high", func(c *Config) { c.RenewConcurrency = 1000 }, "renew_concurrency", ErrSchemaViolation},
		{"unknown log level", func(c *Config) { c.LogLevel = "chatty" }, "log_level", ErrSchemaViolation},
		{"bad duration", func(c *Config) { c.RenewWindow = "tomorrow" }, "renew_window", ErrInvalidDuration},
		{"negative duration", func(c *Config) { c.HTTPTimeout = "-5s" }, "http_timeout", ErrInvalidDuration},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)

			errs := Validate(cfg)
			require.NotEmpty(t, errs)
			assert.True(t, hasField(errs, tt.field), "errors: %v", errs)

			var codes []string
			for _, e := range errs {
				codes = append(codes, e.Code)
			}
			assert.Contains(t, codes, tt.code)
		})
	}
}

func TestValidate_ReportsAllErrors(t *testing.T) {
	cfg := validConfig()
	cfg.Secret = ""
	cfg.RenewInterval = "often"

	errs := Validate(cfg)
	assert.True(t, hasField(errs, "secret"))
	assert.True(t, hasField(errs, "renew_interval"))
}

func TestValidate_EmptyCallbackAllowed(t *testing.T) {
	cfg := validConfig()
	cfg.CallbackBaseURL = ""
	assert.Empty(t, Validate(cfg))
}

func TestSlogLevel(t *testing.T) {
	cfg := Default()
	for level, want := range map[string]slog.Level{
		"debug": slog.LevelDebug,
		"INFO":  slog.LevelInfo,
		"warn":  slog.LevelWarn,
		"error": slog.LevelError,
		"":      slog.LevelInfo,
	} {
		cfg.LogLevel = level
		assert.Equal(t, want, cfg.SlogLevel(), level)
	}
}

func TestValidationError_Error(t *testing.T) {
	err := ValidationError{Field: "secret", Message: "required", Code: ErrSchemaViolation}
	assert.Equal(t, "[C100] secret: required", err.Error())
}
