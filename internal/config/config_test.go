package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func lookupFrom(env map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}
}

func TestDefault(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "mock", cfg.Analysis.Provider)
	assert.Equal(t, 0.5, cfg.Analysis.Threshold)
	assert.Equal(t, 2*time.Second, cfg.Analysis.Delay)
	assert.Equal(t, filepath.Join(".mediverify", "mediverify.db"), cfg.DatabasePath())
	assert.Equal(t, filepath.Join(".mediverify", "uploads"), cfg.UploadsDir())
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mediverify.yaml")
	content := `port: "8080"
data_dir: /var/lib/mediverify
analysis:
  provider: ollama
  model: llava:13b
  threshold: 0.2
  delay: 0s
s3:
  bucket: scans
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "ollama", cfg.Analysis.Provider)
	assert.Equal(t, 0.2, cfg.Analysis.Threshold)
	assert.Equal(t, time.Duration(0), cfg.Analysis.Delay)
	assert.Equal(t, 30*time.Second, cfg.Analysis.Timeout)
	assert.Equal(t, "scans", cfg.S3.Bucket)
	assert.Equal(t, "us-east-1", cfg.S3.Region)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestApplyEnv(t *testing.T) {
	cfg := Default()
	err := cfg.applyEnv(lookupFrom(map[string]string{
		"MEDIVERIFY_PORT":             "9000",
		"MEDIVERIFY_THRESHOLD":        "0.8",
		"MEDIVERIFY_ANALYSIS_DELAY":   "150ms",
		"MEDIVERIFY_JWT_SECRET":       "s3cret",
		"MEDIVERIFY_POSTGRES_DSN":     "postgres://localhost/mediverify",
		"MEDIVERIFY_SESSION_IDLE_TTL": "5m",
		"MEDIVERIFY_MAX_SESSIONS":     "50",
		"OPENAI_API_KEY":              "sk-test",
	}))
	require.NoError(t, err)
	assert.Equal(t, "9000", cfg.Port)
	assert.Equal(t, 0.8, cfg.Analysis.Threshold)
	assert.Equal(t, 150*time.Millisecond, cfg.Analysis.Delay)
	assert.Equal(t, "s3cret", cfg.Auth.JWTSecret)
	assert.Equal(t, "postgres://localhost/mediverify", cfg.Postgres.DSN)
	assert.Equal(t, "sk-test", cfg.Analysis.OpenAIKey)
	assert.Equal(t, 5*time.Minute, cfg.Sessions.IdleTTL)
	assert.Equal(t, 50, cfg.Sessions.Max)
}

func TestApplyEnvInvalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"threshold", map[string]string{"MEDIVERIFY_THRESHOLD": "half"}},
		{"delay", map[string]string{"MEDIVERIFY_ANALYSIS_DELAY": "2"}},
		{"migrate", map[string]string{"MEDIVERIFY_POSTGRES_MIGRATE": "maybe"}},
		{"max sessions", map[string]string{"MEDIVERIFY_MAX_SESSIONS": "many"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := Default().applyEnv(lookupFrom(tt.env)); err == nil {
				t.Errorf("Expected error for %v", tt.env)
			}
		})
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"threshold too high", func(c *Config) { c.Analysis.Threshold = 1 }},
		{"negative threshold", func(c *Config) { c.Analysis.Threshold = -0.1 }},
		{"unknown provider", func(c *Config) { c.Analysis.Provider = "oracle" }},
		{"empty port", func(c *Config) { c.Port = "" }},
		{"negative max sessions", func(c *Config) { c.Sessions.Max = -1 }},
		{"bad log level", func(c *Config) { c.LogLevel = "loud" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Errorf("Expected validation error")
			}
		})
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{"", slog.LevelInfo},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		if err != nil {
			t.Errorf("ParseLevel(%q) returned error: %v", tt.in, err)
		}
		if got != tt.want {
			t.Errorf("Expected %v for %q, got %v", tt.want, tt.in, got)
		}
	}
}
