// Package config resolves runtime settings from defaults, an optional YAML
// file and MEDIVERIFY_* environment variables, in that order. Command line
// flags are applied last by the cmd package.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const envPrefix = "MEDIVERIFY_"

type Config struct {
	Port     string `yaml:"port"`
	LogLevel string `yaml:"log_level"`

	// DataDir holds the SQLite database and locally stored uploads.
	DataDir string `yaml:"data_dir"`
	// SQLitePath overrides DataDir/mediverify.db.
	SQLitePath string `yaml:"sqlite_path"`

	Analysis AnalysisConfig `yaml:"analysis"`
	Auth     AuthConfig     `yaml:"auth"`
	Postgres PostgresConfig `yaml:"postgres"`
	S3       S3Config       `yaml:"s3"`
	Sessions SessionsConfig `yaml:"sessions"`
}

type AnalysisConfig struct {
	// Provider is mock, ollama, openai or gemini.
	Provider  string        `yaml:"provider"`
	Model     string        `yaml:"model"`
	Threshold float64       `yaml:"threshold"`
	Delay     time.Duration `yaml:"delay"`
	Timeout   time.Duration `yaml:"timeout"`
	RetryWait time.Duration `yaml:"retry_wait"`

	OllamaURL    string `yaml:"ollama_url"`
	OpenAIURL    string `yaml:"openai_url"`
	OpenAIKey    string `yaml:"-"`
	GeminiAPIKey string `yaml:"-"`
}

type AuthConfig struct {
	JWTSecret string        `yaml:"-"`
	TokenTTL  time.Duration `yaml:"token_ttl"`
}

// SessionsConfig bounds the server's in-memory workflow sessions.
type SessionsConfig struct {
	IdleTTL time.Duration `yaml:"idle_ttl"`
	Max     int           `yaml:"max"`
}

type PostgresConfig struct {
	DSN     string `yaml:"dsn"`
	Migrate bool   `yaml:"migrate"`
}

type S3Config struct {
	Bucket    string `yaml:"bucket"`
	Region    string `yaml:"region"`
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"-"`
	SecretKey string `yaml:"-"`
}

func Default() *Config {
	return &Config{
		Port:     "5000",
		LogLevel: "info",
		DataDir:  ".mediverify",
		Analysis: AnalysisConfig{
			Provider:  "mock",
			Threshold: 0.5,
			Delay:     2 * time.Second,
			Timeout:   30 * time.Second,
			RetryWait: 500 * time.Millisecond,
		},
		Auth: AuthConfig{
			TokenTTL: 24 * time.Hour,
		},
		Postgres: PostgresConfig{
			Migrate: true,
		},
		S3: S3Config{
			Region: "us-east-1",
		},
		Sessions: SessionsConfig{
			IdleTTL: 30 * time.Minute,
			Max:     1000,
		},
	}
}

// Load returns the defaults overlaid with path (if not empty) and the
// environment.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(name string, dst *string) {
		if v, ok := lookup(envPrefix + name); ok && v != "" {
			*dst = v
		}
	}
	dur := func(name string, dst *time.Duration) error {
		v, ok := lookup(envPrefix + name)
		if !ok || v == "" {
			return nil
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid %s%s: %w", envPrefix, name, err)
		}
		*dst = d
		return nil
	}

	str("PORT", &c.Port)
	str("LOG_LEVEL", &c.LogLevel)
	str("DATA_DIR", &c.DataDir)
	str("SQLITE_PATH", &c.SQLitePath)
	str("PROVIDER", &c.Analysis.Provider)
	str("MODEL", &c.Analysis.Model)
	str("JWT_SECRET", &c.Auth.JWTSecret)
	str("POSTGRES_DSN", &c.Postgres.DSN)
	str("S3_BUCKET", &c.S3.Bucket)
	str("S3_REGION", &c.S3.Region)
	str("S3_ENDPOINT", &c.S3.Endpoint)
	str("S3_ACCESS_KEY", &c.S3.AccessKey)
	str("S3_SECRET_KEY", &c.S3.SecretKey)

	// provider credentials keep the names the providers document
	if v, ok := lookup("OLLAMA_URL"); ok && v != "" {
		c.Analysis.OllamaURL = v
	}
	if v, ok := lookup("OPENAI_API_KEY"); ok {
		c.Analysis.OpenAIKey = v
	}
	if v, ok := lookup("OPENAI_BASE_URL"); ok && v != "" {
		c.Analysis.OpenAIURL = v
	}
	if v, ok := lookup("GEMINI_API_KEY"); ok {
		c.Analysis.GeminiAPIKey = v
	}

	if v, ok := lookup(envPrefix + "THRESHOLD"); ok && v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("invalid %sTHRESHOLD: %w", envPrefix, err)
		}
		c.Analysis.Threshold = f
	}
	if v, ok := lookup(envPrefix + "POSTGRES_MIGRATE"); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid %sPOSTGRES_MIGRATE: %w", envPrefix, err)
		}
		c.Postgres.Migrate = b
	}
	if err := dur("ANALYSIS_DELAY", &c.Analysis.Delay); err != nil {
		return err
	}
	if err := dur("ANALYSIS_TIMEOUT", &c.Analysis.Timeout); err != nil {
		return err
	}
	if err := dur("SESSION_IDLE_TTL", &c.Sessions.IdleTTL); err != nil {
		return err
	}
	if v, ok := lookup(envPrefix + "MAX_SESSIONS"); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %sMAX_SESSIONS: %w", envPrefix, err)
		}
		c.Sessions.Max = n
	}
	return dur("TOKEN_TTL", &c.Auth.TokenTTL)
}

func (c *Config) Validate() error {
	if c.Analysis.Threshold < 0 || c.Analysis.Threshold >= 1 {
		return fmt.Errorf("threshold must be in [0,1), got %v", c.Analysis.Threshold)
	}
	switch c.Analysis.Provider {
	case "mock", "ollama", "openai", "gemini":
	default:
		return fmt.Errorf("unknown analysis provider %q", c.Analysis.Provider)
	}
	if c.Port == "" {
		return fmt.Errorf("port is required")
	}
	if c.Sessions.Max < 0 || c.Sessions.IdleTTL < 0 {
		return fmt.Errorf("session limits must not be negative")
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

// DatabasePath is where the durable key/value store lives.
func (c *Config) DatabasePath() string {
	if c.SQLitePath != "" {
		return c.SQLitePath
	}
	return filepath.Join(c.DataDir, "mediverify.db")
}

// UploadsDir is where the disk image store writes.
func (c *Config) UploadsDir() string {
	return filepath.Join(c.DataDir, "uploads")
}

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
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", s)
	}
}

// SetupLogging installs a text handler on stderr as the default logger.
func SetupLogging(level string) {
	lvl, err := ParseLevel(level)
	if err != nil {
		slog.Warn("Falling back to info logging", "err", err)
	}
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})
	slog.SetDefault(slog.New(handler))
}
