// Package config loads the researchgraph configuration from a YAML file,
// the process environment and an optional .env file.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the complete researchgraph configuration.
type Config struct {
	// Provider selects the model backend: openai, anthropic or google.
	Provider string `yaml:"provider"`

	// Model is the provider model name. Empty uses the adapter default.
	Model string `yaml:"model"`

	// APIKey overrides the provider key read from the environment.
	APIKey string `yaml:"api_key"`

	// Corpus is the YAML or JSON article archive searched by researchers.
	Corpus string `yaml:"corpus"`

	Search   SearchConfig   `yaml:"search"`
	Executor ExecutorConfig `yaml:"executor"`
	Store    StoreConfig    `yaml:"store"`
	Log      LogConfig      `yaml:"log"`

	// Tracing turns engine events into OpenTelemetry spans.
	Tracing bool `yaml:"tracing"`
}

// SearchConfig tunes the researcher tools.
type SearchConfig struct {
	Limit     int  `yaml:"limit"`
	BodyChars int  `yaml:"body_chars"`
	Fetch     bool `yaml:"fetch"`
}

// ExecutorConfig maps onto the graph executor options.
type ExecutorConfig struct {
	MaxSteps      int           `yaml:"max_steps"`
	MaxConcurrent int           `yaml:"max_concurrent"`
	NodeTimeout   time.Duration `yaml:"node_timeout"`
	RunBudget     time.Duration `yaml:"run_budget"`
}

// StoreConfig selects the step journal.
type StoreConfig struct {
	// Driver is one of memory, sqlite, mysql or redis.
	Driver string `yaml:"driver"`

	// DSN is the SQLite path or the MySQL data source name.
	DSN string `yaml:"dsn"`

	// Redis connection.
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	TTL      time.Duration `yaml:"ttl"`
}

// LogConfig configures the slog handler.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Provider: "openai",
		Search:   SearchConfig{Limit: 5, BodyChars: 2000},
		Executor: ExecutorConfig{
			MaxSteps:      20,
			MaxConcurrent: 8,
			NodeTimeout:   2 * time.Minute,
		},
		Store: StoreConfig{Driver: "memory"},
		Log:   LogConfig{Level: "info", Format: "text"},
	}
}

// Load reads path over Default. An empty path returns the defaults.
// ${VAR} references in the file are expanded from the environment.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config: %w", err)
	}
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return cfg, nil
}

// LoadEnv loads KEY=VALUE pairs from files into the process environment
// without overriding variables that are already set. Missing files are
// skipped; with no files, ".env" is tried.
func LoadEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if _, err := os.Stat(f); errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return fmt.Errorf("failed to load %s: %w", f, err)
		}
	}
	return nil
}

var apiKeyEnv = map[string]string{
	"openai":    "OPENAI_API_KEY",
	"anthropic": "ANTHROPIC_API_KEY",
	"google":    "GOOGLE_API_KEY",
}

// ResolveAPIKey returns the configured key, falling back to the provider's
// environment variable.
func (c Config) ResolveAPIKey() string {
	if c.APIKey != "" {
		return c.APIKey
	}
	return os.Getenv(apiKeyEnv[c.Provider])
}

// Validate checks the configuration for values the CLI cannot start with.
func (c Config) Validate() error {
	var errs []error

	if _, ok := apiKeyEnv[c.Provider]; !ok {
		errs = append(errs, fmt.Errorf("unknown provider %q (want openai, anthropic or google)", c.Provider))
	}

	switch c.Store.Driver {
	case "memory":
	case "sqlite", "mysql":
		if c.Store.DSN == "" {
			errs = append(errs, fmt.Errorf("store.dsn is required for the %s driver", c.Store.Driver))
		}
	case "redis":
		if c.Store.Addr == "" {
			errs = append(errs, errors.New("store.addr is required for the redis driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown store driver %q", c.Store.Driver))
	}

	if c.Executor.MaxSteps < 0 || c.Executor.MaxConcurrent < 0 {
		errs = append(errs, errors.New("executor limits must not be negative"))
	}
	if c.Executor.NodeTimeout < 0 || c.Executor.RunBudget < 0 {
		errs = append(errs, errors.New("executor durations must not be negative"))
	}

	if _, err := parseLevel(c.Log.Level); err != nil {
		errs = append(errs, err)
	}
	if f := strings.ToLower(c.Log.Format); f != "" && f != "text" && f != "json" {
		errs = append(errs, fmt.Errorf("unknown log format %q", c.Log.Format))
	}

	return errors.Join(errs...)
}

// NewLogger builds the slog logger described by c, writing to w.
func (c LogConfig) NewLogger(w io.Writer) *slog.Logger {
	level, err := parseLevel(c.Level)
	if err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == "error" {
				a.Key = "err"
			}
			return a
		},
	}
	if strings.EqualFold(c.Format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if s == "" {
		return slog.LevelInfo, nil
	}
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("unknown log level %q", s)
	}
	return level, nil
}
