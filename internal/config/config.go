// Package config loads civicwatch settings from an optional YAML file and
// the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/abelbrown/civicwatch/internal/feeds"
	"github.com/abelbrown/civicwatch/internal/fetch"
)

// Cache backends.
const (
	BackendFile     = "file"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
)

// ErrMissingAPIKey is returned by RequireAI when no Gemini key is set.
var ErrMissingAPIKey = errors.New("GEMINI_API_KEY not found: add it to your environment or .env file")

// Config is the complete application configuration.
type Config struct {
	Feeds    FeedsConfig    `yaml:"feeds"`
	Fetch    FetchConfig    `yaml:"fetch"`
	Cache    CacheConfig    `yaml:"cache"`
	Gemini   GeminiConfig   `yaml:"gemini"`
	Analysis AnalysisConfig `yaml:"analysis"`
	HTTP     HTTPConfig     `yaml:"http"`
	Logging  LoggingConfig  `yaml:"logging"`
	Telegram TelegramConfig `yaml:"telegram"`
}

// FeedsConfig lists the sources and the batch limits.
type FeedsConfig struct {
	Sources          []feeds.Source `yaml:"sources"`
	PerSourceLimit   int            `yaml:"per_source_limit"`
	TotalLimit       int            `yaml:"total_limit"`
	AggregateTimeout time.Duration  `yaml:"aggregate_timeout"` // zero disables
}

// FetchConfig tunes the HTTP fetcher.
type FetchConfig struct {
	Timeout    time.Duration `yaml:"timeout"`
	MaxRetries int           `yaml:"max_retries"`
	RetryDelay time.Duration `yaml:"retry_delay"`
	UserAgent  string        `yaml:"user_agent"`
}

// CacheConfig selects where the fallback batch and the last report live.
type CacheConfig struct {
	Backend     string `yaml:"backend"`
	Dir         string `yaml:"dir"`
	SQLitePath  string `yaml:"sqlite_path"`
	PostgresDSN string `yaml:"postgres_dsn"`
	NewsKey     string `yaml:"news_key"`
	AnalysisKey string `yaml:"analysis_key"`
}

// GeminiConfig holds the generative AI settings.
type GeminiConfig struct {
	APIKey            string        `yaml:"api_key"`
	Model             string        `yaml:"model"`
	Endpoint          string        `yaml:"endpoint"`
	Timeout           time.Duration `yaml:"timeout"`
	RequestsPerSecond float64       `yaml:"requests_per_second"`
}

// AnalysisConfig tunes the dispatcher.
type AnalysisConfig struct {
	Concurrency int `yaml:"concurrency"`
}

// HTTPConfig configures the web endpoint.
type HTTPConfig struct {
	Addr            string        `yaml:"addr"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// LoggingConfig sets the log level and, for the interactive shell, the file.
type LoggingConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

// TelegramConfig is the optional broadcast sink.
type TelegramConfig struct {
	BotToken string `yaml:"bot_token"`
	ChatID   int64  `yaml:"chat_id"`
}

// Default returns the reference settings.
func Default() *Config {
	return &Config{
		Feeds: FeedsConfig{
			Sources:        feeds.DefaultSources(),
			PerSourceLimit: 5,
			TotalLimit:     15,
		},
		Fetch: FetchConfig{
			Timeout:    fetch.DefaultTimeout,
			MaxRetries: fetch.DefaultMaxRetries,
			RetryDelay: fetch.DefaultRetryDelay,
			UserAgent:  fetch.DefaultUserAgent,
		},
		Cache: CacheConfig{
			Backend:     BackendFile,
			Dir:         "cache",
			SQLitePath:  filepath.Join("cache", "civicwatch.db"),
			NewsKey:     "news_cache.json",
			AnalysisKey: "analysis_output.json",
		},
		Gemini: GeminiConfig{
			Model:             "gemini-2.0-flash",
			Timeout:           60 * time.Second,
			RequestsPerSecond: 1,
		},
		Analysis: AnalysisConfig{
			Concurrency: 2,
		},
		HTTP: HTTPConfig{
			Addr:            ":5000",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    10 * time.Minute,
			ShutdownTimeout: 10 * time.Second,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load returns Default overlaid with the YAML file at path (if any) and
// then the environment. ${VAR} references in the file are expanded before
// decoding. A missing path is only an error when it was given explicitly.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		expanded := os.ExpandEnv(string(raw))
		if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config yaml: %w", err)
		}
	}

	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overrides settings from environment variables. lookup is
// os.LookupEnv outside tests.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	get := func(key string) (string, bool) {
		v, ok := lookup(key)
		v = strings.TrimSpace(v)
		return v, ok && v != ""
	}

	if v, ok := get("GOOGLE_API_KEY"); ok {
		c.Gemini.APIKey = v
	}
	if v, ok := get("GEMINI_API_KEY"); ok {
		c.Gemini.APIKey = v
	}
	if v, ok := get("GEMINI_MODEL"); ok {
		c.Gemini.Model = v
	}
	if v, ok := get("CIVICWATCH_ADDR"); ok {
		c.HTTP.Addr = v
	}
	if v, ok := get("CIVICWATCH_CACHE_BACKEND"); ok {
		c.Cache.Backend = strings.ToLower(v)
	}
	if v, ok := get("CIVICWATCH_DATA_DIR"); ok {
		c.Cache.Dir = v
		c.Cache.SQLitePath = filepath.Join(v, "civicwatch.db")
	}
	if v, ok := get("CIVICWATCH_POSTGRES_DSN"); ok {
		c.Cache.PostgresDSN = v
	}
	if v, ok := get("CIVICWATCH_LOG_LEVEL"); ok {
		c.Logging.Level = v
	}
	if v, ok := get("TELEGRAM_BOT_TOKEN"); ok {
		c.Telegram.BotToken = v
	}
	if v, ok := get("TELEGRAM_CHAT_ID"); ok {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid TELEGRAM_CHAT_ID %q: %w", v, err)
		}
		c.Telegram.ChatID = id
	}
	return nil
}

// Validate rejects settings the pipeline cannot run with.
func (c *Config) Validate() error {
	var errs []error

	if c.Feeds.PerSourceLimit < 1 {
		errs = append(errs, fmt.Errorf("feeds.per_source_limit must be at least 1, got %d", c.Feeds.PerSourceLimit))
	}
	if c.Feeds.TotalLimit < 1 {
		errs = append(errs, fmt.Errorf("feeds.total_limit must be at least 1, got %d", c.Feeds.TotalLimit))
	}
	if c.Feeds.AggregateTimeout < 0 {
		errs = append(errs, fmt.Errorf("feeds.aggregate_timeout must not be negative"))
	}
	for i, s := range c.Feeds.Sources {
		if strings.TrimSpace(s.URL) == "" {
			errs = append(errs, fmt.Errorf("feeds.sources[%d] has no url", i))
		}
	}
	if c.Fetch.MaxRetries < 1 {
		errs = append(errs, fmt.Errorf("fetch.max_retries must be at least 1, got %d", c.Fetch.MaxRetries))
	}
	if c.Fetch.RetryDelay < 0 {
		errs = append(errs, fmt.Errorf("fetch.retry_delay must not be negative"))
	}
	if c.Fetch.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("fetch.timeout must be positive"))
	}
	if c.Analysis.Concurrency < 1 {
		errs = append(errs, fmt.Errorf("analysis.concurrency must be at least 1, got %d", c.Analysis.Concurrency))
	}
	if c.Gemini.RequestsPerSecond < 0 {
		errs = append(errs, fmt.Errorf("gemini.requests_per_second must not be negative"))
	}

	switch c.Cache.Backend {
	case BackendFile:
		if c.Cache.Dir == "" {
			errs = append(errs, fmt.Errorf("cache.dir is required for the file backend"))
		}
	case BackendSQLite:
		if c.Cache.SQLitePath == "" {
			errs = append(errs, fmt.Errorf("cache.sqlite_path is required for the sqlite backend"))
		}
	case BackendPostgres:
		if c.Cache.PostgresDSN == "" {
			errs = append(errs, fmt.Errorf("cache.postgres_dsn is required for the postgres backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown cache backend %q", c.Cache.Backend))
	}
	if c.Cache.NewsKey == "" || c.Cache.AnalysisKey == "" {
		errs = append(errs, fmt.Errorf("cache.news_key and cache.analysis_key are required"))
	}

	return errors.Join(errs...)
}

// RequireAI reports whether the commands that call the AI service can run.
func (c *Config) RequireAI() error {
	if strings.TrimSpace(c.Gemini.APIKey) == "" {
		return ErrMissingAPIKey
	}
	return nil
}

// TelegramEnabled reports whether both bot token and chat id are set.
func (c *Config) TelegramEnabled() bool {
	return c.Telegram.BotToken != "" && c.Telegram.ChatID != 0
}
