package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// MaxPageSize is the largest page the content API serves.
const MaxPageSize = 100

// Config is the application's configuration model.
// It captures the content API endpoint, credentials and feed tuning.
type Config struct {
	API         APIConfig         `yaml:"api"`
	Credentials CredentialsConfig `yaml:"credentials"`
	Feed        FeedConfig        `yaml:"feed"`
	Storage     StorageConfig     `yaml:"storage"`
	Metrics     MetricsConfig     `yaml:"metrics"`
	Log         LogConfig         `yaml:"log"`
}

type APIConfig struct {
	BaseURL        string  `yaml:"baseURL"`
	TimeoutSeconds int     `yaml:"timeoutSeconds"`
	RPS            float64 `yaml:"rps"`
	Burst          int     `yaml:"burst"`
	MaxAttempts    int     `yaml:"maxAttempts"`
	BaseBackoffMS  int     `yaml:"baseBackoffMs"`
}

type CredentialsConfig struct {
	// Session token. If empty, read from env STUDLY_TOKEN
	Token string `yaml:"token"`
	// Id of the logged-in user; empty means anonymous. Env STUDLY_USER_ID
	UserID string `yaml:"userId"`
}

type FeedConfig struct {
	// A page this size or larger means the source may have more. At most MaxPageSize.
	PageSize int `yaml:"pageSize"`
	// A first personalized page smaller than this exhausts the personalized source. At least 1.
	MinViable           int     `yaml:"minViable"`
	PollIntervalSeconds int     `yaml:"pollIntervalSeconds"`
	PollJitter          float64 `yaml:"pollJitter"` // fraction of the interval, [0,1)
}

type StorageConfig struct {
	DBPath string `yaml:"dbPath"`
}

type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

// Default returns a sensible default configuration.
func Default() Config {
	return Config{
		API: APIConfig{
			BaseURL:        "https://api.studly.app/api",
			TimeoutSeconds: 15,
			RPS:            5,
			Burst:          10,
			MaxAttempts:    3,
			BaseBackoffMS:  500,
		},
		Feed:    FeedConfig{PageSize: 50, MinViable: 5, PollIntervalSeconds: 60, PollJitter: 0.1},
		Storage: StorageConfig{DBPath: "./studly.db"},
		Log:     LogConfig{Level: "info"},
	}
}

// PollInterval returns the configured background refresh interval.
func (f FeedConfig) PollInterval() time.Duration {
	if f.PollIntervalSeconds <= 0 {
		return time.Minute
	}
	return time.Duration(f.PollIntervalSeconds) * time.Second
}

// Timeout returns the per-request HTTP timeout.
func (a APIConfig) Timeout() time.Duration {
	if a.TimeoutSeconds <= 0 {
		return 15 * time.Second
	}
	return time.Duration(a.TimeoutSeconds) * time.Second
}

// ResolveEnv fills in config fields from environment variables if not set.
func (c *Config) ResolveEnv() {
	if v := os.Getenv("STUDLY_API_URL"); v != "" {
		c.API.BaseURL = v
	}
	if c.Credentials.Token == "" {
		c.Credentials.Token = os.Getenv("STUDLY_TOKEN")
	}
	if c.Credentials.UserID == "" {
		c.Credentials.UserID = os.Getenv("STUDLY_USER_ID")
	}
	if c.Metrics.Addr == "" {
		c.Metrics.Addr = os.Getenv("STUDLY_METRICS_ADDR")
	}
	if v := os.Getenv("STUDLY_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("STUDLY_PAGE_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Feed.PageSize = n
		}
	}
}

// Load reads YAML config from path on top of Default. A missing file is
// not an error; env overrides still apply.
func Load(path string) (Config, error) {
	cfg := Default()
	b, err := os.ReadFile(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return cfg, err
	}
	if err == nil {
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	}
	cfg.ResolveEnv()
	return cfg, cfg.Validate()
}

// Validate rejects configurations the feed session cannot run with.
func (c Config) Validate() error {
	if c.API.BaseURL == "" {
		return errors.New("api.baseURL is required")
	}
	if c.Feed.PageSize <= 0 || c.Feed.PageSize > MaxPageSize {
		return fmt.Errorf("feed.pageSize must be within [1, %d]", MaxPageSize)
	}
	if c.Feed.MinViable < 1 || c.Feed.MinViable > c.Feed.PageSize {
		return errors.New("feed.minViable must be within [1, pageSize]")
	}
	if c.Feed.PollJitter < 0 || c.Feed.PollJitter >= 1 {
		return errors.New("feed.pollJitter must be within [0, 1)")
	}
	return nil
}

// Save writes YAML config to path, creating directories as needed.
func Save(path string, cfg Config) error {
	if path == "" {
		return errors.New("empty path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	b, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o600)
}
