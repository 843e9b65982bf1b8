package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the complete engine configuration loaded from YAML.
// Credentials are deliberately absent; they come from the environment.
// Durations appear in the file as unit-suffixed integers
// (interval_secs, backoff_ms); the derived time.Duration fields are
// filled by ApplyDefaults.
type Config struct {
	Sources    []SourceConfig   `yaml:"sources"`
	Defaults   DefaultsConfig   `yaml:"defaults"`
	Thresholds ThresholdsConfig `yaml:"thresholds"`
	Retention  RetentionConfig  `yaml:"retention"`
	Lexicons   LexiconsConfig   `yaml:"lexicons"`
	Client     ClientConfig     `yaml:"client"`
	Alerts     []AlertRule      `yaml:"alerts"`
	HTTP       HTTPConfig       `yaml:"http"`
	Redis      RedisConfig      `yaml:"redis"`
	Export     ExportConfig     `yaml:"export"`
}

// SourceConfig describes one subreddit to poll.
type SourceConfig struct {
	Name         string `yaml:"name"`
	Category     string `yaml:"category"`      // listing kind: hot, new, rising, top
	IntervalSecs int    `yaml:"interval_secs"` // zero means defaults.poll_interval_secs
	Limit        int    `yaml:"limit"`         // zero means defaults.fetch_limit
	Speculative  bool   `yaml:"speculative"`   // speculative-by-default source

	Interval time.Duration `yaml:"-"`
}

// DefaultsConfig holds per-source fallbacks and engine-wide timers.
type DefaultsConfig struct {
	PollIntervalSecs    int `yaml:"poll_interval_secs"`
	FetchLimit          int `yaml:"fetch_limit"`
	ShutdownTimeoutSecs int `yaml:"shutdown_timeout_secs"`
	SweepIntervalSecs   int `yaml:"sweep_interval_secs"`

	PollInterval    time.Duration `yaml:"-"`
	ShutdownTimeout time.Duration `yaml:"-"`
	SweepInterval   time.Duration `yaml:"-"`
}

// ThresholdsConfig holds the engagement cutoffs used by the analyzer
// and the monitor's ingest filter.
type ThresholdsConfig struct {
	PriorityScore    int `yaml:"priority_score"`
	PriorityComments int `yaml:"priority_comments"`
	MinScore         int `yaml:"min_score"`
	MinComments      int `yaml:"min_comments"`
}

// RetentionConfig bounds the live aggregate window.
type RetentionConfig struct {
	WindowHours  int `yaml:"window_hours"`
	PriorityRing int `yaml:"priority_ring"` // priority ring buffer capacity
}

// LexiconsConfig supplies the keyword tables. These are data, not
// code; defaults exist only so an empty config still runs.
type LexiconsConfig struct {
	Bullish     []string `yaml:"bullish"`
	Bearish     []string `yaml:"bearish"`
	Speculative []string `yaml:"speculative"`
	Tickers     []string `yaml:"tickers"` // bare-token allow-list
}

// ClientConfig tunes the source client's pacing and retry behaviour.
type ClientConfig struct {
	BaseURL       string  `yaml:"base_url"`
	AuthURL       string  `yaml:"auth_url"`
	RPS           float64 `yaml:"rps"`
	Burst         int     `yaml:"burst"`
	MaxRetries    int     `yaml:"max_retries"`
	BackoffBaseMS int     `yaml:"backoff_base_ms"`
	BackoffMaxMS  int     `yaml:"backoff_max_ms"`
	TimeoutSecs   int     `yaml:"timeout_secs"`

	BackoffBase time.Duration `yaml:"-"`
	BackoffMax  time.Duration `yaml:"-"`
	Timeout     time.Duration `yaml:"-"`
}

// AlertRule triggers when a ticker accumulates mentions faster than
// the configured rate, or a source's speculative ratio crosses a bar.
type AlertRule struct {
	Name             string  `yaml:"name"`
	Ticker           string  `yaml:"ticker,omitempty"` // empty matches any symbol
	MinMentions      int     `yaml:"min_mentions,omitempty"`
	WindowMins       int     `yaml:"window_mins,omitempty"`
	Source           string  `yaml:"source,omitempty"`
	SpeculativeRatio float64 `yaml:"speculative_ratio,omitempty"`

	Window time.Duration `yaml:"-"`
}

// HTTPConfig controls the read-only query server.
type HTTPConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// RedisConfig controls the optional export publisher.
type RedisConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
	Key     string `yaml:"key"`
	Channel string `yaml:"channel"`
	TTLSecs int    `yaml:"ttl_secs"`

	TTL time.Duration `yaml:"-"`
}

// ExportConfig controls periodic JSON exports.
type ExportConfig struct {
	Dir          string `yaml:"dir"`
	IntervalSecs int    `yaml:"interval_secs"`

	Interval time.Duration `yaml:"-"`
}

// Credentials are read from the environment and never serialized.
type Credentials struct {
	ClientID     string
	ClientSecret string
	UserAgent    string
}

// Load reads and validates a config file, filling in defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return &cfg, nil
}

// Default returns a runnable configuration matching the engine's
// stock tuning.
func Default() *Config {
	cfg := &Config{
		Sources: []SourceConfig{
			{Name: "wallstreetbets", Category: "hot", Speculative: true},
			{Name: "stocks", Category: "hot"},
			{Name: "investing", Category: "hot"},
			{Name: "pennystocks", Category: "new", Speculative: true},
			{Name: "options", Category: "hot"},
		},
	}
	cfg.ApplyDefaults()
	return cfg
}

// ApplyDefaults fills zero-valued fields with stock settings and
// derives the duration fields from their file representations.
func (c *Config) ApplyDefaults() {
	if c.Defaults.PollIntervalSecs == 0 {
		c.Defaults.PollIntervalSecs = 60
	}
	if c.Defaults.FetchLimit == 0 {
		c.Defaults.FetchLimit = 25
	}
	if c.Defaults.ShutdownTimeoutSecs == 0 {
		c.Defaults.ShutdownTimeoutSecs = 30
	}
	if c.Defaults.SweepIntervalSecs == 0 {
		c.Defaults.SweepIntervalSecs = 300
	}
	c.Defaults.PollInterval = time.Duration(c.Defaults.PollIntervalSecs) * time.Second
	c.Defaults.ShutdownTimeout = time.Duration(c.Defaults.ShutdownTimeoutSecs) * time.Second
	c.Defaults.SweepInterval = time.Duration(c.Defaults.SweepIntervalSecs) * time.Second

	if c.Thresholds.PriorityScore == 0 {
		c.Thresholds.PriorityScore = 100
	}
	if c.Thresholds.PriorityComments == 0 {
		c.Thresholds.PriorityComments = 25
	}
	if c.Thresholds.MinScore == 0 {
		c.Thresholds.MinScore = 10
	}
	if c.Thresholds.MinComments == 0 {
		c.Thresholds.MinComments = 5
	}
	if c.Retention.WindowHours == 0 {
		c.Retention.WindowHours = 24
	}
	if c.Retention.PriorityRing == 0 {
		c.Retention.PriorityRing = 200
	}
	if len(c.Lexicons.Bullish) == 0 {
		c.Lexicons.Bullish = []string{"buy", "bull", "bullish", "moon", "rocket", "strong", "growth", "profit", "calls"}
	}
	if len(c.Lexicons.Bearish) == 0 {
		c.Lexicons.Bearish = []string{"sell", "bear", "bearish", "crash", "dump", "loss", "decline", "drop", "puts"}
	}
	if len(c.Lexicons.Tickers) == 0 {
		c.Lexicons.Tickers = []string{
			"AAPL", "TSLA", "NVDA", "AMD", "MSFT", "AMZN", "GOOG", "META",
			"GME", "AMC", "PLTR", "SPY", "QQQ", "BB", "NOK", "SOFI", "HOOD",
		}
	}
	if len(c.Lexicons.Speculative) == 0 {
		c.Lexicons.Speculative = []string{"yolo", "moon", "rocket", "tendies", "diamond hands", "hodl", "squeeze", "gamma", "short interest"}
	}

	if c.Client.BaseURL == "" {
		c.Client.BaseURL = "https://oauth.reddit.com"
	}
	if c.Client.AuthURL == "" {
		c.Client.AuthURL = "https://www.reddit.com/api/v1/access_token"
	}
	if c.Client.RPS == 0 {
		c.Client.RPS = 1
	}
	if c.Client.Burst == 0 {
		c.Client.Burst = 5
	}
	if c.Client.MaxRetries == 0 {
		c.Client.MaxRetries = 3
	}
	if c.Client.BackoffBaseMS == 0 {
		c.Client.BackoffBaseMS = 1000
	}
	if c.Client.BackoffMaxMS == 0 {
		c.Client.BackoffMaxMS = 30000
	}
	if c.Client.TimeoutSecs == 0 {
		c.Client.TimeoutSecs = 15
	}
	c.Client.BackoffBase = time.Duration(c.Client.BackoffBaseMS) * time.Millisecond
	c.Client.BackoffMax = time.Duration(c.Client.BackoffMaxMS) * time.Millisecond
	c.Client.Timeout = time.Duration(c.Client.TimeoutSecs) * time.Second

	if c.HTTP.Addr == "" {
		c.HTTP.Addr = "127.0.0.1:8080"
	}
	if c.Redis.Key == "" {
		c.Redis.Key = "reddwatch:export:latest"
	}
	if c.Redis.Channel == "" {
		c.Redis.Channel = "reddwatch:exports"
	}
	if c.Redis.TTLSecs == 0 {
		c.Redis.TTLSecs = 3600
	}
	c.Redis.TTL = time.Duration(c.Redis.TTLSecs) * time.Second

	if c.Export.Dir == "" {
		c.Export.Dir = "exports"
	}
	if c.Export.IntervalSecs == 0 {
		c.Export.IntervalSecs = 300
	}
	c.Export.Interval = time.Duration(c.Export.IntervalSecs) * time.Second

	for i := range c.Sources {
		if c.Sources[i].Category == "" {
			c.Sources[i].Category = "hot"
		}
		if c.Sources[i].IntervalSecs == 0 {
			c.Sources[i].IntervalSecs = c.Defaults.PollIntervalSecs
		}
		if c.Sources[i].Limit == 0 {
			c.Sources[i].Limit = c.Defaults.FetchLimit
		}
		c.Sources[i].Interval = time.Duration(c.Sources[i].IntervalSecs) * time.Second
	}

	for i := range c.Alerts {
		c.Alerts[i].Window = time.Duration(c.Alerts[i].WindowMins) * time.Minute
	}
}

// Validate rejects configurations the engine cannot run with.
func (c *Config) Validate() error {
	if len(c.Sources) == 0 {
		return fmt.Errorf("at least one source must be configured")
	}
	seen := make(map[string]bool, len(c.Sources))
	for _, s := range c.Sources {
		if s.Name == "" {
			return fmt.Errorf("source with empty name")
		}
		if seen[s.Name] {
			return fmt.Errorf("duplicate source %q", s.Name)
		}
		seen[s.Name] = true
		switch s.Category {
		case "hot", "new", "rising", "top":
		default:
			return fmt.Errorf("source %q: unknown category %q", s.Name, s.Category)
		}
	}
	if c.Retention.WindowHours < 1 {
		return fmt.Errorf("retention window must be at least 1 hour")
	}
	for _, r := range c.Alerts {
		if r.Name == "" {
			return fmt.Errorf("alert rule with empty name")
		}
		if r.MinMentions == 0 && r.SpeculativeRatio == 0 {
			return fmt.Errorf("alert rule %q: no trigger condition", r.Name)
		}
		if r.MinMentions > 0 && r.Window == 0 {
			return fmt.Errorf("alert rule %q: mention rule needs a window", r.Name)
		}
	}
	return nil
}

// Window returns the retention window as a duration.
func (c *Config) Window() time.Duration {
	return time.Duration(c.Retention.WindowHours) * time.Hour
}

// CredentialsFromEnv reads API credentials from the environment. The
// secret is never logged anywhere.
func CredentialsFromEnv() Credentials {
	ua := os.Getenv("REDDIT_USER_AGENT")
	if ua == "" {
		ua = "reddwatch/1.0"
	}
	return Credentials{
		ClientID:     os.Getenv("REDDIT_CLIENT_ID"),
		ClientSecret: os.Getenv("REDDIT_CLIENT_SECRET"),
		UserAgent:    ua,
	}
}
