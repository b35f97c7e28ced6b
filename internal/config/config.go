// Package config loads the service configuration from YAML with
// environment overrides layered on top.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"trendfeed/pkg/content"
)

// Config is the root configuration.
type Config struct {
	Database    DatabaseConfig         `yaml:"database"`
	Refresh     RefreshConfig          `yaml:"refresh"`
	Scoring     ScoringConfig          `yaml:"scoring"`
	Cache       CacheConfig            `yaml:"cache"`
	Health      HealthConfig           `yaml:"health"`
	Alerts      AlertsConfig           `yaml:"alerts"`
	Server      ServerConfig           `yaml:"server"`
	Logging     LoggingConfig          `yaml:"logging"`
	Credentials CredentialsConfig      `yaml:"credentials"`
	Sources     []content.SourceConfig `yaml:"sources"`
	Keywords    []string               `yaml:"keywords"`
}

// DatabaseConfig selects the storage backend.
type DatabaseConfig struct {
	Driver string `yaml:"driver"` // "sqlite" or "postgres"
	DSN    string `yaml:"dsn"`
}

// RefreshConfig tunes the freshness coordinator and the scheduler.
type RefreshConfig struct {
	Staleness       string `yaml:"staleness"`
	FetchTimeout    string `yaml:"fetch_timeout"`
	Interval        string `yaml:"interval"`
	HackerNewsLimit int    `yaml:"hackernews_limit"`
}

// ParseStaleness returns the freshness window as a duration.
func (r RefreshConfig) ParseStaleness() time.Duration {
	return parseDuration(r.Staleness, 15*time.Minute)
}

// ParseFetchTimeout returns the per-adapter fetch budget.
func (r RefreshConfig) ParseFetchTimeout() time.Duration {
	return parseDuration(r.FetchTimeout, 10*time.Second)
}

// ParseInterval returns the scheduler warm-refresh interval.
func (r RefreshConfig) ParseInterval() time.Duration {
	return parseDuration(r.Interval, 15*time.Minute)
}

// WeightsConfig are the trending signal weights.
type WeightsConfig struct {
	Priority   float64 `yaml:"priority"`
	Engagement float64 `yaml:"engagement"`
	Recency    float64 `yaml:"recency"`
	Keyword    float64 `yaml:"keyword"`
}

// ScoringConfig tunes the scoring engine.
type ScoringConfig struct {
	Weights           WeightsConfig `yaml:"weights"`
	RecencyHalfLife   string        `yaml:"recency_half_life"`
	UsePercentiles    bool          `yaml:"use_percentiles"`
	CategoryRebalance bool          `yaml:"category_rebalance"`
}

// ParseRecencyHalfLife returns the recency decay half-life.
func (s ScoringConfig) ParseRecencyHalfLife() time.Duration {
	return parseDuration(s.RecencyHalfLife, 24*time.Hour)
}

// CacheConfig tunes the ranked-result cache.
type CacheConfig struct {
	TTL           string `yaml:"ttl"`
	MaxEntries    int    `yaml:"max_entries"`
	SweepInterval string `yaml:"sweep_interval"`
}

// ParseTTL returns the cache entry lifetime.
func (c CacheConfig) ParseTTL() time.Duration {
	return parseDuration(c.TTL, 5*time.Minute)
}

// ParseSweepInterval returns the expired-entry sweep interval.
func (c CacheConfig) ParseSweepInterval() time.Duration {
	return parseDuration(c.SweepInterval, time.Minute)
}

// HealthConfig tunes the source health tracker.
type HealthConfig struct {
	FailureThreshold int `yaml:"failure_threshold"`
}

// AlertsConfig configures alert destinations.
type AlertsConfig struct {
	Slack   SlackConfig   `yaml:"slack"`
	Discord DiscordConfig `yaml:"discord"`
	Webhook WebhookConfig `yaml:"webhook"`
}

// SlackConfig for Slack webhook alerts.
type SlackConfig struct {
	Enabled    bool   `yaml:"enabled"`
	WebhookURL string `yaml:"webhook_url"`
}

// DiscordConfig for Discord webhook alerts.
type DiscordConfig struct {
	Enabled    bool   `yaml:"enabled"`
	WebhookURL string `yaml:"webhook_url"`
}

// WebhookConfig for generic signed webhook alerts.
type WebhookConfig struct {
	Enabled bool   `yaml:"enabled"`
	URL     string `yaml:"url"`
	Secret  string `yaml:"secret"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// LoggingConfig configures log output.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
}

// CredentialsConfig carries API credentials for auth-gated adapters.
type CredentialsConfig struct {
	GitHubToken        string `yaml:"github_token"`
	RedditClientID     string `yaml:"reddit_client_id"`
	RedditClientSecret string `yaml:"reddit_client_secret"`
}

// Default returns a Config with sensible defaults and the reference
// source set.
func Default() *Config {
	return &Config{
		Database: DatabaseConfig{Driver: "sqlite", DSN: "./trendfeed.db"},
		Refresh: RefreshConfig{
			Staleness:       "15m",
			FetchTimeout:    "10s",
			Interval:        "15m",
			HackerNewsLimit: 100,
		},
		Scoring: ScoringConfig{
			Weights: WeightsConfig{
				Priority:   0.15,
				Engagement: 0.50,
				Recency:    0.25,
				Keyword:    0.10,
			},
			RecencyHalfLife:   "24h",
			UsePercentiles:    true,
			CategoryRebalance: true,
		},
		Cache: CacheConfig{
			TTL:           "5m",
			MaxEntries:    256,
			SweepInterval: "1m",
		},
		Health:  HealthConfig{FailureThreshold: 3},
		Server:  ServerConfig{Port: 8080},
		Logging: LoggingConfig{Level: "info"},
		Sources: defaultSources(),
	}
}

func defaultSources() []content.SourceConfig {
	return []content.SourceConfig{
		{
			ID: "hackernews", Name: "Hacker News",
			Category: content.CategoryCommunity, Kind: content.KindHackerNews,
			Method: content.MethodAPI, Priority: 4, Quality: content.TierCommunity,
		},
		{
			ID: "github-trending", Name: "GitHub Trending",
			Category: content.CategoryCode, Kind: content.KindGitHub,
			Method: content.MethodAPI, Priority: 3, Quality: content.TierEstablished,
		},
		{
			ID: "techcrunch", Name: "TechCrunch",
			Category: content.CategoryNews, Kind: content.KindFeed,
			Method: content.MethodFeed, URL: "https://techcrunch.com/feed/",
			Priority: 3, Quality: content.TierEstablished,
		},
		{
			ID: "verge", Name: "The Verge",
			Category: content.CategoryNews, Kind: content.KindFeed,
			Method: content.MethodFeed, URL: "https://www.theverge.com/rss/index.xml",
			Priority: 3, Quality: content.TierEstablished,
		},
		{
			ID: "arxiv-cs-ai", Name: "arXiv cs.AI",
			Category: content.CategoryResearch, Kind: content.KindFeed,
			Method: content.MethodFeed, URL: "https://rss.arxiv.org/rss/cs.AI",
			Priority: 2, Quality: content.TierOfficial,
		},
		{
			ID: "medium-engineering", Name: "Medium Engineering",
			Category: content.CategoryResearch, Kind: content.KindMedium,
			Method: content.MethodFeed, URL: "https://medium.com/feed/tag/engineering",
			Priority: 2, Quality: content.TierCommunity,
		},
		{
			ID: "lobsters", Name: "Lobsters",
			Category: content.CategoryCommunity, Kind: content.KindFeed,
			Method: content.MethodFeed, URL: "https://lobste.rs/rss",
			Priority: 2, Quality: content.TierCommunity,
		},
		{
			ID: "r-programming", Name: "r/programming",
			Category: content.CategoryCommunity, Kind: content.KindReddit,
			Method: content.MethodAPI, URL: "https://reddit.com/r/programming",
			NeedsAuth: true, Priority: 2, Quality: content.TierCommunity,
		},
		{
			ID: "youtube-tech", Name: "YouTube Tech",
			Category: content.CategoryVideo, Kind: content.KindYouTube,
			Method: content.MethodAPI, NeedsAuth: true,
			Priority: 2, Quality: content.TierEstablished,
		},
		{
			ID: "techmeme", Name: "Techmeme",
			Category: content.CategoryNews, Kind: content.KindFeed,
			Method: content.MethodScrape, URL: "https://www.techmeme.com/",
			Priority: 2, Quality: content.TierEstablished,
			Scrape: &content.ScrapeRules{
				Item:  ".clus",
				Title: ".ourh",
				URL:   ".ourh",
			},
		},
	}
}

// Load reads configuration from a YAML file and applies env var
// overrides. An empty path loads the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)
	return cfg, nil
}

// applyEnvOverrides overrides config values with environment variables.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("TRENDFEED_DB_DRIVER"); v != "" {
		cfg.Database.Driver = v
	}
	if v := os.Getenv("TRENDFEED_DB_DSN"); v != "" {
		cfg.Database.DSN = v
	}
	if v := os.Getenv("TRENDFEED_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("TRENDFEED_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("GITHUB_TOKEN"); v != "" {
		cfg.Credentials.GitHubToken = v
	}
	if v := os.Getenv("REDDIT_CLIENT_ID"); v != "" {
		cfg.Credentials.RedditClientID = v
	}
	if v := os.Getenv("REDDIT_CLIENT_SECRET"); v != "" {
		cfg.Credentials.RedditClientSecret = v
	}
	if v := os.Getenv("SLACK_WEBHOOK_URL"); v != "" {
		cfg.Alerts.Slack.WebhookURL = v
		cfg.Alerts.Slack.Enabled = true
	}
	if v := os.Getenv("DISCORD_WEBHOOK_URL"); v != "" {
		cfg.Alerts.Discord.WebhookURL = v
		cfg.Alerts.Discord.Enabled = true
	}
	if v := os.Getenv("ALERT_WEBHOOK_URL"); v != "" {
		cfg.Alerts.Webhook.URL = v
		cfg.Alerts.Webhook.Enabled = true
	}
	if v := os.Getenv("ALERT_WEBHOOK_SECRET"); v != "" {
		cfg.Alerts.Webhook.Secret = v
	}
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
