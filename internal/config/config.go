package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ErrMissingAPIKey is returned when an operation needs the YouTube API key
// and none was configured.
var ErrMissingAPIKey = errors.New("youtube api key required (set youtube.api_key or YOUTUBE_API_KEY)")

// Config is the root configuration.
type Config struct {
	Database DatabaseConfig `yaml:"database"`
	YouTube  YouTubeConfig  `yaml:"youtube"`
	Ingest   IngestConfig   `yaml:"ingest"`
	Schedule ScheduleConfig `yaml:"schedule"`
	Alerts   AlertsConfig   `yaml:"alerts"`
	Server   ServerConfig   `yaml:"server"`
	Log      LogConfig      `yaml:"log"`
}

// DatabaseConfig configures SQLite storage.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// YouTubeConfig configures the YouTube Data API client.
type YouTubeConfig struct {
	APIKey            string  `yaml:"api_key"`
	BaseURL           string  `yaml:"base_url"`
	FeedURL           string  `yaml:"feed_url"`
	Timeout           string  `yaml:"timeout"`
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Retries           int     `yaml:"retries"`
	RetryDelay        string  `yaml:"retry_delay"`
}

// ParseTimeout returns the per-request timeout as time.Duration.
func (y YouTubeConfig) ParseTimeout() time.Duration {
	d, err := time.ParseDuration(y.Timeout)
	if err != nil || d <= 0 {
		return 30 * time.Second
	}
	return d
}

// ParseRetryDelay returns the delay between retries as time.Duration.
func (y YouTubeConfig) ParseRetryDelay() time.Duration {
	d, err := time.ParseDuration(y.RetryDelay)
	if err != nil || d < 0 {
		return time.Second
	}
	return d
}

// IngestConfig holds the alert rules and backfill settings of the pipeline.
type IngestConfig struct {
	// GrowthThresholds maps the hour a run executes at to the daily view
	// growth that raises a growth alert. Hours not listed skip the check.
	GrowthThresholds map[int]int64 `yaml:"growth_thresholds"`
	MilestoneViews   int64         `yaml:"milestone_views"`
	AnomalyViews     int64         `yaml:"anomaly_views"`
	BackfillDays     int           `yaml:"backfill_days"`
	MaxComments      int           `yaml:"max_comments"`
	MinCommentLength int           `yaml:"min_comment_length"`
}

// ScheduleConfig configures the daemon's fixed run hours.
type ScheduleConfig struct {
	Hours      []int  `yaml:"hours"`
	Timezone   string `yaml:"timezone"`
	RunOnStart bool   `yaml:"run_on_start"`
}

// Location resolves the configured timezone, falling back to the local one.
func (s ScheduleConfig) Location() *time.Location {
	if s.Timezone == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(s.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
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

// WebhookConfig for generic webhook alerts.
type WebhookConfig struct {
	Enabled bool   `yaml:"enabled"`
	URL     string `yaml:"url"`
	Secret  string `yaml:"secret"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// LogConfig configures the slog handler.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "text" or "json"
}

// SlogLevel maps the configured level name onto slog.Level.
func (l LogConfig) SlogLevel() slog.Level {
	switch strings.ToLower(l.Level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Database: DatabaseConfig{Path: "./vidpulse.db"},
		YouTube: YouTubeConfig{
			BaseURL:           "https://www.googleapis.com/youtube/v3",
			FeedURL:           "https://www.youtube.com/feeds/videos.xml",
			Timeout:           "30s",
			RequestsPerSecond: 5,
			RetryDelay:        "1s",
		},
		Ingest: IngestConfig{
			GrowthThresholds: map[int]int64{
				9:  10_000,
				12: 30_000,
				18: 50_000,
			},
			MilestoneViews:   100_000,
			AnomalyViews:     5_000,
			BackfillDays:     30,
			MaxComments:      100,
			MinCommentLength: 3,
		},
		Schedule: ScheduleConfig{Hours: []int{9, 12, 18}},
		Server:   ServerConfig{Port: 8080},
		Log:      LogConfig{Level: "info", Format: "text"},
	}
}

// Load reads configuration from a YAML file and applies env var overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		// A thresholds map in the file replaces the defaults instead of
		// merging into them.
		cfg.Ingest.GrowthThresholds = nil
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
		if cfg.Ingest.GrowthThresholds == nil {
			cfg.Ingest.GrowthThresholds = Default().Ingest.GrowthThresholds
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// RequireAPIKey reports ErrMissingAPIKey when no API key is configured.
func (c *Config) RequireAPIKey() error {
	if strings.TrimSpace(c.YouTube.APIKey) == "" {
		return ErrMissingAPIKey
	}
	return nil
}

func (c *Config) validate() error {
	for hour := range c.Ingest.GrowthThresholds {
		if hour < 0 || hour > 23 {
			return fmt.Errorf("ingest.growth_thresholds: hour %d out of range 0-23", hour)
		}
	}
	for _, hour := range c.Schedule.Hours {
		if hour < 0 || hour > 23 {
			return fmt.Errorf("schedule.hours: hour %d out of range 0-23", hour)
		}
	}
	if c.Ingest.BackfillDays < 0 {
		return fmt.Errorf("ingest.backfill_days must not be negative")
	}
	return nil
}

// applyEnvOverrides overrides config values with environment variables.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("VIDPULSE_DB_PATH"); v != "" {
		cfg.Database.Path = v
	}
	if v := os.Getenv("YOUTUBE_API_KEY"); v != "" {
		cfg.YouTube.APIKey = v
	}
	if v := os.Getenv("VIDPULSE_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("SLACK_WEBHOOK_URL"); v != "" {
		cfg.Alerts.Slack.WebhookURL = v
		cfg.Alerts.Slack.Enabled = true
	}
	if v := os.Getenv("DISCORD_WEBHOOK_URL"); v != "" {
		cfg.Alerts.Discord.WebhookURL = v
		cfg.Alerts.Discord.Enabled = true
	}
	if v := os.Getenv("VIDPULSE_WEBHOOK_URL"); v != "" {
		cfg.Alerts.Webhook.URL = v
		cfg.Alerts.Webhook.Enabled = true
	}
}
