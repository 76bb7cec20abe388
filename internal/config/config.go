package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// ServerConfig holds server configuration
type ServerConfig struct {
	Addr        string   `env:"SERVER_ADDR" envDefault:":8080"`
	CORSOrigins []string `env:"CORS_ORIGINS" envSeparator:"," envDefault:"http://localhost:3000"`
}

// MLBConfig holds the upstream stats API settings
type MLBConfig struct {
	BaseURL           string        `env:"MLB_BASE_URL" envDefault:"https://statsapi.mlb.com"`
	RequestsPerSecond float64       `env:"MLB_REQUESTS_PER_SECOND" envDefault:"5"`
	Timeout           time.Duration `env:"MLB_TIMEOUT" envDefault:"10s"`
}

// RedisConfig holds Redis connection configuration.
// An empty URL disables the snapshot mirror, delta streams and highlight dedup.
type RedisConfig struct {
	URL      string        `env:"REDIS_URL"`
	Password string        `env:"REDIS_PASSWORD"`
	DedupTTL time.Duration `env:"DEDUP_TTL" envDefault:"24h"`
}

// ReplayConfig controls the in-process consumers
type ReplayConfig struct {
	PollInterval  time.Duration `env:"REPLAY_POLL_INTERVAL" envDefault:"1s"`
	WatchInterval time.Duration `env:"REPLAY_WATCH_INTERVAL" envDefault:"1s"`
	WatchBudget   time.Duration `env:"REPLAY_WATCH_BUDGET" envDefault:"5m"`
	TeamID        int           `env:"REPLAY_TEAM_ID" envDefault:"121"`
	Host          string        `env:"REPLAY_HOST" envDefault:"http://localhost:8080"`
}

// HighlightConfig holds the home-run fan-out settings.
// Empty values disable the matching stage.
type HighlightConfig struct {
	SlackWebhookURL    string `env:"SLACK_WEBHOOK_URL"`
	SlackRatePerMinute int    `env:"SLACK_RATE_PER_MINUTE" envDefault:"20"`
	DSN                string `env:"HIGHLIGHTS_DSN"`
	// ViaStream routes highlights through the replay.highlights consumer group
	ViaStream  bool   `env:"HIGHLIGHTS_VIA_STREAM"`
	ConsumerID string `env:"HIGHLIGHTS_CONSUMER_ID" envDefault:"game-replay-1"`
}

// Config holds all application configuration
type Config struct {
	Server     ServerConfig
	MLB        MLBConfig
	Redis      RedisConfig
	Replay     ReplayConfig
	Highlights HighlightConfig
}

// Load parses configuration from environment variables
func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.MLB.RequestsPerSecond <= 0 {
		return fmt.Errorf("MLB_REQUESTS_PER_SECOND must be positive, got %v", c.MLB.RequestsPerSecond)
	}
	if c.Replay.PollInterval <= 0 || c.Replay.WatchInterval <= 0 {
		return fmt.Errorf("replay poll intervals must be positive")
	}
	if c.Replay.WatchBudget < c.Replay.WatchInterval {
		return fmt.Errorf("REPLAY_WATCH_BUDGET (%s) is shorter than REPLAY_WATCH_INTERVAL (%s)",
			c.Replay.WatchBudget, c.Replay.WatchInterval)
	}
	if c.Highlights.SlackRatePerMinute <= 0 {
		return fmt.Errorf("SLACK_RATE_PER_MINUTE must be positive")
	}
	return nil
}
