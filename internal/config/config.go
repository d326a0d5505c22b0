// Package config handles application configuration from environment variables.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// DeltaPolicy selects how the sync engine computes the set of new items
// for a feed relative to its stored cursor.
type DeltaPolicy string

// Supported delta policies.
const (
	// PolicyCursorDiff delivers everything published after the stored
	// cursor link, falling back to the newest FallbackTake items when the
	// cursor is absent or no longer present in the feed.
	PolicyCursorDiff DeltaPolicy = "cursor-diff"
	// PolicyNewestOnly always delivers only the newest FallbackTake items,
	// regardless of cursor state. Anti-spam bound for noisy feeds.
	PolicyNewestOnly DeltaPolicy = "newest-only"
)

// Config holds the application configuration.
type Config struct {
	TelegramBotToken string      `env:"TELEGRAM_BOT_TOKEN,required,notEmpty"`
	CronSecret       string      `env:"CRON_SECRET,required,notEmpty"`
	DatabasePath     string      `env:"DATABASE_PATH"  envDefault:"./data/bot.db"`
	ListenAddr       string      `env:"LISTEN_ADDR"    envDefault:":8080"`
	LogLevel         string      `env:"LOG_LEVEL"      envDefault:"info"`
	Timezone         string      `env:"TIMEZONE"       envDefault:"Asia/Ho_Chi_Minh"`
	DeltaPolicy      DeltaPolicy `env:"DELTA_POLICY"   envDefault:"cursor-diff"`
	FallbackTake     int         `env:"FALLBACK_TAKE"  envDefault:"1"`
	SyncSchedule     string      `env:"SYNC_SCHEDULE"`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}

	switch cfg.DeltaPolicy {
	case PolicyCursorDiff, PolicyNewestOnly:
	default:
		return nil, fmt.Errorf("invalid DELTA_POLICY %q, use: cursor-diff, newest-only", cfg.DeltaPolicy)
	}

	if cfg.FallbackTake < 1 {
		return nil, fmt.Errorf("FALLBACK_TAKE must be at least 1, got %d", cfg.FallbackTake)
	}

	if _, err := time.LoadLocation(cfg.Timezone); err != nil {
		return nil, fmt.Errorf("invalid TIMEZONE %q: %w", cfg.Timezone, err)
	}

	return &cfg, nil
}
