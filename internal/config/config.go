package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
)

// Config keeps runtime settings for the service.
type Config struct {
	TelegramToken string  `env:"TELEGRAM_TOKEN"`
	DatabaseURL   string  `env:"DATABASE_URL,default=taskhub.db"`
	DigestHours   int     `env:"DIGEST_INTERVAL_HOURS,default=5"`
	AdminIDs      string  `env:"ADMIN_TELEGRAM_IDS"`
	LogLevel      string  `env:"LOG_LEVEL,default=info"`
	MetricsAddr   string  `env:"METRICS_ADDR"`
	RatePerSecond float64 `env:"RATE_LIMIT_PER_SECOND,default=1"`
	RateBurst     int     `env:"RATE_LIMIT_BURST,default=5"`
	MaxTreeDepth  int     `env:"MAX_TREE_DEPTH,default=64"`
}

// Load reads an optional .env file and then the process environment.
func Load(envFiles ...string) (Config, error) {
	if err := godotenv.Load(envFiles...); err != nil && len(envFiles) > 0 {
		return Config{}, fmt.Errorf("load env file: %w", err)
	}

	var cfg Config
	if err := envdecode.Decode(&cfg); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return Config{}, fmt.Errorf("decode env: %w", err)
	}
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyDefaults() {
	c.TelegramToken = strings.TrimSpace(c.TelegramToken)
	c.DatabaseURL = strings.TrimSpace(c.DatabaseURL)
	if c.DatabaseURL == "" {
		c.DatabaseURL = "taskhub.db"
	}
	if c.DigestHours < 0 {
		c.DigestHours = 0
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.RatePerSecond <= 0 {
		c.RatePerSecond = 1
	}
	if c.RateBurst <= 0 {
		c.RateBurst = 5
	}
	if c.MaxTreeDepth <= 0 {
		c.MaxTreeDepth = 64
	}
}

// Validate checks the settings required to run the bot.
func (c Config) Validate() error {
	if c.TelegramToken == "" {
		return errors.New("TELEGRAM_TOKEN is required")
	}
	if _, err := c.AdminTelegramIDs(); err != nil {
		return err
	}
	return nil
}

// DigestInterval is zero when digests are disabled.
func (c Config) DigestInterval() time.Duration {
	return time.Duration(c.DigestHours) * time.Hour
}

// AdminTelegramIDs parses the comma separated admin list.
func (c Config) AdminTelegramIDs() (map[int64]bool, error) {
	out := make(map[int64]bool)
	for _, raw := range strings.Split(c.AdminIDs, ",") {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid admin telegram id %q", raw)
		}
		out[id] = true
	}
	return out, nil
}
