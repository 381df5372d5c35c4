package config

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

const (
	defaultTimezone = "UTC"
	configPathEnv   = "PRICE_AGGREGATOR_CONFIG"
	envPrefix       = "PRICEAGG_"
)

// Config holds high-level settings required across the application.
type Config struct {
	Logging       LoggingConfig      `yaml:"logging" envPrefix:"LOG_"`
	Database      DatabaseConfig     `yaml:"database" envPrefix:"DATABASE_"`
	Scheduler     SchedulerConfig    `yaml:"scheduler" envPrefix:"SCHEDULER_"`
	Aggregation   AggregationConfig  `yaml:"aggregation" envPrefix:"AGGREGATION_"`
	Notifications NotificationConfig `yaml:"notifications" envPrefix:"NOTIFY_"`
	Stores        []StoreConfig      `yaml:"stores" validate:"dive"`
}

// LoggingConfig selects the slog level and output format.
type LoggingConfig struct {
	Level  string `yaml:"level" env:"LEVEL"`
	Format string `yaml:"format" env:"FORMAT" validate:"omitempty,oneof=text json"`
}

// DatabaseConfig describes Postgres connection details. An empty DSN
// disables snapshot persistence.
type DatabaseConfig struct {
	DSN string `yaml:"dsn" env:"DSN"`
}

// SchedulerConfig defines how often scheduled runs happen.
type SchedulerConfig struct {
	Interval time.Duration  `yaml:"interval" env:"INTERVAL" validate:"gte=0"`
	Timezone string         `yaml:"timezone" env:"TIMEZONE"`
	location *time.Location `yaml:"-"`
}

// Location resolves the scheduler timezone string to a time.Location.
func (s SchedulerConfig) Location() *time.Location {
	if s.location != nil {
		return s.location
	}
	loc, _ := time.LoadLocation(defaultTimezone)
	return loc
}

// AggregationConfig carries the defaults of an aggregation run.
type AggregationConfig struct {
	Types       []string      `yaml:"types" env:"TYPES" envSeparator:","`
	Mode        string        `yaml:"mode" env:"MODE" validate:"omitempty,oneof=concurrent sequential"`
	Concurrency int           `yaml:"concurrency" env:"CONCURRENCY" validate:"gte=1"`
	GracePeriod time.Duration `yaml:"gracePeriod" env:"GRACE_PERIOD" validate:"gte=0"`
}

// NotificationConfig encapsulates outbound channels (Telegram, etc.).
type NotificationConfig struct {
	Telegram TelegramConfig `yaml:"telegram" envPrefix:"TELEGRAM_"`
}

// TelegramConfig wires all data required to send messages.
type TelegramConfig struct {
	BotToken string `yaml:"botToken" env:"BOT_TOKEN"`
	ChatID   string `yaml:"chatId" env:"CHAT_ID"`
}

// StoreConfig describes a single store and how its pages are scraped.
type StoreConfig struct {
	ID        string            `yaml:"id" validate:"required"`
	Kind      string            `yaml:"kind" validate:"omitempty,oneof=html"`
	Catalog   []CatalogConfig   `yaml:"catalog" validate:"required,min=1,dive"`
	Selectors SelectorConfig    `yaml:"selectors"`
	Prices    map[string]string `yaml:"prices" validate:"required,min=1"`
	MaxPages  int               `yaml:"maxPages" validate:"gte=0"`
	UserAgent string            `yaml:"userAgent"`
	Timeout   time.Duration     `yaml:"timeout" validate:"gte=0"`
}

// CatalogConfig points at the listing page of one product type.
type CatalogConfig struct {
	Type string `yaml:"type" validate:"required"`
	URL  string `yaml:"url" validate:"required,url"`
}

// SelectorConfig holds the CSS selectors used on listing and detail pages.
type SelectorConfig struct {
	ProductLink string `yaml:"productLink" validate:"required"`
	NextPage    string `yaml:"nextPage"`
	Name        string `yaml:"name" validate:"required"`
	Unavailable string `yaml:"unavailable"`
}

// Load reads YAML configuration from path (or $PRICE_AGGREGATOR_CONFIG when
// path is empty), applies PRICEAGG_* environment overrides and validates.
// An unreadable explicit path is an error; an unreadable $PRICE_AGGREGATOR_CONFIG
// falls back to defaults.
func Load(path string) (Config, error) {
	cfg := defaultConfig()

	explicit := path != ""
	if !explicit {
		path = os.Getenv(configPathEnv)
	}
	if path != "" {
		if raw, err := os.ReadFile(path); err != nil {
			if explicit {
				return Config{}, fmt.Errorf("read config %s: %w", path, err)
			}
			log.Printf("config: cannot read %s: %v (falling back to defaults)", path, err)
		} else {
			var fileCfg Config
			if err := yaml.Unmarshal(raw, &fileCfg); err != nil {
				return Config{}, fmt.Errorf("parse config %s: %w", path, err)
			}
			cfg = mergeConfig(cfg, fileCfg)
		}
	}

	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: envPrefix}); err != nil {
		return Config{}, fmt.Errorf("parse environment: %w", err)
	}
	cfg.bindTimezone()

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks field constraints and store ID uniqueness.
func (c Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	seen := make(map[string]struct{}, len(c.Stores))
	for _, s := range c.Stores {
		if _, dup := seen[s.ID]; dup {
			return fmt.Errorf("invalid config: duplicate store id %s", s.ID)
		}
		seen[s.ID] = struct{}{}
	}
	return nil
}

func (c *Config) bindTimezone() {
	tz := c.Scheduler.Timezone
	if tz == "" {
		tz = defaultTimezone
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		log.Printf("config: unknown timezone %s, reverting to %s", tz, defaultTimezone)
		loc, _ = time.LoadLocation(defaultTimezone)
	}
	c.Scheduler.location = loc
}

func mergeConfig(base, override Config) Config {
	if override.Logging.Level != "" {
		base.Logging.Level = override.Logging.Level
	}
	if override.Logging.Format != "" {
		base.Logging.Format = override.Logging.Format
	}

	if override.Database.DSN != "" {
		base.Database = override.Database
	}

	if override.Scheduler.Interval != 0 {
		base.Scheduler.Interval = override.Scheduler.Interval
	}
	if override.Scheduler.Timezone != "" {
		base.Scheduler.Timezone = override.Scheduler.Timezone
	}

	if len(override.Aggregation.Types) > 0 {
		base.Aggregation.Types = override.Aggregation.Types
	}
	if override.Aggregation.Mode != "" {
		base.Aggregation.Mode = override.Aggregation.Mode
	}
	if override.Aggregation.Concurrency != 0 {
		base.Aggregation.Concurrency = override.Aggregation.Concurrency
	}
	if override.Aggregation.GracePeriod != 0 {
		base.Aggregation.GracePeriod = override.Aggregation.GracePeriod
	}

	if override.Notifications.Telegram.BotToken != "" {
		base.Notifications.Telegram.BotToken = override.Notifications.Telegram.BotToken
	}
	if override.Notifications.Telegram.ChatID != "" {
		base.Notifications.Telegram.ChatID = override.Notifications.Telegram.ChatID
	}

	if len(override.Stores) > 0 {
		base.Stores = override.Stores
	}

	return base
}

func defaultConfig() Config {
	tz, _ := time.LoadLocation(defaultTimezone)
	return Config{
		Logging:   LoggingConfig{Level: "info", Format: "text"},
		Scheduler: SchedulerConfig{Interval: 6 * time.Hour, Timezone: defaultTimezone, location: tz},
		Aggregation: AggregationConfig{
			Mode:        "concurrent",
			Concurrency: 4,
			GracePeriod: 10 * time.Second,
		},
	}
}
