package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	defaultDatabaseURL    = "royal_decrees.db"
	defaultReportInterval = 5 * time.Hour
	defaultMorningReport  = "08:00"
	defaultWindowDays     = 45
	defaultSnapshotDir    = "snapshots"
)

// Config keeps runtime settings for the bot and the CLI.
type Config struct {
	TelegramToken  string        `yaml:"telegram_token"`
	DatabaseURL    string        `yaml:"database_url"`
	ReportInterval time.Duration `yaml:"report_interval"`
	MorningReport  string        `yaml:"morning_report"`
	Timezone       string        `yaml:"timezone"`
	CalendarWindow int           `yaml:"calendar_window_days"`
	SnapshotDir    string        `yaml:"snapshot_dir"`
	Debug          bool          `yaml:"debug"`

	location *time.Location
}

// Load reads the optional CONFIG_FILE first, then environment variables, then fills defaults.
func Load() (Config, error) {
	var cfg Config

	if path := strings.TrimSpace(os.Getenv("CONFIG_FILE")); path != "" {
		if err := cfg.readFile(path); err != nil {
			return cfg, err
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return cfg, err
	}

	if cfg.DatabaseURL == "" {
		cfg.DatabaseURL = defaultDatabaseURL
	}
	if cfg.ReportInterval <= 0 {
		cfg.ReportInterval = defaultReportInterval
	}
	if cfg.MorningReport == "" {
		cfg.MorningReport = defaultMorningReport
	}
	if cfg.CalendarWindow <= 0 {
		cfg.CalendarWindow = defaultWindowDays
	}
	if cfg.SnapshotDir == "" {
		cfg.SnapshotDir = defaultSnapshotDir
	}

	loc := time.Local
	if cfg.Timezone != "" {
		parsed, err := time.LoadLocation(cfg.Timezone)
		if err != nil {
			return cfg, fmt.Errorf("load timezone %q: %w", cfg.Timezone, err)
		}
		loc = parsed
	}
	cfg.location = loc

	return cfg, nil
}

// Validate checks settings needed to run the bot.
func (c Config) Validate() error {
	if c.TelegramToken == "" {
		return errors.New("TELEGRAM_TOKEN is required")
	}
	return nil
}

// Location is where days start and end for the calendar.
func (c Config) Location() *time.Location {
	if c.location == nil {
		return time.Local
	}
	return c.location
}

func (c *Config) readFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() error {
	if v := env("TELEGRAM_TOKEN"); v != "" {
		c.TelegramToken = v
	}
	if v := env("DATABASE_URL"); v != "" {
		c.DatabaseURL = v
	}
	if v := env("REPORT_INTERVAL_HOURS"); v != "" {
		c.ReportInterval = parseInterval(v)
	}
	if v := env("MORNING_REPORT"); v != "" {
		c.MorningReport = v
	}
	if v := env("TIMEZONE"); v != "" {
		c.Timezone = v
	}
	if v := env("CALENDAR_WINDOW_DAYS"); v != "" {
		days, err := strconv.Atoi(v)
		if err != nil || days <= 0 {
			return fmt.Errorf("CALENDAR_WINDOW_DAYS must be a positive number, got %q", v)
		}
		c.CalendarWindow = days
	}
	if v := env("SNAPSHOT_DIR"); v != "" {
		c.SnapshotDir = v
	}
	if v := env("DEBUG"); v != "" {
		debug, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("DEBUG must be a boolean, got %q", v)
		}
		c.Debug = debug
	}
	return nil
}

func env(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func parseInterval(raw string) time.Duration {
	if raw == "" {
		return 0
	}
	hours, err := time.ParseDuration(raw + "h")
	if err != nil || hours <= 0 {
		return 0
	}
	return hours
}
