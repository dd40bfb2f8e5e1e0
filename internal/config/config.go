// Package config defines tipoff configuration and how it is loaded.
package config

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel error kinds for this package.
var (
	ErrInvalidConfig = errors.New("invalid config")
	ErrLoadConfig    = errors.New("load config failed")
	ErrUnknownSeason = errors.New("unknown season")
)

// Cache backends.
const (
	CacheMemory = "memory"
	CacheRedis  = "redis"
	CacheNone   = "none"
)

// Config contains process configuration.
type Config struct {
	// Season is the "YYYY-YY" label datasets are named after.
	Season string `koanf:"season"`

	// StartDate and EndDate bound the run (YYYY-MM-DD). Empty means the
	// season calendar's bounds.
	StartDate string `koanf:"start_date"`
	EndDate   string `koanf:"end_date"`

	// Destination is the directory datasets are written to.
	Destination string `koanf:"destination"`

	// Resume continues from the last persisted game instead of starting over.
	Resume bool `koanf:"resume"`

	// LookbackDays is the length of the recent-tier window.
	LookbackDays int `koanf:"lookback_days"`

	// ScoreThreshold is consumed by the downstream predictor only.
	ScoreThreshold float64 `koanf:"score_threshold"`

	// RequestInterval is the minimum delay between upstream calls.
	RequestInterval time.Duration `koanf:"request_interval"`
	RequestTimeout  time.Duration `koanf:"request_timeout"`

	StatsBaseURL    string `koanf:"stats_base_url"`
	ScheduleBaseURL string `koanf:"schedule_base_url"`
	ScheduleAPIKey  string `koanf:"schedule_api_key"`

	// TeamFeatures and PlayerFeatures select stat columns. Empty keeps all.
	TeamFeatures   []string `koanf:"team_features"`
	PlayerFeatures []string `koanf:"player_features"`

	// Cache is one of memory, redis or none.
	Cache    string        `koanf:"cache"`
	CacheTTL time.Duration `koanf:"cache_ttl"`
	RedisURL string        `koanf:"redis_url"`

	// PublishRecords streams saved records to Redis.
	PublishRecords bool `koanf:"publish_records"`

	// LedgerDSN enables the Postgres run ledger when set.
	LedgerDSN string `koanf:"ledger_dsn"`

	HTTPAddr        string `koanf:"http_addr"`
	DailyUpdateHour int    `koanf:"daily_update_hour"`

	LogLevel string `koanf:"log_level"`

	// AssumeYes saves without prompting.
	AssumeYes bool `koanf:"assume_yes"`
}

// New returns a Config populated with defaults.
func New() *Config {
	return &Config{
		Season:          SeasonForDate(time.Now()),
		Destination:     "data",
		LookbackDays:    21,
		ScoreThreshold:  0.5,
		RequestInterval: 600 * time.Millisecond,
		RequestTimeout:  30 * time.Second,
		StatsBaseURL:    "https://stats.nba.com",
		ScheduleBaseURL: "https://core-api.nba.com",
		Cache:           CacheMemory,
		CacheTTL:        24 * time.Hour,
		RedisURL:        "redis://localhost:6379/0",
		HTTPAddr:        ":8080",
		DailyUpdateHour: 6,
		LogLevel:        "info",
	}
}

// Validate checks field ranges and date formats.
func (c *Config) Validate() error {
	if c.Season == "" {
		return fmt.Errorf("%w: season must not be empty", ErrInvalidConfig)
	}
	if c.Destination == "" {
		return fmt.Errorf("%w: destination must not be empty", ErrInvalidConfig)
	}
	if c.LookbackDays < 1 {
		return fmt.Errorf("%w: lookback_days must be at least 1, got %d", ErrInvalidConfig, c.LookbackDays)
	}
	if c.RequestInterval < 0 {
		return fmt.Errorf("%w: request_interval must not be negative", ErrInvalidConfig)
	}
	if c.DailyUpdateHour < 0 || c.DailyUpdateHour > 23 {
		return fmt.Errorf("%w: daily_update_hour must be 0-23, got %d", ErrInvalidConfig, c.DailyUpdateHour)
	}
	switch c.Cache {
	case CacheMemory, CacheRedis, CacheNone:
	default:
		return fmt.Errorf("%w: cache must be memory, redis or none, got %q", ErrInvalidConfig, c.Cache)
	}

	var start, end time.Time
	var err error
	if c.StartDate != "" {
		if start, err = time.Parse(time.DateOnly, c.StartDate); err != nil {
			return fmt.Errorf("%w: start_date: %v", ErrInvalidConfig, err)
		}
	}
	if c.EndDate != "" {
		if end, err = time.Parse(time.DateOnly, c.EndDate); err != nil {
			return fmt.Errorf("%w: end_date: %v", ErrInvalidConfig, err)
		}
	}
	if !start.IsZero() && !end.IsZero() && end.Before(start) {
		return fmt.Errorf("%w: end_date %s is before start_date %s", ErrInvalidConfig, c.EndDate, c.StartDate)
	}
	return nil
}

// Window returns the run's date bounds, filling blanks from the season calendar.
func (c *Config) Window() (start, end time.Time, err error) {
	if c.StartDate == "" || c.EndDate == "" {
		if start, end, err = SeasonWindow(c.Season); err != nil {
			return time.Time{}, time.Time{}, err
		}
	}
	if c.StartDate != "" {
		if start, err = time.Parse(time.DateOnly, c.StartDate); err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("%w: start_date: %v", ErrInvalidConfig, err)
		}
	}
	if c.EndDate != "" {
		if end, err = time.Parse(time.DateOnly, c.EndDate); err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("%w: end_date: %v", ErrInvalidConfig, err)
		}
	}
	return start, end, nil
}
