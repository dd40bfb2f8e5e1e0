package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fortuna/tipoff/internal/backfill"
	"github.com/fortuna/tipoff/internal/config"
	"github.com/fortuna/tipoff/internal/logger"
)

// Submitter starts runs in the background.
type Submitter interface {
	Submit(ctx context.Context, req backfill.Request) (backfill.RunSpec, error)
}

// Orchestrator triggers the unattended daily update.
type Orchestrator struct {
	runs   Submitter
	config *Config
	log    logger.Logger

	now   func() time.Time
	after func(time.Duration) <-chan time.Time
}

// Config holds scheduler configuration
type Config struct {
	DailyUpdateHour int    // Default: 6 (6 AM)
	Season          string // Empty follows the calendar
	MaxRetries      int    // Default: 3
	RetryDelay      time.Duration
}

// DefaultConfig returns default scheduler configuration
func DefaultConfig() *Config {
	return &Config{
		DailyUpdateHour: 6,
		MaxRetries:      3,
		RetryDelay:      10 * time.Minute,
	}
}

// NewOrchestrator creates a new scheduler orchestrator
func NewOrchestrator(runs Submitter, cfg *Config, log logger.Logger) *Orchestrator {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Orchestrator{
		runs:   runs,
		config: cfg,
		log:    log.Named("scheduler"),
		now:    time.Now,
		after:  time.After,
	}
}

// Start runs the daily update loop until ctx is done.
func (o *Orchestrator) Start(ctx context.Context) {
	o.log.Info(ctx, "daily update scheduler started", logger.Int("hour", o.config.DailyUpdateHour))

	for ctx.Err() == nil {
		next := o.nextRun(o.now())
		wait := next.Sub(o.now())
		o.log.Info(ctx, "next daily update",
			logger.String("at", next.Format("2006-01-02 15:04:05")),
			logger.String("in", wait.Round(time.Second).String()))

		select {
		case <-ctx.Done():
		case <-o.after(wait):
			if err := o.TriggerUpdate(ctx); err != nil && ctx.Err() == nil {
				o.log.Error(ctx, "daily update failed", logger.Err(err))
			}
		}
	}
	o.log.Info(ctx, "daily update scheduler stopped")
}

// nextRun returns the first occurrence of the configured hour after now.
func (o *Orchestrator) nextRun(now time.Time) time.Time {
	next := time.Date(now.Year(), now.Month(), now.Day(), o.config.DailyUpdateHour, 0, 0, 0, now.Location())
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

// season resolves the season to update. Without a configured season the
// season yesterday belonged to is used, so the first morning of a new season
// still finishes the previous one.
func (o *Orchestrator) season() string {
	if o.config.Season != "" {
		return o.config.Season
	}
	return config.SeasonForDate(o.now().AddDate(0, 0, -1))
}

// TriggerUpdate submits an update run. A busy service is retried after
// RetryDelay, up to MaxRetries attempts.
func (o *Orchestrator) TriggerUpdate(ctx context.Context) error {
	req := backfill.Request{Mode: backfill.ModeUpdate, Season: o.season()}

	attempts := o.config.MaxRetries
	if attempts < 1 {
		attempts = 1
	}

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		var spec backfill.RunSpec
		spec, err = o.runs.Submit(ctx, req)
		if err == nil {
			o.log.Info(ctx, "daily update submitted",
				logger.String("run_id", spec.RunID),
				logger.String("season", spec.Season))
			return nil
		}
		if !errors.Is(err, backfill.ErrRunActive) {
			return fmt.Errorf("submit update: %w", err)
		}

		o.log.Warn(ctx, "run already active, retrying",
			logger.Int("attempt", attempt),
			logger.Int("max_attempts", attempts))
		if attempt == attempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-o.after(o.config.RetryDelay):
		}
	}
	return fmt.Errorf("submit update after %d attempts: %w", attempts, err)
}
