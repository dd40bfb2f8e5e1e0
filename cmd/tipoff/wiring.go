package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/fortuna/tipoff/internal/backfill"
	"github.com/fortuna/tipoff/internal/cache"
	"github.com/fortuna/tipoff/internal/config"
	"github.com/fortuna/tipoff/internal/dataset"
	"github.com/fortuna/tipoff/internal/ingest/nba"
	"github.com/fortuna/tipoff/internal/logger"
	"github.com/fortuna/tipoff/internal/metrics"
	"github.com/fortuna/tipoff/internal/publisher"
	"github.com/fortuna/tipoff/internal/store"
)

// streamMaxLen caps each per-season record stream.
const streamMaxLen = 100_000

// components are the long-lived collaborators built from config.
type components struct {
	metrics   *metrics.Manager
	client    *nba.Client
	datasets  *dataset.Store
	publisher backfill.RecordPublisher
	redis     *cache.RedisCache
	db        *store.Database
	repo      *backfill.Repository

	closers []func() error
}

func (c *components) Close() error {
	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		errs = append(errs, c.closers[i]())
	}
	return errors.Join(errs...)
}

// build connects every configured backend.
func build(ctx context.Context, cfg *config.Config, log logger.Logger) (*components, error) {
	c := &components{
		metrics:  metrics.NewManager(),
		datasets: dataset.NewStore(cfg.Destination),
	}

	var rdb *redis.Client
	if cfg.Cache == config.CacheRedis || cfg.PublishRecords {
		var err error
		if rdb, err = cache.Dial(cfg.RedisURL); err != nil {
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		c.redis = cache.NewRedisCacheFromClient(rdb)
		c.closers = append(c.closers, c.redis.Close)
	}

	var cc cache.Cache = cache.Nop{}
	switch cfg.Cache {
	case config.CacheMemory:
		cc = cache.NewMemory(cfg.CacheTTL, 10*time.Minute)
	case config.CacheRedis:
		cc = c.redis
	}

	c.client = nba.New(
		nba.WithStatsBaseURL(cfg.StatsBaseURL),
		nba.WithScheduleBaseURL(cfg.ScheduleBaseURL),
		nba.WithScheduleKey(cfg.ScheduleAPIKey),
		nba.WithFeatures(cfg.TeamFeatures, cfg.PlayerFeatures),
		nba.WithHTTPClient(&http.Client{Timeout: cfg.RequestTimeout}),
		nba.WithMinInterval(cfg.RequestInterval),
		nba.WithCache(cc, cfg.CacheTTL),
		nba.WithLogger(log),
		nba.WithMetrics(c.metrics),
	)

	if cfg.PublishRecords {
		c.publisher = publisher.NewRedisStreamPublisher(rdb, streamMaxLen)
	}

	if cfg.LedgerDSN != "" {
		db, err := store.NewDatabase(ctx, cfg.LedgerDSN, log)
		if err != nil {
			c.Close()
			return nil, err
		}
		c.closers = append(c.closers, db.Close)
		if err := db.RunMigrations(ctx); err != nil {
			c.Close()
			return nil, err
		}
		c.db = db
		c.repo = backfill.NewRepository(db)
	}

	return c, nil
}

// runner builds the orchestrator around the components.
func (c *components) runner(cfg *config.Config, confirmer backfill.Confirmer, log logger.Logger) *backfill.Runner {
	opts := []backfill.RunnerOption{
		backfill.WithConfirmer(confirmer),
		backfill.WithLookback(cfg.LookbackDays),
		backfill.WithLogger(log),
		backfill.WithMetrics(c.metrics),
	}
	if c.publisher != nil {
		opts = append(opts, backfill.WithPublisher(c.publisher))
	}
	return backfill.NewRunner(c.client, c.datasets, opts...)
}
