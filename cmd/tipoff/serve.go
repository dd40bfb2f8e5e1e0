package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/fortuna/tipoff/internal/api/rest"
	"github.com/fortuna/tipoff/internal/api/websocket"
	"github.com/fortuna/tipoff/internal/backfill"
	"github.com/fortuna/tipoff/internal/config"
	"github.com/fortuna/tipoff/internal/logger"
	"github.com/fortuna/tipoff/internal/scheduler"
)

func serveCommand(a *app) *cobra.Command {
	var (
		addr       string
		noSchedule bool
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the run API, progress feed and daily update scheduler",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.load(cmd.Context(), cmd); err != nil {
				return err
			}
			if cmd.Flags().Changed("addr") {
				a.cfg.HTTPAddr = addr
			}
			if err := a.cfg.Validate(); err != nil {
				return err
			}
			return a.serve(cmd.Context(), !noSchedule)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (default from config, :8080)")
	cmd.Flags().BoolVar(&noSchedule, "no-schedule", false, "Disable the daily update")
	return cmd
}

func (a *app) serve(ctx context.Context, schedule bool) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	c, err := build(ctx, a.cfg, a.log)
	if err != nil {
		return err
	}
	defer c.Close()

	hub := websocket.NewHub(a.log, c.metrics)
	go hub.Run(ctx)

	// No terminal to prompt on: every run saves what it collected.
	runner := c.runner(a.cfg, backfill.StaticConfirmer(true), a.log)

	opts := []backfill.ServiceOption{
		backfill.WithReporter(websocket.NewProgressReporter(hub)),
		backfill.WithSeasonWindow(config.SeasonWindow),
		backfill.WithDefaultSeason(a.cfg.Season),
		backfill.WithServiceLogger(a.log),
	}
	checks := map[string]rest.HealthChecker{}
	if c.repo != nil {
		opts = append(opts, backfill.WithRepository(c.repo))
		checks["postgres"] = c.db
	}
	if c.redis != nil {
		checks["redis"] = c.redis
	}

	svc := backfill.NewService(runner, opts...)
	svc.Start(ctx)

	api := rest.NewServer(a.cfg.HTTPAddr, rest.Dependencies{
		Runs:     svc,
		Datasets: c.datasets,
		Metrics:  c.metrics,
		Progress: websocket.NewServer(hub, nil, a.log).HandleProgress,
		Checks:   checks,
		Log:      a.log,
	})

	errCh := make(chan error, 1)
	go func() { errCh <- api.Start() }()

	if schedule {
		orch := scheduler.NewOrchestrator(svc, &scheduler.Config{
			DailyUpdateHour: a.cfg.DailyUpdateHour,
			Season:          a.cfg.Season,
			MaxRetries:      3,
			RetryDelay:      10 * time.Minute,
		}, a.log)
		go orch.Start(ctx)
	}

	select {
	case <-ctx.Done():
	case err = <-errCh:
	}

	a.log.Info(context.Background(), "shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if serr := api.Shutdown(shutdownCtx); serr != nil {
		a.log.Warn(shutdownCtx, "REST shutdown failed", logger.Err(serr))
	}
	// Cancelling the active run still saves its records.
	if serr := svc.Shutdown(shutdownCtx); serr != nil {
		a.log.Warn(shutdownCtx, "run did not finish before shutdown", logger.Err(serr))
	}
	return err
}
