package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/fortuna/tipoff/internal/backfill"
	"github.com/fortuna/tipoff/internal/config"
	"github.com/fortuna/tipoff/internal/game"
	"github.com/fortuna/tipoff/internal/logger"
)

const (
	modeGenerate = backfill.ModeGenerate
	modeUpdate   = backfill.ModeUpdate
	modeToday    = backfill.ModeToday
)

var runDescriptions = map[backfill.Mode]string{
	modeGenerate: "Generate dataset rows for every game in a date range",
	modeUpdate:   "Resume the season dataset from its last saved game",
	modeToday:    "Assemble rows for today's announced lineups",
}

type runFlags struct {
	start    string
	end      string
	yes      bool
	lookback int
	resume   bool
}

func runCommand(a *app, mode backfill.Mode) *cobra.Command {
	var f runFlags
	cmd := &cobra.Command{
		Use:   string(mode),
		Short: runDescriptions[mode],
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.load(cmd.Context(), cmd); err != nil {
				return err
			}
			applyRunFlags(cmd, a.cfg, f)
			if err := a.cfg.Validate(); err != nil {
				return err
			}
			m := mode
			if m == modeGenerate && a.cfg.Resume {
				m = modeUpdate
			}
			return a.run(cmd.Context(), m, cmd)
		},
	}

	cmd.Flags().StringVar(&f.start, "start", "", "First date (YYYY-MM-DD); defaults to the season start")
	if mode != modeToday {
		cmd.Flags().StringVar(&f.end, "end", "", "Last date (YYYY-MM-DD)")
		cmd.Flags().IntVar(&f.lookback, "lookback", 0, "Length of the recent-tier window in days")
	}
	if mode == modeGenerate {
		cmd.Flags().BoolVar(&f.resume, "resume", false, "Continue from the last saved game")
	}
	cmd.Flags().BoolVarP(&f.yes, "yes", "y", false, "Save without prompting")
	return cmd
}

func applyRunFlags(cmd *cobra.Command, cfg *config.Config, f runFlags) {
	flags := cmd.Flags()
	if flags.Changed("start") {
		cfg.StartDate = f.start
	}
	if flags.Changed("end") {
		cfg.EndDate = f.end
	}
	if flags.Changed("lookback") {
		cfg.LookbackDays = f.lookback
	}
	if flags.Changed("resume") {
		cfg.Resume = f.resume
	}
	if flags.Changed("yes") {
		cfg.AssumeYes = f.yes
	}
}

// buildRunSpec resolves the dates of a command-line run.
func buildRunSpec(cfg *config.Config, mode backfill.Mode, now time.Time) (backfill.RunSpec, error) {
	spec := backfill.RunSpec{
		RunID:  uuid.NewString(),
		Mode:   mode,
		Season: cfg.Season,
	}
	today := game.Truncate(now)

	if mode == modeToday {
		spec.Start, spec.End = today, today
		if cfg.StartDate != "" {
			d, err := game.ParseDate(cfg.StartDate)
			if err != nil {
				return spec, fmt.Errorf("%w: start_date: %v", config.ErrInvalidConfig, err)
			}
			spec.Start, spec.End = d, d
		}
		return spec, nil
	}

	start, end, err := cfg.Window()
	if err != nil {
		return spec, err
	}
	spec.Start, spec.End = start, end

	// Same-day stats are not final.
	if mode == modeUpdate && cfg.EndDate == "" {
		if yesterday := today.AddDate(0, 0, -1); yesterday.Before(spec.End) {
			spec.End = yesterday
		}
	}
	if mode == modeGenerate && spec.End.Before(spec.Start) {
		return spec, fmt.Errorf("%w: end date %s is before start date %s", config.ErrInvalidConfig,
			spec.End.Format(game.DateLayout), spec.Start.Format(game.DateLayout))
	}
	return spec, nil
}

func (a *app) run(ctx context.Context, mode backfill.Mode, cmd *cobra.Command) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		// A second interrupt after the first falls through to the default
		// handler and kills the process, e.g. while the save prompt waits.
		<-ctx.Done()
		stop()
	}()

	spec, err := buildRunSpec(a.cfg, mode, time.Now())
	if err != nil {
		return err
	}

	c, err := build(ctx, a.cfg, a.log)
	if err != nil {
		return err
	}
	defer c.Close()

	var confirmer backfill.Confirmer = backfill.TerminalConfirmer{In: cmd.InOrStdin(), Out: cmd.ErrOrStderr()}
	if a.cfg.AssumeYes {
		confirmer = backfill.StaticConfirmer(true)
	}
	runner := c.runner(a.cfg, confirmer, a.log)

	reporter := backfill.MultiReporter{backfill.LogReporter{Log: a.log}}
	if c.repo != nil {
		if _, err := c.repo.CreateRun(ctx, spec); err != nil {
			a.log.Warn(ctx, "ledger unavailable", logger.Err(err))
		} else {
			reporter = append(reporter, backfill.NewLedgerReporter(ctx, c.repo, spec.RunID))
		}
	}

	summary, runErr := runner.Run(ctx, spec, reporter)

	if c.repo != nil {
		if err := c.repo.Finish(context.WithoutCancel(ctx), spec.RunID, summary, runErr); err != nil {
			a.log.Warn(ctx, "failed to finish ledger run", logger.Err(err))
		}
	}

	printSummary(cmd, summary)
	if runErr != nil {
		return runErr
	}
	if summary.Outcome == backfill.OutcomeCancelled {
		fmt.Fprintln(cmd.ErrOrStderr(), "interrupted")
	}
	return nil
}

func printSummary(cmd *cobra.Command, s backfill.Summary) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "run %s (%s %s) %s\n", s.RunID, s.Mode, s.Season, s.Status())
	fmt.Fprintf(out, "  dates: %d processed, %d skipped of %d\n", s.DatesProcessed, s.DatesSkipped, s.DatesTotal)
	fmt.Fprintf(out, "  games: %d assembled, %d skipped, %d tier fallbacks\n", s.GamesAssembled, s.GamesSkipped, s.Fallbacks)
	if s.Saved {
		fmt.Fprintf(out, "  saved %d records to %s\n", s.RecordsSaved, s.Destination)
	}
}
