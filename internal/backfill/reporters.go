package backfill

import (
	"context"
	"fmt"
	"time"

	"github.com/fortuna/tipoff/internal/game"
	"github.com/fortuna/tipoff/internal/logger"
)

// NopReporter ignores every callback.
type NopReporter struct{}

func (NopReporter) OnRunStart(RunSpec) {}
func (NopReporter) OnDateStart(time.Time, int, int) {}
func (NopReporter) OnGameProcessed(string) {}
func (NopReporter) OnGameSkipped(string, string) {}
func (NopReporter) OnProgress(string, int, int) {}
func (NopReporter) OnRunComplete(Summary) {}
func (NopReporter) OnRunError(error) {}

// MultiReporter fans callbacks out to several reporters.
type MultiReporter []Reporter

func (m MultiReporter) OnRunStart(spec RunSpec) {
	for _, r := range m {
		r.OnRunStart(spec)
	}
}

func (m MultiReporter) OnDateStart(date time.Time, index, total int) {
	for _, r := range m {
		r.OnDateStart(date, index, total)
	}
}

func (m MultiReporter) OnGameProcessed(gameID string) {
	for _, r := range m {
		r.OnGameProcessed(gameID)
	}
}

func (m MultiReporter) OnGameSkipped(gameID, reason string) {
	for _, r := range m {
		r.OnGameSkipped(gameID, reason)
	}
}

func (m MultiReporter) OnProgress(message string, current, total int) {
	for _, r := range m {
		r.OnProgress(message, current, total)
	}
}

func (m MultiReporter) OnRunComplete(summary Summary) {
	for _, r := range m {
		r.OnRunComplete(summary)
	}
}

func (m MultiReporter) OnRunError(err error) {
	for _, r := range m {
		r.OnRunError(err)
	}
}

// LogReporter writes progress to a logger.
type LogReporter struct {
	Log logger.Logger
}

func (l LogReporter) OnRunStart(spec RunSpec) {
	l.Log.Info(context.Background(), "run starting",
		logger.String("run_id", spec.RunID),
		logger.String("mode", string(spec.Mode)),
		logger.String("season", spec.Season),
		logger.String("start", spec.Start.Format(game.DateLayout)),
		logger.String("end", spec.End.Format(game.DateLayout)),
	)
}

func (l LogReporter) OnDateStart(date time.Time, index, total int) {
	l.Log.Info(context.Background(), fmt.Sprintf("processing %s (%d/%d)", date.Format(game.DateLayout), index+1, total))
}

func (l LogReporter) OnGameProcessed(gameID string) {
	l.Log.Debug(context.Background(), "game assembled", logger.String("game_id", gameID))
}

// OnGameSkipped is silent; the runner already logs skips with their cause.
func (l LogReporter) OnGameSkipped(string, string) {}

func (l LogReporter) OnProgress(message string, current, total int) {
	l.Log.Debug(context.Background(), message, logger.Int("current", current), logger.Int("total", total))
}

func (l LogReporter) OnRunComplete(s Summary) {
	l.Log.Info(context.Background(), "run finished",
		logger.String("outcome", string(s.Outcome)),
		logger.Int("dates_processed", s.DatesProcessed),
		logger.Int("dates_skipped", s.DatesSkipped),
		logger.Int("games_assembled", s.GamesAssembled),
		logger.Int("games_skipped", s.GamesSkipped),
		logger.Int("tier_fallbacks", s.Fallbacks),
		logger.Int("records_saved", s.RecordsSaved),
		logger.String("destination", s.Destination),
	)
}

func (l LogReporter) OnRunError(err error) {
	l.Log.Error(context.Background(), "run failed", logger.Err(err))
}

// ledgerReporter mirrors progress into the run ledger. Ledger write failures
// never interrupt a run.
type ledgerReporter struct {
	ctx   context.Context
	repo  *Repository
	runID string
	total int
}

// NewLedgerReporter returns a Reporter writing to repo under runID.
func NewLedgerReporter(ctx context.Context, repo *Repository, runID string) Reporter {
	return &ledgerReporter{ctx: context.WithoutCancel(ctx), repo: repo, runID: runID}
}

func (r *ledgerReporter) OnRunStart(spec RunSpec) {
	r.total = len(enumerateDates(spec.Start, spec.End))
	_ = r.repo.UpdateProgress(r.ctx, r.runID, 0, r.total, "Run starting")
}

func (r *ledgerReporter) OnDateStart(date time.Time, index int, total int) {
	msg := fmt.Sprintf("Processing %s (%d/%d)", date.Format("Jan 2, 2006"), index+1, total)
	_ = r.repo.UpdateProgress(r.ctx, r.runID, index, valueOr(total, r.total), msg)
}

func (r *ledgerReporter) OnGameProcessed(gameID string) {
	_ = r.repo.AppendEvent(r.ctx, r.runID, "game", fmt.Sprintf("Game %s assembled", gameID))
}

func (r *ledgerReporter) OnGameSkipped(gameID, reason string) {
	_ = r.repo.AppendEvent(r.ctx, r.runID, "skip", fmt.Sprintf("Game %s skipped: %s", gameID, reason))
}

func (r *ledgerReporter) OnProgress(message string, current int, total int) {
	_ = r.repo.UpdateProgress(r.ctx, r.runID, current, valueOr(total, r.total), message)
}

func (r *ledgerReporter) OnRunComplete(s Summary) {
	_ = r.repo.UpdateProgress(r.ctx, r.runID, r.total, r.total, "Run complete")
}

func (r *ledgerReporter) OnRunError(err error) {
	_ = r.repo.AppendEvent(r.ctx, r.runID, "error", err.Error())
}

func valueOr(val, fallback int) int {
	if val > 0 {
		return val
	}
	return fallback
}
