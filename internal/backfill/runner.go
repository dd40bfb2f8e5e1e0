package backfill

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/fortuna/tipoff/internal/assembler"
	"github.com/fortuna/tipoff/internal/dataset"
	"github.com/fortuna/tipoff/internal/game"
	"github.com/fortuna/tipoff/internal/ingest/nba"
	"github.com/fortuna/tipoff/internal/logger"
	"github.com/fortuna/tipoff/internal/metrics"
	"github.com/fortuna/tipoff/internal/stats"
)

// DefaultLookbackDays is the length of the recent stat window.
const DefaultLookbackDays = 21

// Skip reasons reported to reporters and metrics.
const (
	SkipBoxScore   = "box_score_unavailable"
	SkipAssembly   = "unresolved_starter"
	SkipCollected  = "already_collected"
	SkipCheckpoint = "before_checkpoint"
)

// Runner walks a date span and accumulates one record per game.
type Runner struct {
	sources   Sources
	store     *dataset.Store
	assembler *assembler.Assembler
	confirmer Confirmer
	publisher RecordPublisher

	lookback int
	log      logger.Logger
	metrics  *metrics.Manager
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithConfirmer sets how the runner asks before saving. The default declines.
func WithConfirmer(c Confirmer) RunnerOption {
	return func(r *Runner) {
		if c != nil {
			r.confirmer = c
		}
	}
}

// WithPublisher publishes saved records. Publish failures are logged only.
func WithPublisher(p RecordPublisher) RunnerOption {
	return func(r *Runner) { r.publisher = p }
}

// WithLookback sets the recent window length in days.
func WithLookback(days int) RunnerOption {
	return func(r *Runner) {
		if days > 0 {
			r.lookback = days
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) RunnerOption {
	return func(r *Runner) {
		if l != nil {
			r.log = l
		}
	}
}

// WithMetrics sets the metrics manager.
func WithMetrics(m *metrics.Manager) RunnerOption {
	return func(r *Runner) { r.metrics = m }
}

// NewRunner constructs a runner reading from sources and saving into store.
func NewRunner(sources Sources, store *dataset.Store, opts ...RunnerOption) *Runner {
	r := &Runner{
		sources:   sources,
		store:     store,
		confirmer: StaticConfirmer(false),
		lookback:  DefaultLookbackDays,
		log:       logger.Nop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.log = r.log.Named("backfill")
	r.assembler = assembler.New(r.log, r.metrics)
	return r
}

// run is the state owned by one invocation of Run.
type run struct {
	spec     RunSpec
	log      logger.Logger
	reporter Reporter

	prior      *dataset.Dataset
	schema     *dataset.Schema
	checkpoint *dataset.Checkpoint
	collected  map[string]bool
	dates      []time.Time
	records    []dataset.Record
	summary    Summary
}

// Run executes spec and hands whatever was collected to persistence. A
// cancelled context ends the run with OutcomeCancelled and a nil error; the
// buffered records are still offered for saving.
func (r *Runner) Run(ctx context.Context, spec RunSpec, reporter Reporter) (Summary, error) {
	if reporter == nil {
		reporter = NopReporter{}
	}
	if !spec.Mode.Valid() {
		return Summary{}, fmt.Errorf("unsupported mode %q", spec.Mode)
	}
	if spec.Season == "" {
		return Summary{}, errors.New("run requires a season")
	}
	if spec.RunID == "" {
		spec.RunID = uuid.NewString()
	}
	spec.Start = game.Truncate(spec.Start)
	spec.End = game.Truncate(spec.End)

	st := &run{
		spec:     spec,
		reporter: reporter,
		schema:   dataset.NewSchema(),
		log: r.log.With(
			logger.String("run_id", spec.RunID),
			logger.String("mode", string(spec.Mode)),
			logger.String("season", spec.Season),
		),
		summary: Summary{
			RunID:  spec.RunID,
			Mode:   spec.Mode,
			Season: spec.Season,
			Start:  spec.Start,
			End:    spec.End,
		},
	}

	reporter.OnRunStart(spec)
	r.metrics.RecordRunStart()

	if err := r.prepare(ctx, st); err != nil {
		st.log.Error(ctx, "run could not start", logger.Err(err))
		st.summary.Outcome = OutcomeFailed
		r.metrics.RecordRunEnd(string(OutcomeFailed))
		reporter.OnRunError(err)
		return st.summary, err
	}

	runErr := r.collect(ctx, st)
	switch {
	case runErr == nil:
		st.summary.Outcome = OutcomeCompleted
	case ctx.Err() != nil && errors.Is(runErr, ctx.Err()):
		st.log.Info(ctx, "run cancelled", logger.Int("records", len(st.records)))
		st.summary.Outcome = OutcomeCancelled
		runErr = nil
	default:
		st.log.Error(ctx, "run aborted", logger.Err(runErr), logger.Int("records", len(st.records)))
		st.summary.Outcome = OutcomeFailed
	}

	if err := r.persist(ctx, st); err != nil {
		st.summary.Outcome = OutcomeFailed
		runErr = errors.Join(runErr, err)
	}

	r.metrics.RecordRunEnd(string(st.summary.Status()))
	if runErr != nil {
		reporter.OnRunError(runErr)
		return st.summary, runErr
	}
	reporter.OnRunComplete(st.summary)
	return st.summary, nil
}

// prepare loads the prior dataset and freezes its header as the schema. In
// update mode it positions the span at the checkpoint; the other modes must
// start no earlier than the checkpoint date. Games already present are
// indexed in every mode.
func (r *Runner) prepare(ctx context.Context, st *run) error {
	name := st.spec.DatasetName()

	prior, err := r.store.Load(name)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		if st.spec.Mode == ModeUpdate {
			return fmt.Errorf("%w: dataset %s does not exist", ErrResume, r.store.Path(name))
		}
		st.log.Info(ctx, "no prior dataset, starting fresh", logger.String("path", r.store.Path(name)))
	case err != nil:
		return fmt.Errorf("%w: %w", ErrResume, err)
	default:
		st.prior = prior
		if err := st.schema.Freeze(prior.Columns); err != nil {
			return fmt.Errorf("%w: %w", ErrResume, err)
		}
		st.log.Info(ctx, "loaded prior dataset",
			logger.String("path", r.store.Path(name)),
			logger.Int("rows", prior.Len()),
			logger.Int("columns", len(prior.Columns)),
		)
	}

	cp, ok, err := st.prior.Checkpoint()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrResume, err)
	}

	start := st.spec.Start
	switch {
	case st.spec.Mode == ModeUpdate:
		if !ok {
			return fmt.Errorf("%w: dataset %s has no rows", ErrResume, r.store.Path(name))
		}
		st.summary.Checkpoint = &cp
		if cp.Date.After(start) {
			start = cp.Date
		}
		st.log.Info(ctx, "resuming from checkpoint", logger.String("checkpoint", cp.String()))
	case ok && start.Before(cp.Date):
		// Rows are appended, so the file stays sorted only if the span
		// begins at or after its last game.
		return fmt.Errorf("%w: %s from %s would precede the last saved game %s in %s; run update to extend it",
			ErrResume, st.spec.Mode, start.Format(game.DateLayout), cp, r.store.Path(name))
	}
	if ok {
		st.checkpoint = &cp
	}

	st.collected = make(map[string]bool, st.prior.Len())
	for _, rec := range st.prior.Records() {
		st.collected[rec.GameID()] = true
	}

	st.dates = enumerateDates(start, st.spec.End)
	st.summary.Start = start
	st.summary.DatesTotal = len(st.dates)
	return nil
}

// collect runs the per-date loop. It returns ctx.Err() when cancelled and a
// non-nil error only for conditions that must abort the run.
func (r *Runner) collect(ctx context.Context, st *run) error {
	total := len(st.dates)
	if total == 0 {
		st.reporter.OnProgress("No dates to process", 0, 0)
		return nil
	}

	for idx, date := range st.dates {
		if err := ctx.Err(); err != nil {
			return err
		}
		st.reporter.OnDateStart(date, idx, total)

		if err := r.processDate(ctx, st, date); err != nil {
			return err
		}
		st.reporter.OnProgress(fmt.Sprintf("Processed %s", date.Format("Jan 2, 2006")), idx+1, total)
	}
	return nil
}

func (r *Runner) processDate(ctx context.Context, st *run, date time.Time) error {
	day := date.Format(game.DateLayout)
	log := st.log.With(logger.String("date", day))

	matchups, ids, err := r.games(ctx, st, date)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		log.Warn(ctx, "schedule unavailable, skipping date", logger.Err(err))
		r.skipDate(st)
		return nil
	}
	if len(matchups) == 0 && len(ids) == 0 {
		log.Debug(ctx, "no games")
		st.summary.DatesProcessed++
		r.metrics.RecordDate("empty")
		return nil
	}

	tables, err := r.fetchTables(ctx, st.spec.Season, date)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		log.Warn(ctx, "stat tables unavailable, skipping date", logger.Err(err))
		r.skipDate(st)
		return nil
	}

	if st.spec.Mode == ModeToday {
		for _, m := range matchups {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := r.addGame(ctx, st, date, m, tables); err != nil {
				return err
			}
		}
	} else {
		for _, id := range ids {
			if err := ctx.Err(); err != nil {
				return err
			}
			m, err := r.sources.BoxScore(ctx, id)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				r.skipGame(ctx, st, day, id, SkipBoxScore, err)
				continue
			}
			if m.GameID == "" {
				m.GameID = id
			}
			if err := r.addGame(ctx, st, date, m, tables); err != nil {
				return err
			}
		}
	}

	st.summary.DatesProcessed++
	r.metrics.RecordDate("processed")
	return nil
}

// games returns the date's matchups in today mode and its outstanding game
// identifiers otherwise.
func (r *Runner) games(ctx context.Context, st *run, date time.Time) ([]game.Matchup, []string, error) {
	day := date.Format(game.DateLayout)

	if st.spec.Mode == ModeToday {
		all, err := r.sources.DailyLineups(ctx, date)
		if err != nil {
			return nil, nil, err
		}
		matchups := make([]game.Matchup, 0, len(all))
		for _, m := range all {
			if r.alreadySaved(ctx, st, day, date, m.GameID) {
				continue
			}
			matchups = append(matchups, m)
		}
		slices.SortFunc(matchups, func(a, b game.Matchup) int {
			return game.CompareIDs(a.GameID, b.GameID)
		})
		return matchups, nil, nil
	}

	all, err := r.sources.GameIDs(ctx, date)
	if err != nil {
		return nil, nil, err
	}
	ids := make([]string, 0, len(all))
	for _, id := range all {
		if !r.alreadySaved(ctx, st, day, date, id) {
			ids = append(ids, id)
		}
	}
	game.SortGameIDs(ids)
	if skipped := len(all) - len(ids); skipped > 0 {
		st.log.Info(ctx, "skipping games already in the dataset",
			logger.String("date", day),
			logger.Int("skipped", skipped),
		)
	}
	return nil, ids, nil
}

// alreadySaved reports whether a game must not be appended, either because it
// is in the dataset or because it would sort before the last saved game.
// Games behind the update checkpoint are passed over silently; the rest
// count as skipped.
func (r *Runner) alreadySaved(ctx context.Context, st *run, day string, date time.Time, id string) bool {
	behind := st.checkpoint != nil && st.checkpoint.Covers(date, id)
	switch {
	case behind && st.spec.Mode == ModeUpdate:
		return true
	case st.collected[id]:
		r.skipGame(ctx, st, day, id, SkipCollected, nil)
		return true
	case behind:
		r.skipGame(ctx, st, day, id, SkipCheckpoint, nil)
		return true
	}
	return false
}

// addGame assembles one matchup and appends it to the buffer. Only a missing
// team or a schema mismatch is returned as an error.
func (r *Runner) addGame(ctx context.Context, st *run, date time.Time, m game.Matchup, tables assembler.Tables) error {
	day := date.Format(game.DateLayout)

	res, err := r.assembler.Assemble(ctx, date, m, tables)
	if errors.Is(err, assembler.ErrSkipGame) {
		r.skipGame(ctx, st, day, m.GameID, SkipAssembly, err)
		return nil
	}
	if err != nil {
		return err
	}

	if !st.schema.Frozen() {
		if err := st.schema.Freeze(res.Record.Columns); err != nil {
			return err
		}
		st.log.Info(ctx, "schema frozen",
			logger.String("game_id", m.GameID),
			logger.Int("columns", len(res.Record.Columns)),
		)
	}
	if err := st.schema.Validate(res.Record); err != nil {
		st.log.Error(ctx, "record rejected", logger.String("game_id", m.GameID), logger.String("date", day), logger.Err(err))
		return err
	}

	st.records = append(st.records, res.Record)
	st.summary.GamesAssembled++
	st.summary.Fallbacks += len(res.Fallbacks)
	st.reporter.OnGameProcessed(m.GameID)
	return nil
}

func (r *Runner) skipGame(ctx context.Context, st *run, day, gameID, reason string, err error) {
	fields := []logger.Field{
		logger.String("game_id", gameID),
		logger.String("date", day),
		logger.String("reason", reason),
	}
	if err != nil {
		st.log.Warn(ctx, "game skipped", append(fields, logger.Err(err))...)
	} else {
		st.log.Debug(ctx, "game skipped", fields...)
	}
	st.summary.GamesSkipped++
	r.metrics.RecordGameSkipped(reason)
	st.reporter.OnGameSkipped(gameID, reason)
}

func (r *Runner) skipDate(st *run) {
	st.summary.DatesSkipped++
	r.metrics.RecordDate("skipped")
}

type fetchFunc func(context.Context, nba.StatsQuery) (*stats.Table, error)

// fetchTables loads the stat tables for date: the location-agnostic general
// table plus recent and season-to-date tables for each location, for both
// teams and players. Every window ends the day before date.
func (r *Runner) fetchTables(ctx context.Context, season string, date time.Time) (assembler.Tables, error) {
	asOf := date.AddDate(0, 0, -1)
	from := date.AddDate(0, 0, -r.lookback)

	var t assembler.Tables
	for _, kind := range []struct {
		name  string
		fetch fetchFunc
		home  *stats.TierSet
		away  *stats.TierSet
	}{
		{assembler.EntityTeam, r.sources.TeamStats, &t.HomeTeams, &t.AwayTeams},
		{assembler.EntityPlayer, r.sources.PlayerStats, &t.HomePlayers, &t.AwayPlayers},
	} {
		general, err := kind.fetch(ctx, nba.StatsQuery{Season: season, DateTo: asOf})
		if err != nil {
			return assembler.Tables{}, fmt.Errorf("%s general: %w", kind.name, err)
		}
		if *kind.home, err = tierSet(ctx, kind.fetch, season, game.LocationHome, from, asOf, general); err != nil {
			return assembler.Tables{}, fmt.Errorf("%s home: %w", kind.name, err)
		}
		if *kind.away, err = tierSet(ctx, kind.fetch, season, game.LocationRoad, from, asOf, general); err != nil {
			return assembler.Tables{}, fmt.Errorf("%s road: %w", kind.name, err)
		}
	}
	return t, nil
}

func tierSet(ctx context.Context, fetch fetchFunc, season string, loc game.Location, from, asOf time.Time, general *stats.Table) (stats.TierSet, error) {
	recent, err := fetch(ctx, nba.StatsQuery{Season: season, DateFrom: from, DateTo: asOf, Location: loc})
	if err != nil {
		return stats.TierSet{}, fmt.Errorf("recent: %w", err)
	}
	toDate, err := fetch(ctx, nba.StatsQuery{Season: season, DateTo: asOf, Location: loc})
	if err != nil {
		return stats.TierSet{}, fmt.Errorf("season to date: %w", err)
	}
	return stats.TierSet{Recent: recent, SeasonToDate: toDate, General: general}, nil
}
