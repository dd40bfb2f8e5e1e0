package backfill

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/fortuna/tipoff/internal/game"
	"github.com/fortuna/tipoff/internal/logger"
)

// ErrRunActive is returned when a run is requested while another is executing.
var ErrRunActive = errors.New("a run is already active")

// Request represents a run invocation from the API or the scheduler. Nil
// dates are filled in from the season calendar.
type Request struct {
	Mode   Mode
	Season string
	Start  *time.Time
	End    *time.Time
}

// SeasonWindowFunc returns the default date range of a season.
type SeasonWindowFunc func(season string) (start, end time.Time, err error)

// Service runs one orchestration at a time in the background and keeps the
// status of recent runs. Its runner must not prompt: serve mode has no
// terminal, so it is built with StaticConfirmer(true).
type Service struct {
	runner    *Runner
	repo      *Repository
	reporters []Reporter
	window    SeasonWindowFunc
	season    string
	now       func() time.Time

	historyLimit int

	mu        sync.Mutex
	active    *Summary
	cancelRun context.CancelFunc
	last      *Summary
	history   []*Run

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	log logger.Logger
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithRepository records runs in the Postgres ledger.
func WithRepository(repo *Repository) ServiceOption {
	return func(s *Service) { s.repo = repo }
}

// WithReporter adds a reporter to every run, e.g. the websocket hub.
func WithReporter(r Reporter) ServiceOption {
	return func(s *Service) {
		if r != nil {
			s.reporters = append(s.reporters, r)
		}
	}
}

// WithSeasonWindow supplies default dates for requests that omit them.
func WithSeasonWindow(fn SeasonWindowFunc) ServiceOption {
	return func(s *Service) { s.window = fn }
}

// WithDefaultSeason sets the season used when a request names none.
func WithDefaultSeason(season string) ServiceOption {
	return func(s *Service) { s.season = season }
}

// WithServiceLogger sets the logger.
func WithServiceLogger(l logger.Logger) ServiceOption {
	return func(s *Service) {
		if l != nil {
			s.log = l
		}
	}
}

// NewService constructs a Service. Call Start before submitting runs.
func NewService(runner *Runner, opts ...ServiceOption) *Service {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Service{
		runner:       runner,
		now:          time.Now,
		historyLimit: 10,
		ctx:          ctx,
		cancel:       cancel,
		log:          logger.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.Named("backfill-service")
	return s
}

// Start prepares the ledger. Runs a previous process left open are marked failed.
func (s *Service) Start(ctx context.Context) {
	if s.repo == nil {
		return
	}
	if err := s.repo.ResetStuckRuns(ctx); err != nil {
		s.log.Warn(ctx, "failed to reset runs", logger.Err(err))
	}
}

// Shutdown cancels the active run and waits for it to persist.
func (s *Service) Shutdown(ctx context.Context) error {
	s.cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		s.wg.Wait()
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return nil
	}
}

// Submit validates req and starts it in the background. It fails with
// ErrRunActive while another run is executing.
func (s *Service) Submit(ctx context.Context, req Request) (RunSpec, error) {
	spec, err := s.buildSpec(req)
	if err != nil {
		return RunSpec{}, err
	}

	s.mu.Lock()
	if s.active != nil {
		active := s.active.RunID
		s.mu.Unlock()
		return RunSpec{}, fmt.Errorf("%w: %s", ErrRunActive, active)
	}
	runCtx, cancel := context.WithCancel(s.ctx)
	s.active = &Summary{
		RunID:      spec.RunID,
		Mode:       spec.Mode,
		Season:     spec.Season,
		Start:      spec.Start,
		End:        spec.End,
		DatesTotal: len(enumerateDates(spec.Start, spec.End)),
	}
	s.cancelRun = cancel
	s.wg.Add(1)
	s.mu.Unlock()

	if s.repo != nil {
		if _, err := s.repo.CreateRun(ctx, spec); err != nil {
			s.log.Warn(ctx, "ledger unavailable", logger.String("run_id", spec.RunID), logger.Err(err))
		}
	}

	go s.execute(runCtx, spec)
	return spec, nil
}

// Cancel stops the active run. The records it collected are still saved.
func (s *Service) Cancel() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active == nil || s.cancelRun == nil {
		return "", false
	}
	s.cancelRun()
	return s.active.RunID, true
}

// Status returns the active run, the last finished run and recent history.
func (s *Service) Status(ctx context.Context) (*StatusSummary, error) {
	s.mu.Lock()
	out := &StatusSummary{}
	if s.active != nil {
		active := *s.active
		out.Active = &active
	}
	if s.last != nil {
		last := *s.last
		out.Last = &last
	}
	history := append([]*Run(nil), s.history...)
	s.mu.Unlock()

	if s.repo == nil {
		out.History = history
		return out, nil
	}

	runs, err := s.repo.ListRecentRuns(ctx, s.historyLimit)
	if err != nil {
		return nil, err
	}
	out.History = runs
	return out, nil
}

func (s *Service) execute(ctx context.Context, spec RunSpec) {
	defer s.wg.Done()

	reporters := MultiReporter{LogReporter{Log: s.log}, &tracker{s: s}}
	if s.repo != nil {
		reporters = append(reporters, NewLedgerReporter(ctx, s.repo, spec.RunID))
	}
	reporters = append(reporters, s.reporters...)

	summary, err := s.runner.Run(ctx, spec, reporters)

	if s.repo != nil {
		if ferr := s.repo.Finish(context.WithoutCancel(ctx), spec.RunID, summary, err); ferr != nil {
			s.log.Warn(ctx, "failed to finish ledger run", logger.String("run_id", spec.RunID), logger.Err(ferr))
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelRun()
	s.active = nil
	s.cancelRun = nil
	s.last = &summary
	s.history = append([]*Run{runFromSummary(summary, err, s.now())}, s.history...)
	if len(s.history) > s.historyLimit {
		s.history = s.history[:s.historyLimit]
	}
}

func (s *Service) buildSpec(req Request) (RunSpec, error) {
	spec := RunSpec{
		RunID:  uuid.NewString(),
		Mode:   req.Mode,
		Season: req.Season,
	}
	if spec.Mode == "" {
		spec.Mode = ModeUpdate
	}
	if !spec.Mode.Valid() {
		return spec, fmt.Errorf("unknown mode %q", spec.Mode)
	}
	if spec.Season == "" {
		spec.Season = s.season
	}
	if spec.Season == "" {
		return spec, errors.New("run requires a season")
	}

	today := game.Truncate(s.now())
	if spec.Mode == ModeToday {
		spec.Start, spec.End = today, today
		if req.Start != nil {
			spec.Start, spec.End = game.Truncate(*req.Start), game.Truncate(*req.Start)
		}
		return spec, nil
	}

	var seasonStart, seasonEnd time.Time
	if (req.Start == nil || req.End == nil) && s.window != nil {
		var err error
		if seasonStart, seasonEnd, err = s.window(spec.Season); err != nil {
			return spec, err
		}
	}

	switch {
	case req.Start != nil:
		spec.Start = game.Truncate(*req.Start)
	case !seasonStart.IsZero():
		spec.Start = seasonStart
	default:
		return spec, errors.New("run requires a start date")
	}

	switch {
	case req.End != nil:
		spec.End = game.Truncate(*req.End)
	case !seasonEnd.IsZero():
		spec.End = seasonEnd
		// Same-day stats are not final; unattended runs stop at yesterday.
		if yesterday := today.AddDate(0, 0, -1); yesterday.Before(spec.End) {
			spec.End = yesterday
		}
	default:
		return spec, errors.New("run requires an end date")
	}

	if spec.End.Before(spec.Start) && spec.Mode != ModeUpdate {
		return spec, fmt.Errorf("end date %s is before start date %s",
			spec.End.Format(game.DateLayout), spec.Start.Format(game.DateLayout))
	}
	return spec, nil
}

func runFromSummary(s Summary, err error, now time.Time) *Run {
	r := &Run{
		RunID:           s.RunID,
		Mode:            s.Mode,
		Season:          s.Season,
		Status:          s.Status(),
		ProgressCurrent: s.DatesProcessed + s.DatesSkipped,
		ProgressTotal:   s.DatesTotal,
		RecordsSaved:    s.RecordsSaved,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	r.StartDate.Time, r.StartDate.Valid = s.Start, !s.Start.IsZero()
	r.EndDate.Time, r.EndDate.Valid = s.End, !s.End.IsZero()
	r.CompletedAt.Time, r.CompletedAt.Valid = now, true
	if err != nil {
		r.LastError.String, r.LastError.Valid = err.Error(), true
	}
	return r
}

// tracker keeps the service's view of the active run current.
type tracker struct {
	NopReporter
	s *Service
}

func (t *tracker) update(fn func(*Summary)) {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	if t.s.active != nil {
		fn(t.s.active)
	}
}

func (t *tracker) OnDateStart(_ time.Time, index, total int) {
	t.update(func(s *Summary) {
		s.DatesProcessed = index
		s.DatesTotal = total
	})
}

func (t *tracker) OnGameProcessed(string) {
	t.update(func(s *Summary) { s.GamesAssembled++ })
}

func (t *tracker) OnGameSkipped(string, string) {
	t.update(func(s *Summary) { s.GamesSkipped++ })
}
