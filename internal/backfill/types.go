package backfill

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/fortuna/tipoff/internal/dataset"
	"github.com/fortuna/tipoff/internal/game"
	"github.com/fortuna/tipoff/internal/ingest/nba"
	"github.com/fortuna/tipoff/internal/stats"
)

// ErrResume reports a prior dataset that a resume cannot safely continue from.
var ErrResume = errors.New("cannot resume")

// Mode enumerates the supported run variants.
type Mode string

const (
	// ModeGenerate collects every game in [Start, End], appending to an existing dataset.
	ModeGenerate Mode = "generate"
	// ModeUpdate resumes after the last persisted game.
	ModeUpdate Mode = "update"
	// ModeToday assembles rows from a date's announced lineups with zero scores.
	ModeToday Mode = "today"
)

// Valid reports whether m is a known mode.
func (m Mode) Valid() bool {
	switch m {
	case ModeGenerate, ModeUpdate, ModeToday:
		return true
	}
	return false
}

// Outcome is the terminal state a run reaches before persistence.
type Outcome string

const (
	OutcomeCompleted Outcome = "completed"
	OutcomeCancelled Outcome = "cancelled"
	OutcomeFailed    Outcome = "failed"
)

// RunStatus represents the lifecycle state of a run in the ledger.
type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusCancelled RunStatus = "cancelled"
	RunStatusFailed    RunStatus = "failed"
	RunStatusDiscarded RunStatus = "discarded"
)

// RunSpec describes the work to be performed by the runner.
type RunSpec struct {
	RunID  string
	Mode   Mode
	Season string
	Start  time.Time
	End    time.Time
}

// DatasetName is the name the run's dataset is stored under.
func (s RunSpec) DatasetName() string {
	if s.Mode == ModeToday {
		return s.Season + "-today"
	}
	return s.Season
}

// Summary reports what a run did.
type Summary struct {
	RunID          string              `json:"run_id"`
	Mode           Mode                `json:"mode"`
	Season         string              `json:"season"`
	Start          time.Time           `json:"start"`
	End            time.Time           `json:"end"`
	Checkpoint     *dataset.Checkpoint `json:"checkpoint,omitempty"`
	DatesTotal     int                 `json:"dates_total"`
	DatesProcessed int                 `json:"dates_processed"`
	DatesSkipped   int                 `json:"dates_skipped"`
	GamesAssembled int                 `json:"games_assembled"`
	GamesSkipped   int                 `json:"games_skipped"`
	Fallbacks      int                 `json:"tier_fallbacks"`
	RecordsSaved   int                 `json:"records_saved"`
	Destination    string              `json:"destination,omitempty"`
	Outcome        Outcome             `json:"outcome"`
	Saved          bool                `json:"saved"`
}

// Status maps the summary onto a ledger status.
func (s Summary) Status() RunStatus {
	switch {
	case s.Outcome == OutcomeFailed:
		return RunStatusFailed
	case !s.Saved && s.GamesAssembled > 0:
		return RunStatusDiscarded
	case s.Outcome == OutcomeCancelled:
		return RunStatusCancelled
	default:
		return RunStatusCompleted
	}
}

// Reporter receives lifecycle callbacks from the runner.
type Reporter interface {
	OnRunStart(spec RunSpec)
	OnDateStart(date time.Time, index int, total int)
	OnGameProcessed(gameID string)
	OnGameSkipped(gameID string, reason string)
	OnProgress(message string, current int, total int)
	OnRunComplete(summary Summary)
	OnRunError(err error)
}

// Schedule lists the games played on a date, ascending.
type Schedule interface {
	GameIDs(ctx context.Context, date time.Time) ([]string, error)
}

// StatSource fetches stat dashboards.
type StatSource interface {
	TeamStats(ctx context.Context, q nba.StatsQuery) (*stats.Table, error)
	PlayerStats(ctx context.Context, q nba.StatsQuery) (*stats.Table, error)
}

// BoxScores resolves one game's lineups and score.
type BoxScores interface {
	BoxScore(ctx context.Context, gameID string) (game.Matchup, error)
}

// Lineups lists the announced starters for a date's games.
type Lineups interface {
	DailyLineups(ctx context.Context, date time.Time) ([]game.Matchup, error)
}

// Sources bundles every upstream the runner reads. *nba.Client satisfies it.
type Sources interface {
	Schedule
	StatSource
	BoxScores
	Lineups
}

// RecordPublisher receives records after they are saved.
type RecordPublisher interface {
	PublishRecords(ctx context.Context, season string, records []dataset.Record) error
}

// Run models the ledger representation of a run.
type Run struct {
	RunID           string         `json:"run_id"`
	Mode            Mode           `json:"mode"`
	Season          string         `json:"season"`
	StartDate       sql.NullTime   `json:"start_date"`
	EndDate         sql.NullTime   `json:"end_date"`
	Status          RunStatus      `json:"status"`
	StatusMessage   sql.NullString `json:"status_message"`
	ProgressCurrent int            `json:"progress_current"`
	ProgressTotal   int            `json:"progress_total"`
	RecordsSaved    int            `json:"records_saved"`
	LastError       sql.NullString `json:"last_error"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
	CompletedAt     sql.NullTime   `json:"completed_at"`
}

// StatusSummary is returned to API callers.
type StatusSummary struct {
	Active  *Summary `json:"active_run,omitempty"`
	Last    *Summary `json:"last_run,omitempty"`
	History []*Run   `json:"recent_runs,omitempty"`
}
