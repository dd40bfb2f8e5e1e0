package backfill

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/fortuna/tipoff/internal/store"
)

// Repository records runs and their events in the Postgres ledger.
type Repository struct {
	db *store.Database
}

// NewRepository constructs a Repository.
func NewRepository(db *store.Database) *Repository {
	return &Repository{db: db}
}

const runColumns = `run_id, mode, season, start_date, end_date,
	status, status_message, progress_current, progress_total,
	records_saved, last_error, created_at, updated_at, completed_at`

// CreateRun inserts a running ledger row for spec.
func (r *Repository) CreateRun(ctx context.Context, spec RunSpec) (*Run, error) {
	query := `
		INSERT INTO tipoff_runs (
			run_id, mode, season, start_date, end_date,
			status, status_message, progress_total
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		RETURNING ` + runColumns

	row := r.db.DB().QueryRowContext(ctx, query,
		spec.RunID, string(spec.Mode), spec.Season,
		sql.NullTime{Time: spec.Start, Valid: !spec.Start.IsZero()},
		sql.NullTime{Time: spec.End, Valid: !spec.End.IsZero()},
		string(RunStatusRunning), "Run queued",
		len(enumerateDates(spec.Start, spec.End)),
	)

	run, err := scanRun(row)
	if err != nil {
		return nil, fmt.Errorf("create run: %w", err)
	}
	return run, nil
}

// Finish stores a run's terminal status.
func (r *Repository) Finish(ctx context.Context, runID string, s Summary, runErr error) error {
	query := `
		UPDATE tipoff_runs
		SET status = $2::varchar,
			status_message = $3,
			records_saved = $4,
			last_error = $5,
			updated_at = NOW(),
			completed_at = NOW()
		WHERE run_id = $1
	`

	var errText sql.NullString
	if runErr != nil {
		errText = sql.NullString{String: runErr.Error(), Valid: true}
	}
	msg := fmt.Sprintf("%d games assembled, %d skipped, %d saved",
		s.GamesAssembled, s.GamesSkipped, s.RecordsSaved)

	if _, err := r.db.DB().ExecContext(ctx, query, runID, string(s.Status()), msg, s.RecordsSaved, errText); err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	return nil
}

// UpdateProgress updates the progress counters and message.
func (r *Repository) UpdateProgress(ctx context.Context, runID string, current, total int, message string) error {
	query := `
		UPDATE tipoff_runs
		SET progress_current = $2,
			progress_total = $3,
			status_message = $4,
			updated_at = NOW()
		WHERE run_id = $1
	`

	if _, err := r.db.DB().ExecContext(ctx, query, runID, current, total, message); err != nil {
		return fmt.Errorf("update run progress: %w", err)
	}
	return nil
}

// AppendEvent stores a log entry for a run.
func (r *Repository) AppendEvent(ctx context.Context, runID, eventType, message string) error {
	query := `
		INSERT INTO tipoff_run_events (run_id, event_type, message)
		VALUES ($1,$2,$3)
	`

	if _, err := r.db.DB().ExecContext(ctx, query, runID, eventType, message); err != nil {
		return fmt.Errorf("insert run event: %w", err)
	}
	return nil
}

// ResetStuckRuns marks runs left running by a previous process as failed.
func (r *Repository) ResetStuckRuns(ctx context.Context) error {
	_, err := r.db.DB().ExecContext(ctx, `
		UPDATE tipoff_runs
		SET status = 'failed',
			status_message = 'Interrupted by service restart',
			updated_at = NOW(),
			completed_at = NOW()
		WHERE status = 'running'
	`)
	if err != nil {
		return fmt.Errorf("reset stuck runs: %w", err)
	}
	return nil
}

// GetRun returns one run, or nil when it does not exist.
func (r *Repository) GetRun(ctx context.Context, runID string) (*Run, error) {
	row := r.db.DB().QueryRowContext(ctx, `SELECT `+runColumns+` FROM tipoff_runs WHERE run_id = $1`, runID)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}
	return run, nil
}

// ListRecentRuns returns the most recent runs, newest first.
func (r *Repository) ListRecentRuns(ctx context.Context, limit int) ([]*Run, error) {
	query := `SELECT ` + runColumns + `
		FROM tipoff_runs
		ORDER BY created_at DESC
		LIMIT $1
	`

	rows, err := r.db.DB().QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("list recent runs: %w", err)
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}

	return runs, rows.Err()
}

func scanRun(scanner interface {
	Scan(dest ...any) error
}) (*Run, error) {
	run := &Run{}
	err := scanner.Scan(
		&run.RunID,
		&run.Mode,
		&run.Season,
		&run.StartDate,
		&run.EndDate,
		&run.Status,
		&run.StatusMessage,
		&run.ProgressCurrent,
		&run.ProgressTotal,
		&run.RecordsSaved,
		&run.LastError,
		&run.CreatedAt,
		&run.UpdatedAt,
		&run.CompletedAt,
	)
	if err != nil {
		return nil, err
	}
	return run, nil
}
