package backfill

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/fortuna/tipoff/internal/logger"
)

// Prompt describes the save a Confirmer is asked to approve.
type Prompt struct {
	RunID   string
	Outcome Outcome
	Path    string
	Records int
	Prior   int
}

func (p Prompt) String() string {
	return fmt.Sprintf("Run %s with %d new records (%d already saved). Save to %s? [y/N]: ",
		p.Outcome, p.Records, p.Prior, p.Path)
}

// Confirmer decides whether buffered records are saved.
type Confirmer interface {
	Confirm(ctx context.Context, p Prompt) bool
}

// StaticConfirmer answers every prompt the same way. StaticConfirmer(true)
// backs --yes and unattended runs.
type StaticConfirmer bool

func (s StaticConfirmer) Confirm(context.Context, Prompt) bool { return bool(s) }

// TerminalConfirmer asks on a terminal. Anything other than y or yes,
// including a read error, declines.
type TerminalConfirmer struct {
	In  io.Reader
	Out io.Writer
}

func (t TerminalConfirmer) Confirm(_ context.Context, p Prompt) bool {
	fmt.Fprint(t.Out, p.String())
	line, err := bufio.NewReader(t.In).ReadString('\n')
	if err != nil {
		fmt.Fprintln(t.Out)
		return false
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true
	default:
		return false
	}
}

// persist is the single terminal step of a run. It runs on a context detached
// from cancellation so an interrupted run can still be saved.
func (r *Runner) persist(ctx context.Context, st *run) error {
	ctx = context.WithoutCancel(ctx)
	name := st.spec.DatasetName()
	path := r.store.Path(name)

	if len(st.records) == 0 {
		st.log.Info(ctx, "no new records, dataset left untouched", logger.String("path", path))
		return nil
	}

	prompt := Prompt{
		RunID:   st.spec.RunID,
		Outcome: st.summary.Outcome,
		Path:    path,
		Records: len(st.records),
		Prior:   st.prior.Len(),
	}
	if !r.confirmer.Confirm(ctx, prompt) {
		st.log.Info(ctx, "discarding new records", logger.Int("records", len(st.records)))
		return nil
	}

	dest, err := r.store.Save(name, st.prior, st.records, st.schema.Columns())
	if err != nil {
		st.log.Error(ctx, "save failed", logger.String("path", path), logger.Err(err))
		return fmt.Errorf("save dataset: %w", err)
	}
	st.summary.Saved = true
	st.summary.RecordsSaved = len(st.records)
	st.summary.Destination = dest
	r.metrics.RecordRecordsSaved(len(st.records))
	st.log.Info(ctx, "dataset saved",
		logger.String("path", dest),
		logger.Int("records", len(st.records)),
		logger.Int("rows", st.prior.Len()+len(st.records)),
	)

	if r.publisher != nil {
		if err := r.publisher.PublishRecords(ctx, st.spec.Season, st.records); err != nil {
			st.log.Warn(ctx, "publish records failed", logger.Err(err))
		}
	}
	return nil
}
