// Package dataset holds assembled game records, the frozen column schema
// and the CSV files they are persisted to.
package dataset

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/fortuna/tipoff/internal/game"
)

// Fixed columns framing every record.
const (
	ColumnDate      = "DATE"
	ColumnGameID    = "GAME_ID"
	ColumnHomeScore = "HOME_SCORE"
	ColumnAwayScore = "AWAY_SCORE"
)

var (
	// ErrMalformed reports a persisted dataset that cannot be read back.
	ErrMalformed = errors.New("malformed dataset")
	// ErrOutOfOrder reports a record that does not sort after the rows
	// preceding it.
	ErrOutOfOrder = errors.New("record out of order")
)

// Record is one flattened game row.
type Record struct {
	Columns []string
	Values  []string
}

// Get returns the value of a named column.
func (r Record) Get(name string) (string, bool) {
	i := slices.Index(r.Columns, name)
	if i < 0 || i >= len(r.Values) {
		return "", false
	}
	return r.Values[i], true
}

// GameID returns the record's game identifier, or "" when absent.
func (r Record) GameID() string {
	v, _ := r.Get(ColumnGameID)
	return v
}

// Date returns the record's DATE column, or "" when absent.
func (r Record) Date() string {
	v, _ := r.Get(ColumnDate)
	return v
}

// Position returns the (date, game) key the record sorts by.
func (r Record) Position() (Checkpoint, error) {
	date, err := game.ParseDate(r.Date())
	if err != nil {
		return Checkpoint{}, fmt.Errorf("%w: record date %q: %v", ErrMalformed, r.Date(), err)
	}
	id := r.GameID()
	if id == "" {
		return Checkpoint{}, fmt.Errorf("%w: record has an empty %s", ErrMalformed, ColumnGameID)
	}
	return Checkpoint{Date: date, GameID: id}, nil
}

// Checkpoint is the last (date, game) pair of a persisted dataset.
type Checkpoint struct {
	Date   time.Time
	GameID string
}

// Covers reports whether a game on date was already collected up to this checkpoint.
func (c Checkpoint) Covers(date time.Time, gameID string) bool {
	d := game.Truncate(date)
	switch {
	case d.Before(c.Date):
		return true
	case d.After(c.Date):
		return false
	default:
		return game.CompareIDs(gameID, c.GameID) <= 0
	}
}

func (c Checkpoint) String() string {
	return fmt.Sprintf("%s/%s", c.Date.Format(game.DateLayout), c.GameID)
}

// Dataset is an ordered table of game rows sharing one header.
type Dataset struct {
	Columns []string
	Rows    [][]string
}

// Len returns the number of rows.
func (d *Dataset) Len() int {
	if d == nil {
		return 0
	}
	return len(d.Rows)
}

// Checkpoint derives the resume position from the last row. ok is false for
// an empty dataset.
func (d *Dataset) Checkpoint() (cp Checkpoint, ok bool, err error) {
	if d.Len() == 0 {
		return Checkpoint{}, false, nil
	}
	dateIdx := slices.Index(d.Columns, ColumnDate)
	idIdx := slices.Index(d.Columns, ColumnGameID)
	if dateIdx < 0 || idIdx < 0 {
		return Checkpoint{}, false, fmt.Errorf("%w: header lacks %s or %s", ErrMalformed, ColumnDate, ColumnGameID)
	}

	last := d.Rows[len(d.Rows)-1]
	if dateIdx >= len(last) || idIdx >= len(last) {
		return Checkpoint{}, false, fmt.Errorf("%w: last row has %d values", ErrMalformed, len(last))
	}
	date, err := game.ParseDate(last[dateIdx])
	if err != nil {
		return Checkpoint{}, false, fmt.Errorf("%w: last row date %q: %v", ErrMalformed, last[dateIdx], err)
	}
	if last[idIdx] == "" {
		return Checkpoint{}, false, fmt.Errorf("%w: last row has an empty %s", ErrMalformed, ColumnGameID)
	}
	return Checkpoint{Date: date, GameID: last[idIdx]}, true, nil
}

// Records returns the rows as records sharing the dataset header.
func (d *Dataset) Records() []Record {
	if d == nil {
		return nil
	}
	out := make([]Record, len(d.Rows))
	for i, row := range d.Rows {
		out[i] = Record{Columns: d.Columns, Values: row}
	}
	return out
}
