package dataset

import (
	"errors"
	"fmt"
	"slices"
	"sync"
)

// ErrSchemaMismatch is matched by every *MismatchError.
var ErrSchemaMismatch = errors.New("schema mismatch")

// MismatchError pinpoints where a record diverges from the frozen columns.
// Position is -1 when only the field counts differ; WantLen is always the
// frozen width.
type MismatchError struct {
	GameID   string
	Position int
	Want     string
	Got      string
	WantLen  int
	GotLen   int
}

func (e *MismatchError) Error() string {
	if e.Position < 0 {
		return fmt.Sprintf("schema mismatch for game %s: %d fields, frozen schema has %d", e.GameID, e.GotLen, e.WantLen)
	}
	return fmt.Sprintf("schema mismatch for game %s at column %d: got %q, frozen schema has %q", e.GameID, e.Position, e.Got, e.Want)
}

func (e *MismatchError) Is(target error) bool {
	return target == ErrSchemaMismatch
}

// Schema is the column order contract of one dataset. It is frozen once and
// never reordered afterwards.
type Schema struct {
	mu      sync.RWMutex
	columns []string
}

// NewSchema returns an unfrozen schema.
func NewSchema() *Schema {
	return &Schema{}
}

// Freeze fixes the column order. Freezing again with the same columns is a
// no-op; freezing with different columns is a mismatch.
func (s *Schema) Freeze(columns []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.columns != nil {
		return compare(s.columns, columns, "")
	}
	if len(columns) == 0 {
		return errors.New("cannot freeze an empty schema")
	}
	s.columns = slices.Clone(columns)
	return nil
}

// Frozen reports whether Freeze has succeeded.
func (s *Schema) Frozen() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.columns != nil
}

// Columns returns a copy of the frozen columns, or nil.
func (s *Schema) Columns() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.columns)
}

// Validate checks that the record carries exactly the frozen columns,
// position for position.
func (s *Schema) Validate(r Record) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.columns == nil {
		return errors.New("schema not frozen")
	}
	if len(r.Values) != len(r.Columns) {
		return &MismatchError{GameID: r.GameID(), Position: -1, WantLen: len(s.columns), GotLen: len(r.Values)}
	}
	return compare(s.columns, r.Columns, r.GameID())
}

func compare(want, got []string, gameID string) error {
	if len(want) != len(got) {
		return &MismatchError{GameID: gameID, Position: -1, WantLen: len(want), GotLen: len(got)}
	}
	for i := range want {
		if want[i] != got[i] {
			return &MismatchError{
				GameID:   gameID,
				Position: i,
				Want:     want[i],
				Got:      got[i],
				WantLen:  len(want),
				GotLen:   len(got),
			}
		}
	}
	return nil
}
