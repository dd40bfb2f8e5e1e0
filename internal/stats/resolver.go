package stats

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned when no tier of a chain holds the requested entity.
var ErrNotFound = errors.New("entity not found in any stat tier")

// Source is one link of a fallback chain.
type Source struct {
	Tier  Tier
	Table *Table
}

// TierSet holds the three tables fetched for one date, one entity kind and
// one location. General is location-agnostic and shared by both sides.
type TierSet struct {
	Recent       *Table
	SeasonToDate *Table
	General      *Table
}

// Chain returns the tables in priority order.
func (s TierSet) Chain() []Source {
	return []Source{
		{Tier: TierRecent, Table: s.Recent},
		{Tier: TierSeasonToDate, Table: s.SeasonToDate},
		{Tier: TierSeasonGeneral, Table: s.General},
	}
}

// Resolve looks id up in the set's priority chain.
func (s TierSet) Resolve(id string) (Row, error) {
	return Resolve(id, s.Chain()...)
}

// Resolve returns the row for id from the first source that holds it, tagged
// with that source's tier. Nil tables are skipped.
func Resolve(id string, chain ...Source) (Row, error) {
	for _, src := range chain {
		if row, ok := src.Table.Lookup(id); ok {
			row.Tier = src.Tier
			return row, nil
		}
	}
	return Row{}, fmt.Errorf("%w: %s", ErrNotFound, id)
}
