package backfill

import (
	"time"

	"github.com/fortuna/tipoff/internal/game"
)

// enumerateDates returns every calendar date from start to end inclusive, in
// UTC. It returns nil when end precedes start.
func enumerateDates(start, end time.Time) []time.Time {
	current := game.Truncate(start)
	final := game.Truncate(end)
	if final.Before(current) {
		return nil
	}

	var dates []time.Time
	for !current.After(final) {
		dates = append(dates, current)
		current = current.AddDate(0, 0, 1)
	}

	return dates
}
