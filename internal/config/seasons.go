package config

import (
	"fmt"
	"time"
)

type seasonDates struct {
	start string
	end   string
}

// Collection windows per season. Starts sit about two weeks after opening
// night so the recent tier has games to draw from.
var seasons = map[string]seasonDates{
	"2019-20": {"2019-11-07", "2020-03-10"},
	"2020-21": {"2020-12-22", "2021-05-16"},
	"2021-22": {"2021-11-07", "2022-04-10"},
	"2022-23": {"2022-11-07", "2023-04-09"},
	"2023-24": {"2023-11-07", "2024-04-14"},
	"2024-25": {"2024-11-07", "2025-04-13"},
	"2025-26": {"2025-11-07", "2026-04-12"},
}

// SeasonWindow returns the calendar bounds for a season label.
func SeasonWindow(season string) (start, end time.Time, err error) {
	d, ok := seasons[season]
	if !ok {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: %s", ErrUnknownSeason, season)
	}
	start, _ = time.Parse(time.DateOnly, d.start)
	end, _ = time.Parse(time.DateOnly, d.end)
	return start, end, nil
}

// SeasonForDate derives the "YYYY-YY" label of the season a date falls in.
// September onwards belongs to the season starting that year.
func SeasonForDate(t time.Time) string {
	year := t.Year()
	if t.Month() < time.September {
		year--
	}
	return fmt.Sprintf("%d-%02d", year, (year+1)%100)
}
