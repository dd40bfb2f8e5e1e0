package game

import (
	"cmp"
	"slices"
	"strconv"
	"strings"
	"time"
)

// DateLayout is the calendar date format used in datasets and on the command line.
const DateLayout = "2006-01-02"

// StartersPerTeam is the size of a StarterRoster.
const StartersPerTeam = 5

// Location scopes a stat table to home games, road games, or all games.
type Location string

const (
	LocationNone Location = ""
	LocationHome Location = "Home"
	LocationRoad Location = "Road"
)

// Prefix returns the column prefix used for features of this side of a game.
func (l Location) Prefix() string {
	switch l {
	case LocationHome:
		return "HOME"
	case LocationRoad:
		return "AWAY"
	default:
		return ""
	}
}

// Starter is one starting player and the position the source reported for them.
type Starter struct {
	PlayerID string
	Position string
}

// Lineup is one team's side of a game.
type Lineup struct {
	TeamID   string
	Starters []Starter
	Score    int
}

// Matchup is the box-score view of one game: both lineups and the final score.
// Scores are zero for games that have not been played yet.
type Matchup struct {
	GameID string
	Home   Lineup
	Away   Lineup
}

// PlayerIDs returns the starters' identifiers in their current order.
func (l Lineup) PlayerIDs() []string {
	ids := make([]string, len(l.Starters))
	for i, s := range l.Starters {
		ids[i] = s.PlayerID
	}
	return ids
}

// PositionRank orders positions guard < forward < center. Both the box score
// codes (G, F, C, G-F) and the lineup codes (PG, SG, SF, PF, C) are accepted;
// anything unrecognised sorts last.
func PositionRank(position string) int {
	p := strings.ToUpper(strings.TrimSpace(position))
	switch {
	case p == "":
		return 3
	case p == "PG" || p == "SG" || strings.HasPrefix(p, "G"):
		return 0
	case p == "SF" || p == "PF" || strings.HasPrefix(p, "F"):
		return 1
	case strings.HasPrefix(p, "C"):
		return 2
	default:
		return 3
	}
}

// OrderStarters sorts starters by position rank, breaking ties by ascending
// player identifier. The result does not depend on the input order.
func OrderStarters(starters []Starter) []Starter {
	ordered := slices.Clone(starters)
	slices.SortFunc(ordered, func(a, b Starter) int {
		if c := cmp.Compare(PositionRank(a.Position), PositionRank(b.Position)); c != 0 {
			return c
		}
		return CompareIDs(a.PlayerID, b.PlayerID)
	})
	return ordered
}

// CompareIDs compares two identifiers numerically when both are integers and
// lexicographically otherwise. Game identifiers keep their leading zeros, so
// the numeric comparison is what gives ascending game order.
func CompareIDs(a, b string) int {
	na, errA := strconv.ParseInt(a, 10, 64)
	nb, errB := strconv.ParseInt(b, 10, 64)
	if errA == nil && errB == nil {
		return cmp.Compare(na, nb)
	}
	return strings.Compare(a, b)
}

// SortGameIDs sorts game identifiers in ascending order in place.
func SortGameIDs(ids []string) {
	slices.SortFunc(ids, CompareIDs)
}

// Truncate drops the clock part of t, keeping the calendar date in UTC.
func Truncate(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// ParseDate parses a YYYY-MM-DD date.
func ParseDate(s string) (time.Time, error) {
	return time.Parse(DateLayout, strings.TrimSpace(s))
}
