package assembler

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fortuna/tipoff/internal/dataset"
	"github.com/fortuna/tipoff/internal/game"
	"github.com/fortuna/tipoff/internal/logger"
	"github.com/fortuna/tipoff/internal/stats"
)

var gameDate = time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)

func table(t *testing.T, idColumn string, rows map[string]float64) *stats.Table {
	t.Helper()
	raw := make([][]any, 0, len(rows))
	for id, pts := range rows {
		raw = append(raw, []any{id, pts})
	}
	tbl, err := stats.NewTable(idColumn, []string{idColumn, "PTS"}, raw, nil)
	require.NoError(t, err)
	return tbl
}

func lineup(teamID string, score int, players ...string) game.Lineup {
	positions := []string{"G", "G", "F", "F", "C"}
	l := game.Lineup{TeamID: teamID, Score: score}
	for i, p := range players {
		l.Starters = append(l.Starters, game.Starter{PlayerID: p, Position: positions[i%len(positions)]})
	}
	return l
}

func fixtureTables(t *testing.T) Tables {
	players := map[string]float64{}
	for i := 1; i <= 10; i++ {
		players[fmt.Sprint(i)] = float64(i)
	}
	general := table(t, "PLAYER_ID", players)
	teams := table(t, "TEAM_ID", map[string]float64{"100": 110, "200": 100})
	return Tables{
		HomeTeams:   stats.TierSet{Recent: teams, General: teams},
		AwayTeams:   stats.TierSet{Recent: teams, General: teams},
		HomePlayers: stats.TierSet{Recent: general, General: general},
		AwayPlayers: stats.TierSet{Recent: general, General: general},
	}
}

func matchup() game.Matchup {
	return game.Matchup{
		GameID: "0022300445",
		Home:   lineup("100", 110, "1", "2", "3", "4", "5"),
		Away:   lineup("200", 100, "6", "7", "8", "9", "10"),
	}
}

func TestAssembleColumnOrder(t *testing.T) {
	a := New(logger.Nop(), nil)

	res, err := a.Assemble(context.Background(), gameDate, matchup(), fixtureTables(t))
	require.NoError(t, err)

	rec := res.Record
	want := []string{"DATE", "GAME_ID", "HOME_PTS"}
	for i := 0; i < 5; i++ {
		want = append(want, fmt.Sprintf("HOME_P%d_PTS", i))
	}
	want = append(want, "AWAY_PTS")
	for i := 0; i < 5; i++ {
		want = append(want, fmt.Sprintf("AWAY_P%d_PTS", i))
	}
	want = append(want, "HOME_SCORE", "AWAY_SCORE")

	assert.Equal(t, want, rec.Columns)
	require.Len(t, rec.Values, len(want))
	assert.Equal(t, "2024-01-02", rec.Values[0])
	assert.Equal(t, "0022300445", rec.Values[1])
	assert.Equal(t, "110", rec.Values[len(want)-2])
	assert.Equal(t, "100", rec.Values[len(want)-1])
	assert.Empty(t, res.Fallbacks)
}

func TestAssembleSlotsIndependentOfAPIOrder(t *testing.T) {
	a := New(logger.Nop(), nil)
	tables := fixtureTables(t)

	first := matchup()
	second := matchup()
	second.Home.Starters = []game.Starter{
		first.Home.Starters[4], first.Home.Starters[2], first.Home.Starters[0],
		first.Home.Starters[3], first.Home.Starters[1],
	}

	r1, err := a.Assemble(context.Background(), gameDate, first, tables)
	require.NoError(t, err)
	r2, err := a.Assemble(context.Background(), gameDate, second, tables)
	require.NoError(t, err)

	assert.Equal(t, r1.Record.Values, r2.Record.Values)
	p0, _ := r1.Record.Get("HOME_P0_PTS")
	assert.Equal(t, "1", p0)
	p4, _ := r1.Record.Get("HOME_P4_PTS")
	assert.Equal(t, "5", p4, "center sorts last")
}

func TestAssembleRecordsFallbacks(t *testing.T) {
	a := New(logger.Nop(), nil)
	tables := fixtureTables(t)
	tables.HomePlayers.SeasonToDate = table(t, "PLAYER_ID", map[string]float64{"1": 42})
	tables.HomePlayers.Recent = table(t, "PLAYER_ID", map[string]float64{"2": 2, "3": 3, "4": 4, "5": 5})

	res, err := a.Assemble(context.Background(), gameDate, matchup(), tables)
	require.NoError(t, err)

	require.Len(t, res.Fallbacks, 1)
	assert.Equal(t, EntityPlayer, res.Fallbacks[0].Entity)
	assert.Equal(t, "1", res.Fallbacks[0].EntityID)
	assert.Equal(t, "HOME_P0", res.Fallbacks[0].Column)
	assert.Equal(t, stats.TierSeasonToDate, res.Fallbacks[0].Tier)

	v, _ := res.Record.Get("HOME_P0_PTS")
	assert.Equal(t, "42", v)
}

func TestAssembleSkipsOnMissingPlayer(t *testing.T) {
	a := New(logger.Nop(), nil)
	m := matchup()
	m.Away.Starters[2].PlayerID = "999"

	_, err := a.Assemble(context.Background(), gameDate, m, fixtureTables(t))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrSkipGame))
	assert.True(t, errors.Is(err, stats.ErrNotFound))
	assert.False(t, errors.Is(err, ErrTeamNotFound))
}

func TestAssembleSkipsShortLineup(t *testing.T) {
	a := New(logger.Nop(), nil)
	m := matchup()
	m.Home.Starters = m.Home.Starters[:4]

	_, err := a.Assemble(context.Background(), gameDate, m, fixtureTables(t))
	assert.True(t, errors.Is(err, ErrSkipGame))
}

func TestAssembleMissingTeamIsFatal(t *testing.T) {
	a := New(logger.Nop(), nil)
	m := matchup()
	m.Away.TeamID = "300"

	_, err := a.Assemble(context.Background(), gameDate, m, fixtureTables(t))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrTeamNotFound))
	assert.False(t, errors.Is(err, ErrSkipGame))
}

func TestAssembledRecordsShareSchema(t *testing.T) {
	a := New(logger.Nop(), nil)
	tables := fixtureTables(t)
	schema := dataset.NewSchema()

	for _, id := range []string{"0022300445", "0022300446"} {
		m := matchup()
		m.GameID = id
		res, err := a.Assemble(context.Background(), gameDate, m, tables)
		require.NoError(t, err)
		require.NoError(t, schema.Freeze(res.Record.Columns))
		require.NoError(t, schema.Validate(res.Record))
	}
}
