// Package assembler flattens one game into a dataset record.
package assembler

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/fortuna/tipoff/internal/dataset"
	"github.com/fortuna/tipoff/internal/game"
	"github.com/fortuna/tipoff/internal/logger"
	"github.com/fortuna/tipoff/internal/metrics"
	"github.com/fortuna/tipoff/internal/stats"
)

var (
	// ErrSkipGame drops the game from the dataset without failing the run.
	ErrSkipGame = errors.New("game skipped")
	// ErrTeamNotFound means a team is missing from every tier, general included.
	ErrTeamNotFound = errors.New("team not found in any stat tier")
)

// Entity kinds, as reported in logs and metrics.
const (
	EntityTeam   = "team"
	EntityPlayer = "player"
)

// Tables holds the stat tables fetched for one date. The general tier is
// location-agnostic and normally shared by both sides.
type Tables struct {
	HomeTeams   stats.TierSet
	AwayTeams   stats.TierSet
	HomePlayers stats.TierSet
	AwayPlayers stats.TierSet
}

func (t Tables) teams(loc game.Location) stats.TierSet {
	if loc == game.LocationHome {
		return t.HomeTeams
	}
	return t.AwayTeams
}

func (t Tables) players(loc game.Location) stats.TierSet {
	if loc == game.LocationHome {
		return t.HomePlayers
	}
	return t.AwayPlayers
}

// Fallback records an entity served from a tier below recent.
type Fallback struct {
	Entity   string
	EntityID string
	Column   string
	Tier     stats.Tier
}

// Result is an assembled record plus the fallbacks it needed.
type Result struct {
	Record    dataset.Record
	Fallbacks []Fallback
}

// Assembler builds game records. It is stateless across games.
type Assembler struct {
	log     logger.Logger
	metrics *metrics.Manager
}

// New constructs an Assembler. metrics may be nil.
func New(log logger.Logger, m *metrics.Manager) *Assembler {
	if log == nil {
		log = logger.Nop()
	}
	return &Assembler{log: log.Named("assembler"), metrics: m}
}

// Assemble resolves both teams and all ten starters and concatenates them as
// DATE, GAME_ID, home team, home starters P0..P4, away team, away starters
// P0..P4, HOME_SCORE, AWAY_SCORE. Starters are placed in position-rank order.
func (a *Assembler) Assemble(ctx context.Context, date time.Time, m game.Matchup, tables Tables) (Result, error) {
	b := &builder{
		ctx:    ctx,
		a:      a,
		gameID: m.GameID,
		date:   date.Format(game.DateLayout),
	}
	b.add(dataset.ColumnDate, b.date)
	b.add(dataset.ColumnGameID, m.GameID)

	for _, side := range []struct {
		loc    game.Location
		lineup game.Lineup
	}{
		{game.LocationHome, m.Home},
		{game.LocationRoad, m.Away},
	} {
		if err := b.addSide(side.loc, side.lineup, tables); err != nil {
			return Result{}, err
		}
	}

	b.add(dataset.ColumnHomeScore, strconv.Itoa(m.Home.Score))
	b.add(dataset.ColumnAwayScore, strconv.Itoa(m.Away.Score))

	for _, fb := range b.fallbacks {
		a.metrics.RecordTierFallback(fb.Entity, fb.Tier.String())
	}
	a.metrics.RecordGameAssembled()

	return Result{
		Record:    dataset.Record{Columns: b.columns, Values: b.values},
		Fallbacks: b.fallbacks,
	}, nil
}

type builder struct {
	ctx       context.Context
	a         *Assembler
	gameID    string
	date      string
	columns   []string
	values    []string
	fallbacks []Fallback
}

func (b *builder) add(column, value string) {
	b.columns = append(b.columns, column)
	b.values = append(b.values, value)
}

func (b *builder) addRow(prefix string, row stats.Row) {
	for i, col := range row.Columns {
		b.add(prefix+"_"+col, row.Values[i])
	}
}

func (b *builder) addSide(loc game.Location, lineup game.Lineup, tables Tables) error {
	prefix := loc.Prefix()

	if len(lineup.Starters) != game.StartersPerTeam {
		return fmt.Errorf("%w: game %s %s side has %d starters", ErrSkipGame, b.gameID, prefix, len(lineup.Starters))
	}

	teamRow, err := tables.teams(loc).Resolve(lineup.TeamID)
	if err != nil {
		b.a.log.Error(b.ctx, "team missing from every stat tier",
			logger.String("game_id", b.gameID),
			logger.String("date", b.date),
			logger.String("entity", lineup.TeamID),
			logger.String("side", prefix),
		)
		return fmt.Errorf("%w: game %s %s team %s: %w", ErrTeamNotFound, b.gameID, prefix, lineup.TeamID, err)
	}
	b.note(EntityTeam, prefix, teamRow)
	b.addRow(prefix, teamRow)

	for slot, starter := range game.OrderStarters(lineup.Starters) {
		column := fmt.Sprintf("%s_P%d", prefix, slot)
		row, err := tables.players(loc).Resolve(starter.PlayerID)
		if err != nil {
			return fmt.Errorf("%w: game %s player %s (%s): %w", ErrSkipGame, b.gameID, starter.PlayerID, column, err)
		}
		b.note(EntityPlayer, column, row)
		b.addRow(column, row)
	}
	return nil
}

func (b *builder) note(entity, column string, row stats.Row) {
	if row.Tier == stats.TierRecent {
		return
	}
	b.a.log.Warn(b.ctx, "stat tier fallback",
		logger.String("game_id", b.gameID),
		logger.String("date", b.date),
		logger.String("entity", row.EntityID),
		logger.String("slot", column),
		logger.String("tier", row.Tier.String()),
	)
	b.fallbacks = append(b.fallbacks, Fallback{
		Entity:   entity,
		EntityID: row.EntityID,
		Column:   column,
		Tier:     row.Tier,
	})
}
