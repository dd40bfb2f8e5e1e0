package nba

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"slices"
	"time"

	"github.com/fortuna/tipoff/internal/game"
	"github.com/fortuna/tipoff/internal/stats"
)

const (
	teamDashboardPath   = "/stats/leaguedashteamstats"
	playerDashboardPath = "/stats/leaguedashplayerstats"
	boxScorePath        = "/stats/boxscoretraditionalv3"
	dailyLineupsPath    = "/js/data/leaders/00_daily_lineups_%s.json"
	gameCardFeedPath    = "/cp/api/v1.3/feeds/gamecardfeed"

	// queryDateLayout is the MM/DD/YYYY form the stats endpoints expect.
	queryDateLayout = "01/02/2006"
)

// dashboardEndpoint covers leaguedashteamstats and leaguedashplayerstats,
// which share parameters and the resultSets response shape.
type dashboardEndpoint struct {
	c        *Client
	name     string
	path     string
	idColumn string
	features []string
	defaults url.Values
}

func (e dashboardEndpoint) Name() string       { return e.name }
func (e dashboardEndpoint) Required() []string { return []string{"Season", "DateTo"} }
func (e dashboardEndpoint) Cacheable() bool    { return true }

func (e dashboardEndpoint) Request(ctx context.Context, params url.Values) (*http.Request, error) {
	merged := url.Values{}
	for k, v := range e.defaults {
		merged[k] = v
	}
	for k, v := range params {
		merged[k] = v
	}
	return e.c.newRequest(ctx, e.c.statsBaseURL, e.path, merged)
}

func (e dashboardEndpoint) Parse(body []byte) (*stats.Table, error) {
	var resp resultSetsResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if len(resp.ResultSets) == 0 {
		return nil, fmt.Errorf("response has no result sets")
	}
	rs := resp.ResultSets[0]
	return stats.NewTable(e.idColumn, rs.Headers, rs.RowSet, e.features)
}

func dashboardDefaults() url.Values {
	return url.Values{
		"DateFrom":       {""},
		"LastNGames":     {"0"},
		"LeagueID":       {"00"},
		"Location":       {""},
		"MeasureType":    {"Base"},
		"Month":          {"0"},
		"OpponentTeamID": {"0"},
		"PORound":        {"0"},
		"PaceAdjust":     {"N"},
		"PerMode":        {"PerGame"},
		"Period":         {"0"},
		"PlusMinus":      {"N"},
		"Rank":           {"N"},
		"SeasonSegment":  {""},
		"SeasonType":     {"Regular Season"},
		"TeamID":         {"0"},
		"TwoWay":         {"0"},
	}
}

// StatsQuery selects one dashboard view. A zero DateFrom means season start;
// LocationNone means all games.
type StatsQuery struct {
	Season   string
	DateFrom time.Time
	DateTo   time.Time
	Location game.Location
}

func (q StatsQuery) params() url.Values {
	p := url.Values{}
	p.Set("Season", q.Season)
	if !q.DateTo.IsZero() {
		p.Set("DateTo", q.DateTo.Format(queryDateLayout))
	}
	if !q.DateFrom.IsZero() {
		p.Set("DateFrom", q.DateFrom.Format(queryDateLayout))
	}
	if q.Location != game.LocationNone {
		p.Set("Location", string(q.Location))
	}
	return p
}

// TeamStats fetches the team dashboard indexed by TEAM_ID.
func (c *Client) TeamStats(ctx context.Context, q StatsQuery) (*stats.Table, error) {
	ep := dashboardEndpoint{
		c:        c,
		name:     "team_stats",
		path:     teamDashboardPath,
		idColumn: "TEAM_ID",
		features: c.teamFeatures,
		defaults: dashboardDefaults(),
	}
	return do[*stats.Table](ctx, c, ep, q.params())
}

// PlayerStats fetches the player dashboard indexed by PLAYER_ID.
func (c *Client) PlayerStats(ctx context.Context, q StatsQuery) (*stats.Table, error) {
	ep := dashboardEndpoint{
		c:        c,
		name:     "player_stats",
		path:     playerDashboardPath,
		idColumn: "PLAYER_ID",
		features: c.playerFeatures,
		defaults: dashboardDefaults(),
	}
	return do[*stats.Table](ctx, c, ep, q.params())
}

type scheduleEndpoint struct{ c *Client }

func (e scheduleEndpoint) Name() string       { return "schedule" }
func (e scheduleEndpoint) Required() []string { return []string{"gamedate"} }
func (e scheduleEndpoint) Cacheable() bool    { return false }

func (e scheduleEndpoint) Request(ctx context.Context, params url.Values) (*http.Request, error) {
	params.Set("platform", "web")
	req, err := e.c.newRequest(ctx, e.c.scheduleBaseURL, gameCardFeedPath, params)
	if err != nil {
		return nil, err
	}
	if e.c.scheduleKey != "" {
		req.Header.Set("Ocp-Apim-Subscription-Key", e.c.scheduleKey)
	}
	return req, nil
}

func (e scheduleEndpoint) Parse(body []byte) ([]string, error) {
	var feed gameCardFeed
	if err := json.Unmarshal(body, &feed); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if len(feed.Modules) == 0 {
		return nil, nil
	}
	ids := make([]string, 0, len(feed.Modules[0].Cards))
	seen := make(map[string]bool)
	for _, card := range feed.Modules[0].Cards {
		id := string(card.CardData.GameID)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
	}
	game.SortGameIDs(ids)
	return ids, nil
}

// GameIDs returns the identifiers of the games scheduled on date, ascending.
func (c *Client) GameIDs(ctx context.Context, date time.Time) ([]string, error) {
	params := url.Values{}
	params.Set("gamedate", date.Format(queryDateLayout))
	return do[[]string](ctx, c, scheduleEndpoint{c: c}, params)
}

type boxScoreEndpoint struct{ c *Client }

func (e boxScoreEndpoint) Name() string       { return "boxscore" }
func (e boxScoreEndpoint) Required() []string { return []string{"GameID"} }
func (e boxScoreEndpoint) Cacheable() bool    { return true }

func (e boxScoreEndpoint) Request(ctx context.Context, params url.Values) (*http.Request, error) {
	params.Set("LeagueID", "00")
	params.Set("endPeriod", "0")
	params.Set("endRange", "28800")
	params.Set("rangeType", "0")
	params.Set("startPeriod", "0")
	params.Set("startRange", "0")
	return e.c.newRequest(ctx, e.c.statsBaseURL, boxScorePath, params)
}

func (e boxScoreEndpoint) Parse(body []byte) (game.Matchup, error) {
	var resp boxScoreResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return game.Matchup{}, fmt.Errorf("decode response: %w", err)
	}
	bs := resp.BoxScoreTraditional
	if bs == nil {
		return game.Matchup{}, fmt.Errorf("%w: empty box score", ErrNotFound)
	}

	m := game.Matchup{GameID: string(bs.GameID)}
	var err error
	if m.Home, err = boxScoreLineup(bs.HomeTeam); err != nil {
		return game.Matchup{}, fmt.Errorf("game %s home: %w", m.GameID, err)
	}
	if m.Away, err = boxScoreLineup(bs.AwayTeam); err != nil {
		return game.Matchup{}, fmt.Errorf("game %s away: %w", m.GameID, err)
	}
	return m, nil
}

func boxScoreLineup(t boxScoreTeam) (game.Lineup, error) {
	if t.TeamID == "" || t.TeamID == "0" {
		return game.Lineup{}, fmt.Errorf("%w: no team", ErrNotFound)
	}
	l := game.Lineup{TeamID: string(t.TeamID), Score: t.Statistics.Points}
	for _, p := range t.Players {
		if p.Position == "" {
			continue
		}
		l.Starters = append(l.Starters, game.Starter{PlayerID: string(p.PersonID), Position: p.Position})
		if len(l.Starters) == game.StartersPerTeam {
			break
		}
	}
	if len(l.Starters) < game.StartersPerTeam {
		return game.Lineup{}, fmt.Errorf("%w: %d starters listed", ErrNotFound, len(l.Starters))
	}
	l.Starters = game.OrderStarters(l.Starters)
	return l, nil
}

// BoxScore returns both lineups and the final score of a game. Postponed or
// unplayed games yield ErrNotFound.
func (c *Client) BoxScore(ctx context.Context, gameID string) (game.Matchup, error) {
	params := url.Values{}
	params.Set("GameID", gameID)
	m, err := do[game.Matchup](ctx, c, boxScoreEndpoint{c: c}, params)
	if err != nil {
		return game.Matchup{}, err
	}
	if m.GameID == "" {
		m.GameID = gameID
	}
	return m, nil
}

type lineupsEndpoint struct{ c *Client }

func (e lineupsEndpoint) Name() string       { return "daily_lineups" }
func (e lineupsEndpoint) Required() []string { return []string{"date"} }
func (e lineupsEndpoint) Cacheable() bool    { return false }

func (e lineupsEndpoint) Request(ctx context.Context, params url.Values) (*http.Request, error) {
	return e.c.newRequest(ctx, e.c.statsBaseURL, fmt.Sprintf(dailyLineupsPath, params.Get("date")), nil)
}

func (e lineupsEndpoint) Parse(body []byte) ([]game.Matchup, error) {
	var resp dailyLineupsResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	out := make([]game.Matchup, 0, len(resp.Games))
	for _, g := range resp.Games {
		home, okHome := lineupFromFeed(g.HomeTeam)
		away, okAway := lineupFromFeed(g.AwayTeam)
		if !okHome || !okAway {
			continue
		}
		out = append(out, game.Matchup{GameID: string(g.GameID), Home: home, Away: away})
	}
	return out, nil
}

func lineupFromFeed(t lineupTeam) (game.Lineup, bool) {
	if t.TeamID == "" {
		return game.Lineup{}, false
	}
	l := game.Lineup{TeamID: string(t.TeamID)}
	for _, p := range t.Players {
		if p.Position == "" {
			continue
		}
		l.Starters = append(l.Starters, game.Starter{PlayerID: string(p.PersonID), Position: p.Position})
		if len(l.Starters) == game.StartersPerTeam {
			break
		}
	}
	if len(l.Starters) < game.StartersPerTeam {
		return game.Lineup{}, false
	}
	l.Starters = game.OrderStarters(l.Starters)
	return l, true
}

// DailyLineups returns the announced starters for every game on date, with
// zero scores. Games whose lineups are incomplete are left out.
func (c *Client) DailyLineups(ctx context.Context, date time.Time) ([]game.Matchup, error) {
	params := url.Values{}
	params.Set("date", date.Format("20060102"))
	matchups, err := do[[]game.Matchup](ctx, c, lineupsEndpoint{c: c}, params)
	if err != nil {
		return nil, err
	}
	slices.SortFunc(matchups, func(a, b game.Matchup) int {
		return game.CompareIDs(a.GameID, b.GameID)
	})
	return matchups, nil
}
