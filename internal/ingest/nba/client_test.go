package nba

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fortuna/tipoff/internal/cache"
	"github.com/fortuna/tipoff/internal/game"
)

const (
	testStatsURL    = "https://stats.test"
	testScheduleURL = "https://schedule.test"
)

func newTestClient(t *testing.T, opts ...Option) (*Client, *httpmock.MockTransport) {
	t.Helper()
	mt := httpmock.NewMockTransport()
	base := []Option{
		WithHTTPClient(&http.Client{Transport: mt}),
		WithStatsBaseURL(testStatsURL),
		WithScheduleBaseURL(testScheduleURL),
		WithMinInterval(0),
	}
	return New(append(base, opts...)...), mt
}

const teamDashboardBody = `{
  "resource": "leaguedashteamstats",
  "resultSets": [{
    "name": "LeagueDashTeamStats",
    "headers": ["TEAM_ID", "TEAM_NAME", "GP", "PTS", "REB"],
    "rowSet": [
      [1610612738, "Boston Celtics", 12, 120.3, 46.1],
      [1610612747, "Los Angeles Lakers", 11, 114.0, 44.9]
    ]
  }]
}`

func TestTeamStatsBuildsTable(t *testing.T) {
	c, mt := newTestClient(t, WithFeatures([]string{"PTS", "REB"}, nil))

	mt.RegisterResponder(http.MethodGet, testStatsURL+teamDashboardPath,
		func(req *http.Request) (*http.Response, error) {
			q := req.URL.Query()
			assert.Equal(t, "2023-24", q.Get("Season"))
			assert.Equal(t, "12/10/2023", q.Get("DateFrom"))
			assert.Equal(t, "12/31/2023", q.Get("DateTo"))
			assert.Equal(t, "Home", q.Get("Location"))
			assert.Equal(t, "PerGame", q.Get("PerMode"))
			assert.Equal(t, "https://www.nba.com/", req.Header.Get("Referer"))
			assert.NotEmpty(t, req.Header.Get("User-Agent"))
			return httpmock.NewStringResponse(http.StatusOK, teamDashboardBody), nil
		})

	tbl, err := c.TeamStats(context.Background(), StatsQuery{
		Season:   "2023-24",
		DateFrom: time.Date(2023, 12, 10, 0, 0, 0, 0, time.UTC),
		DateTo:   time.Date(2023, 12, 31, 0, 0, 0, 0, time.UTC),
		Location: game.LocationHome,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"PTS", "REB"}, tbl.Columns())
	assert.Equal(t, 2, tbl.Len())

	row, ok := tbl.Lookup("1610612747")
	require.True(t, ok)
	assert.Equal(t, []string{"114", "44.9"}, row.Values)
}

func TestDashboardRequiresDateTo(t *testing.T) {
	c, mt := newTestClient(t)

	_, err := c.PlayerStats(context.Background(), StatsQuery{Season: "2023-24"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMissingParam))
	assert.Equal(t, 0, mt.GetTotalCallCount(), "validation happens before any request")
}

func TestDashboardResponsesAreCached(t *testing.T) {
	c, mt := newTestClient(t, WithCache(cache.NewMemory(time.Hour, time.Hour), time.Hour))
	mt.RegisterResponder(http.MethodGet, testStatsURL+teamDashboardPath,
		httpmock.NewStringResponder(http.StatusOK, teamDashboardBody))

	q := StatsQuery{Season: "2023-24", DateTo: time.Date(2023, 12, 31, 0, 0, 0, 0, time.UTC)}
	for i := 0; i < 3; i++ {
		_, err := c.TeamStats(context.Background(), q)
		require.NoError(t, err)
	}
	assert.Equal(t, 1, mt.GetTotalCallCount())

	q.Location = game.LocationRoad
	_, err := c.TeamStats(context.Background(), q)
	require.NoError(t, err)
	assert.Equal(t, 2, mt.GetTotalCallCount(), "different parameters are a different cache key")
}

func TestGameIDsSortedAscending(t *testing.T) {
	c, mt := newTestClient(t, WithScheduleKey("secret"))
	body := `{"modules":[{"cards":[
		{"cardData":{"gameId":"0022300450"}},
		{"cardData":{"gameId":"0022300445"}},
		{"cardData":{"gameId":"0022300447"}},
		{"cardData":{"gameId":"0022300445"}}
	]}]}`
	mt.RegisterResponder(http.MethodGet, testScheduleURL+gameCardFeedPath,
		func(req *http.Request) (*http.Response, error) {
			assert.Equal(t, "01/02/2024", req.URL.Query().Get("gamedate"))
			assert.Equal(t, "web", req.URL.Query().Get("platform"))
			assert.Equal(t, "secret", req.Header.Get("Ocp-Apim-Subscription-Key"))
			return httpmock.NewStringResponse(http.StatusOK, body), nil
		})

	ids, err := c.GameIDs(context.Background(), time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, []string{"0022300445", "0022300447", "0022300450"}, ids)
}

func TestGameIDsEmptyDay(t *testing.T) {
	c, mt := newTestClient(t)
	mt.RegisterResponder(http.MethodGet, testScheduleURL+gameCardFeedPath,
		httpmock.NewStringResponder(http.StatusOK, `{"modules":[]}`))

	ids, err := c.GameIDs(context.Background(), time.Date(2024, 2, 16, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Empty(t, ids)
}

const boxScoreBody = `{"boxScoreTraditional":{
  "gameId":"0022300445",
  "homeTeam":{"teamId":1610612738,"statistics":{"points":110},"players":[
    {"personId":1628369,"position":"F","statistics":{"points":30}},
    {"personId":1627759,"position":"G","statistics":{"points":20}},
    {"personId":201950,"position":"C","statistics":{"points":10}},
    {"personId":1628401,"position":"G","statistics":{"points":12}},
    {"personId":1629057,"position":"F","statistics":{"points":14}},
    {"personId":1630202,"position":"","statistics":{"points":24}}
  ]},
  "awayTeam":{"teamId":1610612747,"statistics":{"points":100},"players":[
    {"personId":2544,"position":"F","statistics":{"points":25}},
    {"personId":203076,"position":"C","statistics":{"points":22}},
    {"personId":1626156,"position":"G","statistics":{"points":11}},
    {"personId":1629216,"position":"G","statistics":{"points":9}},
    {"personId":1629060,"position":"F","statistics":{"points":8}}
  ]}
}}`

func TestBoxScoreParsesStartersInRankOrder(t *testing.T) {
	c, mt := newTestClient(t)
	mt.RegisterResponder(http.MethodGet, testStatsURL+boxScorePath,
		func(req *http.Request) (*http.Response, error) {
			assert.Equal(t, "0022300445", req.URL.Query().Get("GameID"))
			return httpmock.NewStringResponse(http.StatusOK, boxScoreBody), nil
		})

	m, err := c.BoxScore(context.Background(), "0022300445")
	require.NoError(t, err)
	assert.Equal(t, "0022300445", m.GameID)
	assert.Equal(t, "1610612738", m.Home.TeamID)
	assert.Equal(t, 110, m.Home.Score)
	assert.Equal(t, 100, m.Away.Score)
	assert.Equal(t, []string{"1627759", "1628401", "1628369", "1629057", "201950"}, m.Home.PlayerIDs())
	assert.Equal(t, []string{"1626156", "1629216", "2544", "1629060", "203076"}, m.Away.PlayerIDs())
}

func TestBoxScorePostponedIsNotFound(t *testing.T) {
	c, mt := newTestClient(t)
	body := `{"boxScoreTraditional":{"gameId":"0022300446","homeTeam":{"teamId":0,"players":[]},"awayTeam":{"teamId":0,"players":[]}}}`
	mt.RegisterResponder(http.MethodGet, testStatsURL+boxScorePath,
		httpmock.NewStringResponder(http.StatusOK, body))

	_, err := c.BoxScore(context.Background(), "0022300446")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestHTTPNotFound(t *testing.T) {
	c, mt := newTestClient(t)
	mt.RegisterResponder(http.MethodGet, testStatsURL+boxScorePath,
		httpmock.NewStringResponder(http.StatusNotFound, "<html><title>Not Found</title></html>"))

	_, err := c.BoxScore(context.Background(), "1")
	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusNotFound, statusErr.Code)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestBlockedPageReportsTitle(t *testing.T) {
	c, mt := newTestClient(t)
	page := `<!DOCTYPE html><html><head><title>Access Denied</title></head><body><h1>Denied</h1></body></html>`
	mt.RegisterResponder(http.MethodGet, testStatsURL+teamDashboardPath,
		httpmock.NewStringResponder(http.StatusForbidden, page))

	_, err := c.TeamStats(context.Background(), StatsQuery{Season: "2023-24", DateTo: time.Now()})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrBlocked))
	assert.Contains(t, err.Error(), "Access Denied")
}

func TestServerErrorIsStatusError(t *testing.T) {
	c, mt := newTestClient(t)
	mt.RegisterResponder(http.MethodGet, testScheduleURL+gameCardFeedPath,
		httpmock.NewStringResponder(http.StatusInternalServerError, `{"message":"boom"}`))

	_, err := c.GameIDs(context.Background(), time.Now())
	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusInternalServerError, statusErr.Code)
	assert.False(t, errors.Is(err, ErrNotFound))
}

func TestDailyLineups(t *testing.T) {
	c, mt := newTestClient(t)
	body := `{"games":[
	  {"gameId":"0022300502",
	   "homeTeam":{"teamId":1610612744,"players":[
	     {"personId":1,"position":"C"},{"personId":2,"position":"PF"},{"personId":3,"position":"SF"},
	     {"personId":4,"position":"SG"},{"personId":5,"position":"PG"}]},
	   "awayTeam":{"teamId":1610612756,"players":[
	     {"personId":6,"position":"PG"},{"personId":7,"position":"SG"},{"personId":8,"position":"SF"},
	     {"personId":9,"position":"PF"},{"personId":10,"position":"C"}]}},
	  {"gameId":"0022300501",
	   "homeTeam":{"teamId":1610612737,"players":[{"personId":11,"position":"PG"}]},
	   "awayTeam":{"teamId":1610612751,"players":[]}}
	]}`
	mt.RegisterResponder(http.MethodGet, testStatsURL+"/js/data/leaders/00_daily_lineups_20240110.json",
		httpmock.NewStringResponder(http.StatusOK, body))

	games, err := c.DailyLineups(context.Background(), time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Len(t, games, 1, "incomplete lineups are dropped")
	assert.Equal(t, "0022300502", games[0].GameID)
	assert.Equal(t, []string{"4", "5", "2", "3", "1"}, games[0].Home.PlayerIDs())
	assert.Equal(t, 0, games[0].Home.Score)
}

func TestContextCancelledBeforeRequest(t *testing.T) {
	c, mt := newTestClient(t, WithMinInterval(time.Hour))
	mt.RegisterResponder(http.MethodGet, testScheduleURL+gameCardFeedPath,
		httpmock.NewStringResponder(http.StatusOK, `{"modules":[]}`))

	_, err := c.GameIDs(context.Background(), time.Now())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = c.GameIDs(ctx, time.Now())
	require.Error(t, err)
	assert.Equal(t, 1, mt.GetTotalCallCount())
}

func TestIDAcceptsStringsAndNumbers(t *testing.T) {
	var ids struct {
		A ID `json:"a"`
		B ID `json:"b"`
		C ID `json:"c"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"a":"0022300445","b":1610612738,"c":null}`), &ids))
	assert.Equal(t, ID("0022300445"), ids.A)
	assert.Equal(t, ID("1610612738"), ids.B)
	assert.Equal(t, ID(""), ids.C)
}
