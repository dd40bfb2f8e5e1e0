package nba

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// ID accepts identifiers sent either as JSON strings or numbers.
type ID string

func (id *ID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*id = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("id %s: %w", b, err)
	}
	*id = ID(n.String())
	return nil
}

// resultSetsResponse is the shape shared by the stats.nba.com dashboards.
type resultSetsResponse struct {
	ResultSets []struct {
		Name    string   `json:"name"`
		Headers []string `json:"headers"`
		RowSet  [][]any  `json:"rowSet"`
	} `json:"resultSets"`
}

type gameCardFeed struct {
	Modules []struct {
		Cards []struct {
			CardData struct {
				GameID ID `json:"gameId"`
			} `json:"cardData"`
		} `json:"cards"`
	} `json:"modules"`
}

type boxScorePlayer struct {
	PersonID   ID     `json:"personId"`
	Position   string `json:"position"`
	Statistics struct {
		Points int `json:"points"`
	} `json:"statistics"`
}

type boxScoreTeam struct {
	TeamID     ID               `json:"teamId"`
	Players    []boxScorePlayer `json:"players"`
	Statistics struct {
		Points int `json:"points"`
	} `json:"statistics"`
}

type boxScoreResponse struct {
	BoxScoreTraditional *struct {
		GameID   ID           `json:"gameId"`
		HomeTeam boxScoreTeam `json:"homeTeam"`
		AwayTeam boxScoreTeam `json:"awayTeam"`
	} `json:"boxScoreTraditional"`
}

type lineupPlayer struct {
	PersonID ID     `json:"personId"`
	Position string `json:"position"`
}

type lineupTeam struct {
	TeamID  ID             `json:"teamId"`
	Players []lineupPlayer `json:"players"`
}

type dailyLineupsResponse struct {
	Games []struct {
		GameID   ID         `json:"gameId"`
		HomeTeam lineupTeam `json:"homeTeam"`
		AwayTeam lineupTeam `json:"awayTeam"`
	} `json:"games"`
}
