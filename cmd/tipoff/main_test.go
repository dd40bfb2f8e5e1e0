package main

import (
	"bytes"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fortuna/tipoff/internal/backfill"
	"github.com/fortuna/tipoff/internal/config"
	"github.com/fortuna/tipoff/internal/dataset"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestBuildRunSpec(t *testing.T) {
	now := time.Date(2024, 1, 15, 18, 30, 0, 0, time.UTC)

	tests := []struct {
		name      string
		mode      backfill.Mode
		start     string
		end       string
		wantStart time.Time
		wantEnd   time.Time
		wantErr   bool
	}{
		{
			name:      "generate covers the season window",
			mode:      backfill.ModeGenerate,
			wantStart: date(2023, 11, 7),
			wantEnd:   date(2024, 4, 14),
		},
		{
			name:      "update stops at yesterday",
			mode:      backfill.ModeUpdate,
			wantStart: date(2023, 11, 7),
			wantEnd:   date(2024, 1, 14),
		},
		{
			name:      "update keeps an explicit end",
			mode:      backfill.ModeUpdate,
			end:       "2024-02-01",
			wantStart: date(2023, 11, 7),
			wantEnd:   date(2024, 2, 1),
		},
		{
			name:      "explicit range",
			mode:      backfill.ModeGenerate,
			start:     "2024-01-02",
			end:       "2024-01-05",
			wantStart: date(2024, 1, 2),
			wantEnd:   date(2024, 1, 5),
		},
		{
			name:      "today",
			mode:      backfill.ModeToday,
			wantStart: date(2024, 1, 15),
			wantEnd:   date(2024, 1, 15),
		},
		{
			name:      "today for a given date",
			mode:      backfill.ModeToday,
			start:     "2024-01-12",
			wantStart: date(2024, 1, 12),
			wantEnd:   date(2024, 1, 12),
		},
		{
			name:    "generate rejects a reversed range",
			mode:    backfill.ModeGenerate,
			start:   "2024-01-05",
			end:     "2024-01-02",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.New()
			cfg.Season = "2023-24"
			cfg.StartDate = tt.start
			cfg.EndDate = tt.end

			spec, err := buildRunSpec(cfg, tt.mode, now)
			if tt.wantErr {
				assert.ErrorIs(t, err, config.ErrInvalidConfig)
				return
			}
			require.NoError(t, err)
			assert.NotEmpty(t, spec.RunID)
			assert.Equal(t, tt.mode, spec.Mode)
			assert.Equal(t, "2023-24", spec.Season)
			assert.Equal(t, tt.wantStart, spec.Start)
			assert.Equal(t, tt.wantEnd, spec.End)
		})
	}
}

func TestBuildRunSpecUnknownSeason(t *testing.T) {
	cfg := config.New()
	cfg.Season = "1999-00"

	_, err := buildRunSpec(cfg, backfill.ModeGenerate, time.Now())
	assert.ErrorIs(t, err, config.ErrUnknownSeason)
}

func TestInspect(t *testing.T) {
	store := dataset.NewStore(t.TempDir())
	require.NoError(t, os.WriteFile(store.Path("2023-24"), []byte(
		"DATE,GAME_ID,HOME_SCORE,AWAY_SCORE\n"+
			"2024-01-10,0022300500,110,100\n"+
			"2024-01-11,0022300510,98,101\n"), 0o644))
	require.NoError(t, os.WriteFile(store.Path("2022-23"), []byte("DATE,GAME_ID\n"), 0o644))

	var out bytes.Buffer
	require.NoError(t, inspect(&out, store, "2023-24"))
	assert.Contains(t, out.String(), "rows:    2")
	assert.Contains(t, out.String(), "columns: 4")
	assert.Contains(t, out.String(), "checkpoint: 2024-01-11/0022300510")

	out.Reset()
	require.NoError(t, inspect(&out, store, "2022-23"))
	assert.Contains(t, out.String(), "checkpoint: none")

	assert.Error(t, inspect(&out, store, "2019-20"))
}
