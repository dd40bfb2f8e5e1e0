package dataset

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testColumns = []string{"DATE", "GAME_ID", "HOME_PTS", "AWAY_PTS", "HOME_SCORE", "AWAY_SCORE"}

func record(date, gameID string, home, away string) Record {
	return Record{
		Columns: testColumns,
		Values:  []string{date, gameID, "110.2", "101.9", home, away},
	}
}

func TestSchemaFreezeOnce(t *testing.T) {
	s := NewSchema()
	assert.False(t, s.Frozen())

	require.NoError(t, s.Freeze(testColumns))
	assert.True(t, s.Frozen())
	require.NoError(t, s.Freeze(testColumns))

	err := s.Freeze([]string{"DATE", "GAME_ID"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrSchemaMismatch))

	cols := s.Columns()
	cols[0] = "mutated"
	assert.Equal(t, "DATE", s.Columns()[0])
}

func TestSchemaValidateReportsPosition(t *testing.T) {
	s := NewSchema()
	require.NoError(t, s.Freeze(testColumns))

	require.NoError(t, s.Validate(record("2024-01-02", "0022300445", "110", "100")))

	swapped := []string{"DATE", "GAME_ID", "AWAY_PTS", "HOME_PTS", "HOME_SCORE", "AWAY_SCORE"}
	err := s.Validate(Record{Columns: swapped, Values: make([]string, len(swapped))})
	var mismatch *MismatchError
	require.True(t, errors.As(err, &mismatch))
	assert.Equal(t, 2, mismatch.Position)
	assert.Equal(t, "HOME_PTS", mismatch.Want)
	assert.Equal(t, "AWAY_PTS", mismatch.Got)

	short := testColumns[:4]
	err = s.Validate(Record{Columns: short, Values: make([]string, 4)})
	require.True(t, errors.As(err, &mismatch))
	assert.Equal(t, -1, mismatch.Position)
	assert.Equal(t, 6, mismatch.WantLen)
	assert.Equal(t, 4, mismatch.GotLen)

	ragged := Record{Columns: testColumns, Values: []string{"2024-01-02", "0022300445", "110"}}
	err = s.Validate(ragged)
	require.True(t, errors.As(err, &mismatch))
	assert.Equal(t, -1, mismatch.Position)
	assert.Equal(t, 6, mismatch.WantLen, "width of the frozen schema")
	assert.Equal(t, 3, mismatch.GotLen)
	assert.Contains(t, err.Error(), "3 fields, frozen schema has 6")
}

func TestSchemaValidateUnfrozen(t *testing.T) {
	assert.Error(t, NewSchema().Validate(record("2024-01-02", "1", "0", "0")))
}

func TestCheckpoint(t *testing.T) {
	ds := &Dataset{Columns: testColumns}
	_, ok, err := ds.Checkpoint()
	require.NoError(t, err)
	assert.False(t, ok)

	ds.Rows = [][]string{
		record("2024-01-01", "0022300440", "1", "2").Values,
		record("2024-01-02", "0022300447", "1", "2").Values,
	}
	cp, ok, err := ds.Checkpoint()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), cp.Date)
	assert.Equal(t, "0022300447", cp.GameID)
	assert.Equal(t, "2024-01-02/0022300447", cp.String())

	assert.True(t, cp.Covers(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), "0022300999"))
	assert.True(t, cp.Covers(cp.Date, "0022300445"))
	assert.True(t, cp.Covers(cp.Date, "0022300447"))
	assert.False(t, cp.Covers(cp.Date, "0022300448"))
	assert.False(t, cp.Covers(time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC), "0022300001"))
}

func TestCheckpointMalformed(t *testing.T) {
	tests := []struct {
		name string
		ds   *Dataset
	}{
		{"no date column", &Dataset{Columns: []string{"GAME_ID"}, Rows: [][]string{{"1"}}}},
		{"bad date", &Dataset{Columns: []string{"DATE", "GAME_ID"}, Rows: [][]string{{"01/02/2024", "1"}}}},
		{"empty id", &Dataset{Columns: []string{"DATE", "GAME_ID"}, Rows: [][]string{{"2024-01-02", ""}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := tt.ds.Checkpoint()
			assert.True(t, errors.Is(err, ErrMalformed))
		})
	}
}

func TestStoreSaveAndLoadKeepsGameIDText(t *testing.T) {
	store := NewStore(t.TempDir())

	dest, err := store.Save("2023-24", nil, []Record{record("2024-01-02", "0022300445", "110", "100")}, testColumns)
	require.NoError(t, err)
	assert.Equal(t, store.Path("2023-24"), dest)
	assert.True(t, store.Exists("2023-24"))

	ds, err := store.Load("2023-24")
	require.NoError(t, err)
	assert.Equal(t, testColumns, ds.Columns)
	require.Equal(t, 1, ds.Len())
	assert.Equal(t, "0022300445", ds.Rows[0][1])

	dest, err = store.Save("2023-24", ds, []Record{record("2024-01-03", "0022300450", "99", "98")}, testColumns)
	require.NoError(t, err)

	raw, err := os.ReadFile(dest)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(raw)), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, strings.Join(testColumns, ","), lines[0])
	assert.True(t, strings.HasPrefix(lines[2], "2024-01-03,0022300450,"))

	entries, err := os.ReadDir(filepath.Dir(dest))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp files must not linger")
}

func TestStoreSaveRejectsMismatchedRecords(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(dir)

	bad := Record{Columns: []string{"DATE", "GAME_ID"}, Values: []string{"2024-01-02", "1"}}
	_, err := store.Save("s", nil, []Record{bad}, testColumns)
	assert.True(t, errors.Is(err, ErrSchemaMismatch))

	prior := &Dataset{Columns: []string{"DATE", "GAME_ID"}, Rows: [][]string{{"2024-01-01", "1"}}}
	_, err = store.Save("s", prior, nil, testColumns)
	assert.True(t, errors.Is(err, ErrSchemaMismatch))

	assert.False(t, store.Exists("s"))
}

func TestStoreSaveKeepsDateOrder(t *testing.T) {
	store := NewStore(t.TempDir())
	_, err := store.Save("s", nil, []Record{record("2024-01-10", "0022300500", "110", "100")}, testColumns)
	require.NoError(t, err)
	prior, err := store.Load("s")
	require.NoError(t, err)
	before, err := os.ReadFile(store.Path("s"))
	require.NoError(t, err)

	tests := []struct {
		name    string
		records []Record
		wantErr error
	}{
		{"earlier date", []Record{record("2024-01-05", "0022300450", "1", "2")}, ErrOutOfOrder},
		{"same game", []Record{record("2024-01-10", "0022300500", "1", "2")}, ErrOutOfOrder},
		{"lower id on the same date", []Record{record("2024-01-10", "0022300499", "1", "2")}, ErrOutOfOrder},
		{"new records out of order", []Record{
			record("2024-01-12", "0022300520", "1", "2"),
			record("2024-01-11", "0022300510", "1", "2"),
		}, ErrOutOfOrder},
		{"unparseable date", []Record{record("Jan 11", "0022300510", "1", "2")}, ErrMalformed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := store.Save("s", prior, tt.records, testColumns)
			assert.ErrorIs(t, err, tt.wantErr)

			after, err := os.ReadFile(store.Path("s"))
			require.NoError(t, err)
			assert.Equal(t, before, after)
		})
	}

	_, err = store.Save("s", prior, []Record{
		record("2024-01-10", "0022300501", "1", "2"),
		record("2024-01-11", "0022300510", "1", "2"),
	}, testColumns)
	require.NoError(t, err)
	ds, err := store.Load("s")
	require.NoError(t, err)
	assert.Equal(t, 3, ds.Len())
}

func TestStoreLoadErrors(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(dir)

	_, err := store.Load("missing")
	assert.True(t, errors.Is(err, fs.ErrNotExist))

	require.NoError(t, os.WriteFile(filepath.Join(dir, "empty.csv"), nil, 0o644))
	_, err = store.Load("empty")
	assert.True(t, errors.Is(err, ErrMalformed))

	require.NoError(t, os.WriteFile(filepath.Join(dir, "ragged.csv"), []byte("DATE,GAME_ID\n2024-01-01\n"), 0o644))
	_, err = store.Load("ragged")
	assert.True(t, errors.Is(err, ErrMalformed))
}

func TestRecordAccessors(t *testing.T) {
	r := record("2024-01-02", "0022300445", "110", "100")
	assert.Equal(t, "0022300445", r.GameID())
	assert.Equal(t, "2024-01-02", r.Date())
	v, ok := r.Get(ColumnHomeScore)
	assert.True(t, ok)
	assert.Equal(t, "110", v)
}
