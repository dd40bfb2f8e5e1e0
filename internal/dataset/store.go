package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
)

// Store reads and writes datasets as CSV files under one directory.
type Store struct {
	dir string
}

// NewStore returns a store rooted at dir.
func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

// Path returns the file a named dataset lives in.
func (s *Store) Path(name string) string {
	return filepath.Join(s.dir, name+".csv")
}

// Load reads a named dataset. A missing file yields an error matching
// fs.ErrNotExist; an unreadable one yields ErrMalformed.
func (s *Store) Load(name string) (*Dataset, error) {
	path := s.Path(name)
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open dataset %s: %w", path, err)
	}
	defer f.Close()

	ds, err := Read(f)
	if err != nil {
		return nil, fmt.Errorf("read dataset %s: %w", path, err)
	}
	return ds, nil
}

// Exists reports whether a named dataset file is present.
func (s *Store) Exists(name string) bool {
	_, err := os.Stat(s.Path(name))
	return err == nil
}

// Read parses a CSV dataset. Every row must be as wide as the header.
func Read(r io.Reader) (*Dataset, error) {
	cr := csv.NewReader(r)

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: no header row", ErrMalformed)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	ds := &Dataset{Columns: header}
	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		ds.Rows = append(ds.Rows, row)
	}
	return ds, nil
}

// Write renders a header and rows as CSV.
func Write(w io.Writer, columns []string, rows [][]string) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(columns); err != nil {
		return err
	}
	if err := cw.WriteAll(rows); err != nil {
		return err
	}
	return cw.Error()
}

// Save writes prior's rows followed by records to the named dataset and
// returns the destination path. Records must sort strictly after prior's last
// row and after each other by (DATE, GAME_ID). The file is replaced atomically: a crash
// leaves either the old file or the new one.
func (s *Store) Save(name string, prior *Dataset, records []Record, columns []string) (string, error) {
	if len(columns) == 0 {
		return "", errors.New("save dataset: no columns")
	}
	if prior.Len() > 0 && !slices.Equal(prior.Columns, columns) {
		return "", fmt.Errorf("save dataset %s: %w", name, compare(prior.Columns, columns, ""))
	}

	last, ordered, err := prior.Checkpoint()
	if err != nil {
		return "", fmt.Errorf("save dataset %s: %w", name, err)
	}

	rows := make([][]string, 0, prior.Len()+len(records))
	if prior != nil {
		rows = append(rows, prior.Rows...)
	}
	for _, r := range records {
		if err := compare(columns, r.Columns, r.GameID()); err != nil {
			return "", fmt.Errorf("save dataset %s: %w", name, err)
		}
		pos, err := r.Position()
		if err != nil {
			return "", fmt.Errorf("save dataset %s: %w", name, err)
		}
		if ordered && last.Covers(pos.Date, pos.GameID) {
			return "", fmt.Errorf("save dataset %s: %w: %s does not sort after %s", name, ErrOutOfOrder, pos, last)
		}
		last, ordered = pos, true
		rows = append(rows, r.Values)
	}

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", fmt.Errorf("create dataset dir: %w", err)
	}

	dest := s.Path(name)
	tmp, err := os.CreateTemp(s.dir, "."+name+"-*.csv.tmp")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() {
		tmp.Close()
		os.Remove(tmpName)
	}

	if err := Write(tmp, columns, rows); err != nil {
		cleanup()
		return "", fmt.Errorf("write dataset: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		cleanup()
		return "", fmt.Errorf("sync dataset: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("close dataset: %w", err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("chmod dataset: %w", err)
	}
	if err := os.Rename(tmpName, dest); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("replace dataset: %w", err)
	}
	return dest, nil
}
