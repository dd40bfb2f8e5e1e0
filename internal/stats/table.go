package stats

import (
	"encoding/json"
	"fmt"
	"slices"
	"strconv"
)

// Tier is one of the statistical lookback scopes an entity row can come from.
type Tier int

const (
	// TierRecent covers the lookback window ending the day before the game, location-filtered.
	TierRecent Tier = iota
	// TierSeasonToDate covers season start through the day before the game, location-filtered.
	TierSeasonToDate
	// TierSeasonGeneral covers season start through the day before the game, all locations.
	TierSeasonGeneral
)

func (t Tier) String() string {
	switch t {
	case TierRecent:
		return "recent"
	case TierSeasonToDate:
		return "season_to_date"
	case TierSeasonGeneral:
		return "season_general"
	default:
		return fmt.Sprintf("tier(%d)", int(t))
	}
}

// Row is one entity's feature values, in the column order of the table it came from.
type Row struct {
	EntityID string
	Tier     Tier
	Columns  []string
	Values   []string
}

// Get returns the value of a named feature.
func (r Row) Get(name string) (string, bool) {
	i := slices.Index(r.Columns, name)
	if i < 0 {
		return "", false
	}
	return r.Values[i], true
}

// Table is a stat table indexed by entity identifier. Only the selected
// feature columns are kept; the identifier column is never a feature.
type Table struct {
	idColumn string
	columns  []string
	rows     map[string][]string
}

// NewTable builds a table from a header list and raw rows. When features is
// empty every header except idColumn becomes a feature. Rows repeating an
// identifier keep the first occurrence.
func NewTable(idColumn string, headers []string, rows [][]any, features []string) (*Table, error) {
	idIdx := slices.Index(headers, idColumn)
	if idIdx < 0 {
		return nil, fmt.Errorf("id column %s missing from headers", idColumn)
	}

	if len(features) == 0 {
		features = make([]string, 0, len(headers))
		for _, h := range headers {
			if h != idColumn {
				features = append(features, h)
			}
		}
	}

	picks := make([]int, 0, len(features))
	columns := make([]string, 0, len(features))
	for _, f := range features {
		if f == idColumn {
			continue
		}
		i := slices.Index(headers, f)
		if i < 0 {
			return nil, fmt.Errorf("feature %s missing from headers", f)
		}
		picks = append(picks, i)
		columns = append(columns, f)
	}

	t := &Table{
		idColumn: idColumn,
		columns:  columns,
		rows:     make(map[string][]string, len(rows)),
	}
	for n, raw := range rows {
		if len(raw) != len(headers) {
			return nil, fmt.Errorf("row %d has %d values, want %d", n, len(raw), len(headers))
		}
		id := FormatValue(raw[idIdx])
		if _, dup := t.rows[id]; dup {
			continue
		}
		values := make([]string, len(picks))
		for j, i := range picks {
			values[j] = FormatValue(raw[i])
		}
		t.rows[id] = values
	}
	return t, nil
}

// IDColumn returns the name of the identifier column the table is indexed by.
func (t *Table) IDColumn() string { return t.idColumn }

// Columns returns the feature names in table order.
func (t *Table) Columns() []string { return slices.Clone(t.columns) }

// Len returns the number of distinct entities in the table.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.rows)
}

// Lookup returns the row for id. A nil table contains nothing.
func (t *Table) Lookup(id string) (Row, bool) {
	if t == nil {
		return Row{}, false
	}
	values, ok := t.rows[id]
	if !ok {
		return Row{}, false
	}
	return Row{
		EntityID: id,
		Columns:  t.columns,
		Values:   slices.Clone(values),
	}, true
}

// FormatValue renders a decoded JSON cell as dataset text. Integral numbers
// lose their fractional part so identifiers stay readable.
func FormatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case json.Number:
		return x.String()
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case bool:
		return strconv.FormatBool(x)
	default:
		return fmt.Sprint(x)
	}
}
