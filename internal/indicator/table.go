package indicator

import (
	"encoding/json"
	"fmt"
	"time"
)

// Table is a sorted Series with named derived columns appended.
type Table struct {
	Series Series

	names []string
	cols  map[string]Column
}

// NewTable sorts and validates a copy of s. The caller's series is untouched.
func NewTable(s Series) (*Table, error) {
	sorted, err := prepare(s)
	if err != nil {
		return nil, err
	}
	return &Table{
		Series: sorted,
		cols:   make(map[string]Column),
	}, nil
}

// Len returns the number of rows.
func (t *Table) Len() int { return len(t.Series) }

// Add appends a named column. The column must match the row count and the
// name must be unused.
func (t *Table) Add(name string, c Column) error {
	if len(c) != len(t.Series) {
		return fmt.Errorf("indicator: column %q has %d rows, table has %d", name, len(c), len(t.Series))
	}
	if _, dup := t.cols[name]; dup {
		return fmt.Errorf("indicator: duplicate column %q", name)
	}
	t.names = append(t.names, name)
	t.cols[name] = c
	return nil
}

// Column returns the named column.
func (t *Table) Column(name string) (Column, bool) {
	c, ok := t.cols[name]
	return c, ok
}

// Names returns the column names in the order they were added.
func (t *Table) Names() []string {
	out := make([]string, len(t.names))
	copy(out, t.names)
	return out
}

// tableJSON is the chart-friendly wire shape: parallel arrays keyed by column.
type tableJSON struct {
	TS      []time.Time       `json:"ts"`
	Price   Column            `json:"price"`
	Volume  Column            `json:"volume"`
	Order   []string          `json:"order"`
	Columns map[string]Column `json:"columns"`
}

// MarshalJSON encodes the table as parallel arrays.
func (t *Table) MarshalJSON() ([]byte, error) {
	out := tableJSON{
		TS:      make([]time.Time, len(t.Series)),
		Price:   make(Column, len(t.Series)),
		Volume:  make(Column, len(t.Series)),
		Order:   t.Names(),
		Columns: t.cols,
	}
	for i, p := range t.Series {
		out.TS[i] = p.TS
		out.Price[i] = p.Price
		out.Volume[i] = p.Volume
	}
	return json.Marshal(out)
}
