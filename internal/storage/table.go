package storage

import (
	"sort"
	"strings"
)

// Row is one record of a table keyed by column name. A missing or empty cell is null.
type Row map[string]string

// Table is an in-memory tabular batch with an ordered, growing column set.
type Table struct {
	columns []string
	known   map[string]struct{}
	rows    []Row
}

// NewTable creates an empty table with the given leading columns.
func NewTable(columns ...string) *Table {
	t := &Table{known: make(map[string]struct{}, len(columns))}
	t.addColumns(columns)
	return t
}

// Columns returns the column order used when the table is persisted.
func (t *Table) Columns() []string {
	out := make([]string, len(t.columns))
	copy(out, t.columns)
	return out
}

// HasColumn reports whether name is part of the column set.
func (t *Table) HasColumn(name string) bool {
	_, ok := t.known[name]
	return ok
}

// Rows exposes the table rows in insertion order.
func (t *Table) Rows() []Row {
	return t.rows
}

// Len returns the row count.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.rows)
}

// Append adds a row. Columns not seen before are appended to the column set in sorted order.
func (t *Table) Append(row Row) {
	var fresh []string
	for name := range row {
		if _, ok := t.known[name]; !ok {
			fresh = append(fresh, name)
		}
	}
	if len(fresh) > 0 {
		sort.Strings(fresh)
		t.addColumns(fresh)
	}
	t.rows = append(t.rows, row)
}

// Concat returns a new table holding t's rows followed by other's, over the union of both column sets.
func (t *Table) Concat(other *Table) *Table {
	out := NewTable(t.columns...)
	out.addColumns(other.columns)
	out.rows = make([]Row, 0, len(t.rows)+len(other.rows))
	out.rows = append(out.rows, t.rows...)
	out.rows = append(out.rows, other.rows...)
	return out
}

// DedupKeepLast drops rows sharing a key with a later row, preserving the order of survivors.
func (t *Table) DedupKeepLast(key []string) *Table {
	last := make(map[string]int, len(t.rows))
	for i, row := range t.rows {
		last[row.key(key)] = i
	}

	out := NewTable(t.columns...)
	out.rows = make([]Row, 0, len(last))
	for i, row := range t.rows {
		if last[row.key(key)] == i {
			out.rows = append(out.rows, row)
		}
	}
	return out
}

func (t *Table) addColumns(columns []string) {
	for _, name := range columns {
		if _, ok := t.known[name]; ok {
			continue
		}
		t.known[name] = struct{}{}
		t.columns = append(t.columns, name)
	}
}

func (r Row) key(columns []string) string {
	parts := make([]string, len(columns))
	for i, c := range columns {
		parts[i] = r[c]
	}
	return strings.Join(parts, "\x1f")
}
