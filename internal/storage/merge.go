package storage

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/rs/zerolog"

	"finance-etl/internal/normalize"
)

// MergeStats summarises one upsert.
type MergeStats struct {
	Existing int
	Incoming int
	Written  int
	Created  bool
}

// Merger upserts transformed batches into CSV-backed tables.
//
// Writers are not coordinated: callers must make sure one merge per path runs at a time.
type Merger struct {
	dateColumns []string
	logger      zerolog.Logger
}

// NewMerger builds a Merger that re-normalizes dateColumns on both sides of every merge.
func NewMerger(dateColumns []string, logger zerolog.Logger) *Merger {
	return &Merger{
		dateColumns: dateColumns,
		logger:      logger.With().Str("component", "merger").Logger(),
	}
}

// Merge upserts rows into the table stored at path, keyed by key. On key
// conflicts the incoming row wins over the stored one.
func (m *Merger) Merge(rows *Table, path string, key []string) (MergeStats, error) {
	if len(key) == 0 {
		return MergeStats{}, errors.New("merge key must not be empty")
	}
	for _, column := range key {
		if !rows.HasColumn(column) {
			return MergeStats{}, fmt.Errorf("merge key column %q missing from batch", column)
		}
	}

	stats := MergeStats{Incoming: rows.Len()}
	m.normalizeDates(rows, path)

	existing, err := ReadCSV(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		stats.Created = true
		merged := rows.DedupKeepLast(key)
		if err := WriteCSV(path, merged); err != nil {
			return stats, fmt.Errorf("write %s: %w", path, err)
		}
		stats.Written = merged.Len()
	case err != nil:
		return stats, fmt.Errorf("load %s: %w", path, err)
	default:
		for _, column := range key {
			// a zero-byte file has no header and nothing to lose
			if len(existing.Columns()) > 0 && !existing.HasColumn(column) {
				return stats, fmt.Errorf("stored table %s lacks merge key column %q", path, column)
			}
		}
		stats.Existing = existing.Len()
		m.normalizeDates(existing, path)
		merged := existing.Concat(rows).DedupKeepLast(key)
		if err := WriteCSV(path, merged); err != nil {
			return stats, fmt.Errorf("write %s: %w", path, err)
		}
		stats.Written = merged.Len()
	}

	m.logger.Debug().
		Str("path", path).
		Int("existing", stats.Existing).
		Int("incoming", stats.Incoming).
		Int("written", stats.Written).
		Msg("table merged")
	return stats, nil
}

func (m *Merger) normalizeDates(table *Table, path string) {
	for _, column := range m.dateColumns {
		if !table.HasColumn(column) {
			continue
		}
		for _, row := range table.Rows() {
			raw := row[column]
			if raw == "" {
				continue
			}
			iso, err := normalize.ISODate(raw)
			if err != nil {
				m.logger.Warn().Err(err).Str("path", path).Str("column", column).Msg("keeping date value verbatim")
				continue
			}
			row[column] = iso
		}
	}
}
