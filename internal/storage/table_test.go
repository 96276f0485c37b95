package storage

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAppendGrowsColumnsInSortedOrder(t *testing.T) {
	table := NewTable("instrument_id", "date")
	table.Append(Row{"instrument_id": "a", "date": "2024-01-01", "Total Revenue": "10", "EBIT": "3"})
	table.Append(Row{"instrument_id": "a", "date": "2024-02-01", "Net Income": "1"})

	require.Equal(t, []string{"instrument_id", "date", "EBIT", "Total Revenue", "Net Income"}, table.Columns())
	require.Equal(t, 2, table.Len())
}

func TestDedupKeepLastPreservesSurvivorOrder(t *testing.T) {
	table := NewTable("id", "date", "v")
	table.Append(Row{"id": "a", "date": "1", "v": "old"})
	table.Append(Row{"id": "b", "date": "1", "v": "b"})
	table.Append(Row{"id": "a", "date": "1", "v": "new"})
	table.Append(Row{"id": "a", "date": "2", "v": "other"})

	out := table.DedupKeepLast([]string{"id", "date"})

	require.Equal(t, 3, out.Len())
	require.Equal(t, "b", out.Rows()[0]["v"])
	require.Equal(t, "new", out.Rows()[1]["v"])
	require.Equal(t, "other", out.Rows()[2]["v"])
}

func TestCSVRoundTripKeepsNullsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "timeseries.csv")
	table := NewTable("instrument_id", "date", "price")
	table.Append(Row{"instrument_id": "x", "date": "2024-01-31", "price": ""})
	table.Append(Row{"instrument_id": "x", "date": "2024-02-29", "price": "2480"})

	require.NoError(t, WriteCSV(path, table))

	loaded, err := ReadCSV(path)
	require.NoError(t, err)
	require.Equal(t, table.Columns(), loaded.Columns())
	require.Equal(t, "", loaded.Rows()[0]["price"])
	require.Equal(t, "2480", loaded.Rows()[1]["price"])
}
