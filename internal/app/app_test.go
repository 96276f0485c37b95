package app

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"finance-etl/internal/config"
	"finance-etl/internal/identity"
	"finance-etl/internal/storage"
)

const commodityPayload = `{
  "name": "Global Price of Aluminum",
  "interval": "monthly",
  "unit": "dollar per metric ton",
  "data": [
    {"date": "2024-03-01", "value": "2210.5"},
    {"date": "2024-02-01", "value": "2180.25"},
    {"date": "2024-01-01", "value": "."}
  ]
}`

func newTestApp(t *testing.T) *App {
	t.Helper()
	root := t.TempDir()
	cfg := &config.Config{
		Paths: config.PathsConfig{
			RawDir:       filepath.Join(root, "raw"),
			ProcessedDir: filepath.Join(root, "processed"),
		},
		Transform: config.TransformConfig{
			DateColumns: []string{"date"},
			Financials:  config.FinancialsConfig{MaxMissingRatio: 0.6, FillStrategy: config.FillBatchMean},
		},
		Scheduler: config.SchedulerConfig{Interval: 24 * time.Hour},
		Metrics:   config.MetricsConfig{TextfilePath: filepath.Join(root, "finetl.prom")},
		Export:    config.ExportConfig{MaxDataPoints: 5000},
	}
	return NewApp(cfg, zerolog.Nop())
}

func writeFile(t *testing.T, path, body string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
}

func TestTransformThenExport(t *testing.T) {
	a := newTestApp(t)
	writeFile(t, filepath.Join(a.Config.Paths.RawDir, "commodities", "ALUMINUM.json"), commodityPayload)

	report, err := a.Transform(context.Background(), TransformOptions{})
	require.NoError(t, err)
	require.Equal(t, 1, report.Succeeded)
	require.FileExists(t, a.Config.Metrics.TextfilePath)

	out := filepath.Join(t.TempDir(), "out", "aluminum.csv")
	png := filepath.Join(t.TempDir(), "out", "aluminum.png")
	err = a.Export(context.Background(), ExportOptions{
		Domain:     "commodities",
		Instrument: "global price of aluminum",
		CSVPath:    out,
		PNGPath:    png,
	})
	require.NoError(t, err)
	require.FileExists(t, png)

	body, err := os.ReadFile(out)
	require.NoError(t, err)
	require.Equal(t, "date,price\n2024-02-01,2180.25\n2024-03-01,2210.5\n", string(body))
}

func TestTransformFailFastOverride(t *testing.T) {
	a := newTestApp(t)
	writeFile(t, filepath.Join(a.Config.Paths.RawDir, "commodities", "AAA_BAD.json"), `{"Information": "rate limited"}`)
	writeFile(t, filepath.Join(a.Config.Paths.RawDir, "commodities", "ALUMINUM.json"), commodityPayload)

	failFast := true
	report, err := a.Transform(context.Background(), TransformOptions{FailFast: &failFast})
	require.Error(t, err)
	require.Equal(t, 1, report.Files)
}

func TestExportRequiresOutput(t *testing.T) {
	err := newTestApp(t).Export(context.Background(), ExportOptions{Domain: "stocks", Instrument: "GOOGL"})
	require.ErrorContains(t, err, "--csv or --png")
}

func TestResolveInstrument(t *testing.T) {
	path := filepath.Join(t.TempDir(), "instruments.csv")
	table := storage.NewTable("instrument_id", "source", "data_type", "currency_code", "market_code")
	table.Append(storage.Row{"instrument_id": "id-btc-usd", "currency_code": "BTC", "market_code": "USD"})
	table.Append(storage.Row{"instrument_id": "id-btc-eur", "currency_code": "BTC", "market_code": "EUR"})
	table.Append(storage.Row{"instrument_id": "id-eth-usd", "currency_code": "ETH", "market_code": "USD"})
	require.NoError(t, storage.WriteCSV(path, table))

	id, err := resolveInstrument(path, "eth")
	require.NoError(t, err)
	require.Equal(t, "id-eth-usd", id)

	id, err = resolveInstrument(path, "id-btc-eur")
	require.NoError(t, err)
	require.Equal(t, "id-btc-eur", id)

	_, err = resolveInstrument(path, "BTC")
	require.ErrorContains(t, err, "ambiguous")

	_, err = resolveInstrument(path, "DOGE")
	require.ErrorIs(t, err, ErrInstrumentNotFound)
}

func TestLoadSeriesFiltersWindow(t *testing.T) {
	path := filepath.Join(t.TempDir(), "timeseries.csv")
	table := storage.NewTable("instrument_id", "date", "close")
	table.Append(storage.Row{"instrument_id": "a", "date": "2024-01-03", "close": "3"})
	table.Append(storage.Row{"instrument_id": "a", "date": "2024-01-01", "close": "1"})
	table.Append(storage.Row{"instrument_id": "a", "date": "2024-01-02", "close": ""})
	table.Append(storage.Row{"instrument_id": "b", "date": "2024-01-02", "close": "9"})
	table.Append(storage.Row{"instrument_id": "a", "date": "2024-01-05", "close": "5"})
	require.NoError(t, storage.WriteCSV(path, table))

	to := time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC)
	points, err := loadSeries(path, "a", "close", nil, &to)
	require.NoError(t, err)
	require.Len(t, points, 2)
	require.True(t, points[0].Value.Equal(decimal.NewFromInt(1)))
	require.True(t, points[1].Value.Equal(decimal.NewFromInt(3)))

	_, err = loadSeries(path, "a", "vwap", nil, nil)
	require.ErrorContains(t, err, "no column")
}

func TestDownsamplePointsKeepsEnds(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	var points []seriesPoint
	for i := 0; i < 100; i++ {
		points = append(points, seriesPoint{Date: start.AddDate(0, 0, i), Value: decimal.NewFromInt(int64(i))})
	}

	out := downsamplePoints(points, 10)
	require.Len(t, out, 10)
	require.Equal(t, points[0], out[0])
	require.Equal(t, points[99], out[9])

	require.Len(t, downsamplePoints(points, 0), 100)
	require.Len(t, downsamplePoints(points[:5], 10), 5)
}

func TestWriteRuns(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeRuns(&buf, nil))
	require.Equal(t, "no runs found\n", buf.String())

	buf.Reset()
	msg := "transform run finished with failures\ntransform exchange_rates file x"
	started := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	runs := []storage.RunRecord{{
		ID:          uuid.New(),
		StartedAt:   started,
		FinishedAt:  started.Add(1500 * time.Millisecond),
		FilesTotal:  4,
		FilesFailed: 1,
		RowsWritten: 120,
		Skipped:     []string{"news"},
		Status:      storage.RunStatusPartial,
		Error:       &msg,
	}}
	require.NoError(t, writeRuns(&buf, runs))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	require.Contains(t, lines[1], "partial")
	require.Contains(t, lines[1], "1.5s")
	require.Contains(t, lines[1], "news")
	require.NotContains(t, lines[1], "\n")
}

func TestHash(t *testing.T) {
	a := newTestApp(t)
	id, err := a.Hash(HashOptions{Source: identity.SourceAlphaVantage, DataType: "stock", Discriminators: []string{"GOOGL"}})
	require.NoError(t, err)
	require.Equal(t, identity.Hash(identity.SourceAlphaVantage, "stock", "GOOGL"), id)

	_, err = a.Hash(HashOptions{Source: identity.SourceAlphaVantage, DataType: "stock"})
	require.Error(t, err)
}
