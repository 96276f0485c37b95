package app

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	chart "github.com/wcharczuk/go-chart/v2"

	"finance-etl/internal/normalize"
	"finance-etl/internal/storage"
	"finance-etl/internal/transform"
)

// ErrInstrumentNotFound is returned when an export selector matches no instrument.
var ErrInstrumentNotFound = errors.New("instrument not found")

// matchColumns are the instruments columns an export selector may name besides the id.
var matchColumns = []string{transform.ColSymbol, transform.ColName, "currency_code"}

type seriesPoint struct {
	Date  time.Time
	Value decimal.Decimal
}

// Export renders one instrument's processed timeseries as CSV and/or PNG.
func (a *App) Export(ctx context.Context, opts ExportOptions) error {
	if opts.CSVPath == "" && opts.PNGPath == "" {
		return errors.New("at least one of --csv or --png must be provided")
	}
	if opts.Domain == "" || opts.Instrument == "" {
		return errors.New("--domain and --instrument are required")
	}
	if opts.From != nil && opts.To != nil && !opts.From.Before(*opts.To) {
		return errors.New("from must be before to")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	opts.MaxPoints = a.Config.ResolveMaxPoints(opts.MaxPoints)
	if opts.Field == "" {
		opts.Field = defaultField(transform.Domain(opts.Domain))
	}

	dir := filepath.Join(a.Config.Paths.ProcessedDir, opts.Domain)
	id, err := resolveInstrument(filepath.Join(dir, transform.TableInstruments+".csv"), opts.Instrument)
	if err != nil {
		return err
	}

	points, err := loadSeries(filepath.Join(dir, transform.TableTimeseries+".csv"), id, opts.Field, opts.From, opts.To)
	if err != nil {
		return err
	}
	if len(points) == 0 {
		a.Logger.Info().Str("instrument_id", id).Str("field", opts.Field).Msg("no points found for export window")
		return nil
	}

	downsampled := downsamplePoints(points, opts.MaxPoints)
	a.Logger.Info().
		Str("instrument_id", id).
		Str("field", opts.Field).
		Int("total", len(points)).
		Int("exported", len(downsampled)).
		Msg("exporting timeseries")

	if opts.CSVPath != "" {
		if err := writePointsCSV(opts.CSVPath, opts.Field, downsampled); err != nil {
			return err
		}
	}

	if opts.PNGPath != "" {
		title := fmt.Sprintf("%s %s", opts.Instrument, opts.Field)
		if err := writePointsPNG(opts.PNGPath, title, downsampled); err != nil {
			return err
		}
	}

	return nil
}

func defaultField(domain transform.Domain) string {
	if domain == transform.DomainCommodity {
		return "price"
	}
	return "close"
}

// resolveInstrument maps a selector (instrument id, symbol, commodity name or
// crypto currency code) onto exactly one instrument id.
func resolveInstrument(path, selector string) (string, error) {
	table, err := storage.ReadCSV(path)
	if err != nil {
		return "", fmt.Errorf("load instruments: %w", err)
	}

	var matches []string
	for _, row := range table.Rows() {
		id := row[transform.ColInstrumentID]
		if id == selector {
			return id, nil
		}
		for _, col := range matchColumns {
			if v := row[col]; v != "" && strings.EqualFold(v, selector) {
				matches = append(matches, id)
				break
			}
		}
	}

	switch len(matches) {
	case 0:
		return "", fmt.Errorf("%w: %s", ErrInstrumentNotFound, selector)
	case 1:
		return matches[0], nil
	default:
		return "", fmt.Errorf("instrument %s is ambiguous, use one of the ids: %s", selector, strings.Join(matches, ", "))
	}
}

func loadSeries(path, instrumentID, field string, from, to *time.Time) ([]seriesPoint, error) {
	table, err := storage.ReadCSV(path)
	if err != nil {
		return nil, fmt.Errorf("load timeseries: %w", err)
	}
	if !table.HasColumn(field) {
		return nil, fmt.Errorf("timeseries has no column %q", field)
	}

	var points []seriesPoint
	for _, row := range table.Rows() {
		if row[transform.ColInstrumentID] != instrumentID || row[field] == "" {
			continue
		}
		date, err := time.Parse(normalize.DateLayout, row[transform.ColDate])
		if err != nil {
			continue
		}
		if from != nil && date.Before(*from) {
			continue
		}
		if to != nil && !date.Before(*to) {
			continue
		}
		value, err := decimal.NewFromString(row[field])
		if err != nil {
			continue
		}
		points = append(points, seriesPoint{Date: date, Value: value})
	}

	sort.SliceStable(points, func(i, j int) bool { return points[i].Date.Before(points[j].Date) })
	return points, nil
}

func downsamplePoints(points []seriesPoint, max int) []seriesPoint {
	if max <= 0 || len(points) <= max {
		return points
	}
	if max == 1 {
		return points[len(points)-1:]
	}

	result := make([]seriesPoint, 0, max)
	step := float64(len(points)-1) / float64(max-1)
	for i := 0; i < max; i++ {
		idx := int(math.Round(step * float64(i)))
		if idx >= len(points) {
			idx = len(points) - 1
		}
		result = append(result, points[idx])
	}
	return result
}

func writePointsCSV(path, field string, points []seriesPoint) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if err := writer.Write([]string{transform.ColDate, field}); err != nil {
		return err
	}
	for _, p := range points {
		if err := writer.Write([]string{p.Date.Format(normalize.DateLayout), p.Value.String()}); err != nil {
			return err
		}
	}

	writer.Flush()
	return writer.Error()
}

func writePointsPNG(path, title string, points []seriesPoint) error {
	if len(points) < 2 {
		return errors.New("at least two points are needed to draw a chart")
	}
	if err := ensureDir(path); err != nil {
		return err
	}

	x := make([]time.Time, len(points))
	y := make([]float64, len(points))
	for i, p := range points {
		x[i] = p.Date
		y[i] = p.Value.InexactFloat64()
	}

	graph := chart.Chart{
		Title:  title,
		Width:  1280,
		Height: 720,
		XAxis: chart.XAxis{
			ValueFormatter: chart.TimeValueFormatter,
		},
		YAxis: chart.YAxis{
			Name: title,
			ValueFormatter: func(v interface{}) string {
				return chart.FloatValueFormatterWithFormat(v, "%.4f")
			},
		},
		Series: []chart.Series{
			chart.TimeSeries{
				Name:    title,
				XValues: x,
				YValues: y,
			},
		},
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	return graph.Render(chart.PNG, file)
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
