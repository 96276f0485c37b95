package transform

import (
	"sort"

	"github.com/shopspring/decimal"

	"finance-etl/internal/normalize"
	"finance-etl/internal/storage"
)

// Point is one dated observation; Values align with TimeSeries.Fields.
type Point struct {
	Date   string
	Values []decimal.NullDecimal
}

// Value returns the value of the named field, or null when absent.
func (p Point) Value(fields []string, name string) decimal.NullDecimal {
	for i, f := range fields {
		if f == name && i < len(p.Values) {
			return p.Values[i]
		}
	}
	return decimal.NullDecimal{}
}

// TimeSeries is the result of a time-indexed payload: one instrument and its points.
type TimeSeries struct {
	Instrument Instrument
	Fields     []string
	Points     []Point
}

// Tables projects the series onto the instruments and timeseries tables.
func (ts *TimeSeries) Tables() []Table {
	instruments := storage.NewTable(ts.Instrument.columns()...)
	instruments.Append(ts.Instrument.row())

	points := storage.NewTable(append([]string{ColInstrumentID, ColDate}, ts.Fields...)...)
	for _, p := range ts.Points {
		row := storage.Row{ColInstrumentID: ts.Instrument.ID, ColDate: p.Date}
		for i, f := range ts.Fields {
			row[f] = normalize.FormatNumber(p.Values[i])
		}
		points.Append(row)
	}

	return []Table{
		{Name: TableInstruments, Key: instrumentKey, Rows: instruments},
		{Name: TableTimeseries, Key: datedKey, Rows: points},
	}
}

// fieldSpec maps an output column to the provider keys that may carry it, in preference order.
type fieldSpec struct {
	column string
	keys   []string
}

var ohlcvFields = []fieldSpec{
	{column: "open", keys: []string{"1. open"}},
	{column: "high", keys: []string{"2. high"}},
	{column: "low", keys: []string{"3. low"}},
	{column: "close", keys: []string{"4. close"}},
	{column: "volume", keys: []string{"5. volume", "6. volume"}},
}

func columnsOf(specs []fieldSpec) []string {
	out := make([]string, len(specs))
	for i, s := range specs {
		out[i] = s.column
	}
	return out
}

// seriesPoints fans a {date: {field: value}} block out into points sorted by date.
// Rows with an unparsable date or without any usable value are dropped.
func (t *Transformer) seriesPoints(domain Domain, block object, specs []fieldSpec) []Point {
	points := make([]Point, 0, len(block))
	for _, rawDate := range sortedKeys(block) {
		entry := block[rawDate]
		date, err := normalize.ISODate(rawDate)
		if err != nil {
			t.logger.Debug().Err(err).Str("domain", string(domain)).Msg("dropping point with unparsable date")
			continue
		}

		fields, ok := entry.(object)
		if !ok {
			t.logger.Debug().Str("domain", string(domain)).Str("date", rawDate).Msg("dropping point that is not an object")
			continue
		}

		values := make([]decimal.NullDecimal, len(specs))
		for i, spec := range specs {
			values[i] = t.norm.Number(spec.column, lookupFirst(fields, spec.keys))
		}
		if allNull(values) {
			t.logger.Debug().Str("domain", string(domain)).Str("date", date).Msg("dropping point without values")
			continue
		}
		points = append(points, Point{Date: date, Values: values})
	}

	sortPoints(points)
	return points
}

func lookupFirst(obj object, keys []string) any {
	for _, k := range keys {
		if v, ok := obj[k]; ok {
			return v
		}
	}
	return nil
}

func allNull(values []decimal.NullDecimal) bool {
	for _, v := range values {
		if v.Valid {
			return false
		}
	}
	return true
}

func sortedKeys(obj object) []string {
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func sortPoints(points []Point) {
	sort.SliceStable(points, func(i, j int) bool { return points[i].Date < points[j].Date })
}
