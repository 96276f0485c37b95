package transform

import (
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"finance-etl/internal/normalize"
	"finance-etl/internal/storage"
)

// Domain is the raw folder name a payload was filed under.
type Domain string

// Known domains.
const (
	DomainStock        Domain = "stocks"
	DomainForex        Domain = "forex"
	DomainCrypto       Domain = "cryptocurrencies"
	DomainCommodity    Domain = "commodities"
	DomainExchangeRate Domain = "exchange_rates"
	DomainFinancials   Domain = "yahoo_financials"
)

// DataType is the instrument kind recorded in the instruments table and hashed into its id.
type DataType string

// Known data types.
const (
	DataTypeStock        DataType = "stock"
	DataTypeForex        DataType = "forex"
	DataTypeCrypto       DataType = "crypto"
	DataTypeCommodity    DataType = "commodity"
	DataTypeExchangeRate DataType = "exchange_rate"
	DataTypeFinancials   DataType = "financials"
)

// Table names produced by the transformers.
const (
	TableInstruments     = "instruments"
	TableTimeseries      = "timeseries"
	TableExchangeRates   = "exchange_rates"
	TableInformation     = "information"
	TableCompanyOfficers = "company_officers"
	TableFinancials      = "financials"
)

// Column names shared across tables.
const (
	ColInstrumentID = "instrument_id"
	ColSource       = "source"
	ColDataType     = "data_type"
	ColSymbol       = "symbol"
	ColDate         = "date"
	ColName         = "name"
)

var (
	instrumentKey = []string{ColInstrumentID}
	datedKey      = []string{ColInstrumentID, ColDate}
	officerKey    = []string{ColInstrumentID, ColName}
)

// Table is a batch of rows destined for one processed table.
type Table struct {
	Name string
	Key  []string
	Rows *storage.Table
}

// Output is anything a transformer produced, projected onto named tables.
type Output interface {
	Tables() []Table
}

// FileFunc transforms one raw payload.
type FileFunc func(raw []byte) (Output, error)

// Options tune the financials aggregator.
type Options struct {
	// MaxMissingRatio drops statement rows missing more than this share of line items.
	MaxMissingRatio float64
	// FillMean fills the remaining gaps with the per-document column mean.
	FillMean bool
}

// DefaultOptions mirrors the historical pipeline behaviour.
func DefaultOptions() Options {
	return Options{MaxMissingRatio: 0.6, FillMean: true}
}

// Transformer holds the shared normalizer and logger used by every domain mapping.
type Transformer struct {
	opts   Options
	norm   *normalize.Normalizer
	logger zerolog.Logger
}

// New constructs a Transformer.
func New(opts Options, logger zerolog.Logger) *Transformer {
	return &Transformer{
		opts:   opts,
		norm:   normalize.New(logger),
		logger: logger.With().Str("component", "transform").Logger(),
	}
}

// ForDomain returns the per-file transformer registered for d. Financials are
// not per-file and are served by Financials instead.
func (t *Transformer) ForDomain(d Domain) (FileFunc, bool) {
	switch d {
	case DomainStock:
		return wrap(t.Stock), true
	case DomainForex:
		return wrap(t.Forex), true
	case DomainCrypto:
		return wrap(t.Crypto), true
	case DomainCommodity:
		return wrap(t.Commodity), true
	case DomainExchangeRate:
		return wrap(t.ExchangeRate), true
	default:
		return nil, false
	}
}

func wrap[T Output](fn func([]byte) (T, error)) FileFunc {
	return func(raw []byte) (Output, error) {
		out, err := fn(raw)
		if err != nil {
			return nil, err
		}
		return out, nil
	}
}

// EntityName derives the entity label used in logs and reports from a payload path.
func EntityName(path string) string {
	return strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
}

// Field is a named descriptive attribute of an instrument.
type Field struct {
	Name  string
	Value string
}

// Instrument is the identity row shared by every point of a payload.
type Instrument struct {
	ID       string
	Source   string
	DataType DataType
	Fields   []Field
}

// Field returns the value of the named descriptive field.
func (i Instrument) Field(name string) string {
	for _, f := range i.Fields {
		if f.Name == name {
			return f.Value
		}
	}
	return ""
}

func (i Instrument) columns() []string {
	cols := []string{ColInstrumentID, ColSource, ColDataType}
	for _, f := range i.Fields {
		cols = append(cols, f.Name)
	}
	return cols
}

func (i Instrument) row() storage.Row {
	row := storage.Row{
		ColInstrumentID: i.ID,
		ColSource:       i.Source,
		ColDataType:     string(i.DataType),
	}
	for _, f := range i.Fields {
		row[f.Name] = f.Value
	}
	return row
}
