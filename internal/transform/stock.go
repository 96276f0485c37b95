package transform

import (
	"finance-etl/internal/identity"
)

const (
	metaDataKey          = "Meta Data"
	stockSeriesPrefix    = "Time Series ("
	forexSeriesPrefix    = "Time Series FX ("
	cryptoSeriesPrefix   = "Time Series (Digital Currency"
	exchangeRateBlockKey = "Realtime Currency Exchange Rate"
)

// Stock maps a TIME_SERIES_* payload onto one instrument and its daily OHLCV points.
func (t *Transformer) Stock(raw []byte) (*TimeSeries, error) {
	payload, err := decodeObject(DomainStock, raw)
	if err != nil {
		return nil, err
	}
	meta, err := requireObject(DomainStock, payload, metaDataKey)
	if err != nil {
		return nil, err
	}
	block, err := requirePrefixedObject(DomainStock, payload, stockSeriesPrefix)
	if err != nil {
		return nil, err
	}

	symbol := numberedString(meta, "Symbol")
	if symbol == "" {
		return nil, &MissingDataBlockError{Domain: DomainStock, Key: metaDataKey + ".Symbol"}
	}

	instrument := Instrument{
		ID:       identity.Hash(identity.SourceAlphaVantage, string(DataTypeStock), symbol),
		Source:   identity.SourceAlphaVantage,
		DataType: DataTypeStock,
		Fields: []Field{
			{Name: ColSymbol, Value: symbol},
			{Name: "information", Value: numberedString(meta, "Information")},
			{Name: "last_refreshed", Value: numberedString(meta, "Last Refreshed")},
			{Name: "time_zone", Value: numberedString(meta, "Time Zone")},
		},
	}

	return &TimeSeries{
		Instrument: instrument,
		Fields:     columnsOf(ohlcvFields),
		Points:     t.seriesPoints(DomainStock, block, ohlcvFields),
	}, nil
}
