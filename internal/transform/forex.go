package transform

import (
	"finance-etl/internal/identity"
)

var forexFields = ohlcvFields[:4]

// Forex maps an FX_* payload onto the currency pair instrument and its OHLC points.
// The pair symbol is "{from}_{to}".
func (t *Transformer) Forex(raw []byte) (*TimeSeries, error) {
	payload, err := decodeObject(DomainForex, raw)
	if err != nil {
		return nil, err
	}
	meta, err := requireObject(DomainForex, payload, metaDataKey)
	if err != nil {
		return nil, err
	}
	block, err := requirePrefixedObject(DomainForex, payload, forexSeriesPrefix)
	if err != nil {
		return nil, err
	}

	from := numberedString(meta, "From Symbol")
	to := numberedString(meta, "To Symbol")
	if from == "" || to == "" {
		return nil, &MissingDataBlockError{Domain: DomainForex, Key: metaDataKey + ".From Symbol/To Symbol"}
	}
	symbol := from + "_" + to

	instrument := Instrument{
		ID:       identity.Hash(identity.SourceAlphaVantage, string(DataTypeForex), symbol),
		Source:   identity.SourceAlphaVantage,
		DataType: DataTypeForex,
		Fields: []Field{
			{Name: ColSymbol, Value: symbol},
			{Name: "from_symbol", Value: from},
			{Name: "to_symbol", Value: to},
			{Name: "last_refreshed", Value: numberedString(meta, "Last Refreshed")},
			{Name: "time_zone", Value: numberedString(meta, "Time Zone")},
		},
	}

	return &TimeSeries{
		Instrument: instrument,
		Fields:     columnsOf(forexFields),
		Points:     t.seriesPoints(DomainForex, block, forexFields),
	}, nil
}
