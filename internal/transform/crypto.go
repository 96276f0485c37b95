package transform

import (
	"fmt"

	"finance-etl/internal/identity"
)

// Crypto maps a DIGITAL_CURRENCY_* payload onto the currency/market instrument
// and its OHLCV points. Older payloads label prices per market, e.g. "1a. open (USD)".
func (t *Transformer) Crypto(raw []byte) (*TimeSeries, error) {
	payload, err := decodeObject(DomainCrypto, raw)
	if err != nil {
		return nil, err
	}
	meta, err := requireObject(DomainCrypto, payload, metaDataKey)
	if err != nil {
		return nil, err
	}
	block, err := requirePrefixedObject(DomainCrypto, payload, cryptoSeriesPrefix)
	if err != nil {
		return nil, err
	}

	currency := numberedString(meta, "Digital Currency Code")
	market := numberedString(meta, "Market Code")
	if currency == "" {
		return nil, &MissingDataBlockError{Domain: DomainCrypto, Key: metaDataKey + ".Digital Currency Code"}
	}

	instrument := Instrument{
		ID:       identity.Hash(identity.SourceAlphaVantage, string(DataTypeCrypto), currency, market),
		Source:   identity.SourceAlphaVantage,
		DataType: DataTypeCrypto,
		Fields: []Field{
			{Name: "currency_code", Value: currency},
			{Name: "currency_name", Value: numberedString(meta, "Digital Currency Name")},
			{Name: "market_code", Value: market},
			{Name: "market_name", Value: numberedString(meta, "Market Name")},
			{Name: "last_refreshed", Value: numberedString(meta, "Last Refreshed")},
			{Name: "time_zone", Value: numberedString(meta, "Time Zone")},
		},
	}

	specs := cryptoFields(market)
	return &TimeSeries{
		Instrument: instrument,
		Fields:     columnsOf(specs),
		Points:     t.seriesPoints(DomainCrypto, block, specs),
	}, nil
}

func cryptoFields(market string) []fieldSpec {
	legacy := func(ordinal, name string) string {
		return fmt.Sprintf("%s. %s (%s)", ordinal, name, market)
	}
	return []fieldSpec{
		{column: "open", keys: []string{"1. open", legacy("1a", "open")}},
		{column: "high", keys: []string{"2. high", legacy("2a", "high")}},
		{column: "low", keys: []string{"3. low", legacy("3a", "low")}},
		{column: "close", keys: []string{"4. close", legacy("4a", "close")}},
		{column: "volume", keys: []string{"5. volume"}},
	}
}
