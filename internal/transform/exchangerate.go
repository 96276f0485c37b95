package transform

import (
	"github.com/shopspring/decimal"

	"finance-etl/internal/identity"
	"finance-etl/internal/normalize"
	"finance-etl/internal/storage"
)

var exchangeRateColumns = []string{
	ColInstrumentID, ColSource, ColDataType,
	"from_currency_code", "from_currency_name", "to_currency_code", "to_currency_name",
	"exchange_rate", "bid_price", "ask_price", "last_refreshed", "time_zone",
}

// ExchangeRateRecord is a point-in-time quote for a currency pair.
type ExchangeRateRecord struct {
	Instrument    Instrument
	ExchangeRate  decimal.NullDecimal
	BidPrice      decimal.NullDecimal
	AskPrice      decimal.NullDecimal
	LastRefreshed string
	TimeZone      string
}

// Tables projects the record onto the exchange_rates table.
func (r *ExchangeRateRecord) Tables() []Table {
	row := r.Instrument.row()
	row["exchange_rate"] = normalize.FormatNumber(r.ExchangeRate)
	row["bid_price"] = normalize.FormatNumber(r.BidPrice)
	row["ask_price"] = normalize.FormatNumber(r.AskPrice)
	row["last_refreshed"] = r.LastRefreshed
	row["time_zone"] = r.TimeZone

	rows := storage.NewTable(exchangeRateColumns...)
	rows.Append(row)
	return []Table{{Name: TableExchangeRates, Key: instrumentKey, Rows: rows}}
}

// ExchangeRate maps a CURRENCY_EXCHANGE_RATE payload onto one record.
func (t *Transformer) ExchangeRate(raw []byte) (*ExchangeRateRecord, error) {
	payload, err := decodeObject(DomainExchangeRate, raw)
	if err != nil {
		return nil, err
	}
	block, err := requireObject(DomainExchangeRate, payload, exchangeRateBlockKey)
	if err != nil {
		return nil, err
	}

	from := numberedString(block, "From_Currency Code")
	to := numberedString(block, "To_Currency Code")
	if from == "" || to == "" {
		return nil, &MissingDataBlockError{Domain: DomainExchangeRate, Key: exchangeRateBlockKey + ".From_Currency Code/To_Currency Code"}
	}

	rate, _ := numbered(block, "Exchange Rate")
	bid, _ := numbered(block, "Bid Price")
	ask, _ := numbered(block, "Ask Price")

	return &ExchangeRateRecord{
		Instrument: Instrument{
			ID:       identity.Hash(identity.SourceAlphaVantage, string(DataTypeExchangeRate), from, to),
			Source:   identity.SourceAlphaVantage,
			DataType: DataTypeExchangeRate,
			Fields: []Field{
				{Name: "from_currency_code", Value: from},
				{Name: "from_currency_name", Value: numberedString(block, "From_Currency Name")},
				{Name: "to_currency_code", Value: to},
				{Name: "to_currency_name", Value: numberedString(block, "To_Currency Name")},
			},
		},
		ExchangeRate:  t.norm.Number("exchange_rate", rate),
		BidPrice:      t.norm.Number("bid_price", bid),
		AskPrice:      t.norm.Number("ask_price", ask),
		LastRefreshed: numberedString(block, "Last Refreshed"),
		TimeZone:      numberedString(block, "Time Zone"),
	}, nil
}
