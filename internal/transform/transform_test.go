package transform

import (
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"finance-etl/internal/identity"
)

func newTestTransformer() *Transformer {
	return New(DefaultOptions(), zerolog.Nop())
}

func dec(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	return decimal.RequireFromString(s)
}

const stockPayload = `{
  "Meta Data": {
    "1. Information": "Daily Prices (open, high, low, close) and Volumes",
    "2. Symbol": "GOOGL",
    "3. Last Refreshed": "2024-03-01",
    "4. Output Size": "Compact",
    "5. Time Zone": "US/Eastern"
  },
  "Time Series (Daily)": {
    "2024-03-01": {"1. open": "138.4", "2. high": "139.1", "3. low": "137.0", "4. close": "137.9", "5. volume": "31000000"},
    "2024-02-29": {"1. open": "139.0", "2. high": "140.2", "3. low": "138.5", "4. close": "138.5", "5. volume": "28000000"},
    "not-a-date": {"1. open": "1", "2. high": "1", "3. low": "1", "4. close": "1", "5. volume": "1"},
    "2024-02-28": {"1. open": "n/a", "2. high": "", "3. low": null, "4. close": "None", "5. volume": "-"}
  }
}`

func TestStockFansOutPointsSharingOneID(t *testing.T) {
	ts, err := newTestTransformer().Stock([]byte(stockPayload))
	require.NoError(t, err)

	require.Equal(t, identity.Hash(identity.SourceAlphaVantage, "stock", "GOOGL"), ts.Instrument.ID)
	require.Equal(t, "GOOGL", ts.Instrument.Field(ColSymbol))
	require.Equal(t, []string{"open", "high", "low", "close", "volume"}, ts.Fields)

	require.Len(t, ts.Points, 2, "bad date and all-null rows are dropped")
	require.Equal(t, "2024-02-29", ts.Points[0].Date)
	require.Equal(t, "2024-03-01", ts.Points[1].Date)
	require.True(t, ts.Points[1].Value(ts.Fields, "close").Decimal.Equal(dec(t, "137.9")))

	tables := ts.Tables()
	require.Len(t, tables, 2)
	require.Equal(t, TableInstruments, tables[0].Name)
	require.Equal(t, 1, tables[0].Rows.Len())
	require.Equal(t, TableTimeseries, tables[1].Name)
	require.Equal(t, []string{ColInstrumentID, ColDate}, tables[1].Key)
	for _, row := range tables[1].Rows.Rows() {
		require.Equal(t, ts.Instrument.ID, row[ColInstrumentID])
	}
}

func TestStockIsDeterministic(t *testing.T) {
	tr := newTestTransformer()
	first, err := tr.Stock([]byte(stockPayload))
	require.NoError(t, err)
	second, err := tr.Stock([]byte(stockPayload))
	require.NoError(t, err)
	require.Equal(t, first.Instrument.ID, second.Instrument.ID)
	require.Equal(t, first.Points, second.Points)
}

func TestStockMissingSeriesCarriesProviderNote(t *testing.T) {
	payload := `{"Meta Data": {"2. Symbol": "GOOGL"}, "Note": "Thank you for using Alpha Vantage! Our standard API rate limit is 25 requests per day."}`

	_, err := newTestTransformer().Stock([]byte(payload))
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrMissingDataBlock))

	var missing *MissingDataBlockError
	require.True(t, errors.As(err, &missing))
	require.Equal(t, DomainStock, missing.Domain)
	require.Equal(t, "Time Series (...", missing.Key)
	require.Contains(t, missing.Detail, "rate limit")
}

func TestStockAdjustedVolume(t *testing.T) {
	payload := `{
	  "Meta Data": {"1. Information": "Daily Time Series with Splits and Dividend Events", "2. Symbol": "IBM"},
	  "Time Series (Daily)": {
	    "2024-03-01": {"1. open": "185.5", "2. high": "188.4", "3. low": "185.2", "4. close": "188.2", "5. adjusted close": "188.2", "6. volume": "4018354", "7. dividend amount": "0.0000"}
	  }
	}`

	ts, err := newTestTransformer().Stock([]byte(payload))
	require.NoError(t, err)
	require.Len(t, ts.Points, 1)
	require.True(t, ts.Points[0].Value(ts.Fields, "volume").Decimal.Equal(dec(t, "4018354")))
	require.True(t, ts.Points[0].Value(ts.Fields, "close").Decimal.Equal(dec(t, "188.2")))
}

func TestMalformedPayload(t *testing.T) {
	_, err := newTestTransformer().Stock([]byte(`[1, 2`))
	require.True(t, errors.Is(err, ErrMalformedPayload))
}

func TestForexUsesPairSymbol(t *testing.T) {
	payload := `{
	  "Meta Data": {"1. Information": "Forex Daily Prices", "2. From Symbol": "EUR", "3. To Symbol": "USD", "5. Last Refreshed": "2024-03-01 16:00:00", "6. Time Zone": "UTC"},
	  "Time Series FX (Daily)": {
	    "2024-03-01": {"1. open": "1.0801", "2. high": "1.0850", "3. low": "1.0790", "4. close": "1.0838"}
	  }
	}`

	ts, err := newTestTransformer().Forex([]byte(payload))
	require.NoError(t, err)
	require.Equal(t, identity.Hash(identity.SourceAlphaVantage, "forex", "EUR_USD"), ts.Instrument.ID)
	require.Equal(t, "EUR_USD", ts.Instrument.Field(ColSymbol))
	require.Equal(t, []string{"open", "high", "low", "close"}, ts.Fields)
	require.Len(t, ts.Points, 1)
}

func TestForexMissingMetaData(t *testing.T) {
	_, err := newTestTransformer().Forex([]byte(`{"Time Series FX (Daily)": {}}`))
	var missing *MissingDataBlockError
	require.True(t, errors.As(err, &missing))
	require.Equal(t, "Meta Data", missing.Key)
}

func TestCryptoCurrentAndLegacyFieldNames(t *testing.T) {
	payload := `{
	  "Meta Data": {"1. Information": "Daily Prices and Volumes for Digital Currency", "2. Digital Currency Code": "BTC", "3. Digital Currency Name": "Bitcoin", "4. Market Code": "USD", "5. Market Name": "United States Dollar", "6. Last Refreshed": "2024-02-29"},
	  "Time Series (Digital Currency Daily)": {
	    "2024-02-29": {"1. open": "60000.0", "2. high": "62000.0", "3. low": "59000.0", "4. close": "61000.0", "5. volume": "1234"},
	    "2024-02-28": {"1a. open (USD)": "59000.0", "2a. high (USD)": "60000.0", "3a. low (USD)": "58000.0", "4a. close (USD)": "59500.0", "5. volume": "1111"}
	  }
	}`

	ts, err := newTestTransformer().Crypto([]byte(payload))
	require.NoError(t, err)
	require.Equal(t, identity.Hash(identity.SourceAlphaVantage, "crypto", "BTC", "USD"), ts.Instrument.ID)
	require.Len(t, ts.Points, 2)
	require.True(t, ts.Points[0].Value(ts.Fields, "open").Decimal.Equal(dec(t, "59000")))
	require.True(t, ts.Points[1].Value(ts.Fields, "volume").Decimal.Equal(dec(t, "1234")))
}

func TestForDomain(t *testing.T) {
	tr := newTestTransformer()
	for _, d := range []Domain{DomainStock, DomainForex, DomainCrypto, DomainCommodity, DomainExchangeRate} {
		fn, ok := tr.ForDomain(d)
		require.True(t, ok, d)
		require.NotNil(t, fn)
	}
	_, ok := tr.ForDomain(DomainFinancials)
	require.False(t, ok)
	_, ok = tr.ForDomain("bonds")
	require.False(t, ok)
}

func TestEntityName(t *testing.T) {
	require.Equal(t, "BTC_USD_crypto_data", EntityName("/raw/cryptocurrencies/BTC_USD_crypto_data.json"))
}
