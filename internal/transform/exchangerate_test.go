package transform

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"finance-etl/internal/identity"
)

func TestExchangeRateRecord(t *testing.T) {
	payload := `{"Realtime Currency Exchange Rate": {
	  "1. From_Currency Code": "USD", "2. From_Currency Name": "United States Dollar",
	  "3. To_Currency Code": "JPY", "4. To_Currency Name": "Japanese Yen",
	  "5. Exchange Rate": "150.12000000", "6. Last Refreshed": "2024-03-01 12:00:01",
	  "7. Time Zone": "UTC", "8. Bid Price": "150.11", "9. Ask Price": "bad"}}`

	rec, err := newTestTransformer().ExchangeRate([]byte(payload))
	require.NoError(t, err)
	require.Equal(t, identity.Hash(identity.SourceAlphaVantage, "exchange_rate", "USD", "JPY"), rec.Instrument.ID)
	require.True(t, rec.ExchangeRate.Decimal.Equal(dec(t, "150.12")))
	require.False(t, rec.AskPrice.Valid)
	require.Equal(t, "2024-03-01 12:00:01", rec.LastRefreshed)

	tables := rec.Tables()
	require.Len(t, tables, 1)
	require.Equal(t, TableExchangeRates, tables[0].Name)
	row := tables[0].Rows.Rows()[0]
	require.Equal(t, "150.12", row["exchange_rate"])
	require.Equal(t, "", row["ask_price"])
}

func TestExchangeRateMissingBlock(t *testing.T) {
	rec, err := newTestTransformer().ExchangeRate([]byte(`{"Error Message": "Invalid API call."}`))
	require.Nil(t, rec)
	require.True(t, errors.Is(err, ErrMissingDataBlock))

	var missing *MissingDataBlockError
	require.True(t, errors.As(err, &missing))
	require.Equal(t, DomainExchangeRate, missing.Domain)
	require.Equal(t, "Realtime Currency Exchange Rate", missing.Key)
	require.Equal(t, "Invalid API call.", missing.Detail)
}
