package normalize

import (
	"bytes"
	"encoding/json"
	"errors"
	"math"
	"testing"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestNumberCoercesSupportedInputs(t *testing.T) {
	n := New(zerolog.Nop())

	cases := []struct {
		name  string
		value any
		want  string
	}{
		{"string", "2450.12", "2450.12"},
		{"padded string", " 61000.0 ", "61000"},
		{"json number", json.Number("1234"), "1234"},
		{"float", 1.5, "1.5"},
		{"int", 42, "42"},
		{"exponent", "1e3", "1000"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := n.Number("price", tc.value)
			require.True(t, got.Valid)
			require.True(t, got.Decimal.Equal(decimal.RequireFromString(tc.want)), "got %s", got.Decimal)
		})
	}
}

func TestNumberNullTokensAreQuiet(t *testing.T) {
	var buf bytes.Buffer
	n := New(zerolog.New(&buf))

	for _, v := range []any{nil, "", "None", "NaN", "null", math.NaN()} {
		require.False(t, n.Number("close", v).Valid)
	}
	require.Empty(t, buf.String())
}

func TestNumberFailureLogsAndReturnsNull(t *testing.T) {
	var buf bytes.Buffer
	n := New(zerolog.New(&buf))

	got := n.Number("volume", "12abc")
	require.False(t, got.Valid)
	require.Contains(t, buf.String(), "numeric coercion failed")
	require.Contains(t, buf.String(), "volume")

	buf.Reset()
	require.False(t, n.Number("volume", map[string]any{"raw": 1}).Valid)
	require.Contains(t, buf.String(), "numeric coercion failed")
}

func TestISODate(t *testing.T) {
	cases := map[string]string{
		"2024-01-31":                "2024-01-31",
		"2024-02-29 00:00:00":       "2024-02-29",
		"2024-03-01 16:00":          "2024-03-01",
		"2024-03-01T12:30:00Z":      "2024-03-01",
		"2024-03-01T12:30:00+02:00": "2024-03-01",
		"2024/03/01":                "2024-03-01",
		"03/01/2024":                "2024-03-01",
		"20240301":                  "2024-03-01",
		"1727654400000":             "2024-09-30",
		"1727654400":                "2024-09-30",
	}
	for in, want := range cases {
		got, err := ISODate(in)
		require.NoError(t, err, in)
		require.Equal(t, want, got, in)
	}
}

func TestISODateRejectsGarbage(t *testing.T) {
	for _, in := range []string{"", "yesterday", "2024-13-45", "12345"} {
		_, err := ISODate(in)
		require.Error(t, err, in)
		require.True(t, errors.Is(err, ErrUnparsableDate))
	}
}

func TestFormatNumber(t *testing.T) {
	require.Equal(t, "", FormatNumber(decimal.NullDecimal{}))
	require.Equal(t, "2480", FormatNumber(decimal.NewNullDecimal(decimal.RequireFromString("2480.00"))))
}
