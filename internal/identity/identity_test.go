package identity

import (
	"crypto/md5"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHashIsDeterministic(t *testing.T) {
	first := Hash(SourceAlphaVantage, "crypto", "BTC", "USD")
	second := Hash(SourceAlphaVantage, "crypto", "BTC", "USD")

	require.Equal(t, first, second)
	require.Len(t, first, 32)
}

func TestHashMatchesBasisDigest(t *testing.T) {
	sum := md5.Sum([]byte("Alpha Vantage|commodity|Global Price of Aluminum"))
	want := hex.EncodeToString(sum[:])

	require.Equal(t, want, Hash(SourceAlphaVantage, "commodity", "Global Price of Aluminum"))
}

func TestHashDiscriminatorOrderMatters(t *testing.T) {
	require.NotEqual(t,
		Hash(SourceAlphaVantage, "exchange_rate", "USD", "EUR"),
		Hash(SourceAlphaVantage, "exchange_rate", "EUR", "USD"),
	)
}

func TestHashEmptyDiscriminatorKeepsPosition(t *testing.T) {
	sum := md5.Sum([]byte("Alpha Vantage|crypto||USD"))
	require.Equal(t, hex.EncodeToString(sum[:]), Hash(SourceAlphaVantage, "crypto", "", "USD"))
	require.NotEqual(t, Hash(SourceAlphaVantage, "crypto", "", "USD"), Hash(SourceAlphaVantage, "crypto", "USD"))
}
