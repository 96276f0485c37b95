package identity

import (
	"crypto/md5"
	"encoding/hex"
	"strings"
)

// Separator joins the hash basis. Part of the id contract: changing it re-keys every stored row.
const Separator = "|"

const (
	// SourceAlphaVantage labels instruments extracted from Alpha Vantage.
	SourceAlphaVantage = "Alpha Vantage"
	// SourceYahooFinance labels company documents extracted from Yahoo Finance.
	SourceYahooFinance = "Yahoo Finance"
)

// Hash derives the instrument id from source, data type and the ordered discriminators.
// The result is the lower-case hex MD5 of "source|data_type|d1|d2...".
func Hash(source, dataType string, discriminators ...string) string {
	parts := make([]string, 0, len(discriminators)+2)
	parts = append(parts, source, dataType)
	parts = append(parts, discriminators...)

	sum := md5.Sum([]byte(strings.Join(parts, Separator)))
	return hex.EncodeToString(sum[:])
}
