// Package normalize coerces provider field values into canonical numbers and dates.
//
// Numeric coercion is lenient: a value that cannot be read as a number becomes
// null and is logged. Date coercion is strict because the date is part of every
// timeseries key, so callers drop rows whose date does not parse.
package normalize

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// DateLayout is the canonical calendar date format.
const DateLayout = "2006-01-02"

// ErrUnparsableDate reports a date value none of the known layouts accepted.
var ErrUnparsableDate = errors.New("unparsable date")

var dateLayouts = []string{
	DateLayout,
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04:05.000",
	"2006/01/02",
	"01/02/2006",
	"20060102",
}

// textual nulls providers use for "no value".
var nullTokens = map[string]struct{}{
	"":     {},
	"none": {},
	"null": {},
	"nan":  {},
	"n/a":  {},
	"-":    {},
}

// Normalizer converts raw values and reports coercion failures to its logger.
type Normalizer struct {
	logger zerolog.Logger
}

// New constructs a Normalizer.
func New(logger zerolog.Logger) *Normalizer {
	return &Normalizer{logger: logger.With().Str("component", "normalizer").Logger()}
}

// Number coerces value to a decimal. It never fails: unusable input yields an invalid NullDecimal.
func (n *Normalizer) Number(field string, value any) decimal.NullDecimal {
	d, ok := n.number(value)
	if !ok {
		n.logger.Warn().Str("field", field).Interface("value", value).Msg("numeric coercion failed; storing null")
		return decimal.NullDecimal{}
	}
	return d
}

func (n *Normalizer) number(value any) (decimal.NullDecimal, bool) {
	switch v := value.(type) {
	case nil:
		return decimal.NullDecimal{}, true
	case decimal.Decimal:
		return decimal.NewNullDecimal(v), true
	case decimal.NullDecimal:
		return v, true
	case json.Number:
		return parseNumberString(v.String())
	case string:
		return parseNumberString(v)
	case float64:
		return fromFloat(v)
	case float32:
		return fromFloat(float64(v))
	case int:
		return decimal.NewNullDecimal(decimal.NewFromInt(int64(v))), true
	case int32:
		return decimal.NewNullDecimal(decimal.NewFromInt32(v)), true
	case int64:
		return decimal.NewNullDecimal(decimal.NewFromInt(v)), true
	case uint32:
		return decimal.NewNullDecimal(decimal.NewFromInt(int64(v))), true
	case uint64:
		if v > math.MaxInt64 {
			return decimal.NewNullDecimal(decimal.RequireFromString(strconv.FormatUint(v, 10))), true
		}
		return decimal.NewNullDecimal(decimal.NewFromInt(int64(v))), true
	default:
		return decimal.NullDecimal{}, false
	}
}

func parseNumberString(raw string) (decimal.NullDecimal, bool) {
	trimmed := strings.TrimSpace(raw)
	if _, isNull := nullTokens[strings.ToLower(trimmed)]; isNull {
		return decimal.NullDecimal{}, true
	}
	d, err := decimal.NewFromString(trimmed)
	if err != nil {
		return decimal.NullDecimal{}, false
	}
	return decimal.NewNullDecimal(d), true
}

func fromFloat(v float64) (decimal.NullDecimal, bool) {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return decimal.NullDecimal{}, true
	}
	return decimal.NewNullDecimal(decimal.NewFromFloat(v)), true
}

// ISODate parses a provider date representation and re-emits it as YYYY-MM-DD.
func ISODate(value string) (string, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty value", ErrUnparsableDate)
	}

	for _, layout := range dateLayouts {
		if ts, err := time.Parse(layout, trimmed); err == nil {
			return ts.Format(DateLayout), nil
		}
	}

	if ts, ok := parseEpoch(trimmed); ok {
		return ts.UTC().Format(DateLayout), nil
	}

	return "", fmt.Errorf("%w: %q", ErrUnparsableDate, value)
}

// parseEpoch accepts unix seconds (10 digits) and milliseconds (13 digits).
func parseEpoch(value string) (time.Time, bool) {
	if len(value) != 10 && len(value) != 13 {
		return time.Time{}, false
	}
	n, err := strconv.ParseInt(value, 10, 64)
	if err != nil || n < 0 {
		return time.Time{}, false
	}
	if len(value) == 13 {
		return time.UnixMilli(n), true
	}
	return time.Unix(n, 0), true
}

// FormatNumber renders a nullable decimal as a table cell; null is the empty string.
func FormatNumber(d decimal.NullDecimal) string {
	if !d.Valid {
		return ""
	}
	return d.Decimal.String()
}
