package transform

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"finance-etl/internal/identity"
	"finance-etl/internal/normalize"
)

// placeholder Alpha Vantage uses for "no data for this period" in commodity series.
const commodityPlaceholder = "."

const commodityDataKey = "data"

var commodityFields = []string{"price"}

// Commodity maps a commodity payload ({name, interval, unit, data: [{date, value}]})
// onto the commodity instrument and its price points.
func (t *Transformer) Commodity(raw []byte) (*TimeSeries, error) {
	payload, err := decodeObject(DomainCommodity, raw)
	if err != nil {
		return nil, err
	}

	rawData, ok := payload[commodityDataKey]
	if !ok || rawData == nil {
		return nil, missingBlock(DomainCommodity, payload, commodityDataKey)
	}
	entries, ok := rawData.([]any)
	if !ok {
		return nil, fmt.Errorf("%w: %s payload: %q is not a list", ErrMalformedPayload, DomainCommodity, commodityDataKey)
	}

	name := stringify(payload["name"])
	if name == "" {
		return nil, &MissingDataBlockError{Domain: DomainCommodity, Key: "name"}
	}

	instrument := Instrument{
		ID:       identity.Hash(identity.SourceAlphaVantage, string(DataTypeCommodity), name),
		Source:   identity.SourceAlphaVantage,
		DataType: DataTypeCommodity,
		Fields: []Field{
			{Name: ColName, Value: name},
			{Name: "interval", Value: stringify(payload["interval"])},
			{Name: "unit", Value: stringify(payload["unit"])},
		},
	}

	points := make([]Point, 0, len(entries))
	for _, item := range entries {
		entry, ok := item.(object)
		if !ok {
			t.logger.Debug().Str("domain", string(DomainCommodity)).Msg("dropping data entry that is not an object")
			continue
		}

		date, err := normalize.ISODate(stringify(entry["date"]))
		if err != nil {
			t.logger.Debug().Err(err).Str("domain", string(DomainCommodity)).Str("commodity", name).Msg("dropping point with unparsable date")
			continue
		}

		price := t.commodityPrice(entry["value"])
		if !price.Valid {
			continue
		}
		points = append(points, Point{Date: date, Values: []decimal.NullDecimal{price}})
	}
	sortPoints(points)

	return &TimeSeries{Instrument: instrument, Fields: commodityFields, Points: points}, nil
}

func (t *Transformer) commodityPrice(value any) decimal.NullDecimal {
	if s, ok := value.(string); ok && strings.TrimSpace(s) == commodityPlaceholder {
		return decimal.NullDecimal{}
	}
	return t.norm.Number("price", value)
}
