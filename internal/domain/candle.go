package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Candle is one fixed-width aggregation bucket of price points. Never persisted.
type Candle struct {
	Start        time.Time // earliest point timestamp in the bucket
	Open         decimal.Decimal
	Close        decimal.Decimal
	High         decimal.Decimal
	Low          decimal.Decimal
	MeanPriceUSD decimal.Decimal
	Points       int // number of points aggregated
}

// PlaceholderCandle is returned for tokens without stored points.
// All series values are zero.
func PlaceholderCandle() Candle {
	return Candle{
		Start:        time.Unix(0, 0).UTC(),
		Open:         decimal.Zero,
		Close:        decimal.Zero,
		High:         decimal.Zero,
		Low:          decimal.Zero,
		MeanPriceUSD: decimal.Zero,
	}
}

// Series price types, in display order.
const (
	PriceTypeOpen     = "open"
	PriceTypeClose    = "close"
	PriceTypeHigh     = "high"
	PriceTypeLow      = "low"
	PriceTypePriceUSD = "priceUSD"
)
