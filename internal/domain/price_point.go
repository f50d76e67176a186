package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// TimestampLayout is the UTC second-precision layout used for point and candle times.
const TimestampLayout = "2006-01-02T15:04:05"

// PricePoint represents one hourly price observation for a token.
// Corresponds to token_hour_data table.
// (TokenID, PriceUSD, Timestamp) is unique.
type PricePoint struct {
	TokenID         string          // prefix of the subgraph composite id
	Symbol          string          // tracked symbol of the token
	Open            decimal.Decimal // open price in pool units
	High            decimal.Decimal
	Low             decimal.Decimal
	Close           decimal.Decimal
	PriceUSD        decimal.Decimal // USD price
	PeriodStartUnix int64           // period start (Unix seconds)
	Timestamp       time.Time       // UTC, derived from PeriodStartUnix
}

// TimestampFromUnix derives the stored timestamp for a period start.
func TimestampFromUnix(sec int64) time.Time {
	return time.Unix(sec, 0).UTC()
}

// FormatTimestamp renders t in TimestampLayout.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}
