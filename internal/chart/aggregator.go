// Package chart aggregates stored hourly points into candles on demand.
package chart

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"token-chart-lab/internal/domain"
	"token-chart-lab/internal/observability"
	"token-chart-lab/internal/storage"
)

// Aggregator builds fixed-width candles from stored points.
type Aggregator struct {
	points storage.PricePointStore
}

// NewAggregator creates an Aggregator reading from points.
func NewAggregator(points storage.PricePointStore) *Aggregator {
	return &Aggregator{points: points}
}

// Aggregate groups the token's points into buckets of widthSeconds aligned to
// the Unix epoch and returns one candle per non-empty bucket, ascending.
// A token without points yields a single placeholder candle.
func (a *Aggregator) Aggregate(ctx context.Context, tokenID string, widthSeconds int64) (candles []domain.Candle, err error) {
	if widthSeconds <= 0 {
		return nil, fmt.Errorf("bucket width %d: %w", widthSeconds, storage.ErrInvalidInput)
	}

	start := time.Now()
	defer func() {
		observability.RecordAggregation(time.Since(start).Seconds(), err)
	}()

	points, err := a.points.GetByTokenID(ctx, tokenID)
	if err != nil {
		return nil, fmt.Errorf("load points for %s: %w", tokenID, err)
	}
	return Bucketize(points, widthSeconds), nil
}

// Bucketize is the storage-free core of Aggregate.
func Bucketize(points []*domain.PricePoint, widthSeconds int64) []domain.Candle {
	if len(points) == 0 {
		return []domain.Candle{domain.PlaceholderCandle()}
	}

	sorted := make([]*domain.PricePoint, len(points))
	copy(sorted, points)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.Before(sorted[j].Timestamp)
	})

	var (
		candles []domain.Candle
		sum     decimal.Decimal
		current int64
	)
	flush := func() {
		c := &candles[len(candles)-1]
		c.MeanPriceUSD = sum.Div(decimal.NewFromInt(int64(c.Points)))
	}

	for i, p := range sorted {
		idx := floorDiv(p.Timestamp.Unix(), widthSeconds)
		if i == 0 || idx != current {
			if i > 0 {
				flush()
			}
			current = idx
			sum = decimal.Zero
			candles = append(candles, domain.Candle{
				Start: p.Timestamp.UTC(),
				Open:  p.Open,
				High:  p.High,
				Low:   p.Low,
			})
		}

		c := &candles[len(candles)-1]
		c.Close = p.Close
		if p.High.GreaterThan(c.High) {
			c.High = p.High
		}
		if p.Low.LessThan(c.Low) {
			c.Low = p.Low
		}
		sum = sum.Add(p.PriceUSD)
		c.Points++
	}
	flush()

	return candles
}

// floorDiv rounds toward negative infinity so pre-epoch buckets stay aligned.
func floorDiv(a, b int64) int64 {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}
