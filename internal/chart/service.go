package chart

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"token-chart-lab/internal/domain"
	"token-chart-lab/internal/storage"
)

// SeriesPoint is one element of a chart series.
type SeriesPoint struct {
	Time      string  `json:"time"`
	PriceType string  `json:"priceType"`
	Value     float64 `json:"value"`
}

// Metadata describes the charted token. ID is empty for unknown symbols.
type Metadata struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Symbol      string `json:"symbol"`
	TotalSupply string `json:"totalSupply"`
	VolumeUSD   string `json:"volumeUSD"`
	Decimals    string `json:"decimals"`
}

// Data is a formatted chart: five series in the order open, close, high,
// low, priceUSD, each holding one point per candle.
type Data struct {
	Metadata Metadata        `json:"metadata"`
	Series   [][]SeriesPoint `json:"series"`
}

// Service answers chart queries by symbol.
type Service struct {
	agg     *Aggregator
	tokens  storage.TokenStore
	symbols map[string]string // symbol -> token id
}

// NewService creates a Service over the tracked token set.
func NewService(agg *Aggregator, tokens storage.TokenStore, tracked []domain.TrackedToken) *Service {
	return &Service{
		agg:     agg,
		tokens:  tokens,
		symbols: domain.IDsBySymbol(tracked),
	}
}

// ChartData aggregates the token behind symbol into candles of hours width.
// An untracked symbol yields empty metadata and the placeholder series.
func (s *Service) ChartData(ctx context.Context, symbol string, hours int) (*Data, error) {
	if hours <= 0 {
		return nil, fmt.Errorf("hours %d: %w", hours, storage.ErrInvalidInput)
	}

	tokenID, ok := s.symbols[symbol]
	if !ok {
		return &Data{Series: FormatSeries([]domain.Candle{domain.PlaceholderCandle()})}, nil
	}

	meta, err := s.TokenMetadata(ctx, tokenID)
	if err != nil {
		return nil, err
	}
	if meta.Symbol == "" {
		meta.Symbol = symbol
	}

	candles, err := s.agg.Aggregate(ctx, tokenID, int64(hours)*3600)
	if err != nil {
		return nil, err
	}

	return &Data{Metadata: *meta, Series: FormatSeries(candles)}, nil
}

// TokenMetadata returns stored metadata for id. A token that has not been
// synced yet yields metadata carrying only its id.
func (s *Service) TokenMetadata(ctx context.Context, id string) (*Metadata, error) {
	t, err := s.tokens.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return &Metadata{ID: id}, nil
		}
		return nil, fmt.Errorf("load metadata for %s: %w", id, err)
	}
	return &Metadata{
		ID:          t.ID,
		Name:        t.Name,
		Symbol:      t.Symbol,
		TotalSupply: t.TotalSupply,
		VolumeUSD:   t.VolumeUSD,
		Decimals:    t.Decimals,
	}, nil
}

// FormatSeries splits candles into the five display series.
func FormatSeries(candles []domain.Candle) [][]SeriesPoint {
	types := []string{
		domain.PriceTypeOpen,
		domain.PriceTypeClose,
		domain.PriceTypeHigh,
		domain.PriceTypeLow,
		domain.PriceTypePriceUSD,
	}

	series := make([][]SeriesPoint, len(types))
	for i, pt := range types {
		series[i] = make([]SeriesPoint, 0, len(candles))
		for _, c := range candles {
			series[i] = append(series[i], SeriesPoint{
				Time:      domain.FormatTimestamp(c.Start),
				PriceType: pt,
				Value:     valueOf(c, pt).InexactFloat64(),
			})
		}
	}
	return series
}

func valueOf(c domain.Candle, priceType string) decimal.Decimal {
	switch priceType {
	case domain.PriceTypeOpen:
		return c.Open
	case domain.PriceTypeClose:
		return c.Close
	case domain.PriceTypeHigh:
		return c.High
	case domain.PriceTypeLow:
		return c.Low
	default:
		return c.MeanPriceUSD
	}
}
