package ingestion

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"token-chart-lab/internal/domain"
	"token-chart-lab/internal/subgraph"
)

// ErrMalformedResponse is returned when a provider entry cannot be turned
// into a price point. The token's fetch loop stops without retrying.
var ErrMalformedResponse = errors.New("malformed provider response")

// TokenIDFromEntryID returns the token id prefix of a composite
// "<tokenId>-<suffix>" entry id.
func TokenIDFromEntryID(id string) string {
	tokenID, _, _ := strings.Cut(id, "-")
	return tokenID
}

// NormalizeEntry converts a raw hourly entry into a PricePoint. symbols maps
// tracked token ids to their symbols; entries for other tokens are rejected.
func NormalizeEntry(raw subgraph.TokenHourData, symbols map[string]string) (*domain.PricePoint, error) {
	tokenID := TokenIDFromEntryID(raw.ID)
	if tokenID == "" {
		return nil, fmt.Errorf("%w: entry %q has no token id", ErrMalformedResponse, raw.ID)
	}
	symbol, ok := symbols[tokenID]
	if !ok {
		return nil, fmt.Errorf("%w: entry %q references untracked token %s", ErrMalformedResponse, raw.ID, tokenID)
	}
	if raw.PeriodStartUnix == nil {
		return nil, fmt.Errorf("%w: entry %q missing periodStartUnix", ErrMalformedResponse, raw.ID)
	}

	p := &domain.PricePoint{
		TokenID:         tokenID,
		Symbol:          symbol,
		PeriodStartUnix: *raw.PeriodStartUnix,
		Timestamp:       domain.TimestampFromUnix(*raw.PeriodStartUnix),
	}

	fields := []struct {
		name string
		src  *string
		dst  *decimal.Decimal
	}{
		{"open", raw.Open, &p.Open},
		{"high", raw.High, &p.High},
		{"low", raw.Low, &p.Low},
		{"close", raw.Close, &p.Close},
		{"priceUSD", raw.PriceUSD, &p.PriceUSD},
	}
	for _, f := range fields {
		if f.src == nil {
			return nil, fmt.Errorf("%w: entry %q missing %s", ErrMalformedResponse, raw.ID, f.name)
		}
		d, err := decimal.NewFromString(*f.src)
		if err != nil {
			return nil, fmt.Errorf("%w: entry %q %s %q: %v", ErrMalformedResponse, raw.ID, f.name, *f.src, err)
		}
		*f.dst = d
	}

	return p, nil
}

// NormalizePage converts a whole page and returns the largest period start.
// Any malformed entry fails the page.
func NormalizePage(page []subgraph.TokenHourData, symbols map[string]string) ([]*domain.PricePoint, int64, error) {
	points := make([]*domain.PricePoint, 0, len(page))
	var pageMax int64
	for i, raw := range page {
		p, err := NormalizeEntry(raw, symbols)
		if err != nil {
			return nil, 0, err
		}
		if i == 0 || p.PeriodStartUnix > pageMax {
			pageMax = p.PeriodStartUnix
		}
		points = append(points, p)
	}
	return points, pageMax, nil
}

// NormalizeToken converts subgraph metadata into a domain token.
func NormalizeToken(raw subgraph.Token) *domain.Token {
	return &domain.Token{
		ID:          raw.ID,
		Name:        raw.Name,
		Symbol:      raw.Symbol,
		TotalSupply: raw.TotalSupply,
		VolumeUSD:   raw.VolumeUSD,
		Decimals:    raw.Decimals,
	}
}
