package ingestion

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"token-chart-lab/internal/domain"
	"token-chart-lab/internal/storage/memory"
	"token-chart-lab/internal/subgraph"
)

func seedHours(src *fakeSource, tokenID string, hours int) {
	for h := 1; h <= hours; h++ {
		src.add(tokenID, rawEntry(tokenID, int64(h)*3600, "1.5"))
	}
}

func TestFetcher_PaginatesUntilEmptyPage(t *testing.T) {
	ctx := context.Background()
	src := newFakeSource()
	seedHours(src, "0xaaa", 5)
	points := memory.NewPricePointStore()

	f := newTestFetcher(src, memory.NewTokenStore(), points, 2, 1)
	boundary := f.FetchSince(ctx, "0xaaa", 0)

	assert.Equal(t, int64(5*3600), boundary)
	assert.Equal(t, 5, points.Len())
	assert.Equal(t, 4, src.callCount("0xaaa"), "pages of 2, 2, 1 and a final empty page")
}

func TestFetcher_Idempotent(t *testing.T) {
	ctx := context.Background()
	src := newFakeSource()
	seedHours(src, "0xaaa", 5)
	points := memory.NewPricePointStore()
	f := newTestFetcher(src, memory.NewTokenStore(), points, 2, 1)

	first := f.FetchSince(ctx, "0xaaa", 0)
	before, err := points.GetByTokenID(ctx, "0xaaa")
	require.NoError(t, err)

	second := f.FetchSince(ctx, "0xaaa", 0)
	after, err := points.GetByTokenID(ctx, "0xaaa")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, before, after)
}

func TestFetcher_CursorMonotonic(t *testing.T) {
	ctx := context.Background()
	src := newFakeSource()
	seedHours(src, "0xaaa", 3)
	points := memory.NewPricePointStore()
	f := newTestFetcher(src, memory.NewTokenStore(), points, 100, 1)

	first := f.FetchSince(ctx, "0xaaa", 0)

	src.add("0xaaa", rawEntry("0xaaa", 4*3600, "2"))
	cursors, err := ResolveCursors(ctx, points, []string{"0xaaa"}, 0, domain.TimestampFromUnix(0))
	require.NoError(t, err)
	second := f.FetchSince(ctx, "0xaaa", cursors["0xaaa"])

	assert.GreaterOrEqual(t, second, first)
	assert.Equal(t, int64(4*3600), second)
}

func TestFetcher_RetryExhaustionKeepsBoundary(t *testing.T) {
	ctx := context.Background()
	src := newFakeSource()
	seedHours(src, "0xaaa", 3)
	src.failures["0xaaa"] = 100
	points := memory.NewPricePointStore()

	f := newTestFetcher(src, memory.NewTokenStore(), points, 100, 1)
	boundary := f.FetchSince(ctx, "0xaaa", 42)

	assert.Equal(t, int64(42), boundary)
	assert.Zero(t, points.Len())
	assert.Equal(t, fastPolicy().MaxAttempts, src.callCount("0xaaa"))
}

func TestFetcher_RetriesTransientFailures(t *testing.T) {
	ctx := context.Background()
	src := newFakeSource()
	seedHours(src, "0xaaa", 3)
	src.failures["0xaaa"] = 2
	points := memory.NewPricePointStore()

	f := newTestFetcher(src, memory.NewTokenStore(), points, 100, 1)
	boundary := f.FetchSince(ctx, "0xaaa", 0)

	assert.Equal(t, int64(3*3600), boundary)
	assert.Equal(t, 3, points.Len())
}

func TestFetcher_FailureMidStreamKeepsCommittedPages(t *testing.T) {
	ctx := context.Background()
	src := newFakeSource()
	seedHours(src, "0xaaa", 4)
	src.failFrom["0xaaa"] = 1
	points := memory.NewPricePointStore()

	f := newTestFetcher(src, memory.NewTokenStore(), points, 2, 1)
	boundary := f.FetchSince(ctx, "0xaaa", 0)

	assert.Equal(t, int64(2*3600), boundary)
	assert.Equal(t, 2, points.Len())
}

func TestFetcher_PermanentErrorNotRetried(t *testing.T) {
	ctx := context.Background()
	src := newFakeSource()
	src.errFor["0xaaa"] = &subgraph.QueryError{Messages: []string{"bad query"}}

	f := newTestFetcher(src, memory.NewTokenStore(), memory.NewPricePointStore(), 100, 1)
	boundary := f.FetchSince(ctx, "0xaaa", 7)

	assert.Equal(t, int64(7), boundary)
	assert.Equal(t, 1, src.callCount("0xaaa"))
}

func TestFetcher_MalformedPageAbortsToken(t *testing.T) {
	ctx := context.Background()
	src := newFakeSource()
	bad := rawEntry("0xaaa", 7200, "1")
	bad.PriceUSD = nil
	src.add("0xaaa", rawEntry("0xaaa", 3600, "1"), bad)
	points := memory.NewPricePointStore()

	f := newTestFetcher(src, memory.NewTokenStore(), points, 100, 1)
	boundary := f.FetchSince(ctx, "0xaaa", 0)

	assert.Equal(t, int64(0), boundary)
	assert.Zero(t, points.Len())
	assert.Equal(t, 1, src.callCount("0xaaa"))
}

func TestFetcher_SinkFailureAbortsToken(t *testing.T) {
	ctx := context.Background()
	src := newFakeSource()
	seedHours(src, "0xaaa", 3)

	f := newTestFetcher(src, memory.NewTokenStore(), failingPoints{memory.NewPricePointStore()}, 100, 1)
	boundary := f.FetchSince(ctx, "0xaaa", 0)

	assert.Equal(t, int64(0), boundary)
	assert.Equal(t, 1, src.callCount("0xaaa"))
}

// stuckSource ignores the after filter and always returns the same page.
type stuckSource struct {
	*fakeSource
}

func (s stuckSource) FetchTokenHourData(ctx context.Context, tokenID string, _ int64, first int) ([]subgraph.TokenHourData, error) {
	return s.fakeSource.FetchTokenHourData(ctx, tokenID, 0, first)
}

func TestFetcher_StopsWhenBoundaryDoesNotAdvance(t *testing.T) {
	ctx := context.Background()
	src := newFakeSource()
	seedHours(src, "0xaaa", 2)

	f := newTestFetcher(stuckSource{src}, memory.NewTokenStore(), memory.NewPricePointStore(), 100, 1)
	boundary := f.FetchSince(ctx, "0xaaa", 0)

	assert.Equal(t, int64(2*3600), boundary)
	assert.Equal(t, 2, src.callCount("0xaaa"))
}

func TestFetcher_FetchAllIsolatesTokens(t *testing.T) {
	ctx := context.Background()
	src := newFakeSource()
	seedHours(src, "0xaaa", 3)
	seedHours(src, "0xbbb", 2)
	src.failures["0xbbb"] = 100
	points := memory.NewPricePointStore()

	f := newTestFetcher(src, memory.NewTokenStore(), points, 2, 2)
	result := f.FetchAll(ctx, map[string]int64{"0xaaa": 0, "0xbbb": 5})

	assert.Equal(t, map[string]int64{"0xaaa": 3 * 3600, "0xbbb": 5}, result)
	assert.Equal(t, 3, points.Len())
}

func TestFetcher_SyncMetadata(t *testing.T) {
	ctx := context.Background()
	src := newFakeSource()
	src.tokens = []subgraph.Token{
		{ID: "0xaaa", Name: "Alpha", Symbol: "AAA", TotalSupply: "1", VolumeUSD: "2", Decimals: "18"},
		{Name: "no id"},
	}
	tokens := memory.NewTokenStore()

	f := newTestFetcher(src, tokens, memory.NewPricePointStore(), 100, 1)
	n, err := f.SyncMetadata(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := tokens.GetByID(ctx, "0xaaa")
	require.NoError(t, err)
	assert.Equal(t, "Alpha", got.Name)
}
