package ingestion

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"token-chart-lab/internal/domain"
	"token-chart-lab/internal/retry"
	"token-chart-lab/internal/storage"
	"token-chart-lab/internal/storage/memory"
	"token-chart-lab/internal/subgraph"
)

var testTokens = []domain.TrackedToken{
	{ID: "0xaaa", Symbol: "AAA"},
	{ID: "0xbbb", Symbol: "BBB"},
}

func fastPolicy() retry.Policy {
	return retry.Policy{
		MaxAttempts: 3,
		BaseDelay:   time.Millisecond,
		MaxDelay:    2 * time.Millisecond,
		MaxElapsed:  time.Second,
	}
}

func strp(s string) *string { return &s }

func rawEntry(tokenID string, periodStart int64, price string) subgraph.TokenHourData {
	ts := periodStart
	return subgraph.TokenHourData{
		ID:              fmt.Sprintf("%s-%d", tokenID, periodStart/3600),
		PeriodStartUnix: &ts,
		Open:            strp(price),
		High:            strp(price),
		Low:             strp(price),
		Close:           strp(price),
		PriceUSD:        strp(price),
		Token:           &subgraph.TokenRef{ID: tokenID},
	}
}

// fakeSource serves stored entries honoring after/first like the subgraph.
type fakeSource struct {
	mu       sync.Mutex
	entries  map[string][]subgraph.TokenHourData
	tokens   []subgraph.Token
	failures map[string]int   // remaining transient failures per token
	errFor   map[string]error // persistent error per token
	failFrom map[string]int   // calls allowed to succeed before every request fails
	calls    map[string]int
	block    chan struct{} // when set, requests wait on it
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		entries:  make(map[string][]subgraph.TokenHourData),
		failures: make(map[string]int),
		errFor:   make(map[string]error),
		failFrom: make(map[string]int),
		calls:    make(map[string]int),
	}
}

func (s *fakeSource) add(tokenID string, entries ...subgraph.TokenHourData) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[tokenID] = append(s.entries[tokenID], entries...)
	sort.Slice(s.entries[tokenID], func(i, j int) bool {
		return *s.entries[tokenID][i].PeriodStartUnix < *s.entries[tokenID][j].PeriodStartUnix
	})
}

func (s *fakeSource) FetchTokens(ctx context.Context, ids []string) ([]subgraph.Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls["tokens"]++
	return s.tokens, nil
}

func (s *fakeSource) FetchTokenHourData(ctx context.Context, tokenID string, after int64, first int) ([]subgraph.TokenHourData, error) {
	if s.block != nil {
		select {
		case <-s.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls[tokenID]++

	if err := s.errFor[tokenID]; err != nil {
		return nil, err
	}
	if n, ok := s.failFrom[tokenID]; ok && s.calls[tokenID] > n {
		return nil, fmt.Errorf("%w: connection reset", subgraph.ErrTransient)
	}
	if s.failures[tokenID] > 0 {
		s.failures[tokenID]--
		return nil, fmt.Errorf("%w: status 503", subgraph.ErrTransient)
	}

	var page []subgraph.TokenHourData
	for _, e := range s.entries[tokenID] {
		if *e.PeriodStartUnix > after {
			page = append(page, e)
			if len(page) == first {
				break
			}
		}
	}
	return page, nil
}

func (s *fakeSource) callCount(key string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[key]
}

// failingPoints fails every write.
type failingPoints struct {
	*memory.PricePointStore
}

func (failingPoints) InsertBatch(context.Context, []*domain.PricePoint) (int64, error) {
	return 0, errors.New("disk full")
}

// failingReads fails cursor resolution.
type failingReads struct {
	*memory.PricePointStore
}

func (failingReads) MaxPeriodStartByToken(context.Context) (map[string]int64, error) {
	return nil, errors.New("connection refused")
}

var _ storage.PricePointStore = failingPoints{}
var _ storage.PricePointStore = failingReads{}

func newTestFetcher(src Source, tokens storage.TokenStore, points storage.PricePointStore, pageSize, concurrency int) *Fetcher {
	return NewFetcher(FetcherOptions{
		Source:      src,
		Sink:        NewSink(tokens, points, zerolog.Nop()),
		Tokens:      testTokens,
		Policy:      fastPolicy(),
		PageSize:    pageSize,
		Concurrency: concurrency,
		Logger:      zerolog.Nop(),
	})
}
