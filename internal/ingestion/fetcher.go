package ingestion

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"token-chart-lab/internal/domain"
	"token-chart-lab/internal/observability"
	"token-chart-lab/internal/retry"
	"token-chart-lab/internal/subgraph"
)

// DefaultPageSize is the provider page size.
const DefaultPageSize = 100

// Source is the provider surface the fetcher needs.
type Source interface {
	FetchTokens(ctx context.Context, ids []string) ([]subgraph.Token, error)
	FetchTokenHourData(ctx context.Context, tokenID string, after int64, first int) ([]subgraph.TokenHourData, error)
}

// Fetcher pages through provider data for each tracked token and hands
// every page to the Sink before moving its boundary.
type Fetcher struct {
	source      Source
	sink        *Sink
	policy      retry.Policy
	pageSize    int
	concurrency int
	tracked     []domain.TrackedToken
	symbols     map[string]string
	log         zerolog.Logger
}

// FetcherOptions contains configuration for creating a Fetcher.
type FetcherOptions struct {
	Source      Source
	Sink        *Sink
	Tokens      []domain.TrackedToken
	Policy      retry.Policy
	PageSize    int // Default: 100
	Concurrency int // Default: 1, tokens fetched one after another
	Logger      zerolog.Logger
}

// NewFetcher creates a Fetcher.
func NewFetcher(opts FetcherOptions) *Fetcher {
	pageSize := opts.PageSize
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}
	policy := opts.Policy
	if policy.MaxAttempts == 0 {
		policy = retry.DefaultPolicy()
	}

	return &Fetcher{
		source:      opts.Source,
		sink:        opts.Sink,
		policy:      policy,
		pageSize:    pageSize,
		concurrency: concurrency,
		tracked:     opts.Tokens,
		symbols:     domain.SymbolsByID(opts.Tokens),
		log:         opts.Logger.With().Str("component", "fetcher").Logger(),
	}
}

// FetchSince pulls every page after cursor for tokenID and returns the last
// committed boundary. Failures end the loop early; they are logged and
// counted, never returned, and leave the boundary at the last stored page.
func (f *Fetcher) FetchSince(ctx context.Context, tokenID string, cursor int64) int64 {
	log := f.log.With().Str("token", tokenID).Str("symbol", f.symbols[tokenID]).Logger()
	boundary := cursor
	pages := 0

	for {
		if ctx.Err() != nil {
			return boundary
		}

		page, err := f.fetchPage(ctx, tokenID, boundary)
		if err != nil {
			if ctx.Err() != nil {
				return boundary
			}
			kind := observability.FetchErrorPermanent
			if errors.Is(err, subgraph.ErrTransient) {
				kind = observability.FetchErrorTransient
			}
			observability.RecordFetchError(kind)
			log.Error().Err(err).Int64("boundary", boundary).Str("kind", kind).Msg("fetch abandoned for this cycle")
			return boundary
		}
		if len(page) == 0 {
			break
		}
		observability.RecordPageFetched()
		pages++

		points, pageMax, err := NormalizePage(page, f.symbols)
		if err != nil {
			observability.RecordFetchError(observability.FetchErrorMalformed)
			log.Error().Err(err).Int64("boundary", boundary).Msg("malformed page")
			return boundary
		}

		if _, err := f.sink.InsertPoints(ctx, points); err != nil {
			observability.RecordFetchError(observability.FetchErrorSink)
			return boundary
		}

		if pageMax <= boundary {
			// Requesting the same boundary again would return this page forever.
			log.Warn().Int64("boundary", boundary).Int64("page_max", pageMax).Msg("page did not advance boundary")
			break
		}
		boundary = pageMax
		observability.UpdateTokenCursor(tokenID, boundary)
	}

	log.Debug().Int("pages", pages).Int64("boundary", boundary).Msg("token up to date")
	return boundary
}

func (f *Fetcher) fetchPage(ctx context.Context, tokenID string, after int64) ([]subgraph.TokenHourData, error) {
	var page []subgraph.TokenHourData
	err := f.policy.Do(ctx, func() error {
		p, err := f.source.FetchTokenHourData(ctx, tokenID, after, f.pageSize)
		if err != nil {
			if errors.Is(err, subgraph.ErrTransient) {
				return err
			}
			return retry.Permanent(err)
		}
		page = p
		return nil
	}, f.notify("tokenHourDatas", tokenID))
	return page, err
}

func (f *Fetcher) notify(op, tokenID string) retry.NotifyFunc {
	return func(err error, wait time.Duration) {
		observability.RecordRetry(op)
		f.log.Warn().Err(err).Str("operation", op).Str("token", tokenID).Dur("wait", wait).Msg("retrying provider request")
	}
}

// FetchAll runs FetchSince for every token in cursors, at most
// f.concurrency at a time, and returns the resulting boundaries.
func (f *Fetcher) FetchAll(ctx context.Context, cursors map[string]int64) map[string]int64 {
	ids := make([]string, 0, len(cursors))
	for id := range cursors {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var (
		mu     sync.Mutex
		result = make(map[string]int64, len(ids))
	)

	g := new(errgroup.Group)
	g.SetLimit(f.concurrency)
	for _, id := range ids {
		id := id
		cursor := cursors[id]
		g.Go(func() error {
			boundary := f.FetchSince(ctx, id, cursor)
			mu.Lock()
			result[id] = boundary
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait() // FetchSince never fails

	return result
}

// SyncMetadata refreshes metadata for all tracked tokens in one request.
func (f *Fetcher) SyncMetadata(ctx context.Context) (int, error) {
	ids := domain.TokenIDs(f.tracked)
	if len(ids) == 0 {
		return 0, nil
	}

	var raw []subgraph.Token
	err := f.policy.Do(ctx, func() error {
		r, err := f.source.FetchTokens(ctx, ids)
		if err != nil {
			if errors.Is(err, subgraph.ErrTransient) {
				return err
			}
			return retry.Permanent(err)
		}
		raw = r
		return nil
	}, f.notify("tokens", ""))
	if err != nil {
		return 0, err
	}

	tokens := make([]*domain.Token, 0, len(raw))
	for _, r := range raw {
		if r.ID == "" {
			f.log.Warn().Msg("skipping token metadata without id")
			continue
		}
		tokens = append(tokens, NormalizeToken(r))
	}
	return f.sink.UpsertMetadata(ctx, tokens)
}
