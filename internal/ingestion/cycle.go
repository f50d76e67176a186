package ingestion

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"token-chart-lab/internal/domain"
	"token-chart-lab/internal/observability"
	"token-chart-lab/internal/storage"
)

// ErrCycleInProgress is returned when a cycle is requested while one runs.
var ErrCycleInProgress = errors.New("ingestion cycle already in progress")

// CycleResult summarizes one ingestion cycle.
type CycleResult struct {
	ID             string
	StartedAt      time.Time
	Duration       time.Duration
	Bootstrap      bool
	MetadataSynced int
	Cursors        map[string]int64 // boundaries after the cycle
	Advanced       int              // tokens whose boundary moved
	Pruned         int64
}

// Status reports the runner state for health checks.
type Status struct {
	Running    bool
	Cycles     int
	LastRun    time.Time
	LastResult *CycleResult
}

// Runner drives periodic ingestion: metadata sync, cursor resolution,
// paginated fetch, and retention pruning.
type Runner struct {
	fetcher   *Fetcher
	pruner    *Pruner
	points    storage.PricePointStore
	tracked   []string
	lookback  time.Duration
	interval  time.Duration
	retention bool
	now       func() time.Time
	log       zerolog.Logger

	mu         sync.Mutex
	running    bool
	cycles     int
	lastRun    time.Time
	lastResult *CycleResult
}

// RunnerOptions contains configuration for creating a Runner.
type RunnerOptions struct {
	Fetcher          *Fetcher
	Pruner           *Pruner
	Points           storage.PricePointStore
	Tokens           []domain.TrackedToken
	Lookback         time.Duration // Default: 7 days
	Interval         time.Duration // Default: 5 minutes
	RetentionEnabled bool
	Now              func() time.Time // Default: time.Now
	Logger           zerolog.Logger
}

// NewRunner creates a new ingestion runner.
func NewRunner(opts RunnerOptions) *Runner {
	lookback := opts.Lookback
	if lookback <= 0 {
		lookback = 7 * 24 * time.Hour
	}
	interval := opts.Interval
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	return &Runner{
		fetcher:   opts.Fetcher,
		pruner:    opts.Pruner,
		points:    opts.Points,
		tracked:   domain.TokenIDs(opts.Tokens),
		lookback:  lookback,
		interval:  interval,
		retention: opts.RetentionEnabled,
		now:       now,
		log:       opts.Logger.With().Str("component", "runner").Logger(),
	}
}

// RunCycle performs one ingestion cycle. The bootstrap cycle skips pruning.
// Only a cursor resolution failure is returned; every other failure is
// logged and the cycle continues.
func (r *Runner) RunCycle(ctx context.Context, bootstrap bool) (*CycleResult, error) {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return nil, ErrCycleInProgress
	}
	r.running = true
	r.mu.Unlock()

	begin := time.Now()
	res := &CycleResult{
		ID:        uuid.NewString(),
		StartedAt: r.now(),
		Bootstrap: bootstrap,
	}
	log := r.log.With().Str("cycle_id", res.ID).Logger()
	status := "success"

	defer func() {
		res.Duration = time.Since(begin)
		observability.RecordCycle(status, res.Duration.Seconds())

		r.mu.Lock()
		r.running = false
		r.cycles++
		r.lastRun = res.StartedAt
		r.lastResult = res
		r.mu.Unlock()
	}()

	log.Info().Bool("bootstrap", bootstrap).Int("tokens", len(r.tracked)).Msg("cycle started")

	synced, err := r.fetcher.SyncMetadata(ctx)
	if err != nil {
		log.Error().Err(err).Msg("metadata sync failed")
	}
	res.MetadataSynced = synced

	cursors, err := ResolveCursors(ctx, r.points, r.tracked, r.lookback, res.StartedAt)
	if err != nil {
		status = "failed"
		log.Error().Err(err).Msg("cycle aborted")
		return res, err
	}

	res.Cursors = r.fetcher.FetchAll(ctx, cursors)
	for id, boundary := range res.Cursors {
		if boundary > cursors[id] {
			res.Advanced++
		}
	}

	if r.retention && !bootstrap {
		res.Pruned = r.pruner.PruneOlderThan(ctx, res.StartedAt.Add(-r.lookback))
	}

	if ctx.Err() != nil {
		status = "cancelled"
	}
	log.Info().
		Int("metadata", res.MetadataSynced).
		Int("advanced", res.Advanced).
		Int64("pruned", res.Pruned).
		Dur("duration", time.Since(begin)).
		Msg("cycle finished")

	return res, nil
}

// Run executes a bootstrap cycle immediately and then one cycle per interval
// until ctx is cancelled.
func (r *Runner) Run(ctx context.Context) error {
	r.log.Info().Dur("interval", r.interval).Msg("starting ingestion runner")

	r.runLogged(ctx, true)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.log.Info().Msg("ingestion runner stopped")
			return nil
		case <-ticker.C:
			r.runLogged(ctx, false)
		}
	}
}

func (r *Runner) runLogged(ctx context.Context, bootstrap bool) {
	if _, err := r.RunCycle(ctx, bootstrap); err != nil {
		if errors.Is(err, ErrCycleInProgress) {
			r.log.Warn().Msg("cycle already running, skipping")
			return
		}
		r.log.Error().Err(err).Msg("cycle failed")
	}
}

// Status returns a snapshot of the runner state.
func (r *Runner) Status() Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return Status{
		Running:    r.running,
		Cycles:     r.cycles,
		LastRun:    r.lastRun,
		LastResult: r.lastResult,
	}
}
