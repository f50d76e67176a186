package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"token-chart-lab/internal/domain"
	"token-chart-lab/internal/storage"
)

const keyPrefix = "token:"

// DefaultTTL bounds how stale cached metadata can get between upserts.
const DefaultTTL = 10 * time.Minute

// CachedTokenStore is a read-through Redis cache in front of a TokenStore.
// Redis failures are logged and fall through to the backing store.
type CachedTokenStore struct {
	next   storage.TokenStore
	client *redis.Client
	ttl    time.Duration
	log    zerolog.Logger
}

// Option configures CachedTokenStore.
type Option func(*CachedTokenStore)

// WithTTL sets the cache entry lifetime.
func WithTTL(ttl time.Duration) Option {
	return func(s *CachedTokenStore) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// WithLogger sets the logger.
func WithLogger(log zerolog.Logger) Option {
	return func(s *CachedTokenStore) {
		s.log = log.With().Str("component", "token_cache").Logger()
	}
}

// NewCachedTokenStore wraps next with a cache backed by client.
func NewCachedTokenStore(next storage.TokenStore, client *redis.Client, opts ...Option) *CachedTokenStore {
	s := &CachedTokenStore{
		next:   next,
		client: client,
		ttl:    DefaultTTL,
		log:    zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Compile-time interface check.
var _ storage.TokenStore = (*CachedTokenStore)(nil)

// NewClient connects to Redis at addr and verifies the connection.
func NewClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, err
	}
	return client, nil
}

// UpsertBatch writes through to the backing store and invalidates cached entries.
func (s *CachedTokenStore) UpsertBatch(ctx context.Context, tokens []*domain.Token) (int64, error) {
	n, err := s.next.UpsertBatch(ctx, tokens)
	if err != nil {
		return n, err
	}

	keys := make([]string, 0, len(tokens))
	for _, t := range tokens {
		keys = append(keys, keyPrefix+t.ID)
	}
	if len(keys) > 0 {
		if err := s.client.Del(ctx, keys...).Err(); err != nil {
			s.log.Warn().Err(err).Int("keys", len(keys)).Msg("cache invalidation failed")
		}
	}
	return n, nil
}

// GetByID serves from cache when present, otherwise loads and populates it.
func (s *CachedTokenStore) GetByID(ctx context.Context, id string) (*domain.Token, error) {
	key := keyPrefix + id

	data, err := s.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var t domain.Token
		if jsonErr := json.Unmarshal(data, &t); jsonErr == nil {
			return &t, nil
		}
		s.log.Warn().Str("key", key).Msg("discarding undecodable cache entry")
	case errors.Is(err, redis.Nil):
	default:
		s.log.Warn().Err(err).Str("key", key).Msg("cache read failed")
	}

	t, err := s.next.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(t); err == nil {
		if err := s.client.Set(ctx, key, data, s.ttl).Err(); err != nil {
			s.log.Warn().Err(err).Str("key", key).Msg("cache write failed")
		}
	}
	return t, nil
}
