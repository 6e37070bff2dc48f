package cache

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/splax/athlink/internal/metrics"
)

// Key kinds.
const (
	KindUser   = "user"
	KindHealth = "health"
)

// DefaultTTL applies when a caller passes a non-positive ttl.
const DefaultTTL = time.Hour

// Policy selects what WriteInvalidate does to an existing entry.
type Policy int

const (
	// Refresh replaces the entry with the new value.
	Refresh Policy = iota
	// Evict removes the entry so the next read reloads it.
	Evict
)

// Key formats a cache key as "<kind>:<id>".
func Key(kind, id string) string {
	return kind + ":" + id
}

// Loader fetches the authoritative value on a miss.
type Loader[T any] func(ctx context.Context) (T, error)

// Option configures a Store.
type Option func(*options)

type options struct {
	singleFlight bool
	policy       Policy
	ttl          time.Duration
	metrics      *metrics.Metrics
}

// WithSingleFlight collapses concurrent loads for the same key.
func WithSingleFlight(enabled bool) Option {
	return func(o *options) { o.singleFlight = enabled }
}

// WithPolicy sets the WriteInvalidate policy.
func WithPolicy(p Policy) Option {
	return func(o *options) { o.policy = p }
}

// WithTTL sets the ttl used when callers pass zero.
func WithTTL(ttl time.Duration) Option {
	return func(o *options) {
		if ttl > 0 {
			o.ttl = ttl
		}
	}
}

// WithMetrics records hit/miss counts.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// Store is a typed cache-aside view over a Backend. Cache failures never
// fail a read: a backend read error is a miss and a write error is logged.
type Store[T any] struct {
	backend Backend
	log     *slog.Logger
	opts    options
	group   singleflight.Group
}

// NewStore builds a Store over backend.
func NewStore[T any](backend Backend, logger *slog.Logger, opts ...Option) *Store[T] {
	if logger == nil {
		logger = slog.Default()
	}
	o := options{policy: Refresh, ttl: DefaultTTL}
	for _, opt := range opts {
		opt(&o)
	}
	return &Store[T]{backend: backend, log: logger.With("component", "cache"), opts: o}
}

// ReadThrough returns the live entry for key or loads, stores and returns it.
// Loader errors propagate and leave the cache untouched.
func (s *Store[T]) ReadThrough(ctx context.Context, key string, load Loader[T], ttl time.Duration) (T, error) {
	if value, ok := s.lookup(ctx, key); ok {
		return value, nil
	}
	if !s.opts.singleFlight {
		return s.fill(ctx, key, load, ttl)
	}
	v, err, _ := s.group.Do(key, func() (any, error) {
		if value, ok := s.lookup(ctx, key); ok {
			return value, nil
		}
		return s.fill(ctx, key, load, ttl)
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return v.(T), nil
}

// WriteInvalidate brings key in line with a value that was just made
// durable, either replacing or evicting the entry per the store policy.
func (s *Store[T]) WriteInvalidate(ctx context.Context, key string, value T, ttl time.Duration) {
	if s.opts.policy == Evict {
		s.Delete(ctx, key)
		return
	}
	s.put(ctx, key, value, ttl)
}

// Put stores value unconditionally.
func (s *Store[T]) Put(ctx context.Context, key string, value T, ttl time.Duration) {
	s.put(ctx, key, value, ttl)
}

// Delete removes key.
func (s *Store[T]) Delete(ctx context.Context, key string) {
	if err := s.backend.Del(ctx, key); err != nil {
		s.log.Warn("cache delete failed", "key", key, "error", err)
	}
}

func (s *Store[T]) lookup(ctx context.Context, key string) (T, bool) {
	var zero T
	raw, err := s.backend.Get(ctx, key)
	if err != nil {
		if errors.Is(err, ErrMiss) {
			s.opts.metrics.CacheLookup(kindOf(key), metrics.CacheMiss)
		} else {
			s.opts.metrics.CacheLookup(kindOf(key), metrics.CacheError)
			s.log.Warn("cache read failed", "key", key, "error", err)
		}
		return zero, false
	}
	var value T
	if err := json.Unmarshal(raw, &value); err != nil {
		s.opts.metrics.CacheLookup(kindOf(key), metrics.CacheError)
		s.log.Warn("cache entry undecodable", "key", key, "error", err)
		return zero, false
	}
	s.opts.metrics.CacheLookup(kindOf(key), metrics.CacheHit)
	return value, true
}

func (s *Store[T]) fill(ctx context.Context, key string, load Loader[T], ttl time.Duration) (T, error) {
	value, err := load(ctx)
	if err != nil {
		var zero T
		return zero, err
	}
	s.put(ctx, key, value, ttl)
	return value, nil
}

func (s *Store[T]) put(ctx context.Context, key string, value T, ttl time.Duration) {
	if ttl <= 0 {
		ttl = s.opts.ttl
	}
	raw, err := json.Marshal(value)
	if err != nil {
		s.log.Warn("cache encode failed", "key", key, "error", err)
		return
	}
	if err := s.backend.Set(ctx, key, raw, ttl); err != nil {
		s.log.Warn("cache write failed", "key", key, "error", err)
	}
}

func kindOf(key string) string {
	if idx := strings.IndexByte(key, ':'); idx > 0 {
		return key[:idx]
	}
	return "unknown"
}
