package sysconfig

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"time"
)

// ErrNotFound is returned by Store implementations when no row exists for a
// key. It is the expected miss signal, not a failure.
var ErrNotFound = errors.New("config key not found")

// Store fetches raw config values. The Postgres implementation lives in
// storage/postgres.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
}

// Reader resolves config keys through cache, store and shipped defaults, in
// that order.
type Reader struct {
	store Store
	cache *TTLCache
	log   *slog.Logger
}

// Option configures a Reader.
type Option func(*Reader)

// WithCache injects a cache instance, usually for tests that need their own
// TTL or clock.
func WithCache(cache *TTLCache) Option {
	return func(r *Reader) {
		if cache != nil {
			r.cache = cache
		}
	}
}

// WithLogger sets the logger used for store-failure diagnostics.
func WithLogger(log *slog.Logger) Option {
	return func(r *Reader) {
		if log != nil {
			r.log = log
		}
	}
}

// NewReader returns a Reader over store with a DefaultCacheTTL cache.
func NewReader(store Store, opts ...Option) *Reader {
	r := &Reader{
		store: store,
		cache: NewTTLCache(DefaultCacheTTL),
		log:   slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// String returns the value for key, falling back to the shipped default on
// any miss or store failure. Store failures are logged, never surfaced.
func (r *Reader) String(ctx context.Context, key string) string {
	if value, ok := r.cache.Get(key); ok {
		return value
	}

	value, err := r.store.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			r.log.WarnContext(ctx, "config read failed, using default",
				slog.String("key", key), slog.Any("error", err))
		}
		return Default(key)
	}

	r.cache.Set(key, value)
	return value
}

// Int returns the value for key parsed as an integer. Unparsable stored
// values fall back to the shipped default.
func (r *Reader) Int(ctx context.Context, key string) int {
	value := r.String(ctx, key)
	n, err := strconv.Atoi(value)
	if err != nil {
		r.log.WarnContext(ctx, "config value not an integer, using default",
			slog.String("key", key), slog.String("value", value))
		n, _ = strconv.Atoi(Default(key))
	}
	return n
}

// Hours returns the value for key interpreted as a whole number of hours.
func (r *Reader) Hours(ctx context.Context, key string) time.Duration {
	return time.Duration(r.Int(ctx, key)) * time.Hour
}

// Seconds returns the value for key interpreted as a whole number of seconds.
func (r *Reader) Seconds(ctx context.Context, key string) time.Duration {
	return time.Duration(r.Int(ctx, key)) * time.Second
}
