// Package cache provides a small byte-oriented TTL cache used to keep
// resolved chatbot configs off the store on every widget boot. Two backends
// exist: an in-process map for single-instance deployments and Redis for
// horizontally scaled ones.
package cache

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrMiss is returned by Get when the key is absent or expired.
var ErrMiss = errors.New("cache: miss")

// Store is the contract shared by the cache backends.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, val []byte, ttl time.Duration) error
	Del(ctx context.Context, key string) error
}

// New returns a Redis-backed store when redisURL is set, otherwise an
// in-memory store holding at most maxItems entries.
func New(redisURL string, maxItems int) (Store, error) {
	if strings.TrimSpace(redisURL) == "" {
		return NewMemory(maxItems), nil
	}
	return NewRedisFromURL(redisURL)
}

// Noop never stores anything; used when caching is disabled.
type Noop struct{}

func (Noop) Get(context.Context, string) ([]byte, error)              { return nil, ErrMiss }
func (Noop) Set(context.Context, string, []byte, time.Duration) error { return nil }
func (Noop) Del(context.Context, string) error                        { return nil }

// Redis stores entries in a Redis server.
type Redis struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisFromURL parses a redis:// or rediss:// URL. A bare host:port is
// accepted as well.
func NewRedisFromURL(raw string) (*Redis, error) {
	var opts *redis.Options
	if strings.Contains(raw, "://") {
		o, err := redis.ParseURL(raw)
		if err != nil {
			return nil, err
		}
		opts = o
	} else {
		opts = &redis.Options{Addr: raw}
	}
	return NewRedis(redis.NewClient(opts), "livechat:"), nil
}

// NewRedis wraps an existing client. Keys are stored under prefix.
func NewRedis(client redis.UniversalClient, prefix string) *Redis {
	return &Redis{client: client, prefix: prefix}
}

// Get implements Store.
func (r *Redis) Get(ctx context.Context, key string) ([]byte, error) {
	b, err := r.client.Get(ctx, r.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrMiss
	}
	return b, err
}

// Set implements Store.
func (r *Redis) Set(ctx context.Context, key string, val []byte, ttl time.Duration) error {
	return r.client.Set(ctx, r.prefix+key, val, ttl).Err()
}

// Del implements Store.
func (r *Redis) Del(ctx context.Context, key string) error {
	return r.client.Del(ctx, r.prefix+key).Err()
}

// Ping checks connectivity; used by readiness diagnostics.
func (r *Redis) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Client exposes the connection so other components (the shared rate
// limiter) can reuse the pool.
func (r *Redis) Client() redis.UniversalClient { return r.client }

// Close releases the underlying connection pool.
func (r *Redis) Close() error { return r.client.Close() }
