package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"

	"minerva/pkg/platform/sentinel"
)

var redisOpDurationMs = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name:    "minerva_session_store_redis_duration_ms",
	Help:    "Latency of Redis session store operations in milliseconds",
	Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 25, 50},
}, []string{"op"})

// DefaultRedisPrefix keeps the session namespace apart from other Redis tenants.
const DefaultRedisPrefix = "minerva:session:"

// RedisStore is a Redis-backed Store for hosted deployments where the session
// must be shared between processes (for example a web front end and a worker).
type RedisStore struct {
	client redis.UniversalClient
	prefix string
}

// RedisOption configures a RedisStore.
type RedisOption func(*RedisStore)

// WithRedisPrefix overrides DefaultRedisPrefix.
func WithRedisPrefix(prefix string) RedisOption {
	return func(s *RedisStore) {
		if prefix != "" {
			s.prefix = prefix
		}
	}
}

// NewRedis constructs a Redis-backed store. The client lifecycle is managed by
// the caller.
func NewRedis(client redis.UniversalClient, opts ...RedisOption) *RedisStore {
	s := &RedisStore{client: client, prefix: DefaultRedisPrefix}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

func (s *RedisStore) key(k Key) string {
	return s.prefix + string(k)
}

func observe(op string, start time.Time) {
	redisOpDurationMs.WithLabelValues(op).Observe(float64(time.Since(start).Microseconds()) / 1000.0)
}

func (s *RedisStore) Get(ctx context.Context, key Key) (string, error) {
	defer observe("get", time.Now())
	v, err := s.client.Get(ctx, s.key(key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", fmt.Errorf("key %s: %w", key, sentinel.ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("redis get %s: %w: %w", key, sentinel.ErrUnavailable, err)
	}
	return v, nil
}

func (s *RedisStore) Set(ctx context.Context, key Key, value string) error {
	defer observe("set", time.Now())
	if err := s.client.Set(ctx, s.key(key), value, 0).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w: %w", key, sentinel.ErrUnavailable, err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, key Key) error {
	defer observe("delete", time.Now())
	if err := s.client.Del(ctx, s.key(key)).Err(); err != nil {
		return fmt.Errorf("redis delete %s: %w: %w", key, sentinel.ErrUnavailable, err)
	}
	return nil
}

// Keys scans the prefix with SCAN so large shared databases are not blocked.
func (s *RedisStore) Keys(ctx context.Context) ([]Key, error) {
	defer observe("keys", time.Now())
	var keys []Key
	iter := s.client.Scan(ctx, 0, s.prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, Key(strings.TrimPrefix(iter.Val(), s.prefix)))
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("redis scan: %w: %w", sentinel.ErrUnavailable, err)
	}
	return keys, nil
}
