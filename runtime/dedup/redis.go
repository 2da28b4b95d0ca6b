package dedup

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Opizontas-Studio/dc-license-bot/runtime/logger"
)

// RedisSet is a Set shared between bot processes. Each admitted key is a
// Redis string written with SET NX and a TTL equal to the window.
type RedisSet struct {
	client redis.UniversalClient
	window time.Duration
	prefix string
}

// RedisOption configures a RedisSet.
type RedisOption func(*RedisSet)

// WithTTL sets the dedup window.
func WithTTL(ttl time.Duration) RedisOption {
	return func(s *RedisSet) {
		if ttl > 0 {
			s.window = ttl
		}
	}
}

// WithPrefix sets the key prefix. Default is "licensebot".
func WithPrefix(prefix string) RedisOption {
	return func(s *RedisSet) {
		s.prefix = prefix
	}
}

// NewRedisSet creates a Redis-backed set.
//
// Example:
//
//	set := NewRedisSet(
//	    redis.NewClient(&redis.Options{Addr: "localhost:6379"}),
//	    WithTTL(5 * time.Minute),
//	)
func NewRedisSet(client redis.UniversalClient, opts ...RedisOption) *RedisSet {
	s := &RedisSet{
		client: client,
		window: DefaultWindow,
		prefix: "licensebot",
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Admit implements Set. Redis errors are logged and the key is admitted.
func (s *RedisSet) Admit(ctx context.Context, key string) bool {
	ok, err := s.client.SetNX(ctx, s.key(key), 1, s.window).Result()
	if err != nil {
		logger.WarnContext(ctx, "dedup check failed, admitting trigger", "key", key, "error", err)
		return true
	}
	return ok
}

func (s *RedisSet) key(k string) string {
	return s.prefix + ":trigger:" + k
}

var _ Set = (*RedisSet)(nil)
