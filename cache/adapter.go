// Package cache holds the state shared between replicas: organization
// leaderboards, event counters, recent-celebration lists, the token
// denylist and the celebration channels. Redis backs it in production; the
// local implementation serves single-node deployments and tests.
package cache

import (
	"context"
	"time"

	"github.com/framecraft/engagement/cache/local"
	cacheredis "github.com/framecraft/engagement/cache/redis"
	"github.com/framecraft/engagement/config"
)

// Cache is the set of operations the service runs against shared state.
type Cache interface {
	// Flags with expiry (token denylist).
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Exists(ctx context.Context, key string) (bool, error)
	Del(ctx context.Context, keys ...string) error

	// Counters.
	HIncrBy(ctx context.Context, key, field string, n int64) (int64, error)
	HGetAll(ctx context.Context, key string) (map[string]string, error)

	// Rankings. ZTop returns the n highest members with their scores; ties
	// are ordered by member descending. ZRevRank is 0-based from the top,
	// or -1 when member is absent.
	ZAdd(ctx context.Context, key string, score float64, member string) error
	ZTop(ctx context.Context, key string, n int64) (members []string, scores []float64, err error)
	ZRevRank(ctx context.Context, key, member string) (int64, error)
	ZCard(ctx context.Context, key string) (int64, error)

	// Capped lists, newest first.
	PushCapped(ctx context.Context, key, value string, max int64) error
	LRange(ctx context.Context, key string, start, stop int64) ([]string, error)
}

// Subscription delivers the payloads published on one channel until
// Close. C is closed once the subscription ends.
type Subscription struct {
	C     <-chan string
	close func()
}

// Close ends the subscription. It is safe to call more than once.
func (s *Subscription) Close() { s.close() }

// PubSub publishes and subscribes to named channels.
type PubSub interface {
	Publish(ctx context.Context, channel, payload string) error
	Subscribe(ctx context.Context, channel string) (*Subscription, error)
}

// NewCache returns a Redis-backed Cache when cfg.RedisAddr is set and a
// local one otherwise.
func NewCache(cfg config.CacheConfig) (Cache, error) {
	if cfg.RedisAddr != "" {
		return cacheredis.NewCache(redisConfig(cfg))
	}
	return local.NewStore(cfg.LocalGCInterval), nil
}

// NewPubSub returns a Redis-backed PubSub when cfg.RedisAddr is set and a
// local one otherwise.
func NewPubSub(cfg config.CacheConfig) (PubSub, error) {
	if cfg.RedisAddr != "" {
		b, err := cacheredis.NewBroker(redisConfig(cfg), cfg.LocalPubSubBuf)
		if err != nil {
			return nil, err
		}
		return channels{b}, nil
	}
	return channels{local.NewBroker(cfg.LocalPubSubBuf)}, nil
}

func redisConfig(cfg config.CacheConfig) cacheredis.Config {
	return cacheredis.Config{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB}
}

type broker interface {
	Publish(ctx context.Context, channel, payload string) error
	Subscribe(ctx context.Context, channel string) (<-chan string, func(), error)
}

// channels lifts a broker's raw channel into a Subscription.
type channels struct{ b broker }

func (c channels) Publish(ctx context.Context, channel, payload string) error {
	return c.b.Publish(ctx, channel, payload)
}

func (c channels) Subscribe(ctx context.Context, channel string) (*Subscription, error) {
	ch, cancel, err := c.b.Subscribe(ctx, channel)
	if err != nil {
		return nil, err
	}
	return &Subscription{C: ch, close: cancel}, nil
}
