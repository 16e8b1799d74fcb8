// Package redis backs the cache and broker with go-redis so leaderboards
// and celebration channels are shared by every replica.
package redis

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

const defaultBuffer = 256

// Config holds Redis connection settings.
type Config struct {
	Addr     string
	Password string
	DB       int
}

func connect(cfg Config) (*goredis.Client, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", cfg.Addr, err)
	}
	return client, nil
}

// Cache implements cache.Cache.
type Cache struct {
	rdb *goredis.Client
}

// NewCache connects and pings Redis.
func NewCache(cfg Config) (*Cache, error) {
	rdb, err := connect(cfg)
	if err != nil {
		return nil, err
	}
	return &Cache{rdb: rdb}, nil
}

// Close releases the connection pool.
func (c *Cache) Close() error { return c.rdb.Close() }

func (c *Cache) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return c.rdb.Set(ctx, key, value, ttl).Err()
}

func (c *Cache) Exists(ctx context.Context, key string) (bool, error) {
	n, err := c.rdb.Exists(ctx, key).Result()
	return n > 0, err
}

func (c *Cache) Del(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return c.rdb.Del(ctx, keys...).Err()
}

func (c *Cache) HIncrBy(ctx context.Context, key, field string, n int64) (int64, error) {
	return c.rdb.HIncrBy(ctx, key, field, n).Result()
}

func (c *Cache) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	return c.rdb.HGetAll(ctx, key).Result()
}

func (c *Cache) ZAdd(ctx context.Context, key string, score float64, member string) error {
	return c.rdb.ZAdd(ctx, key, goredis.Z{Score: score, Member: member}).Err()
}

func (c *Cache) ZTop(ctx context.Context, key string, n int64) ([]string, []float64, error) {
	if n == 0 {
		return []string{}, []float64{}, nil
	}
	zs, err := c.rdb.ZRevRangeWithScores(ctx, key, 0, n-1).Result()
	if err != nil {
		return nil, nil, err
	}
	members := make([]string, len(zs))
	scores := make([]float64, len(zs))
	for i, z := range zs {
		members[i], _ = z.Member.(string)
		scores[i] = z.Score
	}
	return members, scores, nil
}

func (c *Cache) ZRevRank(ctx context.Context, key, member string) (int64, error) {
	r, err := c.rdb.ZRevRank(ctx, key, member).Result()
	if errors.Is(err, goredis.Nil) {
		return -1, nil
	}
	return r, err
}

func (c *Cache) ZCard(ctx context.Context, key string) (int64, error) {
	return c.rdb.ZCard(ctx, key).Result()
}

// PushCapped runs LPUSH and LTRIM in one transaction.
func (c *Cache) PushCapped(ctx context.Context, key, value string, max int64) error {
	_, err := c.rdb.TxPipelined(ctx, func(p goredis.Pipeliner) error {
		p.LPush(ctx, key, value)
		if max > 0 {
			p.LTrim(ctx, key, 0, max-1)
		}
		return nil
	})
	return err
}

func (c *Cache) LRange(ctx context.Context, key string, start, stop int64) ([]string, error) {
	return c.rdb.LRange(ctx, key, start, stop).Result()
}

// Broker publishes over Redis channels.
type Broker struct {
	rdb *goredis.Client
	buf int
}

// NewBroker connects a dedicated client for pub/sub.
func NewBroker(cfg Config, buf int) (*Broker, error) {
	rdb, err := connect(cfg)
	if err != nil {
		return nil, err
	}
	if buf <= 0 {
		buf = defaultBuffer
	}
	return &Broker{rdb: rdb, buf: buf}, nil
}

func (b *Broker) Publish(ctx context.Context, channel, payload string) error {
	return b.rdb.Publish(ctx, channel, payload).Err()
}

// Subscribe waits for Redis to confirm the subscription, so nothing
// published after it returns is missed.
func (b *Broker) Subscribe(ctx context.Context, channel string) (<-chan string, func(), error) {
	sub := b.rdb.Subscribe(ctx, channel)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, nil, err
	}
	out := make(chan string, b.buf)
	done := make(chan struct{})
	go func() {
		defer close(out)
		for msg := range sub.Channel() {
			select {
			case out <- msg.Payload:
			case <-done:
				return
			}
		}
	}()
	var once sync.Once
	cancel := func() {
		once.Do(func() {
			close(done)
			_ = sub.Close()
		})
	}
	return out, cancel, nil
}
