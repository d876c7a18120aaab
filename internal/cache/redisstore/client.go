// Package redisstore wraps the redis set operations behind the shared dedup
// store.
package redisstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	maintnotifications "github.com/redis/go-redis/v9/maintnotifications"

	"github.com/erghjunk/portfolio-dataQueryWithDownstreamGisCalculations/internal/core/observability"
)

// saddChunk bounds the members sent in one SADD.
const saddChunk = 1000

type options struct {
	redis   *redis.Options
	metrics *observability.RunMetrics
}

type Option func(*options)

func WithPoolSize(n int) Option {
	return func(o *options) { o.redis.PoolSize = n }
}

// WithTimeout sets the dial, read and write timeouts.
func WithTimeout(d time.Duration) Option {
	return func(o *options) {
		if d <= 0 {
			return
		}
		o.redis.DialTimeout = d
		o.redis.ReadTimeout = d
		o.redis.WriteTimeout = d
	}
}

func WithMetrics(m *observability.RunMetrics) Option {
	return func(o *options) { o.metrics = m }
}

type Client struct {
	rdb     *redis.Client
	metrics *observability.RunMetrics
}

func New(ctx context.Context, addr string, opts ...Option) (*Client, error) {
	if addr == "" {
		return nil, errors.New("redis address is required")
	}

	o := &options{redis: &redis.Options{
		Addr:         addr,
		PoolSize:     16,
		MinIdleConns: 2,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  1 * time.Second,
		WriteTimeout: 1 * time.Second,
		MaintNotificationsConfig: &maintnotifications.Config{
			Mode: maintnotifications.ModeDisabled,
		},
	}}
	for _, f := range opts {
		f(o)
	}

	rdb := redis.NewClient(o.redis)

	start := time.Now()
	err := rdb.Ping(ctx).Err()
	o.metrics.ObserveStoreOp("ping", err, time.Since(start).Seconds())
	if err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping %s: %w", addr, err)
	}
	return &Client{rdb: rdb, metrics: o.metrics}, nil
}

// SAdd adds members to the set at key and returns how many were new.
// Large member lists are sent in one pipeline of chunked SADDs.
func (c *Client) SAdd(ctx context.Context, key string, members ...string) (int64, error) {
	start := time.Now()
	if len(members) == 0 {
		c.metrics.ObserveStoreOp("sadd", nil, time.Since(start).Seconds())
		return 0, nil
	}

	var cmds []*redis.IntCmd
	_, err := c.rdb.Pipelined(ctx, func(p redis.Pipeliner) error {
		for lo := 0; lo < len(members); lo += saddChunk {
			hi := min(lo+saddChunk, len(members))
			args := make([]any, 0, hi-lo)
			for _, m := range members[lo:hi] {
				args = append(args, m)
			}
			cmds = append(cmds, p.SAdd(ctx, key, args...))
		}
		return nil
	})
	c.metrics.ObserveStoreOp("sadd", err, time.Since(start).Seconds())
	if err != nil {
		return 0, fmt.Errorf("redis SADD %q (%d members): %w", key, len(members), err)
	}

	var added int64
	for _, cmd := range cmds {
		added += cmd.Val()
	}
	return added, nil
}

func (c *Client) SMembers(ctx context.Context, key string) ([]string, error) {
	start := time.Now()
	vals, err := c.rdb.SMembers(ctx, key).Result()
	c.metrics.ObserveStoreOp("smembers", err, time.Since(start).Seconds())
	if err != nil {
		return nil, fmt.Errorf("redis SMEMBERS %q: %w", key, err)
	}
	return vals, nil
}

func (c *Client) SCard(ctx context.Context, key string) (int64, error) {
	start := time.Now()
	n, err := c.rdb.SCard(ctx, key).Result()
	c.metrics.ObserveStoreOp("scard", err, time.Since(start).Seconds())
	if err != nil {
		return 0, fmt.Errorf("redis SCARD %q: %w", key, err)
	}
	return n, nil
}

func (c *Client) Del(ctx context.Context, keys ...string) error {
	start := time.Now()
	err := c.rdb.Del(ctx, keys...).Err()
	c.metrics.ObserveStoreOp("del", err, time.Since(start).Seconds())
	if err != nil {
		return fmt.Errorf("redis DEL %d keys: %w", len(keys), err)
	}
	return nil
}

func (c *Client) Close() error {
	if err := c.rdb.Close(); err != nil {
		return fmt.Errorf("redis close: %w", err)
	}
	return nil
}
