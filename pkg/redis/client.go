package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Nil is returned by reads of missing keys
var Nil = redis.Nil

// Client wraps go-redis with environment-scoped keys and per-command logging
type Client struct {
	rdb        *redis.Client
	KeyBuilder *KeyBuilder
	log        *zap.Logger
}

// NewClient creates a new Redis client and verifies the connection
func NewClient(redisURL string, environment string, log *zap.Logger) (*Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	opts.PoolSize = 50
	opts.MinIdleConns = 5
	opts.MaxRetries = 0 // retries belong to the caller
	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second

	rdb := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	if log == nil {
		log = zap.NewNop()
	}

	return &Client{rdb: rdb, KeyBuilder: NewKeyBuilder(environment), log: log}, nil
}

// Close closes the Redis connection
func (c *Client) Close() error {
	if c.rdb != nil {
		return c.rdb.Close()
	}
	return nil
}

// observe logs a finished command: failures at info, successes at debug
func (c *Client) observe(op, key string, start time.Time, err error, fields ...zap.Field) {
	fields = append(fields,
		zap.String("key_prefix", prefixForLog(key)),
		zap.Duration("duration", time.Since(start)))
	if err != nil && !errors.Is(err, redis.Nil) {
		c.log.Info(op, append(fields, zap.Error(err))...)
		return
	}
	c.log.Debug(op, fields...)
}

// Delete removes keys from Redis
func (c *Client) Delete(ctx context.Context, keys ...string) error {
	start := time.Now()
	err := c.rdb.Del(ctx, keys...).Err()
	c.observe("redis_del", "", start, err, zap.Int("keys", len(keys)))
	return err
}

// HExists reports whether field is present in the hash at key
func (c *Client) HExists(ctx context.Context, key, field string) (bool, error) {
	start := time.Now()
	ok, err := c.rdb.HExists(ctx, key, field).Result()
	c.observe("redis_hexists", key, start, err, zap.Bool("result", ok))
	return ok, err
}

// HGetAll gets all fields from a hash
func (c *Client) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	start := time.Now()
	m, err := c.rdb.HGetAll(ctx, key).Result()
	c.observe("redis_hgetall", key, start, err, zap.Int("fields", len(m)))
	return m, err
}

// ZAdd sets member's score in the sorted set at key
func (c *Client) ZAdd(ctx context.Context, key string, score float64, member string) error {
	start := time.Now()
	err := c.rdb.ZAdd(ctx, key, redis.Z{Score: score, Member: member}).Err()
	c.observe("redis_zadd", key, start, err)
	return err
}

// ZRemRangeByScore removes members scored within [min, max]
func (c *Client) ZRemRangeByScore(ctx context.Context, key, min, max string) (int64, error) {
	start := time.Now()
	n, err := c.rdb.ZRemRangeByScore(ctx, key, min, max).Result()
	c.observe("redis_zremrangebyscore", key, start, err, zap.Int64("removed", n))
	return n, err
}

// ZCount counts members scored within [min, max]
func (c *Client) ZCount(ctx context.Context, key, min, max string) (int64, error) {
	start := time.Now()
	n, err := c.rdb.ZCount(ctx, key, min, max).Result()
	c.observe("redis_zcount", key, start, err, zap.Int64("result", n))
	return n, err
}

// RunScript evaluates a Lua script atomically, loading it on first use
func (c *Client) RunScript(ctx context.Context, script *redis.Script, keys []string, args ...interface{}) (interface{}, error) {
	start := time.Now()
	res, err := script.Run(ctx, c.rdb, keys, args...).Result()
	first := ""
	if len(keys) > 0 {
		first = keys[0]
	}
	c.observe("redis_eval", first, start, err, zap.Int("keys", len(keys)))
	return res, err
}

// Health checks the Redis connection
func (c *Client) Health(ctx context.Context) error {
	start := time.Now()
	err := c.rdb.Ping(ctx).Err()
	c.observe("redis_ping", "", start, err)
	return err
}

// Pipeline creates a new pipeline for batch operations
func (c *Client) Pipeline() redis.Pipeliner {
	return c.rdb.Pipeline()
}

// TxPipeline creates a MULTI/EXEC pipeline whose replies form one snapshot
func (c *Client) TxPipeline() redis.Pipeliner {
	return c.rdb.TxPipeline()
}

// prefixForLog returns a safe prefix of a key to avoid logging identity material
func prefixForLog(key string) string {
	if len(key) <= 24 {
		return key
	}
	return key[:24] + "…"
}
