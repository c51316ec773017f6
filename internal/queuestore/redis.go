package queuestore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/bobmcallan/docworker/internal/common"
	"github.com/bobmcallan/docworker/internal/retry"
)

// RedisStore implements Store over github.com/redis/go-redis/v9.
type RedisStore struct {
	client *redis.Client
	opts   *redis.Options
	logger *common.Logger
}

// RedisOption configures a RedisStore.
type RedisOption func(*RedisStore)

// WithLogger sets the logger used for connection diagnostics.
func WithLogger(logger *common.Logger) RedisOption {
	return func(s *RedisStore) {
		s.logger = logger
	}
}

// NewRedisStore dials a Redis instance at the given URL (redis://... or
// rediss://...) and returns a Store. Connect timeout 2s, socket timeout
// 15s with keepalive, per spec.md section 5.
func NewRedisStore(url string, opts ...RedisOption) (*RedisStore, error) {
	redisOpts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	redisOpts.DialTimeout = 2 * time.Second
	redisOpts.ReadTimeout = 15 * time.Second
	redisOpts.WriteTimeout = 15 * time.Second

	s := &RedisStore{
		client: redis.NewClient(redisOpts),
		opts:   redisOpts,
		logger: common.NewSilentLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// NewRedisStoreFromClient wraps an already-constructed *redis.Client
// (used by the miniredis-backed test fake).
func NewRedisStoreFromClient(client *redis.Client, logger *common.Logger) *RedisStore {
	if logger == nil {
		logger = common.NewSilentLogger()
	}
	return &RedisStore{client: client, logger: logger}
}

func (s *RedisStore) BRPop(ctx context.Context, timeout time.Duration, queues ...string) (*PopResult, error) {
	res, err := s.client.BRPop(ctx, timeout, queues...).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, retry.Wrap(fmt.Errorf("brpop: %w", err))
	}
	// res is [queueName, payload]
	if len(res) != 2 {
		return nil, fmt.Errorf("brpop: unexpected reply shape %v", res)
	}
	return &PopResult{Queue: res[0], Payload: []byte(res[1])}, nil
}

func (s *RedisStore) RPush(ctx context.Context, queue string, payload []byte) error {
	if err := s.client.RPush(ctx, queue, payload).Err(); err != nil {
		return retry.Wrap(fmt.Errorf("rpush %s: %w", queue, err))
	}
	return nil
}

func (s *RedisStore) LPush(ctx context.Context, queue string, payload []byte) error {
	if err := s.client.LPush(ctx, queue, payload).Err(); err != nil {
		return retry.Wrap(fmt.Errorf("lpush %s: %w", queue, err))
	}
	return nil
}

func (s *RedisStore) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	res, err := s.client.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, retry.Wrap(fmt.Errorf("hgetall %s: %w", key, err))
	}
	return res, nil
}

func (s *RedisStore) HSet(ctx context.Context, key string, fields map[string]any, ttl time.Duration) error {
	if len(fields) == 0 {
		return nil
	}
	flat := make(map[string]any, len(fields))
	for k, v := range fields {
		switch val := v.(type) {
		case string, int, int64, float64, bool:
			flat[k] = val
		default:
			b, err := json.Marshal(val)
			if err != nil {
				return fmt.Errorf("marshal field %s: %w", k, err)
			}
			flat[k] = string(b)
		}
	}
	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, key, flat)
	if ttl > 0 {
		pipe.Expire(ctx, key, ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return retry.Wrap(fmt.Errorf("hset %s: %w", key, err))
	}
	return nil
}

func (s *RedisStore) Incr(ctx context.Context, key string) (int64, error) {
	n, err := s.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, retry.Wrap(fmt.Errorf("incr %s: %w", key, err))
	}
	return n, nil
}

func (s *RedisStore) SAdd(ctx context.Context, key string, member string, ttl time.Duration) error {
	pipe := s.client.TxPipeline()
	pipe.SAdd(ctx, key, member)
	if ttl > 0 {
		pipe.Expire(ctx, key, ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return retry.Wrap(fmt.Errorf("sadd %s: %w", key, err))
	}
	return nil
}

func (s *RedisStore) SRem(ctx context.Context, key string, member string) error {
	if err := s.client.SRem(ctx, key, member).Err(); err != nil {
		return retry.Wrap(fmt.Errorf("srem %s: %w", key, err))
	}
	return nil
}

func (s *RedisStore) SCard(ctx context.Context, key string) (int64, error) {
	n, err := s.client.SCard(ctx, key).Result()
	if err != nil {
		return 0, retry.Wrap(fmt.Errorf("scard %s: %w", key, err))
	}
	return n, nil
}

func (s *RedisStore) Expire(ctx context.Context, key string, ttl time.Duration) error {
	if err := s.client.Expire(ctx, key, ttl).Err(); err != nil {
		return retry.Wrap(fmt.Errorf("expire %s: %w", key, err))
	}
	return nil
}

func (s *RedisStore) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return retry.Wrap(fmt.Errorf("ping: %w", err))
	}
	return nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

// Reconnect closes and reopens the underlying connection using the
// options captured at construction time, used when the worker loop has
// been idle past MAX_IDLE_BEFORE_RECONNECT to defeat stale proxies
// (spec.md section 4.11 step 1).
func (s *RedisStore) Reconnect() error {
	if err := s.client.Close(); err != nil {
		s.logger.Warn().Err(err).Msg("error closing redis client before reconnect")
	}
	if s.opts == nil {
		return fmt.Errorf("redis store: reconnect called without captured dial options")
	}
	s.client = redis.NewClient(s.opts)
	return nil
}

var _ Store = (*RedisStore)(nil)
