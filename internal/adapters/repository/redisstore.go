package repository

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/okian/trending/pkg/metrics"
)

// Redis layout, all under one namespace:
//
//	<ns>:scores   sorted set, member=item id, score=-(ranking score)
//	<ns>:updated  sorted set, member=item id, score=last write (unix ms)
//
// Negating the ranking score lets plain ZRANGE return score DESC with ties
// broken by member ASC, which is exactly the ranking order.

const defaultRedisNamespace = "trending"

// evictBatch bounds the number of arguments passed to a single ZREM from Lua.
const evictBatch = 500

var trimScript = redis.NewScript(`
local max = tonumber(ARGV[1])
local batch = tonumber(ARGV[2])
local n = redis.call('ZCARD', KEYS[1])
if n <= max then
  return 0
end
local victims = redis.call('ZRANGE', KEYS[1], max, -1)
for i = 1, #victims, batch do
  local j = math.min(i + batch - 1, #victims)
  redis.call('ZREM', KEYS[1], unpack(victims, i, j))
  redis.call('ZREM', KEYS[2], unpack(victims, i, j))
end
return #victims
`)

var expireScript = redis.NewScript(`
local batch = tonumber(ARGV[2])
local victims = redis.call('ZRANGEBYSCORE', KEYS[2], '-inf', '(' .. ARGV[1])
for i = 1, #victims, batch do
  local j = math.min(i + batch - 1, #victims)
  redis.call('ZREM', KEYS[1], unpack(victims, i, j))
  redis.call('ZREM', KEYS[2], unpack(victims, i, j))
end
return #victims
`)

// RedisConfig holds connection settings for RedisStore.
type RedisConfig struct {
	Addr      string
	Password  string
	DB        int
	Namespace string
}

// RedisStore keeps the ranking in Redis so several processes can share it.
type RedisStore struct {
	client     *redis.Client
	scoresKey  string
	updatedKey string
}

// NewRedisStore dials Redis and verifies the connection with PING.
func NewRedisStore(ctx context.Context, cfg RedisConfig) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	s := NewRedisStoreFromClient(client, cfg.Namespace)
	if err := s.Ping(ctx); err != nil {
		_ = client.Close()
		return nil, err
	}
	return s, nil
}

// NewRedisStoreFromClient wraps an existing client. The store owns it afterwards.
func NewRedisStoreFromClient(client *redis.Client, namespace string) *RedisStore {
	if namespace == "" {
		namespace = defaultRedisNamespace
	}
	return &RedisStore{
		client:     client,
		scoresKey:  namespace + ":scores",
		updatedKey: namespace + ":updated",
	}
}

func (s *RedisStore) fail(op string, err error) error {
	metrics.RecordStoreError(BackendRedis, op)
	return unavailable(BackendRedis, op, err)
}

// Upsert writes the score and write time in one MULTI/EXEC.
func (s *RedisStore) Upsert(ctx context.Context, itemID string, score float64, at time.Time) error {
	start := time.Now()
	defer func() { metrics.RecordStoreOp(BackendRedis, "upsert", metrics.SinceMs(start)) }()

	if math.IsNaN(score) || math.IsInf(score, 0) {
		return ErrInvalidScore
	}

	pipe := s.client.TxPipeline()
	pipe.ZAdd(ctx, s.scoresKey, redis.Z{Score: -score, Member: itemID})
	pipe.ZAdd(ctx, s.updatedKey, redis.Z{Score: float64(at.UnixMilli()), Member: itemID})
	if _, err := pipe.Exec(ctx); err != nil {
		return s.fail("upsert", err)
	}
	return nil
}

// TopN returns the first n entries in ranking order.
func (s *RedisStore) TopN(ctx context.Context, n int) ([]Entry, error) {
	start := time.Now()
	defer func() { metrics.RecordStoreOp(BackendRedis, "top_n", metrics.SinceMs(start)) }()

	if n <= 0 {
		return []Entry{}, nil
	}

	zs, err := s.client.ZRangeWithScores(ctx, s.scoresKey, 0, int64(n-1)).Result()
	if err != nil {
		return nil, s.fail("top_n", err)
	}
	out := make([]Entry, 0, len(zs))
	if len(zs) == 0 {
		return out, nil
	}

	ids := make([]string, len(zs))
	for i, z := range zs {
		ids[i], _ = z.Member.(string)
	}
	stamps, err := s.client.ZMScore(ctx, s.updatedKey, ids...).Result()
	if err != nil {
		return nil, s.fail("top_n", err)
	}

	for i, z := range zs {
		e := Entry{Rank: i + 1, ItemID: ids[i], Score: unnegate(z.Score)}
		if i < len(stamps) {
			e.UpdatedAt = time.UnixMilli(int64(stamps[i]))
		}
		out = append(out, e)
	}
	return out, nil
}

// Rank reads score, position and write time in one round trip.
func (s *RedisStore) Rank(ctx context.Context, itemID string) (Entry, error) {
	start := time.Now()
	defer func() { metrics.RecordStoreOp(BackendRedis, "rank", metrics.SinceMs(start)) }()

	var (
		scoreCmd   *redis.FloatCmd
		rankCmd    *redis.IntCmd
		updatedCmd *redis.FloatCmd
	)
	_, err := s.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		scoreCmd = pipe.ZScore(ctx, s.scoresKey, itemID)
		rankCmd = pipe.ZRank(ctx, s.scoresKey, itemID)
		updatedCmd = pipe.ZScore(ctx, s.updatedKey, itemID)
		return nil
	})
	if err != nil && !errors.Is(err, redis.Nil) {
		return Entry{}, s.fail("rank", err)
	}

	score, err := scoreCmd.Result()
	if errors.Is(err, redis.Nil) {
		return Entry{}, ErrNotFound
	}
	if err != nil {
		return Entry{}, s.fail("rank", err)
	}
	pos, err := rankCmd.Result()
	if errors.Is(err, redis.Nil) {
		return Entry{}, ErrNotFound
	}
	if err != nil {
		return Entry{}, s.fail("rank", err)
	}

	e := Entry{Rank: int(pos) + 1, ItemID: itemID, Score: unnegate(score)}
	if ms, err := updatedCmd.Result(); err == nil {
		e.UpdatedAt = time.UnixMilli(int64(ms))
	}
	return e, nil
}

// Count returns ZCARD of the scores set.
func (s *RedisStore) Count(ctx context.Context) (int, error) {
	n, err := s.client.ZCard(ctx, s.scoresKey).Result()
	if err != nil {
		return 0, s.fail("count", err)
	}
	return int(n), nil
}

// TrimToSize atomically drops everything ranked below max.
func (s *RedisStore) TrimToSize(ctx context.Context, max int) (int, error) {
	if max < 0 {
		max = 0
	}
	n, err := trimScript.Run(ctx, s.client, []string{s.scoresKey, s.updatedKey}, max, evictBatch).Int()
	if err != nil {
		return 0, s.fail("trim", err)
	}
	return n, nil
}

// RemoveOlderThan atomically drops items last written before cutoff.
func (s *RedisStore) RemoveOlderThan(ctx context.Context, cutoff time.Time) (int, error) {
	n, err := expireScript.Run(ctx, s.client, []string{s.scoresKey, s.updatedKey}, cutoff.UnixMilli(), evictBatch).Int()
	if err != nil {
		return 0, s.fail("expire", err)
	}
	return n, nil
}

// Ping checks connectivity.
func (s *RedisStore) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		if errors.Is(err, redis.ErrClosed) {
			return ErrClosed
		}
		return s.fail("ping", err)
	}
	return nil
}

// Close releases the client connection pool.
func (s *RedisStore) Close() error {
	if err := s.client.Close(); err != nil {
		return fmt.Errorf("close redis: %w", err)
	}
	return nil
}

// unnegate flips a stored score back, normalizing -0 to 0.
func unnegate(v float64) float64 {
	if v == 0 {
		return 0
	}
	return -v
}
