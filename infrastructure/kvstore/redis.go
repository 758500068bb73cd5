package kvstore

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"postservice/application/ports"

	"github.com/redis/go-redis/v9"
)

// compareAndDeleteScript deletes KEYS[1] only while it still holds ARGV[1]
var compareAndDeleteScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisStore implements KeyValueStore on a Redis server
type RedisStore struct {
	client redis.UniversalClient
}

// NewRedisStore wraps an existing client
func NewRedisStore(client redis.UniversalClient) *RedisStore {
	return &RedisStore{client: client}
}

// NewRedisStoreFromAddr dials a single Redis node
func NewRedisStoreFromAddr(addr, password string, db int) *RedisStore {
	return NewRedisStore(redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	}))
}

// Close closes the underlying client
func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, error) {
	value, err := s.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ports.ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("redis get %s: %w", key, err)
	}
	return value, nil
}

func (s *RedisStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := s.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

func (s *RedisStore) SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	ok, err := s.client.SetNX(ctx, key, value, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis setnx %s: %w", key, err)
	}
	return ok, nil
}

func (s *RedisStore) CompareAndDelete(ctx context.Context, key string, expected []byte) (bool, error) {
	n, err := compareAndDeleteScript.Run(ctx, s.client, []string{key}, expected).Int64()
	if err != nil {
		return false, fmt.Errorf("redis compare-and-delete %s: %w", key, err)
	}
	return n == 1, nil
}

func (s *RedisStore) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	if err := s.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

func (s *RedisStore) Exists(ctx context.Context, key string) (bool, error) {
	n, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("redis exists %s: %w", key, err)
	}
	return n > 0, nil
}

func (s *RedisStore) Expire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := s.client.Expire(ctx, key, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis expire %s: %w", key, err)
	}
	return ok, nil
}

func (s *RedisStore) SAdd(ctx context.Context, key string, members ...string) error {
	if len(members) == 0 {
		return nil
	}
	if err := s.client.SAdd(ctx, key, toInterfaces(members)...).Err(); err != nil {
		return fmt.Errorf("redis sadd %s: %w", key, err)
	}
	return nil
}

func (s *RedisStore) SRem(ctx context.Context, key string, members ...string) error {
	if len(members) == 0 {
		return nil
	}
	if err := s.client.SRem(ctx, key, toInterfaces(members)...).Err(); err != nil {
		return fmt.Errorf("redis srem %s: %w", key, err)
	}
	return nil
}

func (s *RedisStore) SMembers(ctx context.Context, key string) ([]string, error) {
	members, err := s.client.SMembers(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("redis smembers %s: %w", key, err)
	}
	return members, nil
}

func (s *RedisStore) ZAdd(ctx context.Context, key string, score float64, member string) error {
	if err := s.client.ZAdd(ctx, key, redis.Z{Score: score, Member: member}).Err(); err != nil {
		return fmt.Errorf("redis zadd %s: %w", key, err)
	}
	return nil
}

func (s *RedisStore) ZRemRangeByScore(ctx context.Context, key string, min, max float64) error {
	err := s.client.ZRemRangeByScore(ctx, key, formatScore(min), formatScore(max)).Err()
	if err != nil {
		return fmt.Errorf("redis zremrangebyscore %s: %w", key, err)
	}
	return nil
}

func (s *RedisStore) ZCard(ctx context.Context, key string) (int64, error) {
	n, err := s.client.ZCard(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("redis zcard %s: %w", key, err)
	}
	return n, nil
}

func (s *RedisStore) ZOldest(ctx context.Context, key string) (string, float64, error) {
	zs, err := s.client.ZRangeWithScores(ctx, key, 0, 0).Result()
	if err != nil {
		return "", 0, fmt.Errorf("redis zrange %s: %w", key, err)
	}
	if len(zs) == 0 {
		return "", 0, ports.ErrCacheMiss
	}
	member, _ := zs[0].Member.(string)
	return member, zs[0].Score, nil
}

// ZSlide runs its commands in one MULTI/EXEC, so count and oldest share a snapshot
func (s *RedisStore) ZSlide(ctx context.Context, key string, score float64, member string, cutoff float64, ttl time.Duration) (ports.Window, error) {
	var card *redis.IntCmd
	var oldest *redis.ZSliceCmd
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZAdd(ctx, key, redis.Z{Score: score, Member: member})
		pipe.ZRemRangeByScore(ctx, key, "-inf", formatScore(cutoff))
		if ttl > 0 {
			pipe.PExpire(ctx, key, ttl)
		} else {
			pipe.Persist(ctx, key)
		}
		card = pipe.ZCard(ctx, key)
		oldest = pipe.ZRangeWithScores(ctx, key, 0, 0)
		return nil
	})
	if err != nil {
		return ports.Window{}, fmt.Errorf("redis zslide %s: %w", key, err)
	}

	window := ports.Window{Count: card.Val()}
	if zs := oldest.Val(); len(zs) > 0 {
		window.Oldest = zs[0].Score
	}
	return window, nil
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func toInterfaces(values []string) []interface{} {
	out := make([]interface{}, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}

func formatScore(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

var _ ports.KeyValueStore = (*RedisStore)(nil)
