package counter

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

var _ Store = (*RedisStore)(nil)

// [FLOOR_AT_ZERO]
// KEYS[1] counter key, ARGV[1] amount. A missing key is left missing.
var luaDecrement = redis.NewScript(`
local cur = redis.call('GET', KEYS[1])
if not cur then
  return 0
end
local val = tonumber(cur) - tonumber(ARGV[1])
if val < 0 then
  val = 0
end
redis.call('SET', KEYS[1], val)
return val
`)

type RedisStore struct {
	rdb    redis.UniversalClient
	prefix string
}

func NewRedisStore(rdb redis.UniversalClient, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "unread"
	}
	return &RedisStore{rdb: rdb, prefix: prefix}
}

func (s *RedisStore) key(userID string) string {
	return s.prefix + ":" + userID
}

func (s *RedisStore) Increment(ctx context.Context, userID string) (int64, error) {
	v, err := s.rdb.Incr(ctx, s.key(userID)).Result()
	if err != nil {
		return 0, fmt.Errorf("counter: incr %s: %w", userID, err)
	}
	return v, nil
}

func (s *RedisStore) Decrement(ctx context.Context, userID string, n int64) (int64, error) {
	if n < 0 {
		return 0, ErrInvalidAmount
	}
	v, err := luaDecrement.Run(ctx, s.rdb, []string{s.key(userID)}, n).Int64()
	if err != nil {
		return 0, fmt.Errorf("counter: decr %s: %w", userID, err)
	}
	return v, nil
}

func (s *RedisStore) Reset(ctx context.Context, userID string) error {
	if err := s.rdb.Set(ctx, s.key(userID), 0, 0).Err(); err != nil {
		return fmt.Errorf("counter: reset %s: %w", userID, err)
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, userID string) (int64, bool, error) {
	v, err := s.rdb.Get(ctx, s.key(userID)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("counter: get %s: %w", userID, err)
	}
	return v, true, nil
}
