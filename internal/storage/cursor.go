package storage

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// cursorTTL bounds how long an idle subscription's cursor is remembered.
const cursorTTL = 24 * time.Hour

func cursorKey(key string) string {
	return "poll:cursor:" + key
}

// LastSeen returns the last delivered message id for a subscription key, or
// "" when none is recorded.
func (s *Service) LastSeen(ctx context.Context, key string) (string, error) {
	if s.Redis == nil {
		return "", nil
	}
	id, err := s.Redis.Get(ctx, cursorKey(key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return id, nil
}

// SetLastSeen records the last delivered message id for a subscription key.
func (s *Service) SetLastSeen(ctx context.Context, key, messageID string) error {
	if s.Redis == nil {
		return nil
	}
	return s.Redis.Set(ctx, cursorKey(key), messageID, cursorTTL).Err()
}

// NewRedis connects to Redis and verifies the connection.
func NewRedis(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if _, err := rdb.Ping(ctx).Result(); err != nil {
		_ = rdb.Close()
		return nil, err
	}
	return rdb, nil
}
