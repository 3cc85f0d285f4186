package store

import (
	"context"
	"errors"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// RedisStore keeps the document under one key in redis, shared across processes.
type RedisStore struct {
	client *redis.Client
	key    string
	logger *logrus.Logger
}

// NewRedisStore addresses key on client.
func NewRedisStore(client *redis.Client, key string, logger *logrus.Logger) *RedisStore {
	return &RedisStore{client: client, key: key, logger: logger}
}

func (s *RedisStore) Kind() Kind { return KindRedis }

func (s *RedisStore) Read(ctx context.Context) ([]byte, bool) {
	raw, err := s.client.Get(ctx, s.key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) && s.logger != nil {
			s.logger.Warnf("Redis cache read failed for key %s: %v", s.key, err)
		}
		return nil, false
	}
	if len(raw) == 0 {
		return nil, false
	}
	return raw, true
}

func (s *RedisStore) Write(ctx context.Context, raw []byte) error {
	if err := s.client.Set(ctx, s.key, raw, 0).Err(); err != nil {
		return invalidCache("redis:"+s.key, err)
	}
	return nil
}
