package store

import (
	"context"
	"fmt"
	"time"

	"github.com/coocood/freecache"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/dalfonso89/currencylayer-bank/internal/config"
)

// New builds the store selected by configuration. The returned func releases any
// connection the store holds.
func New(cfg *config.Config, logger *logrus.Logger) (Store, func(), error) {
	kind, err := ParseKind(cfg.CacheBackend)
	if err != nil {
		return nil, nil, err
	}

	switch kind {
	case KindNone:
		return NullStore{}, func() {}, nil
	case KindFile:
		logger.Infof("Using file cache at %s", cfg.CacheFile)
		return NewFileStore(cfg.CacheFile), func() {}, nil
	case KindMemory:
		logger.Infof("Using in-process cache (%d bytes)", cfg.CacheMemoryBytes)
		return NewMemoryStore(freecache.NewCache(cfg.CacheMemoryBytes), cfg.CacheKey), func() {}, nil
	case KindRedis:
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, DB: cfg.RedisDB})

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			return nil, nil, fmt.Errorf("connect to redis at %s: %w", cfg.RedisAddr, err)
		}
		logger.Infof("Using redis cache at %s db %d key %s", cfg.RedisAddr, cfg.RedisDB, cfg.CacheKey)

		return NewRedisStore(client, cfg.CacheKey, logger), func() {
			client.Close()
			logger.Info("Closed redis cache connection")
		}, nil
	default:
		return nil, nil, fmt.Errorf("cache backend %q cannot be built from configuration", kind)
	}
}
