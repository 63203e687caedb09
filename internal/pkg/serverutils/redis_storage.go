package serverutils

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStorage implements fiber.Storage so limiter counters survive restarts
// and are shared across replicas.
type RedisStorage struct {
	rdb    *redis.Client
	prefix string
}

func NewRedisStorage(rdb *redis.Client, prefix string) *RedisStorage {
	return &RedisStorage{rdb: rdb, prefix: prefix}
}

func (s *RedisStorage) key(k string) string {
	return s.prefix + k
}

func (s *RedisStorage) Get(key string) ([]byte, error) {
	val, err := s.rdb.Get(context.Background(), s.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	return val, err
}

func (s *RedisStorage) Set(key string, val []byte, exp time.Duration) error {
	if len(key) == 0 || len(val) == 0 {
		return nil
	}
	return s.rdb.Set(context.Background(), s.key(key), val, exp).Err()
}

func (s *RedisStorage) Delete(key string) error {
	if len(key) == 0 {
		return nil
	}
	return s.rdb.Del(context.Background(), s.key(key)).Err()
}

func (s *RedisStorage) Reset() error {
	ctx := context.Background()
	iter := s.rdb.Scan(ctx, 0, s.prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		if err := s.rdb.Del(ctx, iter.Val()).Err(); err != nil {
			return err
		}
	}
	return iter.Err()
}

func (s *RedisStorage) Close() error {
	return s.rdb.Close()
}
