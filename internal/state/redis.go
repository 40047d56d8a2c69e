package state

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore persists state entries durably under a "alertd:state:" key
// prefix so alert pauses and last-serialization survive a daemon restart.
type RedisStore struct {
	Client *redis.Client
	Prefix string
}

// NewRedisStore builds a RedisStore against an already-connected client,
// defaulting Prefix to "alertd:state:" if empty.
func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "alertd:state:"
	}
	return &RedisStore{Client: client, Prefix: prefix}
}

func (s *RedisStore) redisKey(key string) string {
	return s.Prefix + key
}

func (s *RedisStore) Get(ctx context.Context, key string) (Entry, error) {
	data, err := s.Client.Get(ctx, s.redisKey(key)).Bytes()
	if err == redis.Nil {
		return Entry{}, nil
	}
	if err != nil {
		return Entry{}, fmt.Errorf("getting state for %s: %w", key, err)
	}
	return decode(data)
}

func (s *RedisStore) Put(ctx context.Context, key string, entry Entry) error {
	data, err := encode(entry)
	if err != nil {
		return err
	}
	if err := s.Client.Set(ctx, s.redisKey(key), data, 0).Err(); err != nil {
		return fmt.Errorf("putting state for %s: %w", key, err)
	}
	return nil
}

func (s *RedisStore) List(ctx context.Context) (map[string]Entry, error) {
	out := map[string]Entry{}
	iter := s.Client.Scan(ctx, 0, s.Prefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		fullKey := iter.Val()
		data, err := s.Client.Get(ctx, fullKey).Bytes()
		if err != nil {
			continue
		}
		entry, err := decode(data)
		if err != nil {
			continue
		}
		out[fullKey[len(s.Prefix):]] = entry
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("listing state: %w", err)
	}
	return out, nil
}

func (s *RedisStore) Pause(ctx context.Context, key string, until time.Time) error {
	entry, err := s.Get(ctx, key)
	if err != nil {
		return err
	}
	entry.PausedUntil = until
	return s.Put(ctx, key, entry)
}

func (s *RedisStore) Delete(ctx context.Context, key string) error {
	if err := s.Client.Del(ctx, s.redisKey(key)).Err(); err != nil {
		return fmt.Errorf("deleting state for %s: %w", key, err)
	}
	return nil
}
