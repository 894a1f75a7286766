package ledger

import (
	"context"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"gaceta/internal/core"
)

const defaultRedisKey = "gaceta:delivered"

func init() {
	Register("redis", func(ctx context.Context, cfg Config) (Store, error) {
		return OpenRedis(ctx, cfg.Addr, cfg.Key)
	})
}

// RedisStore keeps the delivered set in a redis set. SADD is atomic, so like
// sqlite this backend tolerates overlapping committers.
type RedisStore struct {
	client *redis.Client
	key    string
	index  map[string]struct{}
}

func OpenRedis(ctx context.Context, addr, key string) (*RedisStore, error) {
	if key == "" {
		key = defaultRedisKey
	}

	client := redis.NewClient(&redis.Options{Addr: addr})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, &core.PersistenceError{Op: "open", Err: err}
	}

	ids, err := client.SMembers(ctx, key).Result()
	if err != nil {
		client.Close()
		return nil, &core.PersistenceError{Op: "load", Err: err}
	}

	index := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		index[id] = struct{}{}
	}

	slog.Debug("Loaded ledger", "addr", addr, "key", key, "entries", len(index))

	return &RedisStore{
		client: client,
		key:    key,
		index:  index,
	}, nil
}

func (s *RedisStore) Contains(id string) bool {
	_, ok := s.index[id]
	return ok
}

func (s *RedisStore) Len() int {
	return len(s.index)
}

func (s *RedisStore) Commit(ctx context.Context, id string) error {
	if err := s.client.SAdd(ctx, s.key, id).Err(); err != nil {
		return &core.PersistenceError{Op: "commit", Err: err}
	}

	s.index[id] = struct{}{}
	return nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
