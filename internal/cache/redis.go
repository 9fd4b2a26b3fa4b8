package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"basegraph.app/tally/internal/model"
)

// RedisClient is the slice of redis.Cmdable the store needs.
type RedisClient interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
}

type redisStore struct {
	client RedisClient
	key    string
}

// NewRedisStore stores the snapshot as one JSON string value. SET replaces
// the value atomically, so a reader never sees a partial write.
func NewRedisStore(client RedisClient, key string) Store {
	if key == "" {
		key = DefaultKey
	}
	return &redisStore{client: client, key: key}
}

func (s *redisStore) Get(ctx context.Context) (*model.Snapshot, error) {
	data, err := s.client.Get(ctx, s.key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("redis get %s: %w", s.key, err)
	}
	return decode(data)
}

func (s *redisStore) Set(ctx context.Context, snapshot model.Snapshot) error {
	data, err := encode(snapshot)
	if err != nil {
		return err
	}

	// No expiry: staleness is judged from snapshot.From, and the snapshot
	// must survive to anchor the next incremental window.
	if err := s.client.Set(ctx, s.key, data, 0).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", s.key, err)
	}

	slog.DebugContext(ctx, "snapshot written to redis",
		"key", s.key,
		"bytes", len(data),
		"change_requests", len(snapshot.ChangeRequests))
	return nil
}
