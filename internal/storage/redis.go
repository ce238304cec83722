package storage

import (
	"context"
	"errors"

	apperrors "gameflow/pkg/errors"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// DefaultRedisKey holds the snapshot when no key is configured.
const DefaultRedisKey = "gameflow:flow"

// RedisRepository keeps the snapshot as a string value in Redis.
type RedisRepository struct {
	client *redis.Client
	key    string
	logger *zap.Logger
}

// NewRedisRepository stores the snapshot under key using client.
func NewRedisRepository(client *redis.Client, key string, logger *zap.Logger) *RedisRepository {
	if key == "" {
		key = DefaultRedisKey
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisRepository{client: client, key: key, logger: logger.Named("redis-store")}
}

// Load implements FlowRepository.
func (r *RedisRepository) Load(ctx context.Context) (Snapshot, error) {
	body, err := r.client.Get(ctx, r.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return Snapshot{}, notFound()
	}
	if err != nil {
		return Snapshot{}, apperrors.NewDatabaseError("load flow", err)
	}

	s, err := decodeSnapshot(body)
	if err != nil {
		r.logger.Warn("Ignoring unreadable snapshot value", zap.String("key", r.key), zap.Error(err))
		return Snapshot{}, notFound()
	}
	return s, nil
}

// Save implements FlowRepository.
func (r *RedisRepository) Save(ctx context.Context, s Snapshot) error {
	body, err := encodeSnapshot(s)
	if err != nil {
		return apperrors.Wrap(err, "encode flow")
	}
	if err := r.client.Set(ctx, r.key, body, 0).Err(); err != nil {
		return apperrors.NewDatabaseError("save flow", err)
	}
	return nil
}

// Close is a no-op; the client is owned by the caller since the fan-out
// relay may share it.
func (r *RedisRepository) Close() error { return nil }
