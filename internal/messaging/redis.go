package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	apperrors "gameflow/pkg/errors"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// DefaultRedisChannel carries updates between server instances.
const DefaultRedisChannel = "gameflow:updates"

// RedisFanout relays updates through Redis pub/sub so every server instance
// pushes a save to its own websocket clients.
type RedisFanout struct {
	client  *redis.Client
	channel string
	logger  *zap.Logger
	subs    subscribers
	ready   chan struct{}
	once    sync.Once
}

// NewRedisFanout publishes and subscribes on channel.
func NewRedisFanout(client *redis.Client, channel string, logger *zap.Logger) *RedisFanout {
	if channel == "" {
		channel = DefaultRedisChannel
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisFanout{
		client:  client,
		channel: channel,
		logger:  logger.Named("redis-fanout"),
		ready:   make(chan struct{}),
	}
}

// Publish implements Fanout. Delivery, including to this instance, happens
// through the subscription started by Run.
func (f *RedisFanout) Publish(ctx context.Context, u FlowUpdate) error {
	data, err := json.Marshal(u)
	if err != nil {
		return apperrors.Wrap(err, "encode update")
	}
	if err := f.client.Publish(ctx, f.channel, data).Err(); err != nil {
		return apperrors.NewNetworkError("publish update", err)
	}
	return nil
}

// Subscribe implements Fanout.
func (f *RedisFanout) Subscribe(fn func(FlowUpdate)) { f.subs.add(fn) }

// Ready is closed once Run has an active subscription.
func (f *RedisFanout) Ready() <-chan struct{} { return f.ready }

// Run implements Fanout.
func (f *RedisFanout) Run(ctx context.Context) error {
	pubsub := f.client.Subscribe(ctx, f.channel)
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return apperrors.NewNetworkError(fmt.Sprintf("subscribe %s", f.channel), err)
	}
	f.once.Do(func() { close(f.ready) })
	f.logger.Info("Subscribed to update channel", zap.String("channel", f.channel))

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var u FlowUpdate
			if err := json.Unmarshal([]byte(msg.Payload), &u); err != nil {
				f.logger.Warn("Dropping malformed update", zap.Error(err))
				continue
			}
			f.subs.deliver(u)
		}
	}
}

// Close is a no-op; the redis client is shared with storage and closed by
// its owner.
func (f *RedisFanout) Close() error { return nil }
