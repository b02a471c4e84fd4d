package rbac

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// InvalidationChannel carries matrix change notifications between instances.
const InvalidationChannel = "rbac.invalidate"

type busMessage struct {
	Origin string `json:"origin"`
	ChangeEvent
}

// InvalidationBus propagates matrix changes over redis pub/sub so every
// instance reloads its matrix and drops stale cache entries.
type InvalidationBus struct {
	client  *redis.Client
	channel string
	origin  string
	logger  *slog.Logger
}

// NewInvalidationBus creates a bus; an empty channel selects InvalidationChannel.
func NewInvalidationBus(client *redis.Client, channel string, logger *slog.Logger) *InvalidationBus {
	if channel == "" {
		channel = InvalidationChannel
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &InvalidationBus{client: client, channel: channel, origin: uuid.NewString(), logger: logger}
}

// Publish announces a local change.
func (b *InvalidationBus) Publish(ctx context.Context, ev ChangeEvent) error {
	if b == nil || b.client == nil {
		return nil
	}
	payload, err := json.Marshal(busMessage{Origin: b.origin, ChangeEvent: ev})
	if err != nil {
		return err
	}
	return b.client.Publish(ctx, b.channel, payload).Err()
}

// Listen subscribes to the channel and calls handle for changes made by other
// instances until ctx is cancelled. It returns once the subscription is live.
func (b *InvalidationBus) Listen(ctx context.Context, handle func(context.Context, ChangeEvent)) error {
	if b == nil || b.client == nil {
		return nil
	}
	pubsub := b.client.Subscribe(ctx, b.channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return err
	}
	go func() {
		defer func() { _ = pubsub.Close() }()
		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var decoded busMessage
				if err := json.Unmarshal([]byte(msg.Payload), &decoded); err != nil {
					b.logger.Warn("rbac invalidation decode", slog.Any("error", err))
					decoded = busMessage{ChangeEvent: ChangeEvent{Purge: true}}
				}
				if decoded.Origin == b.origin {
					continue
				}
				handle(ctx, decoded.ChangeEvent)
			}
		}
	}()
	return nil
}

// Attach publishes local matrix changes and reloads the matrix on remote ones.
func (b *InvalidationBus) Attach(ctx context.Context, matrix *Matrix) error {
	matrix.Subscribe(func(ev ChangeEvent) {
		if ev.Remote {
			return
		}
		if err := b.Publish(context.WithoutCancel(ctx), ev); err != nil {
			b.logger.Warn("rbac invalidation publish", slog.Any("error", err))
		}
	})
	return b.Listen(ctx, func(ctx context.Context, ev ChangeEvent) {
		if err := matrix.Reload(ctx, ev); err != nil {
			b.logger.Error("rbac matrix reload", slog.Any("error", err))
		}
	})
}
