package chat

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

const DefaultRelayChannel = "chat-events"

// RedisRelay routes Hub broadcasts through Redis pub/sub so every server
// attached to the same Redis sees them. Local delivery happens when the
// message comes back from the subscription.
type RedisRelay struct {
	redis   *redis.Client
	channel string
	log     *slog.Logger
}

func NewRedisRelay(client *redis.Client, channel string, log *slog.Logger) *RedisRelay {
	if channel == "" {
		channel = DefaultRelayChannel
	}
	return &RedisRelay{redis: client, channel: channel, log: log}
}

func (r *RedisRelay) Publish(ctx context.Context, b Broadcast) error {
	payload, err := json.Marshal(b)
	if err != nil {
		return err
	}
	return r.redis.Publish(ctx, r.channel, payload).Err()
}

// Run pipes relayed broadcasts into the hub until ctx is done.
func (r *RedisRelay) Run(ctx context.Context, hub *Hub) error {
	pubsub := r.redis.Subscribe(ctx, r.channel)
	defer pubsub.Close()

	// Wait for the subscription to be confirmed before reporting ready.
	if _, err := pubsub.Receive(ctx); err != nil {
		return err
	}
	r.log.Info("Subscribed to relay channel", "channel", r.channel)

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var b Broadcast
			if err := json.Unmarshal([]byte(msg.Payload), &b); err != nil {
				r.log.Error("Discarding malformed relay payload", "error", err)
				continue
			}
			hub.Deliver(b)
		}
	}
}
