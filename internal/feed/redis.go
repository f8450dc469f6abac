package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

const redisChannelPrefix = "khata:changes:"

// Redis publishes changes on one pub/sub channel per owner.
type Redis struct {
	client *redis.Client
	logger *zap.Logger
}

func NewRedis(client *redis.Client, logger *zap.Logger) *Redis {
	return &Redis{client: client, logger: logger}
}

func redisChannel(ownerID string) string {
	return redisChannelPrefix + ownerID
}

func (r *Redis) Publish(ctx context.Context, c Change) error {
	if c.At.IsZero() {
		c.At = time.Now().UTC()
	}
	payload, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal change: %w", err)
	}
	return r.client.Publish(ctx, redisChannel(c.OwnerID), payload).Err()
}

func (r *Redis) Subscribe(ctx context.Context, ownerID string) (*Subscription, error) {
	ps := r.client.Subscribe(ctx, redisChannel(ownerID))
	// Wait for the subscribe confirmation so no publish after return is lost.
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("subscribe %s: %w", ownerID, err)
	}

	sub := newSubscription(func() { _ = ps.Close() })
	go func() {
		for msg := range ps.Channel() {
			var c Change
			if err := json.Unmarshal([]byte(msg.Payload), &c); err != nil {
				r.logger.Warn("Dropping malformed change notification",
					zap.String("channel", msg.Channel),
					zap.Error(err),
				)
				continue
			}
			sub.offer(c)
		}
	}()
	return sub, nil
}
