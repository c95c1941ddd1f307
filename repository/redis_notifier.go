package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RedisNotifier publishes changes over Redis pub/sub so every server
// process sees every write
type RedisNotifier struct {
	client *redis.Client
	prefix string
}

// NewRedisNotifier connects to Redis and verifies the connection
func NewRedisNotifier(redisURL string) (*RedisNotifier, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return NewRedisNotifierWithClient(client), nil
}

// NewRedisNotifierWithClient creates a notifier from an existing Redis client
func NewRedisNotifierWithClient(client *redis.Client) *RedisNotifier {
	return &RedisNotifier{
		client: client,
		prefix: "lifedash:changes:",
	}
}

func (n *RedisNotifier) channel(userID uuid.UUID) string {
	return n.prefix + userID.String()
}

// Publish sends change on the user's channel
func (n *RedisNotifier) Publish(ctx context.Context, change Change) error {
	payload, err := json.Marshal(change)
	if err != nil {
		return fmt.Errorf("marshal change: %w", err)
	}
	if err := n.client.Publish(ctx, n.channel(change.UserID), payload).Err(); err != nil {
		return fmt.Errorf("publish change: %w", err)
	}
	return nil
}

// Subscribe listens on the user's channel until ctx is done. The
// subscription is confirmed before returning so no later publish is missed.
func (n *RedisNotifier) Subscribe(ctx context.Context, userID uuid.UUID) (<-chan Change, error) {
	pubsub := n.client.Subscribe(ctx, n.channel(userID))
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("subscribe to changes: %w", err)
	}

	out := make(chan Change, subscriberBuffer)
	go func() {
		defer close(out)
		defer pubsub.Close()

		messages := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-messages:
				if !ok {
					return
				}
				var change Change
				if err := json.Unmarshal([]byte(msg.Payload), &change); err != nil {
					continue
				}
				select {
				case out <- change:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, nil
}

// Ping checks if Redis is reachable
func (n *RedisNotifier) Ping(ctx context.Context) error {
	return n.client.Ping(ctx).Err()
}

// Close closes the Redis connection
func (n *RedisNotifier) Close() error {
	return n.client.Close()
}
