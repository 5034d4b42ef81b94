package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

type publisher interface {
	Publish(ctx context.Context, channel string, message any) *redis.IntCmd
}

// RedisNotifier publishes each event on "<prefix>:<upload_id>" so a client can
// subscribe to exactly its own uploads.
type RedisNotifier struct {
	client publisher
	prefix string
}

func NewRedisNotifier(client publisher, prefix string) *RedisNotifier {
	if prefix == "" {
		prefix = "pixelsplit:uploads"
	}
	return &RedisNotifier{client: client, prefix: prefix}
}

func (n *RedisNotifier) Channel(uploadID string) string {
	return n.prefix + ":" + uploadID
}

func (n *RedisNotifier) Notify(ctx context.Context, uploadID string, artifactID int64) error {
	body, err := json.Marshal(newEvent(uploadID, artifactID))
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}
	if err := n.client.Publish(ctx, n.Channel(uploadID), body).Err(); err != nil {
		return fmt.Errorf("publish notification: %w", err)
	}
	return nil
}
