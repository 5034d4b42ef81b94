// Package notify announces stored artifacts to the outside world.
package notify

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/dunamismax/pixelsplit/internal/config"
	"github.com/redis/go-redis/v9"
)

const EventArtifactAvailable = "artifact.available"

// Event is the body every sink delivers.
type Event struct {
	Event      string    `json:"event"`
	UploadID   string    `json:"upload_id"`
	ArtifactID int64     `json:"artifact_id"`
	At         time.Time `json:"at"`
}

func newEvent(uploadID string, artifactID int64) Event {
	return Event{
		Event:      EventArtifactAvailable,
		UploadID:   uploadID,
		ArtifactID: artifactID,
		At:         time.Now().UTC(),
	}
}

// Notifier is satisfied by every sink in this package.
type Notifier interface {
	Notify(ctx context.Context, uploadID string, artifactID int64) error
}

// LogNotifier only writes the event to the process log.
type LogNotifier struct {
	logger *log.Logger
}

func NewLogNotifier(logger *log.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Notify(_ context.Context, uploadID string, artifactID int64) error {
	n.logger.Printf("event=%s upload_id=%s artifact_id=%d", EventArtifactAvailable, uploadID, artifactID)
	return nil
}

// New builds the sink selected by cfg.Sink. The returned close func releases
// any connection the sink holds.
func New(cfg config.NotifyConfig, queueCfg config.QueueConfig, logger *log.Logger) (Notifier, func() error, error) {
	noop := func() error { return nil }

	switch cfg.Sink {
	case "", config.NotifySinkLog:
		return NewLogNotifier(logger), noop, nil
	case config.NotifySinkWebhook:
		if cfg.WebhookURL == "" {
			return nil, nil, fmt.Errorf("webhook sink requires NOTIFY_WEBHOOK_URL")
		}
		return NewWebhookNotifier(cfg.WebhookURL, WebhookConfig{
			SigningSecret:  cfg.SigningSecret,
			Timeout:        cfg.Timeout,
			MaxAttempts:    cfg.MaxAttempts,
			InitialBackoff: cfg.InitialBackoff,
			MaxBackoff:     cfg.MaxBackoff,
		}), noop, nil
	case config.NotifySinkRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     queueCfg.RedisAddr,
			Password: queueCfg.RedisPassword,
			DB:       queueCfg.RedisDB,
		})
		return NewRedisNotifier(client, cfg.RedisChannel), client.Close, nil
	default:
		return nil, nil, fmt.Errorf("unsupported notify sink: %s", cfg.Sink)
	}
}
