package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
)

const (
	taskTimeout = 5 * time.Minute
	// Finished tasks stay visible for inspection and keep their upload id
	// reserved for this long.
	taskRetention = 24 * time.Hour
)

// ErrDuplicateUpload is returned when a task for the same upload id is still
// queued or retained.
var ErrDuplicateUpload = errors.New("upload already enqueued")

type Client struct {
	client *asynq.Client
	queue  string
}

func NewClient(redisOpt asynq.RedisClientOpt, queueName string) *Client {
	return &Client{client: asynq.NewClient(redisOpt), queue: queueName}
}

// EnqueueTransformImage submits a job for exactly one attempt. Failed jobs are
// reported, never redelivered.
func (c *Client) EnqueueTransformImage(ctx context.Context, payload TransformImagePayload) (*asynq.TaskInfo, error) {
	task, err := NewTransformImageTask(payload)
	if err != nil {
		return nil, err
	}

	info, err := c.client.EnqueueContext(ctx, task, enqueueOptions(c.queue, payload.UploadID)...)
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		return nil, fmt.Errorf("%w: upload_id=%s", ErrDuplicateUpload, payload.UploadID)
	}
	if err != nil {
		return nil, fmt.Errorf("enqueue %s: %w", TypeTransformImage, err)
	}
	return info, nil
}

func enqueueOptions(queueName, uploadID string) []asynq.Option {
	return []asynq.Option{
		asynq.Queue(queueName),
		asynq.TaskID(TypeTransformImage + ":" + uploadID),
		asynq.MaxRetry(0),
		asynq.Timeout(taskTimeout),
		asynq.Retention(taskRetention),
	}
}

func (c *Client) Close() error {
	return c.client.Close()
}
