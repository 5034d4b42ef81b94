package queue

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/dunamismax/pixelsplit/internal/domain"
	"github.com/hibiken/asynq"
)

const TypeTransformImage = "image:transform"

// TransformImagePayload carries the image inline. Exactly one of ZoomFactor and
// Region is set.
type TransformImagePayload struct {
	UploadID    string         `json:"upload_id"`
	Image       []byte         `json:"image"`
	Format      string         `json:"format,omitempty"`
	ZoomFactor  *float64       `json:"zoom_factor,omitempty"`
	Region      *domain.Region `json:"region,omitempty"`
	RequestedAt time.Time      `json:"requested_at"`
}

func PayloadFromJob(job domain.JobDescriptor) TransformImagePayload {
	return TransformImagePayload{
		UploadID:    job.UploadID,
		Image:       job.Payload,
		Format:      job.Format,
		ZoomFactor:  job.ZoomFactor,
		Region:      job.Region,
		RequestedAt: time.Now().UTC(),
	}
}

func (p TransformImagePayload) Job() domain.JobDescriptor {
	return domain.JobDescriptor{
		UploadID:   p.UploadID,
		Payload:    p.Image,
		Format:     p.Format,
		ZoomFactor: p.ZoomFactor,
		Region:     p.Region,
	}
}

func NewTransformImageTask(payload TransformImagePayload) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal transform payload: %w", err)
	}
	return asynq.NewTask(TypeTransformImage, body), nil
}

func ParseTransformImagePayload(task *asynq.Task) (TransformImagePayload, error) {
	var payload TransformImagePayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return TransformImagePayload{}, fmt.Errorf("unmarshal transform payload: %w", err)
	}
	if payload.UploadID == "" {
		return TransformImagePayload{}, fmt.Errorf("transform payload has no upload_id")
	}
	return payload, nil
}
