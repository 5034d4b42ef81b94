package queue

import (
	"bytes"
	"testing"

	"github.com/dunamismax/pixelsplit/internal/domain"
	"github.com/hibiken/asynq"
)

func TestTransformImageTaskCarriesJob(t *testing.T) {
	zoom := 2.5
	job := domain.JobDescriptor{
		UploadID:   "upload-123",
		Payload:    []byte{0x89, 'P', 'N', 'G', 0, 1, 2},
		Format:     "png",
		ZoomFactor: &zoom,
	}

	task, err := NewTransformImageTask(PayloadFromJob(job))
	if err != nil {
		t.Fatalf("NewTransformImageTask returned error: %v", err)
	}
	if task.Type() != TypeTransformImage {
		t.Fatalf("expected task type %q, got %q", TypeTransformImage, task.Type())
	}

	parsed, err := ParseTransformImagePayload(task)
	if err != nil {
		t.Fatalf("ParseTransformImagePayload returned error: %v", err)
	}

	got := parsed.Job()
	if got.UploadID != job.UploadID || got.Format != job.Format {
		t.Fatalf("expected %s/%s, got %s/%s", job.UploadID, job.Format, got.UploadID, got.Format)
	}
	if !bytes.Equal(got.Payload, job.Payload) {
		t.Fatalf("image bytes changed in transit")
	}
	if got.ZoomFactor == nil || *got.ZoomFactor != zoom || got.Region != nil {
		t.Fatalf("expected zoom-only job, got zoom=%v region=%v", got.ZoomFactor, got.Region)
	}
	if mode, err := got.Mode(); err != nil || mode != domain.ModeSplitScale {
		t.Fatalf("expected split-scale mode, got %s err=%v", mode, err)
	}
}

func TestTransformImageTaskKeepsRegion(t *testing.T) {
	job := domain.JobDescriptor{
		UploadID: "upload-456",
		Payload:  []byte("BM.."),
		Region:   &domain.Region{X: 10, Y: 10, W: 20, H: 20},
	}

	task, err := NewTransformImageTask(PayloadFromJob(job))
	if err != nil {
		t.Fatalf("NewTransformImageTask returned error: %v", err)
	}
	parsed, err := ParseTransformImagePayload(task)
	if err != nil {
		t.Fatalf("ParseTransformImagePayload returned error: %v", err)
	}
	if parsed.Region == nil || *parsed.Region != *job.Region {
		t.Fatalf("expected region %+v, got %+v", job.Region, parsed.Region)
	}
	if parsed.ZoomFactor != nil {
		t.Fatalf("expected no zoom factor, got %v", *parsed.ZoomFactor)
	}
}

func TestParseTransformImagePayloadRejectsGarbage(t *testing.T) {
	if _, err := ParseTransformImagePayload(asynq.NewTask(TypeTransformImage, []byte("{"))); err == nil {
		t.Fatalf("expected error for truncated payload")
	}
	if _, err := ParseTransformImagePayload(asynq.NewTask(TypeTransformImage, []byte(`{"image":"AA=="}`))); err == nil {
		t.Fatalf("expected error for payload without upload_id")
	}
}

func TestEnqueueOptionsPinSingleAttempt(t *testing.T) {
	opts := enqueueOptions("images", "upload-9")

	got := map[asynq.OptionType]any{}
	for _, opt := range opts {
		got[opt.Type()] = opt.Value()
	}
	if got[asynq.QueueOpt] != "images" {
		t.Fatalf("expected queue images, got %v", got[asynq.QueueOpt])
	}
	if got[asynq.TaskIDOpt] != TypeTransformImage+":upload-9" {
		t.Fatalf("expected task id keyed by upload id, got %v", got[asynq.TaskIDOpt])
	}
	if got[asynq.MaxRetryOpt] != 0 {
		t.Fatalf("expected zero retries, got %v", got[asynq.MaxRetryOpt])
	}
}
