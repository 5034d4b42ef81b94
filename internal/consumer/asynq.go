package consumer

import (
	"context"
	"fmt"
	"log"

	"github.com/dunamismax/pixelsplit/internal/config"
	"github.com/dunamismax/pixelsplit/internal/queue"
	"github.com/hibiken/asynq"
)

type AsynqServer struct {
	logger  *log.Logger
	server  *asynq.Server
	handler *Handler
}

func NewAsynqServer(logger *log.Logger, queueCfg config.QueueConfig, workerCfg config.WorkerConfig, handler *Handler) *AsynqServer {
	return &AsynqServer{
		logger: logger,
		server: asynq.NewServer(
			queueCfg.RedisClientOpt(),
			asynq.Config{
				Concurrency: workerCfg.Concurrency,
				Queues: map[string]int{
					queueCfg.Name: 1,
				},
				LogLevel: asynq.InfoLevel,
				ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
					logger.Printf("task dropped type=%s err=%v", task.Type(), err)
				}),
			},
		),
		handler: handler,
	}
}

func (s *AsynqServer) Run() error {
	mux := asynq.NewServeMux()
	mux.HandleFunc(queue.TypeTransformImage, s.handler.HandleTransformImage)
	return s.server.Run(mux)
}

func (s *AsynqServer) Shutdown() {
	s.server.Shutdown()
}

// HandleTransformImage returns an error for undecodable tasks, marked
// SkipRetry, and for tasks that never got a slot. Job failures are logged by
// the dispatcher and the task completes normally.
func (h *Handler) HandleTransformImage(ctx context.Context, task *asynq.Task) error {
	payload, err := queue.ParseTransformImagePayload(task)
	if err != nil {
		h.rejected(SourceAsynq, outcomeMalformed)
		return fmt.Errorf("parse payload: %v: %w", err, asynq.SkipRetry)
	}

	report, err := h.Handle(ctx, SourceAsynq, payload.Job())
	if err != nil {
		return err
	}
	h.logger.Printf("task finished upload_id=%s mode=%s status=%s", report.UploadID, report.Mode, report.Status)
	return nil
}
