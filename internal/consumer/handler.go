// Package consumer adapts inbound event sources to the job dispatcher.
//
// Two sources are supported: asynq tasks enqueued by the upload API and raw
// AMQP deliveries whose body is the image and whose headers carry the job
// parameters. Both acknowledge every job that reached the dispatcher exactly
// once regardless of outcome. A job given up before it got a slot is handed
// back to its source.
package consumer

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/dunamismax/pixelsplit/internal/dispatch"
	"github.com/dunamismax/pixelsplit/internal/domain"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	SourceAsynq = "asynq"
	SourceAMQP  = "amqp"

	outcomeMalformed = "malformed"
	outcomeControl   = "control"
	outcomeDeferred  = "deferred"
)

// ErrNotStarted is returned when the context ends while a job still waits
// for a slot. The dispatcher never saw the job.
var ErrNotStarted = errors.New("job not started")

type Dispatcher interface {
	Dispatch(ctx context.Context, job domain.JobDescriptor) dispatch.Report
}

// Handler bounds how many jobs run at once across all sources.
type Handler struct {
	logger     *log.Logger
	dispatcher Dispatcher
	sem        chan struct{}
	metrics    *metrics
	tracer     trace.Tracer
}

func NewHandler(logger *log.Logger, dispatcher Dispatcher, maxActiveJobs int, reg prometheus.Registerer) *Handler {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	return &Handler{
		logger:     logger,
		dispatcher: dispatcher,
		sem:        make(chan struct{}, max(1, maxActiveJobs)),
		metrics:    newMetrics(reg),
		tracer:     otel.Tracer("pixelsplit/consumer"),
	}
}

// Handle runs one job once a slot is free. The error is non-nil only when the
// job was never dispatched; job failures travel in the report.
func (h *Handler) Handle(ctx context.Context, source string, job domain.JobDescriptor) (dispatch.Report, error) {
	ctx, span := h.tracer.Start(ctx, "consumer."+source, trace.WithSpanKind(trace.SpanKindConsumer))
	span.SetAttributes(
		attribute.String("messaging.system", source),
		attribute.String("pixelsplit.upload_id", job.UploadID),
	)
	defer span.End()

	select {
	case h.sem <- struct{}{}:
	case <-ctx.Done():
		h.rejected(source, outcomeDeferred)
		span.SetAttributes(attribute.String("pixelsplit.status", outcomeDeferred))
		return dispatch.Report{UploadID: job.UploadID}, fmt.Errorf("%w: upload_id=%s: %w", ErrNotStarted, job.UploadID, ctx.Err())
	}
	h.metrics.inFlight.Inc()
	defer func() {
		<-h.sem
		h.metrics.inFlight.Dec()
	}()

	report := h.dispatcher.Dispatch(ctx, job)
	h.metrics.eventsTotal.WithLabelValues(source, report.Status).Inc()
	span.SetAttributes(attribute.String("pixelsplit.status", report.Status))
	return report, nil
}

func (h *Handler) rejected(source, outcome string) {
	h.metrics.eventsTotal.WithLabelValues(source, outcome).Inc()
}
