// Package dispatch turns one job into remote transform calls and reduces their
// results into at most one stored artifact per stage.
//
// Split-scale jobs cut the image into two halves, scale both concurrently on
// separate workers and stitch them back together. Crop-then-blur jobs crop on
// one worker, store the crop, then blur it on another and attach the blurred
// image to the same artifact. Dispatch never returns an error: every outcome is
// described by the returned Report so the event source can always acknowledge.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/dunamismax/pixelsplit/internal/domain"
	"github.com/dunamismax/pixelsplit/internal/imaging"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

// Scaler resamples one half of a split-scale job.
type Scaler interface {
	Scale(ctx context.Context, req domain.ScaleRequest) domain.ProcessingResult
}

// Cropper extracts the requested region in stage one.
type Cropper interface {
	Crop(ctx context.Context, req domain.CropRequest) domain.ProcessingResult
}

// Blurrer blurs the cropped image in stage two.
type Blurrer interface {
	Blur(ctx context.Context, req domain.BlurRequest) domain.ProcessingResult
}

// ArtifactStore persists the processed image and any related images.
type ArtifactStore interface {
	SaveAsBlob(ctx context.Context, original, processed []byte, format string) (int64, error)
	AddRelatedArtifact(ctx context.Context, id int64, related []byte) error
}

// Notifier tells the application an artifact is available.
type Notifier interface {
	Notify(ctx context.Context, uploadID string, artifactID int64) error
}

// Services groups the remote roles. The two scalers must be distinct workers.
type Services struct {
	ScaleLeft  Scaler
	ScaleRight Scaler
	Crop       Cropper
	Blur       Blurrer
}

// Dispatcher runs jobs in either mode. It holds no per-job state and is safe
// for concurrent use.
type Dispatcher struct {
	logger   *log.Logger
	services Services
	store    ArtifactStore
	notifier Notifier
	metrics  *metrics
	tracer   trace.Tracer
}

// New checks that every role and collaborator is set.
func New(logger *log.Logger, services Services, store ArtifactStore, notifier Notifier) (*Dispatcher, error) {
	if services.ScaleLeft == nil || services.ScaleRight == nil || services.Crop == nil || services.Blur == nil {
		return nil, errors.New("all four remote services are required")
	}
	if store == nil {
		return nil, errors.New("artifact store is required")
	}
	if notifier == nil {
		return nil, errors.New("notifier is required")
	}

	return &Dispatcher{
		logger:   logger,
		services: services,
		store:    store,
		notifier: notifier,
		metrics:  newMetrics(),
		tracer:   otel.Tracer("pixelsplit/dispatch"),
	}, nil
}

// MetricsHandler serves the dispatcher registry.
func (d *Dispatcher) MetricsHandler() http.Handler {
	return d.metrics.Handler()
}

// Registry lets the event source adapters publish their metrics next to the
// dispatcher's own.
func (d *Dispatcher) Registry() *prometheus.Registry {
	return d.metrics.registry
}

// Report describes how far a job got.
type Report struct {
	UploadID      string
	Mode          domain.Mode
	Status        string
	ArtifactID    int64
	Persisted     bool
	Notifications int
	Err           error
	StageTwoErr   error
	Duration      time.Duration
}

func (r Report) Succeeded() bool {
	return r.Status == domain.JobStatusSucceeded
}

// Dispatch runs one job to completion. It never panics or returns an error;
// the outcome is in the report.
func (d *Dispatcher) Dispatch(ctx context.Context, job domain.JobDescriptor) (report Report) {
	startedAt := time.Now()
	report = Report{UploadID: job.UploadID, Status: domain.JobStatusFailed}

	ctx, span := d.tracer.Start(ctx, "dispatch.job", trace.WithSpanKind(trace.SpanKindInternal))
	span.SetAttributes(
		attribute.String("pixelsplit.upload_id", job.UploadID),
		attribute.Int("pixelsplit.payload_bytes", len(job.Payload)),
	)
	d.metrics.activeJobs.Inc()

	defer func() {
		if r := recover(); r != nil {
			report.Status = domain.JobStatusFailed
			report.Err = fmt.Errorf("dispatch panic: %v", r)
		}
		report.Duration = time.Since(startedAt)
		d.metrics.activeJobs.Dec()
		d.metrics.jobsTotal.WithLabelValues(modeLabel(report.Mode), report.Status).Inc()
		d.metrics.jobDuration.WithLabelValues(modeLabel(report.Mode)).Observe(report.Duration.Seconds())

		span.SetAttributes(
			attribute.String("pixelsplit.mode", string(report.Mode)),
			attribute.String("pixelsplit.status", report.Status),
		)
		switch {
		case report.Err != nil:
			span.RecordError(report.Err)
			span.SetStatus(codes.Error, report.Err.Error())
			d.logger.Printf("job failed upload_id=%s mode=%s fault=%s err=%v took=%s",
				report.UploadID, report.Mode, domain.KindOf(report.Err), report.Err, report.Duration)
		case report.StageTwoErr != nil:
			span.SetStatus(codes.Ok, "stage two failed")
			d.logger.Printf("job partial upload_id=%s mode=%s artifact_id=%d stage_two_err=%v took=%s",
				report.UploadID, report.Mode, report.ArtifactID, report.StageTwoErr, report.Duration)
		default:
			span.SetStatus(codes.Ok, "processed")
			d.logger.Printf("job done upload_id=%s mode=%s artifact_id=%d notifications=%d took=%s",
				report.UploadID, report.Mode, report.ArtifactID, report.Notifications, report.Duration)
		}
		span.End()
	}()

	if err := job.Validate(); err != nil {
		if mode, modeErr := job.Mode(); modeErr == nil {
			report.Mode = mode
		}
		report.Err = err
		return report
	}
	mode, _ := job.Mode()
	report.Mode = mode

	d.logger.Printf("job start upload_id=%s mode=%s bytes=%d format=%s", job.UploadID, mode, len(job.Payload), job.Format)

	switch mode {
	case domain.ModeSplitScale:
		d.splitScale(ctx, job, &report)
	case domain.ModeCropThenBlur:
		d.cropThenBlur(ctx, job, &report)
	}
	return report
}

func (d *Dispatcher) splitScale(ctx context.Context, job domain.JobDescriptor, report *Report) {
	format, err := imaging.ResolveFormat(job.Format, job.Payload)
	if err != nil {
		report.Err = err
		return
	}
	source, err := imaging.Decode(job.Payload, format)
	if err != nil {
		report.Err = err
		return
	}
	left, right, err := imaging.SplitHalves(source)
	if err != nil {
		report.Err = err
		return
	}
	leftBytes, err := imaging.Encode(left, format)
	if err != nil {
		report.Err = fmt.Errorf("encode left half: %w", err)
		return
	}
	rightBytes, err := imaging.Encode(right, format)
	if err != nil {
		report.Err = fmt.Errorf("encode right half: %w", err)
		return
	}

	zoom := *job.ZoomFactor
	var leftResult, rightResult domain.ProcessingResult

	// Calls report through their result, so Wait is a pure barrier.
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(2)
	g.Go(func() error {
		leftResult = d.callScale(gctx, "left", d.services.ScaleLeft, domain.ScaleRequest{
			Image: leftBytes, Format: format, ZoomFactor: zoom, UploadID: job.UploadID,
		})
		return nil
	})
	g.Go(func() error {
		rightResult = d.callScale(gctx, "right", d.services.ScaleRight, domain.ScaleRequest{
			Image: rightBytes, Format: format, ZoomFactor: zoom, UploadID: job.UploadID,
		})
		return nil
	})
	_ = g.Wait()

	for _, result := range []domain.ProcessingResult{leftResult, rightResult} {
		if !result.IsSuccess() {
			report.Err = result.Err()
			return
		}
	}

	scaledLeft, err := imaging.Decode(leftResult.Image, format)
	if err != nil {
		report.Err = fmt.Errorf("decode scaled left half: %w", err)
		return
	}
	scaledRight, err := imaging.Decode(rightResult.Image, format)
	if err != nil {
		report.Err = fmt.Errorf("decode scaled right half: %w", err)
		return
	}
	composed, err := imaging.Encode(imaging.Compose(scaledLeft, scaledRight), format)
	if err != nil {
		report.Err = fmt.Errorf("encode composed image: %w", err)
		return
	}

	artifactID, err := d.store.SaveAsBlob(ctx, job.Payload, composed, format)
	if err != nil {
		report.Err = fmt.Errorf("save artifact: %w", err)
		return
	}
	d.metrics.artifactsPersisted.WithLabelValues("processed").Inc()
	report.ArtifactID = artifactID
	report.Persisted = true
	report.Status = domain.JobStatusSucceeded
	d.notify(ctx, report)
}

func (d *Dispatcher) cropThenBlur(ctx context.Context, job domain.JobDescriptor, report *Report) {
	format, err := imaging.ResolveFormat(job.Format, job.Payload)
	if err != nil {
		report.Err = err
		return
	}
	width, height, err := imaging.Dimensions(job.Payload, format)
	if err != nil {
		report.Err = err
		return
	}
	bounds, err := imaging.ClampRegion(width, height, *job.Region)
	if err != nil {
		report.Err = err
		return
	}
	region := domain.Region{X: bounds.Min.X, Y: bounds.Min.Y, W: bounds.Dx(), H: bounds.Dy()}

	cropped := d.call(ctx, domain.ServiceCrop, "crop", func(ctx context.Context) domain.ProcessingResult {
		return d.services.Crop.Crop(ctx, domain.CropRequest{
			Image: job.Payload, Format: format, Region: region, UploadID: job.UploadID,
		})
	})
	if !cropped.IsSuccess() {
		report.Err = cropped.Err()
		return
	}

	artifactID, err := d.store.SaveAsBlob(ctx, job.Payload, cropped.Image, format)
	if err != nil {
		report.Err = fmt.Errorf("save artifact: %w", err)
		return
	}
	d.metrics.artifactsPersisted.WithLabelValues("processed").Inc()
	report.ArtifactID = artifactID
	report.Persisted = true
	report.Status = domain.JobStatusSucceeded
	d.notify(ctx, report)

	blurred := d.call(ctx, domain.ServiceBlur, "blur", func(ctx context.Context) domain.ProcessingResult {
		return d.services.Blur.Blur(ctx, domain.BlurRequest{
			Image: cropped.Image, Format: format, UploadID: job.UploadID,
		})
	})
	if !blurred.IsSuccess() {
		report.Status = domain.JobStatusPartial
		report.StageTwoErr = blurred.Err()
		return
	}

	if err := d.store.AddRelatedArtifact(ctx, artifactID, blurred.Image); err != nil {
		report.Status = domain.JobStatusPartial
		report.StageTwoErr = fmt.Errorf("save related artifact: %w", err)
		return
	}
	d.metrics.artifactsPersisted.WithLabelValues("related").Inc()
	d.notify(ctx, report)
}

func (d *Dispatcher) callScale(ctx context.Context, side string, scaler Scaler, req domain.ScaleRequest) domain.ProcessingResult {
	return d.call(ctx, domain.ServiceScale, "scale_"+side, func(ctx context.Context) domain.ProcessingResult {
		return scaler.Scale(ctx, req)
	})
}

func (d *Dispatcher) call(ctx context.Context, service, role string, fn func(context.Context) domain.ProcessingResult) domain.ProcessingResult {
	started := time.Now()
	result := fn(ctx)
	d.metrics.remoteCallDuration.WithLabelValues(role).Observe(time.Since(started).Seconds())
	if !result.IsSuccess() {
		d.metrics.remoteFailures.WithLabelValues(service, string(result.Fault)).Inc()
		d.logger.Printf("remote call failed role=%s service=%s upload_id=%s fault=%s err=%s",
			role, service, result.UploadID, result.Fault, result.ErrorMessage)
	}
	return result
}

// notify is fire-and-forget: a failed delivery is logged and counted only.
func (d *Dispatcher) notify(ctx context.Context, report *Report) {
	report.Notifications++
	if err := d.notifier.Notify(ctx, report.UploadID, report.ArtifactID); err != nil {
		d.metrics.notifications.WithLabelValues("failed").Inc()
		d.logger.Printf("notify failed upload_id=%s artifact_id=%d err=%v", report.UploadID, report.ArtifactID, err)
		return
	}
	d.metrics.notifications.WithLabelValues("sent").Inc()
}

func modeLabel(mode domain.Mode) string {
	if mode == "" {
		return "unknown"
	}
	return string(mode)
}
