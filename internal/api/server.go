package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dunamismax/pixelsplit/internal/domain"
	"github.com/dunamismax/pixelsplit/internal/id"
	"github.com/dunamismax/pixelsplit/internal/imaging"
	"github.com/dunamismax/pixelsplit/internal/queue"
	"github.com/dunamismax/pixelsplit/internal/store"
	"github.com/hibiken/asynq"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

const (
	maxUploadBytes      = 32 << 20
	multipartMemory     = 8 << 20
	defaultClientHeader = "X-Client-ID"
)

type Server struct {
	logger                *log.Logger
	queueClient           queueEnqueuer
	artifacts             artifactReader
	links                 linkSigner
	linkTTL               time.Duration
	rateLimiter           RateLimiter
	rateLimitUserIDHeader string
	metrics               *metrics
	tracer                trace.Tracer
	mux                   *http.ServeMux
}

type queueEnqueuer interface {
	EnqueueTransformImage(ctx context.Context, payload queue.TransformImagePayload) (*asynq.TaskInfo, error)
}

type artifactReader interface {
	Get(ctx context.Context, id int64) (domain.Artifact, error)
}

type linkSigner interface {
	PresignGet(ctx context.Context, objectKey string, ttl time.Duration) (string, error)
}

type Option func(*Server)

// WithArtifacts enables GET /v1/artifacts/{id}.
func WithArtifacts(artifacts artifactReader) Option {
	return func(s *Server) {
		s.artifacts = artifacts
	}
}

// WithDownloadLinks adds presigned object URLs to artifact responses.
func WithDownloadLinks(signer linkSigner, ttl time.Duration) Option {
	return func(s *Server) {
		s.links = signer
		s.linkTTL = ttl
	}
}

func WithRateLimiter(limiter RateLimiter, userIDHeader string) Option {
	return func(s *Server) {
		s.rateLimiter = limiter
		if strings.TrimSpace(userIDHeader) != "" {
			s.rateLimitUserIDHeader = userIDHeader
		}
	}
}

func NewServer(logger *log.Logger, queueClient queueEnqueuer, opts ...Option) *Server {
	s := &Server{
		logger:                logger,
		queueClient:           queueClient,
		rateLimitUserIDHeader: defaultClientHeader,
		metrics:               newMetrics(),
		tracer:                otel.Tracer("pixelsplit/api"),
		mux:                   http.NewServeMux(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.routes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.withTracing(s.metrics.withHTTPMetrics(s.withRateLimit(s.mux)))
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /healthz", s.handleHealthz)
	s.mux.Handle("GET /metrics", s.metrics.metricsHandler())
	s.mux.HandleFunc("POST /v1/jobs", s.handleCreateJob)
	if s.artifacts != nil {
		s.mux.HandleFunc("GET /v1/artifacts/{id}", s.handleGetArtifact)
	}
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleCreateJob(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, map[string]string{"error": "upload exceeds 32 MiB"})
			return
		}
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": fmt.Sprintf("invalid multipart body: %v", err)})
		return
	}
	defer r.MultipartForm.RemoveAll()

	job, err := jobFromForm(r.MultipartForm)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	if err := job.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	format, err := imaging.ResolveFormat(job.Format, job.Payload)
	if err != nil {
		writeJSON(w, http.StatusUnsupportedMediaType, map[string]string{"error": err.Error()})
		return
	}
	job.Format = format
	mode, _ := job.Mode()

	taskInfo, err := s.queueClient.EnqueueTransformImage(r.Context(), queue.PayloadFromJob(job))
	if errors.Is(err, queue.ErrDuplicateUpload) {
		writeJSON(w, http.StatusConflict, map[string]string{"error": "upload_id is already queued"})
		return
	}
	if err != nil {
		s.logger.Printf("enqueue failed upload_id=%s err=%v", job.UploadID, err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to enqueue job"})
		return
	}
	s.metrics.jobsEnqueued.WithLabelValues(taskInfo.Queue, string(mode)).Inc()
	s.metrics.uploadBytes.Observe(float64(len(job.Payload)))
	s.logger.Printf("job enqueued upload_id=%s mode=%s bytes=%d task_id=%s", job.UploadID, mode, len(job.Payload), taskInfo.ID)

	writeJSON(w, http.StatusAccepted, map[string]any{
		"upload_id": job.UploadID,
		"mode":      mode,
		"format":    format,
		"queue":     taskInfo.Queue,
		"task_id":   taskInfo.ID,
		"state":     taskInfo.State.String(),
	})
}

func (s *Server) handleGetArtifact(w http.ResponseWriter, r *http.Request) {
	artifactID, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || artifactID <= 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "artifact id must be a positive integer"})
		return
	}

	artifact, err := s.artifacts.Get(r.Context(), artifactID)
	if err != nil {
		if errors.Is(err, store.ErrArtifactNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "artifact not found"})
			return
		}
		s.logger.Printf("artifact lookup failed artifact_id=%d err=%v", artifactID, err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to load artifact"})
		return
	}
	if s.links == nil {
		writeJSON(w, http.StatusOK, artifact)
		return
	}

	links, err := s.downloadLinks(r.Context(), artifact)
	if err != nil {
		s.logger.Printf("presign failed artifact_id=%d err=%v", artifactID, err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to sign download links"})
		return
	}
	writeJSON(w, http.StatusOK, artifactResponse{Artifact: artifact, Links: links})
}

type artifactLinks struct {
	Original  string   `json:"original"`
	Processed string   `json:"processed"`
	Related   []string `json:"related,omitempty"`
}

type artifactResponse struct {
	domain.Artifact
	Links artifactLinks `json:"links"`
}

func (s *Server) downloadLinks(ctx context.Context, artifact domain.Artifact) (artifactLinks, error) {
	var links artifactLinks
	var err error
	if links.Original, err = s.links.PresignGet(ctx, artifact.OriginalKey, s.linkTTL); err != nil {
		return artifactLinks{}, err
	}
	if links.Processed, err = s.links.PresignGet(ctx, artifact.ProcessedKey, s.linkTTL); err != nil {
		return artifactLinks{}, err
	}
	for _, key := range artifact.Related {
		link, err := s.links.PresignGet(ctx, key, s.linkTTL)
		if err != nil {
			return artifactLinks{}, err
		}
		links.Related = append(links.Related, link)
	}
	return links, nil
}

// jobFromForm reads the image part and the mode parameters. A form with both
// zoom and region fields is passed through so validation can reject it.
func jobFromForm(form *multipart.Form) (domain.JobDescriptor, error) {
	files := form.File["image"]
	if len(files) != 1 {
		return domain.JobDescriptor{}, errors.New("exactly one image file is required")
	}
	payload, err := readPart(files[0])
	if err != nil {
		return domain.JobDescriptor{}, err
	}

	job := domain.JobDescriptor{
		UploadID: formValue(form, "upload_id"),
		Payload:  payload,
		Format:   formValue(form, "format"),
	}
	if job.UploadID == "" {
		job.UploadID = id.New()
	}

	if raw := formValue(form, "zoom"); raw != "" {
		zoom, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return domain.JobDescriptor{}, fmt.Errorf("zoom must be a number: %q", raw)
		}
		job.ZoomFactor = &zoom
	}

	fields := []string{"x", "y", "width", "height"}
	values := make([]int, len(fields))
	present := 0
	for i, name := range fields {
		raw := formValue(form, name)
		if raw == "" {
			continue
		}
		v, err := strconv.Atoi(raw)
		if err != nil {
			return domain.JobDescriptor{}, fmt.Errorf("%s must be an integer: %q", name, raw)
		}
		values[i] = v
		present++
	}
	switch present {
	case 0:
	case len(fields):
		job.Region = &domain.Region{X: values[0], Y: values[1], W: values[2], H: values[3]}
	default:
		return domain.JobDescriptor{}, errors.New("crop jobs need x, y, width and height")
	}

	return job, nil
}

func readPart(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, fmt.Errorf("open image part: %w", err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("read image part: %w", err)
	}
	return data, nil
}

func formValue(form *multipart.Form, key string) string {
	if values := form.Value[key]; len(values) > 0 {
		return strings.TrimSpace(values[0])
	}
	return ""
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
