// Package transform hosts the remote transform services behind a small
// JSON-over-HTTP protocol: POST /rpc/{service} with a service specific request
// body, answered by a ProcessingResult.
package transform

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/dunamismax/pixelsplit/internal/domain"
	"github.com/dunamismax/pixelsplit/internal/imaging"
	"github.com/gorilla/mux"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

const maxRequestBytes = 96 << 20

type Server struct {
	logger   *log.Logger
	tracer   trace.Tracer
	metrics  *metrics
	router   *mux.Router
	handlers map[string]serviceHandler
}

type serviceHandler func(ctx context.Context, body io.Reader) (domain.ProcessingResult, int, error)

// NewServer registers the named services. Unknown names are rejected so a
// misconfigured process fails at start instead of answering 404 forever.
func NewServer(logger *log.Logger, services []string, resampler imaging.Resampler) (*Server, error) {
	if len(services) == 0 {
		return nil, errors.New("at least one transform service is required")
	}

	s := &Server{
		logger:   logger,
		tracer:   otel.Tracer("pixelsplit/transform"),
		metrics:  newMetrics(),
		router:   mux.NewRouter(),
		handlers: make(map[string]serviceHandler, len(services)),
	}

	for _, name := range services {
		switch name {
		case domain.ServiceScale:
			worker := NewScaleWorker(logger, resampler)
			s.handlers[name] = func(ctx context.Context, body io.Reader) (domain.ProcessingResult, int, error) {
				var req domain.ScaleRequest
				if err := decodeRequestBody(body, &req); err != nil {
					return domain.ProcessingResult{}, len(req.Image), err
				}
				return worker.ProcessIt(ctx, req), len(req.Image), nil
			}
		case domain.ServiceCrop:
			worker := NewCropWorker(logger)
			s.handlers[name] = func(ctx context.Context, body io.Reader) (domain.ProcessingResult, int, error) {
				var req domain.CropRequest
				if err := decodeRequestBody(body, &req); err != nil {
					return domain.ProcessingResult{}, len(req.Image), err
				}
				return worker.ProcessIt(ctx, req), len(req.Image), nil
			}
		case domain.ServiceBlur:
			worker := NewBlurWorker(logger)
			s.handlers[name] = func(ctx context.Context, body io.Reader) (domain.ProcessingResult, int, error) {
				var req domain.BlurRequest
				if err := decodeRequestBody(body, &req); err != nil {
					return domain.ProcessingResult{}, len(req.Image), err
				}
				return worker.ProcessIt(ctx, req), len(req.Image), nil
			}
		default:
			return nil, fmt.Errorf("unknown transform service %q", name)
		}
	}

	s.routes()
	return s, nil
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() {
	s.router.HandleFunc("/healthz", s.handleHealthz).Methods(http.MethodGet)
	s.router.Handle("/metrics", s.metrics.Handler()).Methods(http.MethodGet)
	s.router.HandleFunc("/rpc/{service}", s.handleCall).Methods(http.MethodPost)
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	services := make([]string, 0, len(s.handlers))
	for name := range s.handlers {
		services = append(services, name)
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "services": services})
}

func (s *Server) handleCall(w http.ResponseWriter, r *http.Request) {
	service := mux.Vars(r)["service"]
	handler, ok := s.handlers[service]
	if !ok {
		s.logger.Printf("call rejected service=%s err=%v", service, domain.ErrServiceNotRegistered)
		writeJSON(w, http.StatusNotFound, map[string]string{"error": fmt.Sprintf("%s: %s", domain.ErrServiceNotRegistered, service)})
		return
	}

	ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))
	ctx, span := s.tracer.Start(ctx, "transform."+service, trace.WithSpanKind(trace.SpanKindServer))
	defer span.End()

	started := time.Now()
	result, bytesIn, err := handler(ctx, http.MaxBytesReader(w, r.Body, maxRequestBytes))
	s.metrics.callDuration.WithLabelValues(service).Observe(time.Since(started).Seconds())
	s.metrics.bytesIn.WithLabelValues(service).Add(float64(bytesIn))
	if err != nil {
		s.metrics.callsTotal.WithLabelValues(service, "bad_request").Inc()
		span.RecordError(err)
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	span.SetAttributes(
		attribute.String("pixelsplit.upload_id", result.UploadID),
		attribute.String("pixelsplit.result", result.Status),
	)
	if !result.IsSuccess() {
		span.SetAttributes(attribute.String("pixelsplit.fault", string(result.Fault)))
	}
	s.metrics.callsTotal.WithLabelValues(service, result.Status).Inc()
	s.metrics.bytesOut.WithLabelValues(service).Add(float64(len(result.Image)))
	writeJSON(w, http.StatusOK, result)
}

func decodeRequestBody(body io.Reader, into any) error {
	decoder := json.NewDecoder(body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(into); err != nil {
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	if err := decoder.Decode(&struct{}{}); err != io.EOF {
		return errors.New("invalid JSON body: multiple JSON values are not allowed")
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
