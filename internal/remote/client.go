// Package remote calls transform services hosted by other processes.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/dunamismax/pixelsplit/internal/domain"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

const maxResponseBytes = 256 << 20

// Client is bound to one endpoint for the life of the process.
type Client struct {
	endpoint   domain.ServiceEndpoint
	url        string
	timeout    time.Duration
	httpClient *http.Client
	tracer     trace.Tracer
}

func NewClient(endpoint domain.ServiceEndpoint, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &Client{
		endpoint: endpoint,
		url:      "http://" + endpoint.Addr() + "/rpc/" + endpoint.ServiceName,
		timeout:  timeout,
		// The per-call deadline lives on the request context.
		httpClient: &http.Client{},
		tracer:     otel.Tracer("pixelsplit/remote"),
	}
}

func (c *Client) Endpoint() domain.ServiceEndpoint {
	return c.endpoint
}

func (c *Client) Scale(ctx context.Context, req domain.ScaleRequest) domain.ProcessingResult {
	return c.invoke(ctx, req.UploadID, req)
}

func (c *Client) Crop(ctx context.Context, req domain.CropRequest) domain.ProcessingResult {
	return c.invoke(ctx, req.UploadID, req)
}

func (c *Client) Blur(ctx context.Context, req domain.BlurRequest) domain.ProcessingResult {
	return c.invoke(ctx, req.UploadID, req)
}

// invoke never returns an error. Every transport problem is folded into a
// transport Failure carrying uploadID.
func (c *Client) invoke(ctx context.Context, uploadID string, payload any) domain.ProcessingResult {
	ctx, span := c.tracer.Start(ctx, "remote."+c.endpoint.ServiceName, trace.WithSpanKind(trace.SpanKindClient))
	span.SetAttributes(
		attribute.String("rpc.service", c.endpoint.ServiceName),
		attribute.String("server.address", c.endpoint.Addr()),
		attribute.String("pixelsplit.upload_id", uploadID),
	)
	defer span.End()

	result, err := c.call(ctx, uploadID, payload)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return domain.FailureFrom(uploadID, err)
	}
	if !result.IsSuccess() {
		span.SetStatus(codes.Error, result.ErrorMessage)
	}
	return result
}

func (c *Client) call(ctx context.Context, uploadID string, payload any) (domain.ProcessingResult, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return domain.ProcessingResult{}, domain.TransportFault("marshal request for "+c.endpoint.String(), err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return domain.ProcessingResult{}, domain.TransportFault("build request for "+c.endpoint.String(), err)
	}
	req.Header.Set("Content-Type", "application/json")
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return domain.ProcessingResult{}, domain.TransportFault(fmt.Sprintf("call %s timed out after %s", c.endpoint, c.timeout), err)
		}
		return domain.ProcessingResult{}, domain.TransportFault("call "+c.endpoint.String()+" failed", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))
		return domain.ProcessingResult{}, domain.TransportFault("call "+c.endpoint.String()+" failed", domain.ErrServiceNotRegistered)
	case resp.StatusCode != http.StatusOK:
		var cause error
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		if text := strings.TrimSpace(string(snippet)); text != "" {
			cause = errors.New(text)
		}
		return domain.ProcessingResult{}, domain.TransportFault(fmt.Sprintf("call %s returned status=%d", c.endpoint, resp.StatusCode), cause)
	}

	var result domain.ProcessingResult
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&result); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return domain.ProcessingResult{}, domain.TransportFault(fmt.Sprintf("call %s timed out after %s", c.endpoint, c.timeout), err)
		}
		return domain.ProcessingResult{}, domain.TransportFault("malformed response from "+c.endpoint.String(), err)
	}
	if err := result.Valid(); err != nil {
		return domain.ProcessingResult{}, domain.TransportFault("malformed response from "+c.endpoint.String(), err)
	}
	if result.UploadID != uploadID {
		return domain.ProcessingResult{}, domain.TransportFault(
			fmt.Sprintf("response from %s is for upload %q", c.endpoint, result.UploadID), nil)
	}
	return result, nil
}
