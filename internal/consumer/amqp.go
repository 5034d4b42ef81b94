package consumer

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"strconv"
	"strings"
	"sync"

	"github.com/dunamismax/pixelsplit/internal/config"
	"github.com/dunamismax/pixelsplit/internal/domain"
	amqp "github.com/rabbitmq/amqp091-go"
)

// Header names carried by image deliveries.
const (
	HeaderUploadID   = "uploadId"
	HeaderFormat     = "format"
	HeaderZoomFactor = "zoomFactor"
	HeaderX          = "x"
	HeaderY          = "y"
	HeaderW          = "w"
	HeaderH          = "h"
)

var errNotAJob = errors.New("delivery does not describe a job")

type AMQPConsumer struct {
	logger   *log.Logger
	conn     *amqp.Connection
	channel  *amqp.Channel
	queue    string
	prefetch int
	handler  *Handler
}

func DialAMQP(cfg config.AMQPConfig, logger *log.Logger, handler *Handler) (*AMQPConsumer, error) {
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("connect to amqp broker: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open amqp channel: %w", err)
	}

	if _, err := channel.QueueDeclare(cfg.Queue, true, false, false, false, nil); err != nil {
		channel.Close()
		conn.Close()
		return nil, fmt.Errorf("declare queue %s: %w", cfg.Queue, err)
	}

	return &AMQPConsumer{
		logger:   logger,
		conn:     conn,
		channel:  channel,
		queue:    cfg.Queue,
		prefetch: max(1, cfg.Prefetch),
		handler:  handler,
	}, nil
}

// Run consumes until ctx is cancelled or the broker closes the channel, then
// waits for in-flight deliveries to finish.
func (c *AMQPConsumer) Run(ctx context.Context) error {
	if err := c.channel.Qos(c.prefetch, 0, false); err != nil {
		return fmt.Errorf("set qos: %w", err)
	}

	deliveries, err := c.channel.Consume(c.queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("register consumer: %w", err)
	}
	c.logger.Printf("consuming queue=%s prefetch=%d", c.queue, c.prefetch)

	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-deliveries:
			if !ok {
				return errors.New("amqp delivery channel closed")
			}
			wg.Add(1)
			go func() {
				defer wg.Done()
				c.handler.HandleDelivery(ctx, d)
			}()
		}
	}
}

func (c *AMQPConsumer) Close() {
	if c.channel != nil {
		c.channel.Close()
	}
	if c.conn != nil {
		c.conn.Close()
	}
}

// HandleDelivery acks every delivery it can interpret and rejects the rest
// without requeueing. Deliveries that never reached the dispatcher are
// requeued.
func (h *Handler) HandleDelivery(ctx context.Context, d amqp.Delivery) {
	if isControl(d) {
		h.rejected(SourceAMQP, outcomeControl)
		h.logger.Printf("control message body=%q", string(d.Body))
		if err := d.Ack(false); err != nil {
			h.logger.Printf("ack failed delivery_tag=%d err=%v", d.DeliveryTag, err)
		}
		return
	}

	job, err := descriptorFromDelivery(d)
	if err != nil {
		h.rejected(SourceAMQP, outcomeMalformed)
		h.logger.Printf("delivery dropped delivery_tag=%d content_type=%s err=%v", d.DeliveryTag, d.ContentType, err)
		if err := d.Reject(false); err != nil {
			h.logger.Printf("reject failed delivery_tag=%d err=%v", d.DeliveryTag, err)
		}
		return
	}

	report, err := h.Handle(ctx, SourceAMQP, job)
	if err != nil {
		h.logger.Printf("delivery requeued delivery_tag=%d err=%v", d.DeliveryTag, err)
		if err := d.Nack(false, true); err != nil {
			h.logger.Printf("nack failed delivery_tag=%d err=%v", d.DeliveryTag, err)
		}
		return
	}
	h.logger.Printf("delivery finished upload_id=%s mode=%s status=%s", report.UploadID, report.Mode, report.Status)
	if err := d.Ack(false); err != nil {
		h.logger.Printf("ack failed delivery_tag=%d err=%v", d.DeliveryTag, err)
	}
}

func isControl(d amqp.Delivery) bool {
	return strings.HasPrefix(strings.ToLower(d.ContentType), "text/")
}

func descriptorFromDelivery(d amqp.Delivery) (domain.JobDescriptor, error) {
	uploadID, _ := headerString(d.Headers, HeaderUploadID)
	if uploadID == "" {
		return domain.JobDescriptor{}, fmt.Errorf("%w: missing %s header", errNotAJob, HeaderUploadID)
	}
	if len(d.Body) == 0 {
		return domain.JobDescriptor{}, fmt.Errorf("%w: empty body", errNotAJob)
	}

	job := domain.JobDescriptor{
		UploadID: uploadID,
		Payload:  d.Body,
	}
	job.Format, _ = headerString(d.Headers, HeaderFormat)

	if zoom, ok, err := headerFloat(d.Headers, HeaderZoomFactor); err != nil {
		return domain.JobDescriptor{}, err
	} else if ok {
		job.ZoomFactor = &zoom
	}

	var (
		region domain.Region
		seen   int
	)
	for _, field := range []struct {
		name string
		dst  *int
	}{
		{HeaderX, &region.X},
		{HeaderY, &region.Y},
		{HeaderW, &region.W},
		{HeaderH, &region.H},
	} {
		v, ok, err := headerInt(d.Headers, field.name)
		if err != nil {
			return domain.JobDescriptor{}, err
		}
		if ok {
			*field.dst = v
			seen++
		}
	}
	switch seen {
	case 0:
	case 4:
		job.Region = &region
	default:
		return domain.JobDescriptor{}, fmt.Errorf("%w: region needs all of x, y, w and h", errNotAJob)
	}

	if job.ZoomFactor == nil && job.Region == nil {
		return domain.JobDescriptor{}, fmt.Errorf("%w: neither %s nor a region present", errNotAJob, HeaderZoomFactor)
	}
	return job, nil
}

func headerString(h amqp.Table, key string) (string, bool) {
	switch v := h[key].(type) {
	case string:
		return strings.TrimSpace(v), true
	case []byte:
		return strings.TrimSpace(string(v)), true
	default:
		return "", false
	}
}

func headerFloat(h amqp.Table, key string) (float64, bool, error) {
	raw, ok := h[key]
	if !ok || raw == nil {
		return 0, false, nil
	}
	switch v := raw.(type) {
	case float64:
		return v, true, nil
	case float32:
		return float64(v), true, nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0, false, fmt.Errorf("%w: %s is not a number", errNotAJob, key)
		}
		return f, true, nil
	default:
		if n, ok := asInt64(raw); ok {
			return float64(n), true, nil
		}
		return 0, false, fmt.Errorf("%w: %s has unsupported type %T", errNotAJob, key, raw)
	}
}

func headerInt(h amqp.Table, key string) (int, bool, error) {
	raw, ok := h[key]
	if !ok || raw == nil {
		return 0, false, nil
	}
	if n, ok := asInt64(raw); ok {
		if n > math.MaxInt32 || n < math.MinInt32 {
			return 0, false, fmt.Errorf("%w: %s is out of range", errNotAJob, key)
		}
		return int(n), true, nil
	}
	if s, ok := raw.(string); ok {
		n, err := strconv.Atoi(strings.TrimSpace(s))
		if err != nil {
			return 0, false, fmt.Errorf("%w: %s is not an integer", errNotAJob, key)
		}
		return n, true, nil
	}
	return 0, false, fmt.Errorf("%w: %s has unsupported type %T", errNotAJob, key, raw)
}

func asInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int8:
		return int64(n), true
	case int16:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case uint8:
		return int64(n), true
	case uint16:
		return int64(n), true
	case uint32:
		return int64(n), true
	default:
		return 0, false
	}
}
