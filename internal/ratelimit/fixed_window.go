package ratelimit

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

type Decision struct {
	Allowed    bool
	Remaining  int64
	RetryAfter time.Duration
}

// counter increments key and makes sure it expires after ttl.
type counter interface {
	Incr(ctx context.Context, key string, ttl time.Duration) (int64, error)
}

type redisCounter struct {
	client redis.UniversalClient
}

func (c redisCounter) Incr(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	var incr *redis.IntCmd
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, key)
		pipe.PExpire(ctx, key, ttl)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return incr.Val(), nil
}

// FixedWindow allows limit requests per subject in each aligned window.
type FixedWindow struct {
	counter   counter
	limit     int64
	window    time.Duration
	keyPrefix string
	now       func() time.Time
}

func NewFixedWindow(client redis.UniversalClient, limit int, window time.Duration, keyPrefix string) (*FixedWindow, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	return newFixedWindow(redisCounter{client: client}, limit, window, keyPrefix)
}

func newFixedWindow(c counter, limit int, window time.Duration, keyPrefix string) (*FixedWindow, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be positive")
	}
	if window < time.Millisecond {
		return nil, fmt.Errorf("window must be at least 1ms")
	}
	if strings.TrimSpace(keyPrefix) == "" {
		keyPrefix = "pixelsplit:ratelimit"
	}

	return &FixedWindow{
		counter:   c,
		limit:     int64(limit),
		window:    window,
		keyPrefix: keyPrefix,
		now:       time.Now,
	}, nil
}

func (l *FixedWindow) Allow(ctx context.Context, subject string) (Decision, error) {
	subject = strings.TrimSpace(subject)
	if subject == "" {
		subject = "anonymous"
	}

	nowMS := l.now().UTC().UnixMilli()
	windowMS := l.window.Milliseconds()
	slot := nowMS / windowMS
	key := fmt.Sprintf("%s:%s:%d", l.keyPrefix, subject, slot)

	count, err := l.counter.Incr(ctx, key, l.window)
	if err != nil {
		return Decision{}, fmt.Errorf("increment window counter: %w", err)
	}

	remaining := max(0, l.limit-count)
	if count <= l.limit {
		return Decision{Allowed: true, Remaining: remaining}, nil
	}

	resetMS := (slot+1)*windowMS - nowMS
	return Decision{
		Allowed:    false,
		Remaining:  0,
		RetryAfter: time.Duration(resetMS) * time.Millisecond,
	}, nil
}
