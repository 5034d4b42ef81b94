package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"
)

type fakeCounter struct {
	counts map[string]int64
	keys   []string
	err    error
}

func (f *fakeCounter) Incr(_ context.Context, key string, _ time.Duration) (int64, error) {
	if f.err != nil {
		return 0, f.err
	}
	if f.counts == nil {
		f.counts = map[string]int64{}
	}
	f.counts[key]++
	f.keys = append(f.keys, key)
	return f.counts[key], nil
}

func TestFixedWindowAllowsUpToLimit(t *testing.T) {
	counter := &fakeCounter{}
	limiter, err := newFixedWindow(counter, 2, time.Minute, "test")
	if err != nil {
		t.Fatalf("newFixedWindow returned error: %v", err)
	}
	start := time.Date(2026, 1, 1, 10, 0, 15, 0, time.UTC)
	limiter.now = func() time.Time { return start }

	for i, wantRemaining := range []int64{1, 0} {
		d, err := limiter.Allow(context.Background(), "client-a")
		if err != nil {
			t.Fatalf("Allow returned error: %v", err)
		}
		if !d.Allowed || d.Remaining != wantRemaining {
			t.Fatalf("request %d: expected allowed with %d remaining, got %+v", i, wantRemaining, d)
		}
	}

	d, err := limiter.Allow(context.Background(), "client-a")
	if err != nil {
		t.Fatalf("Allow returned error: %v", err)
	}
	if d.Allowed {
		t.Fatalf("expected third request to be rejected")
	}
	if d.RetryAfter != 45*time.Second {
		t.Fatalf("expected retry after 45s, got %s", d.RetryAfter)
	}

	other, err := limiter.Allow(context.Background(), "client-b")
	if err != nil || !other.Allowed {
		t.Fatalf("expected other subject to be unaffected, got %+v err=%v", other, err)
	}

	limiter.now = func() time.Time { return start.Add(time.Minute) }
	next, err := limiter.Allow(context.Background(), "client-a")
	if err != nil || !next.Allowed {
		t.Fatalf("expected new window to reset, got %+v err=%v", next, err)
	}
}

func TestFixedWindowDefaultsSubject(t *testing.T) {
	counter := &fakeCounter{}
	limiter, err := newFixedWindow(counter, 1, time.Second, "")
	if err != nil {
		t.Fatalf("newFixedWindow returned error: %v", err)
	}
	limiter.now = func() time.Time { return time.UnixMilli(5000) }

	if _, err := limiter.Allow(context.Background(), "  "); err != nil {
		t.Fatalf("Allow returned error: %v", err)
	}
	if len(counter.keys) != 1 || counter.keys[0] != "pixelsplit:ratelimit:anonymous:5" {
		t.Fatalf("unexpected keys %v", counter.keys)
	}
}

func TestFixedWindowErrors(t *testing.T) {
	if _, err := newFixedWindow(&fakeCounter{}, 0, time.Second, ""); err == nil {
		t.Fatalf("expected error for zero limit")
	}
	if _, err := newFixedWindow(&fakeCounter{}, 1, 0, ""); err == nil {
		t.Fatalf("expected error for zero window")
	}
	if _, err := NewFixedWindow(nil, 1, time.Second, ""); err == nil {
		t.Fatalf("expected error for nil client")
	}

	limiter, err := newFixedWindow(&fakeCounter{err: errors.New("redis down")}, 1, time.Second, "")
	if err != nil {
		t.Fatalf("newFixedWindow returned error: %v", err)
	}
	if _, err := limiter.Allow(context.Background(), "x"); err == nil {
		t.Fatalf("expected counter error to surface")
	}
}
