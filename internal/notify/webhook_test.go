package notify

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func TestWebhookNotifierSignsEvent(t *testing.T) {
	var (
		gotSig   string
		gotTS    string
		gotEvt   string
		gotBody  []byte
		verified bool
	)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSig = r.Header.Get(HeaderSignature)
		gotTS = r.Header.Get(HeaderTimestamp)
		gotEvt = r.Header.Get(HeaderEvent)
		gotBody, _ = io.ReadAll(r.Body)
		verified = Sign("test-secret", gotTS, gotBody) == gotSig
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	n := NewWebhookNotifier(srv.URL, WebhookConfig{
		SigningSecret:  "test-secret",
		Timeout:        2 * time.Second,
		MaxAttempts:    1,
		InitialBackoff: 10 * time.Millisecond,
	})

	if err := n.Notify(context.Background(), "upload-1", 42); err != nil {
		t.Fatalf("Notify returned error: %v", err)
	}

	if gotEvt != EventArtifactAvailable {
		t.Fatalf("expected event header %s, got %q", EventArtifactAvailable, gotEvt)
	}
	if gotTS == "" || !verified {
		t.Fatalf("expected verifiable signature, sig=%q ts=%q", gotSig, gotTS)
	}

	var event Event
	if err := json.Unmarshal(gotBody, &event); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if event.UploadID != "upload-1" || event.ArtifactID != 42 || event.At.IsZero() {
		t.Fatalf("unexpected event body %+v", event)
	}
}

func TestWebhookNotifierRetriesUntilSuccess(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if attempts.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n := NewWebhookNotifier(srv.URL, WebhookConfig{
		MaxAttempts:    3,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     2 * time.Millisecond,
	})

	if err := n.Notify(context.Background(), "upload-2", 1); err != nil {
		t.Fatalf("Notify returned error: %v", err)
	}
	if got := attempts.Load(); got != 3 {
		t.Fatalf("expected 3 attempts, got %d", got)
	}
}

func TestWebhookNotifierGivesUp(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	n := NewWebhookNotifier(srv.URL, WebhookConfig{
		MaxAttempts:    2,
		InitialBackoff: time.Millisecond,
	})

	if err := n.Notify(context.Background(), "upload-3", 1); err == nil {
		t.Fatalf("expected delivery error")
	}
	if got := attempts.Load(); got != 2 {
		t.Fatalf("expected 2 attempts, got %d", got)
	}
}
