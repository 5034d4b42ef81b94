package store

import (
	"context"
	"errors"
	"testing"
)

func TestMemoryArtifactStoreLifecycle(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryArtifactStore()

	first, err := s.SaveAsBlob(ctx, []byte("orig"), []byte("processed"), "png")
	if err != nil {
		t.Fatalf("SaveAsBlob returned error: %v", err)
	}
	second, err := s.SaveAsBlob(ctx, []byte("orig"), []byte("processed-2"), "jpeg")
	if err != nil {
		t.Fatalf("SaveAsBlob returned error: %v", err)
	}
	if first == second {
		t.Fatalf("expected distinct ids, both were %d", first)
	}

	if err := s.AddRelatedArtifact(ctx, first, []byte("blurred")); err != nil {
		t.Fatalf("AddRelatedArtifact returned error: %v", err)
	}

	artifact, err := s.Get(ctx, first)
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if artifact.Format != "png" || len(artifact.Related) != 1 {
		t.Fatalf("unexpected artifact %+v", artifact)
	}
	if artifact.Related[0] != "artifacts/mem-1/related-1.png" {
		t.Fatalf("unexpected related key %q", artifact.Related[0])
	}

	processed, related, ok := s.Processed(first)
	if !ok || string(processed) != "processed" || len(related) != 1 || string(related[0]) != "blurred" {
		t.Fatalf("unexpected stored bytes processed=%q related=%q", processed, related)
	}
	if s.Len() != 2 {
		t.Fatalf("expected two artifacts, got %d", s.Len())
	}
}

func TestMemoryArtifactStoreErrors(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryArtifactStore()

	if _, err := s.SaveAsBlob(ctx, []byte("orig"), nil, "png"); err == nil {
		t.Fatalf("expected error for empty processed image")
	}
	if err := s.AddRelatedArtifact(ctx, 42, []byte("x")); !errors.Is(err, ErrArtifactNotFound) {
		t.Fatalf("expected ErrArtifactNotFound, got %v", err)
	}
	if _, err := s.Get(ctx, 42); !errors.Is(err, ErrArtifactNotFound) {
		t.Fatalf("expected ErrArtifactNotFound, got %v", err)
	}
}
