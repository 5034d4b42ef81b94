package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dunamismax/pixelsplit/internal/domain"
	"github.com/dunamismax/pixelsplit/internal/storage"
)

type memoryArtifact struct {
	meta      domain.Artifact
	original  []byte
	processed []byte
	related   [][]byte
}

type MemoryArtifactStore struct {
	mu        sync.RWMutex
	nextID    int64
	artifacts map[int64]*memoryArtifact
}

func NewMemoryArtifactStore() *MemoryArtifactStore {
	return &MemoryArtifactStore{
		artifacts: make(map[int64]*memoryArtifact),
	}
}

func (s *MemoryArtifactStore) SaveAsBlob(_ context.Context, original, processed []byte, format string) (int64, error) {
	if len(processed) == 0 {
		return 0, errors.New("processed image is empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	id := s.nextID
	prefix := storage.ArtifactPrefix(fmt.Sprintf("mem-%d", id))
	s.artifacts[id] = &memoryArtifact{
		meta: domain.Artifact{
			ID:           id,
			Format:       format,
			OriginalKey:  storage.OriginalKey(prefix, format),
			ProcessedKey: storage.ProcessedKey(prefix, format),
			CreatedAt:    time.Now().UTC(),
		},
		original:  append([]byte(nil), original...),
		processed: append([]byte(nil), processed...),
	}
	return id, nil
}

func (s *MemoryArtifactStore) AddRelatedArtifact(_ context.Context, id int64, related []byte) error {
	if len(related) == 0 {
		return errors.New("related image is empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.artifacts[id]
	if !ok {
		return ErrArtifactNotFound
	}
	a.related = append(a.related, append([]byte(nil), related...))
	prefix := storage.ArtifactPrefix(fmt.Sprintf("mem-%d", id))
	a.meta.Related = append(a.meta.Related, storage.RelatedKey(prefix, len(a.related), a.meta.Format))
	return nil
}

func (s *MemoryArtifactStore) Get(_ context.Context, id int64) (domain.Artifact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.artifacts[id]
	if !ok {
		return domain.Artifact{}, ErrArtifactNotFound
	}
	meta := a.meta
	meta.Related = append([]string(nil), a.meta.Related...)
	return meta, nil
}

// Processed returns the stored processed image and related images of id.
func (s *MemoryArtifactStore) Processed(id int64) ([]byte, [][]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.artifacts[id]
	if !ok {
		return nil, nil, false
	}
	return a.processed, a.related, true
}

func (s *MemoryArtifactStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.artifacts)
}
