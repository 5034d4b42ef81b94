package store

import (
	"context"
	"errors"

	"github.com/dunamismax/pixelsplit/internal/domain"
)

var ErrArtifactNotFound = errors.New("artifact not found")

// ArtifactStore persists job outputs. SaveAsBlob returns the id later used to
// attach related images and to announce the artifact.
type ArtifactStore interface {
	SaveAsBlob(ctx context.Context, original, processed []byte, format string) (int64, error)
	AddRelatedArtifact(ctx context.Context, id int64, related []byte) error
	Get(ctx context.Context, id int64) (domain.Artifact, error)
}
