package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"

	"github.com/dunamismax/pixelsplit/internal/domain"
	"github.com/dunamismax/pixelsplit/internal/id"
	"github.com/dunamismax/pixelsplit/internal/storage"
	"github.com/lib/pq"
)

const artifactSchemaSQL = `
CREATE TABLE IF NOT EXISTS artifacts (
	id BIGSERIAL PRIMARY KEY,
	object_prefix TEXT NOT NULL,
	format TEXT NOT NULL,
	original_key TEXT NOT NULL,
	processed_key TEXT NOT NULL,
	original_bytes INTEGER NOT NULL,
	processed_bytes INTEGER NOT NULL,
	related_count INTEGER NOT NULL DEFAULT 0,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS related_artifacts (
	artifact_id BIGINT NOT NULL REFERENCES artifacts(id) ON DELETE CASCADE,
	seq INTEGER NOT NULL,
	object_key TEXT NOT NULL,
	bytes INTEGER NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (artifact_id, seq)
);
`

type objectWriter interface {
	WriteObject(ctx context.Context, objectKey string, data []byte, contentType string) error
	RemoveObject(ctx context.Context, objectKey string) error
}

// PostgresArtifactStore keeps image bytes in object storage and the artifact
// index in Postgres.
type PostgresArtifactStore struct {
	db      *sql.DB
	objects objectWriter
	logger  *log.Logger
}

func NewPostgresArtifactStore(ctx context.Context, dsn string, objects objectWriter, logger *log.Logger) (*PostgresArtifactStore, error) {
	if objects == nil {
		return nil, errors.New("object storage is required")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres connection: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	s := newPostgresArtifactStore(db, objects, logger)
	if err := s.EnsureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func newPostgresArtifactStore(db *sql.DB, objects objectWriter, logger *log.Logger) *PostgresArtifactStore {
	return &PostgresArtifactStore{db: db, objects: objects, logger: logger}
}

func (s *PostgresArtifactStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, artifactSchemaSQL); err != nil {
		return fmt.Errorf("ensure artifacts schema: %w", err)
	}
	return nil
}

func (s *PostgresArtifactStore) Close() error {
	return s.db.Close()
}

func (s *PostgresArtifactStore) SaveAsBlob(ctx context.Context, original, processed []byte, format string) (int64, error) {
	if len(processed) == 0 {
		return 0, errors.New("processed image is empty")
	}

	prefix := storage.ArtifactPrefix(id.New())
	originalKey := storage.OriginalKey(prefix, format)
	processedKey := storage.ProcessedKey(prefix, format)
	contentType := storage.ContentType(format)

	if err := s.objects.WriteObject(ctx, originalKey, original, contentType); err != nil {
		return 0, fmt.Errorf("write original: %w", err)
	}
	if err := s.objects.WriteObject(ctx, processedKey, processed, contentType); err != nil {
		s.cleanup(ctx, originalKey)
		return 0, fmt.Errorf("write processed: %w", err)
	}

	var artifactID int64
	err := s.db.QueryRowContext(
		ctx,
		`INSERT INTO artifacts (object_prefix, format, original_key, processed_key, original_bytes, processed_bytes)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING id`,
		prefix,
		format,
		originalKey,
		processedKey,
		len(original),
		len(processed),
	).Scan(&artifactID)
	if err != nil {
		s.cleanup(ctx, originalKey, processedKey)
		return 0, fmt.Errorf("insert artifact: %w", err)
	}

	return artifactID, nil
}

func (s *PostgresArtifactStore) AddRelatedArtifact(ctx context.Context, artifactID int64, related []byte) error {
	if len(related) == 0 {
		return errors.New("related image is empty")
	}

	var (
		prefix string
		format string
		seq    int
	)
	err := s.db.QueryRowContext(
		ctx,
		`UPDATE artifacts
		 SET related_count = related_count + 1
		 WHERE id = $1
		 RETURNING object_prefix, format, related_count`,
		artifactID,
	).Scan(&prefix, &format, &seq)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrArtifactNotFound
		}
		return fmt.Errorf("reserve related slot: %w", err)
	}

	objectKey := storage.RelatedKey(prefix, seq, format)
	if err := s.objects.WriteObject(ctx, objectKey, related, storage.ContentType(format)); err != nil {
		return fmt.Errorf("write related: %w", err)
	}

	_, err = s.db.ExecContext(
		ctx,
		`INSERT INTO related_artifacts (artifact_id, seq, object_key, bytes)
		 VALUES ($1, $2, $3, $4)`,
		artifactID,
		seq,
		objectKey,
		len(related),
	)
	if err != nil {
		s.cleanup(ctx, objectKey)
		return fmt.Errorf("insert related artifact: %w", err)
	}
	return nil
}

func (s *PostgresArtifactStore) Get(ctx context.Context, artifactID int64) (domain.Artifact, error) {
	var a domain.Artifact
	err := s.db.QueryRowContext(
		ctx,
		`SELECT a.id, a.format, a.original_key, a.processed_key, a.created_at,
		        COALESCE(array_agg(r.object_key ORDER BY r.seq) FILTER (WHERE r.object_key IS NOT NULL), '{}')
		 FROM artifacts a
		 LEFT JOIN related_artifacts r ON r.artifact_id = a.id
		 WHERE a.id = $1
		 GROUP BY a.id`,
		artifactID,
	).Scan(&a.ID, &a.Format, &a.OriginalKey, &a.ProcessedKey, &a.CreatedAt, pq.Array(&a.Related))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Artifact{}, ErrArtifactNotFound
		}
		return domain.Artifact{}, fmt.Errorf("query artifact: %w", err)
	}
	return a, nil
}

func (s *PostgresArtifactStore) cleanup(ctx context.Context, keys ...string) {
	for _, key := range keys {
		if err := s.objects.RemoveObject(ctx, key); err != nil && s.logger != nil {
			s.logger.Printf("orphaned object cleanup failed key=%s err=%v", key, err)
		}
	}
}
