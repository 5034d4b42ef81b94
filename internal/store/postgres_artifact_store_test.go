package store

import (
	"context"
	"errors"
	"io"
	"log"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeObjects struct {
	mu       sync.Mutex
	written  map[string][]byte
	types    map[string]string
	removed  []string
	failOn   string
	writeErr error
}

func newFakeObjects() *fakeObjects {
	return &fakeObjects{written: map[string][]byte{}, types: map[string]string{}}
}

func (f *fakeObjects) WriteObject(_ context.Context, key string, data []byte, contentType string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failOn != "" && strings.Contains(key, f.failOn) {
		return f.writeErr
	}
	f.written[key] = data
	f.types[key] = contentType
	return nil
}

func (f *fakeObjects) RemoveObject(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removed = append(f.removed, key)
	delete(f.written, key)
	return nil
}

func (f *fakeObjects) keyContaining(part string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	for key := range f.written {
		if strings.Contains(key, part) {
			return key
		}
	}
	return ""
}

func newMockStore(t *testing.T) (*PostgresArtifactStore, sqlmock.Sqlmock, *fakeObjects) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	objects := newFakeObjects()
	return newPostgresArtifactStore(db, objects, log.New(io.Discard, "", 0)), mock, objects
}

func TestPostgresEnsureSchema(t *testing.T) {
	s, mock, _ := newMockStore(t)
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS artifacts").WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, s.EnsureSchema(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresSaveAsBlob(t *testing.T) {
	s, mock, objects := newMockStore(t)
	mock.ExpectQuery("INSERT INTO artifacts").
		WithArgs(sqlmock.AnyArg(), "jpeg", sqlmock.AnyArg(), sqlmock.AnyArg(), 4, 9).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(17)))

	artifactID, err := s.SaveAsBlob(context.Background(), []byte("orig"), []byte("processed"), "jpeg")
	require.NoError(t, err)
	assert.Equal(t, int64(17), artifactID)

	originalKey := objects.keyContaining("/original.jpg")
	processedKey := objects.keyContaining("/processed.jpg")
	require.NotEmpty(t, originalKey)
	require.NotEmpty(t, processedKey)
	assert.True(t, strings.HasPrefix(originalKey, "artifacts/"))
	assert.Equal(t, "processed", string(objects.written[processedKey]))
	assert.Equal(t, "image/jpeg", objects.types[processedKey])
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresSaveAsBlobCleansUpOnInsertFailure(t *testing.T) {
	s, mock, objects := newMockStore(t)
	mock.ExpectQuery("INSERT INTO artifacts").WillReturnError(errors.New("connection reset"))

	_, err := s.SaveAsBlob(context.Background(), []byte("orig"), []byte("processed"), "png")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "insert artifact")
	assert.Len(t, objects.removed, 2)
	assert.Empty(t, objects.written)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresSaveAsBlobObjectFailure(t *testing.T) {
	s, mock, objects := newMockStore(t)
	objects.failOn = "/processed."
	objects.writeErr = errors.New("bucket offline")

	_, err := s.SaveAsBlob(context.Background(), []byte("orig"), []byte("processed"), "png")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bucket offline")
	assert.Len(t, objects.removed, 1)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresAddRelatedArtifact(t *testing.T) {
	s, mock, objects := newMockStore(t)
	mock.ExpectQuery("UPDATE artifacts").
		WithArgs(int64(17)).
		WillReturnRows(sqlmock.NewRows([]string{"object_prefix", "format", "related_count"}).AddRow("artifacts/abc", "png", 1))
	mock.ExpectExec("INSERT INTO related_artifacts").
		WithArgs(int64(17), 1, "artifacts/abc/related-1.png", 7).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, s.AddRelatedArtifact(context.Background(), 17, []byte("blurred")))
	assert.Equal(t, "blurred", string(objects.written["artifacts/abc/related-1.png"]))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresAddRelatedArtifactUnknownID(t *testing.T) {
	s, mock, objects := newMockStore(t)
	mock.ExpectQuery("UPDATE artifacts").
		WithArgs(int64(99)).
		WillReturnRows(sqlmock.NewRows([]string{"object_prefix", "format", "related_count"}))

	err := s.AddRelatedArtifact(context.Background(), 99, []byte("blurred"))
	assert.ErrorIs(t, err, ErrArtifactNotFound)
	assert.Empty(t, objects.written)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresGet(t *testing.T) {
	s, mock, _ := newMockStore(t)
	created := time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)
	mock.ExpectQuery("SELECT a.id, a.format").
		WithArgs(int64(17)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "format", "original_key", "processed_key", "created_at", "related"}).
			AddRow(int64(17), "png", "artifacts/abc/original.png", "artifacts/abc/processed.png", created, "{artifacts/abc/related-1.png}"))

	artifact, err := s.Get(context.Background(), 17)
	require.NoError(t, err)
	assert.Equal(t, int64(17), artifact.ID)
	assert.Equal(t, []string{"artifacts/abc/related-1.png"}, artifact.Related)
	assert.Equal(t, created, artifact.CreatedAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresGetMissing(t *testing.T) {
	s, mock, _ := newMockStore(t)
	mock.ExpectQuery("SELECT a.id, a.format").
		WithArgs(int64(5)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "format", "original_key", "processed_key", "created_at", "related"}))

	_, err := s.Get(context.Background(), 5)
	assert.ErrorIs(t, err, ErrArtifactNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}
