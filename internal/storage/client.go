// Package storage keeps artifact bytes in an S3-compatible bucket. Metadata
// lives elsewhere; this package only knows object keys.
package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/dunamismax/pixelsplit/internal/config"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Artifacts are written once and never modified in place.
const artifactCacheControl = "public, max-age=31536000, immutable"

type Client struct {
	objects *minio.Client
	bucket  string
}

func NewClient(cfg config.StorageConfig) (*Client, error) {
	switch {
	case strings.TrimSpace(cfg.Endpoint) == "":
		return nil, errors.New("storage endpoint is required")
	case strings.TrimSpace(cfg.Bucket) == "":
		return nil, errors.New("storage bucket is required")
	}

	objects, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("connect object storage %s: %w", cfg.Endpoint, err)
	}
	return &Client{objects: objects, bucket: cfg.Bucket}, nil
}

// EnsureBucket creates the artifact bucket on first start. Losing a creation
// race to another dispatcher is not an error.
func (c *Client) EnsureBucket(ctx context.Context) error {
	found, err := c.objects.BucketExists(ctx, c.bucket)
	if err != nil {
		return fmt.Errorf("lookup bucket %s: %w", c.bucket, err)
	}
	if found {
		return nil
	}

	makeErr := c.objects.MakeBucket(ctx, c.bucket, minio.MakeBucketOptions{})
	if makeErr == nil {
		return nil
	}
	if resp := minio.ToErrorResponse(makeErr); resp.Code == "BucketAlreadyOwnedByYou" || resp.Code == "BucketAlreadyExists" {
		return nil
	}
	return fmt.Errorf("create bucket %s: %w", c.bucket, makeErr)
}

func (c *Client) WriteObject(ctx context.Context, objectKey string, data []byte, contentType string) error {
	opts := minio.PutObjectOptions{
		ContentType:  contentType,
		CacheControl: artifactCacheControl,
	}
	if _, err := c.objects.PutObject(ctx, c.bucket, objectKey, bytes.NewReader(data), int64(len(data)), opts); err != nil {
		return fmt.Errorf("write %s/%s: %w", c.bucket, objectKey, err)
	}
	return nil
}

func (c *Client) RemoveObject(ctx context.Context, objectKey string) error {
	err := c.objects.RemoveObject(ctx, c.bucket, objectKey, minio.RemoveObjectOptions{})
	if err != nil {
		return fmt.Errorf("remove %s/%s: %w", c.bucket, objectKey, err)
	}
	return nil
}

// PresignGet returns a time-limited download link for one artifact file. The
// response content type is pinned from the key's extension.
func (c *Client) PresignGet(ctx context.Context, objectKey string, ttl time.Duration) (string, error) {
	params := url.Values{}
	params.Set("response-content-type", ContentTypeForKey(objectKey))

	link, err := c.objects.PresignedGetObject(ctx, c.bucket, objectKey, ttl, params)
	if err != nil {
		return "", fmt.Errorf("presign %s/%s: %w", c.bucket, objectKey, err)
	}
	return link.String(), nil
}
