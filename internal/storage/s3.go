package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"roamio/internal/observability"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// S3Options configures an S3-compatible bucket (AWS S3, Tencent COS, MinIO).
type S3Options struct {
	Endpoint  string
	Region    string
	Bucket    string
	AccessKey string
	SecretKey string
	UseSSL    bool
	// PublicURL is the base URL objects are served from, e.g. a CDN domain.
	// Empty means path-style URLs on Endpoint.
	PublicURL string
}

// S3Store stores objects in an S3-compatible bucket.
type S3Store struct {
	client  *minio.Client
	bucket  string
	baseURL string
}

// NewS3Store creates a client for opts. It does not contact the endpoint.
func NewS3Store(opts S3Options) (*S3Store, error) {
	if opts.Endpoint == "" || opts.Bucket == "" {
		return nil, errors.New("storage: s3 endpoint and bucket are required")
	}
	client, err := minio.New(opts.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(opts.AccessKey, opts.SecretKey, ""),
		Secure: opts.UseSSL,
		Region: opts.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("storage: s3 client: %w", err)
	}

	base := strings.TrimRight(opts.PublicURL, "/")
	if base == "" {
		scheme := "http"
		if opts.UseSSL {
			scheme = "https"
		}
		base = fmt.Sprintf("%s://%s/%s", scheme, opts.Endpoint, opts.Bucket)
	}
	return &S3Store{client: client, bucket: opts.Bucket, baseURL: base}, nil
}

func (s *S3Store) Upload(ctx context.Context, key, contentType string, body io.Reader, size int64) (string, error) {
	span, ctx := observability.StartExternalSpan(ctx, "object_storage", "put")
	defer span.End()
	defer observability.TrackExternal("object_storage", "put")()

	_, err := s.client.PutObject(ctx, s.bucket, key, body, size, minio.PutObjectOptions{
		ContentType:  contentType,
		CacheControl: "public, max-age=31536000, immutable",
	})
	if err != nil {
		span.SetError(err)
		return "", fmt.Errorf("storage: put %s: %w", key, err)
	}
	return s.baseURL + "/" + key, nil
}

func (s *S3Store) Delete(ctx context.Context, url string) (bool, error) {
	key, ok := keyFromURL(s.baseURL, url)
	if !ok {
		return false, nil
	}

	span, ctx := observability.StartExternalSpan(ctx, "object_storage", "delete")
	defer span.End()
	defer observability.TrackExternal("object_storage", "delete")()

	if _, err := s.client.StatObject(ctx, s.bucket, key, minio.StatObjectOptions{}); err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return false, nil
		}
		span.SetError(err)
		return false, fmt.Errorf("storage: stat %s: %w", key, err)
	}
	if err := s.client.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		span.SetError(err)
		return false, fmt.Errorf("storage: delete %s: %w", key, err)
	}
	return true, nil
}
