// Package storage puts uploaded media into object storage and removes it again.
package storage

import (
	"context"
	"fmt"
	"io"
	"strings"

	"roamio/internal/config"
)

// Store is an object store addressed by key and exposed by public URL.
type Store interface {
	// Upload writes size bytes from body under key and returns the public URL.
	Upload(ctx context.Context, key, contentType string, body io.Reader, size int64) (string, error)
	// Delete removes the object a URL returned by Upload points at. It reports
	// whether an object was removed; URLs this store did not issue are ignored.
	Delete(ctx context.Context, url string) (bool, error)
}

// New builds the store selected by cfg.StorageDriver.
func New(cfg *config.Config) (Store, error) {
	switch strings.ToLower(cfg.StorageDriver) {
	case "", "local":
		return NewLocalStore(cfg.StorageLocalDir, localBaseURL(cfg))
	case "s3":
		return NewS3Store(S3Options{
			Endpoint:  cfg.StorageEndpoint,
			Region:    cfg.StorageRegion,
			Bucket:    cfg.StorageBucket,
			AccessKey: cfg.StorageAccessKey,
			SecretKey: cfg.StorageSecretKey,
			UseSSL:    cfg.StorageUseSSL,
			PublicURL: cfg.StoragePublicURL,
		})
	default:
		return nil, fmt.Errorf("unsupported storage driver %q", cfg.StorageDriver)
	}
}

func localBaseURL(cfg *config.Config) string {
	if cfg.StoragePublicURL != "" {
		return cfg.StoragePublicURL
	}
	return strings.TrimRight(cfg.PublicBaseURL, "/") + LocalMountPath
}

// keyFromURL strips base from url. ok is false when url is not under base.
func keyFromURL(base, url string) (string, bool) {
	prefix := strings.TrimRight(base, "/") + "/"
	if !strings.HasPrefix(url, prefix) {
		return "", false
	}
	key := strings.TrimPrefix(url, prefix)
	if i := strings.IndexAny(key, "?#"); i >= 0 {
		key = key[:i]
	}
	return key, key != ""
}
