// Package filestore keeps uploaded workbook files on local disk or in
// Google Cloud Storage.
package filestore

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/ekaya-inc/ekaya-bucketer/pkg/config"
)

// FileStore stores opaque blobs by key. Keys use forward slashes.
type FileStore interface {
	Put(ctx context.Context, key string, r io.Reader) error
	// Open returns apperrors.ErrNotFound for a missing key.
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
	Close() error
}

// New builds the store selected by cfg.Backend.
func New(ctx context.Context, cfg config.StorageConfig) (FileStore, error) {
	switch cfg.Backend {
	case "local", "":
		return NewLocalStore(cfg.LocalDir)
	case "gcs":
		return NewGCSStore(ctx, cfg.GCSBucket, cfg.GCSPrefix)
	default:
		return nil, fmt.Errorf("unsupported storage backend: %s", cfg.Backend)
	}
}

// cleanKey rejects keys that would escape the store root.
func cleanKey(key string) (string, error) {
	k := path.Clean("/" + strings.ReplaceAll(key, "\\", "/"))
	k = strings.TrimPrefix(k, "/")
	if k == "" || k == "." {
		return "", fmt.Errorf("invalid storage key %q", key)
	}
	return k, nil
}
