package blobstore

import (
	"context"
	"fmt"

	"docarc/internal/archive"
	"docarc/internal/config"
)

// NewBlobStoreFromConfig creates a BlobStore implementation based on the
// blobstore config type. An empty type means backup is disabled and nil is
// returned.
func NewBlobStoreFromConfig(ctx context.Context, cfg config.BlobStoreConfig) (archive.BlobStore, error) {
	switch cfg.Type {
	case "":
		return nil, nil
	case "memory":
		return NewMemoryStore(), nil
	case "filesystem":
		if cfg.FSRoot == "" {
			return nil, fmt.Errorf("filesystem blob store requires fs_root to be set")
		}
		return NewFileSystemStore(cfg.FSRoot)
	case "s3":
		return NewS3Store(ctx, S3Options{
			Bucket:        cfg.S3Bucket,
			Prefix:        cfg.S3Prefix,
			Region:        cfg.S3Region,
			Endpoint:      cfg.S3Endpoint,
			AccessKey:     cfg.S3AccessKey,
			SecretKey:     cfg.S3SecretKey,
			MaxObjectSize: cfg.MaxObjectSize,
		})
	default:
		return nil, fmt.Errorf("unknown blob store type: %s", cfg.Type)
	}
}
