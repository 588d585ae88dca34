package storage

import (
	"context"
	"fmt"

	"genqueue/internal/infra"
)

// NewBucketSet builds the artifact and staging buckets for the configured driver.
func NewBucketSet(ctx context.Context, cfg *infra.Config) (*BucketSet, error) {
	names := []string{cfg.BucketImages, cfg.BucketVideos, cfg.BucketAudios, cfg.BucketTemp}
	stores := make([]ObjectStorage, len(names))

	switch cfg.StorageDriver {
	case "s3":
		client, err := NewS3Client(ctx, S3Config{
			Endpoint:  cfg.S3Endpoint,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
			UseSSL:    cfg.S3UseSSL,
			Region:    cfg.S3Region,
			PublicURL: cfg.S3PublicURL,
		})
		if err != nil {
			return nil, err
		}
		for i, name := range names {
			bucket := client.Bucket(name)
			if err := bucket.EnsureBucket(ctx); err != nil {
				return nil, err
			}
			stores[i] = bucket
		}
	case "filesystem", "":
		for i, name := range names {
			fs, err := NewFileStore(cfg.StoragePath, name, cfg.StorageBaseURL)
			if err != nil {
				return nil, err
			}
			stores[i] = fs
		}
	default:
		return nil, fmt.Errorf("storage: unsupported driver %q", cfg.StorageDriver)
	}

	return &BucketSet{Images: stores[0], Videos: stores[1], Audios: stores[2], Temp: stores[3]}, nil
}
