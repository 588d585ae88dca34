package storage

import (
	"context"
	"errors"
	"io"

	"genqueue/internal/domain"
)

// ObjectStorage is a single bucket of durable objects.
type ObjectStorage interface {
	Upload(ctx context.Context, key string, reader io.Reader, size int64, contentType string) error
	Download(ctx context.Context, key string) (io.ReadCloser, error)
	// GetURL returns the public URL for key.
	GetURL(key string) string
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
	Bucket() string
}

// ErrObjectNotFound is returned by Download when the key does not exist.
var ErrObjectNotFound = errors.New("storage: object not found")

// BucketSet routes artifacts to the bucket dedicated to their media kind.
type BucketSet struct {
	Images ObjectStorage
	Videos ObjectStorage
	Audios ObjectStorage
	// Temp holds staged provider inputs that are removed after processing.
	Temp ObjectStorage
}

// ForKind returns the destination bucket for a media kind.
func (b *BucketSet) ForKind(kind domain.MediaKind) ObjectStorage {
	switch kind {
	case domain.MediaKindVideo:
		return b.Videos
	case domain.MediaKindAudio:
		return b.Audios
	default:
		return b.Images
	}
}

// ByName resolves a bucket by the name recorded on a media row.
func (b *BucketSet) ByName(name string) ObjectStorage {
	for _, s := range []ObjectStorage{b.Images, b.Videos, b.Audios, b.Temp} {
		if s != nil && s.Bucket() == name {
			return s
		}
	}
	return nil
}
