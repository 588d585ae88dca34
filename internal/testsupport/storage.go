package testsupport

import (
	"bytes"
	"context"
	"io"
	"sync"

	"genqueue/internal/storage"
)

// MemoryBucket is an in-memory storage.ObjectStorage.
type MemoryBucket struct {
	name    string
	mu      sync.Mutex
	objects map[string][]byte
	// UploadErr and DeleteErr, when set, make the corresponding call fail.
	UploadErr error
	DeleteErr error
	Deleted   []string
}

func NewMemoryBucket(name string) *MemoryBucket {
	return &MemoryBucket{name: name, objects: make(map[string][]byte)}
}

// NewBucketSet returns a set of empty memory buckets.
func NewBucketSet() *storage.BucketSet {
	return &storage.BucketSet{
		Images: NewMemoryBucket("generated-images"),
		Videos: NewMemoryBucket("generated-videos"),
		Audios: NewMemoryBucket("generated-audios"),
		Temp:   NewMemoryBucket("temp-inputs"),
	}
}

// Bucket unwraps a BucketSet member created by NewBucketSet.
func Bucket(s storage.ObjectStorage) *MemoryBucket {
	return s.(*MemoryBucket)
}

func (b *MemoryBucket) Bucket() string { return b.name }

func (b *MemoryBucket) Upload(ctx context.Context, key string, reader io.Reader, size int64, contentType string) error {
	if b.UploadErr != nil {
		return b.UploadErr
	}
	data, err := io.ReadAll(reader)
	if err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.objects[key] = data
	return nil
}

func (b *MemoryBucket) Download(ctx context.Context, key string) (io.ReadCloser, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	data, ok := b.objects[key]
	if !ok {
		return nil, storage.ErrObjectNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (b *MemoryBucket) GetURL(key string) string {
	return "https://storage.test/" + b.name + "/" + key
}

func (b *MemoryBucket) Delete(ctx context.Context, key string) error {
	if b.DeleteErr != nil {
		return b.DeleteErr
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.objects, key)
	b.Deleted = append(b.Deleted, key)
	return nil
}

func (b *MemoryBucket) Exists(ctx context.Context, key string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.objects[key]
	return ok, nil
}

// Len returns the number of stored objects.
func (b *MemoryBucket) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.objects)
}

var _ storage.ObjectStorage = (*MemoryBucket)(nil)
