package jobs

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"mime"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"genqueue/internal/domain"
	"genqueue/internal/storage"
)

var contentExtensions = map[string]string{
	"image/png":   ".png",
	"image/jpeg":  ".jpg",
	"image/webp":  ".webp",
	"image/gif":   ".gif",
	"video/mp4":   ".mp4",
	"video/webm":  ".webm",
	"audio/mpeg":  ".mp3",
	"audio/wav":   ".wav",
	"audio/ogg":   ".ogg",
	"audio/x-wav": ".wav",
}

// Materializer copies provider outputs into owned storage and indexes them.
type Materializer struct {
	buckets    *storage.BucketSet
	media      domain.MediaRepository
	downloader Downloader
	logger     zerolog.Logger
	now        func() time.Time
}

func NewMaterializer(buckets *storage.BucketSet, media domain.MediaRepository, downloader Downloader, logger zerolog.Logger) *Materializer {
	return &Materializer{
		buckets:    buckets,
		media:      media,
		downloader: downloader,
		logger:     logger,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Materialize processes urls sequentially. Outputs that fail to download,
// upload or index are skipped; outputs already indexed for the job are reused.
func (m *Materializer) Materialize(ctx context.Context, job *domain.Job, predictionID string, urls []string) (domain.JobResult, error) {
	result := domain.JobResult{URLs: []string{}, Predicted: len(urls)}
	log := m.logger.With().Str("job_id", job.ID).Str("prediction_id", predictionID).Logger()

	existing, err := m.media.ListByJob(ctx, job.ID)
	if err != nil {
		return result, fmt.Errorf("load existing media: %w", err)
	}
	bySource := make(map[string]domain.MediaItem, len(existing))
	for _, item := range existing {
		bySource[item.SourceURL] = item
	}

	kind := job.Kind.MediaKind()
	bucket := m.buckets.ForKind(kind)
	for _, src := range urls {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		if item, ok := bySource[src]; ok {
			result.URLs = append(result.URLs, item.PublicURL)
			result.MediaIDs = append(result.MediaIDs, item.ID)
			continue
		}
		item, err := m.store(ctx, job, predictionID, kind, bucket, src)
		if err != nil {
			log.Warn().Err(err).Str("source_url", src).Msg("skipping output")
			result.Skipped++
			continue
		}
		bySource[src] = *item
		result.URLs = append(result.URLs, item.PublicURL)
		result.MediaIDs = append(result.MediaIDs, item.ID)
	}
	return result, nil
}

func (m *Materializer) store(ctx context.Context, job *domain.Job, predictionID string, kind domain.MediaKind, bucket storage.ObjectStorage, src string) (*domain.MediaItem, error) {
	file, err := m.downloader.Download(ctx, src)
	if err != nil {
		return nil, err
	}
	contentType := normalizeContentType(file.ContentType)
	key := fmt.Sprintf("%s/%s%s", job.UserID, uuid.NewString(), extensionFor(contentType, src, kind))
	if err := bucket.Upload(ctx, key, bytes.NewReader(file.Body), int64(len(file.Body)), contentType); err != nil {
		return nil, err
	}

	now := m.now()
	item := &domain.MediaItem{
		UserID:       job.UserID,
		JobID:        job.ID,
		Kind:         kind,
		Prompt:       job.Prompt,
		PredictionID: predictionID,
		SourceURL:    src,
		Bucket:       bucket.Bucket(),
		StoragePath:  key,
		PublicURL:    bucket.GetURL(key),
		ContentType:  contentType,
		Bytes:        int64(len(file.Body)),
		ExpiresAt:    now.Add(kind.Retention()),
		CreatedAt:    now,
	}
	if err := m.media.Create(ctx, item); err != nil {
		m.compensate(ctx, bucket, key, job.ID)
		if errors.Is(err, domain.ErrDuplicate) {
			return m.existing(ctx, job.ID, src)
		}
		return nil, fmt.Errorf("index media: %w", err)
	}
	return item, nil
}

// compensate removes an uploaded object whose metadata row was not written.
func (m *Materializer) compensate(ctx context.Context, bucket storage.ObjectStorage, key, jobID string) {
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()
	if err := bucket.Delete(cctx, key); err != nil {
		m.logger.Error().Err(err).
			Str("job_id", jobID).
			Str("bucket", bucket.Bucket()).
			Str("key", key).
			Msg("orphaned object: metadata insert failed and cleanup failed")
	}
}

func (m *Materializer) existing(ctx context.Context, jobID, src string) (*domain.MediaItem, error) {
	items, err := m.media.ListByJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	for i := range items {
		if items[i].SourceURL == src {
			return &items[i], nil
		}
	}
	return nil, domain.ErrNotFound
}

func normalizeContentType(ct string) string {
	if mt, _, err := mime.ParseMediaType(ct); err == nil {
		return mt
	}
	return "application/octet-stream"
}

func extensionFor(contentType, src string, kind domain.MediaKind) string {
	if ext, ok := contentExtensions[contentType]; ok {
		return ext
	}
	if u, err := url.Parse(src); err == nil {
		if ext := strings.ToLower(path.Ext(u.Path)); ext != "" && len(ext) <= 5 {
			return ext
		}
	}
	return kind.DefaultExtension()
}
