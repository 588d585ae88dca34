package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"genqueue/internal/domain"
	"genqueue/internal/storage"
)

const sweepBatch = 50

// Reconciler finalizes jobs left in processing by a lost worker or trigger.
type Reconciler struct {
	jobs       domain.JobRepository
	processor  *Processor
	staleAfter time.Duration
	logger     zerolog.Logger
}

func NewReconciler(jobs domain.JobRepository, processor *Processor, staleAfter time.Duration, logger zerolog.Logger) *Reconciler {
	if staleAfter <= 0 {
		staleAfter = 10 * time.Minute
	}
	return &Reconciler{jobs: jobs, processor: processor, staleAfter: staleAfter, logger: logger}
}

// RunOnce reconciles one batch and returns how many jobs were examined.
func (r *Reconciler) RunOnce(ctx context.Context) (int, error) {
	stale, err := r.jobs.ListStale(ctx, r.staleAfter, sweepBatch)
	if err != nil {
		return 0, err
	}
	for _, job := range stale {
		if err := r.processor.Reconcile(ctx, job); err != nil {
			if ctx.Err() != nil {
				return 0, ctx.Err()
			}
			r.logger.Warn().Err(err).Str("job_id", job.ID).Msg("reconcile job")
		}
	}
	return len(stale), nil
}

// ExpirySweeper deletes media past its retention, object first then row.
type ExpirySweeper struct {
	media   domain.MediaRepository
	buckets *storage.BucketSet
	logger  zerolog.Logger
	now     func() time.Time
}

func NewExpirySweeper(media domain.MediaRepository, buckets *storage.BucketSet, logger zerolog.Logger) *ExpirySweeper {
	return &ExpirySweeper{media: media, buckets: buckets, logger: logger, now: func() time.Time { return time.Now().UTC() }}
}

// RunOnce removes one batch of expired media and returns how many rows were deleted.
func (s *ExpirySweeper) RunOnce(ctx context.Context) (int, error) {
	expired, err := s.media.ListExpired(ctx, s.now(), sweepBatch)
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, item := range expired {
		if bucket := s.buckets.ByName(item.Bucket); bucket != nil {
			if err := bucket.Delete(ctx, item.StoragePath); err != nil && !errors.Is(err, storage.ErrObjectNotFound) {
				s.logger.Warn().Err(err).Str("media_id", item.ID).Str("key", item.StoragePath).Msg("expired object delete failed")
				continue
			}
		} else {
			s.logger.Warn().Str("media_id", item.ID).Str("bucket", item.Bucket).Msg("expired media references unknown bucket")
		}
		if err := s.media.DeleteByID(ctx, item.ID); err != nil {
			return removed, err
		}
		removed++
	}
	return removed, nil
}

// DeleteMedia removes a user's object and then its media row. A failed object
// delete leaves the row in place so the request can be retried.
func DeleteMedia(ctx context.Context, media domain.MediaRepository, buckets *storage.BucketSet, userID string, kind domain.MediaKind, id string) error {
	item, err := media.GetByID(ctx, userID, kind, id)
	if err != nil {
		return err
	}
	if bucket := buckets.ByName(item.Bucket); bucket != nil {
		if err := bucket.Delete(ctx, item.StoragePath); err != nil && !errors.Is(err, storage.ErrObjectNotFound) {
			return fmt.Errorf("delete object %s: %w", item.StoragePath, err)
		}
	}
	return media.Delete(ctx, userID, kind, id)
}
