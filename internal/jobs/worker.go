package jobs

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"genqueue/internal/domain"
)

// Worker claims pending jobs and processes them one at a time.
type Worker struct {
	id        int
	jobs      domain.JobRepository
	processor *Processor
	lease     time.Duration
	idleWait  time.Duration
	wake      <-chan struct{}
	logger    zerolog.Logger
}

// NewWorker builds a worker. wake may be nil; a receive on it ends an idle wait early.
func NewWorker(id int, jobs domain.JobRepository, processor *Processor, lease, idleWait time.Duration, wake <-chan struct{}, logger zerolog.Logger) *Worker {
	if idleWait <= 0 {
		idleWait = 2 * time.Second
	}
	return &Worker{
		id:        id,
		jobs:      jobs,
		processor: processor,
		lease:     lease,
		idleWait:  idleWait,
		wake:      wake,
		logger:    logger.With().Int("worker", id).Logger(),
	}
}

// Run loops until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.Info().Msg("worker started")
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		job, err := w.jobs.ClaimPending(ctx, w.lease)
		if err != nil {
			if !errors.Is(err, domain.ErrNoJobAvailable) && ctx.Err() == nil {
				w.logger.Error().Err(err).Msg("claim job")
			}
			if err := w.idle(ctx); err != nil {
				return err
			}
			continue
		}
		w.logger.Info().Str("job_id", job.ID).Str("kind", string(job.Kind)).Int("attempt", job.Attempts).Msg("picked job")
		if err := w.processor.Process(ctx, job.ID); err != nil && ctx.Err() == nil {
			w.logger.Warn().Err(err).Str("job_id", job.ID).Msg("job ended with error")
		}
	}
}

func (w *Worker) idle(ctx context.Context) error {
	t := time.NewTimer(w.idleWait)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
	case <-w.wake:
	}
	return nil
}

// Every runs fn immediately and then at each interval until ctx is cancelled.
func Every(ctx context.Context, interval time.Duration, name string, logger zerolog.Logger, fn func(context.Context) (int, error)) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		n, err := fn(ctx)
		switch {
		case err != nil && ctx.Err() == nil:
			logger.Error().Err(err).Str("task", name).Msg("sweep failed")
		case n > 0:
			logger.Info().Int("count", n).Str("task", name).Msg("sweep done")
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
