package jobs

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"genqueue/internal/domain"
	"genqueue/internal/providers/replicate"
)

// Provider is the prediction lifecycle used by the processor.
type Provider interface {
	Submit(ctx context.Context, req replicate.PredictionRequest) (*replicate.Prediction, error)
	Await(ctx context.Context, id string, maxAttempts int) (*replicate.Prediction, error)
	Get(ctx context.Context, id string) (*replicate.Prediction, error)
}

// ProcessorConfig wires the processor's collaborators.
type ProcessorConfig struct {
	Jobs         domain.JobRepository
	Kinds        *Registry
	Provider     Provider
	Stager       *Stager
	Materializer *Materializer
	Notifier     *Notifier
	PollInterval time.Duration
	Logger       zerolog.Logger
}

// Processor drives a job from pending to a terminal state. Running it twice
// for the same job is safe: terminal jobs are skipped and every status update
// is conditional on the current status.
type Processor struct {
	jobs         domain.JobRepository
	kinds        *Registry
	provider     Provider
	stager       *Stager
	materializer *Materializer
	notes        *Notifier
	pollInterval time.Duration
	logger       zerolog.Logger
	now          func() time.Time
}

func NewProcessor(cfg ProcessorConfig) *Processor {
	interval := cfg.PollInterval
	if interval <= 0 {
		interval = replicate.DefaultPollInterval
	}
	return &Processor{
		jobs:         cfg.Jobs,
		kinds:        cfg.Kinds,
		provider:     cfg.Provider,
		stager:       cfg.Stager,
		materializer: cfg.Materializer,
		notes:        cfg.Notifier,
		pollInterval: interval,
		logger:       cfg.Logger,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// Process runs the job. Pending jobs are submitted to the provider; processing
// jobs with a provider reference resume polling. The returned error is the
// provider or storage failure that terminated the job, if any.
func (p *Processor) Process(ctx context.Context, jobID string) error {
	job, err := p.jobs.GetByID(ctx, jobID)
	if err != nil {
		return err
	}
	log := p.logger.With().Str("job_id", job.ID).Str("user_id", job.UserID).Str("kind", string(job.Kind)).Logger()
	if job.Status.Terminal() {
		log.Debug().Str("status", string(job.Status)).Msg("job already finished")
		return nil
	}
	handler, err := p.kinds.Handler(job.Kind)
	if err != nil {
		return p.fail(ctx, job, err)
	}

	predictionID := job.ProviderReference
	if job.Status == domain.JobStatusProcessing && predictionID != "" {
		log.Info().Str("prediction_id", predictionID).Msg("resuming provider polling")
	} else {
		input, cleanup, err := p.stager.Stage(ctx, job.ID, handler.InlineFields(), handler.ProviderInput(job))
		defer cleanup()
		if err != nil {
			return p.fail(ctx, job, err)
		}
		pred, err := p.provider.Submit(ctx, replicate.PredictionRequest{Model: handler.Model(), Input: input})
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return p.fail(ctx, job, err)
		}
		if err := p.jobs.MarkProcessing(ctx, job.ID, pred.ID); err != nil {
			if errors.Is(err, domain.ErrInvalidTransition) {
				log.Warn().Str("prediction_id", pred.ID).Msg("job advanced by another processor")
				return domain.ErrJobClaimed
			}
			return err
		}
		predictionID = pred.ID
		log.Info().Str("prediction_id", predictionID).Msg("prediction submitted")
	}

	pred, err := p.provider.Await(ctx, predictionID, handler.PollAttempts())
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return p.fail(ctx, job, err)
	}
	return p.finish(ctx, job, pred)
}

// Reconcile re-queries the provider for a job stuck in processing and
// finalizes it when the prediction has ended or has overrun its poll budget.
func (p *Processor) Reconcile(ctx context.Context, job domain.Job) error {
	if job.Status != domain.JobStatusProcessing {
		return nil
	}
	if job.ProviderReference == "" {
		return p.fail(ctx, &job, errors.New("processing job has no provider reference"))
	}
	handler, err := p.kinds.Handler(job.Kind)
	if err != nil {
		return p.fail(ctx, &job, err)
	}
	pred, err := p.provider.Get(ctx, job.ProviderReference)
	if err != nil {
		var apiErr *replicate.APIError
		if errors.As(err, &apiErr) && !apiErr.Retryable() {
			return p.fail(ctx, &job, err)
		}
		return err
	}
	done, outcome := replicate.Outcome(pred)
	if !done {
		budget := p.pollInterval * time.Duration(handler.PollAttempts())
		started := job.UpdatedAt
		if job.StartedAt != nil {
			started = *job.StartedAt
		}
		if p.now().Sub(started) > 2*budget {
			return p.fail(ctx, &job, &replicate.APIError{
				Kind:    replicate.ErrorTimeout,
				Message: fmt.Sprintf("generation timed out after %s", p.now().Sub(started).Round(time.Second)),
			})
		}
		return nil
	}
	if outcome != nil {
		return p.fail(ctx, &job, outcome)
	}
	return p.finish(ctx, &job, pred)
}

func (p *Processor) finish(ctx context.Context, job *domain.Job, pred *replicate.Prediction) error {
	log := p.logger.With().Str("job_id", job.ID).Str("prediction_id", pred.ID).Logger()
	urls := replicate.NormalizeOutput(pred.Output, log)
	result, err := p.materializer.Materialize(ctx, job, pred.ID, urls)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return p.fail(ctx, job, fmt.Errorf("store outputs: %w", err))
	}
	if len(result.URLs) == 0 {
		return p.fail(ctx, job, &replicate.APIError{Kind: replicate.ErrorProvider, Message: "no outputs could be stored"})
	}

	seconds := p.now().Sub(job.CreatedAt).Seconds()
	if err := p.jobs.Complete(ctx, job.ID, result, result.URLs[0], seconds); err != nil {
		if errors.Is(err, domain.ErrJobTerminal) {
			log.Info().Msg("job already finalized")
			return nil
		}
		return err
	}
	log.Info().Int("outputs", len(result.URLs)).Int("skipped", result.Skipped).Float64("seconds", seconds).Msg("job completed")
	p.notes.Send(ctx, job.UserID, domain.NotificationGenerationCompleted,
		fmt.Sprintf("Your %s is ready.", strings.ToLower(KindLabel(job.Kind))),
		map[string]any{"job_id": job.ID, "output_url": result.URLs[0], "outputs": len(result.URLs)})
	return nil
}

// fail records cause on the job and returns it.
func (p *Processor) fail(ctx context.Context, job *domain.Job, cause error) error {
	msg := replicate.UserMessage(cause)
	log := p.logger.With().Str("job_id", job.ID).Logger()
	if err := p.jobs.Fail(ctx, job.ID, msg); err != nil {
		if errors.Is(err, domain.ErrJobTerminal) {
			log.Info().Msg("job already finalized")
			return cause
		}
		log.Error().Err(err).Msg("failed to mark job failed")
		return cause
	}
	log.Warn().Err(cause).Msg("job failed")
	p.notes.Send(ctx, job.UserID, domain.NotificationGenerationFailed,
		fmt.Sprintf("Your %s failed: %s", strings.ToLower(KindLabel(job.Kind)), msg),
		map[string]any{"job_id": job.ID, "error": msg})
	return cause
}
