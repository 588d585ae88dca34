package jobs

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"genqueue/internal/domain"
)

const (
	DefaultListLimit = 10
	MaxListLimit     = 100
)

// Nudger wakes workers after a job is enqueued.
type Nudger interface {
	Nudge(ctx context.Context, jobID string) error
}

// SubmitRequest is a validated-on-submit generation request.
type SubmitRequest struct {
	JobType         string
	Prompt          string
	InputParameters map[string]any
	// Country and Locale are recorded on the started notification when known.
	Country string
	Locale  string
}

// QueueStatus summarizes capacity for the listing endpoint.
type QueueStatus struct {
	ActiveJobs int
	MaxAllowed int
	Available  int
}

// Service implements job admission and read models.
type Service struct {
	tx     domain.Transactor
	jobs   domain.JobRepository
	notes  *Notifier
	gate   *Gatekeeper
	kinds  *Registry
	nudger Nudger
	logger zerolog.Logger
}

func NewService(tx domain.Transactor, jobs domain.JobRepository, notes *Notifier, gate *Gatekeeper, kinds *Registry, nudger Nudger, logger zerolog.Logger) *Service {
	return &Service{tx: tx, jobs: jobs, notes: notes, gate: gate, kinds: kinds, nudger: nudger, logger: logger}
}

// Submit validates the request, admits it under the user's lock and enqueues
// it. It returns *ValidationError or *CapacityError for rejected requests.
func (s *Service) Submit(ctx context.Context, userID string, req SubmitRequest) (*domain.Job, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, domain.ErrUnauthorized
	}
	errs := fieldErrors{}
	prompt := strings.TrimSpace(req.Prompt)
	switch n := utf8.RuneCountInString(prompt); {
	case n == 0:
		errs.add("prompt", "is required")
	case n > domain.MaxPromptLength:
		errs.add("prompt", "must be at most %d characters", domain.MaxPromptLength)
	}
	kind, ok := domain.ParseJobKind(req.JobType)
	if !ok {
		errs.add("jobType", "must be one of image_generation, video_generation, audio_generation, lip_sync, face_swap")
		return nil, errs.err()
	}
	handler, err := s.kinds.Handler(kind)
	if err != nil {
		return nil, err
	}
	params, err := handler.Normalize(prompt, canonicalParams(req.InputParameters))
	if err != nil {
		var verr *ValidationError
		if errors.As(err, &verr) {
			for k, v := range verr.Details {
				errs.add(k, "%s", v)
			}
		} else {
			return nil, err
		}
	}
	if err := errs.err(); err != nil {
		return nil, err
	}

	job := &domain.Job{
		UserID:          userID,
		Type:            kind.PhysicalType(),
		Kind:            kind,
		Status:          domain.JobStatusPending,
		Prompt:          prompt,
		InputParameters: params,
	}
	err = s.tx.WithinTx(ctx, func(repo domain.JobRepository) error {
		if err := repo.LockUser(ctx, userID); err != nil {
			return fmt.Errorf("lock user: %w", err)
		}
		active, err := repo.ListActive(ctx, userID)
		if err != nil {
			return fmt.Errorf("load active jobs: %w", err)
		}
		if err := s.gate.Evaluate(active, kind); err != nil {
			return err
		}
		return repo.Create(ctx, job)
	})
	if err != nil {
		return nil, err
	}

	log := s.logger.With().Str("job_id", job.ID).Str("user_id", userID).Str("kind", string(kind)).Logger()
	log.Info().Msg("job enqueued")

	meta := map[string]any{"job_id": job.ID, "job_type": string(job.Type), "kind": string(kind)}
	if req.Country != "" {
		meta["country"] = req.Country
	}
	if req.Locale != "" {
		meta["locale"] = req.Locale
	}
	s.notes.Send(ctx, userID, domain.NotificationGenerationStarted,
		fmt.Sprintf("Your %s has started.", strings.ToLower(KindLabel(kind))), meta)

	if s.nudger != nil {
		if err := s.nudger.Nudge(ctx, job.ID); err != nil {
			log.Warn().Err(err).Msg("processing trigger failed; job left for workers")
		}
	}
	return job, nil
}

// List returns the user's jobs with the current queue status.
func (s *Service) List(ctx context.Context, filter domain.JobFilter) ([]domain.Job, QueueStatus, error) {
	filter.Limit = ClampLimit(filter.Limit)
	jobs, err := s.jobs.List(ctx, filter)
	if err != nil {
		return nil, QueueStatus{}, err
	}
	active, err := s.jobs.ListActive(ctx, filter.UserID)
	if err != nil {
		return nil, QueueStatus{}, err
	}
	status := QueueStatus{ActiveJobs: len(active), MaxAllowed: s.gate.Max()}
	status.Available = max(status.MaxAllowed-status.ActiveJobs, 0)
	return jobs, status, nil
}

// Active returns the gatekeeper view for the user, optionally for one kind.
func (s *Service) Active(ctx context.Context, userID string, kind domain.JobKind) (ActiveView, error) {
	active, err := s.jobs.ListActive(ctx, userID)
	if err != nil {
		return ActiveView{}, err
	}
	return s.gate.View(active, kind), nil
}

// ClampLimit applies the listing default and bounds.
func ClampLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultListLimit
	case limit > MaxListLimit:
		return MaxListLimit
	}
	return limit
}
