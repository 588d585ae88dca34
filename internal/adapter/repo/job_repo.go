package repo

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"genqueue/internal/domain"
	"genqueue/internal/infra"
	"genqueue/internal/sqlinline"
)

// JobRepositoryPG implements domain.JobRepository.
type JobRepositoryPG struct {
	exec infra.SQLExecutor
}

// NewJobRepository creates a new job repository backed by PostgreSQL.
func NewJobRepository(exec infra.SQLExecutor) *JobRepositoryPG {
	return &JobRepositoryPG{exec: exec}
}

// Create inserts a new pending job record.
func (r *JobRepositoryPG) Create(ctx context.Context, job *domain.Job) error {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	params, err := json.Marshal(nonNilMap(job.InputParameters))
	if err != nil {
		return fmt.Errorf("encode input parameters: %w", err)
	}
	job.Status = domain.JobStatusPending
	return r.exec.QueryRow(ctx, sqlinline.QInsertJob,
		job.ID,
		job.UserID,
		string(job.Type),
		string(job.Kind),
		job.Prompt,
		params,
	).Scan(&job.CreatedAt, &job.UpdatedAt)
}

// GetByID fetches a job by its identifier.
func (r *JobRepositoryPG) GetByID(ctx context.Context, jobID string) (*domain.Job, error) {
	if _, err := uuid.Parse(jobID); err != nil {
		return nil, domain.ErrNotFound
	}
	job, err := scanJob(r.exec.QueryRow(ctx, sqlinline.QSelectJobByID, jobID))
	if err != nil {
		if infra.IsNoRows(err) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return job, nil
}

// List returns the user's jobs, newest first.
func (r *JobRepositoryPG) List(ctx context.Context, filter domain.JobFilter) ([]domain.Job, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 10
	}
	return r.queryJobs(ctx, sqlinline.QListJobsByUser, filter.UserID, filter.JobID, string(filter.Status), limit)
}

// ListActive returns the user's pending and processing jobs, oldest first.
func (r *JobRepositoryPG) ListActive(ctx context.Context, userID string) ([]domain.Job, error) {
	return r.queryJobs(ctx, sqlinline.QListActiveJobsByUser, userID)
}

// LockUser takes a transaction-scoped advisory lock keyed by user.
func (r *JobRepositoryPG) LockUser(ctx context.Context, userID string) error {
	_, err := r.exec.Exec(ctx, sqlinline.QLockUserAdmission, userID)
	return err
}

// ClaimPending leases the oldest unclaimed pending job.
func (r *JobRepositoryPG) ClaimPending(ctx context.Context, lease time.Duration) (*domain.Job, error) {
	job, err := scanJob(r.exec.QueryRow(ctx, sqlinline.QClaimPendingJob, lease.Seconds()))
	if err != nil {
		if infra.IsNoRows(err) {
			return nil, domain.ErrNoJobAvailable
		}
		return nil, err
	}
	return job, nil
}

// ClaimByID leases a specific pending job under the same lease as ClaimPending.
func (r *JobRepositoryPG) ClaimByID(ctx context.Context, jobID string, lease time.Duration) (*domain.Job, error) {
	if _, err := uuid.Parse(jobID); err != nil {
		return nil, domain.ErrNotFound
	}
	job, err := scanJob(r.exec.QueryRow(ctx, sqlinline.QClaimJobByID, jobID, lease.Seconds()))
	if err == nil {
		return job, nil
	}
	if !infra.IsNoRows(err) {
		return nil, err
	}
	current, err := r.GetByID(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if current.Status == domain.JobStatusPending {
		return nil, domain.ErrJobClaimed
	}
	return nil, domain.ErrInvalidTransition
}

// MarkProcessing records the provider reference and moves a pending job forward.
func (r *JobRepositoryPG) MarkProcessing(ctx context.Context, jobID, providerRef string) error {
	tag, err := r.exec.Exec(ctx, sqlinline.QMarkJobProcessing, jobID, providerRef)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrInvalidTransition
	}
	return nil
}

// Complete finalizes an active job with its materialized result.
func (r *JobRepositoryPG) Complete(ctx context.Context, jobID string, result domain.JobResult, outputURL string, processingSeconds float64) error {
	payload, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	tag, err := r.exec.Exec(ctx, sqlinline.QCompleteJob, jobID, payload, outputURL, processingSeconds)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrJobTerminal
	}
	return nil
}

// Fail marks an active job as failed.
func (r *JobRepositoryPG) Fail(ctx context.Context, jobID, message string) error {
	tag, err := r.exec.Exec(ctx, sqlinline.QFailJob, jobID, message)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrJobTerminal
	}
	return nil
}

// ListStale returns processing jobs that have not moved for longer than olderThan.
func (r *JobRepositoryPG) ListStale(ctx context.Context, olderThan time.Duration, limit int) ([]domain.Job, error) {
	return r.queryJobs(ctx, sqlinline.QListStaleJobs, olderThan.Seconds(), limit)
}

func (r *JobRepositoryPG) queryJobs(ctx context.Context, query string, args ...any) ([]domain.Job, error) {
	rows, err := r.exec.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	jobs := make([]domain.Job, 0)
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *job)
	}
	return jobs, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*domain.Job, error) {
	var (
		job                   domain.Job
		jobType, kind, status string
		params, result        []byte
	)
	if err := row.Scan(
		&job.ID,
		&job.UserID,
		&jobType,
		&kind,
		&status,
		&job.Prompt,
		&params,
		&job.ProviderReference,
		&result,
		&job.OutputURL,
		&job.ErrorMessage,
		&job.Attempts,
		&job.ClaimedAt,
		&job.CreatedAt,
		&job.UpdatedAt,
		&job.StartedAt,
		&job.CompletedAt,
		&job.ProcessingTimeSeconds,
	); err != nil {
		return nil, err
	}
	job.Type = domain.JobType(jobType)
	job.Status = domain.JobStatus(status)
	if len(params) > 0 {
		if err := json.Unmarshal(params, &job.InputParameters); err != nil {
			return nil, fmt.Errorf("decode input parameters for job %s: %w", job.ID, err)
		}
	}
	if parsed, ok := domain.ParseJobKind(kind); ok {
		job.Kind = parsed
	} else {
		job.Kind = domain.KindFromStored(job.Type, job.InputParameters)
	}
	if len(result) > 0 {
		var res domain.JobResult
		if err := json.Unmarshal(result, &res); err != nil {
			return nil, fmt.Errorf("decode result for job %s: %w", job.ID, err)
		}
		job.ResultData = &res
	}
	return &job, nil
}

func nonNilMap(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}

var _ domain.JobRepository = (*JobRepositoryPG)(nil)
