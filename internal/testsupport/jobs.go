package testsupport

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"genqueue/internal/domain"
)

// MemoryJobs is an in-memory domain.JobRepository and domain.Transactor.
// WithinTx serializes callers, which stands in for the per-user advisory lock.
type MemoryJobs struct {
	txMu sync.Mutex
	mu   sync.Mutex
	jobs map[string]*domain.Job
	Now  func() time.Time
	// ListActiveErr, when set, is returned by ListActive.
	ListActiveErr error
}

func NewMemoryJobs() *MemoryJobs {
	return &MemoryJobs{
		jobs: make(map[string]*domain.Job),
		Now:  func() time.Time { return time.Now().UTC() },
	}
}

func (m *MemoryJobs) WithinTx(ctx context.Context, fn func(domain.JobRepository) error) error {
	m.txMu.Lock()
	defer m.txMu.Unlock()

	m.mu.Lock()
	snapshot := make(map[string]domain.Job, len(m.jobs))
	for id, j := range m.jobs {
		snapshot[id] = *j
	}
	m.mu.Unlock()

	if err := fn(m); err != nil {
		m.mu.Lock()
		m.jobs = make(map[string]*domain.Job, len(snapshot))
		for id, j := range snapshot {
			j := j
			m.jobs[id] = &j
		}
		m.mu.Unlock()
		return err
	}
	return nil
}

// Put stores a copy of job as-is, assigning an id and timestamps when missing.
func (m *MemoryJobs) Put(job domain.Job) domain.Job {
	m.mu.Lock()
	defer m.mu.Unlock()
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = m.Now()
	}
	if job.UpdatedAt.IsZero() {
		job.UpdatedAt = job.CreatedAt
	}
	if job.Type == "" {
		job.Type = job.Kind.PhysicalType()
	}
	m.jobs[job.ID] = &job
	return job
}

// Get returns a copy of the stored job.
func (m *MemoryJobs) Get(id string) (domain.Job, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok {
		return domain.Job{}, false
	}
	return *j, true
}

func (m *MemoryJobs) Create(ctx context.Context, job *domain.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	now := m.Now()
	job.Status = domain.JobStatusPending
	job.CreatedAt = now
	job.UpdatedAt = now
	cp := *job
	m.jobs[job.ID] = &cp
	return nil
}

func (m *MemoryJobs) GetByID(ctx context.Context, jobID string) (*domain.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[jobID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *j
	return &cp, nil
}

func (m *MemoryJobs) List(ctx context.Context, filter domain.JobFilter) ([]domain.Job, error) {
	all := m.sorted(func(j *domain.Job) bool {
		return j.UserID == filter.UserID &&
			(filter.JobID == "" || j.ID == filter.JobID) &&
			(filter.Status == "" || j.Status == filter.Status)
	})
	sort.SliceStable(all, func(a, b int) bool { return all[a].CreatedAt.After(all[b].CreatedAt) })
	if filter.Limit > 0 && len(all) > filter.Limit {
		all = all[:filter.Limit]
	}
	return all, nil
}

func (m *MemoryJobs) ListActive(ctx context.Context, userID string) ([]domain.Job, error) {
	if m.ListActiveErr != nil {
		return nil, m.ListActiveErr
	}
	return m.sorted(func(j *domain.Job) bool { return j.UserID == userID && j.Status.Active() }), nil
}

func (m *MemoryJobs) LockUser(ctx context.Context, userID string) error { return nil }

func (m *MemoryJobs) ClaimPending(ctx context.Context, lease time.Duration) (*domain.Job, error) {
	now := m.Now()
	m.mu.Lock()
	defer m.mu.Unlock()
	var next *domain.Job
	for _, j := range m.jobs {
		if j.Status != domain.JobStatusPending {
			continue
		}
		if j.ClaimedAt != nil && j.ClaimedAt.After(now.Add(-lease)) {
			continue
		}
		if next == nil || j.CreatedAt.Before(next.CreatedAt) {
			next = j
		}
	}
	if next == nil {
		return nil, domain.ErrNoJobAvailable
	}
	next.ClaimedAt = &now
	next.Attempts++
	cp := *next
	return &cp, nil
}

func (m *MemoryJobs) ClaimByID(ctx context.Context, jobID string, lease time.Duration) (*domain.Job, error) {
	now := m.Now()
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[jobID]
	switch {
	case !ok:
		return nil, domain.ErrNotFound
	case j.Status != domain.JobStatusPending:
		return nil, domain.ErrInvalidTransition
	case j.ClaimedAt != nil && j.ClaimedAt.After(now.Add(-lease)):
		return nil, domain.ErrJobClaimed
	}
	j.ClaimedAt = &now
	j.Attempts++
	cp := *j
	return &cp, nil
}

func (m *MemoryJobs) MarkProcessing(ctx context.Context, jobID, providerRef string) error {
	return m.update(jobID, []domain.JobStatus{domain.JobStatusPending}, domain.ErrInvalidTransition, func(j *domain.Job, now time.Time) {
		j.Status = domain.JobStatusProcessing
		j.ProviderReference = providerRef
		if j.StartedAt == nil {
			j.StartedAt = &now
		}
	})
}

func (m *MemoryJobs) Complete(ctx context.Context, jobID string, result domain.JobResult, outputURL string, processingSeconds float64) error {
	return m.update(jobID, []domain.JobStatus{domain.JobStatusPending, domain.JobStatusProcessing}, domain.ErrJobTerminal, func(j *domain.Job, now time.Time) {
		j.Status = domain.JobStatusCompleted
		res := result
		j.ResultData = &res
		j.OutputURL = outputURL
		j.ErrorMessage = ""
		secs := processingSeconds
		j.ProcessingTimeSeconds = &secs
		j.CompletedAt = &now
	})
}

func (m *MemoryJobs) Fail(ctx context.Context, jobID, message string) error {
	return m.update(jobID, []domain.JobStatus{domain.JobStatusPending, domain.JobStatusProcessing}, domain.ErrJobTerminal, func(j *domain.Job, now time.Time) {
		j.Status = domain.JobStatusFailed
		j.ErrorMessage = message
		secs := now.Sub(j.CreatedAt).Seconds()
		j.ProcessingTimeSeconds = &secs
		j.CompletedAt = &now
	})
}

func (m *MemoryJobs) ListStale(ctx context.Context, olderThan time.Duration, limit int) ([]domain.Job, error) {
	cutoff := m.Now().Add(-olderThan)
	out := m.sorted(func(j *domain.Job) bool {
		if j.Status != domain.JobStatusProcessing {
			return false
		}
		ref := j.UpdatedAt
		if j.StartedAt != nil {
			ref = *j.StartedAt
		}
		return ref.Before(cutoff)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryJobs) update(jobID string, from []domain.JobStatus, noop error, apply func(*domain.Job, time.Time)) error {
	now := m.Now()
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[jobID]
	if !ok {
		return noop
	}
	allowed := false
	for _, s := range from {
		if j.Status == s {
			allowed = true
		}
	}
	if !allowed {
		return noop
	}
	apply(j, now)
	j.UpdatedAt = now
	return nil
}

// sorted returns copies of matching jobs, oldest first.
func (m *MemoryJobs) sorted(match func(*domain.Job) bool) []domain.Job {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.Job, 0)
	for _, j := range m.jobs {
		if match(j) {
			out = append(out, *j)
		}
	}
	sort.SliceStable(out, func(a, b int) bool {
		if out[a].CreatedAt.Equal(out[b].CreatedAt) {
			return out[a].ID < out[b].ID
		}
		return out[a].CreatedAt.Before(out[b].CreatedAt)
	})
	return out
}

var (
	_ domain.JobRepository = (*MemoryJobs)(nil)
	_ domain.Transactor    = (*MemoryJobs)(nil)
)
