package domain

import (
	"context"
	"time"
)

// JobRepository defines persistence for job entities. Status updates are
// conditional on the current status so that terminal rows never change.
type JobRepository interface {
	Create(ctx context.Context, job *Job) error
	GetByID(ctx context.Context, jobID string) (*Job, error)
	List(ctx context.Context, filter JobFilter) ([]Job, error)
	ListActive(ctx context.Context, userID string) ([]Job, error)
	// LockUser serializes admission decisions for a user within a transaction.
	LockUser(ctx context.Context, userID string) error
	ClaimPending(ctx context.Context, lease time.Duration) (*Job, error)
	// ClaimByID leases one pending job. It returns ErrJobClaimed when the job
	// is pending under a live lease and ErrInvalidTransition when it is no
	// longer pending.
	ClaimByID(ctx context.Context, jobID string, lease time.Duration) (*Job, error)
	MarkProcessing(ctx context.Context, jobID, providerRef string) error
	Complete(ctx context.Context, jobID string, result JobResult, outputURL string, processingSeconds float64) error
	Fail(ctx context.Context, jobID, message string) error
	ListStale(ctx context.Context, olderThan time.Duration, limit int) ([]Job, error)
}

// Transactor runs fn with a job repository bound to a single transaction.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(JobRepository) error) error
}

// MediaRepository persists generated-media metadata.
type MediaRepository interface {
	Create(ctx context.Context, item *MediaItem) error
	GetByID(ctx context.Context, userID string, kind MediaKind, id string) (*MediaItem, error)
	ListByUser(ctx context.Context, userID string, kind MediaKind, limit, offset int) ([]MediaItem, error)
	ListByJob(ctx context.Context, jobID string) ([]MediaItem, error)
	Delete(ctx context.Context, userID string, kind MediaKind, id string) error
	ListExpired(ctx context.Context, before time.Time, limit int) ([]MediaItem, error)
	DeleteByID(ctx context.Context, id string) error
}

// NotificationRepository persists notification rows.
type NotificationRepository interface {
	Create(ctx context.Context, n *Notification) error
	ListByUser(ctx context.Context, userID string, unreadOnly bool, limit int) ([]Notification, error)
	MarkRead(ctx context.Context, userID, id string) error
}
