package repo

import (
	"context"
	"time"

	"github.com/google/uuid"

	"genqueue/internal/domain"
	"genqueue/internal/infra"
	"genqueue/internal/sqlinline"
)

// MediaRepositoryPG persists generated_media rows.
type MediaRepositoryPG struct {
	exec infra.SQLExecutor
}

func NewMediaRepository(exec infra.SQLExecutor) *MediaRepositoryPG {
	return &MediaRepositoryPG{exec: exec}
}

// Create inserts the metadata row. A second insert for the same job and
// source URL returns domain.ErrDuplicate.
func (r *MediaRepositoryPG) Create(ctx context.Context, item *domain.MediaItem) error {
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	if item.CreatedAt.IsZero() {
		item.CreatedAt = time.Now().UTC()
	}
	var id string
	err := r.exec.QueryRow(ctx, sqlinline.QInsertMedia,
		item.ID,
		item.UserID,
		item.JobID,
		string(item.Kind),
		item.Prompt,
		item.PredictionID,
		item.SourceURL,
		item.Bucket,
		item.StoragePath,
		item.PublicURL,
		item.ContentType,
		item.Bytes,
		item.ExpiresAt,
		item.CreatedAt,
	).Scan(&id)
	if err != nil {
		if infra.IsNoRows(err) {
			return domain.ErrDuplicate
		}
		return err
	}
	return nil
}

func (r *MediaRepositoryPG) GetByID(ctx context.Context, userID string, kind domain.MediaKind, id string) (*domain.MediaItem, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, domain.ErrNotFound
	}
	item, err := scanMedia(r.exec.QueryRow(ctx, sqlinline.QSelectMediaByID, id, userID, string(kind)))
	if err != nil {
		if infra.IsNoRows(err) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return item, nil
}

// ListByUser returns unexpired media for the user. An empty kind lists all kinds.
func (r *MediaRepositoryPG) ListByUser(ctx context.Context, userID string, kind domain.MediaKind, limit, offset int) ([]domain.MediaItem, error) {
	return r.queryMedia(ctx, sqlinline.QListMediaByUser, userID, string(kind), limit, offset)
}

func (r *MediaRepositoryPG) ListByJob(ctx context.Context, jobID string) ([]domain.MediaItem, error) {
	return r.queryMedia(ctx, sqlinline.QListMediaByJob, jobID)
}

func (r *MediaRepositoryPG) Delete(ctx context.Context, userID string, kind domain.MediaKind, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return domain.ErrNotFound
	}
	tag, err := r.exec.Exec(ctx, sqlinline.QDeleteMediaForUser, id, userID, string(kind))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *MediaRepositoryPG) ListExpired(ctx context.Context, before time.Time, limit int) ([]domain.MediaItem, error) {
	return r.queryMedia(ctx, sqlinline.QListExpiredMedia, before, limit)
}

func (r *MediaRepositoryPG) DeleteByID(ctx context.Context, id string) error {
	_, err := r.exec.Exec(ctx, sqlinline.QDeleteMediaByID, id)
	return err
}

func (r *MediaRepositoryPG) queryMedia(ctx context.Context, query string, args ...any) ([]domain.MediaItem, error) {
	rows, err := r.exec.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]domain.MediaItem, 0)
	for rows.Next() {
		item, err := scanMedia(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *item)
	}
	return items, rows.Err()
}

func scanMedia(row rowScanner) (*domain.MediaItem, error) {
	var (
		item domain.MediaItem
		kind string
	)
	if err := row.Scan(
		&item.ID,
		&item.UserID,
		&item.JobID,
		&kind,
		&item.Prompt,
		&item.PredictionID,
		&item.SourceURL,
		&item.Bucket,
		&item.StoragePath,
		&item.PublicURL,
		&item.ContentType,
		&item.Bytes,
		&item.ExpiresAt,
		&item.CreatedAt,
	); err != nil {
		return nil, err
	}
	item.Kind = domain.MediaKind(kind)
	return &item, nil
}

var _ domain.MediaRepository = (*MediaRepositoryPG)(nil)
