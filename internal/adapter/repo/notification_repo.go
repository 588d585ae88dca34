package repo

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"genqueue/internal/domain"
	"genqueue/internal/infra"
	"genqueue/internal/sqlinline"
)

// NotificationRepositoryPG persists user notifications.
type NotificationRepositoryPG struct {
	exec infra.SQLExecutor
}

func NewNotificationRepository(exec infra.SQLExecutor) *NotificationRepositoryPG {
	return &NotificationRepositoryPG{exec: exec}
}

func (r *NotificationRepositoryPG) Create(ctx context.Context, n *domain.Notification) error {
	meta, err := json.Marshal(nonNilMap(n.Metadata))
	if err != nil {
		return fmt.Errorf("encode notification metadata: %w", err)
	}
	return r.exec.QueryRow(ctx, sqlinline.QInsertNotification,
		n.UserID, string(n.Type), n.Message, meta,
	).Scan(&n.ID, &n.CreatedAt)
}

func (r *NotificationRepositoryPG) ListByUser(ctx context.Context, userID string, unreadOnly bool, limit int) ([]domain.Notification, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.exec.Query(ctx, sqlinline.QListNotifications, userID, unreadOnly, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.Notification, 0)
	for rows.Next() {
		var (
			n    domain.Notification
			typ  string
			meta []byte
		)
		if err := rows.Scan(&n.ID, &n.UserID, &typ, &n.Message, &meta, &n.Read, &n.CreatedAt); err != nil {
			return nil, err
		}
		n.Type = domain.NotificationType(typ)
		if len(meta) > 0 {
			if err := json.Unmarshal(meta, &n.Metadata); err != nil {
				return nil, fmt.Errorf("decode notification metadata: %w", err)
			}
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

func (r *NotificationRepositoryPG) MarkRead(ctx context.Context, userID, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return domain.ErrNotFound
	}
	tag, err := r.exec.Exec(ctx, sqlinline.QMarkNotificationRead, id, userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

var _ domain.NotificationRepository = (*NotificationRepositoryPG)(nil)
