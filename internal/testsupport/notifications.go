package testsupport

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"genqueue/internal/domain"
)

// MemoryNotifications records notifications in insertion order.
type MemoryNotifications struct {
	mu    sync.Mutex
	items []domain.Notification
	// Err, when set, makes Create fail.
	Err error
}

func NewMemoryNotifications() *MemoryNotifications {
	return &MemoryNotifications{}
}

func (m *MemoryNotifications) Create(ctx context.Context, n *domain.Notification) error {
	if m.Err != nil {
		return m.Err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	n.ID = uuid.NewString()
	n.CreatedAt = time.Now().UTC()
	m.items = append(m.items, *n)
	return nil
}

func (m *MemoryNotifications) ListByUser(ctx context.Context, userID string, unreadOnly bool, limit int) ([]domain.Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.Notification, 0)
	for i := len(m.items) - 1; i >= 0; i-- {
		n := m.items[i]
		if n.UserID != userID || (unreadOnly && n.Read) {
			continue
		}
		out = append(out, n)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (m *MemoryNotifications) MarkRead(ctx context.Context, userID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.items {
		if m.items[i].ID == id && m.items[i].UserID == userID {
			m.items[i].Read = true
			return nil
		}
	}
	return domain.ErrNotFound
}

// Types returns the notification types recorded for userID, oldest first.
func (m *MemoryNotifications) Types(userID string) []domain.NotificationType {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.NotificationType
	for _, n := range m.items {
		if n.UserID == userID {
			out = append(out, n.Type)
		}
	}
	return out
}

var _ domain.NotificationRepository = (*MemoryNotifications)(nil)
