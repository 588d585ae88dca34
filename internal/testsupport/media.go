package testsupport

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"genqueue/internal/domain"
)

// MemoryMedia is an in-memory domain.MediaRepository enforcing the
// (job_id, source_url) uniqueness of the real table.
type MemoryMedia struct {
	mu    sync.Mutex
	items map[string]domain.MediaItem
	// CreateErr, when set, is returned by Create without storing the row.
	CreateErr error
}

func NewMemoryMedia() *MemoryMedia {
	return &MemoryMedia{items: make(map[string]domain.MediaItem)}
}

// All returns every stored row ordered by creation time.
func (m *MemoryMedia) All() []domain.MediaItem {
	return m.filter(func(domain.MediaItem) bool { return true })
}

func (m *MemoryMedia) Create(ctx context.Context, item *domain.MediaItem) error {
	if m.CreateErr != nil {
		return m.CreateErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.items {
		if existing.JobID == item.JobID && existing.SourceURL == item.SourceURL {
			return domain.ErrDuplicate
		}
	}
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	if item.CreatedAt.IsZero() {
		item.CreatedAt = time.Now().UTC()
	}
	m.items[item.ID] = *item
	return nil
}

func (m *MemoryMedia) GetByID(ctx context.Context, userID string, kind domain.MediaKind, id string) (*domain.MediaItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	item, ok := m.items[id]
	if !ok || item.UserID != userID || item.Kind != kind {
		return nil, domain.ErrNotFound
	}
	return &item, nil
}

func (m *MemoryMedia) ListByUser(ctx context.Context, userID string, kind domain.MediaKind, limit, offset int) ([]domain.MediaItem, error) {
	now := time.Now()
	out := m.filter(func(i domain.MediaItem) bool {
		return i.UserID == userID && (kind == "" || i.Kind == kind) && i.ExpiresAt.After(now)
	})
	sort.SliceStable(out, func(a, b int) bool { return out[a].CreatedAt.After(out[b].CreatedAt) })
	if offset >= len(out) {
		return []domain.MediaItem{}, nil
	}
	out = out[offset:]
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryMedia) ListByJob(ctx context.Context, jobID string) ([]domain.MediaItem, error) {
	return m.filter(func(i domain.MediaItem) bool { return i.JobID == jobID }), nil
}

func (m *MemoryMedia) Delete(ctx context.Context, userID string, kind domain.MediaKind, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	item, ok := m.items[id]
	if !ok || item.UserID != userID || item.Kind != kind {
		return domain.ErrNotFound
	}
	delete(m.items, id)
	return nil
}

func (m *MemoryMedia) ListExpired(ctx context.Context, before time.Time, limit int) ([]domain.MediaItem, error) {
	out := m.filter(func(i domain.MediaItem) bool { return !i.ExpiresAt.After(before) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryMedia) DeleteByID(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.items, id)
	return nil
}

func (m *MemoryMedia) filter(match func(domain.MediaItem) bool) []domain.MediaItem {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.MediaItem, 0)
	for _, i := range m.items {
		if match(i) {
			out = append(out, i)
		}
	}
	sort.SliceStable(out, func(a, b int) bool { return out[a].CreatedAt.Before(out[b].CreatedAt) })
	return out
}

var _ domain.MediaRepository = (*MemoryMedia)(nil)
