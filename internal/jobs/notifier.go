package jobs

import (
	"context"

	"github.com/rs/zerolog"

	"genqueue/internal/domain"
)

// Notifier writes best-effort notification rows. Failures are logged only.
type Notifier struct {
	repo   domain.NotificationRepository
	logger zerolog.Logger
}

func NewNotifier(repo domain.NotificationRepository, logger zerolog.Logger) *Notifier {
	return &Notifier{repo: repo, logger: logger}
}

func (n *Notifier) Send(ctx context.Context, userID string, typ domain.NotificationType, message string, meta map[string]any) {
	if n == nil || n.repo == nil {
		return
	}
	note := &domain.Notification{UserID: userID, Type: typ, Message: message, Metadata: meta}
	if err := n.repo.Create(ctx, note); err != nil {
		n.logger.Warn().Err(err).Str("user_id", userID).Str("type", string(typ)).Msg("notification insert failed")
	}
}
