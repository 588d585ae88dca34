package handlers

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"genqueue/internal/domain"
)

func (a *App) ListNotifications(w http.ResponseWriter, r *http.Request) {
	userID := a.requireUser(w, r)
	if userID == "" {
		return
	}
	q := r.URL.Query()
	limit := queryInt(q.Get("limit"), 20)
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	notes, err := a.Notifications.ListByUser(r.Context(), userID, q.Get("unread") == "true", limit)
	if err != nil {
		a.Logger.Error().Err(err).Str("user_id", userID).Msg("list notifications failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to load notifications")
		return
	}
	items := make([]notificationDTO, 0, len(notes))
	for _, n := range notes {
		meta := n.Metadata
		if meta == nil {
			meta = map[string]any{}
		}
		items = append(items, notificationDTO{ID: n.ID, Type: string(n.Type), Message: n.Message, Metadata: meta, Read: n.Read, CreatedAt: n.CreatedAt})
	}
	a.json(w, http.StatusOK, map[string]any{"items": items, "count": len(items)})
}

func (a *App) MarkNotificationRead(w http.ResponseWriter, r *http.Request) {
	userID := a.requireUser(w, r)
	if userID == "" {
		return
	}
	if err := a.Notifications.MarkRead(r.Context(), userID, chi.URLParam(r, "id")); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			a.error(w, http.StatusNotFound, "not_found", "notification not found")
			return
		}
		a.error(w, http.StatusInternalServerError, "internal", "failed to update notification")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
