package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"genqueue/internal/domain"
	"genqueue/internal/jobs"
)

const (
	defaultGalleryLimit = 20
	maxGalleryLimit     = 100
)

func (a *App) ListGallery(w http.ResponseWriter, r *http.Request) {
	userID := a.requireUser(w, r)
	if userID == "" {
		return
	}
	q := r.URL.Query()
	var kind domain.MediaKind
	if raw := q.Get("type"); raw != "" && raw != "all" {
		k, ok := domain.ParseMediaKind(raw)
		if !ok {
			a.error(w, http.StatusBadRequest, "bad_request", "type must be image, video or audio")
			return
		}
		kind = k
	}
	limit := queryInt(q.Get("limit"), defaultGalleryLimit)
	if limit <= 0 || limit > maxGalleryLimit {
		limit = defaultGalleryLimit
	}
	offset := max(queryInt(q.Get("offset"), 0), 0)

	items, err := a.Media.ListByUser(r.Context(), userID, kind, limit, offset)
	if err != nil {
		a.Logger.Error().Err(err).Str("user_id", userID).Msg("list gallery failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to load gallery")
		return
	}
	out := make([]mediaDTO, 0, len(items))
	for _, item := range items {
		out = append(out, toMediaDTO(item))
	}
	a.json(w, http.StatusOK, map[string]any{"items": out, "count": len(out), "limit": limit, "offset": offset})
}

func (a *App) DeleteGallery(w http.ResponseWriter, r *http.Request) {
	userID := a.requireUser(w, r)
	if userID == "" {
		return
	}
	kind, ok := domain.ParseMediaKind(chi.URLParam(r, "type"))
	if !ok {
		a.error(w, http.StatusBadRequest, "bad_request", "type must be image, video or audio")
		return
	}
	id := chi.URLParam(r, "id")
	if err := jobs.DeleteMedia(r.Context(), a.Media, a.Buckets, userID, kind, id); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			a.error(w, http.StatusNotFound, "not_found", "media not found")
			return
		}
		a.Logger.Error().Err(err).Str("media_id", id).Msg("delete media failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to delete media")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func queryInt(raw string, fallback int) int {
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}
