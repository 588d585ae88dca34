package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"genqueue/internal/domain"
	"genqueue/internal/jobs"
	"genqueue/internal/middleware"
	"genqueue/internal/realtime"
	"genqueue/internal/storage"
)

// App carries the dependencies shared by the HTTP handlers.
type App struct {
	Jobs          *jobs.Service
	JobStore      domain.JobRepository
	Processor     *jobs.Processor
	Media         domain.MediaRepository
	Buckets       *storage.BucketSet
	Notifications domain.NotificationRepository
	Hub           *realtime.Hub
	InternalToken string
	ClaimLease    time.Duration
	Logger        zerolog.Logger
}

type errorResponse struct {
	Error   string            `json:"error"`
	Code    string            `json:"code"`
	Details map[string]string `json:"details,omitempty"`
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) error(w http.ResponseWriter, status int, code, message string) {
	a.json(w, status, errorResponse{Error: message, Code: code})
}

func (a *App) currentUserID(r *http.Request) string {
	return middleware.UserIDFromContext(r.Context())
}

// requireUser writes 401 and returns "" when the request is unauthenticated.
func (a *App) requireUser(w http.ResponseWriter, r *http.Request) string {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
	}
	return userID
}
