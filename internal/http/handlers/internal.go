package handlers

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"genqueue/internal/domain"
	"genqueue/internal/providers/replicate"
)

// processTimeout bounds a detached processing run started by the trigger.
const processTimeout = 30 * time.Minute

const defaultClaimLease = 15 * time.Minute

func (a *App) claimLease() time.Duration {
	if a.ClaimLease > 0 {
		return a.ClaimLease
	}
	return defaultClaimLease
}

type processJobRequest struct {
	JobID string `json:"jobId"`
}

// ProcessJob is the recovery trigger used by operators. A pending job is
// leased first, so a worker holding it turns the request into a 409 before
// anything reaches the provider. Without ?wait=true the run is detached and
// 202 is returned immediately.
func (a *App) ProcessJob(w http.ResponseWriter, r *http.Request) {
	if a.InternalToken == "" {
		a.error(w, http.StatusForbidden, "forbidden", "internal endpoint disabled")
		return
	}
	token := r.Header.Get("X-Internal-Token")
	if subtle.ConstantTimeCompare([]byte(token), []byte(a.InternalToken)) != 1 {
		a.error(w, http.StatusUnauthorized, "unauthorized", "invalid internal token")
		return
	}
	if a.Processor == nil {
		a.error(w, http.StatusServiceUnavailable, "unavailable", "processing is not configured")
		return
	}
	var req processJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.JobID == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "jobId required")
		return
	}
	job, err := a.JobStore.GetByID(r.Context(), req.JobID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			a.error(w, http.StatusNotFound, "not_found", "job not found")
			return
		}
		a.error(w, http.StatusInternalServerError, "internal", "failed to load job")
		return
	}

	if job.Status == domain.JobStatusPending {
		if _, err := a.JobStore.ClaimByID(r.Context(), job.ID, a.claimLease()); err != nil {
			switch {
			case errors.Is(err, domain.ErrJobClaimed):
				a.error(w, http.StatusConflict, "conflict", "job is being processed elsewhere")
				return
			case !errors.Is(err, domain.ErrInvalidTransition):
				a.error(w, http.StatusInternalServerError, "internal", "failed to claim job")
				return
			}
		}
	}

	if r.URL.Query().Get("wait") != "true" {
		base := context.WithoutCancel(r.Context())
		go func(id string) {
			ctx, cancel := context.WithTimeout(base, processTimeout)
			defer cancel()
			if err := a.Processor.Process(ctx, id); err != nil {
				a.Logger.Warn().Err(err).Str("job_id", id).Msg("triggered processing ended with error")
			}
		}(job.ID)
		a.json(w, http.StatusAccepted, map[string]any{"accepted": true, "jobId": job.ID})
		return
	}

	if err := a.Processor.Process(r.Context(), job.ID); err != nil {
		switch {
		case errors.Is(err, domain.ErrJobClaimed):
			a.error(w, http.StatusConflict, "conflict", "job is being processed elsewhere")
		case errors.Is(err, context.Canceled):
			a.error(w, http.StatusServiceUnavailable, "canceled", "request canceled")
		default:
			a.error(w, replicate.HTTPStatusFor(err), "provider_error", replicate.UserMessage(err))
		}
		return
	}
	updated, err := a.JobStore.GetByID(r.Context(), job.ID)
	if err != nil {
		a.error(w, http.StatusInternalServerError, "internal", "failed to reload job")
		return
	}
	a.json(w, http.StatusOK, map[string]any{"success": true, "job": toJobDTO(*updated)})
}
