package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"genqueue/internal/domain"
	"genqueue/internal/jobs"
	"genqueue/internal/middleware"
)

// maxSubmitBody leaves room for inline base64 inputs.
const maxSubmitBody = 25 << 20

type createJobRequest struct {
	JobType         string         `json:"jobType"`
	JobTypeSnake    string         `json:"job_type"`
	Prompt          string         `json:"prompt"`
	InputParameters map[string]any `json:"inputParameters"`
	InputSnake      map[string]any `json:"input_parameters"`
}

type createJobResponse struct {
	Success bool       `json:"success"`
	Job     jobSummary `json:"job"`
}

type capacityResponse struct {
	Error           string       `json:"error"`
	Code            string       `json:"code"`
	HasActiveJob    bool         `json:"hasActiveJob"`
	ActiveJobs      []jobSummary `json:"activeJobs,omitempty"`
	TotalActiveJobs *int         `json:"totalActiveJobs,omitempty"`
	MaxAllowed      int          `json:"maxAllowed"`
}

type queueStatusDTO struct {
	ActiveJobs int `json:"activeJobs"`
	MaxAllowed int `json:"maxAllowed"`
	Available  int `json:"available"`
}

type listJobsResponse struct {
	Jobs        []jobDTO       `json:"jobs"`
	Count       int            `json:"count"`
	Limit       int            `json:"limit"`
	QueueStatus queueStatusDTO `json:"queueStatus"`
}

type activeJobsResponse struct {
	HasActiveJob    bool     `json:"hasActiveJob"`
	ActiveJobs      []jobDTO `json:"activeJobs"`
	TotalActiveJobs int      `json:"totalActiveJobs"`
	MaxAllowed      int      `json:"maxAllowed"`
	CanSubmit       bool     `json:"canSubmit"`
}

func (a *App) CreateJob(w http.ResponseWriter, r *http.Request) {
	userID := a.requireUser(w, r)
	if userID == "" {
		return
	}
	var req createJobRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxSubmitBody)).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	jobType := req.JobType
	if jobType == "" {
		jobType = req.JobTypeSnake
	}
	params := req.InputParameters
	if params == nil {
		params = req.InputSnake
	}

	job, err := a.Jobs.Submit(r.Context(), userID, jobs.SubmitRequest{
		JobType:         jobType,
		Prompt:          req.Prompt,
		InputParameters: params,
		Country:         middleware.CountryFromContext(r.Context()),
		Locale:          middleware.LocaleFromContext(r.Context()),
	})
	if err != nil {
		var verr *jobs.ValidationError
		var cerr *jobs.CapacityError
		switch {
		case errors.As(err, &verr):
			a.json(w, http.StatusBadRequest, errorResponse{Error: "validation failed", Code: "validation_error", Details: verr.Details})
		case errors.As(err, &cerr):
			a.json(w, http.StatusTooManyRequests, toCapacityResponse(cerr))
		case errors.Is(err, domain.ErrUnauthorized):
			a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		default:
			a.Logger.Error().Err(err).Str("user_id", userID).Msg("submit job failed")
			a.error(w, http.StatusInternalServerError, "internal", "failed to queue job")
		}
		return
	}
	a.json(w, http.StatusCreated, createJobResponse{Success: true, Job: toJobSummaries([]domain.Job{*job})[0]})
}

func toCapacityResponse(e *jobs.CapacityError) capacityResponse {
	resp := capacityResponse{
		Error:        e.Error(),
		Code:         "capacity_exceeded",
		HasActiveJob: true,
		MaxAllowed:   e.Max,
	}
	if e.Reason == jobs.ReasonExclusive {
		resp.ActiveJobs = toJobSummaries(e.Conflicts)
		return resp
	}
	total := e.Total
	resp.TotalActiveJobs = &total
	return resp
}

func (a *App) ListJobs(w http.ResponseWriter, r *http.Request) {
	userID := a.requireUser(w, r)
	if userID == "" {
		return
	}
	q := r.URL.Query()
	filter := domain.JobFilter{UserID: userID, JobID: q.Get("jobId")}
	if raw := q.Get("status"); raw != "" {
		status, ok := domain.ParseJobStatus(raw)
		if !ok {
			a.error(w, http.StatusBadRequest, "bad_request", "invalid status")
			return
		}
		filter.Status = status
	}
	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil {
			a.error(w, http.StatusBadRequest, "bad_request", "limit must be an integer")
			return
		}
		filter.Limit = limit
	}
	filter.Limit = jobs.ClampLimit(filter.Limit)

	list, status, err := a.Jobs.List(r.Context(), filter)
	if err != nil {
		a.Logger.Error().Err(err).Str("user_id", userID).Msg("list jobs failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to load jobs")
		return
	}
	a.json(w, http.StatusOK, listJobsResponse{
		Jobs:  toJobDTOs(list),
		Count: len(list),
		Limit: filter.Limit,
		QueueStatus: queueStatusDTO{
			ActiveJobs: status.ActiveJobs,
			MaxAllowed: status.MaxAllowed,
			Available:  status.Available,
		},
	})
}

func (a *App) ActiveJobs(w http.ResponseWriter, r *http.Request) {
	userID := a.requireUser(w, r)
	if userID == "" {
		return
	}
	var kind domain.JobKind
	if raw := r.URL.Query().Get("jobType"); raw != "" {
		k, ok := domain.ParseJobKind(raw)
		if !ok {
			a.error(w, http.StatusBadRequest, "bad_request", "invalid jobType")
			return
		}
		kind = k
	}
	view, err := a.Jobs.Active(r.Context(), userID, kind)
	if err != nil {
		a.Logger.Error().Err(err).Str("user_id", userID).Msg("load active jobs failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to load active jobs")
		return
	}
	a.json(w, http.StatusOK, activeJobsResponse{
		HasActiveJob:    view.HasActiveJob,
		ActiveJobs:      toJobDTOs(view.ActiveJobs),
		TotalActiveJobs: view.TotalActiveJobs,
		MaxAllowed:      view.MaxAllowed,
		CanSubmit:       view.CanSubmit,
	})
}

const keepAliveInterval = 25 * time.Second

// JobEvents streams the caller's job changes as server-sent events.
func (a *App) JobEvents(w http.ResponseWriter, r *http.Request) {
	userID := a.requireUser(w, r)
	if userID == "" {
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok || a.Hub == nil {
		a.error(w, http.StatusNotImplemented, "unsupported", "event stream unavailable")
		return
	}
	events, cancel := a.Hub.Subscribe(userID)
	defer cancel()
	// Streams outlive the server's write timeout.
	_ = http.NewResponseController(w).SetWriteDeadline(time.Time{})

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, ": connected\n\n")
	flusher.Flush()

	ticker := time.NewTicker(keepAliveInterval)
	defer ticker.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			payload, err := json.Marshal(ev)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "event: job\nid: %s\ndata: %s\n\n", ev.ID, payload)
			flusher.Flush()
		case <-ticker.C:
			fmt.Fprint(w, ": ping\n\n")
			flusher.Flush()
		}
	}
}
