package handlers

import (
	"time"

	"genqueue/internal/domain"
)

type jobDTO struct {
	ID                    string            `json:"id"`
	UserID                string            `json:"user_id"`
	JobType               string            `json:"job_type"`
	Kind                  string            `json:"kind"`
	Status                string            `json:"status"`
	Prompt                string            `json:"prompt"`
	InputParameters       map[string]any    `json:"input_parameters"`
	ProviderReference     string            `json:"provider_reference,omitempty"`
	ResultData            *domain.JobResult `json:"result_data,omitempty"`
	OutputURL             string            `json:"output_url,omitempty"`
	ErrorMessage          string            `json:"error_message,omitempty"`
	CreatedAt             time.Time         `json:"created_at"`
	UpdatedAt             time.Time         `json:"updated_at"`
	CompletedAt           *time.Time        `json:"completed_at,omitempty"`
	ProcessingTimeSeconds *float64          `json:"processing_time_seconds,omitempty"`
}

func toJobDTO(j domain.Job) jobDTO {
	params := j.InputParameters
	if params == nil {
		params = map[string]any{}
	}
	return jobDTO{
		ID:                    j.ID,
		UserID:                j.UserID,
		JobType:               string(j.Type),
		Kind:                  string(j.Kind),
		Status:                string(j.Status),
		Prompt:                j.Prompt,
		InputParameters:       params,
		ProviderReference:     j.ProviderReference,
		ResultData:            j.ResultData,
		OutputURL:             j.OutputURL,
		ErrorMessage:          j.ErrorMessage,
		CreatedAt:             j.CreatedAt,
		UpdatedAt:             j.UpdatedAt,
		CompletedAt:           j.CompletedAt,
		ProcessingTimeSeconds: j.ProcessingTimeSeconds,
	}
}

func toJobDTOs(list []domain.Job) []jobDTO {
	out := make([]jobDTO, 0, len(list))
	for _, j := range list {
		out = append(out, toJobDTO(j))
	}
	return out
}

// jobSummary is the short form used in submission and capacity responses.
type jobSummary struct {
	ID        string    `json:"id"`
	Status    string    `json:"status"`
	JobType   string    `json:"job_type"`
	Kind      string    `json:"kind"`
	CreatedAt time.Time `json:"created_at"`
}

func toJobSummaries(list []domain.Job) []jobSummary {
	out := make([]jobSummary, 0, len(list))
	for _, j := range list {
		out = append(out, jobSummary{ID: j.ID, Status: string(j.Status), JobType: string(j.Type), Kind: string(j.Kind), CreatedAt: j.CreatedAt})
	}
	return out
}

type mediaDTO struct {
	ID          string    `json:"id"`
	Type        string    `json:"type"`
	JobID       string    `json:"job_id"`
	Prompt      string    `json:"prompt"`
	URL         string    `json:"url"`
	ContentType string    `json:"content_type"`
	Bytes       int64     `json:"bytes"`
	CreatedAt   time.Time `json:"created_at"`
	ExpiresAt   time.Time `json:"expires_at"`
}

func toMediaDTO(m domain.MediaItem) mediaDTO {
	return mediaDTO{
		ID:          m.ID,
		Type:        string(m.Kind),
		JobID:       m.JobID,
		Prompt:      m.Prompt,
		URL:         m.PublicURL,
		ContentType: m.ContentType,
		Bytes:       m.Bytes,
		CreatedAt:   m.CreatedAt,
		ExpiresAt:   m.ExpiresAt,
	}
}

type notificationDTO struct {
	ID        string         `json:"id"`
	Type      string         `json:"type"`
	Message   string         `json:"message"`
	Metadata  map[string]any `json:"metadata"`
	Read      bool           `json:"read"`
	CreatedAt time.Time      `json:"created_at"`
}
