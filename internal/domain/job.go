package domain

import (
	"strings"
	"time"
)

// JobType enumerates the physical job categories stored in the jobs table.
type JobType string

const (
	JobTypeImageGeneration JobType = "image_generation"
	JobTypeVideoGeneration JobType = "video_generation"
	JobTypeAudioGeneration JobType = "audio_generation"
)

// JobKind is the user-facing generation category. Lip sync and face swap share
// a physical JobType with video and image generation respectively.
type JobKind string

const (
	JobKindImage    JobKind = "image_generation"
	JobKindVideo    JobKind = "video_generation"
	JobKindAudio    JobKind = "audio_generation"
	JobKindLipSync  JobKind = "lip_sync"
	JobKindFaceSwap JobKind = "face_swap"
)

// JobKinds lists every supported logical kind.
var JobKinds = []JobKind{JobKindImage, JobKindVideo, JobKindAudio, JobKindLipSync, JobKindFaceSwap}

// ParseJobKind resolves a requested job type into its logical kind.
func ParseJobKind(raw string) (JobKind, bool) {
	kind := JobKind(strings.ToLower(strings.TrimSpace(raw)))
	switch kind {
	case JobKindImage, JobKindVideo, JobKindAudio, JobKindLipSync, JobKindFaceSwap:
		return kind, true
	}
	return "", false
}

// PhysicalType returns the job_type column value used to persist the kind.
func (k JobKind) PhysicalType() JobType {
	switch k {
	case JobKindVideo, JobKindLipSync:
		return JobTypeVideoGeneration
	case JobKindAudio:
		return JobTypeAudioGeneration
	default:
		return JobTypeImageGeneration
	}
}

// MediaKind returns the artifact category produced by the kind.
func (k JobKind) MediaKind() MediaKind {
	switch k {
	case JobKindVideo, JobKindLipSync:
		return MediaKindVideo
	case JobKindAudio:
		return MediaKindAudio
	default:
		return MediaKindImage
	}
}

// AliasFlags returns the legacy input_parameters markers for aliased kinds.
func (k JobKind) AliasFlags() map[string]any {
	switch k {
	case JobKindLipSync:
		return map[string]any{"is_lip_sync": true, "original_job_type": string(k)}
	case JobKindFaceSwap:
		return map[string]any{"is_face_swap": true, "original_job_type": string(k)}
	}
	return nil
}

// KindFromStored recovers the logical kind for rows persisted without a kind
// column, using the alias markers in input_parameters.
func KindFromStored(jobType JobType, params map[string]any) JobKind {
	if orig, ok := params["original_job_type"].(string); ok {
		if kind, ok := ParseJobKind(orig); ok {
			return kind
		}
	}
	switch jobType {
	case JobTypeVideoGeneration:
		if flag, _ := params["is_lip_sync"].(bool); flag {
			return JobKindLipSync
		}
		return JobKindVideo
	case JobTypeAudioGeneration:
		return JobKindAudio
	default:
		if flag, _ := params["is_face_swap"].(bool); flag {
			return JobKindFaceSwap
		}
		return JobKindImage
	}
}

// JobStatus enumerates job lifecycle states.
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// ParseJobStatus validates a status filter value.
func ParseJobStatus(raw string) (JobStatus, bool) {
	status := JobStatus(strings.ToLower(strings.TrimSpace(raw)))
	switch status {
	case JobStatusPending, JobStatusProcessing, JobStatusCompleted, JobStatusFailed:
		return status, true
	}
	return "", false
}

// Active reports whether the status counts toward the per-user ceiling.
func (s JobStatus) Active() bool {
	return s == JobStatusPending || s == JobStatusProcessing
}

// Terminal reports whether no further transitions are allowed.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// CanTransition reports whether moving from s to next is a forward transition.
func (s JobStatus) CanTransition(next JobStatus) bool {
	switch s {
	case JobStatusPending:
		return next == JobStatusProcessing || next.Terminal()
	case JobStatusProcessing:
		return next.Terminal()
	default:
		return false
	}
}

const (
	// MaxActiveJobsPerUser bounds pending+processing jobs for a single user.
	MaxActiveJobsPerUser = 5
	// MaxPromptLength bounds the prompt accepted at submission.
	MaxPromptLength = 1000
)

// JobResult is persisted into result_data once a job completes.
type JobResult struct {
	URLs      []string `json:"urls"`
	MediaIDs  []string `json:"media_ids,omitempty"`
	Skipped   int      `json:"skipped,omitempty"`
	Predicted int      `json:"predicted"`
}

// Job encapsulates the lifecycle of a single generation request.
type Job struct {
	ID                    string
	UserID                string
	Type                  JobType
	Kind                  JobKind
	Status                JobStatus
	Prompt                string
	InputParameters       map[string]any
	ProviderReference     string
	ResultData            *JobResult
	OutputURL             string
	ErrorMessage          string
	Attempts              int
	ClaimedAt             *time.Time
	CreatedAt             time.Time
	UpdatedAt             time.Time
	StartedAt             *time.Time
	CompletedAt           *time.Time
	ProcessingTimeSeconds *float64
}

// JobFilter narrows job listings. UserID is always required.
type JobFilter struct {
	UserID string
	JobID  string
	Status JobStatus
	Limit  int
}
