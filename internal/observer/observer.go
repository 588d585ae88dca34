// Package observer keeps a client aware of its active generation jobs by
// polling the jobs listing and, when available, following the event stream.
package observer

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"
)

// State reports what the observer is currently doing.
type State string

const (
	StateIdle       State = "idle"
	StatePolling    State = "polling"
	StateSubscribed State = "subscribed"
)

// Polling cadence and local retention.
const (
	ProcessingInterval = 10 * time.Second
	PendingInterval    = 20 * time.Second
	IdleInterval       = 30 * time.Second
	CacheTTL           = 10 * time.Second
	DismissalTTL       = 5 * time.Minute

	listLimit = 20
)

// Job is the subset of a job the observer tracks.
type Job struct {
	ID           string    `json:"id"`
	JobType      string    `json:"job_type"`
	Kind         string    `json:"kind"`
	Status       string    `json:"status"`
	OutputURL    string    `json:"output_url,omitempty"`
	ErrorMessage string    `json:"error_message,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

func (j Job) active() bool {
	return j.Status == "pending" || j.Status == "processing"
}

// QueueStatus mirrors the queueStatus block of the listing response.
type QueueStatus struct {
	ActiveJobs int `json:"activeJobs"`
	MaxAllowed int `json:"maxAllowed"`
	Available  int `json:"available"`
}

// Snapshot is the observer's view at FetchedAt.
type Snapshot struct {
	Active    []Job
	Queue     QueueStatus
	FetchedAt time.Time
}

type listResponse struct {
	Jobs        []Job       `json:"jobs"`
	Count       int         `json:"count"`
	Limit       int         `json:"limit"`
	QueueStatus QueueStatus `json:"queueStatus"`
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// Options configures an Observer. OnCompleted and OnFailed run on the
// goroutine that observed the transition.
type Options struct {
	BaseURL     string
	Token       string
	HTTPClient  *http.Client
	Logger      zerolog.Logger
	OnCompleted func(Job)
	OnFailed    func(Job)
}

// Observer tracks the caller's jobs. It never cancels provider work; Dismiss
// only hides a job locally.
type Observer struct {
	rest        *resty.Client
	logger      zerolog.Logger
	onCompleted func(Job)
	onFailed    func(Job)

	mu         sync.Mutex
	polling    bool
	subscribed bool
	jobs       map[string]Job
	queue      QueueStatus
	fetchedAt  time.Time
	// dismissed maps a job id to the time its completion was observed, or
	// the zero time while the job is still running.
	dismissed map[string]time.Time

	now   func() time.Time
	after func(time.Duration) <-chan time.Time
}

func New(opts Options) *Observer {
	var rest *resty.Client
	if opts.HTTPClient != nil {
		rest = resty.NewWithClient(opts.HTTPClient)
	} else {
		rest = resty.New()
	}
	rest.SetBaseURL(strings.TrimRight(opts.BaseURL, "/"))
	if opts.Token != "" {
		rest.SetAuthToken(opts.Token)
	}
	return &Observer{
		rest:        rest,
		logger:      opts.Logger,
		onCompleted: opts.OnCompleted,
		onFailed:    opts.OnFailed,
		jobs:        make(map[string]Job),
		dismissed:   make(map[string]time.Time),
		now:         time.Now,
		after:       time.After,
	}
}

func (o *Observer) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	switch {
	case o.subscribed:
		return StateSubscribed
	case o.polling:
		return StatePolling
	default:
		return StateIdle
	}
}

// Snapshot returns the cached view when it is younger than CacheTTL and
// refreshes it otherwise.
func (o *Observer) Snapshot(ctx context.Context) (Snapshot, error) {
	o.mu.Lock()
	fresh := !o.fetchedAt.IsZero() && o.now().Sub(o.fetchedAt) < CacheTTL
	o.mu.Unlock()
	if fresh {
		return o.view(), nil
	}
	return o.Refresh(ctx)
}

// Refresh fetches the jobs listing unconditionally.
func (o *Observer) Refresh(ctx context.Context) (Snapshot, error) {
	resp, err := o.rest.R().
		SetContext(ctx).
		SetQueryParam("limit", fmt.Sprint(listLimit)).
		SetResult(&listResponse{}).
		SetError(&errorResponse{}).
		Get("/v1/jobs")
	if err != nil {
		return Snapshot{}, fmt.Errorf("list jobs: %w", err)
	}
	if resp.IsError() {
		msg := resp.Status()
		if e, ok := resp.Error().(*errorResponse); ok && e.Error != "" {
			msg = e.Error
		}
		return Snapshot{}, fmt.Errorf("list jobs: status %d: %s", resp.StatusCode(), msg)
	}
	body := resp.Result().(*listResponse)

	o.mu.Lock()
	var fired []Job
	for _, job := range body.Jobs {
		if ev, ok := o.applyLocked(job, false); ok {
			fired = append(fired, ev)
		}
	}
	o.queue = body.QueueStatus
	o.fetchedAt = o.now()
	o.mu.Unlock()

	o.notify(fired)
	return o.view(), nil
}

// Run polls until ctx is cancelled, waiting NextInterval between fetches.
func (o *Observer) Run(ctx context.Context) error {
	o.mu.Lock()
	o.polling = true
	o.mu.Unlock()
	defer func() {
		o.mu.Lock()
		o.polling = false
		o.mu.Unlock()
	}()

	for {
		if _, err := o.Refresh(ctx); err != nil && ctx.Err() == nil {
			o.logger.Warn().Err(err).Msg("job poll failed")
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-o.after(o.NextInterval()):
		}
	}
}

// NextInterval is ProcessingInterval while any job is processing,
// PendingInterval while only pending jobs exist and IdleInterval otherwise.
func (o *Observer) NextInterval() time.Duration {
	o.mu.Lock()
	defer o.mu.Unlock()
	pending := false
	for _, j := range o.jobs {
		switch j.Status {
		case "processing":
			return ProcessingInterval
		case "pending":
			pending = true
		}
	}
	if pending {
		return PendingInterval
	}
	return IdleInterval
}

// Active returns the running jobs that have not been dismissed, oldest first.
func (o *Observer) Active() []Job {
	return o.view().Active
}

// Dismiss hides id from Active. The dismissal is forgotten DismissalTTL after
// the job completes.
func (o *Observer) Dismiss(id string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	var completedAt time.Time
	if j, ok := o.jobs[id]; ok && !j.active() {
		completedAt = o.now()
	}
	o.dismissed[id] = completedAt
}

// Dismissed reports whether id is currently hidden.
func (o *Observer) Dismissed(id string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.pruneLocked()
	_, ok := o.dismissed[id]
	return ok
}

func (o *Observer) view() Snapshot {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.pruneLocked()
	active := make([]Job, 0)
	for id, j := range o.jobs {
		if _, hidden := o.dismissed[id]; hidden || !j.active() {
			continue
		}
		active = append(active, j)
	}
	sort.Slice(active, func(a, b int) bool { return active[a].CreatedAt.Before(active[b].CreatedAt) })
	return Snapshot{Active: active, Queue: o.queue, FetchedAt: o.fetchedAt}
}

// applyLocked stores job and reports whether a terminal transition should be
// announced. When pushed is true the update came from the event stream and
// an unseen job is assumed to have just transitioned.
func (o *Observer) applyLocked(job Job, pushed bool) (Job, bool) {
	prev, seen := o.jobs[job.ID]
	o.jobs[job.ID] = job
	if job.active() {
		return job, false
	}
	if t, ok := o.dismissed[job.ID]; ok && t.IsZero() {
		o.dismissed[job.ID] = o.now()
	}
	transitioned := (seen && prev.active()) || (!seen && pushed)
	return job, transitioned
}

func (o *Observer) removeLocked(id string) {
	delete(o.jobs, id)
}

func (o *Observer) pruneLocked() {
	now := o.now()
	for id, t := range o.dismissed {
		if !t.IsZero() && now.Sub(t) >= DismissalTTL {
			delete(o.dismissed, id)
		}
	}
}

func (o *Observer) notify(jobs []Job) {
	for _, j := range jobs {
		switch j.Status {
		case "completed":
			if o.onCompleted != nil {
				o.onCompleted(j)
			}
		case "failed":
			if o.onFailed != nil {
				o.onFailed(j)
			}
		}
	}
}
