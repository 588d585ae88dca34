package observer

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"
)

// Event is one change pushed on the job event stream.
type Event struct {
	Op           string    `json:"op"`
	ID           string    `json:"id"`
	JobType      string    `json:"job_type"`
	Kind         string    `json:"kind"`
	Status       string    `json:"status"`
	OutputURL    string    `json:"output_url,omitempty"`
	ErrorMessage string    `json:"error_message,omitempty"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Subscribe follows GET /v1/jobs/events until the stream ends or ctx is
// cancelled, applying each event as it arrives. The HTTP client used by the
// observer must not carry a total request timeout.
func (o *Observer) Subscribe(ctx context.Context) error {
	resp, err := o.rest.R().
		SetContext(ctx).
		SetDoNotParseResponse(true).
		SetHeader("Accept", "text/event-stream").
		Get("/v1/jobs/events")
	if err != nil {
		return fmt.Errorf("open event stream: %w", err)
	}
	body := resp.RawBody()
	defer body.Close()
	if resp.StatusCode() != 200 {
		return fmt.Errorf("open event stream: status %d", resp.StatusCode())
	}

	o.mu.Lock()
	o.subscribed = true
	o.mu.Unlock()
	defer func() {
		o.mu.Lock()
		o.subscribed = false
		o.mu.Unlock()
	}()

	err = readEvents(body, func(name, data string) {
		if name != "" && name != "job" {
			return
		}
		var ev Event
		if err := json.Unmarshal([]byte(data), &ev); err != nil {
			o.logger.Warn().Err(err).Msg("malformed job event")
			return
		}
		o.ApplyEvent(ev)
	})
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

// ApplyEvent folds a pushed change into the observer's state.
func (o *Observer) ApplyEvent(ev Event) {
	if ev.ID == "" {
		return
	}
	o.mu.Lock()
	if ev.Op == "delete" {
		o.removeLocked(ev.ID)
		o.mu.Unlock()
		return
	}
	job := Job{
		ID:           ev.ID,
		JobType:      ev.JobType,
		Kind:         ev.Kind,
		Status:       ev.Status,
		OutputURL:    ev.OutputURL,
		ErrorMessage: ev.ErrorMessage,
	}
	if prev, ok := o.jobs[ev.ID]; ok {
		job.CreatedAt = prev.CreatedAt
	} else {
		job.CreatedAt = ev.UpdatedAt
	}
	fired, ok := o.applyLocked(job, ev.Op == "update")
	o.mu.Unlock()
	if ok {
		o.notify([]Job{fired})
	}
}

// readEvents parses a text/event-stream body and calls fn once per event.
func readEvents(r io.Reader, fn func(name, data string)) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 4096), 1<<20)
	var name string
	var data []string
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			if len(data) > 0 {
				fn(name, strings.Join(data, "\n"))
			}
			name, data = "", nil
		case strings.HasPrefix(line, ":"):
		case strings.HasPrefix(line, "event:"):
			name = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			data = append(data, strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		}
	}
	return scanner.Err()
}
