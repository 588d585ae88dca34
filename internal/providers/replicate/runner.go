package replicate

import (
	"context"
	"errors"
	"fmt"
	"time"
)

const (
	// SubmitAttempts bounds prediction creation retries.
	SubmitAttempts = 3
	// SubmitBackoff is multiplied by the attempt number between retries.
	SubmitBackoff = 2 * time.Second
	// DefaultPollInterval separates status checks.
	DefaultPollInterval = 10 * time.Second
)

// API is the subset of Client used by Runner.
type API interface {
	CreatePrediction(ctx context.Context, req PredictionRequest) (*Prediction, error)
	GetPrediction(ctx context.Context, id string) (*Prediction, error)
}

// Runner applies the submission retry and bounded polling policies.
type Runner struct {
	api          API
	pollInterval time.Duration
	sleep        func(ctx context.Context, d time.Duration) error
}

// NewRunner wraps api. A non-positive pollInterval uses DefaultPollInterval.
func NewRunner(api API, pollInterval time.Duration) *Runner {
	if pollInterval <= 0 {
		pollInterval = DefaultPollInterval
	}
	return &Runner{api: api, pollInterval: pollInterval, sleep: sleepContext}
}

// WithSleep replaces the wait function, used by tests to avoid real delays.
func (r *Runner) WithSleep(fn func(ctx context.Context, d time.Duration) error) *Runner {
	r.sleep = fn
	return r
}

// Submit creates a prediction, retrying transient failures with linear backoff.
func (r *Runner) Submit(ctx context.Context, req PredictionRequest) (*Prediction, error) {
	var lastErr error
	for attempt := 1; attempt <= SubmitAttempts; attempt++ {
		pred, err := r.api.CreatePrediction(ctx, req)
		if err == nil {
			return pred, nil
		}
		lastErr = err
		var apiErr *APIError
		if errors.As(err, &apiErr) && !apiErr.Retryable() {
			return nil, err
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if attempt < SubmitAttempts {
			if err := r.sleep(ctx, SubmitBackoff*time.Duration(attempt)); err != nil {
				return nil, err
			}
		}
	}
	return nil, lastErr
}

// Await polls the prediction until it is terminal or maxAttempts status checks
// have been spent. A succeeded prediction is returned as-is; failed and
// canceled predictions and exhaustion are returned as *APIError.
func (r *Runner) Await(ctx context.Context, id string, maxAttempts int) (*Prediction, error) {
	if maxAttempts <= 0 {
		maxAttempts = 1
	}
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := r.sleep(ctx, r.pollInterval); err != nil {
			return nil, err
		}
		pred, err := r.api.GetPrediction(ctx, id)
		if err != nil {
			var apiErr *APIError
			if errors.As(err, &apiErr) && !apiErr.Retryable() {
				return nil, err
			}
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			continue
		}
		if done, err := Outcome(pred); done {
			return pred, err
		}
	}
	return nil, &APIError{
		Kind:    ErrorTimeout,
		Message: fmt.Sprintf("generation timed out after %d polling attempts", maxAttempts),
	}
}

// Outcome reports whether pred is terminal and, if so, the error it ended with.
func Outcome(pred *Prediction) (bool, error) {
	switch pred.Status {
	case StatusSucceeded:
		return true, nil
	case StatusFailed:
		msg := pred.ErrorMessage()
		if msg == "" {
			msg = "prediction failed"
		}
		return true, &APIError{Kind: ErrorProvider, Message: msg}
	case StatusCanceled:
		return true, &APIError{Kind: ErrorProvider, Message: "prediction was canceled"}
	}
	return false, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Get fetches the prediction once without any retry.
func (r *Runner) Get(ctx context.Context, id string) (*Prediction, error) {
	return r.api.GetPrediction(ctx, id)
}
