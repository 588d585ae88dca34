package replicate

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrorKind classifies provider failures so callers can map them to responses.
type ErrorKind string

const (
	ErrorAuthentication ErrorKind = "authentication"
	ErrorPayment        ErrorKind = "payment"
	ErrorUnknownModel   ErrorKind = "unknown_model"
	ErrorProvider       ErrorKind = "provider"
	ErrorTimeout        ErrorKind = "timeout"
)

// APIError is returned for every failed provider interaction.
type APIError struct {
	Kind       ErrorKind
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("replicate: %s (status %d): %s", e.Kind, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("replicate: %s: %s", e.Kind, e.Message)
}

// HTTPStatus is the status a caller-facing endpoint answers with.
func (e *APIError) HTTPStatus() int {
	switch e.Kind {
	case ErrorAuthentication:
		return http.StatusUnauthorized
	case ErrorPayment:
		return http.StatusPaymentRequired
	case ErrorUnknownModel:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// Retryable reports whether another submission attempt could succeed.
func (e *APIError) Retryable() bool {
	switch e.Kind {
	case ErrorAuthentication, ErrorPayment, ErrorUnknownModel:
		return false
	}
	return true
}

// HTTPStatusFor returns the caller-facing status for err, or 500 when err is
// not a provider error.
func HTTPStatusFor(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatus()
	}
	return http.StatusInternalServerError
}

// UserMessage is the short text stored on failed jobs.
func UserMessage(err error) string {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return "generation failed: " + err.Error()
	}
	switch apiErr.Kind {
	case ErrorAuthentication:
		return "provider authentication failed"
	case ErrorPayment:
		return "provider billing issue: " + apiErr.Message
	case ErrorUnknownModel:
		return "model or version not found: " + apiErr.Message
	case ErrorTimeout:
		return apiErr.Message
	default:
		return "generation failed: " + apiErr.Message
	}
}

func classify(status int, detail string) *APIError {
	detail = strings.TrimSpace(detail)
	if detail == "" {
		detail = http.StatusText(status)
	}
	kind := ErrorProvider
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		kind = ErrorAuthentication
	case status == http.StatusPaymentRequired:
		kind = ErrorPayment
	case status == http.StatusNotFound || status == http.StatusUnprocessableEntity:
		lower := strings.ToLower(detail)
		if status == http.StatusNotFound || strings.Contains(lower, "version") || strings.Contains(lower, "model") {
			kind = ErrorUnknownModel
		}
	}
	return &APIError{Kind: kind, StatusCode: status, Message: detail}
}
