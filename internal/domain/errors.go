package domain

import "errors"

var (
	ErrNotFound          = errors.New("not found")
	ErrUnauthorized      = errors.New("unauthorized")
	ErrInvalidPrompt     = errors.New("invalid prompt")
	ErrInvalidJobType    = errors.New("invalid job type")
	ErrProviderFailure   = errors.New("provider failure")
	ErrJobTerminal       = errors.New("job already finished")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrJobClaimed        = errors.New("job claimed by another worker")
	ErrNoJobAvailable    = errors.New("no job available")
	ErrDuplicate         = errors.New("duplicate record")
)
