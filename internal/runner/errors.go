package runner

import "errors"

var (
	ErrDuplicateJob      = errors.New("job already exists")
	ErrUnknownJob        = errors.New("job not found")
	ErrInvalidTransition = errors.New("invalid job state transition")
	ErrInvalidJob        = errors.New("invalid job definition")
)
