package alerter

import "errors"

var (
	// ErrNotFound is returned when an alert id is absent from the store.
	ErrNotFound = errors.New("alert not found")
	// ErrInvalidState is returned for illegal lifecycle transitions.
	ErrInvalidState = errors.New("invalid alert state transition")
	// ErrInvalidArgument is returned for malformed producer input.
	ErrInvalidArgument = errors.New("invalid argument")
)
