package domain

import "errors"

// Sentinel errors shared across the repository and service layers.
var (
	// ErrNotFound is returned when a record does not exist or belongs
	// to a different user (no silent cross-user access).
	ErrNotFound = errors.New("record not found")

	// ErrInvalidInput is returned for malformed parameters.
	ErrInvalidInput = errors.New("invalid input")

	// ErrTerminalStatus is returned when a lifecycle transition is
	// attempted on an alert already in a terminal status.
	ErrTerminalStatus = errors.New("alert is in a terminal status")
)
