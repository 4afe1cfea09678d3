package jobmanager

import "errors"

var (
	// ErrJobActive is returned by Start when a migration is already in
	// flight. Concurrent migrations are rejected, never queued.
	ErrJobActive = errors.New("a migration job is already active")

	// ErrMissingEndpoint is returned by Start when the source or target
	// identifier is empty.
	ErrMissingEndpoint = errors.New("source and target are required")
)
