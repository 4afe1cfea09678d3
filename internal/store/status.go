package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sync"
	"time"
)

// JobState is the lifecycle state of the migration job.
type JobState string

const (
	// StateIdle indicates no migration has run since the workspace was
	// initialised. It is the default for an absent status document.
	StateIdle JobState = "idle"

	// StateRunning indicates a migration process is in flight.
	StateRunning JobState = "running"

	// StateStopping indicates a stop has been requested but the process has
	// not yet exited.
	StateStopping JobState = "stopping"

	// StateCompleted indicates the migration process exited successfully.
	StateCompleted JobState = "completed"

	// StateFailed indicates the migration process exited with an error or
	// failed to launch.
	StateFailed JobState = "failed"
)

// Terminal reports whether the state is an end state for a migration run.
func (s JobState) Terminal() bool {
	return s == StateCompleted || s == StateFailed
}

// Active reports whether a migration is considered in flight.
func (s JobState) Active() bool {
	return s == StateRunning || s == StateStopping
}

// JobStatus is the persisted snapshot of the current migration run. Exactly
// one snapshot exists at a time; every write replaces it in full. EndTime is
// only set in a terminal state and Error only when the run failed.
type JobStatus struct {
	ID        string     `json:"id,omitempty"`
	State     JobState   `json:"state"`
	Source    string     `json:"source,omitempty"`
	Target    string     `json:"target,omitempty"`
	StartTime *time.Time `json:"start_time,omitempty"`
	EndTime   *time.Time `json:"end_time,omitempty"`
	Error     string     `json:"error,omitempty"`
}

// StatusStore is a single-writer, multi-reader store for the JobStatus
// snapshot, backed by one JSON file so the record survives a restart.
type StatusStore struct {
	path string

	mu sync.Mutex
}

// NewStatusStore creates a StatusStore backed by the file at path.
func NewStatusStore(path string) *StatusStore {
	return &StatusStore{path: path}
}

// Read returns the current snapshot. If no snapshot has ever been written,
// it returns an idle status. An unreadable snapshot also degrades to idle,
// with the error returned for logging.
func (s *StatusStore) Read() (JobStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return JobStatus{State: StateIdle}, nil
		}

		return JobStatus{State: StateIdle}, fmt.Errorf("read status: %w", err)
	}

	var status JobStatus

	if err := json.Unmarshal(data, &status); err != nil {
		return JobStatus{State: StateIdle}, fmt.Errorf("decode status: %w", err)
	}

	return status, nil
}

// Write atomically replaces the snapshot with status. Concurrent readers
// see either the previous record or this one, never a partial write.
func (s *StatusStore) Write(status JobStatus) error {
	data, err := json.MarshalIndent(status, "", "  ")
	if err != nil {
		return fmt.Errorf("encode status: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := writeFileAtomic(s.path, data); err != nil {
		return fmt.Errorf("write status: %w", err)
	}

	return nil
}
