package jobmanager

import (
	"bufio"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"sync"
	"time"

	"migdash/internal/eventbus"
	"migdash/internal/store"
)

const (
	// DefaultStopGrace is how long a stop request waits after SIGTERM
	// before the migration process is killed.
	DefaultStopGrace = 10 * time.Second

	// maxLineSize caps a single output line from the migration process.
	// Lines beyond this are split rather than aborting the pump.
	maxLineSize = 1024 * 1024
)

// Manager supervises the lifecycle of the migration job. At most one Job is
// active at any time; a Start while one is active is rejected with
// ErrJobActive rather than queued or interleaved.
type Manager struct {
	command   []string
	status    *store.StatusStore
	bus       *eventbus.Bus
	logger    *slog.Logger
	stopGrace time.Duration

	mu      sync.Mutex
	current *Job
}

// NewManager creates a Manager that runs command for each migration, with
// the run's source and target appended as arguments. Lifecycle transitions
// are written to status and output relayed onto bus.
func NewManager(
	command []string,
	status *store.StatusStore,
	bus *eventbus.Bus,
	logger *slog.Logger,
	stopGrace time.Duration,
) (*Manager, error) {
	if len(command) == 0 {
		return nil, errors.New("migration command cannot be empty")
	}

	if stopGrace <= 0 {
		stopGrace = DefaultStopGrace
	}

	return &Manager{
		command:   command,
		status:    status,
		bus:       bus,
		logger:    logger,
		stopGrace: stopGrace,
	}, nil
}

// Start accepts a migration from source to target. On acceptance it records
// the running status and returns; the process is launched and supervised
// concurrently. Failures after acceptance are reported through the status
// record and an error event, never to the Start caller.
//
// Acceptance gates on a live process, not the persisted state: a stopping
// record left behind by a Stop with no process in flight does not block a
// new run, it is simply replaced.
func (m *Manager) Start(source, target string) error {
	if source == "" || target == "" {
		return ErrMissingEndpoint
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current != nil && m.current.running() {
		return ErrJobActive
	}

	job, err := newJob(m.command, source, target)
	if err != nil {
		return err
	}

	running := store.JobStatus{
		ID:        job.id,
		State:     store.StateRunning,
		Source:    source,
		Target:    target,
		StartTime: &job.startTime,
	}

	if err := m.status.Write(running); err != nil {
		// The job will never spawn; release its pipe.
		job.output.Close()
		job.pipeWriter.Close()

		return fmt.Errorf("record running status: %w", err)
	}

	m.current = job

	go m.supervise(job)

	m.logger.Info(
		"migration started",
		"id", job.id,
		"source", source,
		"target", target,
	)

	return nil
}

// Stop requests termination of the active migration: the stopping state is
// recorded, the process receives SIGTERM, and SIGKILL after the grace
// window. Stop is idempotent; repeated calls, or a call with no process in
// flight, only (re)record the advisory stopping state.
func (m *Manager) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	current, err := m.status.Read()
	if err != nil {
		m.logger.Warn("read status before stop", "err", err)
	}

	if current.State != store.StateStopping {
		current.State = store.StateStopping

		if err := m.status.Write(current); err != nil {
			return fmt.Errorf("record stopping status: %w", err)
		}
	}

	if m.current != nil && m.current.running() {
		m.current.signalStop(m.stopGrace)

		m.logger.Info("stop requested", "id", m.current.id)
	}

	return nil
}

// Status returns the persisted snapshot of the current migration run.
func (m *Manager) Status() (store.JobStatus, error) {
	return m.status.Read()
}

// supervise runs a Job to completion: spawn, pump output, then record the
// terminal state from the exit code.
func (m *Manager) supervise(job *Job) {
	if err := m.spawn(job); err != nil {
		m.logger.Error("migration failed to launch", "id", job.id, "err", err)

		m.bus.Publish(eventbus.NewError(err.Error()))
		m.writeTerminal(job, store.StateFailed, err.Error())

		return
	}

	m.pump(job)

	code, waitErr := job.wait()

	m.finish(job, code, waitErr)
}

// spawn starts the process under the Manager lock so a concurrent Stop
// either sees no process yet (and is caught by the flag re-check) or a
// fully started one.
func (m *Manager) spawn(job *Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := job.start(); err != nil {
		return err
	}

	if job.stopRequested.Load() {
		job.signalStop(m.stopGrace)
	}

	return nil
}

// pump publishes each line of process output as a progress event, in the
// exact order produced, until the pipe reaches EOF on process exit.
func (m *Manager) pump(job *Job) {
	defer job.output.Close()

	scanner := bufio.NewScanner(job.output)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	for scanner.Scan() {
		m.bus.Publish(eventbus.NewProgress(scanner.Text()))
	}

	if err := scanner.Err(); err != nil {
		m.logger.Warn("read migration output", "id", job.id, "err", err)
	}
}

// finish records the terminal state for an exited process.
func (m *Manager) finish(job *Job, code int, waitErr error) {
	if code == 0 && waitErr == nil {
		m.writeTerminal(job, store.StateCompleted, "")

		m.logger.Info("migration completed", "id", job.id)

		return
	}

	var (
		message string
		exitErr *exec.ExitError
	)

	switch {
	case job.stopRequested.Load():
		message = "migration terminated by stop request"
	case errors.As(waitErr, &exitErr) || waitErr == nil:
		message = fmt.Sprintf("migration process exited with code %d", code)
	default:
		message = fmt.Sprintf("migration process failed: %v", waitErr)
	}

	m.bus.Publish(eventbus.NewError(message))
	m.writeTerminal(job, store.StateFailed, message)

	m.logger.Warn(
		"migration failed",
		"id", job.id,
		"exit_code", code,
		"err", waitErr,
	)
}

// writeTerminal replaces the status snapshot with the end state of job.
func (m *Manager) writeTerminal(job *Job, state store.JobState, errMsg string) {
	end := time.Now()

	status := store.JobStatus{
		ID:        job.id,
		State:     state,
		Source:    job.source,
		Target:    job.target,
		StartTime: &job.startTime,
		EndTime:   &end,
		Error:     errMsg,
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	// wait closes the done channel before this write, so a new run may have
	// been accepted in the gap. Its record must not be replaced with a
	// stale terminal state.
	if m.current != job {
		m.logger.Debug("run superseded before terminal write", "id", job.id)

		return
	}

	if err := m.status.Write(status); err != nil {
		m.logger.Error("record terminal status", "id", job.id, "err", err)
	}
}
