package jobmanager

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/google/uuid"
)

// Job represents one execution of the migration command from a source to a
// target. It owns the underlying exec.Cmd and combines the process' stdout
// and stderr into a single pipe for line-oriented consumption.
type Job struct {
	id        string
	source    string
	target    string
	startTime time.Time

	cmd        *exec.Cmd
	output     io.ReadCloser
	pipeWriter io.WriteCloser

	stopRequested atomic.Bool
	done          chan struct{}
}

// newJob configures a Job running command with source and target appended
// as the final arguments. The process is not started yet.
func newJob(command []string, source, target string) (*Job, error) {
	if len(command) == 0 {
		return nil, fmt.Errorf("migration command cannot be empty")
	}

	args := append(append([]string{}, command[1:]...), source, target)

	cmd := exec.Command(command[0], args...)

	pr, pw, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("create output pipe: %w", err)
	}

	cmd.Stdout = pw
	cmd.Stderr = pw

	return &Job{
		id:         uuid.NewString(),
		source:     source,
		target:     target,
		startTime:  time.Now(),
		cmd:        cmd,
		output:     pr,
		pipeWriter: pw,
		done:       make(chan struct{}),
	}, nil
}

// ID returns the unique identifier of this run.
func (j *Job) ID() string {
	return j.id
}

// start launches the process. The parent's copy of the pipe's write end is
// closed once the child holds it, so the read side sees EOF when the
// process exits. On launch failure the Job is finished immediately.
func (j *Job) start() error {
	if err := j.cmd.Start(); err != nil {
		j.pipeWriter.Close()
		j.output.Close()
		close(j.done)

		return fmt.Errorf("start migration process: %w", err)
	}

	j.pipeWriter.Close()

	return nil
}

// wait blocks until the process exits and returns its exit code. The error
// describes a nonzero exit or a wait failure. ProcessState is valid once
// Wait has returned, even on error.
func (j *Job) wait() (int, error) {
	err := j.cmd.Wait()

	close(j.done)

	code := -1
	if j.cmd.ProcessState != nil {
		code = j.cmd.ProcessState.ExitCode()
	}

	return code, err
}

// signalStop marks the Job as stop-requested, sends SIGTERM, and arranges a
// SIGKILL if the process has not exited within grace.
func (j *Job) signalStop(grace time.Duration) {
	j.stopRequested.Store(true)

	if j.cmd.Process == nil {
		// Not spawned yet; the supervisor re-checks the flag after launch.
		return
	}

	if err := j.cmd.Process.Signal(syscall.SIGTERM); err != nil {
		// Process already gone; wait will pick up the exit.
		return
	}

	go func() {
		select {
		case <-j.done:
		case <-time.After(grace):
			j.cmd.Process.Kill()
		}
	}()
}

// running reports whether the process is still in flight.
func (j *Job) running() bool {
	select {
	case <-j.done:
		return false
	default:
		return true
	}
}

// Done returns a channel that is closed once the process has exited or
// failed to launch.
func (j *Job) Done() <-chan struct{} {
	return j.done
}
