package supervisor

import (
	"errors"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"
)

// ExitStatus describes how a process ended.
type ExitStatus struct {
	// Code is the exit code, or -1 when the process did not exit normally.
	Code int

	// Signal names the terminating signal, if any.
	Signal string

	// Err is set when waiting failed without a process state.
	Err error

	// Time is when the exit was observed.
	Time time.Time
}

// ProcessHandle is the supervisor's grip on a running child. Liveness comes
// from the handle, never from scanning the process table.
type ProcessHandle interface {
	PID() int
	IsRunning() bool
	Terminate() error
	Kill() error
	Done() <-chan struct{}
	Exit() ExitStatus
}

// execHandle wraps a started *exec.Cmd. A reap goroutine calls Wait so the
// child never lingers as a zombie; it does nothing else.
type execHandle struct {
	cmd  *exec.Cmd
	done chan struct{}

	mu   sync.Mutex
	exit ExitStatus
}

// startHandle starts cmd and begins reaping it. onExit runs in the reap
// goroutine before Done is closed.
func startHandle(cmd *exec.Cmd, onExit func()) (*execHandle, error) {
	if err := cmd.Start(); err != nil {
		return nil, err
	}

	h := &execHandle{cmd: cmd, done: make(chan struct{})}
	go func() {
		waitErr := cmd.Wait()
		status := exitStatus(cmd.ProcessState, waitErr)

		h.mu.Lock()
		h.exit = status
		h.mu.Unlock()

		if onExit != nil {
			onExit()
		}
		close(h.done)
	}()
	return h, nil
}

func exitStatus(state *os.ProcessState, waitErr error) ExitStatus {
	status := ExitStatus{Code: -1, Time: time.Now()}
	if state == nil {
		status.Err = waitErr
		return status
	}
	if ws, ok := state.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
		status.Signal = ws.Signal().String()
		return status
	}
	status.Code = state.ExitCode()

	// Wait can fail after the process exited cleanly, e.g. when WaitDelay
	// expires on an output pipe held open by a grandchild.
	var exitErr *exec.ExitError
	if waitErr != nil && !errors.As(waitErr, &exitErr) {
		status.Err = waitErr
	}
	return status
}

func (h *execHandle) PID() int { return h.cmd.Process.Pid }

func (h *execHandle) IsRunning() bool {
	select {
	case <-h.done:
		return false
	default:
		return true
	}
}

// Terminate asks the process to stop with SIGTERM.
func (h *execHandle) Terminate() error {
	if !h.IsRunning() {
		return nil
	}
	err := h.cmd.Process.Signal(syscall.SIGTERM)
	if errors.Is(err, os.ErrProcessDone) {
		return nil
	}
	return err
}

// Kill stops the process with SIGKILL.
func (h *execHandle) Kill() error {
	if !h.IsRunning() {
		return nil
	}
	err := h.cmd.Process.Kill()
	if errors.Is(err, os.ErrProcessDone) {
		return nil
	}
	return err
}

func (h *execHandle) Done() <-chan struct{} { return h.done }

// Exit returns the exit status. It is the zero value until Done is closed.
func (h *execHandle) Exit() ExitStatus {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.exit
}
