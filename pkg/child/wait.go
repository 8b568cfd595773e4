//go:build !windows

package child

import (
	"fmt"
	"os"
	"os/signal"
	"sync"
	"time"

	"golang.org/x/sys/unix"
)

// pollInterval bounds how long a timed wait sleeps between liveness checks.
const pollInterval = 2 * time.Millisecond

// ExitStatus is the terminal status of a reaped child.
type ExitStatus struct {
	// Code is the child's exit code (0-255) for a normal exit, or
	// 128+signal for a signal-terminated child, matching shell conventions.
	Code int

	// Signaled reports whether the child was terminated by a signal.
	Signaled bool
}

func (s ExitStatus) String() string {
	if s.Signaled {
		return fmt.Sprintf("killed by signal %d", s.Code-128)
	}
	return fmt.Sprintf("exited with code %d", s.Code)
}

func statusFromWait(ws unix.WaitStatus) ExitStatus {
	if ws.Signaled() {
		return ExitStatus{Code: 128 + int(ws.Signal()), Signaled: true}
	}
	return ExitStatus{Code: ws.ExitStatus()}
}

var waitSetupOnce sync.Once

// ensureWaitSetup re-arms SIGCHLD delivery through the runtime exactly once
// per process. A hosting runtime that inherited or installed SIG_IGN for
// SIGCHLD would otherwise have its children auto-reaped by the kernel,
// making every wait call fail with ECHILD. The notification channel is
// never read; registering it is what restores a waitable disposition.
func ensureWaitSetup() {
	waitSetupOnce.Do(func() {
		signal.Notify(make(chan os.Signal, 1), unix.SIGCHLD)
	})
}

// reapLocked performs a single non-blocking status collection for the
// child. It must be called with h.mu held. On discovery of termination the
// status is cached, at which point the PID is no longer targetable.
func (h *Handle) reapLocked() (bool, error) {
	var ws unix.WaitStatus
	for {
		pid, err := unix.Wait4(h.pid, &ws, unix.WNOHANG, nil)
		switch {
		case err == unix.EINTR:
			continue
		case err != nil:
			return false, err
		case pid == 0:
			return false, nil
		default:
			st := statusFromWait(ws)
			h.exit = &st
			return true, nil
		}
	}
}

// Wait blocks the calling goroutine until the child terminates, caches its
// exit status and returns it. If the child has already been reaped the
// cached status is returned without any OS call.
func (h *Handle) Wait() (ExitStatus, error) {
	ensureWaitSetup()

	h.waitMu.Lock()
	defer h.waitMu.Unlock()

	for {
		h.mu.Lock()
		if h.exit != nil {
			st := *h.exit
			h.mu.Unlock()
			return st, nil
		}
		done, err := h.reapLocked()
		if done {
			st := *h.exit
			h.mu.Unlock()
			return st, nil
		}
		h.mu.Unlock()
		if err != nil {
			return ExitStatus{}, fmt.Errorf("wait pid %d: %w", h.pid, err)
		}
		if err := h.blockUntilExited(); err != nil {
			return ExitStatus{}, fmt.Errorf("wait pid %d: %w", h.pid, err)
		}
	}
}

// WaitTimeout waits for the child to terminate for at most d. A zero
// duration performs a single immediate check; a negative duration behaves
// like Wait. If the deadline elapses first, ErrTimeout is returned and the
// handle is left running and un-reaped.
func (h *Handle) WaitTimeout(d time.Duration) (ExitStatus, error) {
	if d < 0 {
		return h.Wait()
	}
	ensureWaitSetup()

	deadline := time.Now().Add(d)
	for {
		h.mu.Lock()
		if h.exit != nil {
			st := *h.exit
			h.mu.Unlock()
			return st, nil
		}
		done, err := h.reapLocked()
		if done {
			st := *h.exit
			h.mu.Unlock()
			return st, nil
		}
		h.mu.Unlock()
		if err != nil {
			return ExitStatus{}, fmt.Errorf("wait pid %d: %w", h.pid, err)
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return ExitStatus{}, ErrTimeout
		}
		if remaining > pollInterval {
			remaining = pollInterval
		}
		time.Sleep(remaining)
	}
}

// Alive reports whether the child is still running. It never blocks: an
// already-reaped handle answers from the cache, and a child discovered dead
// is reaped immediately so later queries stay consistent and cheap.
func (h *Handle) Alive() bool {
	ensureWaitSetup()

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.exit != nil {
		return false
	}
	done, err := h.reapLocked()
	if err != nil {
		// ECHILD or similar: the child is not waitable, treat as gone.
		return false
	}
	return !done
}
