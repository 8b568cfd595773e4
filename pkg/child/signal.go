//go:build !windows

package child

import (
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"
)

// Signal delivers sig to the child. Once the handle has been reaped, by any
// of the wait operations, the call fails with ErrAlreadyExited and no kill
// is issued: the kernel may have recycled the PID for an unrelated process.
// A successful delivery does not change the handle's status; termination is
// only ever observed through the wait operations.
func (h *Handle) Signal(sig unix.Signal) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.exit != nil {
		return ErrAlreadyExited
	}
	if err := unix.Kill(h.pid, sig); err != nil {
		return fmt.Errorf("signal %s pid %d: %w", unix.SignalName(sig), h.pid, err)
	}
	return nil
}

// ParseSignal resolves a numeric value or a symbolic POSIX signal name
// ("TERM", "SIGTERM", "sigkill", "9") to its signal number.
func ParseSignal(s string) (unix.Signal, error) {
	if n, err := strconv.Atoi(s); err == nil {
		if n <= 0 || n >= 64 {
			return 0, fmt.Errorf("signal number %d out of range", n)
		}
		return unix.Signal(n), nil
	}
	name := strings.ToUpper(s)
	name = strings.TrimPrefix(name, "SIG")
	if sig, ok := signalNames[name]; ok {
		return sig, nil
	}
	return 0, fmt.Errorf("unknown signal %q", s)
}
