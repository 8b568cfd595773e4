//go:build linux

package child

import "golang.org/x/sys/unix"

// blockUntilExited parks in the kernel until the child has terminated,
// without collecting its status. WNOWAIT leaves the child waitable so the
// actual reap always happens under the handle mutex, keeping the PID-reuse
// guard race-free. Returns once the child is (or already was) gone.
func (h *Handle) blockUntilExited() error {
	var info unix.Siginfo
	for {
		err := unix.Waitid(unix.P_PID, h.pid, &info, unix.WEXITED|unix.WNOWAIT, nil)
		switch err {
		case unix.EINTR:
			continue
		case unix.ECHILD:
			// Reaped concurrently; the caller rechecks the cache.
			return nil
		default:
			return err
		}
	}
}
