//go:build unix && !linux

package child

import "time"

// blockUntilExited approximates a kernel rendezvous with a short sleep on
// platforms without a portable waitid-with-WNOWAIT wrapper. The caller
// loops, so the reap itself still happens under the handle mutex.
func (h *Handle) blockUntilExited() error {
	time.Sleep(pollInterval)
	return nil
}
