//go:build !windows

package child

import (
	"fmt"
	"io"

	"golang.org/x/sys/unix"
)

// Read performs a single non-blocking read from the parent side of a piped
// stdout or stderr stream into p. It returns the number of bytes read,
// ErrWouldBlock when no data is available and the peer is still open, and
// io.EOF once the peer has closed its end and the buffer is drained. Reads
// return io.EOF after the stream has been closed locally. Streams not
// configured as pipes report ErrNotPiped without touching the OS. Content
// is binary-safe.
func (h *Handle) Read(s Stream, p []byte) (int, error) {
	if s == Stdin {
		return 0, ErrNotPiped
	}
	pe := h.pipe(s)
	if pe == nil {
		return 0, ErrNotPiped
	}
	if len(p) == 0 {
		return 0, nil
	}

	pe.mu.Lock()
	defer pe.mu.Unlock()
	if !pe.open {
		return 0, io.EOF
	}
	for {
		n, err := unix.Read(pe.fd, p)
		switch {
		case err == unix.EINTR:
			continue
		case err == unix.EAGAIN:
			return 0, ErrWouldBlock
		case err != nil:
			return 0, fmt.Errorf("read %s: %w", s, err)
		case n == 0:
			return 0, io.EOF
		default:
			return n, nil
		}
	}
}

// Write performs a single non-blocking write of p to the child's piped
// stdin and returns how many leading bytes the kernel buffer accepted; a
// short count means the caller must retry with the remainder. ErrWouldBlock
// is returned when nothing was accepted because the buffer is full, and
// ErrBrokenPipe once the child has closed its read end, exited, or the
// stream was closed locally. The underlying SIGPIPE condition never
// terminates the managing process; raw descriptor writes surface EPIPE
// instead.
func (h *Handle) Write(p []byte) (int, error) {
	pe := h.stdin
	if pe == nil {
		return 0, ErrNotPiped
	}

	pe.mu.Lock()
	defer pe.mu.Unlock()
	if !pe.open {
		return 0, ErrBrokenPipe
	}
	for {
		n, err := unix.Write(pe.fd, p)
		switch {
		case err == unix.EINTR:
			continue
		case err == unix.EAGAIN:
			return 0, ErrWouldBlock
		case err == unix.EPIPE:
			return 0, ErrBrokenPipe
		case err != nil:
			return 0, fmt.Errorf("write stdin: %w", err)
		default:
			return n, nil
		}
	}
}

// CloseStream closes the parent-side descriptor of a piped stream. Closing
// stdin signals end-of-input to the child; closing stdout or stderr makes
// the child's next write to that stream a broken-pipe condition, whose
// default disposition the reaper observes as 128+SIGPIPE. Closing an
// already-closed stream is a no-op; streams not configured as pipes report
// ErrNotPiped.
func (h *Handle) CloseStream(s Stream) error {
	pe := h.pipe(s)
	if pe == nil {
		return ErrNotPiped
	}
	return pe.close()
}
