package child

import "errors"

var (
	// ErrAlreadyExited is returned by Signal once the child's exit status
	// has been collected. After the reap the kernel may recycle the PID, so
	// signalling it could hit an unrelated process.
	ErrAlreadyExited = errors.New("process already exited")

	// ErrNotPiped is returned by stream operations on a stream that was not
	// configured as a pipe.
	ErrNotPiped = errors.New("stream not piped")

	// ErrWouldBlock is returned by Read when no data is currently available
	// and by Write when the kernel pipe buffer accepted nothing.
	ErrWouldBlock = errors.New("operation would block")

	// ErrBrokenPipe is returned by Write once the child has closed its read
	// end or exited. It is an ordinary error; the managing process is never
	// terminated by the underlying SIGPIPE condition.
	ErrBrokenPipe = errors.New("broken pipe")

	// ErrTimeout is returned by WaitTimeout when the deadline elapses while
	// the child is still running. The handle remains fully usable.
	ErrTimeout = errors.New("wait timed out")
)
