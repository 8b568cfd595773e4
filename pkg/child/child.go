//go:build !windows

package child

import (
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"sync"

	"golang.org/x/sys/unix"
)

// Options configures a spawn. The zero value routes every stream to the
// null device and inherits the parent's environment and working directory.
type Options struct {
	// Stdin, Stdout and Stderr select the routing for the child's standard
	// streams. They are fixed at spawn time.
	Stdin  Stdio
	Stdout Stdio
	Stderr Stdio

	// Env holds variables merged on top of the inherited environment.
	// Overrides win on key collision.
	Env map[string]string

	// Dir is the child's working directory. Empty means inherit.
	Dir string
}

// Handle tracks exactly one spawned child. It is safe for concurrent use:
// status transitions, signalling and stream closes are serialized
// internally so observers never see a child as both alive and exited.
type Handle struct {
	pid  int
	cmd  string
	args []string

	stdinCfg  Stdio
	stdoutCfg Stdio
	stderrCfg Stdio

	// mu guards exit. Every reap commits the status while holding it, which
	// is what makes the Signal refusal after a reap race-free.
	mu   sync.Mutex
	exit *ExitStatus

	// waitMu serializes blocking waiters so only one goroutine at a time
	// parks in the kernel for this PID.
	waitMu sync.Mutex

	stdin  *pipeEnd
	stdout *pipeEnd
	stderr *pipeEnd
}

// pipeEnd is the parent-side descriptor of a piped stream. The *os.File
// keeps the descriptor alive; raw reads and writes go through fd so a
// single non-blocking attempt never parks in the runtime poller.
type pipeEnd struct {
	mu   sync.Mutex
	file *os.File
	fd   int
	open bool
}

func newPipeEnd(f *os.File) (*pipeEnd, error) {
	fd := int(f.Fd())
	if err := unix.SetNonblock(fd, true); err != nil {
		return nil, fmt.Errorf("set nonblocking: %w", err)
	}
	return &pipeEnd{file: f, fd: fd, open: true}, nil
}

func (p *pipeEnd) close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.open {
		return nil
	}
	p.open = false
	return p.file.Close()
}

// Spawn starts cmd with the given argv and options and returns a handle
// owning the child's PID and any parent-side pipe descriptors. The command
// line is never interpreted by a shell. On failure no child process exists
// and no descriptors are left open.
func Spawn(cmd string, args []string, opts Options) (*Handle, error) {
	ensureWaitSetup()

	c := exec.Command(cmd, args...)
	if opts.Dir != "" {
		c.Dir = opts.Dir
	}

	env := os.Environ()
	for k, v := range opts.Env {
		env = append(env, fmt.Sprintf("%s=%s", k, v))
	}
	c.Env = env

	configureCmdSysProcAttr(c)

	h := &Handle{
		cmd:       cmd,
		args:      args,
		stdinCfg:  opts.Stdin,
		stdoutCfg: opts.Stdout,
		stderrCfg: opts.Stderr,
	}

	// Files handed to the child; closed in the parent once the child owns
	// copies, or on any wiring failure.
	var childFiles []*os.File
	closeAll := func() {
		for _, f := range childFiles {
			f.Close()
		}
		for _, pe := range []*pipeEnd{h.stdin, h.stdout, h.stderr} {
			if pe != nil {
				pe.close()
			}
		}
	}

	wire := func(stream Stream, cfg Stdio) (*os.File, error) {
		switch cfg.mode {
		case stdioNull:
			// exec.Cmd connects nil streams to the null device.
			return nil, nil
		case stdioInherit:
			switch stream {
			case Stdin:
				return os.Stdin, nil
			case Stdout:
				return os.Stdout, nil
			default:
				return os.Stderr, nil
			}
		case stdioFile:
			if stream == Stdin {
				f, err := os.Open(cfg.path)
				if err != nil {
					return nil, fmt.Errorf("open stdin file: %w", err)
				}
				childFiles = append(childFiles, f)
				return f, nil
			}
			f, err := os.Create(cfg.path)
			if err != nil {
				return nil, fmt.Errorf("create %s file: %w", stream, err)
			}
			childFiles = append(childFiles, f)
			return f, nil
		case stdioPipe:
			r, w, err := os.Pipe()
			if err != nil {
				return nil, fmt.Errorf("create %s pipe: %w", stream, err)
			}
			var parent, theirs *os.File
			if stream == Stdin {
				parent, theirs = w, r
			} else {
				parent, theirs = r, w
			}
			pe, err := newPipeEnd(parent)
			if err != nil {
				r.Close()
				w.Close()
				return nil, fmt.Errorf("%s pipe: %w", stream, err)
			}
			switch stream {
			case Stdin:
				h.stdin = pe
			case Stdout:
				h.stdout = pe
			default:
				h.stderr = pe
			}
			childFiles = append(childFiles, theirs)
			return theirs, nil
		default:
			return nil, fmt.Errorf("invalid %s configuration", stream)
		}
	}

	stdinFile, err := wire(Stdin, opts.Stdin)
	if err != nil {
		closeAll()
		return nil, err
	}
	if stdinFile != nil {
		c.Stdin = stdinFile
	}
	stdoutFile, err := wire(Stdout, opts.Stdout)
	if err != nil {
		closeAll()
		return nil, err
	}
	if stdoutFile != nil {
		c.Stdout = stdoutFile
	}
	stderrFile, err := wire(Stderr, opts.Stderr)
	if err != nil {
		closeAll()
		return nil, err
	}
	if stderrFile != nil {
		c.Stderr = stderrFile
	}

	if err := c.Start(); err != nil {
		closeAll()
		return nil, fmt.Errorf("start %s: %w", cmd, err)
	}

	// The child owns duplicates of its stream descriptors now; release the
	// parent's copies so pipe EOF propagates correctly.
	for _, f := range childFiles {
		f.Close()
	}

	h.pid = c.Process.Pid
	runtime.SetFinalizer(h, (*Handle).Close)
	return h, nil
}

// PID returns the child's OS process identifier. After the handle has been
// reaped the identifier may refer to an unrelated process.
func (h *Handle) PID() int { return h.pid }

// Command returns the spawned executable name.
func (h *Handle) Command() string { return h.cmd }

// Args returns the argv passed after the executable name.
func (h *Handle) Args() []string { return h.args }

// StdioConfig returns the spawn-time configuration of the given stream.
func (h *Handle) StdioConfig(s Stream) Stdio {
	switch s {
	case Stdin:
		return h.stdinCfg
	case Stdout:
		return h.stdoutCfg
	default:
		return h.stderrCfg
	}
}

// ExitStatus returns the cached terminal status, if the child has been
// reaped by Wait, WaitTimeout or Alive.
func (h *Handle) ExitStatus() (ExitStatus, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.exit == nil {
		return ExitStatus{}, false
	}
	return *h.exit, true
}

// Close releases any pipe descriptors the handle still holds. It does not
// signal or reap the child. Close is idempotent.
func (h *Handle) Close() error {
	runtime.SetFinalizer(h, nil)
	var firstErr error
	for _, pe := range []*pipeEnd{h.stdin, h.stdout, h.stderr} {
		if pe == nil {
			continue
		}
		if err := pe.close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (h *Handle) pipe(s Stream) *pipeEnd {
	switch s {
	case Stdin:
		return h.stdin
	case Stdout:
		return h.stdout
	case Stderr:
		return h.stderr
	default:
		return nil
	}
}
