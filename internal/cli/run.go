//go:build !windows

package cli

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sys/unix"

	"github.com/Paintersrp/subproc/internal/metrics"
	"github.com/Paintersrp/subproc/pkg/child"
)

const pumpChunkSize = 4096

func newRunCmd() *cobra.Command {
	var (
		stdinMode  string
		stdoutMode string
		stderrMode string
		envPairs   []string
		dir        string
		stopSignal string
		killAfter  time.Duration
	)

	cmd := &cobra.Command{
		Use:   "run [flags] -- command [args...]",
		Short: "Run a single command with configurable stream routing",
		Long: "Run spawns the command with the requested stdio routing and mirrors any " +
			"piped streams onto subproc's own. The command line is passed verbatim as " +
			"an argv vector; no shell interpretation is performed. On interrupt the " +
			"child receives the stop signal and, after --kill-after, SIGKILL. The " +
			"exit code of subproc mirrors the child's, including the 128+signal " +
			"convention for signal deaths.",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := child.Options{Dir: dir}

			var err error
			if opts.Stdin, err = child.ParseStdio(stdinMode); err != nil {
				return fmt.Errorf("--stdin: %w", err)
			}
			if opts.Stdout, err = child.ParseStdio(stdoutMode); err != nil {
				return fmt.Errorf("--stdout: %w", err)
			}
			if opts.Stderr, err = child.ParseStdio(stderrMode); err != nil {
				return fmt.Errorf("--stderr: %w", err)
			}

			if len(envPairs) > 0 {
				opts.Env = make(map[string]string, len(envPairs))
				for _, pair := range envPairs {
					k, v, ok := strings.Cut(pair, "=")
					if !ok || k == "" {
						return fmt.Errorf("--env %q: expected KEY=VALUE", pair)
					}
					opts.Env[k] = v
				}
			}

			sig, err := child.ParseSignal(stopSignal)
			if err != nil {
				return fmt.Errorf("--stop-signal: %w", err)
			}

			h, err := child.Spawn(args[0], args[1:], opts)
			if err != nil {
				return err
			}
			defer h.Close()
			metrics.ChildSpawned(args[0])

			if opts.Stdin.IsPipe() {
				go feedStdin(h, cmd.InOrStdin())
			}

			status, err := superviseRun(cmd, h, sig, killAfter)
			if err != nil {
				return err
			}
			metrics.ChildReaped(args[0], status.Signaled)
			if status.Code != 0 {
				return &exitCodeError{code: status.Code}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&stdinMode, "stdin", "inherit", "stdin routing: null, pipe, inherit, or file:PATH")
	cmd.Flags().StringVar(&stdoutMode, "stdout", "inherit", "stdout routing: null, pipe, inherit, or file:PATH")
	cmd.Flags().StringVar(&stderrMode, "stderr", "inherit", "stderr routing: null, pipe, inherit, or file:PATH")
	cmd.Flags().StringArrayVarP(&envPairs, "env", "e", nil, "environment override KEY=VALUE (repeatable)")
	cmd.Flags().StringVarP(&dir, "dir", "C", "", "working directory for the child")
	cmd.Flags().StringVar(&stopSignal, "stop-signal", "TERM", "signal sent to the child on interrupt")
	cmd.Flags().DurationVar(&killAfter, "kill-after", 5*time.Second, "time after the stop signal before SIGKILL")

	return cmd
}

// superviseRun mirrors piped output and waits for the child, escalating to
// SIGKILL if the surrounding context is cancelled and the child outlives
// the grace period.
func superviseRun(cmd *cobra.Command, h *child.Handle, stopSig unix.Signal, killAfter time.Duration) (child.ExitStatus, error) {
	ctx := cmd.Context()
	buf := make([]byte, pumpChunkSize)

	outOpen := h.StdioConfig(child.Stdout).IsPipe()
	errOpen := h.StdioConfig(child.Stderr).IsPipe()

	stopping := false
	killed := false
	var killAt time.Time

	for {
		progress := false
		if outOpen {
			n := pump(h, child.Stdout, buf, cmd.OutOrStdout(), &outOpen)
			progress = progress || n
		}
		if errOpen {
			n := pump(h, child.Stderr, buf, cmd.ErrOrStderr(), &errOpen)
			progress = progress || n
		}

		if !stopping && ctx.Err() != nil {
			stopping = true
			killAt = time.Now().Add(killAfter)
			if err := h.Signal(stopSig); err != nil && !errors.Is(err, child.ErrAlreadyExited) {
				metrics.SignalFailed(h.Command())
				fmt.Fprintf(cmd.ErrOrStderr(), "subproc: %v\n", err)
			}
		}
		if stopping && !killed && time.Now().After(killAt) {
			killed = true
			if err := h.Signal(unix.SIGKILL); err != nil && !errors.Is(err, child.ErrAlreadyExited) {
				metrics.SignalFailed(h.Command())
				fmt.Fprintf(cmd.ErrOrStderr(), "subproc: %v\n", err)
			}
		}

		status, err := h.WaitTimeout(0)
		if err == nil {
			// Drain whatever the child flushed before exiting.
			for outOpen {
				if !pump(h, child.Stdout, buf, cmd.OutOrStdout(), &outOpen) {
					break
				}
			}
			for errOpen {
				if !pump(h, child.Stderr, buf, cmd.ErrOrStderr(), &errOpen) {
					break
				}
			}
			return status, nil
		}
		if !errors.Is(err, child.ErrTimeout) {
			return child.ExitStatus{}, err
		}

		if !progress {
			time.Sleep(10 * time.Millisecond)
		}
	}
}

// pump moves at most one chunk from a piped stream to w. It clears *open
// on EOF or error and reports whether any bytes moved.
func pump(h *child.Handle, s child.Stream, buf []byte, w io.Writer, open *bool) bool {
	n, err := h.Read(s, buf)
	switch {
	case err == nil:
		_, _ = w.Write(buf[:n])
		return true
	case errors.Is(err, child.ErrWouldBlock):
		return false
	default:
		*open = false
		return false
	}
}

// feedStdin copies the parent's stdin into the child, retrying writes the
// kernel buffer rejects, and closes the child's stdin at EOF.
func feedStdin(h *child.Handle, r io.Reader) {
	defer h.CloseStream(child.Stdin)
	buf := make([]byte, pumpChunkSize)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			rem := buf[:n]
			for len(rem) > 0 {
				w, werr := h.Write(rem)
				if errors.Is(werr, child.ErrWouldBlock) {
					time.Sleep(5 * time.Millisecond)
					continue
				}
				if werr != nil {
					return
				}
				rem = rem[w:]
			}
		}
		if err != nil {
			return
		}
	}
}
