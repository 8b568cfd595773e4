//go:build !windows

package cli

import (
	stdcontext "context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/Paintersrp/subproc/internal/config"
	"github.com/Paintersrp/subproc/internal/metrics"
	"github.com/Paintersrp/subproc/internal/supervise"
	"github.com/Paintersrp/subproc/pkg/child"
)

// ansi palette cycled across process names when writing to a terminal.
var prefixColors = []string{"36", "33", "32", "35", "34", "31"}

func newUpCmd() *cobra.Command {
	var (
		procfile    string
		metricsAddr string
	)

	cmd := &cobra.Command{
		Use:   "up",
		Short: "Run every process of a procfile until all exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := config.Load(procfile)
			if err != nil {
				return err
			}

			group, err := supervise.Start(doc)
			if err != nil {
				return err
			}

			var stopMetrics func()
			if metricsAddr != "" {
				stopMetrics, err = serveMetrics(metricsAddr, cmd)
				if err != nil {
					return err
				}
				defer stopMetrics()
			}

			events := make(chan supervise.Event, 256)
			printerDone := make(chan struct{})
			go func() {
				defer close(printerDone)
				printEvents(cmd, doc.Names(), events)
			}()

			failures := group.Run(cmd.Context(), events)
			close(events)
			<-printerDone

			if failures > 0 {
				return fmt.Errorf("%d process(es) exited unsuccessfully", failures)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&procfile, "file", "f", "procfile.yaml", "path to the procfile manifest")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address (e.g. :9410)")

	return cmd
}

// printEvents renders supervisor events with per-process prefixes, colored
// when stdout is a terminal.
func printEvents(cmd *cobra.Command, names []string, events <-chan supervise.Event) {
	colorize := false
	if f, ok := cmd.OutOrStdout().(*os.File); ok {
		colorize = term.IsTerminal(int(f.Fd()))
	}

	colors := make(map[string]string, len(names))
	for i, name := range names {
		colors[name] = prefixColors[i%len(prefixColors)]
	}

	prefix := func(name string) string {
		if !colorize {
			return fmt.Sprintf("[%s] ", name)
		}
		return fmt.Sprintf("\x1b[%sm[%s]\x1b[0m ", colors[name], name)
	}

	for ev := range events {
		switch ev.Type {
		case supervise.EventStarted:
			fmt.Fprintf(cmd.OutOrStdout(), "%s%s\n", prefix(ev.Process), ev.Line)
		case supervise.EventLog:
			out := cmd.OutOrStdout()
			if ev.Stream == child.Stderr {
				out = cmd.ErrOrStderr()
			}
			fmt.Fprintf(out, "%s%s\n", prefix(ev.Process), ev.Line)
		case supervise.EventExited:
			fmt.Fprintf(cmd.OutOrStdout(), "%s%s\n", prefix(ev.Process), ev.Status)
		case supervise.EventError:
			fmt.Fprintf(cmd.ErrOrStderr(), "%ssupervisor error: %v\n", prefix(ev.Process), ev.Err)
		}
	}
}

// serveMetrics exposes the private registry over HTTP and returns a
// shutdown func.
func serveMetrics(addr string, cmd *cobra.Command) (func(), error) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(metrics.Registry(), promhttp.HandlerOpts{}))
	server := &http.Server{Addr: addr, Handler: mux}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	// Fail fast on an unusable address instead of supervising blind.
	select {
	case err := <-errCh:
		return nil, fmt.Errorf("metrics listener: %w", err)
	case <-time.After(100 * time.Millisecond):
	}
	fmt.Fprintf(cmd.OutOrStdout(), "metrics listening on %s\n", addr)

	return func() {
		shutdownCtx, cancel := stdcontext.WithTimeout(stdcontext.Background(), time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
		if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
			fmt.Fprintf(cmd.ErrOrStderr(), "metrics server: %v\n", err)
		}
	}, nil
}
