//go:build !windows

package cli

import (
	stdcontext "context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Paintersrp/subproc/internal/config"
	"github.com/Paintersrp/subproc/internal/supervise"
	"github.com/Paintersrp/subproc/internal/tui"
)

func newTuiCmd() *cobra.Command {
	var procfile string

	cmd := &cobra.Command{
		Use:   "tui",
		Short: "Run a procfile with an interactive status table",
		Long: "Tui supervises the procfile like up, rendering a live table of " +
			"children and a log tail. Press s to send the selected child SIGTERM, " +
			"k for SIGKILL, and q to stop everything and quit.",
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := config.Load(procfile)
			if err != nil {
				return err
			}

			group, err := supervise.Start(doc)
			if err != nil {
				return err
			}

			runCtx, cancel := stdcontext.WithCancel(cmd.Context())
			defer cancel()

			events := make(chan supervise.Event, 256)
			failuresCh := make(chan int, 1)
			go func() {
				failuresCh <- group.Run(runCtx, events)
				close(events)
			}()

			ui := tui.New(group, cancel)
			uiErr := ui.Run(events)

			// The UI is gone; drain remaining events so the supervisor can
			// finish shutting down and report.
			cancel()
			for range events {
			}
			failures := <-failuresCh

			if uiErr != nil {
				return uiErr
			}
			if failures > 0 {
				return fmt.Errorf("%d process(es) exited unsuccessfully", failures)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&procfile, "file", "f", "procfile.yaml", "path to the procfile manifest")

	return cmd
}
