//go:build !windows

package tui

import (
	"testing"
	"time"

	"github.com/Paintersrp/subproc/internal/supervise"
)

func TestApplyAfterUIExitDoesNotBlock(t *testing.T) {
	u := New(&supervise.Group{}, func() {})

	// Simulate the application having returned: nothing drains the update
	// queue anymore, so apply must stop queueing draws.
	close(u.done)

	finished := make(chan struct{})
	go func() {
		defer close(finished)
		for i := 0; i < 500; i++ {
			u.apply(supervise.Event{Process: "p", Type: supervise.EventLog, Line: "line"})
		}
	}()

	select {
	case <-finished:
	case <-time.After(5 * time.Second):
		t.Fatal("apply blocked after the application exited")
	}
}
