//go:build !windows

package supervise_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"golang.org/x/sys/unix"

	"github.com/Paintersrp/subproc/internal/config"
	"github.com/Paintersrp/subproc/internal/supervise"
)

func loadProcfile(t *testing.T, content string) *config.Procfile {
	t.Helper()
	path := filepath.Join(t.TempDir(), "procfile.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write procfile: %v", err)
	}
	doc, err := config.Load(path)
	if err != nil {
		t.Fatalf("load procfile: %v", err)
	}
	return doc
}

func collectEvents(events <-chan supervise.Event, done <-chan struct{}) []supervise.Event {
	var out []supervise.Event
	for {
		select {
		case ev := <-events:
			out = append(out, ev)
		case <-done:
			for {
				select {
				case ev := <-events:
					out = append(out, ev)
				default:
					return out
				}
			}
		}
	}
}

func TestRunCollectsOutputAndExits(t *testing.T) {
	doc := loadProcfile(t, `
processes:
  greeter:
    command: ["/bin/sh", "-c", "echo hello; echo oops 1>&2; exit 3"]
`)

	g, err := supervise.Start(doc)
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	events := make(chan supervise.Event, 128)
	done := make(chan struct{})
	var failures int
	go func() {
		defer close(done)
		failures = g.Run(context.Background(), events)
	}()

	got := collectEvents(events, done)
	if failures != 1 {
		t.Fatalf("failures = %d, want 1", failures)
	}

	var sawHello, sawOops, sawExit bool
	for _, ev := range got {
		switch {
		case ev.Type == supervise.EventLog && ev.Line == "hello":
			sawHello = true
		case ev.Type == supervise.EventLog && ev.Line == "oops":
			sawOops = true
		case ev.Type == supervise.EventExited:
			sawExit = true
			if ev.Status.Code != 3 || ev.Status.Signaled {
				t.Fatalf("exit status = %+v, want code 3", ev.Status)
			}
		}
	}
	if !sawHello || !sawOops || !sawExit {
		t.Fatalf("missing events: hello=%v oops=%v exit=%v (%d events)", sawHello, sawOops, sawExit, len(got))
	}
}

func TestRunEscalatesOnCancel(t *testing.T) {
	// The child traps TERM and keeps running, forcing the supervisor to
	// escalate to SIGKILL after the stop timeout.
	doc := loadProcfile(t, `
processes:
  stubborn:
    command: ["/bin/sh", "-c", "trap '' TERM; sleep 30"]
    stopTimeout: 100ms
`)

	g, err := supervise.Start(doc)
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	events := make(chan supervise.Event, 128)
	done := make(chan struct{})
	go func() {
		defer close(done)
		g.Run(ctx, events)
	}()

	// Give the shell a moment to install its trap before stopping.
	time.Sleep(200 * time.Millisecond)
	cancel()

	deadline := time.After(10 * time.Second)
	for {
		select {
		case ev := <-events:
			if ev.Type == supervise.EventExited {
				if !ev.Status.Signaled {
					t.Fatalf("expected signal death, got %+v", ev.Status)
				}
				<-done
				return
			}
		case <-deadline:
			t.Fatal("supervisor never killed the stubborn child")
		}
	}
}

func TestRunCountsUnwaitableChildAsFailure(t *testing.T) {
	doc := loadProcfile(t, `
processes:
  gone:
    command: ["sleep", "30"]
`)

	g, err := supervise.Start(doc)
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	// Reap the child out from under the supervisor so its status check
	// errors instead of reporting an exit.
	pid := g.Children()[0].Handle.PID()
	if err := unix.Kill(pid, unix.SIGKILL); err != nil {
		t.Fatalf("kill: %v", err)
	}
	var ws unix.WaitStatus
	if _, err := unix.Wait4(pid, &ws, 0, nil); err != nil {
		t.Fatalf("wait4: %v", err)
	}

	events := make(chan supervise.Event, 128)
	done := make(chan struct{})
	var failures int
	go func() {
		defer close(done)
		failures = g.Run(context.Background(), events)
	}()

	got := collectEvents(events, done)
	if failures != 1 {
		t.Fatalf("failures = %d, want 1", failures)
	}
	sawError := false
	for _, ev := range got {
		if ev.Type == supervise.EventError && ev.Err != nil {
			sawError = true
		}
	}
	if !sawError {
		t.Fatal("expected an error event for the unwaitable child")
	}
}

func TestStartFailureCleansUp(t *testing.T) {
	doc := loadProcfile(t, `
processes:
  ok:
    command: ["sleep", "10"]
  broken:
    command: ["/this/binary/does/not/exist"]
`)

	if _, err := supervise.Start(doc); err == nil {
		t.Fatal("expected start failure")
	}
}
