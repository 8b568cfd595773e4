//go:build !windows

// Package supervise runs the set of children described by a procfile: it
// spawns them, pumps their piped output, observes exits and performs
// graceful shutdown with signal escalation. It is the glue between the
// manifest and the child engine; all child interaction goes through the
// non-blocking engine API from a single polling loop.
package supervise

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"golang.org/x/sys/unix"

	"github.com/Paintersrp/subproc/internal/config"
	"github.com/Paintersrp/subproc/internal/metrics"
	"github.com/Paintersrp/subproc/pkg/child"
)

// ReadChunkSize is the buffer used for each non-blocking read attempt.
const ReadChunkSize = 4096

// idleSleep bounds the polling loop when no child produced output.
const idleSleep = 10 * time.Millisecond

// EventType classifies supervisor notifications.
type EventType string

const (
	EventStarted EventType = "started"
	EventLog     EventType = "log"
	EventExited  EventType = "exited"
	EventError   EventType = "error"
)

// Event is a single lifecycle or log notification for one child.
type Event struct {
	Timestamp time.Time
	Process   string
	Type      EventType
	Stream    child.Stream
	Line      string
	Status    child.ExitStatus
	Err       error
}

// Child pairs a spawned handle with its manifest stop policy.
type Child struct {
	Name        string
	Handle      *child.Handle
	StopSignal  unix.Signal
	StopTimeout time.Duration

	exited  bool
	status  child.ExitStatus
	failed  bool
	killed  bool
	stopAt  time.Time
	stdout  lineBuffer
	stderr  lineBuffer
	outOpen bool
	errOpen bool
}

// Status returns the child's exit status once it has been reaped.
func (c *Child) Status() (child.ExitStatus, bool) {
	return c.Handle.ExitStatus()
}

// Group supervises the children of one procfile.
type Group struct {
	order    []string
	children map[string]*Child
}

// Start spawns every process in the manifest. If any spawn fails, children
// already started are killed and reaped before the error is returned.
func Start(doc *config.Procfile) (*Group, error) {
	g := &Group{children: make(map[string]*Child, len(doc.Processes))}

	for _, name := range doc.Names() {
		proc := doc.Processes[name]
		sig, err := child.ParseSignal(proc.StopSignal)
		if err != nil {
			g.killAll()
			return nil, fmt.Errorf("process %s: %w", name, err)
		}

		h, err := child.Spawn(proc.Command[0], proc.Command[1:], proc.SpawnOptions())
		if err != nil {
			g.killAll()
			return nil, fmt.Errorf("process %s: %w", name, err)
		}
		metrics.ChildSpawned(name)

		g.order = append(g.order, name)
		g.children[name] = &Child{
			Name:        name,
			Handle:      h,
			StopSignal:  sig,
			StopTimeout: proc.StopTimeout.Duration,
			outOpen:     proc.Stdout.Stdio.IsPipe(),
			errOpen:     proc.Stderr.Stdio.IsPipe(),
		}
	}
	return g, nil
}

// Children returns the supervised children in manifest order.
func (g *Group) Children() []*Child {
	out := make([]*Child, 0, len(g.order))
	for _, name := range g.order {
		out = append(out, g.children[name])
	}
	return out
}

// Signal delivers sig to the named child.
func (g *Group) Signal(name string, sig unix.Signal) error {
	c, ok := g.children[name]
	if !ok {
		return fmt.Errorf("unknown process %q", name)
	}
	if err := c.Handle.Signal(sig); err != nil {
		metrics.SignalFailed(name)
		return err
	}
	return nil
}

// Run pumps output and exit notifications into events until every child
// has been reaped and its piped streams are drained. Cancelling ctx starts
// a graceful shutdown: each child receives its stop signal and, once its
// stop timeout elapses, SIGKILL. Run returns the number of children that
// exited unsuccessfully. The caller owns the events channel.
func (g *Group) Run(ctx context.Context, events chan<- Event) int {
	for _, name := range g.order {
		c := g.children[name]
		emit(events, Event{
			Timestamp: time.Now(),
			Process:   name,
			Type:      EventStarted,
			Line:      fmt.Sprintf("started pid %d", c.Handle.PID()),
		})
	}

	buf := make([]byte, ReadChunkSize)
	stopping := false

	for {
		progress := false
		allDone := true

		if !stopping && ctx.Err() != nil {
			stopping = true
			now := time.Now()
			for _, name := range g.order {
				c := g.children[name]
				c.stopAt = now.Add(c.StopTimeout)
				if err := c.Handle.Signal(c.StopSignal); err != nil && !errors.Is(err, child.ErrAlreadyExited) {
					metrics.SignalFailed(name)
					emit(events, Event{Timestamp: time.Now(), Process: name, Type: EventError, Err: err})
				}
			}
		}

		for _, name := range g.order {
			c := g.children[name]

			if c.outOpen && g.drain(c, child.Stdout, buf, events) {
				progress = true
			}
			if c.errOpen && g.drain(c, child.Stderr, buf, events) {
				progress = true
			}

			if !c.exited {
				st, err := c.Handle.WaitTimeout(0)
				switch {
				case err == nil:
					c.exited = true
					c.status = st
					metrics.ChildReaped(name, st.Signaled)
					g.finishStreams(c, buf, events)
					emit(events, Event{Timestamp: time.Now(), Process: name, Type: EventExited, Status: st})
					progress = true
				case errors.Is(err, child.ErrTimeout):
					if stopping && !c.killed && time.Now().After(c.stopAt) {
						c.killed = true
						if err := c.Handle.Signal(unix.SIGKILL); err != nil && !errors.Is(err, child.ErrAlreadyExited) {
							metrics.SignalFailed(name)
							emit(events, Event{Timestamp: time.Now(), Process: name, Type: EventError, Err: err})
						}
					}
				default:
					// The child's status is unknowable; treat it as failed.
					c.exited = true
					c.failed = true
					g.finishStreams(c, buf, events)
					emit(events, Event{Timestamp: time.Now(), Process: name, Type: EventError, Err: err})
				}
			}

			if !c.exited || c.outOpen || c.errOpen {
				allDone = false
			}
		}

		if allDone {
			failures := 0
			for _, name := range g.order {
				c := g.children[name]
				_ = c.Handle.Close()
				if c.failed || c.status.Code != 0 {
					failures++
				}
			}
			return failures
		}
		if !progress {
			time.Sleep(idleSleep)
		}
	}
}

// drain performs read attempts on one piped stream until it would block or
// reaches EOF, emitting completed lines. Reports whether any data moved.
func (g *Group) drain(c *Child, s child.Stream, buf []byte, events chan<- Event) bool {
	lb := &c.stdout
	open := &c.outOpen
	if s == child.Stderr {
		lb = &c.stderr
		open = &c.errOpen
	}

	moved := false
	for *open {
		n, err := c.Handle.Read(s, buf)
		switch {
		case err == nil:
			moved = true
			for _, line := range lb.feed(buf[:n]) {
				emit(events, Event{Timestamp: time.Now(), Process: c.Name, Type: EventLog, Stream: s, Line: line})
			}
		case errors.Is(err, child.ErrWouldBlock):
			return moved
		case errors.Is(err, io.EOF):
			*open = false
			if rest := lb.flush(); rest != "" {
				emit(events, Event{Timestamp: time.Now(), Process: c.Name, Type: EventLog, Stream: s, Line: rest})
			}
			return moved
		default:
			*open = false
			emit(events, Event{Timestamp: time.Now(), Process: c.Name, Type: EventError, Stream: s, Err: err})
			return moved
		}
	}
	return moved
}

// finishStreams runs once the child has been reaped: everything it wrote is
// already buffered in the kernel, so one drain pass collects it and the
// parent ends can be closed. Without the close, a grandchild inheriting the
// write end would keep the loop alive indefinitely.
func (g *Group) finishStreams(c *Child, buf []byte, events chan<- Event) {
	for _, s := range []child.Stream{child.Stdout, child.Stderr} {
		lb, open := &c.stdout, &c.outOpen
		if s == child.Stderr {
			lb, open = &c.stderr, &c.errOpen
		}
		if !*open {
			continue
		}
		g.drain(c, s, buf, events)
		if !*open {
			continue
		}
		_ = c.Handle.CloseStream(s)
		*open = false
		if rest := lb.flush(); rest != "" {
			emit(events, Event{Timestamp: time.Now(), Process: c.Name, Type: EventLog, Stream: s, Line: rest})
		}
	}
}

func (g *Group) killAll() {
	for _, c := range g.children {
		if err := c.Handle.Signal(unix.SIGKILL); err == nil {
			_, _ = c.Handle.Wait()
		}
		_ = c.Handle.Close()
	}
}

func emit(events chan<- Event, ev Event) {
	if events == nil {
		return
	}
	events <- ev
}

// lineBuffer splits a byte stream into lines, holding the trailing partial
// line between reads.
type lineBuffer struct {
	rest []byte
}

func (b *lineBuffer) feed(p []byte) []string {
	b.rest = append(b.rest, p...)
	var lines []string
	for {
		i := bytes.IndexByte(b.rest, '\n')
		if i < 0 {
			return lines
		}
		lines = append(lines, string(bytes.TrimRight(b.rest[:i], "\r")))
		b.rest = b.rest[i+1:]
	}
}

func (b *lineBuffer) flush() string {
	if len(b.rest) == 0 {
		return ""
	}
	line := string(b.rest)
	b.rest = nil
	return line
}
