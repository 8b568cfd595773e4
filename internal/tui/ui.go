//go:build !windows

// Package tui renders a live status table and log tail for supervised
// children.
package tui

import (
	"fmt"
	"sync"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
	"golang.org/x/sys/unix"

	"github.com/Paintersrp/subproc/internal/supervise"
	"github.com/Paintersrp/subproc/pkg/child"
)

const (
	tableTitle     = "Processes"
	logsTitle      = "Logs"
	defaultMaxLogs = 500
)

type procState struct {
	pid    int
	state  string
	status child.ExitStatus
	exited bool
}

// UI coordinates the interactive status interface backed by tview.
type UI struct {
	app   *tview.Application
	table *tview.Table
	logs  *tview.TextView

	group *supervise.Group
	stop  func()
	done  chan struct{}

	mu     sync.Mutex
	states map[string]*procState
	order  []string
	nlogs  int
}

// New constructs a UI over the supervised group. stop is invoked when the
// user requests shutdown.
func New(group *supervise.Group, stop func()) *UI {
	app := tview.NewApplication()

	table := tview.NewTable().SetFixed(1, 0).SetSelectable(true, false)
	table.SetBorder(true)
	table.SetTitle(tableTitle)

	logs := tview.NewTextView().SetDynamicColors(false).SetWrap(false)
	logs.SetBorder(true)
	logs.SetTitle(logsTitle)

	u := &UI{
		app:    app,
		table:  table,
		logs:   logs,
		group:  group,
		stop:   stop,
		done:   make(chan struct{}),
		states: make(map[string]*procState),
	}

	for _, c := range group.Children() {
		u.order = append(u.order, c.Name)
		u.states[c.Name] = &procState{pid: c.Handle.PID(), state: "running"}
	}

	flex := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(table, 0, 1, true).
		AddItem(logs, 0, 2, false)

	app.SetInputCapture(func(ev *tcell.EventKey) *tcell.EventKey {
		switch {
		case ev.Key() == tcell.KeyCtrlC, ev.Rune() == 'q':
			u.stop()
			return nil
		case ev.Rune() == 's':
			u.signalSelected(unix.SIGTERM)
			return nil
		case ev.Rune() == 'k':
			u.signalSelected(unix.SIGKILL)
			return nil
		}
		return ev
	})

	app.SetRoot(flex, true)
	u.redrawTable()
	return u
}

// Run consumes supervisor events until the channel closes, then stops the
// terminal application. It blocks until the UI exits. Once the application
// has returned, remaining events are still drained but no longer drawn.
func (u *UI) Run(events <-chan supervise.Event) error {
	go func() {
		for ev := range events {
			u.apply(ev)
		}
		u.app.Stop()
	}()
	err := u.app.Run()
	close(u.done)
	return err
}

func (u *UI) apply(ev supervise.Event) {
	u.mu.Lock()
	st, ok := u.states[ev.Process]
	if !ok {
		st = &procState{}
		u.states[ev.Process] = st
		u.order = append(u.order, ev.Process)
	}
	switch ev.Type {
	case supervise.EventExited:
		st.exited = true
		st.state = "exited"
		st.status = ev.Status
	case supervise.EventError:
		st.state = "error"
	}
	u.mu.Unlock()

	// The update queue is only drained while the application runs; after
	// it has stopped, queueing would eventually block this goroutine.
	select {
	case <-u.done:
		return
	default:
	}

	u.app.QueueUpdateDraw(func() {
		if ev.Type == supervise.EventLog {
			u.appendLog(fmt.Sprintf("[%s] %s", ev.Process, ev.Line))
		}
		if ev.Type == supervise.EventError && ev.Err != nil {
			u.appendLog(fmt.Sprintf("[%s] error: %v", ev.Process, ev.Err))
		}
		u.redrawTable()
	})
}

// appendLog must run on the application goroutine.
func (u *UI) appendLog(line string) {
	if u.nlogs >= defaultMaxLogs {
		u.logs.Clear()
		u.nlogs = 0
	}
	u.nlogs++
	fmt.Fprintln(u.logs, line)
	u.logs.ScrollToEnd()
}

// redrawTable must run on the application goroutine.
func (u *UI) redrawTable() {
	u.mu.Lock()
	defer u.mu.Unlock()

	headers := []string{"NAME", "PID", "STATE", "EXIT"}
	for col, h := range headers {
		u.table.SetCell(0, col, tview.NewTableCell(h).
			SetSelectable(false).
			SetAttributes(tcell.AttrBold))
	}

	for row, name := range u.order {
		st := u.states[name]
		exit := "-"
		color := tcell.ColorGreen
		if st.exited {
			exit = st.status.String()
			color = tcell.ColorRed
			if !st.status.Signaled && st.status.Code == 0 {
				color = tcell.ColorGray
			}
		}
		u.table.SetCell(row+1, 0, tview.NewTableCell(name))
		u.table.SetCell(row+1, 1, tview.NewTableCell(fmt.Sprintf("%d", st.pid)))
		u.table.SetCell(row+1, 2, tview.NewTableCell(st.state).SetTextColor(color))
		u.table.SetCell(row+1, 3, tview.NewTableCell(exit))
	}
}

func (u *UI) signalSelected(sig unix.Signal) {
	row, _ := u.table.GetSelection()
	u.mu.Lock()
	var name string
	if row >= 1 && row-1 < len(u.order) {
		name = u.order[row-1]
	}
	u.mu.Unlock()
	if name == "" {
		return
	}
	if err := u.group.Signal(name, sig); err != nil {
		u.appendLog(fmt.Sprintf("[%s] signal: %v", name, err))
	}
}
