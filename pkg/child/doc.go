// Package child manages the lifecycle of directly spawned OS processes:
// spawning with configurable standard-stream routing, signal delivery,
// blocking and timed exit-status collection, and non-blocking I/O over
// piped streams.
//
// Every operation runs synchronously in the caller's goroutine; the package
// starts no goroutines of its own. Only Wait and the bounded branch of
// WaitTimeout suspend the caller. A Handle's status transition is monotonic
// (running to exited) and once a handle has been reaped its PID is treated
// as unsafe: further signals are refused because the kernel may have
// recycled the identifier for an unrelated process.
//
// The package targets POSIX systems only. On Linux children additionally
// receive SIGKILL when the managing process dies, so crashed supervisors do
// not leave orphans behind.
package child
