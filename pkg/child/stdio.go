package child

import "fmt"

type stdioMode int

const (
	stdioNull stdioMode = iota
	stdioPipe
	stdioInherit
	stdioFile
)

// Stdio selects how one of a child's standard streams is routed. The zero
// value routes the stream to the null device, matching the behaviour of an
// unconfigured exec.Cmd stream.
type Stdio struct {
	mode stdioMode
	path string
}

// Null routes the stream to the platform null device.
func Null() Stdio { return Stdio{mode: stdioNull} }

// Pipe connects the stream to a pipe whose parent side is retained on the
// handle for non-blocking Read/Write/CloseStream calls.
func Pipe() Stdio { return Stdio{mode: stdioPipe} }

// Inherit connects the stream to the descriptor the managing process
// currently has open for it.
func Inherit() Stdio { return Stdio{mode: stdioInherit} }

// File connects the stream directly to the named file: opened for reading
// when used as stdin, created (truncating) when used as stdout or stderr.
// No parent-side descriptor is retained.
func File(path string) Stdio { return Stdio{mode: stdioFile, path: path} }

// IsPipe reports whether the stream was configured as a pipe.
func (s Stdio) IsPipe() bool { return s.mode == stdioPipe }

// Path returns the file path for a File configuration and "" otherwise.
func (s Stdio) Path() string { return s.path }

func (s Stdio) String() string {
	switch s.mode {
	case stdioNull:
		return "null"
	case stdioPipe:
		return "pipe"
	case stdioInherit:
		return "inherit"
	case stdioFile:
		return fmt.Sprintf("file:%s", s.path)
	default:
		return fmt.Sprintf("stdio(%d)", int(s.mode))
	}
}

// ParseStdio decodes the textual forms accepted by the CLI and manifest:
// "null", "pipe", "inherit", or "file:PATH".
func ParseStdio(s string) (Stdio, error) {
	switch s {
	case "null":
		return Null(), nil
	case "pipe":
		return Pipe(), nil
	case "inherit":
		return Inherit(), nil
	}
	if len(s) > 5 && s[:5] == "file:" {
		return File(s[5:]), nil
	}
	return Stdio{}, fmt.Errorf("invalid stdio mode %q, expected null, pipe, inherit, or file:PATH", s)
}

// Stream identifies one of the three standard streams of a child.
type Stream int

const (
	Stdin Stream = iota
	Stdout
	Stderr
)

func (s Stream) String() string {
	switch s {
	case Stdin:
		return "stdin"
	case Stdout:
		return "stdout"
	case Stderr:
		return "stderr"
	default:
		return fmt.Sprintf("stream(%d)", int(s))
	}
}
