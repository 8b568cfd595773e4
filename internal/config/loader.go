// Package config loads and validates the procfile manifest consumed by the
// up and tui commands.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Paintersrp/subproc/pkg/child"
)

// DefaultStopTimeout bounds how long a graceful stop waits before the
// supervisor escalates to SIGKILL.
const DefaultStopTimeout = 5 * time.Second

// Load reads a procfile manifest from the provided path.
func Load(path string) (*Procfile, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve procfile path: %w", err)
	}

	f, err := os.Open(absPath)
	if err != nil {
		return nil, fmt.Errorf("open procfile: %w", err)
	}
	defer f.Close()

	decoder := yaml.NewDecoder(f)
	decoder.KnownFields(true)
	var doc Procfile
	if err := decoder.Decode(&doc); err != nil {
		return nil, fmt.Errorf("%s: decode: %w", absPath, err)
	}

	baseDir := filepath.Dir(absPath)
	doc.Workdir = resolveWorkdir(baseDir, os.ExpandEnv(doc.Workdir))

	if len(doc.Processes) == 0 {
		return nil, fmt.Errorf("%s: no processes defined", absPath)
	}

	for name, proc := range doc.Processes {
		if proc == nil {
			return nil, fmt.Errorf("process %s: empty definition", name)
		}
		if len(proc.Command) == 0 {
			return nil, fmt.Errorf("process %s: command is required", name)
		}

		if len(proc.Env) > 0 {
			expanded := make(map[string]string, len(proc.Env))
			for k, v := range proc.Env {
				expanded[k] = os.ExpandEnv(v)
			}
			proc.Env = expanded
		}

		proc.Workdir = resolveWorkdir(doc.Workdir, os.ExpandEnv(proc.Workdir))

		// Unconfigured streams default to captured output and no input.
		if !proc.Stdin.IsSet() {
			proc.Stdin.Stdio = child.Null()
		}
		if !proc.Stdout.IsSet() {
			proc.Stdout.Stdio = child.Pipe()
		}
		if !proc.Stderr.IsSet() {
			proc.Stderr.Stdio = child.Pipe()
		}

		if proc.StopSignal == "" {
			proc.StopSignal = "TERM"
		}
		if _, err := child.ParseSignal(proc.StopSignal); err != nil {
			return nil, fmt.Errorf("process %s: stopSignal: %w", name, err)
		}
		if !proc.StopTimeout.IsSet() {
			proc.StopTimeout.Duration = DefaultStopTimeout
		}
	}

	return &doc, nil
}

// Names returns the process names in deterministic order.
func (p *Procfile) Names() []string {
	names := make([]string, 0, len(p.Processes))
	for name := range p.Processes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func resolveWorkdir(base, dir string) string {
	if dir == "" {
		return base
	}
	if filepath.IsAbs(dir) {
		return filepath.Clean(dir)
	}
	return filepath.Clean(filepath.Join(base, dir))
}
