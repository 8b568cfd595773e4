package config

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Paintersrp/subproc/pkg/child"
)

// Duration wraps time.Duration for YAML unmarshalling.
type Duration struct {
	time.Duration
	explicit bool
}

// UnmarshalText parses a textual duration, accepting empty strings.
func (d *Duration) UnmarshalText(text []byte) error {
	d.explicit = true
	if len(text) == 0 {
		d.Duration = 0
		return nil
	}
	dur, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", string(text), err)
	}
	d.Duration = dur
	return nil
}

// MarshalText renders the duration using time.Duration formatting.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// IsSet reports whether the duration was explicitly provided or non-zero.
func (d Duration) IsSet() bool {
	return d.explicit || d.Duration != 0
}

// StdioSpec decodes the YAML forms of a stream configuration: the scalars
// null, pipe and inherit, or a mapping {file: PATH}.
type StdioSpec struct {
	Stdio child.Stdio
	set   bool
}

// IsSet reports whether the stream was configured explicitly.
func (s StdioSpec) IsSet() bool { return s.set }

// decode interprets one manifest node. Called from Process.UnmarshalYAML
// rather than implementing yaml.Unmarshaler: the yaml decoder skips custom
// unmarshalers for null nodes, and an explicit null must select the null
// device instead of reading as unset.
func (s *StdioSpec) decode(value *yaml.Node) error {
	s.set = true
	switch value.Kind {
	case yaml.ScalarNode:
		if value.Tag == "!!null" {
			s.Stdio = child.Null()
			return nil
		}
		parsed, err := child.ParseStdio(value.Value)
		if err != nil {
			return err
		}
		if parsed.Path() != "" {
			return fmt.Errorf("file stdio must use mapping form {file: PATH}, got %q", value.Value)
		}
		s.Stdio = parsed
		return nil
	case yaml.MappingNode:
		var spec struct {
			File string `yaml:"file"`
		}
		if err := value.Decode(&spec); err != nil {
			return err
		}
		if spec.File == "" {
			return fmt.Errorf("file stdio requires a path")
		}
		s.Stdio = child.File(spec.File)
		return nil
	default:
		return fmt.Errorf("invalid stdio configuration at line %d", value.Line)
	}
}

// Process describes one managed child in a procfile.
type Process struct {
	Command     []string
	Env         map[string]string
	Workdir     string
	Stdin       StdioSpec
	Stdout      StdioSpec
	Stderr      StdioSpec
	StopSignal  string
	StopTimeout Duration
}

// UnmarshalYAML walks the mapping by hand so stream fields see their raw
// nodes, null included, while unknown keys still fail the load.
func (p *Process) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: process must be a mapping", value.Line)
	}
	for i := 0; i < len(value.Content); i += 2 {
		key, val := value.Content[i], value.Content[i+1]
		var err error
		switch key.Value {
		case "command":
			err = val.Decode(&p.Command)
		case "env":
			err = val.Decode(&p.Env)
		case "workdir":
			err = val.Decode(&p.Workdir)
		case "stdin":
			err = p.Stdin.decode(val)
		case "stdout":
			err = p.Stdout.decode(val)
		case "stderr":
			err = p.Stderr.decode(val)
		case "stopSignal":
			err = val.Decode(&p.StopSignal)
		case "stopTimeout":
			err = val.Decode(&p.StopTimeout)
		default:
			return fmt.Errorf("line %d: field %s not found in process", key.Line, key.Value)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// SpawnOptions translates the manifest entry into engine options.
func (p *Process) SpawnOptions() child.Options {
	return child.Options{
		Stdin:  p.Stdin.Stdio,
		Stdout: p.Stdout.Stdio,
		Stderr: p.Stderr.Stdio,
		Env:    p.Env,
		Dir:    p.Workdir,
	}
}

// Procfile mirrors the procfile document structure.
type Procfile struct {
	Workdir   string              `yaml:"workdir"`
	Processes map[string]*Process `yaml:"processes"`
}
