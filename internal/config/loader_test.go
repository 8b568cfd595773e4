package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeProcfile(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "procfile.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write procfile: %v", err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeProcfile(t, `
processes:
  web:
    command: ["python", "-m", "http.server"]
`)

	doc, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	web := doc.Processes["web"]
	if web == nil {
		t.Fatal("web process missing")
	}
	if got := web.Stdin.Stdio.String(); got != "null" {
		t.Fatalf("stdin default = %s, want null", got)
	}
	if !web.Stdout.Stdio.IsPipe() || !web.Stderr.Stdio.IsPipe() {
		t.Fatalf("output defaults = %s/%s, want pipes", web.Stdout.Stdio, web.Stderr.Stdio)
	}
	if web.StopSignal != "TERM" {
		t.Fatalf("stopSignal default = %q", web.StopSignal)
	}
	if web.StopTimeout.Duration != DefaultStopTimeout {
		t.Fatalf("stopTimeout default = %v", web.StopTimeout.Duration)
	}
	if web.Workdir != filepath.Dir(path) {
		t.Fatalf("workdir = %q, want manifest dir %q", web.Workdir, filepath.Dir(path))
	}
}

func TestLoadStdioForms(t *testing.T) {
	path := writeProcfile(t, `
processes:
  worker:
    command: ["worker"]
    stdin: inherit
    stdout:
      file: logs/out.log
    stderr: null
`)

	doc, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	worker := doc.Processes["worker"]
	if got := worker.Stdin.Stdio.String(); got != "inherit" {
		t.Fatalf("stdin = %s", got)
	}
	if got := worker.Stdout.Stdio.Path(); got != "logs/out.log" {
		t.Fatalf("stdout path = %q", got)
	}
	if got := worker.Stderr.Stdio.String(); got != "null" {
		t.Fatalf("stderr = %s", got)
	}
}

func TestLoadExplicitNullStreams(t *testing.T) {
	// An explicit null selects the null device; it must not read as an
	// unset field and pick up the pipe default.
	path := writeProcfile(t, `
processes:
  quiet:
    command: ["quiet"]
    stdin: null
    stdout: ~
    stderr: null
`)

	doc, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	quiet := doc.Processes["quiet"]
	for _, spec := range []StdioSpec{quiet.Stdin, quiet.Stdout, quiet.Stderr} {
		if !spec.IsSet() {
			t.Fatal("explicit null must mark the stream as configured")
		}
		if got := spec.Stdio.String(); got != "null" {
			t.Fatalf("stream = %s, want null", got)
		}
	}
}

func TestLoadExpandsEnvAndResolvesWorkdir(t *testing.T) {
	t.Setenv("SUBPROC_CONF_TEST", "expanded")
	path := writeProcfile(t, `
workdir: services
processes:
  api:
    command: ["api"]
    workdir: inner
    env:
      VALUE: $SUBPROC_CONF_TEST
    stopTimeout: 250ms
`)

	doc, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	api := doc.Processes["api"]
	if api.Env["VALUE"] != "expanded" {
		t.Fatalf("env = %q", api.Env["VALUE"])
	}
	want := filepath.Join(filepath.Dir(path), "services", "inner")
	if api.Workdir != want {
		t.Fatalf("workdir = %q, want %q", api.Workdir, want)
	}
	if api.StopTimeout.Duration != 250*time.Millisecond {
		t.Fatalf("stopTimeout = %v", api.StopTimeout.Duration)
	}
}

func TestLoadRejectsInvalidDocuments(t *testing.T) {
	cases := []struct {
		name    string
		content string
		wantErr string
	}{
		{
			name:    "no processes",
			content: "processes: {}\n",
			wantErr: "no processes defined",
		},
		{
			name: "missing command",
			content: `
processes:
  broken: {}
`,
			wantErr: "command is required",
		},
		{
			name: "unknown field",
			content: `
processes:
  web:
    command: ["x"]
    restart: always
`,
			wantErr: "field restart not found",
		},
		{
			name: "bad stop signal",
			content: `
processes:
  web:
    command: ["x"]
    stopSignal: MEGAKILL
`,
			wantErr: "unknown signal",
		},
		{
			name: "bad stdio mode",
			content: `
processes:
  web:
    command: ["x"]
    stdout: socket
`,
			wantErr: "invalid stdio mode",
		},
		{
			name: "file stdio without path",
			content: `
processes:
  web:
    command: ["x"]
    stdout: {file: ""}
`,
			wantErr: "requires a path",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			path := writeProcfile(t, tc.content)
			_, err := Load(path)
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tc.wantErr) {
				t.Fatalf("error %q does not contain %q", err, tc.wantErr)
			}
		})
	}
}

func TestNamesAreSorted(t *testing.T) {
	path := writeProcfile(t, `
processes:
  zeta:
    command: ["z"]
  alpha:
    command: ["a"]
  mid:
    command: ["m"]
`)

	doc, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	got := doc.Names()
	want := []string{"alpha", "mid", "zeta"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("names = %v, want %v", got, want)
		}
	}
}
