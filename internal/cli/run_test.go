//go:build !windows

package cli

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func executeRoot(t *testing.T, ctx context.Context, args ...string) (string, string, error) {
	t.Helper()
	root := NewRootCmd()
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(args)
	err := root.ExecuteContext(ctx)
	return out.String(), errOut.String(), err
}

func TestRunMirrorsPipedOutput(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	out, errOut, err := executeRoot(t, ctx,
		"run", "--stdout", "pipe", "--stderr", "pipe", "--",
		"/bin/sh", "-c", "echo visible; echo hidden 1>&2")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if !strings.Contains(out, "visible\n") {
		t.Fatalf("stdout = %q", out)
	}
	if !strings.Contains(errOut, "hidden\n") {
		t.Fatalf("stderr = %q", errOut)
	}
}

func TestRunPropagatesExitCode(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, _, err := executeRoot(t, ctx, "run", "--stdout", "null", "--", "/bin/sh", "-c", "exit 3")
	var exit *exitCodeError
	if !errors.As(err, &exit) {
		t.Fatalf("expected exit code error, got %v", err)
	}
	if exit.code != 3 {
		t.Fatalf("exit code = %d, want 3", exit.code)
	}
}

func TestRunAppliesEnvAndDir(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	dir := t.TempDir()
	resolved, err := filepath.EvalSymlinks(dir)
	if err != nil {
		t.Fatalf("resolve dir: %v", err)
	}

	out, _, err := executeRoot(t, ctx,
		"run", "--stdout", "pipe", "-e", "SUBPROC_CLI_TEST=set", "-C", dir, "--",
		"/bin/sh", "-c", "echo $SUBPROC_CLI_TEST; pwd")
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	if len(lines) != 2 || lines[0] != "set" {
		t.Fatalf("output = %q", out)
	}
	pwd, err := filepath.EvalSymlinks(lines[1])
	if err != nil {
		t.Fatalf("resolve pwd: %v", err)
	}
	if pwd != resolved {
		t.Fatalf("child pwd = %q, want %q", pwd, resolved)
	}
}

func TestRunRejectsBadFlags(t *testing.T) {
	ctx := context.Background()

	if _, _, err := executeRoot(t, ctx, "run", "--stdout", "socket", "--", "true"); err == nil {
		t.Fatal("expected error for invalid stdio mode")
	}
	if _, _, err := executeRoot(t, ctx, "run", "-e", "NOEQUALS", "--", "true"); err == nil {
		t.Fatal("expected error for malformed env pair")
	}
	if _, _, err := executeRoot(t, ctx, "run", "--stop-signal", "MEGA", "--", "true"); err == nil {
		t.Fatal("expected error for unknown stop signal")
	}
}

func TestRunFileStdout(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	path := filepath.Join(t.TempDir(), "out.log")
	_, _, err := executeRoot(t, ctx,
		"run", "--stdout", "file:"+path, "--", "/bin/sh", "-c", "echo logged")
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if string(data) != "logged\n" {
		t.Fatalf("log contains %q", data)
	}
}

func TestUpRunsProcfile(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	dir := t.TempDir()
	manifest := filepath.Join(dir, "procfile.yaml")
	content := `
processes:
  one:
    command: ["/bin/sh", "-c", "echo from-one"]
  two:
    command: ["/bin/sh", "-c", "echo from-two"]
`
	if err := os.WriteFile(manifest, []byte(content), 0o644); err != nil {
		t.Fatalf("write procfile: %v", err)
	}

	out, _, err := executeRoot(t, ctx, "up", "-f", manifest)
	if err != nil {
		t.Fatalf("up: %v", err)
	}
	if !strings.Contains(out, "[one] from-one") || !strings.Contains(out, "[two] from-two") {
		t.Fatalf("output = %q", out)
	}
}

func TestUpReportsFailures(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	dir := t.TempDir()
	manifest := filepath.Join(dir, "procfile.yaml")
	content := `
processes:
  bad:
    command: ["/bin/sh", "-c", "exit 9"]
`
	if err := os.WriteFile(manifest, []byte(content), 0o644); err != nil {
		t.Fatalf("write procfile: %v", err)
	}

	_, _, err := executeRoot(t, ctx, "up", "-f", manifest)
	if err == nil || !strings.Contains(err.Error(), "exited unsuccessfully") {
		t.Fatalf("expected failure report, got %v", err)
	}
}
