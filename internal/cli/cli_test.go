package cli

import (
	"bytes"
	"context"
	"io"
	"log"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/spf13/afero"
)

type testRunner struct {
	*Runner
	stdout *bytes.Buffer
	stderr *bytes.Buffer
	shell  []string
}

func newTestRunner(t *testing.T, stdin string) *testRunner {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("cli tests need a POSIX shell")
	}
	bash, err := exec.LookPath("bash")
	if err != nil {
		t.Skip("bash is not available")
	}
	tr := &testRunner{stdout: &bytes.Buffer{}, stderr: &bytes.Buffer{}}
	tr.Runner = &Runner{
		logger: log.New(io.Discard, "", 0),
		fs:     afero.NewMemMapFs(),
		stdin:  strings.NewReader(stdin),
		stdout: tr.stdout,
		stderr: tr.stderr,
	}
	tr.shell = []string{"--shell", bash, "--prefix", ""}
	return tr
}

func (tr *testRunner) run(t *testing.T, args ...string) int {
	t.Helper()
	code, err := tr.Run(context.Background(), append(append([]string(nil), tr.shell...), args...))
	if err != nil {
		t.Fatalf("Run(%q) unexpected error: %v", args, err)
	}
	return code
}

func TestRunEval(t *testing.T) {
	tr := newTestRunner(t, "")
	code := tr.run(t, "-e", "echo hi; echo oops >&2; exit 3")
	if code != 3 {
		t.Errorf("exit code = %d, want 3", code)
	}
	if got := tr.stdout.String(); got != "hi\n" {
		t.Errorf("stdout = %q, want %q", got, "hi\n")
	}
	if got := tr.stderr.String(); got != "oops\n" {
		t.Errorf("stderr = %q, want %q", got, "oops\n")
	}
}

func TestRunQuiet(t *testing.T) {
	tr := newTestRunner(t, "")
	tr.run(t, "--quiet", "-e", "echo hidden >&2")
	if got := tr.stderr.String(); got != "" {
		t.Errorf("stderr = %q, want nothing", got)
	}
}

func TestRunScriptWithArgs(t *testing.T) {
	tr := newTestRunner(t, "")
	if err := afero.WriteFile(tr.fs, "/deploy.sh", []byte(`echo "$1-$2"`), 0o755); err != nil {
		t.Fatalf("write script: %v", err)
	}
	if code := tr.run(t, "/deploy.sh", "a b", "c"); code != 0 {
		t.Fatalf("exit code = %d, want 0", code)
	}
	if got := tr.stdout.String(); got != "a b-c\n" {
		t.Errorf("stdout = %q, want %q", got, "a b-c\n")
	}
}

func TestRunMarkdown(t *testing.T) {
	tr := newTestRunner(t, "")
	doc := "# Steps\n\n```bash\necho first\n```\n\nSome prose.\n\n```sh\necho second\n```\n"
	if err := afero.WriteFile(tr.fs, "/README.md", []byte(doc), 0o644); err != nil {
		t.Fatalf("write doc: %v", err)
	}
	tr.run(t, "/README.md")
	if got := tr.stdout.String(); got != "first\nsecond\n" {
		t.Errorf("stdout = %q, want %q", got, "first\nsecond\n")
	}
}

func TestRunEvalMarkdownExt(t *testing.T) {
	tr := newTestRunner(t, "")
	tr.run(t, "--ext", ".md", "-e", "ignored\n```sh\necho kept\n```")
	if got := tr.stdout.String(); got != "kept\n" {
		t.Errorf("stdout = %q, want %q", got, "kept\n")
	}
}

func TestRunStdin(t *testing.T) {
	tr := newTestRunner(t, "echo from-stdin\n")
	tr.run(t)
	if got := tr.stdout.String(); got != "from-stdin\n" {
		t.Errorf("stdout = %q, want %q", got, "from-stdin\n")
	}
}

func TestRunCwd(t *testing.T) {
	tr := newTestRunner(t, "")
	dir, err := filepath.EvalSymlinks(t.TempDir())
	if err != nil {
		t.Fatalf("resolve temp dir: %v", err)
	}
	tr.run(t, "--cwd", dir, "-e", "pwd -P")
	if got := strings.TrimSpace(tr.stdout.String()); got != dir {
		t.Errorf("pwd = %q, want %q", got, dir)
	}
}

func TestRunVersion(t *testing.T) {
	tr := newTestRunner(t, "")
	if code := tr.run(t, "--version"); code != 0 {
		t.Fatalf("exit code = %d, want 0", code)
	}
	if got := tr.stdout.String(); got != Version+"\n" {
		t.Errorf("version output = %q, want %q", got, Version+"\n")
	}
}

func TestRunErrors(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{name: "missing script", args: []string{"/missing.sh"}},
		{name: "bad timeout", args: []string{"--timeout", "soon", "-e", "true"}},
		{name: "unknown flag", args: []string{"--nope"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := newTestRunner(t, "")
			code, err := tr.Run(context.Background(), append(append([]string(nil), tr.shell...), tt.args...))
			if err == nil {
				t.Fatalf("Run(%q) expected error", tt.args)
			}
			if code != 1 {
				t.Errorf("exit code = %d, want 1", code)
			}
		})
	}
}
