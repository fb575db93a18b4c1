package system

import (
	"context"
	"errors"
	"os/exec"
	"runtime"
	"strings"
	"syscall"
	"testing"
	"time"

	"shx/internal/testutil"
)

func TestBuildCommandString(t *testing.T) {
	got := buildCommandString("go", []string{"test", "./..."})
	if got != "go test ./..." {
		t.Fatalf("buildCommandString() = %q, want %q", got, "go test ./...")
	}
	if got := buildCommandString("go", nil); got != "go" {
		t.Fatalf("buildCommandString() with nil args = %q, want go", got)
	}
}

func TestWithTimeout(t *testing.T) {
	ctx := context.Background()
	derived, cancel := WithTimeout(ctx, 0)
	defer cancel()
	if _, ok := derived.Deadline(); ok {
		t.Fatalf("deadline should be absent when duration <= 0")
	}

	derived, cancel = WithTimeout(ctx, 10*time.Millisecond)
	defer cancel()
	if _, ok := derived.Deadline(); !ok {
		t.Fatalf("expected deadline for positive duration")
	}
}

func TestShellArgs(t *testing.T) {
	cases := []struct {
		shell []string
		want  string
	}{
		{[]string{"/bin/bash"}, "/bin/bash -c echo"},
		{[]string{"bash", "--noprofile"}, "bash --noprofile -c echo"},
		{[]string{"pwsh"}, "pwsh -Command echo"},
		{[]string{`C:\Windows\System32\cmd.exe`}, `C:\Windows\System32\cmd.exe /c echo`},
	}
	for _, tc := range cases {
		if got := strings.Join(ShellArgs(tc.shell, "echo"), " "); got != tc.want {
			t.Errorf("ShellArgs(%v) = %q, want %q", tc.shell, got, tc.want)
		}
	}
}

func pipeRequest(cmd string) Request {
	return Request{
		Command: cmd,
		Shell:   []string{"/bin/sh"},
		Stdio:   [3]Mode{ModePipe, ModePipe, ModePipe},
	}
}

func TestExecEventOrder(t *testing.T) {
	spawner := testutil.NewFakeSpawner(testutil.FakeResponse{
		Pid:    900_000_001,
		Stdout: []string{"a", "b"},
		Code:   0,
	})

	var events []string
	run := Exec(context.Background(), pipeRequest("whatever"), spawner, Listener{
		OnStart: func(pid int) { events = append(events, "start") },
		OnChunk: func(c Chunk) { events = append(events, c.Stream.String()+":"+string(c.Data)) },
		OnEnd:   func(Result) { events = append(events, "end") },
	})
	res := run.Result()

	want := []string{"start", "stdout:a", "stdout:b", "stdout:\n", "end"}
	if strings.Join(events, "|") != strings.Join(want, "|") {
		t.Fatalf("events = %q, want %q", events, want)
	}
	if got := string(res.Store.Bytes(Stdout)); got != "ab\n" {
		t.Fatalf("stdout = %q, want %q", got, "ab\n")
	}
	if got := string(res.Store.Bytes(Stdall)); got != "ab\n" {
		t.Fatalf("stdall = %q, want %q", got, "ab\n")
	}
	if res.Code != 0 || res.Err != nil {
		t.Fatalf("result = %+v, want clean exit", res)
	}
	if run.Pid() != 900_000_001 {
		t.Fatalf("Pid() = %d, want 900000001", run.Pid())
	}
	if reqs := spawner.Requests(); len(reqs) != 1 || reqs[0].Command != "whatever" {
		t.Fatalf("requests = %+v, want one request for whatever", reqs)
	}
}

func TestExecSpawnError(t *testing.T) {
	boom := errors.New("boom")
	spawner := testutil.NewFakeSpawner(testutil.FakeResponse{SpawnErr: boom})

	var started bool
	res := Exec(context.Background(), pipeRequest("x"), spawner, Listener{
		OnStart: func(int) { started = true },
	}).Result()
	if started {
		t.Fatalf("start fired for a failed spawn")
	}
	if !errors.Is(res.Err, boom) {
		t.Fatalf("Err = %v, want %v", res.Err, boom)
	}
	if res.Code != -1 {
		t.Fatalf("Code = %d, want -1", res.Code)
	}
}

func TestExecAbortCause(t *testing.T) {
	spawner := testutil.NewFakeSpawner(testutil.FakeResponse{Hold: true})
	ctx, cancel := context.WithCancelCause(context.Background())
	run := Exec(ctx, pipeRequest("sleep"), spawner, Listener{})

	reason := errors.New("stop it")
	cancel(reason)

	select {
	case <-run.Done():
	case <-time.After(2 * time.Second):
		t.Fatalf("run did not finish after abort")
	}
	if res := run.Result(); !errors.Is(res.Err, reason) {
		t.Fatalf("Err = %v, want abort reason", res.Err)
	}
}

func TestExecCancelledBeforeSpawn(t *testing.T) {
	spawner := testutil.NewFakeSpawner()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := Exec(ctx, pipeRequest("x"), spawner, Listener{}).Result()
	if !errors.Is(res.Err, context.Canceled) {
		t.Fatalf("Err = %v, want context.Canceled", res.Err)
	}
	if len(spawner.Requests()) != 0 {
		t.Fatalf("spawner called for cancelled context")
	}
}

func TestExecSyncBuffersEvents(t *testing.T) {
	spawner := testutil.NewFakeSpawner(testutil.FakeResponse{
		Stdout: []string{"one\n", "two"},
		Stderr: []string{"warn\n"},
		Code:   2,
	})

	var chunks []string
	run := ExecSync(context.Background(), pipeRequest("x"), spawner, Listener{
		OnChunk: func(c Chunk) { chunks = append(chunks, c.Stream.String()+":"+string(c.Data)) },
	})
	select {
	case <-run.Done():
	default:
		t.Fatalf("ExecSync returned before completion")
	}

	want := []string{"stdout:one\ntwo", "stderr:warn\n", "stdout:\n"}
	if strings.Join(chunks, "|") != strings.Join(want, "|") {
		t.Fatalf("chunks = %q, want %q", chunks, want)
	}
	if res := run.Result(); res.Code != 2 {
		t.Fatalf("Code = %d, want 2", res.Code)
	}
}

func TestExecStdinFeed(t *testing.T) {
	spawner := testutil.NewFakeSpawner()
	req := pipeRequest("cat")
	req.Stdin = strings.NewReader("payload")
	Exec(context.Background(), req, spawner, Listener{}).Result()

	deadline := time.Now().Add(time.Second)
	for spawner.Stdin(0) != "payload" && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if got := spawner.Stdin(0); got != "payload" {
		t.Fatalf("stdin = %q, want payload", got)
	}
}

func skipWithoutShell(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("requires a POSIX shell")
	}
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not found")
	}
}

func TestOSSpawnerExitStatus(t *testing.T) {
	skipWithoutShell(t)
	res := Exec(context.Background(), pipeRequest("echo out; echo err >&2; exit 3"), NewOSSpawner(), Listener{}).Result()
	if res.Err != nil {
		t.Fatalf("Err = %v", res.Err)
	}
	if res.Code != 3 {
		t.Fatalf("Code = %d, want 3", res.Code)
	}
	if got := string(res.Store.Bytes(Stdout)); got != "out\n" {
		t.Fatalf("stdout = %q, want out", got)
	}
	if got := string(res.Store.Bytes(Stderr)); got != "err\n" {
		t.Fatalf("stderr = %q, want err", got)
	}
}

func TestOSSpawnerMissingDir(t *testing.T) {
	skipWithoutShell(t)
	req := pipeRequest("true")
	req.Dir = "/definitely/not/here"
	res := Exec(context.Background(), req, NewOSSpawner(), Listener{}).Result()
	if res.Err == nil {
		t.Fatalf("expected spawn error for missing cwd")
	}
	errno, code, ok := Errno(res.Err)
	if !ok || errno != int(syscall.ENOENT) || code != "ENOENT" {
		t.Fatalf("Errno() = %d, %q, %v, want ENOENT", errno, code, ok)
	}
}

func TestOSSpawnerNoShell(t *testing.T) {
	_, err := NewOSSpawner().Spawn(context.Background(), Request{Command: "true"})
	if !errors.Is(err, ErrNoShell) {
		t.Fatalf("Spawn() error = %v, want ErrNoShell", err)
	}
}

func TestKillTreeTerminatesDescendants(t *testing.T) {
	skipWithoutShell(t)
	req := pipeRequest("sleep 30 & sleep 30 & wait")
	req.Detached = true

	started := make(chan int, 1)
	run := Exec(context.Background(), req, NewOSSpawner(), Listener{
		OnStart: func(pid int) { started <- pid },
	})
	pid := <-started

	var children []int
	deadline := time.Now().Add(2 * time.Second)
	for len(children) < 2 && time.Now().Before(deadline) {
		children, _ = Descendants(context.Background(), pid)
		time.Sleep(20 * time.Millisecond)
	}
	if len(children) < 2 {
		t.Fatalf("Descendants() = %v, want two sleepers", children)
	}

	if err := KillTree(context.Background(), pid, syscall.SIGKILL); err != nil {
		t.Fatalf("KillTree() error = %v", err)
	}
	res := run.Result()
	if res.Signal != "SIGKILL" {
		t.Fatalf("Signal = %q, want SIGKILL", res.Signal)
	}

	deadline = time.Now().Add(2 * time.Second)
	for _, child := range children {
		for Alive(context.Background(), child) && time.Now().Before(deadline) {
			time.Sleep(20 * time.Millisecond)
		}
		if Alive(context.Background(), child) {
			t.Fatalf("descendant %d still alive after KillTree", child)
		}
	}
}

func TestKillTreeWithoutPid(t *testing.T) {
	if err := KillTree(context.Background(), 0, syscall.SIGTERM); !errors.Is(err, ErrNoPID) {
		t.Fatalf("KillTree(0) error = %v, want ErrNoPID", err)
	}
}
