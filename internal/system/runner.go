package system

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"
)

// Mode selects how a child stdio stream is wired.
type Mode string

const (
	ModePipe    Mode = "pipe"
	ModeInherit Mode = "inherit"
	ModeIgnore  Mode = "ignore"
)

var (
	// ErrNoShell is returned when a request carries no shell to run the command with.
	ErrNoShell = errors.New("no shell is available")
	// ErrNoPID is returned when signalling a process without a pid.
	ErrNoPID = errors.New("the process pid is undefined")
)

// Request describes a single command invocation.
type Request struct {
	ID         string
	Command    string
	Shell      []string
	Dir        string
	Env        []string
	Stdin      io.Reader
	Stdio      [3]Mode
	Detached   bool
	KillSignal syscall.Signal
	Store      *Store
}

// Exit is the termination status of a child.
type Exit struct {
	Code   int
	Signal string
}

// Child is a started process whose piped streams can be consumed.
type Child interface {
	Pid() int
	Stdin() io.WriteCloser
	Stdout() io.Reader
	Stderr() io.Reader
	Wait() (Exit, error)
}

// Spawner starts child processes.
type Spawner interface {
	Spawn(ctx context.Context, req Request) (Child, error)
}

// Listener receives lifecycle events of one invocation. Start always
// precedes chunks and End always follows the last chunk.
type Listener struct {
	OnStart func(pid int)
	OnChunk func(Chunk)
	OnEnd   func(Result)
}

// Result is the outcome of an invocation.
type Result struct {
	Code     int
	Signal   string
	Err      error
	Duration time.Duration
	Store    *Store
}

// Run tracks one invocation started by Exec or ExecSync.
type Run struct {
	mu     sync.Mutex
	store  *Store
	pid    int
	done   chan struct{}
	result Result
}

// Pid returns the child pid, or zero when the spawn failed.
func (r *Run) Pid() int { return r.pid }

// Store returns the chunk store the invocation writes to.
func (r *Run) Store() *Store { return r.store }

// Done is closed once the result is available.
func (r *Run) Done() <-chan struct{} { return r.done }

// Result blocks until the invocation ends.
func (r *Run) Result() Result {
	<-r.done
	return r.result
}

// OSSpawner is the default Spawner backed by os/exec.
type OSSpawner struct{}

// NewOSSpawner allocates a ready-to-use OSSpawner.
func NewOSSpawner() *OSSpawner {
	return &OSSpawner{}
}

// Spawn starts the request's command through its shell.
func (s *OSSpawner) Spawn(_ context.Context, req Request) (Child, error) {
	if len(req.Shell) == 0 || req.Shell[0] == "" {
		return nil, ErrNoShell
	}
	argv := ShellArgs(req.Shell, req.Command)
	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Dir = req.Dir
	cmd.Env = req.Env
	setProcAttr(cmd, req.Detached)

	child := &osChild{cmd: cmd}
	var err error
	switch req.Stdio[0] {
	case ModePipe:
		if child.stdin, err = cmd.StdinPipe(); err != nil {
			return nil, fmt.Errorf("stdin pipe: %w", err)
		}
	case ModeInherit:
		cmd.Stdin = os.Stdin
	}
	switch req.Stdio[1] {
	case ModePipe:
		if child.stdout, err = cmd.StdoutPipe(); err != nil {
			return nil, fmt.Errorf("stdout pipe: %w", err)
		}
	case ModeInherit:
		cmd.Stdout = os.Stdout
	}
	switch req.Stdio[2] {
	case ModePipe:
		if child.stderr, err = cmd.StderrPipe(); err != nil {
			return nil, fmt.Errorf("stderr pipe: %w", err)
		}
	case ModeInherit:
		cmd.Stderr = os.Stderr
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("spawn %q: %w", buildCommandString(argv[0], argv[1:]), err)
	}
	return child, nil
}

type osChild struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout io.Reader
	stderr io.Reader
}

func (c *osChild) Pid() int {
	if c.cmd.Process == nil {
		return 0
	}
	return c.cmd.Process.Pid
}

func (c *osChild) Stdin() io.WriteCloser { return c.stdin }
func (c *osChild) Stdout() io.Reader     { return c.stdout }
func (c *osChild) Stderr() io.Reader     { return c.stderr }

func (c *osChild) Wait() (Exit, error) {
	err := c.cmd.Wait()
	exit := exitFromState(c.cmd.ProcessState)
	var exitErr *exec.ExitError
	if err != nil && !errors.As(err, &exitErr) {
		return exit, err
	}
	return exit, nil
}

func exitFromState(state *os.ProcessState) Exit {
	if state == nil {
		return Exit{Code: -1}
	}
	exit := Exit{Code: state.ExitCode()}
	if ws, ok := state.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
		exit.Signal = SignalName(ws.Signal())
	}
	return exit
}

// Exec spawns the request and supervises it in the background. The start
// event fires before Exec returns; chunk and end events follow from
// supervising goroutines.
func Exec(ctx context.Context, req Request, sp Spawner, l Listener) *Run {
	r := newRun(req)
	started := time.Now()

	if ctx.Err() != nil {
		go r.finish(l, Exit{Code: -1}, context.Cause(ctx), started)
		return r
	}
	child, err := sp.Spawn(ctx, req)
	if err != nil {
		go r.finish(l, Exit{Code: -1}, err, started)
		return r
	}

	r.pid = child.Pid()
	if l.OnStart != nil {
		l.OnStart(r.pid)
	}
	feedStdin(child.Stdin(), req.Stdin)
	stop := r.watch(ctx, req.KillSignal)

	var wg sync.WaitGroup
	for _, s := range []struct {
		stream Stream
		src    io.Reader
	}{{Stdout, child.Stdout()}, {Stderr, child.Stderr()}} {
		if s.src == nil {
			continue
		}
		wg.Add(1)
		go func(stream Stream, src io.Reader) {
			defer wg.Done()
			r.read(stream, src, l)
		}(s.stream, s.src)
	}

	go func() {
		wg.Wait()
		exit, werr := child.Wait()
		stop()
		if ctx.Err() != nil {
			werr = context.Cause(ctx)
		}
		r.finish(l, exit, werr, started)
	}()
	return r
}

// ExecSync runs the request to completion on the calling goroutine. Output
// is buffered, so start, chunk and end events fire after the child exits.
func ExecSync(ctx context.Context, req Request, sp Spawner, l Listener) *Run {
	r := newRun(req)
	started := time.Now()

	if ctx.Err() != nil {
		r.finish(l, Exit{Code: -1}, context.Cause(ctx), started)
		return r
	}
	child, err := sp.Spawn(ctx, req)
	if err != nil {
		r.finish(l, Exit{Code: -1}, err, started)
		return r
	}
	r.pid = child.Pid()
	feedStdin(child.Stdin(), req.Stdin)
	stop := r.watch(ctx, req.KillSignal)

	var stdout, stderr bytes.Buffer
	var wg sync.WaitGroup
	for _, s := range []struct {
		dst *bytes.Buffer
		src io.Reader
	}{{&stdout, child.Stdout()}, {&stderr, child.Stderr()}} {
		if s.src == nil {
			continue
		}
		wg.Add(1)
		go func(dst *bytes.Buffer, src io.Reader) {
			defer wg.Done()
			_, _ = io.Copy(dst, src)
		}(s.dst, s.src)
	}
	wg.Wait()
	exit, werr := child.Wait()
	stop()
	if ctx.Err() != nil {
		werr = context.Cause(ctx)
	}

	if l.OnStart != nil {
		l.OnStart(r.pid)
	}
	if stdout.Len() > 0 {
		r.emit(Stdout, stdout.Bytes(), l)
	}
	if stderr.Len() > 0 {
		r.emit(Stderr, stderr.Bytes(), l)
	}
	r.finish(l, exit, werr, started)
	return r
}

func newRun(req Request) *Run {
	store := req.Store
	if store == nil {
		store = NewStore()
	}
	return &Run{store: store, done: make(chan struct{})}
}

func (r *Run) read(stream Stream, src io.Reader, l Listener) {
	buf := make([]byte, 32*1024)
	for {
		n, err := src.Read(buf)
		if n > 0 {
			r.emit(stream, append([]byte(nil), buf[:n]...), l)
		}
		if err != nil {
			return
		}
	}
}

func (r *Run) emit(stream Stream, data []byte, l Listener) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := r.store.Push(stream, data)
	if l.OnChunk != nil {
		l.OnChunk(c)
	}
}

// watch kills the process tree when ctx is cancelled before the child exits.
func (r *Run) watch(ctx context.Context, sig syscall.Signal) func() {
	if sig == 0 {
		sig = syscall.SIGTERM
	}
	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			_ = KillTree(context.Background(), r.pid, sig)
		case <-done:
		}
	}()
	var once sync.Once
	return func() { once.Do(func() { close(done) }) }
}

func (r *Run) finish(l Listener, exit Exit, err error, started time.Time) {
	for _, stream := range []Stream{Stdout, Stderr} {
		if last, ok := r.store.lastByte(stream); ok && last != '\n' {
			r.emit(stream, []byte{'\n'}, l)
		}
	}
	r.result = Result{
		Code:     exit.Code,
		Signal:   exit.Signal,
		Err:      err,
		Duration: time.Since(started),
		Store:    r.store,
	}
	if l.OnEnd != nil {
		l.OnEnd(r.result)
	}
	close(r.done)
}

func feedStdin(dst io.WriteCloser, src io.Reader) {
	if dst == nil {
		return
	}
	if src == nil {
		_ = dst.Close()
		return
	}
	go func() {
		_, _ = io.Copy(dst, src)
		_ = dst.Close()
	}()
}

// ShellArgs builds the argv that hands command to the given shell.
func ShellArgs(shell []string, command string) []string {
	flag := "-c"
	switch strings.TrimSuffix(strings.ToLower(filepath.Base(shell[0])), ".exe") {
	case "powershell", "pwsh":
		flag = "-Command"
	case "cmd":
		flag = "/c"
	}
	argv := make([]string, 0, len(shell)+2)
	argv = append(argv, shell...)
	return append(argv, flag, command)
}

func buildCommandString(name string, args []string) string {
	var b strings.Builder
	b.WriteString(name)
	if len(args) == 0 {
		return b.String()
	}

	for _, arg := range args {
		b.WriteByte(' ')
		b.WriteString(arg)
	}
	return b.String()
}

// WithTimeout creates a cancellable context with the provided timeout.
func WithTimeout(parent context.Context, duration time.Duration) (context.Context, context.CancelFunc) {
	if duration <= 0 {
		return context.WithCancel(parent)
	}
	return context.WithTimeout(parent, duration)
}
