package shx

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"iter"
	"os"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/anmitsu/go-shlex"
	"github.com/rs/xid"

	"shx/internal/system"
)

// Stage is a step of the process lifecycle.
type Stage string

const (
	StageInitial   Stage = "initial"
	StageHalted    Stage = "halted"
	StageRunning   Stage = "running"
	StageFulfilled Stage = "fulfilled"
	StageRejected  Stage = "rejected"
)

// Process is a command that is about to run, running or finished. Build
// one with a Shell; the zero value reports ErrDisarmed.
//
// A process starts at its first consuming call (Wait, ExitCode, Then,
// Catch, Stdin, Stdout, Stderr, Lines, Pipe or Run), so setters chained
// right after Cmd always apply. A process built with WithHalt starts only
// through Run.
type Process struct {
	armed bool
	id    string
	shell *Shell
	tpl   Template
	from  string
	store *system.Store
	bus   *bus
	done  chan struct{}

	ac     *AbortController
	ownsAC bool

	mu       sync.Mutex
	opts     Options
	stage    Stage
	spawned  bool
	cmd      string
	pid      int
	piped    bool
	upstream *Process
	stdioErr error
	timer    *time.Timer
	stdinR   *io.PipeReader
	stdinW   *io.PipeWriter
	brk      *Output
	output   *Output
	err      error
	onStart  []func()
	onSettle []func(*Output, error)
}

var closedDone = func() chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}()

func newProcess(s *Shell, opts Options, t Template, from string) *Process {
	p := &Process{
		armed: true,
		id:    xid.New().String(),
		shell: s,
		tpl:   t,
		from:  from,
		store: system.NewStore(),
		done:  make(chan struct{}),
		opts:  opts,
		stage: StageInitial,
	}
	p.bus = newBus(p.store)

	parent := opts.abortParent
	if parent == nil {
		parent = s.ctx
	}
	if opts.AbortController != nil {
		p.ac = opts.AbortController
	} else {
		p.ac = NewAbortController(parent)
		p.ownsAC = true
	}

	if t.pending() {
		if err := checkTemplate(opts, t); err != nil {
			p.reject(err)
			return p
		}
	} else {
		cmd, err := buildCommand(context.Background(), opts, t)
		if err != nil {
			p.reject(err)
			return p
		}
		p.cmd = cmd
	}
	if opts.Halt {
		p.stage = StageHalted
	}
	return p
}

// Run starts a halted process. On any other process it is the same as
// starting it by consumption.
func (p *Process) Run() *Process {
	if !p.armed {
		return p
	}
	p.mu.Lock()
	if p.stage != StageInitial && p.stage != StageHalted {
		p.mu.Unlock()
		return p
	}
	p.stage = StageRunning
	inline, upstream := p.opts.Sync, p.upstream
	p.mu.Unlock()
	p.launch(inline, upstream)
	return p
}

func (p *Process) ensureStarted() {
	p.mu.Lock()
	if p.stage != StageInitial {
		p.mu.Unlock()
		return
	}
	p.stage = StageRunning
	inline, upstream := p.opts.Sync, p.upstream
	p.mu.Unlock()
	p.launch(inline, upstream)
}

// launch spawns the child, first starting a halted source piped into it.
func (p *Process) launch(inline bool, upstream *Process) {
	if upstream != nil {
		upstream.Run()
	}
	if inline {
		p.exec()
		return
	}
	go p.exec()
}

func (p *Process) exec() {
	ctx := p.ac.Context()
	p.mu.Lock()
	cmd, opts := p.cmd, p.opts
	p.mu.Unlock()

	if p.tpl.pending() {
		built, err := buildCommand(ctx, opts, p.tpl)
		if err != nil {
			p.reject(err)
			return
		}
		p.mu.Lock()
		p.cmd = built
		p.mu.Unlock()
		cmd = built
	}

	input, err := inputReader(opts.Input)
	if err != nil {
		p.reject(err)
		return
	}
	req, brk, err := p.prepare(cmd, input)
	if err != nil {
		p.reject(err)
		return
	}
	if brk != nil {
		p.settle(system.Result{Code: brk.ExitCode(), Signal: brk.Signal(), Err: brk.Err()})
		return
	}

	opts = p.options()
	opts.log(LogEntry{
		Kind:    LogCmd,
		ID:      p.id,
		Cmd:     cmd,
		Cwd:     opts.Cwd,
		Verbose: opts.Verbose && !opts.Quiet,
	})

	sp := opts.Spawner
	if sp == nil {
		sp = system.NewOSSpawner()
	}
	l := system.Listener{
		OnStart: p.handleStart,
		OnChunk: p.handleChunk,
		OnEnd:   p.settle,
	}
	if opts.Sync {
		if opts.Timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = system.WithTimeout(ctx, opts.Timeout)
			defer cancel()
			sig, err := system.ParseSignal(opts.TimeoutSignal)
			if err != nil {
				p.reject(err)
				return
			}
			req.KillSignal = sig
		}
		system.ExecSync(ctx, req, sp, l)
		return
	}
	system.Exec(ctx, req, sp, l)
}

// prepare builds the spawn request and marks the process as spawned, so
// stdin can no longer be claimed. A pending break is returned instead.
func (p *Process) prepare(cmd string, input io.Reader) (system.Request, *Output, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.brk != nil {
		return system.Request{}, p.brk, nil
	}
	opts := p.opts
	shell, err := shellArgv(opts.Shell)
	if err != nil {
		return system.Request{}, nil, err
	}
	sig, err := system.ParseSignal(opts.KillSignal)
	if err != nil {
		return system.Request{}, nil, err
	}
	req := system.Request{
		ID:         p.id,
		Command:    opts.Prefix + cmd + opts.Postfix,
		Shell:      shell,
		Dir:        opts.Cwd,
		Env:        opts.environ(),
		Stdio:      [3]system.Mode(opts.Stdio),
		Detached:   opts.Detached,
		KillSignal: sig,
		Store:      p.store,
	}
	switch {
	case p.stdinR != nil:
		req.Stdin = p.stdinR
		req.Stdio[0] = system.ModePipe
	case input != nil:
		req.Stdin = input
		req.Stdio[0] = system.ModePipe
	}
	p.spawned = true
	return req, nil, nil
}

func shellArgv(shell string) ([]string, error) {
	if shell == "" {
		return nil, ErrNoShell
	}
	if _, err := os.Stat(shell); err == nil {
		return []string{shell}, nil
	}
	argv, err := shlex.Split(shell, runtime.GOOS != "windows")
	if err != nil {
		return nil, fmt.Errorf("parse shell %q: %w", shell, err)
	}
	if len(argv) == 0 {
		return nil, ErrNoShell
	}
	return argv, nil
}

func inputReader(input any) (io.Reader, error) {
	switch in := input.(type) {
	case nil:
		return nil, nil
	case string:
		return strings.NewReader(in), nil
	case []byte:
		return bytes.NewReader(in), nil
	case *Output:
		return strings.NewReader(in.Stdout()), nil
	case *Process:
		out, err := in.Wait()
		if err != nil {
			return nil, err
		}
		return strings.NewReader(out.Stdout()), nil
	case io.Reader:
		return in, nil
	default:
		return nil, fmt.Errorf("unsupported input type %T", input)
	}
}

func (p *Process) handleStart(pid int) {
	p.mu.Lock()
	p.pid = pid
	hooks := p.onStart
	p.onStart = nil
	brk := p.brk
	if p.opts.Timeout > 0 && !p.opts.Sync {
		p.armTimer(p.opts.Timeout, p.opts.TimeoutSignal)
	}
	p.mu.Unlock()

	for _, fn := range hooks {
		fn()
	}
	if brk != nil {
		go p.killBroken(brk)
	}
}

func (p *Process) handleChunk(c system.Chunk) {
	p.mu.Lock()
	quiet, verbose, piped := p.opts.Quiet, p.opts.Verbose, p.piped
	opts := p.opts
	p.mu.Unlock()

	switch c.Stream {
	case system.Stdout:
		if !piped {
			opts.log(LogEntry{Kind: LogStdout, ID: p.id, Data: c.Data, Verbose: verbose && !quiet})
		}
	case system.Stderr:
		opts.log(LogEntry{Kind: LogStderr, ID: p.id, Data: c.Data, Verbose: !quiet})
	}
	p.bus.publish(c)
}

// armTimer must be called with p.mu held.
func (p *Process) armTimer(d time.Duration, signal string) {
	if p.timer != nil {
		p.timer.Stop()
	}
	p.timer = time.AfterFunc(d, func() { _ = p.Kill(signal) })
}

func (p *Process) settle(res system.Result) {
	if res.Store == nil {
		res.Store = p.store
	}
	out := newOutput(res, p.from)
	p.mu.Lock()
	brk, nothrow := p.brk, p.opts.Nothrow
	p.mu.Unlock()

	var err error
	switch {
	case nothrow:
	case brk != nil:
		err = brk
	case !out.OK():
		err = out
	}
	p.finalize(out, err)
}

// reject settles the process with a build or usage failure, regardless of
// nothrow.
func (p *Process) reject(cause error) {
	out := newOutput(system.Result{Code: -1, Err: cause, Store: p.store}, p.from)
	p.finalize(out, out)
}

func (p *Process) finalize(out *Output, err error) {
	p.mu.Lock()
	if p.output != nil {
		p.mu.Unlock()
		return
	}
	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
	p.output, p.err = out, err
	p.stage = StageFulfilled
	if err != nil {
		p.stage = StageRejected
	}
	hooks := p.onSettle
	p.onSettle = nil
	p.onStart = nil
	opts, stdinR := p.opts, p.stdinR
	p.mu.Unlock()

	p.bus.end()
	if stdinR != nil {
		_ = stdinR.CloseWithError(ErrClosedStream)
	}
	opts.log(LogEntry{
		Kind:     LogEnd,
		ID:       p.id,
		ExitCode: out.ExitCode(),
		Signal:   out.Signal(),
		Duration: out.Duration(),
		Err:      out.Err(),
		Verbose:  opts.Verbose && !opts.Quiet,
	})
	for _, fn := range hooks {
		fn(out, err)
	}
	close(p.done)
}

func (p *Process) whenSettled(fn func(*Output, error)) {
	p.mu.Lock()
	if p.output == nil {
		p.onSettle = append(p.onSettle, fn)
		p.mu.Unlock()
		return
	}
	out, err := p.output, p.err
	p.mu.Unlock()
	fn(out, err)
}

// whenStarted runs fn once the child has a pid, or right away if it does.
// It reports false when the process settled without starting.
func (p *Process) whenStarted(fn func()) bool {
	p.mu.Lock()
	if p.output != nil && p.pid == 0 {
		p.mu.Unlock()
		return false
	}
	if p.pid == 0 {
		p.onStart = append(p.onStart, fn)
		p.mu.Unlock()
		return true
	}
	p.mu.Unlock()
	fn()
	return true
}

// breakWith aborts the process because its upstream failed with out.
func (p *Process) breakWith(out *Output) {
	p.mu.Lock()
	if p.output != nil {
		p.mu.Unlock()
		return
	}
	p.brk = out
	stage, pid := p.stage, p.pid
	p.mu.Unlock()

	switch {
	case stage == StageInitial || stage == StageHalted:
		p.settle(system.Result{Code: out.ExitCode(), Signal: out.Signal(), Err: out.Err()})
	case pid != 0:
		go p.killBroken(out)
	}
}

func (p *Process) killBroken(brk *Output) {
	sig := brk.Signal()
	if sig == "" {
		sig = p.options().KillSignal
	}
	_ = p.Kill(sig)
}

func (p *Process) options() Options {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.opts
}

// Wait starts the process if needed and blocks until it settles. A
// failure is reported as an *Output error unless nothrow is set.
func (p *Process) Wait() (*Output, error) {
	if !p.armed {
		return nil, ErrDisarmed
	}
	p.mu.Lock()
	if p.output != nil {
		out, err := p.output, p.err
		p.mu.Unlock()
		return out, err
	}
	if p.stage == StageHalted {
		p.mu.Unlock()
		return nil, ErrHalted
	}
	p.mu.Unlock()

	p.ensureStarted()
	<-p.done
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.output, p.err
}

// ExitCode waits for the process and returns its exit code, -1 when there
// is none. It never fails.
func (p *Process) ExitCode() int {
	out, _ := p.Wait()
	if out == nil {
		return -1
	}
	return out.ExitCode()
}

// Then registers fn to run with the output once the process fulfils.
func (p *Process) Then(fn func(*Output)) *Process {
	if !p.armed || fn == nil {
		return p
	}
	p.whenSettled(func(out *Output, err error) {
		if err == nil {
			fn(out)
		}
	})
	p.ensureStarted()
	return p
}

// Catch registers fn to run with the error once the process rejects.
func (p *Process) Catch(fn func(error)) *Process {
	if !p.armed || fn == nil {
		return p
	}
	p.whenSettled(func(_ *Output, err error) {
		if err != nil {
			fn(err)
		}
	})
	p.ensureStarted()
	return p
}

// Nothrow makes a failing process fulfil with its output.
func (p *Process) Nothrow(v bool) *Process {
	return p.configure(func(o *Options) { o.Nothrow = v })
}

// Quiet suppresses the echo of the process output.
func (p *Process) Quiet(v bool) *Process {
	return p.configure(func(o *Options) { o.Quiet = v })
}

// Verbose echoes the command and its stdout.
func (p *Process) Verbose(v bool) *Process {
	return p.configure(func(o *Options) { o.Verbose = v })
}

func (p *Process) configure(fn func(*Options)) *Process {
	if !p.armed {
		return p
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	fn(&p.opts)
	return p
}

// Timeout kills the process with signal (SIGTERM by default) when it runs
// longer than d. Calling it again while running replaces the timer, and a
// zero d disarms it; after the process settled it does nothing.
func (p *Process) Timeout(d time.Duration, signal ...string) *Process {
	if !p.armed {
		return p
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.output != nil {
		return p
	}
	p.opts.Timeout = d
	if len(signal) > 0 && signal[0] != "" {
		p.opts.TimeoutSignal = signal[0]
	}
	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
	if p.pid != 0 && d > 0 {
		p.armTimer(d, p.opts.TimeoutSignal)
	}
	return p
}

// Stdio sets the stream modes. It must be called before the process
// starts; a late call is recorded in StdioErr.
func (p *Process) Stdio(stdin, stdout, stderr IO) *Process {
	if !p.armed {
		return p
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stage != StageInitial && p.stage != StageHalted {
		p.stdioErr = ErrAlreadyStarted
		return p
	}
	p.opts.Stdio = Stdio{stdin, stdout, stderr}
	return p
}

// StdioErr reports a Stdio call made after the process started.
func (p *Process) StdioErr() error {
	if !p.armed {
		return ErrDisarmed
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stdioErr
}

// Kill signals the process and all of its descendants. The signal defaults
// to the kill signal of the options.
func (p *Process) Kill(signal ...string) error {
	if !p.armed {
		return ErrDisarmed
	}
	p.mu.Lock()
	settled, spawned, pid := p.output != nil, p.spawned, p.pid
	opts := p.opts
	p.mu.Unlock()

	switch {
	case settled:
		return ErrSettled
	case !spawned:
		return ErrNoProcess
	case pid == 0:
		return ErrNoPID
	}

	name := opts.KillSignal
	if len(signal) > 0 && signal[0] != "" {
		name = signal[0]
	}
	sig, err := system.ParseSignal(name)
	if err != nil {
		return err
	}
	opts.log(LogEntry{
		Kind:    LogKill,
		ID:      p.id,
		Pid:     pid,
		Signal:  system.SignalName(sig),
		Verbose: opts.Verbose && !opts.Quiet,
	})
	return system.KillTree(context.Background(), pid, sig)
}

// TreeStats is a resource sample of a process tree.
type TreeStats = system.TreeStats

// Usage samples the CPU and memory of the child and its descendants.
func (p *Process) Usage(ctx context.Context) (TreeStats, error) {
	if !p.armed {
		return TreeStats{}, ErrDisarmed
	}
	p.mu.Lock()
	settled, spawned, pid := p.output != nil, p.spawned, p.pid
	p.mu.Unlock()

	switch {
	case settled:
		return TreeStats{}, ErrSettled
	case !spawned:
		return TreeStats{}, ErrNoProcess
	case pid == 0:
		return TreeStats{}, ErrNoPID
	}
	return system.Snapshot(ctx, pid)
}

// Abort cancels the process through its own abort controller; the reason
// becomes the error of the output.
func (p *Process) Abort(reason error) error {
	if !p.armed {
		return ErrDisarmed
	}
	p.mu.Lock()
	settled, spawned := p.output != nil, p.spawned
	p.mu.Unlock()

	switch {
	case settled:
		return ErrSettled
	case !p.ownsAC:
		return ErrForeignSignal
	case !spawned:
		return ErrNoProcessAbort
	}
	p.ac.Abort(reason)
	return nil
}

// Stdin returns the writer feeding the child's stdin. Closing it sends EOF.
// Once the child was spawned without a claimed stdin, writes fail with
// ErrClosedStream.
func (p *Process) Stdin() io.WriteCloser {
	if !p.armed {
		return errWriter{ErrDisarmed}
	}
	w, ok := p.claimStdin()
	p.ensureStarted()
	if !ok {
		return errWriter{ErrClosedStream}
	}
	return w
}

func (p *Process) claimStdin() (*io.PipeWriter, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stdinW != nil {
		return p.stdinW, true
	}
	if p.spawned || p.output != nil || p.opts.Input != nil {
		return nil, false
	}
	p.stdinR, p.stdinW = io.Pipe()
	return p.stdinW, true
}

// Stdout returns a reader over everything the process writes to stdout,
// from the first byte. Each call returns an independent reader.
func (p *Process) Stdout() io.Reader { return p.reader(system.Stdout) }

// Stderr is the stderr counterpart of Stdout.
func (p *Process) Stderr() io.Reader { return p.reader(system.Stderr) }

func (p *Process) reader(stream system.Stream) io.Reader {
	if !p.armed {
		return errReader{ErrDisarmed}
	}
	f := p.bus.attach(stream)
	p.ensureStarted()
	pr, pw := io.Pipe()
	go func() {
		err := f.pump(pw)
		p.bus.detach(stream, f)
		_ = pw.CloseWithError(err)
	}()
	return pr
}

// Lines yields stdout line by line as it arrives. After the last line it
// yields the process error, if any. Stopping the iteration or cancelling
// ctx detaches from the process without killing it.
func (p *Process) Lines(ctx context.Context) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		if !p.armed {
			yield("", ErrDisarmed)
			return
		}
		p.mu.Lock()
		halted := p.stage == StageHalted
		delim := p.opts.Delimiter
		p.mu.Unlock()
		if halted {
			yield("", ErrHalted)
			return
		}

		f := p.bus.attach(system.Stdout)
		defer p.bus.detach(system.Stdout, f)
		p.ensureStarted()
		if ctx != nil {
			stop := context.AfterFunc(ctx, f.close)
			defer stop()
		}

		split := newLineSplitter(delim)
		for {
			chunk, ok := f.nextChunk()
			if !ok {
				break
			}
			for _, line := range split.push(chunk) {
				if !yield(line, nil) {
					return
				}
			}
		}
		if ctx != nil && ctx.Err() != nil {
			yield("", ctx.Err())
			return
		}
		if rest, ok := split.flush(); ok {
			if !yield(rest, nil) {
				return
			}
		}
		if _, err := p.Wait(); err != nil {
			yield("", err)
		}
	}
}

// ID is the unique id of the process, shared by its log entries.
func (p *Process) ID() string { return p.id }

// PID returns the child pid, zero until it is spawned.
func (p *Process) PID() int {
	if !p.armed {
		return 0
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pid
}

// Cmd returns the command text, empty while pending arguments are unresolved.
func (p *Process) Cmd() string {
	if !p.armed {
		return ""
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cmd
}

// FullCmd is the command with the shell prefix and postfix applied.
func (p *Process) FullCmd() string {
	if !p.armed {
		return ""
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.opts.Prefix + p.cmd + p.opts.Postfix
}

// Stage returns the current lifecycle step.
func (p *Process) Stage() Stage {
	if !p.armed {
		return ""
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stage
}

// IsHalted reports whether the process waits for Run.
func (p *Process) IsHalted() bool { return p.Stage() == StageHalted }

// IsRunning reports whether the process was started and has not settled.
func (p *Process) IsRunning() bool { return p.Stage() == StageRunning }

// IsSettled reports whether the process fulfilled or rejected.
func (p *Process) IsSettled() bool {
	s := p.Stage()
	return s == StageFulfilled || s == StageRejected
}

// Output returns the result, or nil while the process has not settled.
func (p *Process) Output() *Output {
	if !p.armed {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.output
}

// Done is closed once the process settled and its callbacks ran.
func (p *Process) Done() <-chan struct{} {
	if !p.armed {
		return closedDone
	}
	return p.done
}

// Context is cancelled when the process is aborted.
func (p *Process) Context() context.Context {
	if !p.armed {
		return context.Background()
	}
	return p.ac.Context()
}

type errWriter struct{ err error }

func (w errWriter) Write([]byte) (int, error) { return 0, w.err }
func (w errWriter) Close() error              { return w.err }

type errReader struct{ err error }

func (r errReader) Read([]byte) (int, error) { return 0, r.err }
