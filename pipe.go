package shx

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"github.com/spf13/afero"

	"shx/internal/system"
)

// forwarder is an unbounded chunk queue between a bus and one consumer, so
// a slow destination never stalls the child's readers.
type forwarder struct {
	mu     sync.Mutex
	cond   *sync.Cond
	queue  [][]byte
	closed bool
	// next is the store index of the first chunk the bus may still deliver.
	next int
}

func newForwarder() *forwarder {
	f := &forwarder{}
	f.cond = sync.NewCond(&f.mu)
	return f
}

func (f *forwarder) put(b []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	f.queue = append(f.queue, b)
	f.cond.Signal()
}

func (f *forwarder) close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	f.cond.Broadcast()
}

// nextChunk blocks until a chunk is queued, and reports false once the queue is
// closed and drained.
func (f *forwarder) nextChunk() ([]byte, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for len(f.queue) == 0 && !f.closed {
		f.cond.Wait()
	}
	if len(f.queue) == 0 {
		return nil, false
	}
	b := f.queue[0]
	f.queue[0] = nil
	f.queue = f.queue[1:]
	return b, true
}

func (f *forwarder) pump(w io.Writer) error {
	for {
		b, ok := f.nextChunk()
		if !ok {
			return nil
		}
		if _, err := w.Write(b); err != nil {
			f.close()
			return err
		}
	}
}

// bus fans the chunks of one process out to its destinations. Each stream
// keeps its own subscriber list; a forwarder attached late first receives
// the stored chunks, then the live ones.
type bus struct {
	mu    sync.Mutex
	store *system.Store
	subs  map[system.Stream][]*forwarder
	ended bool
}

func newBus(store *system.Store) *bus {
	return &bus{store: store, subs: make(map[system.Stream][]*forwarder)}
}

func (b *bus) attach(stream system.Stream) *forwarder {
	b.mu.Lock()
	defer b.mu.Unlock()
	f := newForwarder()
	stored := b.store.Chunks(stream)
	for _, chunk := range stored {
		f.put(chunk)
	}
	f.next = len(stored)
	if b.ended {
		f.close()
		return f
	}
	b.subs[stream] = append(b.subs[stream], f)
	return f
}

func (b *bus) detach(stream system.Stream, f *forwarder) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs[stream] = slices.DeleteFunc(b.subs[stream], func(g *forwarder) bool { return g == f })
	if len(b.subs[stream]) == 0 {
		delete(b.subs, stream)
	}
	f.close()
}

func (b *bus) publish(c system.Chunk) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, f := range b.subs[c.Stream] {
		if c.Index >= f.next {
			f.put(c.Data)
		}
	}
	for _, f := range b.subs[system.Stdall] {
		if c.AllIndex >= f.next {
			f.put(c.Data)
		}
	}
}

func (b *bus) end() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.ended = true
	for stream, fs := range b.subs {
		for _, f := range fs {
			f.close()
		}
		delete(b.subs, stream)
	}
}

// Pipe forwards stdout to dest and returns the process standing for the
// destination. dest may be a *Process, a Template (built halted with the
// source's shell), an io.Writer or a file path.
//
// A failing source breaks a running destination: it is killed with the
// source's signal and rejects with the source output unless nothrow.
// Starting the destination starts a halted source.
func (p *Process) Pipe(dest any) *Process { return p.pipe(system.Stdout, dest) }

// PipeStdout is the same as Pipe.
func (p *Process) PipeStdout(dest any) *Process { return p.pipe(system.Stdout, dest) }

// PipeStderr forwards stderr to dest.
func (p *Process) PipeStderr(dest any) *Process { return p.pipe(system.Stderr, dest) }

// PipeStdall forwards stdout and stderr in arrival order.
func (p *Process) PipeStdall(dest any) *Process { return p.pipe(system.Stdall, dest) }

func (p *Process) pipe(stream system.Stream, dest any) *Process {
	if !p.armed {
		return p.failed(ErrDisarmed)
	}
	switch d := dest.(type) {
	case *Process:
		return p.pipeProcess(stream, d)
	case Template:
		return p.pipeProcess(stream, p.templateDest(d))
	case string:
		opts := p.options()
		fs := opts.FS
		if fs == nil {
			fs = afero.NewOsFs()
		}
		path := d
		if !filepath.IsAbs(path) {
			path = filepath.Join(opts.Cwd, path)
		}
		file, err := fs.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
		if err != nil {
			return p.failed(err)
		}
		return p.pipeWriter(stream, file, file)
	case io.Writer:
		if closedFile(d) {
			return p.failed(ErrClosedStream)
		}
		return p.pipeWriter(stream, d, nil)
	default:
		return p.failed(ErrBadPipeDest)
	}
}

func (p *Process) templateDest(t Template) *Process {
	s := p.shellOrDefault()
	opts := s.Options()
	opts.Halt = true
	opts.abortParent = p.ac.Context()
	return newProcess(s, opts, t, callerLocation())
}

func (p *Process) pipeProcess(stream system.Stream, dest *Process) *Process {
	if !dest.armed {
		return p.failed(ErrDisarmed)
	}
	if dest.IsSettled() {
		return p.failed(ErrSettledPipe)
	}
	w, ok := dest.claimStdin()
	if !ok {
		return p.failed(ErrClosedStream)
	}
	p.markPiped(stream)
	dest.mu.Lock()
	dest.upstream = p
	dest.mu.Unlock()

	p.whenSettled(func(out *Output, err error) {
		if err != nil {
			dest.breakWith(out)
		}
	})

	f := p.bus.attach(stream)
	go func() {
		err := f.pump(w)
		p.bus.detach(stream, f)
		_ = w.CloseWithError(err)
	}()

	if p.IsHalted() {
		if !p.whenStarted(func() { dest.Run() }) {
			dest.Run()
		}
		return dest
	}
	p.ensureStarted()
	dest.Run()
	return dest
}

// pipeWriter forwards into w and returns a sink process that settles once
// everything was written. closer, when set, is closed at the end.
func (p *Process) pipeWriter(stream system.Stream, w io.Writer, closer io.Closer) *Process {
	p.markPiped(stream)
	sink := p.sink()
	p.whenSettled(func(out *Output, err error) {
		if err != nil {
			sink.breakWith(out)
		}
	})

	f := p.bus.attach(stream)
	go func() {
		err := f.pump(w)
		p.bus.detach(stream, f)
		if closer != nil {
			if cerr := closer.Close(); err == nil {
				err = cerr
			}
		}
		<-p.Done()
		if err != nil {
			sink.reject(err)
			return
		}
		sink.settle(system.Result{Code: 0, Store: sink.store})
	}()
	p.ensureStarted()
	return sink
}

func (p *Process) markPiped(stream system.Stream) {
	if stream == system.Stderr {
		return
	}
	p.mu.Lock()
	p.piped = true
	p.mu.Unlock()
}

// sink is a process without a child that stands for a writer destination.
func (p *Process) sink() *Process {
	opts := p.options()
	opts.Halt, opts.Nothrow, opts.Timeout = false, false, 0
	s := newProcess(p.shellOrDefault(), opts, Template{Pieces: []string{""}}, p.from)
	s.mu.Lock()
	s.stage = StageRunning
	s.mu.Unlock()
	return s
}

// failed returns a process already rejected with err.
func (p *Process) failed(err error) *Process {
	f := newProcess(p.shellOrDefault(), Options{Shell: "none", Quote: Quote}, Template{Pieces: []string{""}}, callerLocation())
	f.reject(err)
	return f
}

func (p *Process) shellOrDefault() *Shell {
	if p.shell != nil {
		return p.shell
	}
	return Sh(context.Background())
}

func closedFile(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && f.Fd() == ^uintptr(0)
}
