package testutil

import (
	"bytes"
	"context"
	"io"
	"sync"

	"shx/internal/system"
)

// FakeResponse scripts the behaviour of one fake child process.
type FakeResponse struct {
	Pid      int
	Stdout   []string
	Stderr   []string
	Code     int
	Signal   string
	SpawnErr error
	// Hold keeps the child alive until the spawn context is cancelled.
	Hold bool
}

// CapturedRequest keeps the command line and environment of a spawn.
type CapturedRequest struct {
	Command string
	Shell   []string
	Dir     string
	Env     []string
}

// FakeSpawner records spawn requests and replays queued responses.
type FakeSpawner struct {
	mu        sync.Mutex
	responses []FakeResponse
	requests  []CapturedRequest
	stdins    []*lockedBuffer
}

// NewFakeSpawner constructs a FakeSpawner with the provided responses.
func NewFakeSpawner(responses ...FakeResponse) *FakeSpawner {
	return &FakeSpawner{responses: append([]FakeResponse(nil), responses...)}
}

// Spawn stores the request and starts a fake child from the next queued
// response. Without queued responses the child exits 0 silently.
func (f *FakeSpawner) Spawn(ctx context.Context, req system.Request) (system.Child, error) {
	f.mu.Lock()
	f.requests = append(f.requests, CapturedRequest{
		Command: req.Command,
		Shell:   append([]string(nil), req.Shell...),
		Dir:     req.Dir,
		Env:     append([]string(nil), req.Env...),
	})
	var resp FakeResponse
	if len(f.responses) > 0 {
		resp = f.responses[0]
		f.responses = f.responses[1:]
	}
	if resp.Pid == 0 {
		resp.Pid = 900_000_000 + len(f.requests)
	}
	stdin := &lockedBuffer{}
	f.stdins = append(f.stdins, stdin)
	f.mu.Unlock()

	if resp.SpawnErr != nil {
		return nil, resp.SpawnErr
	}

	child := &fakeChild{resp: resp, stdin: stdin, done: make(chan struct{})}
	var wg sync.WaitGroup
	child.stdout = child.stream(&wg, req.Stdio[1], resp.Stdout)
	child.stderr = child.stream(&wg, req.Stdio[2], resp.Stderr)
	go func() {
		wg.Wait()
		if resp.Hold {
			<-ctx.Done()
			child.resp.Code = -1
			child.resp.Signal = "SIGTERM"
		}
		close(child.done)
	}()
	return child, nil
}

// Requests returns a snapshot of the captured requests.
func (f *FakeSpawner) Requests() []CapturedRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]CapturedRequest, len(f.requests))
	copy(out, f.requests)
	return out
}

// Stdin returns what was written to the stdin of the i-th spawned child.
func (f *FakeSpawner) Stdin(i int) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if i < 0 || i >= len(f.stdins) {
		return ""
	}
	return f.stdins[i].String()
}

type fakeChild struct {
	resp   FakeResponse
	stdin  *lockedBuffer
	stdout io.Reader
	stderr io.Reader
	done   chan struct{}
}

func (c *fakeChild) stream(wg *sync.WaitGroup, mode system.Mode, chunks []string) io.Reader {
	if mode != system.ModePipe {
		return nil
	}
	r, w := io.Pipe()
	wg.Add(1)
	go func() {
		defer wg.Done()
		for _, chunk := range chunks {
			if _, err := w.Write([]byte(chunk)); err != nil {
				break
			}
		}
		_ = w.Close()
	}()
	return r
}

func (c *fakeChild) Pid() int              { return c.resp.Pid }
func (c *fakeChild) Stdin() io.WriteCloser { return c.stdin }
func (c *fakeChild) Stdout() io.Reader     { return c.stdout }
func (c *fakeChild) Stderr() io.Reader     { return c.stderr }

func (c *fakeChild) Wait() (system.Exit, error) {
	<-c.done
	return system.Exit{Code: c.resp.Code, Signal: c.resp.Signal}, nil
}

type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) Close() error { return nil }

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
