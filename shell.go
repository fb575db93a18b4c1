package shx

import (
	"context"
	"slices"
)

// Shell builds processes from the options active in its context plus its
// own overrides. A Shell is cheap to copy; With returns a derived one.
type Shell struct {
	ctx  context.Context
	opts []Option
}

// Sh returns a Shell bound to ctx. Its options are read from the scope of
// ctx every time a process is built.
func Sh(ctx context.Context, opts ...Option) *Shell {
	if ctx == nil {
		ctx = context.Background()
	}
	return &Shell{ctx: ctx, opts: slices.Clone(opts)}
}

// With returns a Shell that applies opts on top of the current ones.
func (s *Shell) With(opts ...Option) *Shell {
	merged := make([]Option, 0, len(s.opts)+len(opts))
	merged = append(merged, s.opts...)
	merged = append(merged, opts...)
	return &Shell{ctx: s.ctx, opts: merged}
}

// Context returns the context the Shell was bound to.
func (s *Shell) Context() context.Context { return s.ctx }

// Options returns the options a process built now would use.
func (s *Shell) Options() Options {
	return Current(s.ctx).apply(s.opts...)
}

// Cmd builds a process from format, where each %s is replaced by the
// quoted form of the matching argument.
func (s *Shell) Cmd(format string, args ...any) *Process {
	return s.build(T(format, args...), callerLocation())
}

// Template builds a process from explicit pieces and arguments.
func (s *Shell) Template(pieces []string, args ...any) *Process {
	return s.build(Template{Pieces: pieces, Args: args}, callerLocation())
}

// Run builds the command and waits for it.
func (s *Shell) Run(format string, args ...any) (*Output, error) {
	return s.build(T(format, args...), callerLocation()).Wait()
}

// Sync runs the command to completion on the calling goroutine.
func (s *Shell) Sync(format string, args ...any) (*Output, error) {
	return s.With(WithSync(true)).build(T(format, args...), callerLocation()).Wait()
}

func (s *Shell) build(t Template, from string) *Process {
	return newProcess(s, s.Options(), t, from)
}
