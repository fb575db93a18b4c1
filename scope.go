package shx

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"

	"github.com/spf13/afero"

	"shx/internal/app"
)

type scopeKey struct{}

// scope is one level of the context store.
type scope struct {
	mu   sync.Mutex
	opts Options
}

var (
	defaultsOnce  sync.Once
	defaultsScope *scope
	defaultsErr   error

	// cwdMu serialises changes of the process working directory.
	cwdMu sync.Mutex
)

func globalScope() *scope {
	defaultsOnce.Do(func() {
		opts, err := loadDefaults(nil)
		if err != nil {
			defaultsErr = err
			log.Printf("shx: ignoring configuration overrides: %v", err)
		}
		defaultsScope = &scope{opts: opts}
	})
	return defaultsScope
}

// loadDefaults applies the SHX_* variables and the SHX_CONFIG file on top
// of the built-in defaults. On error the built-in defaults are returned.
func loadDefaults(fs afero.Fs) (Options, error) {
	opts := defaultOptions()
	overrides, err := app.LoadOverrides(fs)
	if err != nil {
		return opts, err
	}
	return applyOverrides(opts, overrides), nil
}

// DefaultsErr reports why the configuration overrides were rejected, or nil
// when they loaded.
func DefaultsErr() error {
	globalScope()
	return defaultsErr
}

func activeScope(ctx context.Context) *scope {
	if ctx != nil {
		if s, ok := ctx.Value(scopeKey{}).(*scope); ok {
			return s
		}
	}
	return globalScope()
}

// Current returns a copy of the options active in ctx: the innermost scope
// opened with Within, or the process-wide defaults.
func Current(ctx context.Context) Options {
	s := activeScope(ctx)
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.opts.clone()
}

// Configure mutates the active scope. Outside any scope it changes the
// process-wide defaults.
func Configure(ctx context.Context, opts ...Option) {
	s := activeScope(ctx)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.opts = s.opts.apply(opts...)
}

// Within runs fn with a private copy of the active options. Changes made
// through fn's ctx never leak to the caller or to sibling scopes.
func Within(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx == nil {
		ctx = context.Background()
	}
	return fn(context.WithValue(ctx, scopeKey{}, &scope{opts: Current(ctx)}))
}

// Cd changes the working directory of the active scope and re-asserts the
// process working directory to match. Commands always run in the scope's
// directory, whatever the process directory is.
func Cd(ctx context.Context, dir any) error {
	target := ""
	switch d := dir.(type) {
	case string:
		target = d
	case *Output:
		target = d.Value()
	default:
		target = fmt.Sprint(d)
	}

	s := activeScope(ctx)
	s.mu.Lock()
	if !filepath.IsAbs(target) {
		target = filepath.Join(s.opts.Cwd, target)
	}
	target = filepath.Clean(target)
	opts := s.opts
	s.mu.Unlock()

	info, err := os.Stat(target)
	if err != nil {
		return fmt.Errorf("cd %s: %w", target, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("cd %s: not a directory", target)
	}

	opts.log(LogEntry{Kind: LogCd, Dir: target, Verbose: !opts.Quiet && opts.Verbose})

	s.mu.Lock()
	s.opts.Cwd = target
	s.mu.Unlock()
	return chdir(target)
}

// SyncProcessCwd re-asserts the process working directory to the logical
// directory of the scope in ctx. Call it after resuming work in a scope
// whose relative file access depends on the process directory.
func SyncProcessCwd(ctx context.Context) error {
	return chdir(Current(ctx).Cwd)
}

func chdir(dir string) error {
	cwdMu.Lock()
	defer cwdMu.Unlock()
	if wd, err := os.Getwd(); err == nil && wd == dir {
		return nil
	}
	if err := os.Chdir(dir); err != nil {
		return fmt.Errorf("chdir %s: %w", dir, err)
	}
	return nil
}

// applyOverrides layers environment/file overrides on top of opts.
func applyOverrides(opts Options, o app.Overrides) Options {
	if o.Cwd != nil {
		opts.Cwd = *o.Cwd
	}
	if o.Shell != nil {
		opts.Shell = *o.Shell
	}
	if o.Prefix != nil {
		opts.Prefix = *o.Prefix
	}
	if o.Postfix != nil {
		opts.Postfix = *o.Postfix
	}
	if o.Verbose != nil {
		opts.Verbose = *o.Verbose
	}
	if o.Quiet != nil {
		opts.Quiet = *o.Quiet
	}
	if o.Detached != nil {
		opts.Detached = *o.Detached
	}
	if o.KillSignal != nil {
		opts.KillSignal = *o.KillSignal
	}
	if o.TimeoutSignal != nil {
		opts.TimeoutSignal = *o.TimeoutSignal
	}
	if o.Timeout != nil {
		if d, err := ParseDuration(*o.Timeout); err == nil {
			opts.Timeout = d
		}
	}
	if o.PreferLocal != nil {
		opts.PreferLocal = o.PreferLocalDirs(opts.Cwd)
	}
	return opts
}
