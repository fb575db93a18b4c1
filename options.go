package shx

import (
	"context"
	"io"
	"maps"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"runtime"
	"slices"
	"strings"
	"time"

	"github.com/spf13/afero"

	"shx/internal/system"
)

// IO selects how a child stdio stream is wired.
type IO = system.Mode

const (
	Pipe    IO = system.ModePipe
	Inherit IO = system.ModeInherit
	Ignore  IO = system.ModeIgnore
)

// Stdio holds the stdin, stdout and stderr modes.
type Stdio [3]IO

type (
	// Spawner starts child processes; see system.Spawner.
	Spawner = system.Spawner
	// SpawnRequest is what a Spawner receives.
	SpawnRequest = system.Request
	// Child is a process started by a Spawner.
	Child = system.Child
)

// Options is the configuration a Shell builds processes with.
type Options struct {
	Cwd     string
	Env     map[string]string
	Shell   string
	Prefix  string
	Postfix string
	Quote   func(string) string
	Stdio   Stdio

	Verbose  bool
	Quiet    bool
	Nothrow  bool
	Detached bool
	Halt     bool
	Sync     bool

	KillSignal    string
	Timeout       time.Duration
	TimeoutSignal string

	// PreferLocal lists directories whose bin folders are searched
	// before PATH.
	PreferLocal []string
	// Input feeds stdin: a string, []byte, io.Reader or *Output.
	Input     any
	Delimiter *regexp.Regexp

	AbortController *AbortController

	Spawner    Spawner
	Log        LogFunc
	LogOutput  io.Writer
	Formatters map[LogKind]Formatter
	FS         afero.Fs

	abortParent context.Context
}

// Option mutates Options.
type Option func(*Options)

func (o Options) clone() Options {
	o.Env = maps.Clone(o.Env)
	o.PreferLocal = slices.Clone(o.PreferLocal)
	o.Formatters = maps.Clone(o.Formatters)
	return o
}

func (o Options) apply(opts ...Option) Options {
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	return o
}

// WithCwd sets the working directory of the child.
func WithCwd(dir string) Option { return func(o *Options) { o.Cwd = dir } }

// WithEnv replaces the environment. A nil map inherits the parent's.
func WithEnv(env map[string]string) Option {
	return func(o *Options) { o.Env = maps.Clone(env) }
}

// WithEnvVar sets one variable on top of the current environment.
func WithEnvVar(key, value string) Option {
	return func(o *Options) {
		if o.Env == nil {
			o.Env = envToMap(os.Environ())
		}
		o.Env[key] = value
	}
}

// WithShell sets the shell binary, or a command line split like a shell would.
func WithShell(shell string) Option { return func(o *Options) { o.Shell = shell } }

// WithPrefix sets the text prepended to every command.
func WithPrefix(prefix string) Option { return func(o *Options) { o.Prefix = prefix } }

// WithPostfix sets the text appended to every command.
func WithPostfix(postfix string) Option { return func(o *Options) { o.Postfix = postfix } }

// WithQuote replaces the function that quotes interpolated arguments.
func WithQuote(quote func(string) string) Option {
	return func(o *Options) { o.Quote = quote }
}

// WithStdio sets the mode of each child stream.
func WithStdio(stdin, stdout, stderr IO) Option {
	return func(o *Options) { o.Stdio = Stdio{stdin, stdout, stderr} }
}

// WithVerbose echoes commands and their stdout.
func WithVerbose(v bool) Option { return func(o *Options) { o.Verbose = v } }

// WithQuiet turns off every echo, stderr included.
func WithQuiet(v bool) Option { return func(o *Options) { o.Quiet = v } }

// WithNothrow makes failing processes fulfil instead of reject.
func WithNothrow(v bool) Option { return func(o *Options) { o.Nothrow = v } }

// WithDetached starts children in their own process group.
func WithDetached(v bool) Option { return func(o *Options) { o.Detached = v } }

// WithHalt makes new processes wait for an explicit Run.
func WithHalt(v bool) Option { return func(o *Options) { o.Halt = v } }

// WithSync runs processes to completion on the calling goroutine.
func WithSync(v bool) Option { return func(o *Options) { o.Sync = v } }

// WithKillSignal sets the signal Kill sends by default.
func WithKillSignal(signal string) Option {
	return func(o *Options) { o.KillSignal = signal }
}

// WithTimeout kills processes that outlive d, by default with SIGTERM.
func WithTimeout(d time.Duration, signal ...string) Option {
	return func(o *Options) {
		o.Timeout = d
		if len(signal) > 0 {
			o.TimeoutSignal = signal[0]
		}
	}
}

// WithPreferLocal puts each dir/bin and dir in front of PATH.
func WithPreferLocal(dirs ...string) Option {
	return func(o *Options) { o.PreferLocal = slices.Clone(dirs) }
}

// WithInput feeds the child's stdin from a string, bytes, reader, Output or Process.
func WithInput(input any) Option { return func(o *Options) { o.Input = input } }

// WithDelimiter sets the line separator used by Lines.
func WithDelimiter(delim *regexp.Regexp) Option {
	return func(o *Options) { o.Delimiter = delim }
}

// WithAbortController shares ac between processes. Processes built with it
// cannot Abort themselves; abort through ac instead.
func WithAbortController(ac *AbortController) Option {
	return func(o *Options) { o.AbortController = ac }
}

// WithSpawner replaces how children are started.
func WithSpawner(sp Spawner) Option { return func(o *Options) { o.Spawner = sp } }

// WithLogger receives every log entry in place of the default echo.
func WithLogger(fn LogFunc) Option { return func(o *Options) { o.Log = fn } }

// WithLogOutput sets where the default logger writes.
func WithLogOutput(w io.Writer) Option { return func(o *Options) { o.LogOutput = w } }

// WithFormatter overrides how one log kind is rendered.
func WithFormatter(kind LogKind, f Formatter) Option {
	return func(o *Options) {
		o.Formatters = maps.Clone(o.Formatters)
		if o.Formatters == nil {
			o.Formatters = make(map[LogKind]Formatter)
		}
		o.Formatters[kind] = f
	}
}

// WithFS sets the filesystem used for path pipe destinations.
func WithFS(fs afero.Fs) Option { return func(o *Options) { o.FS = fs } }

// UseBash switches to bash with strict mode and POSIX quoting.
func UseBash() Option {
	return func(o *Options) {
		if path, err := exec.LookPath("bash"); err == nil {
			o.Shell = path
		}
		o.Prefix = "set -euo pipefail;"
		o.Postfix = ""
		o.Quote = Quote
	}
}

// UsePowerShell switches to Windows PowerShell.
func UsePowerShell() Option { return usePowerShell("powershell.exe") }

// UsePwsh switches to PowerShell Core.
func UsePwsh() Option { return usePowerShell("pwsh") }

func usePowerShell(bin string) Option {
	return func(o *Options) {
		if path, err := exec.LookPath(bin); err == nil {
			o.Shell = path
		} else {
			o.Shell = bin
		}
		o.Prefix = ""
		o.Postfix = "; exit $LastExitCode"
		o.Quote = QuotePowerShell
	}
}

func defaultOptions() Options {
	cwd, _ := os.Getwd()
	o := Options{
		Cwd:           cwd,
		Quote:         Quote,
		Stdio:         Stdio{Pipe, Pipe, Pipe},
		KillSignal:    "SIGTERM",
		TimeoutSignal: "SIGTERM",
	}
	if runtime.GOOS == "windows" {
		o.Shell = os.Getenv("ComSpec")
		if o.Shell == "" {
			o.Shell = "cmd.exe"
		}
		return o
	}
	if _, err := exec.LookPath("bash"); err == nil {
		o = o.apply(UseBash())
	} else {
		o.Shell = "/bin/sh"
	}
	if shell := os.Getenv("SHELL"); shell != "" {
		o.Shell = shell
		if !strictModeShell(shell) {
			o.Prefix = ""
		}
	}
	return o
}

func strictModeShell(shell string) bool {
	switch filepath.Base(strings.Fields(shell + " x")[0]) {
	case "bash", "zsh", "ksh":
		return true
	}
	return false
}

func envToMap(env []string) map[string]string {
	out := make(map[string]string, len(env))
	for _, kv := range env {
		if k, v, ok := strings.Cut(kv, "="); ok {
			out[k] = v
		}
	}
	return out
}

func mapToEnv(env map[string]string) []string {
	out := make([]string, 0, len(env))
	for k, v := range env {
		out = append(out, k+"="+v)
	}
	slices.Sort(out)
	return out
}

// environ resolves the child environment, prepending local bin directories
// to PATH when PreferLocal is set.
func (o Options) environ() []string {
	if len(o.PreferLocal) == 0 {
		if o.Env == nil {
			return nil
		}
		return mapToEnv(o.Env)
	}
	env := o.Env
	if env == nil {
		env = envToMap(os.Environ())
	} else {
		env = maps.Clone(env)
	}
	key := "PATH"
	if runtime.GOOS == "windows" {
		for k := range env {
			if strings.EqualFold(k, "PATH") {
				key = k
			}
		}
	}
	var dirs []string
	for _, dir := range o.PreferLocal {
		if dir == "" {
			continue
		}
		if !filepath.IsAbs(dir) {
			dir = filepath.Join(o.Cwd, dir)
		}
		dirs = append(dirs, filepath.Join(dir, "bin"), dir)
	}
	if current := env[key]; current != "" {
		dirs = append(dirs, current)
	}
	env[key] = strings.Join(dirs, string(os.PathListSeparator))
	return mapToEnv(env)
}
