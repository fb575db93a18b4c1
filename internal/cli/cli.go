package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"shx"
	"shx/internal/app"
)

// Version is reported by --version. Release builds set it with -ldflags.
var Version = "dev"

// Runner turns command-line arguments into one script run.
type Runner struct {
	logger *log.Logger
	fs     afero.Fs
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer
}

// New constructs a Runner bound to the process stdio.
func New(logger *log.Logger) *Runner {
	if logger == nil {
		logger = log.New(os.Stderr, "shx: ", log.LstdFlags)
	}
	return &Runner{
		logger: logger,
		fs:     afero.NewOsFs(),
		stdin:  os.Stdin,
		stdout: os.Stdout,
		stderr: os.Stderr,
	}
}

type flags struct {
	quiet       bool
	verbose     bool
	shell       string
	prefix      string
	postfix     string
	cwd         string
	preferLocal string
	eval        string
	ext         string
	timeout     string
}

// Run executes the script named by args and returns its exit code. The
// error is set only when the script could not be run at all.
func (r *Runner) Run(ctx context.Context, args []string) (int, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	var (
		f    flags
		code int
	)
	root := &cobra.Command{
		Use:           "shx [script] [args...]",
		Short:         "Run shell scripts and markdown documents",
		Version:       Version,
		Args:          cobra.ArbitraryArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := r.execute(cmd, f, args)
			code = c
			return err
		},
	}
	root.SetVersionTemplate("{{.Version}}\n")
	root.SetArgs(args)
	root.SetIn(r.stdin)
	root.SetOut(r.stdout)
	root.SetErr(r.stderr)

	fl := root.Flags()
	fl.BoolVar(&f.quiet, "quiet", false, "Suppress the output echo")
	fl.BoolVar(&f.verbose, "verbose", false, "Echo commands and their output")
	fl.StringVar(&f.shell, "shell", "", "Shell used to run the script")
	fl.StringVar(&f.prefix, "prefix", "", "Command prepended to the script")
	fl.StringVar(&f.postfix, "postfix", "", "Command appended to the script")
	fl.StringVar(&f.cwd, "cwd", "", "Working directory of the script")
	fl.StringVar(&f.preferLocal, "prefer-local", "", "Put <dir>/bin and <dir> first on PATH")
	fl.Lookup("prefer-local").NoOptDefVal = "true"
	fl.StringVarP(&f.eval, "eval", "e", "", "Evaluate the given script")
	fl.StringVar(&f.ext, "ext", "", "Script extension used for --eval and stdin, e.g. .md")
	fl.StringVar(&f.timeout, "timeout", "", "Kill the script after this duration")

	if err := root.ExecuteContext(ctx); err != nil {
		return 1, err
	}
	return code, nil
}

func (r *Runner) execute(cmd *cobra.Command, f flags, args []string) (int, error) {
	script, name, rest, err := r.source(f, args)
	if err != nil {
		return 1, err
	}

	opts, err := r.options(cmd, f, name == "-")
	if err != nil {
		return 1, err
	}
	sh := shx.Sh(cmd.Context(), opts...)

	if len(rest) > 0 {
		quote := sh.Options().Quote
		quoted := make([]string, len(rest))
		for i, arg := range rest {
			quoted[i] = quote(arg)
		}
		script = "set -- " + strings.Join(quoted, " ") + "\n" + script
	}

	// stderr reaches the user through the log echo unless --quiet.
	p := sh.Template([]string{script}).Nothrow(true)
	stdout := p.PipeStdout(r.stdout)

	out, _ := p.Wait()
	_, _ = stdout.Wait()

	if out == nil {
		return 1, errors.New("script did not run")
	}
	if out.Err() != nil {
		r.logger.Printf("%s: %v", name, out.Err())
		return 1, nil
	}
	if out.ExitCode() < 0 {
		return 1, nil
	}
	return out.ExitCode(), nil
}

// source picks the script body: --eval, a file path, or stdin when the
// path is "-" or missing. Markdown documents are reduced to their shell
// blocks.
func (r *Runner) source(f flags, args []string) (script, name string, rest []string, err error) {
	ext := f.ext
	switch {
	case f.eval != "":
		script, name, rest = f.eval, "eval", args
	case len(args) == 0 || args[0] == "-":
		raw, rerr := io.ReadAll(r.stdin)
		if rerr != nil {
			return "", "", nil, fmt.Errorf("read stdin: %w", rerr)
		}
		script, name = string(raw), "-"
		if len(args) > 0 {
			rest = args[1:]
		}
	default:
		name, rest = args[0], args[1:]
		raw, rerr := afero.ReadFile(r.fs, name)
		if rerr != nil {
			return "", "", nil, fmt.Errorf("read script: %w", rerr)
		}
		script = string(raw)
		if ext == "" {
			ext = filepath.Ext(name)
		}
	}

	if strings.EqualFold(strings.TrimPrefix(ext, "."), "md") {
		script = transformMarkdown(script)
	}
	return script, name, rest, nil
}

func (r *Runner) options(cmd *cobra.Command, f flags, fromStdin bool) ([]shx.Option, error) {
	fl := cmd.Flags()
	opts := []shx.Option{shx.WithLogOutput(r.stderr), shx.WithFS(r.fs)}

	if fl.Changed("shell") {
		opts = append(opts, shx.WithShell(f.shell))
	}
	if fl.Changed("prefix") {
		opts = append(opts, shx.WithPrefix(f.prefix))
	}
	if fl.Changed("postfix") {
		opts = append(opts, shx.WithPostfix(f.postfix))
	}
	if fl.Changed("verbose") {
		opts = append(opts, shx.WithVerbose(f.verbose))
	}
	if fl.Changed("quiet") {
		opts = append(opts, shx.WithQuiet(f.quiet))
	}

	cwd := f.cwd
	if fl.Changed("cwd") {
		abs, err := filepath.Abs(cwd)
		if err != nil {
			return nil, fmt.Errorf("resolve --cwd: %w", err)
		}
		cwd = abs
		opts = append(opts, shx.WithCwd(cwd))
	} else {
		cwd = shx.Current(cmd.Context()).Cwd
	}
	if fl.Changed("prefer-local") {
		dirs := app.Overrides{PreferLocal: &f.preferLocal}.PreferLocalDirs(cwd)
		opts = append(opts, shx.WithPreferLocal(dirs...))
	}
	if fl.Changed("timeout") {
		d, err := shx.ParseDuration(f.timeout)
		if err != nil {
			return nil, fmt.Errorf("invalid --timeout: %w", err)
		}
		opts = append(opts, shx.WithTimeout(d))
	}
	if !fromStdin && r.stdin != nil {
		opts = append(opts, shx.WithInput(r.stdin))
	}
	return opts, nil
}
