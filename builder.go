package shx

import (
	"context"
	"fmt"
	"path/filepath"
	"reflect"
	"runtime"
	"strings"

	"golang.org/x/sync/errgroup"
)

// Template is a command split around its interpolation slots. Pieces
// always holds one more element than Args.
type Template struct {
	Pieces []string
	Args   []any
}

// T builds a Template from a format where %s marks a slot and %% is a
// literal percent sign. Other % sequences are kept as they are.
func T(format string, args ...any) Template {
	return Template{Pieces: splitFormat(format), Args: args}
}

// Deferred is an argument resolved right before the command is built, for
// values that are not known when the command is declared.
type Deferred func(ctx context.Context) (any, error)

func splitFormat(format string) []string {
	var (
		pieces []string
		cur    strings.Builder
	)
	for i := 0; i < len(format); i++ {
		c := format[i]
		if c != '%' || i+1 == len(format) {
			cur.WriteByte(c)
			continue
		}
		switch format[i+1] {
		case 's':
			pieces = append(pieces, cur.String())
			cur.Reset()
			i++
		case '%':
			cur.WriteByte('%')
			i++
		default:
			cur.WriteByte(c)
		}
	}
	return append(pieces, cur.String())
}

func (t Template) pending() bool {
	for _, arg := range t.Args {
		switch arg.(type) {
		case *Process, Deferred:
			return true
		}
	}
	return false
}

// buildCommand assembles the command text, waiting for pending arguments
// concurrently.
func buildCommand(ctx context.Context, opts Options, t Template) (string, error) {
	if err := checkTemplate(opts, t); err != nil {
		return "", err
	}

	args := make([]any, len(t.Args))
	copy(args, t.Args)
	if t.pending() {
		g, gctx := errgroup.WithContext(ctx)
		for i, arg := range args {
			switch a := arg.(type) {
			case *Process:
				g.Go(func() error {
					out, err := a.Wait()
					if err != nil {
						return err
					}
					args[i] = out
					return nil
				})
			case Deferred:
				g.Go(func() error {
					v, err := a(gctx)
					if err != nil {
						return fmt.Errorf("resolve argument %d: %w", i, err)
					}
					if p, ok := v.(*Process); ok {
						if v, err = p.Wait(); err != nil {
							return err
						}
					}
					args[i] = v
					return nil
				})
			}
		}
		if err := g.Wait(); err != nil {
			return "", err
		}
	}

	var b strings.Builder
	b.WriteString(t.Pieces[0])
	for i, arg := range args {
		b.WriteString(substitute(arg, opts.Quote))
		b.WriteString(t.Pieces[i+1])
	}
	return b.String(), nil
}

func checkTemplate(opts Options, t Template) error {
	if len(t.Pieces) != len(t.Args)+1 {
		return ErrMalformedCommand
	}
	if opts.Shell == "" {
		return ErrNoShell
	}
	if opts.Quote == nil {
		return ErrNoQuote
	}
	return nil
}

func substitute(arg any, quote func(string) string) string {
	switch a := arg.(type) {
	case nil:
		return quote("")
	case string:
		return quote(a)
	case []byte:
		return quote(string(a))
	case *Output:
		return quote(strings.TrimSuffix(a.Stdout(), "\n"))
	case []string:
		parts := make([]string, len(a))
		for i, s := range a {
			parts[i] = quote(s)
		}
		return strings.Join(parts, " ")
	case fmt.Stringer:
		return quote(a.String())
	}

	v := reflect.ValueOf(arg)
	if v.Kind() == reflect.Slice || v.Kind() == reflect.Array {
		parts := make([]string, v.Len())
		for i := range parts {
			parts[i] = substitute(v.Index(i).Interface(), quote)
		}
		return strings.Join(parts, " ")
	}
	return quote(fmt.Sprint(arg))
}

// callerLocation reports file:line of the first frame outside this package.
func callerLocation() string {
	pcs := make([]uintptr, 16)
	n := runtime.Callers(2, pcs)
	frames := runtime.CallersFrames(pcs[:n])
	for {
		frame, more := frames.Next()
		if !inPackage(frame.Function) {
			return fmt.Sprintf("%s:%d", filepath.Base(frame.File), frame.Line)
		}
		if !more {
			return "unknown"
		}
	}
}

func inPackage(fn string) bool {
	return strings.HasPrefix(fn, "shx.")
}
