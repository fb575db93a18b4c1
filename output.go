package shx

import (
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"iter"
	"regexp"
	"strings"
	"sync"
	"time"

	"shx/internal/system"
)

// Output is the immutable record of a finished process. It implements
// error so a failed Wait can return it directly.
type Output struct {
	code     int
	signal   string
	err      error
	duration time.Duration
	store    *system.Store
	from     string

	stdout  func() string
	stderr  func() string
	stdall  func() string
	message func() string
}

func newOutput(res system.Result, from string) *Output {
	store := res.Store
	if store == nil {
		store = system.NewStore()
	}
	o := &Output{
		code:     res.Code,
		signal:   res.Signal,
		err:      res.Err,
		duration: res.Duration,
		store:    store,
		from:     from,
	}
	o.stdout = sync.OnceValue(func() string { return string(store.Bytes(system.Stdout)) })
	o.stderr = sync.OnceValue(func() string { return string(store.Bytes(system.Stderr)) })
	o.stdall = sync.OnceValue(func() string { return string(store.Bytes(system.Stdall)) })
	o.message = sync.OnceValue(o.buildMessage)
	return o
}

// ExitCode returns the exit status, or -1 when the process did not exit
// normally (killed by a signal or never spawned).
func (o *Output) ExitCode() int { return o.code }

// Signal returns the terminating signal name, e.g. "SIGKILL", or "".
func (o *Output) Signal() string { return o.signal }

// Duration is the time between spawn and exit.
func (o *Output) Duration() time.Duration { return o.duration }

// Err returns the spawn or abort error, distinct from a nonzero exit.
func (o *Output) Err() error { return o.err }

// OK reports a clean run: no spawn error and exit code 0.
func (o *Output) OK() bool { return o.err == nil && o.code == 0 }

// Stdout returns the captured stdout.
func (o *Output) Stdout() string { return o.stdout() }

// Stderr returns the captured stderr.
func (o *Output) Stderr() string { return o.stderr() }

// Stdall returns stdout and stderr interleaved in arrival order.
func (o *Output) Stdall() string { return o.stdall() }

// Message is the human-readable failure description, built once.
func (o *Output) Message() string { return o.message() }

// Error makes a failed Output usable as an error.
func (o *Output) Error() string { return o.Message() }

// Unwrap exposes the spawn or abort error.
func (o *Output) Unwrap() error { return o.err }

// String returns the combined output.
func (o *Output) String() string { return o.Stdall() }

// Value returns the combined output with surrounding whitespace trimmed.
func (o *Output) Value() string { return strings.TrimSpace(o.Stdall()) }

// Buffer returns a copy of the combined output bytes.
func (o *Output) Buffer() []byte { return o.store.Bytes(system.Stdall) }

// JSON decodes the combined output into v.
func (o *Output) JSON(v any) error {
	if err := json.Unmarshal([]byte(o.Stdall()), v); err != nil {
		return fmt.Errorf("decode output: %w", err)
	}
	return nil
}

// Text decodes the combined output. Supported encodings are utf8 (the
// default), latin1, hex and base64.
func (o *Output) Text(encoding ...string) (string, error) {
	enc := "utf8"
	if len(encoding) > 0 && encoding[0] != "" {
		enc = strings.ToLower(encoding[0])
	}
	switch enc {
	case "utf8", "utf-8":
		return o.Stdall(), nil
	case "latin1", "binary":
		raw := o.Buffer()
		runes := make([]rune, len(raw))
		for i, b := range raw {
			runes[i] = rune(b)
		}
		return string(runes), nil
	case "hex":
		return hex.EncodeToString(o.Buffer()), nil
	case "base64":
		return base64.StdEncoding.EncodeToString(o.Buffer()), nil
	default:
		return "", fmt.Errorf("unsupported encoding %q", enc)
	}
}

// Blob is not available in Go; use Buffer.
func (o *Output) Blob(string) ([]byte, error) {
	return nil, ErrBlobUnsupported
}

// Lines splits the combined output, by default on \r?\n. A trailing
// newline does not produce an empty last line.
func (o *Output) Lines(delim ...*regexp.Regexp) []string {
	var d *regexp.Regexp
	if len(delim) > 0 {
		d = delim[0]
	}
	return splitLines(o.store.Chunks(system.Stdall), d)
}

// All yields the lines of the combined output.
func (o *Output) All() iter.Seq[string] {
	return func(yield func(string) bool) {
		for _, line := range o.Lines() {
			if !yield(line) {
				return
			}
		}
	}
}

func (o *Output) buildMessage() string {
	if o.err != nil {
		return formatErrorMessage(o.err, o.from)
	}
	details := ""
	if strings.TrimSpace(o.Stderr()) == "" {
		details = formatErrorDetails(o.Lines(), 20)
	}
	return formatExitMessage(o.code, o.signal, o.Stderr(), o.from, details)
}

func formatExitMessage(code int, signal, stderr, from, details string) string {
	if code == 0 && signal == "" {
		return fmt.Sprintf("exit code: %d", code)
	}
	if stderr == "" {
		stderr = "\n"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s    at %s\n    exit code: %d", stderr, from, code)
	if info := system.ExitCodeInfo(code); info != "" {
		fmt.Fprintf(&b, " (%s)", info)
	}
	if signal != "" {
		fmt.Fprintf(&b, "\n    signal: %s", signal)
	}
	if details != "" {
		fmt.Fprintf(&b, "\n    details: \n%s", details)
	}
	return b.String()
}

func formatErrorMessage(err error, from string) string {
	errno, code, ok := system.Errno(err)
	if !ok {
		return fmt.Sprintf("%s\n    at %s", err, from)
	}
	return fmt.Sprintf("%s\n    errno: %d (%s)\n    code: %s\n    at %s",
		err, errno, system.ErrnoMessage(errno), code, from)
}

var suspiciousLine = regexp.MustCompile(`(?i)(fail|error|not ok|exception)`)

// formatErrorDetails keeps short outputs whole; longer ones are reduced to
// the lines that look like failures, capped at lim.
func formatErrorDetails(lines []string, lim int) string {
	if len(lines) < lim {
		return strings.Join(lines, "\n")
	}
	var picked []string
	for _, line := range lines {
		if suspiciousLine.MatchString(line) {
			picked = append(picked, line)
		}
	}
	if len(picked) == 0 {
		picked = lines
	}
	if len(picked) > lim {
		return strings.Join(picked[:lim], "\n") + "\n..."
	}
	return strings.Join(picked, "\n")
}
