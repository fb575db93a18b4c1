package shx

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/fatih/color"
)

func withColor(t *testing.T) {
	t.Helper()
	prev := color.NoColor
	color.NoColor = false
	t.Cleanup(func() { color.NoColor = prev })
}

func TestFormatCmdHighlights(t *testing.T) {
	withColor(t)
	got := formatCmd("ls -la | grep x")
	want := "$ \x1b[92mls\x1b[0m -la \x1b[31m|\x1b[0m\x1b[92m grep\x1b[0m x\n"
	if got != want {
		t.Fatalf("formatCmd() = %q, want %q", got, want)
	}
}

func TestFormatCmdPlain(t *testing.T) {
	prev := color.NoColor
	color.NoColor = true
	t.Cleanup(func() { color.NoColor = prev })

	cases := map[string]string{
		"echo 'a b'":             "$ echo 'a b'\n",
		"FOO=1 make":             "$ FOO=1 make\n",
		"if true; then echo; fi": "$ if true; then echo; fi\n",
		"one\ntwo":               "$ one\n> two\n",
	}
	for in, want := range cases {
		if got := formatCmd(in); got != want {
			t.Errorf("formatCmd(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestFormatters(t *testing.T) {
	prev := color.NoColor
	color.NoColor = true
	t.Cleanup(func() { color.NoColor = prev })

	cases := []struct {
		entry LogEntry
		want  string
	}{
		{LogEntry{Kind: LogCd, Dir: "/tmp"}, "$ cd /tmp\n"},
		{LogEntry{Kind: LogKill, Pid: 42, Signal: "SIGKILL"}, "$ kill -KILL 42\n"},
		{LogEntry{Kind: LogRetry, Attempt: 2, Total: 5, Delay: 150 * time.Millisecond}, " FAIL  Attempt: 2/5; next in 150ms\n"},
		{LogEntry{Kind: LogRetry, Attempt: 3}, " FAIL  Attempt: 3\n"},
		{LogEntry{Kind: LogFetch, URL: "https://example.com"}, "$ fetch https://example.com\n"},
		{LogEntry{Kind: LogStdout, Data: []byte("raw")}, "raw"},
		{LogEntry{Kind: LogEnd, ExitCode: 1}, ""},
	}
	for _, tc := range cases {
		if got := formatters[tc.entry.Kind](tc.entry); got != tc.want {
			t.Errorf("format %s = %q, want %q", tc.entry.Kind, got, tc.want)
		}
	}
}

func TestOptionsLog(t *testing.T) {
	var buf bytes.Buffer
	opts := Options{LogOutput: &buf}
	opts.log(LogEntry{Kind: LogStdout, Data: []byte("hidden"), Verbose: false})
	opts.log(LogEntry{Kind: LogStderr, Data: []byte("shown\n"), Verbose: true})
	if got := buf.String(); got != "shown\n" {
		t.Fatalf("log output = %q, want %q", got, "shown\n")
	}

	buf.Reset()
	opts = opts.apply(WithFormatter(LogStderr, func(e LogEntry) string {
		return "[err] " + strings.TrimSpace(string(e.Data)) + "\n"
	}))
	opts.log(LogEntry{Kind: LogStderr, Data: []byte("oops\n"), Verbose: true})
	if got := buf.String(); got != "[err] oops\n" {
		t.Fatalf("formatted output = %q", got)
	}

	var entries []LogEntry
	opts = opts.apply(WithLogger(func(e LogEntry) { entries = append(entries, e) }))
	opts.log(LogEntry{Kind: LogEnd, Err: errors.New("x")})
	if len(entries) != 1 || entries[0].Kind != LogEnd {
		t.Fatalf("logger received %+v", entries)
	}
}
