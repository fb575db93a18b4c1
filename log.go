package shx

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"
)

// LogKind tags a log entry.
type LogKind string

const (
	LogCmd    LogKind = "cmd"
	LogStdout LogKind = "stdout"
	LogStderr LogKind = "stderr"
	LogEnd    LogKind = "end"
	LogCd     LogKind = "cd"
	LogFetch  LogKind = "fetch"
	LogRetry  LogKind = "retry"
	LogKill   LogKind = "kill"
	LogCustom LogKind = "custom"
)

// LogEntry is one structured event. Which fields are set depends on Kind.
type LogEntry struct {
	Kind    LogKind
	Verbose bool
	ID      string

	// cmd
	Cmd string
	Cwd string
	// stdout, stderr, custom
	Data []byte
	// end
	ExitCode int
	Signal   string
	Duration time.Duration
	Err      error
	// cd
	Dir string
	// fetch
	URL  string
	Init any
	// retry
	Attempt int
	Total   int
	Delay   time.Duration
	// kill
	Pid int
}

// LogFunc receives every entry, verbose or not.
type LogFunc func(LogEntry)

// Formatter renders an entry for the default logger.
type Formatter func(LogEntry) string

var (
	logMu sync.Mutex

	cmdColor     = color.New(color.FgHiGreen)
	syntaxColor  = color.New(color.FgRed)
	quoteColor   = color.New(color.FgHiYellow)
	reservedWord = color.New(color.FgHiCyan)
	failBadge    = color.New(color.BgRed, color.FgWhite)
	resetColor   = color.New(color.Reset)
)

var formatters = map[LogKind]Formatter{
	LogCmd:    func(e LogEntry) string { return formatCmd(e.Cmd) },
	LogStdout: func(e LogEntry) string { return string(e.Data) },
	LogStderr: func(e LogEntry) string { return string(e.Data) },
	LogCustom: func(e LogEntry) string { return string(e.Data) },
	LogFetch: func(e LogEntry) string {
		init := ""
		if e.Init != nil {
			init = fmt.Sprintf(" %+v", e.Init)
		}
		return fmt.Sprintf("$ %s %s%s\n", cmdColor.Sprint("fetch"), e.URL, init)
	},
	LogCd: func(e LogEntry) string {
		return fmt.Sprintf("$ %s %s\n", cmdColor.Sprint("cd"), e.Dir)
	},
	LogRetry: func(e LogEntry) string {
		attempt := fmt.Sprintf("Attempt: %d", e.Attempt)
		if e.Total > 0 {
			attempt += fmt.Sprintf("/%d", e.Total)
		}
		delay := ""
		if e.Delay > 0 {
			delay = fmt.Sprintf("; next in %dms", e.Delay.Milliseconds())
		}
		return fmt.Sprintf("%s %s%s\n", failBadge.Sprint(" FAIL "), attempt, delay)
	},
	LogKill: func(e LogEntry) string {
		return fmt.Sprintf("$ %s -%s %d\n", cmdColor.Sprint("kill"), strings.TrimPrefix(e.Signal, "SIG"), e.Pid)
	},
	LogEnd: func(LogEntry) string { return "" },
}

// log hands e to the configured LogFunc, or renders verbose entries to
// LogOutput (stderr by default).
func (o Options) log(e LogEntry) {
	if o.Log != nil {
		o.Log(e)
		return
	}
	if !e.Verbose {
		return
	}
	format, ok := o.Formatters[e.Kind]
	if !ok || format == nil {
		format = formatters[e.Kind]
	}
	if format == nil {
		return
	}
	text := format(e)
	if text == "" {
		return
	}
	var w io.Writer = os.Stderr
	if o.LogOutput != nil {
		w = o.LogOutput
	}
	logMu.Lock()
	defer logMu.Unlock()
	_, _ = io.WriteString(w, text)
}

const (
	cmdSyntax = "()[]{}<>;:+|&="
	cmdBreak  = "|&;><"
)

var reservedWords = map[string]bool{
	"if": true, "then": true, "else": true, "elif": true, "fi": true,
	"case": true, "esac": true, "for": true, "select": true, "while": true,
	"until": true, "do": true, "done": true, "in": true, "EOF": true,
}

// formatCmd echoes a command line with light syntax highlighting: the
// command word in green, operators in red, quoted text and $ in yellow,
// reserved words in cyan. Continuation lines are prefixed with "> ".
func formatCmd(cmd string) string {
	var (
		out   strings.Builder
		buf   strings.Builder
		quote rune
		mode  string
		pos   = 0
	)
	const first = 1 << 30

	out.WriteString("$ ")
	capture := func() {
		text := buf.String()
		word := strings.TrimSpace(text)
		switch {
		case word == "":
			out.WriteString(text)
		case mode == "syntax":
			pos++
			if strings.Contains(cmdBreak, word) {
				pos = 0
			}
			out.WriteString(syntaxColor.Sprint(text))
		case mode == "quote" || mode == "dollar":
			pos++
			out.WriteString(quoteColor.Sprint(text))
		case reservedWords[word]:
			pos++
			out.WriteString(reservedWord.Sprint(text))
		default:
			pos++
			if pos == 1 {
				out.WriteString(cmdColor.Sprint(text))
				pos = first
			} else {
				out.WriteString(text)
			}
		}
		mode = ""
		buf.Reset()
	}

	for _, c := range cmd {
		if quote != 0 {
			buf.WriteRune(c)
			if c == quote {
				capture()
				quote = 0
			}
			continue
		}
		switch {
		case c == '$':
			capture()
			mode = "dollar"
			buf.WriteRune(c)
			capture()
		case c == '\'' || c == '"':
			capture()
			mode = "quote"
			quote = c
			buf.WriteRune(c)
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			capture()
			buf.WriteRune(c)
		case strings.ContainsRune(cmdSyntax, c):
			isEnv := c == '=' && pos == 0
			if isEnv {
				pos = 1
			}
			capture()
			mode = "syntax"
			buf.WriteRune(c)
			capture()
			if isEnv {
				pos = -1
			}
		default:
			buf.WriteRune(c)
		}
	}
	capture()
	return strings.ReplaceAll(out.String(), "\n", resetColor.Sprint("\n> ")) + "\n"
}
