package shx

import (
	"regexp"
	"strings"
)

var (
	posixSafe      = regexp.MustCompile(`^[\w/.\-@:=]+$`)
	powershellSafe = regexp.MustCompile(`^[\w/.\-]+$`)

	ansiCEscaper = strings.NewReplacer(
		`\`, `\\`,
		`'`, `\'`,
		"\f", `\f`,
		"\n", `\n`,
		"\r", `\r`,
		"\t", `\t`,
		"\v", `\v`,
		"\x00", `\0`,
	)
)

// Quote makes arg verbatim-safe for bash-like shells using ANSI-C quoting.
// Values made only of word characters and / . - @ : = pass through.
func Quote(arg string) string {
	if arg == "" {
		return `$''`
	}
	if posixSafe.MatchString(arg) {
		return arg
	}
	return `$'` + ansiCEscaper.Replace(arg) + `'`
}

// QuotePowerShell makes arg verbatim-safe for PowerShell.
func QuotePowerShell(arg string) string {
	if arg == "" {
		return `''`
	}
	if powershellSafe.MatchString(arg) {
		return arg
	}
	return `'` + strings.ReplaceAll(arg, `'`, `''`) + `'`
}
