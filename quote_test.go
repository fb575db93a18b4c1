package shx

import (
	"os/exec"
	"testing"
)

func TestQuote(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"", `$''`},
		{"plain", "plain"},
		{"a/b.c-d_e@f:g=h", "a/b.c-d_e@f:g=h"},
		{"hello world", `$'hello world'`},
		{"it's", `$'it\'s'`},
		{`back\slash`, `$'back\\slash'`},
		{"line\nbreak\ttab", `$'line\nbreak\ttab'`},
		{"$HOME", `$'$HOME'`},
	}
	for _, tc := range cases {
		if got := Quote(tc.in); got != tc.want {
			t.Errorf("Quote(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestQuotePowerShell(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"", `''`},
		{"C/dir/file.txt", "C/dir/file.txt"},
		{"it's here", `'it''s here'`},
		{"a:b", `'a:b'`},
	}
	for _, tc := range cases {
		if got := QuotePowerShell(tc.in); got != tc.want {
			t.Errorf("QuotePowerShell(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestQuoteRoundTripsThroughBash(t *testing.T) {
	bash, err := exec.LookPath("bash")
	if err != nil {
		t.Skip("bash is not available")
	}
	for _, arg := range []string{"", "simple", "two words", `q"uo'te`, `a\b\\c`, "tab\tand\nnewline", "$(echo nope) `x` ;|&"} {
		out, err := exec.Command(bash, "-c", "printf %s "+Quote(arg)).Output()
		if err != nil {
			t.Fatalf("bash failed for %q: %v", arg, err)
		}
		if string(out) != arg {
			t.Errorf("bash printed %q, want %q", out, arg)
		}
	}
}
