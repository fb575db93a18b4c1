package shx

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestLineSplitterHoldsPartialLine(t *testing.T) {
	s := newLineSplitter(nil)
	var got []string
	for _, chunk := range []string{"fi", "rst\nsec", "ond\r\nthi", "rd"} {
		got = append(got, s.push([]byte(chunk))...)
	}
	if diff := cmp.Diff([]string{"first", "second"}, got); diff != "" {
		t.Fatalf("push() mismatch (-want +got):\n%s", diff)
	}
	rest, ok := s.flush()
	if !ok || rest != "third" {
		t.Fatalf("flush() = %q, %v, want third, true", rest, ok)
	}
	if _, ok := s.flush(); ok {
		t.Fatalf("second flush() returned a line")
	}
}

func TestSplitLinesEmpty(t *testing.T) {
	if got := splitLines(nil, nil); len(got) != 0 {
		t.Fatalf("splitLines(nil) = %q, want none", got)
	}
	if diff := cmp.Diff([]string{""}, splitLines([][]byte{[]byte("\n")}, nil)); diff != "" {
		t.Fatalf("splitLines(newline) mismatch (-want +got):\n%s", diff)
	}
}
