package shx

import "regexp"

var defaultDelimiter = regexp.MustCompile(`\r?\n`)

// lineSplitter cuts a chunked byte stream into lines, holding back the
// trailing partial line until more data or a flush arrives.
type lineSplitter struct {
	delim *regexp.Regexp
	memo  string
}

func newLineSplitter(delim *regexp.Regexp) *lineSplitter {
	if delim == nil {
		delim = defaultDelimiter
	}
	return &lineSplitter{delim: delim}
}

func (s *lineSplitter) push(chunk []byte) []string {
	parts := s.delim.Split(s.memo+string(chunk), -1)
	s.memo = parts[len(parts)-1]
	return parts[:len(parts)-1]
}

func (s *lineSplitter) flush() (string, bool) {
	rest := s.memo
	s.memo = ""
	return rest, rest != ""
}

func splitLines(chunks [][]byte, delim *regexp.Regexp) []string {
	s := newLineSplitter(delim)
	var lines []string
	for _, chunk := range chunks {
		lines = append(lines, s.push(chunk)...)
	}
	if rest, ok := s.flush(); ok {
		lines = append(lines, rest)
	}
	return lines
}
