package cli

import (
	"regexp"
	"strings"
)

var (
	lineBreakRe = regexp.MustCompile(`\r?\n`)
	indentRe    = regexp.MustCompile(`^(  +|\t)`)
	fenceRe     = regexp.MustCompile("^(?P<fence>`{3,20}|~{3,20})(?:(?P<shell>sh|shell|bash)|.*)$")
)

type mdState int

const (
	mdRoot mdState = iota
	mdIndented
	mdShell
	mdOther
)

// transformMarkdown keeps the shell parts of a markdown document: fenced
// sh, shell and bash blocks plus indented blocks that follow a blank line.
// Every other line becomes empty so line numbers still match the document.
func transformMarkdown(doc string) string {
	var (
		out       []string
		state     = mdRoot
		fence     string
		prevEmpty = true
	)
	root := func(line string) {
		if indentRe.MatchString(line) && prevEmpty {
			out = append(out, line)
			state = mdIndented
			return
		}
		out = append(out, "")
		m := fenceRe.FindStringSubmatch(line)
		if m == nil {
			prevEmpty = line == ""
			return
		}
		fence = m[fenceRe.SubexpIndex("fence")]
		state = mdOther
		if m[fenceRe.SubexpIndex("shell")] != "" {
			state = mdShell
		}
	}

	for _, line := range lineBreakRe.Split(doc, -1) {
		switch state {
		case mdRoot:
			root(line)
		case mdIndented:
			switch {
			case line == "":
				out = append(out, "")
			case indentRe.MatchString(line):
				out = append(out, line)
			default:
				state, prevEmpty = mdRoot, false
				root(line)
			}
		case mdShell:
			if line == fence {
				out = append(out, "")
				state = mdRoot
				continue
			}
			out = append(out, line)
		case mdOther:
			if line == fence {
				state = mdRoot
			}
			out = append(out, "")
		}
	}
	return strings.Join(out, "\n")
}
