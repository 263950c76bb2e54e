package render

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/mattn/go-runewidth"

	"github.com/Zuo-Peng/guruchat/internal/transcript"
)

const (
	colorReset   = "\033[0m"
	colorUser    = "\033[1;34m" // bold blue
	colorPersona = "\033[1;32m" // bold green
	colorSystem  = "\033[1;33m" // bold yellow
	colorDim     = "\033[2m"
	colorBoldRed = "\033[1;31m" // bold red for keyword highlights
)

type Options struct {
	Title string // header line, omitted when empty
	Width int    // wrap width (0 = no wrap)
	Query string // terms to highlight
	Plain bool   // no ANSI codes
}

// highlightKeywords wraps case-insensitive matches of query terms in bold red ANSI codes.
func highlightKeywords(text, query string) string {
	terms := strings.Fields(query)
	for _, term := range terms {
		lower := strings.ToLower(term)
		i := 0
		for i < len(text) {
			idx := strings.Index(strings.ToLower(text[i:]), lower)
			if idx < 0 {
				break
			}
			pos := i + idx
			orig := text[pos : pos+len(term)]
			replacement := colorBoldRed + orig + colorReset
			text = text[:pos] + replacement + text[pos+len(term):]
			i = pos + len(replacement)
		}
	}
	return text
}

// indentLines prepends each line of text with the given prefix.
func indentLines(text, prefix string) string {
	lines := strings.Split(text, "\n")
	for i, l := range lines {
		lines[i] = prefix + l
	}
	return strings.Join(lines, "\n")
}

// wrapLine breaks a single line into multiple lines that fit within maxWidth
// visible columns, correctly skipping ANSI escape sequences when measuring width.
func wrapLine(line string, maxWidth int) []string {
	if maxWidth <= 0 {
		return []string{line}
	}

	var result []string
	var cur strings.Builder
	visW := 0

	i := 0
	for i < len(line) {
		// check for ANSI escape sequence: ESC[ ... m
		if i+1 < len(line) && line[i] == '\033' && line[i+1] == '[' {
			j := i + 2
			for j < len(line) && line[j] != 'm' {
				j++
			}
			if j < len(line) {
				j++ // include 'm'
			}
			cur.WriteString(line[i:j])
			i = j
			continue
		}

		r, size := utf8.DecodeRuneInString(line[i:])
		rw := runewidth.RuneWidth(r)

		if visW+rw > maxWidth {
			result = append(result, cur.String())
			cur.Reset()
			visW = 0
		}

		cur.WriteRune(r)
		visW += rw
		i += size
	}

	if cur.Len() > 0 {
		result = append(result, cur.String())
	}

	if len(result) == 0 {
		return []string{""}
	}
	return result
}

// Label returns the author line shown above a message.
func Label(m transcript.Message, plain bool) string {
	name := m.AuthorName
	if name == "" {
		name = strings.ToUpper(string(m.Role))
	}
	if plain {
		return name + " >"
	}
	color := colorPersona
	switch m.Role {
	case transcript.RoleUser:
		color = colorUser
	case transcript.RoleSystem:
		color = colorSystem
	}
	return fmt.Sprintf("%s%s >%s", color, name, colorReset)
}

// Transcript renders msgs in order as labelled, indented blocks.
func Transcript(msgs []transcript.Message, opts Options) string {
	var b strings.Builder
	writeLine := func(s string) {
		for _, wl := range wrapLine(s, opts.Width) {
			b.WriteString(wl)
			b.WriteString("\n")
		}
	}
	dim := func(s string) string {
		if opts.Plain {
			return s
		}
		return colorDim + s + colorReset
	}

	if opts.Title != "" {
		writeLine(dim("--- " + opts.Title + " ---"))
	}
	if len(msgs) == 0 {
		writeLine(dim("(empty session)"))
		return b.String()
	}

	for _, m := range msgs {
		writeLine(Label(m, opts.Plain))

		text := m.Text
		if opts.Query != "" && !opts.Plain {
			text = highlightKeywords(text, opts.Query)
		}
		for _, tl := range strings.Split(indentLines(text, "  "), "\n") {
			writeLine(tl)
		}
		writeLine("") // blank line after message
	}
	return b.String()
}
