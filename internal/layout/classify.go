package layout

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Style is the rendering style of one body line.
type Style int

const (
	Body Style = iota
	Heading
	Bullet
)

func (s Style) String() string {
	switch s {
	case Heading:
		return "heading"
	case Bullet:
		return "bullet"
	}
	return "body"
}

// Classify returns the style of a stripped body line. Rules apply in order:
// a first token of the form <digits>.<anything> is a heading; a line opening
// with "-", "*" or "▶" is a bullet unless the marker is a sign glued to a
// number ("-3 items"); everything else is body.
func Classify(line string) Style {
	line = strings.TrimSpace(line)
	if line == "" {
		return Body
	}
	if isNumberedToken(firstToken(line)) {
		return Heading
	}

	r, size := utf8.DecodeRuneInString(line)
	switch r {
	case '▶':
		return Bullet
	case '-', '*':
		next, _ := utf8.DecodeRuneInString(line[size:])
		if unicode.IsDigit(next) {
			return Body
		}
		return Bullet
	}
	return Body
}

func firstToken(line string) string {
	if i := strings.IndexFunc(line, unicode.IsSpace); i >= 0 {
		return line[:i]
	}
	return line
}

func isNumberedToken(tok string) bool {
	dot := strings.IndexByte(tok, '.')
	if dot <= 0 {
		return false
	}
	for _, r := range tok[:dot] {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// isSeparator reports markdown lines the engine skips entirely.
func isSeparator(line string) bool {
	return strings.HasPrefix(line, "#") || strings.HasPrefix(line, "---")
}
