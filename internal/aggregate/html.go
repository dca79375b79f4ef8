package aggregate

import (
	"strings"

	"golang.org/x/net/html"
)

// PlainText reduces chat content that carries HTML markup to its text.
// Content without markup is returned unchanged.
func PlainText(s string) string {
	if !strings.ContainsRune(s, '<') {
		return s
	}

	z := html.NewTokenizer(strings.NewReader(s))
	var b strings.Builder
	sawTag := false
	skip := 0
	for {
		switch z.Next() {
		case html.ErrorToken:
			if !sawTag {
				return s
			}
			return strings.Join(strings.Fields(b.String()), " ")
		case html.StartTagToken:
			sawTag = true
			name, _ := z.TagName()
			switch string(name) {
			case "script", "style":
				skip++
			case "br", "p", "div", "li":
				b.WriteByte(' ')
			}
		case html.EndTagToken:
			sawTag = true
			name, _ := z.TagName()
			if n := string(name); (n == "script" || n == "style") && skip > 0 {
				skip--
			}
		case html.SelfClosingTagToken:
			sawTag = true
			b.WriteByte(' ')
		case html.TextToken:
			if skip == 0 {
				b.Write(z.Text())
			}
		}
	}
}
