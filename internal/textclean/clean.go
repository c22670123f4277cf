// Package textclean normalizes raw article text before it enters storage or
// the recommendation corpus. Feed content frequently arrives with embedded
// HTML markup, entity escapes, and ragged whitespace; everything here is
// best-effort and never returns an error.
package textclean

import (
	"html"
	"strings"
	"unicode"

	xhtml "golang.org/x/net/html"
)

// StripHTML removes markup from text and returns the visible text content.
// Script and style bodies are dropped entirely. Plain text without markup
// passes through unchanged (aside from entity unescaping).
func StripHTML(text string) string {
	if text == "" {
		return ""
	}
	if !strings.ContainsAny(text, "<&") {
		return text
	}

	var b strings.Builder
	skip := 0 // depth inside script/style elements

	tok := xhtml.NewTokenizer(strings.NewReader(text))
	for {
		switch tok.Next() {
		case xhtml.ErrorToken:
			// io.EOF or malformed markup: return whatever was collected.
			return b.String()
		case xhtml.StartTagToken:
			name, _ := tok.TagName()
			if isRawTextTag(string(name)) {
				skip++
			} else if isBlockTag(string(name)) {
				b.WriteByte(' ')
			}
		case xhtml.EndTagToken:
			name, _ := tok.TagName()
			if isRawTextTag(string(name)) && skip > 0 {
				skip--
			}
		case xhtml.TextToken:
			if skip == 0 {
				b.Write(tok.Text())
			}
		}
	}
}

func isRawTextTag(name string) bool {
	return name == "script" || name == "style"
}

// isBlockTag reports whether a tag implies a word boundary, so that
// "<p>one</p><p>two</p>" doesn't collapse into "onetwo".
func isBlockTag(name string) bool {
	switch name {
	case "p", "div", "br", "li", "tr", "td", "h1", "h2", "h3", "h4", "h5", "h6":
		return true
	}
	return false
}

// NormalizeWhitespace collapses runs of whitespace into single spaces and
// trims the result.
func NormalizeWhitespace(text string) string {
	if text == "" {
		return ""
	}
	var b strings.Builder
	b.Grow(len(text))
	space := false
	for _, r := range text {
		if unicode.IsSpace(r) {
			space = true
			continue
		}
		if space && b.Len() > 0 {
			b.WriteByte(' ')
		}
		space = false
		b.WriteRune(r)
	}
	return b.String()
}

// Clean runs the full pipeline: strip markup, unescape entities, normalize
// whitespace.
func Clean(text string) string {
	if text == "" {
		return ""
	}
	text = StripHTML(text)
	text = html.UnescapeString(text)
	return NormalizeWhitespace(text)
}
