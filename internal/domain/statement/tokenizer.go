package statement

import (
	"html"
	"strings"
)

type tokenKind int

const (
	tokenOpen tokenKind = iota
	tokenClose
)

// token is one tag of the SGML stream. Open tags carry the text that follows
// them up to the next '<' or line break. Close tags carry no value.
type token struct {
	kind  tokenKind
	name  string
	value string
}

// tokenizer walks the buffer once, left to right.
type tokenizer struct {
	src string
	pos int
}

func newTokenizer(src string) *tokenizer {
	return &tokenizer{src: src}
}

// next returns the next tag, or false at end of input. Text outside tags
// (the OFX header block, stray whitespace) is skipped.
func (t *tokenizer) next() (token, bool) {
	for t.pos < len(t.src) {
		lt := strings.IndexByte(t.src[t.pos:], '<')
		if lt < 0 {
			t.pos = len(t.src)
			return token{}, false
		}
		start := t.pos + lt + 1
		gt := strings.IndexByte(t.src[start:], '>')
		if gt < 0 {
			t.pos = len(t.src)
			return token{}, false
		}
		raw := strings.TrimSpace(t.src[start : start+gt])
		t.pos = start + gt + 1

		if raw == "" || raw[0] == '?' || raw[0] == '!' {
			continue
		}
		if raw[0] == '/' {
			return token{kind: tokenClose, name: tagName(raw[1:])}, true
		}
		return token{kind: tokenOpen, name: tagName(raw), value: t.value()}, true
	}
	return token{}, false
}

// value consumes the text after an open tag up to '<' or a line break.
func (t *tokenizer) value() string {
	rest := t.src[t.pos:]
	end := strings.IndexAny(rest, "<\r\n")
	if end < 0 {
		end = len(rest)
	}
	t.pos += end
	return html.UnescapeString(strings.TrimSpace(rest[:end]))
}

// tagName drops anything after the first space (XML-style attributes) and
// upper-cases the rest.
func tagName(raw string) string {
	if i := strings.IndexAny(raw, " \t"); i >= 0 {
		raw = raw[:i]
	}
	return strings.ToUpper(strings.TrimSpace(raw))
}
