package fields

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Clean strips markdown formatting from an extracted value: header markers,
// emphasis, strikethrough and inline-code delimiters, and link syntax
// (keeping the link text). The result is trimmed.
//
// Every rewrite only removes bytes, so Clean repeats it until nothing
// changes. That makes Clean idempotent even when stripping one construct
// exposes another.
func Clean(s string) string {
	for {
		next := cleanPass(s)
		if next == s {
			return next
		}
		s = next
	}
}

func cleanPass(s string) string {
	s = stripHeaders(s)
	s = stripLinks(s)
	s = stripDelimiters(s)
	return strings.TrimSpace(s)
}

// stripHeaders removes ATX header markers ("## ") at the start of lines.
func stripHeaders(s string) string {
	if !strings.Contains(s, "#") {
		return s
	}
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		trimmed := strings.TrimLeft(line, " \t")
		n := 0
		for n < len(trimmed) && trimmed[n] == '#' {
			n++
		}
		if n == 0 {
			continue
		}
		if n < len(trimmed) && trimmed[n] != ' ' && trimmed[n] != '\t' {
			continue
		}
		lines[i] = strings.TrimLeft(trimmed[n:], " \t")
	}
	return strings.Join(lines, "\n")
}

// stripLinks replaces [text](url) and [text][ref] with text. A '!' directly
// before an inline link (an image) is dropped with it.
func stripLinks(s string) string {
	if !strings.Contains(s, "[") {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	i := 0
	for i < len(s) {
		if s[i] != '[' {
			b.WriteByte(s[i])
			i++
			continue
		}
		text, end, ok := parseLink(s, i)
		if !ok {
			b.WriteByte(s[i])
			i++
			continue
		}
		out := b.String()
		if strings.HasSuffix(out, "!") {
			b.Reset()
			b.WriteString(out[:len(out)-1])
		}
		b.WriteString(text)
		i = end
	}
	return b.String()
}

// parseLink parses a link starting at s[i] == '['. It returns the link text
// and the offset just past the link.
func parseLink(s string, i int) (string, int, bool) {
	closeText := strings.IndexByte(s[i+1:], ']')
	if closeText < 0 {
		return "", 0, false
	}
	textEnd := i + 1 + closeText
	text := s[i+1 : textEnd]
	if strings.Contains(text, "[") || textEnd+1 >= len(s) {
		return "", 0, false
	}
	var closer byte
	switch s[textEnd+1] {
	case '(':
		closer = ')'
	case '[':
		closer = ']'
	default:
		return "", 0, false
	}
	targetStart := textEnd + 2
	closeTarget := strings.IndexByte(s[targetStart:], closer)
	if closeTarget < 0 {
		return "", 0, false
	}
	return text, targetStart + closeTarget + 1, true
}

// stripDelimiters removes '*', '`' and "~~" everywhere, and runs of '_'
// that touch a word boundary. Intraword underscores (snake_case) stay, and
// inside a URL every underscore run stays except one wrapping the URL.
func stripDelimiters(s string) string {
	if !strings.ContainsAny(s, "*`~_") {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	urlStart, urlEnd := 0, -1
	i := 0
	for i < len(s) {
		if i > urlEnd && (i == 0 || isSpace(s[i-1])) {
			end := i + tokenLen(s[i:])
			if isURL(s[i:end]) {
				urlStart, urlEnd = i, end
			}
		}
		c := s[i]
		switch {
		case c == '*' || c == '`':
			i++
		case c == '~' && i+1 < len(s) && s[i+1] == '~':
			i += 2
		case c == '_':
			j := i
			for j < len(s) && s[j] == '_' {
				j++
			}
			prev, _ := utf8.DecodeLastRuneInString(s[:i])
			next, _ := utf8.DecodeRuneInString(s[j:])
			intraword := i > 0 && j < len(s) && isWordRune(prev) && isWordRune(next)
			inURL := i > urlStart && j < urlEnd
			if intraword || inURL {
				b.WriteString(s[i:j])
			}
			i = j
		default:
			b.WriteByte(c)
			i++
		}
	}
	return b.String()
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}

func tokenLen(s string) int {
	if n := strings.IndexAny(s, " \t\n\r"); n >= 0 {
		return n
	}
	return len(s)
}

// isURL reports whether a whitespace-delimited token is a URL, ignoring
// emphasis wrapped around it.
func isURL(tok string) bool {
	tok = strings.TrimLeft(tok, "_*`~")
	return strings.Contains(tok, "://") || strings.HasPrefix(tok, "www.")
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}
