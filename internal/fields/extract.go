package fields

import "strings"

const (
	commentOpen  = "<!--"
	commentClose = "-->"
	imageOpen    = "!["
)

// marker is one field comment located in a document.
type marker struct {
	start int // offset of "<!--"
	end   int // offset just past "-->"
	name  string
}

// scanMarkers walks the document once and returns every HTML comment that
// carries a field="" attribute, in document order. An unterminated comment
// ends the scan.
func scanMarkers(md string) []marker {
	var out []marker
	pos := 0
	for pos < len(md) {
		i := strings.Index(md[pos:], commentOpen)
		if i < 0 {
			break
		}
		open := pos + i
		bodyStart := open + len(commentOpen)
		j := strings.Index(md[bodyStart:], commentClose)
		if j < 0 {
			break
		}
		bodyEnd := bodyStart + j
		end := bodyEnd + len(commentClose)
		if name, ok := fieldAttr(md[bodyStart:bodyEnd]); ok {
			out = append(out, marker{start: open, end: end, name: name})
		}
		pos = end
	}
	return out
}

// fieldAttr finds field="name" (or field='name') inside a comment body.
// The attribute name is matched case-insensitively and may sit anywhere
// among other attributes.
func fieldAttr(body string) (string, bool) {
	lower := asciiLower(body)
	from := 0
	for {
		i := strings.Index(lower[from:], "field")
		if i < 0 {
			return "", false
		}
		at := from + i
		from = at + len("field")
		if at > 0 && isAttrChar(body[at-1]) {
			continue
		}
		p := skipSpace(body, from)
		if p >= len(body) || body[p] != '=' {
			continue
		}
		p = skipSpace(body, p+1)
		if p >= len(body) || (body[p] != '"' && body[p] != '\'') {
			continue
		}
		quote := body[p]
		closeAt := strings.IndexByte(body[p+1:], quote)
		if closeAt < 0 {
			return "", false
		}
		return body[p+1 : p+1+closeAt], true
	}
}

// region returns the raw text following markers[idx], bounded by the
// nearest of the next marker, the next image token, or end of text.
func region(md string, markers []marker, idx int) string {
	from := markers[idx].end
	to := len(md)
	if idx+1 < len(markers) {
		to = markers[idx+1].start
	}
	if img := strings.Index(md[from:to], imageOpen); img >= 0 {
		to = from + img
	}
	return md[from:to]
}

// Extract returns the cleaned text following the first marker named name,
// or "" if there is none. The name is matched case-insensitively.
func Extract(md, name string) string {
	markers := scanMarkers(md)
	for i, m := range markers {
		if strings.EqualFold(m.name, name) {
			return Clean(region(md, markers, i))
		}
	}
	return ""
}

// ExtractAll returns the cleaned text following every marker named name,
// in document order, skipping occurrences that clean to "".
func ExtractAll(md, name string) []string {
	markers := scanMarkers(md)
	var out []string
	for i, m := range markers {
		if !strings.EqualFold(m.name, name) {
			continue
		}
		if v := Clean(region(md, markers, i)); v != "" {
			out = append(out, v)
		}
	}
	return out
}

// ExtractSet builds a Set from model output. Fields the output does not
// provide are Empty, never Unknown.
func ExtractSet(md string) Set {
	var s Set
	multi := make(map[string][]string)
	for i, d := range definitions {
		var text string
		if d.Slot > 0 {
			all, ok := multi[d.Marker]
			if !ok {
				all = ExtractAll(md, d.Marker)
				multi[d.Marker] = all
			}
			if d.Slot <= len(all) {
				text = all[d.Slot-1]
			}
		} else {
			text = Extract(md, d.Marker)
		}
		if text == "" {
			s.values[i] = Empty
		} else {
			s.values[i] = Text(text)
		}
	}
	return s
}

// asciiLower lower-cases ASCII letters only so byte offsets are preserved.
func asciiLower(s string) string {
	b := []byte(s)
	for i, c := range b {
		if 'A' <= c && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}
	return string(b)
}

func isAttrChar(c byte) bool {
	return c == '-' || c == '_' || c == ':' ||
		('a' <= c && c <= 'z') || ('A' <= c && c <= 'Z') || ('0' <= c && c <= '9')
}

func skipSpace(s string, i int) int {
	for i < len(s) && (s[i] == ' ' || s[i] == '\t' || s[i] == '\n' || s[i] == '\r') {
		i++
	}
	return i
}
