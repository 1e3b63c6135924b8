// Package fields defines the book front-matter fields a prompt is expected to
// tag in its output, extracts them from model-generated markdown, and scores
// extracted values against human-labelled ones.
package fields

import (
	"strings"
	"unicode"
)

// Definition describes one extractable attribute.
type Definition struct {
	// Key is the canonical identifier used in storage and comparison.
	Key string `json:"key"`
	// Marker is the field="" name searched for in model output.
	Marker string `json:"marker"`
	// Label is the human readable name.
	Label string `json:"label"`
	// Slot is the 1-based occurrence of Marker this definition receives
	// when several definitions share a marker. Zero otherwise.
	Slot int `json:"slot,omitempty"`
}

// definitions is the closed, ordered field table. Order is the default
// presentation order and the tie-break when sorting comparison rows.
var definitions = [...]Definition{
	{Key: "title_l1", Marker: "bookTitle", Label: "Title (Language 1)", Slot: 1},
	{Key: "title_l2", Marker: "bookTitle", Label: "Title (Language 2)", Slot: 2},
	{Key: "subtitle"},
	{Key: "author"},
	{Key: "illustrator"},
	{Key: "translator"},
	{Key: "publisher"},
	{Key: "publication_year", Marker: "publicationYear"},
	{Key: "edition"},
	{Key: "isbn", Label: "ISBN"},
	{Key: "series"},
	{Key: "copyright"},
	{Key: "license_url", Marker: "licenseUrl", Label: "License URL"},
	{Key: "license_description", Marker: "licenseDescription"},
	{Key: "language"},
}

// Count is the number of defined fields.
const Count = len(definitions)

var keyIndex = make(map[string]int, Count)

func init() {
	for i := range definitions {
		d := &definitions[i]
		if d.Marker == "" {
			d.Marker = d.Key
		}
		if d.Label == "" {
			d.Label = labelFromKey(d.Key)
		}
		if _, dup := keyIndex[d.Key]; dup {
			panic("fields: duplicate key " + d.Key)
		}
		keyIndex[d.Key] = i
	}
}

// All returns the field table in definition order.
func All() []Definition {
	out := make([]Definition, Count)
	copy(out, definitions[:])
	return out
}

// Lookup returns the definition for key.
func Lookup(key string) (Definition, bool) {
	i, ok := keyIndex[key]
	if !ok {
		return Definition{}, false
	}
	return definitions[i], true
}

// Keys returns every field key in definition order.
func Keys() []string {
	keys := make([]string, Count)
	for i, d := range definitions {
		keys[i] = d.Key
	}
	return keys
}

// labelFromKey turns "publication_year" into "Publication Year".
func labelFromKey(key string) string {
	words := strings.Split(key, "_")
	for i, w := range words {
		if w == "" {
			continue
		}
		r := []rune(w)
		r[0] = unicode.ToUpper(r[0])
		words[i] = string(r)
	}
	return strings.Join(words, " ")
}
