package fields

import (
	"bytes"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// EmptySentinel is the stored form of a field that was evaluated and found
// to have no content.
const EmptySentinel = "empty"

// ErrUnknownKey is returned when a key is not in the field table.
var ErrUnknownKey = errors.New("unknown field key")

// Kind tags a Value.
type Kind uint8

const (
	// KindUnknown means the field was never evaluated (stored as NULL).
	KindUnknown Kind = iota
	// KindEmpty means the field was evaluated and nothing was found.
	KindEmpty
	// KindText carries content.
	KindText
)

// Value is a single field value: Unknown, Empty, or Text.
// The zero value is Unknown.
type Value struct {
	kind Kind
	text string
}

var (
	// Unknown is the never-evaluated value.
	Unknown = Value{}
	// Empty is the evaluated-but-nothing-found value.
	Empty = Value{kind: KindEmpty}
)

// Text returns a content value. The text is stored as given.
func Text(s string) Value {
	return Value{kind: KindText, text: s}
}

// FromString maps the stored string form to a Value: the sentinel becomes
// Empty, everything else Text.
func FromString(s string) Value {
	if s == EmptySentinel {
		return Empty
	}
	return Text(s)
}

// FromNullable maps a nullable stored string to a Value.
func FromNullable(s *string) Value {
	if s == nil {
		return Unknown
	}
	return FromString(*s)
}

// Kind returns the value's tag.
func (v Value) Kind() Kind { return v.kind }

// IsUnknown reports whether the field was never evaluated.
func (v Value) IsUnknown() bool { return v.kind == KindUnknown }

// IsEmpty reports whether the value is the Empty sentinel.
func (v Value) IsEmpty() bool { return v.kind == KindEmpty }

// IsPresent reports whether the value carries non-blank text.
func (v Value) IsPresent() bool {
	return v.kind == KindText && strings.TrimSpace(v.text) != ""
}

// Text returns the content for Text values and "" otherwise.
func (v Value) Text() string {
	if v.kind != KindText {
		return ""
	}
	return v.text
}

// Stored returns the stored string form and false for Unknown.
func (v Value) Stored() (string, bool) {
	switch v.kind {
	case KindEmpty:
		return EmptySentinel, true
	case KindText:
		return v.text, true
	default:
		return "", false
	}
}

// Nullable returns the stored form as a pointer, nil for Unknown.
func (v Value) Nullable() *string {
	s, ok := v.Stored()
	if !ok {
		return nil
	}
	return &s
}

// Normalized is the key used for case and whitespace insensitive equality.
// Unknown normalizes to "", Empty to the sentinel.
func (v Value) Normalized() string {
	switch v.kind {
	case KindEmpty:
		return EmptySentinel
	case KindText:
		return strings.ToLower(strings.TrimSpace(v.text))
	default:
		return ""
	}
}

// Trimmed returns the value with surrounding whitespace removed from Text.
func (v Value) Trimmed() Value {
	if v.kind != KindText {
		return v
	}
	return Text(strings.TrimSpace(v.text))
}

// String implements fmt.Stringer.
func (v Value) String() string {
	switch v.kind {
	case KindEmpty:
		return EmptySentinel
	case KindText:
		return v.text
	default:
		return "<unknown>"
	}
}

// MarshalJSON encodes Unknown as null and the rest as their stored string.
func (v Value) MarshalJSON() ([]byte, error) {
	s, ok := v.Stored()
	if !ok {
		return []byte("null"), nil
	}
	return json.Marshal(s)
}

// UnmarshalJSON accepts null or a string.
func (v *Value) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*v = Unknown
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("field value must be a string or null: %w", err)
	}
	*v = FromString(s)
	return nil
}

// MarshalYAML renders Unknown as null for CLI output.
func (v Value) MarshalYAML() (any, error) {
	return v.Nullable(), nil
}

// Value implements driver.Valuer.
func (v Value) Value() (driver.Value, error) {
	s, ok := v.Stored()
	if !ok {
		return nil, nil
	}
	return s, nil
}

// Scan implements sql.Scanner.
func (v *Value) Scan(src any) error {
	switch s := src.(type) {
	case nil:
		*v = Unknown
	case string:
		*v = FromString(s)
	case []byte:
		*v = FromString(string(s))
	default:
		return fmt.Errorf("cannot scan %T into field value", src)
	}
	return nil
}

// Set holds one value per defined field. The zero value is all Unknown.
type Set struct {
	values [Count]Value
}

// NewSet returns a set with every field Unknown.
func NewSet() Set {
	return Set{}
}

// EmptySet returns a set with every field Empty.
func EmptySet() Set {
	var s Set
	for i := range s.values {
		s.values[i] = Empty
	}
	return s
}

// Get returns the value for key, or Unknown if key is not defined.
func (s Set) Get(key string) Value {
	i, ok := keyIndex[key]
	if !ok {
		return Unknown
	}
	return s.values[i]
}

// Put sets the value for key.
func (s *Set) Put(key string, v Value) error {
	i, ok := keyIndex[key]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownKey, key)
	}
	s.values[i] = v
	return nil
}

// Each calls fn for every field in definition order.
func (s Set) Each(fn func(d Definition, v Value)) {
	for i, d := range definitions {
		fn(d, s.values[i])
	}
}

// PresentCount returns the number of fields carrying non-blank text.
func (s Set) PresentCount() int {
	n := 0
	for _, v := range s.values {
		if v.IsPresent() {
			n++
		}
	}
	return n
}

// Stored returns the nullable stored form of every field keyed by Key.
func (s Set) Stored() map[string]*string {
	out := make(map[string]*string, Count)
	for i, d := range definitions {
		out[d.Key] = s.values[i].Nullable()
	}
	return out
}

// MarshalJSON writes an object with keys in definition order.
func (s Set) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, d := range definitions {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, _ := json.Marshal(d.Key)
		buf.Write(k)
		buf.WriteByte(':')
		b, err := s.values[i].MarshalJSON()
		if err != nil {
			return nil, err
		}
		buf.Write(b)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// MarshalYAML renders the set as a key to nullable-string map.
func (s Set) MarshalYAML() (any, error) {
	return s.Stored(), nil
}

// UnmarshalJSON reads an object keyed by field key. Missing keys are Unknown.
func (s *Set) UnmarshalJSON(data []byte) error {
	var raw map[string]Value
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*s = Set{}
	for k, v := range raw {
		if err := s.Put(k, v); err != nil {
			return err
		}
	}
	return nil
}
