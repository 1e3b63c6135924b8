package schema

import (
	"embed"
	"fmt"
	"strings"

	"github.com/jackzampolin/promptlab/internal/fields"
)

//go:embed schemas/*.graphql
var schemaFS embed.FS

// Collection names.
const (
	FieldSet  = "FieldSet"
	BookInput = "BookInput"
	Prompt    = "Prompt"
	Run       = "Run"
)

// Schema represents a DefraDB collection schema.
type Schema struct {
	Name string // Collection name (e.g., "Run")
	SDL  string // GraphQL SDL definition
}

// names lists collections in initialization order. References between
// collections are stored as plain docID strings, so order only affects logs.
var names = []string{FieldSet, BookInput, Prompt, Run}

// All returns every schema in initialization order.
func All() ([]Schema, error) {
	out := make([]Schema, 0, len(names))
	for _, name := range names {
		s, err := Get(name)
		if err != nil {
			return nil, err
		}
		out = append(out, *s)
	}
	return out, nil
}

// Get returns a single schema by name. FieldSet is generated from the field
// definitions; the rest are embedded .graphql files.
func Get(name string) (*Schema, error) {
	if name == FieldSet {
		return &Schema{Name: FieldSet, SDL: fieldSetSDL()}, nil
	}
	for _, n := range names {
		if n != name {
			continue
		}
		content, err := schemaFS.ReadFile(fmt.Sprintf("schemas/%s.graphql", strings.ToLower(name)))
		if err != nil {
			return nil, fmt.Errorf("failed to read schema %s: %w", name, err)
		}
		return &Schema{Name: name, SDL: string(content)}, nil
	}
	return nil, fmt.Errorf("schema not found: %s", name)
}

func fieldSetSDL() string {
	var b strings.Builder
	b.WriteString("type FieldSet {\n")
	for _, d := range fields.All() {
		fmt.Fprintf(&b, "  %s: String\n", d.Key)
	}
	b.WriteString("  created_at: DateTime\n")
	b.WriteString("  seq: Int\n")
	b.WriteString("}\n")
	return b.String()
}
