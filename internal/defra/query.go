package defra

import (
	"context"
	"fmt"
	"regexp"
	"strings"
)

// idPattern matches DefraDB document IDs (bae-<uuid>) and simple identifiers.
var idPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// ValidateID checks that id is safe to interpolate into a GraphQL document.
func ValidateID(id string) error {
	if id == "" {
		return fmt.Errorf("empty ID")
	}
	if len(id) > 500 {
		return fmt.Errorf("ID too long: %d characters", len(id))
	}
	if !idPattern.MatchString(id) {
		return fmt.Errorf("invalid ID format: contains unsafe characters")
	}
	return nil
}

// Direction is a sort order.
type Direction string

const (
	ASC  Direction = "ASC"
	DESC Direction = "DESC"
)

// QueryBuilder constructs read queries with filter values passed as GraphQL
// variables.
type QueryBuilder struct {
	collection string
	filters    []filterDef
	fields     []string
	order      []string
	limit      int
	offset     int
}

type filterDef struct {
	field   string
	op      string
	varType string
	value   any
}

// NewQuery creates a new QueryBuilder for the given collection.
func NewQuery(collection string) *QueryBuilder {
	return &QueryBuilder{
		collection: collection,
		fields:     []string{"_docID"},
	}
}

// Filter adds an equality filter.
func (q *QueryBuilder) Filter(field string, value any) *QueryBuilder {
	return q.where(field, "_eq", value)
}

// FilterIn adds an _in filter matching any of values.
func (q *QueryBuilder) FilterIn(field string, values []string) *QueryBuilder {
	q.filters = append(q.filters, filterDef{field: field, op: "_in", varType: "[String!]", value: values})
	return q
}

func (q *QueryBuilder) where(field, op string, value any) *QueryBuilder {
	q.filters = append(q.filters, filterDef{field: field, op: op, varType: inferGraphQLType(value), value: value})
	return q
}

// Fields sets the fields to return (replaces the default of just _docID).
func (q *QueryBuilder) Fields(fields ...string) *QueryBuilder {
	q.fields = fields
	return q
}

// OrderBy appends a sort key. Keys apply in the order they were added.
func (q *QueryBuilder) OrderBy(field string, dir Direction) *QueryBuilder {
	q.order = append(q.order, fmt.Sprintf("{%s: %s}", field, dir))
	return q
}

// Limit sets the maximum number of results.
func (q *QueryBuilder) Limit(n int) *QueryBuilder {
	q.limit = n
	return q
}

// Offset sets the offset for pagination.
func (q *QueryBuilder) Offset(n int) *QueryBuilder {
	q.offset = n
	return q
}

// Build returns the query document and its variables.
func (q *QueryBuilder) Build() (string, map[string]any) {
	var varDefs, filterParts []string
	vars := make(map[string]any, len(q.filters))
	for i, f := range q.filters {
		name := fmt.Sprintf("v%d", i)
		varDefs = append(varDefs, fmt.Sprintf("$%s: %s", name, f.varType))
		filterParts = append(filterParts, fmt.Sprintf("%s: {%s: $%s}", f.field, f.op, name))
		vars[name] = f.value
	}

	var args []string
	if len(filterParts) > 0 {
		args = append(args, fmt.Sprintf("filter: {%s}", strings.Join(filterParts, ", ")))
	}
	switch len(q.order) {
	case 0:
	case 1:
		args = append(args, "order: "+q.order[0])
	default:
		args = append(args, "order: ["+strings.Join(q.order, ", ")+"]")
	}
	if q.limit > 0 {
		args = append(args, fmt.Sprintf("limit: %d", q.limit))
	}
	if q.offset > 0 {
		args = append(args, fmt.Sprintf("offset: %d", q.offset))
	}

	var b strings.Builder
	if len(varDefs) > 0 {
		fmt.Fprintf(&b, "query(%s) ", strings.Join(varDefs, ", "))
	}
	b.WriteString("{ ")
	b.WriteString(q.collection)
	if len(args) > 0 {
		fmt.Fprintf(&b, "(%s)", strings.Join(args, ", "))
	}
	b.WriteString(" { ")
	b.WriteString(strings.Join(q.fields, " "))
	b.WriteString(" } }")

	return b.String(), vars
}

// Execute builds and executes the query on the given client.
func (q *QueryBuilder) Execute(ctx context.Context, client *Client) (*GQLResponse, error) {
	query, vars := q.Build()
	return client.Execute(ctx, query, vars)
}

func inferGraphQLType(v any) string {
	switch v.(type) {
	case int, int32, int64:
		return "Int"
	case float32, float64:
		return "Float"
	case bool:
		return "Boolean"
	default:
		return "String"
	}
}
