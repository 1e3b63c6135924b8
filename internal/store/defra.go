package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackzampolin/promptlab/internal/defra"
	"github.com/jackzampolin/promptlab/internal/fields"
	"github.com/jackzampolin/promptlab/internal/schema"
)

// GraphQLClient is the subset of the DefraDB client DefraStore needs.
type GraphQLClient interface {
	Create(ctx context.Context, collection string, input map[string]any) (string, error)
	Update(ctx context.Context, collection, docID string, input map[string]any) error
	Get(ctx context.Context, collection, docID string, fields ...string) (map[string]any, error)
	Execute(ctx context.Context, query string, variables map[string]any) (*defra.GQLResponse, error)
}

var (
	bookInputFields = []string{"label", "ocr_markdown", "reference_markdown", "correct_fields_id", "created_at"}
	promptFields    = []string{"label", "text", "temperature", "created_at"}
	runFields       = []string{
		"prompt_id", "book_input_id", "model", "temperature", "output", "status",
		"finish_reason", "prompt_tokens", "completion_tokens", "total_tokens",
		"discovered_fields_id", "starred", "notes", "error", "latency_ms", "created_at",
	}
)

// DefraStore is a Store on a DefraDB node. Each record kind is a collection
// created by schema.Initialize; docIDs are the record ids.
type DefraStore struct {
	client GraphQLClient
}

var _ Store = (*DefraStore)(nil)

// NewDefraStore wraps a DefraDB client.
func NewDefraStore(client GraphQLClient) *DefraStore {
	return &DefraStore{client: client}
}

// Close is a no-op; the HTTP client holds no resources.
func (s *DefraStore) Close() error { return nil }

func (s *DefraStore) get(ctx context.Context, collection, kind, id string, fieldNames []string) (map[string]any, error) {
	doc, err := s.client.Get(ctx, collection, id, fieldNames...)
	if errors.Is(err, defra.ErrNoDocument) {
		return nil, fmt.Errorf("%s %s: %w", kind, id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get %s %s: %w", kind, id, err)
	}
	return doc, nil
}

func (s *DefraStore) update(ctx context.Context, collection, kind, id string, input map[string]any) error {
	if defra.ValidateID(id) != nil {
		return fmt.Errorf("%s %q: %w", kind, id, ErrNotFound)
	}
	err := s.client.Update(ctx, collection, id, input)
	if errors.Is(err, defra.ErrNoDocument) {
		return fmt.Errorf("%s %s: %w", kind, id, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("update %s %s: %w", kind, id, err)
	}
	return nil
}

func (s *DefraStore) list(ctx context.Context, q *defra.QueryBuilder, collection string) ([]map[string]any, error) {
	query, vars := q.OrderBy("created_at", defra.DESC).OrderBy("seq", defra.DESC).Build()
	resp, err := s.client.Execute(ctx, query, vars)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", collection, err)
	}
	if msg := resp.Error(); msg != "" {
		return nil, fmt.Errorf("list %s: %s", collection, msg)
	}
	return resp.Docs(collection), nil
}

// create stamps CreatedAt and the ordering sequence, then inserts.
func (s *DefraStore) create(ctx context.Context, collection string, created *time.Time, input map[string]any) (string, error) {
	if created.IsZero() {
		*created = now()
	}
	input["created_at"] = *created
	input["seq"] = nextSeq()
	id, err := s.client.Create(ctx, collection, input)
	if err != nil {
		return "", fmt.Errorf("create %s: %w", collection, err)
	}
	return id, nil
}

func bookInputDoc(in *BookInput) map[string]any {
	return map[string]any{
		"label":              in.Label,
		"ocr_markdown":       in.OCRMarkdown,
		"reference_markdown": in.ReferenceMarkdown,
		"correct_fields_id":  in.CorrectFieldsID,
	}
}

func bookInputFromDoc(doc map[string]any) BookInput {
	return BookInput{
		ID:                docString(doc, "_docID"),
		Label:             docString(doc, "label"),
		OCRMarkdown:       docString(doc, "ocr_markdown"),
		ReferenceMarkdown: docString(doc, "reference_markdown"),
		CorrectFieldsID:   docString(doc, "correct_fields_id"),
		CreatedAt:         docTime(doc, "created_at"),
	}
}

func (s *DefraStore) CreateBookInput(ctx context.Context, in *BookInput) error {
	id, err := s.create(ctx, schema.BookInput, &in.CreatedAt, bookInputDoc(in))
	if err != nil {
		return err
	}
	in.ID = id
	return nil
}

func (s *DefraStore) GetBookInput(ctx context.Context, id string) (*BookInput, error) {
	doc, err := s.get(ctx, schema.BookInput, "book input", id, bookInputFields)
	if err != nil {
		return nil, err
	}
	in := bookInputFromDoc(doc)
	return &in, nil
}

func (s *DefraStore) ListBookInputs(ctx context.Context) ([]BookInput, error) {
	q := defra.NewQuery(schema.BookInput).Fields(append([]string{"_docID"}, bookInputFields...)...)
	docs, err := s.list(ctx, q, schema.BookInput)
	if err != nil {
		return nil, err
	}
	out := make([]BookInput, len(docs))
	for i, d := range docs {
		out[i] = bookInputFromDoc(d)
	}
	return out, nil
}

func (s *DefraStore) UpdateBookInput(ctx context.Context, in *BookInput) error {
	return s.update(ctx, schema.BookInput, "book input", in.ID, bookInputDoc(in))
}

func promptDoc(p *Prompt) map[string]any {
	return map[string]any{
		"label":       p.Label,
		"text":        p.Text,
		"temperature": p.Temperature,
	}
}

func promptFromDoc(doc map[string]any) Prompt {
	return Prompt{
		ID:          docString(doc, "_docID"),
		Label:       docString(doc, "label"),
		Text:        docString(doc, "text"),
		Temperature: docFloat(doc, "temperature"),
		CreatedAt:   docTime(doc, "created_at"),
	}
}

func (s *DefraStore) CreatePrompt(ctx context.Context, p *Prompt) error {
	id, err := s.create(ctx, schema.Prompt, &p.CreatedAt, promptDoc(p))
	if err != nil {
		return err
	}
	p.ID = id
	return nil
}

func (s *DefraStore) GetPrompt(ctx context.Context, id string) (*Prompt, error) {
	doc, err := s.get(ctx, schema.Prompt, "prompt", id, promptFields)
	if err != nil {
		return nil, err
	}
	p := promptFromDoc(doc)
	return &p, nil
}

func (s *DefraStore) ListPrompts(ctx context.Context) ([]Prompt, error) {
	q := defra.NewQuery(schema.Prompt).Fields(append([]string{"_docID"}, promptFields...)...)
	docs, err := s.list(ctx, q, schema.Prompt)
	if err != nil {
		return nil, err
	}
	out := make([]Prompt, len(docs))
	for i, d := range docs {
		out[i] = promptFromDoc(d)
	}
	return out, nil
}

func (s *DefraStore) UpdatePrompt(ctx context.Context, p *Prompt) error {
	return s.update(ctx, schema.Prompt, "prompt", p.ID, promptDoc(p))
}

func runDoc(r *Run) map[string]any {
	return map[string]any{
		"prompt_id":            r.PromptID,
		"book_input_id":        r.BookInputID,
		"model":                r.Model,
		"temperature":          r.Temperature,
		"output":               r.Output,
		"status":               string(r.Status),
		"finish_reason":        r.FinishReason,
		"prompt_tokens":        r.PromptTokens,
		"completion_tokens":    r.CompletionTokens,
		"total_tokens":         r.TotalTokens,
		"discovered_fields_id": r.DiscoveredFieldsID,
		"starred":              r.Starred,
		"notes":                r.Notes,
		"error":                r.Error,
		"latency_ms":           r.LatencyMs,
	}
}

func runFromDoc(doc map[string]any) Run {
	return Run{
		ID:                 docString(doc, "_docID"),
		PromptID:           docString(doc, "prompt_id"),
		BookInputID:        docString(doc, "book_input_id"),
		Model:              docString(doc, "model"),
		Temperature:        docFloat(doc, "temperature"),
		Output:             docString(doc, "output"),
		Status:             RunStatus(docString(doc, "status")),
		FinishReason:       docString(doc, "finish_reason"),
		PromptTokens:       int(docFloat(doc, "prompt_tokens")),
		CompletionTokens:   int(docFloat(doc, "completion_tokens")),
		TotalTokens:        int(docFloat(doc, "total_tokens")),
		DiscoveredFieldsID: docString(doc, "discovered_fields_id"),
		Starred:            docBool(doc, "starred"),
		Notes:              docString(doc, "notes"),
		Error:              docString(doc, "error"),
		LatencyMs:          int64(docFloat(doc, "latency_ms")),
		CreatedAt:          docTime(doc, "created_at"),
	}
}

func (s *DefraStore) CreateRun(ctx context.Context, r *Run) error {
	id, err := s.create(ctx, schema.Run, &r.CreatedAt, runDoc(r))
	if err != nil {
		return err
	}
	r.ID = id
	return nil
}

func (s *DefraStore) GetRun(ctx context.Context, id string) (*Run, error) {
	doc, err := s.get(ctx, schema.Run, "run", id, runFields)
	if err != nil {
		return nil, err
	}
	r := runFromDoc(doc)
	return &r, nil
}

func (s *DefraStore) ListRuns(ctx context.Context, f RunFilter) ([]Run, error) {
	q := defra.NewQuery(schema.Run).Fields(append([]string{"_docID"}, runFields...)...)
	if f.BookInputID != "" {
		q.Filter("book_input_id", f.BookInputID)
	}
	if f.PromptID != "" {
		q.Filter("prompt_id", f.PromptID)
	}
	if f.Status != "" {
		q.Filter("status", string(f.Status))
	}
	if f.StarredOnly {
		q.Filter("starred", true)
	}
	if f.Limit > 0 {
		q.Limit(f.Limit)
	}

	docs, err := s.list(ctx, q, schema.Run)
	if err != nil {
		return nil, err
	}
	out := make([]Run, len(docs))
	for i, d := range docs {
		out[i] = runFromDoc(d)
	}
	return out, nil
}

func (s *DefraStore) UpdateRun(ctx context.Context, r *Run) error {
	return s.update(ctx, schema.Run, "run", r.ID, runDoc(r))
}

func (s *DefraStore) LatestRun(ctx context.Context, bookInputID string) (*Run, error) {
	runs, err := s.ListRuns(ctx, RunFilter{BookInputID: bookInputID, Limit: 1})
	if err != nil {
		return nil, err
	}
	if len(runs) == 0 {
		return nil, fmt.Errorf("runs for book input %s: %w", bookInputID, ErrNotFound)
	}
	return &runs[0], nil
}

// fieldSetDoc writes every column; Unknown becomes null.
func fieldSetDoc(set fields.Set) map[string]any {
	doc := make(map[string]any, fields.Count)
	set.Each(func(d fields.Definition, v fields.Value) {
		if s, ok := v.Stored(); ok {
			doc[d.Key] = s
		} else {
			doc[d.Key] = nil
		}
	})
	return doc
}

func fieldSetFromDoc(doc map[string]any) fields.Set {
	set := fields.NewSet()
	for _, key := range fields.Keys() {
		if s, ok := doc[key].(string); ok {
			_ = set.Put(key, fields.FromString(s))
		}
	}
	return set
}

func (s *DefraStore) CreateFieldSet(ctx context.Context, set fields.Set) (string, error) {
	var created time.Time
	return s.create(ctx, schema.FieldSet, &created, fieldSetDoc(set))
}

func (s *DefraStore) GetFieldSet(ctx context.Context, id string) (fields.Set, error) {
	doc, err := s.get(ctx, schema.FieldSet, "field set", id, fields.Keys())
	if err != nil {
		return fields.Set{}, err
	}
	return fieldSetFromDoc(doc), nil
}

func (s *DefraStore) UpdateFieldSet(ctx context.Context, id string, set fields.Set) error {
	return s.update(ctx, schema.FieldSet, "field set", id, fieldSetDoc(set))
}

func docString(doc map[string]any, key string) string {
	s, _ := doc[key].(string)
	return s
}

func docFloat(doc map[string]any, key string) float64 {
	switch v := doc[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case int64:
		return float64(v)
	}
	return 0
}

func docBool(doc map[string]any, key string) bool {
	b, _ := doc[key].(bool)
	return b
}

func docTime(doc map[string]any, key string) time.Time {
	s, _ := doc[key].(string)
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t.UTC()
}
