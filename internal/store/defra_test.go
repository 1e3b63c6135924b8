package store

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/jackzampolin/promptlab/internal/defra"
	"github.com/jackzampolin/promptlab/internal/fields"
	"github.com/jackzampolin/promptlab/internal/schema"
)

// fakeGraphQL records calls and answers from canned documents.
type fakeGraphQL struct {
	created map[string]map[string]any
	updated map[string]map[string]any
	docs    map[string]map[string]any
	queries []string
	list    []map[string]any
	err     error
}

func newFakeGraphQL() *fakeGraphQL {
	return &fakeGraphQL{
		created: make(map[string]map[string]any),
		updated: make(map[string]map[string]any),
		docs:    make(map[string]map[string]any),
	}
}

func (f *fakeGraphQL) Create(_ context.Context, collection string, input map[string]any) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.created[collection] = input
	return "bae-" + strings.ToLower(collection), nil
}

func (f *fakeGraphQL) Update(_ context.Context, collection, docID string, input map[string]any) error {
	if _, ok := f.docs[docID]; !ok {
		return defra.ErrNoDocument
	}
	f.updated[collection] = input
	return nil
}

func (f *fakeGraphQL) Get(_ context.Context, _, docID string, _ ...string) (map[string]any, error) {
	doc, ok := f.docs[docID]
	if !ok {
		return nil, defra.ErrNoDocument
	}
	return doc, nil
}

func (f *fakeGraphQL) Execute(_ context.Context, query string, _ map[string]any) (*defra.GQLResponse, error) {
	f.queries = append(f.queries, query)
	return &defra.GQLResponse{Data: map[string]any{schema.Run: toAnySlice(f.list)}}, nil
}

func toAnySlice(docs []map[string]any) []any {
	out := make([]any, len(docs))
	for i, d := range docs {
		out[i] = d
	}
	return out
}

func TestDefraStoreCreateStampsOrdering(t *testing.T) {
	fake := newFakeGraphQL()
	s := NewDefraStore(fake)

	in := &BookInput{Label: "first", OCRMarkdown: "md"}
	if err := s.CreateBookInput(context.Background(), in); err != nil {
		t.Fatalf("CreateBookInput() error = %v", err)
	}
	if in.ID != "bae-bookinput" {
		t.Errorf("ID = %q", in.ID)
	}
	doc := fake.created[schema.BookInput]
	if doc["label"] != "first" || doc["ocr_markdown"] != "md" {
		t.Errorf("create input = %v", doc)
	}
	if _, ok := doc["created_at"].(time.Time); !ok {
		t.Errorf("created_at not set: %v", doc["created_at"])
	}
	if seq, ok := doc["seq"].(int64); !ok || seq == 0 {
		t.Errorf("seq not set: %v", doc["seq"])
	}
}

func TestDefraStoreFieldSetNulls(t *testing.T) {
	fake := newFakeGraphQL()
	s := NewDefraStore(fake)

	set := fields.NewSet()
	_ = set.Put("title_l1", fields.Text("Walden"))
	_ = set.Put("subtitle", fields.Empty)

	if _, err := s.CreateFieldSet(context.Background(), set); err != nil {
		t.Fatalf("CreateFieldSet() error = %v", err)
	}
	doc := fake.created[schema.FieldSet]
	if doc["title_l1"] != "Walden" || doc["subtitle"] != "empty" {
		t.Errorf("present values = %v %v", doc["title_l1"], doc["subtitle"])
	}
	v, ok := doc["author"]
	if !ok || v != nil {
		t.Errorf("author = %v (present %v), want explicit nil", v, ok)
	}
}

func TestDefraStoreGetFieldSet(t *testing.T) {
	fake := newFakeGraphQL()
	fake.docs["bae-fs"] = map[string]any{
		"_docID":   "bae-fs",
		"title_l1": "Walden",
		"subtitle": "empty",
		"author":   nil,
	}
	s := NewDefraStore(fake)

	got, err := s.GetFieldSet(context.Background(), "bae-fs")
	if err != nil {
		t.Fatalf("GetFieldSet() error = %v", err)
	}
	want := fields.NewSet()
	_ = want.Put("title_l1", fields.Text("Walden"))
	_ = want.Put("subtitle", fields.Empty)
	if diff := cmp.Diff(want.Stored(), got.Stored()); diff != "" {
		t.Errorf("GetFieldSet() mismatch (-want +got):\n%s", diff)
	}
}

func TestDefraStoreNotFound(t *testing.T) {
	s := NewDefraStore(newFakeGraphQL())
	ctx := context.Background()

	if _, err := s.GetRun(ctx, "bae-missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetRun() error = %v, want ErrNotFound", err)
	}
	if err := s.UpdatePrompt(ctx, &Prompt{ID: "bae-missing", Label: "x"}); !errors.Is(err, ErrNotFound) {
		t.Errorf("UpdatePrompt() error = %v, want ErrNotFound", err)
	}
	if err := s.UpdateRun(ctx, &Run{ID: "not a valid id!"}); !errors.Is(err, ErrNotFound) {
		t.Errorf("UpdateRun(bad id) error = %v, want ErrNotFound", err)
	}
}

func TestDefraStoreListRuns(t *testing.T) {
	fake := newFakeGraphQL()
	fake.list = []map[string]any{
		{
			"_docID":        "bae-2",
			"book_input_id": "b1",
			"status":        "completed",
			"prompt_tokens": float64(12),
			"latency_ms":    float64(340),
			"starred":       true,
			"created_at":    "2026-03-01T10:00:00.000001Z",
		},
	}
	s := NewDefraStore(fake)

	runs, err := s.ListRuns(context.Background(), RunFilter{BookInputID: "b1", StarredOnly: true, Limit: 5})
	if err != nil {
		t.Fatalf("ListRuns() error = %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("ListRuns() returned %d runs", len(runs))
	}
	r := runs[0]
	if r.ID != "bae-2" || r.Status != RunCompleted || r.PromptTokens != 12 || r.LatencyMs != 340 || !r.Starred {
		t.Errorf("run = %+v", r)
	}
	want := time.Date(2026, 3, 1, 10, 0, 0, 1000, time.UTC)
	if !r.CreatedAt.Equal(want) {
		t.Errorf("CreatedAt = %v, want %v", r.CreatedAt, want)
	}

	q := fake.queries[0]
	for _, part := range []string{"book_input_id", "starred", "limit: 5", "created_at: DESC", "seq: DESC"} {
		if !strings.Contains(q, part) {
			t.Errorf("query missing %q:\n%s", part, q)
		}
	}
}

func TestDefraStoreOverHTTP(t *testing.T) {
	var body string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		body = string(b)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"data":{"create_Prompt":[{"_docID":"bae-p1"}]}}`))
	}))
	defer server.Close()

	s := NewDefraStore(defra.NewClient(server.URL))
	p := &Prompt{Label: "v1", Text: "say \"hi\"", Temperature: 0.5}
	if err := s.CreatePrompt(context.Background(), p); err != nil {
		t.Fatalf("CreatePrompt() error = %v", err)
	}
	if p.ID != "bae-p1" {
		t.Errorf("ID = %q", p.ID)
	}
	if !strings.Contains(body, "create_Prompt") || !strings.Contains(body, "temperature: 0.5") {
		t.Errorf("request body = %s", body)
	}
}
