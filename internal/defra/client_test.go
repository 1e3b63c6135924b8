package defra

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestClient_HealthCheck(t *testing.T) {
	tests := []struct {
		name       string
		statusCode int
		wantErr    bool
	}{
		{"healthy", http.StatusOK, false},
		{"unhealthy_500", http.StatusInternalServerError, true},
		{"unhealthy_503", http.StatusServiceUnavailable, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != "/health-check" {
					t.Errorf("unexpected path: %s", r.URL.Path)
				}
				w.WriteHeader(tt.statusCode)
			}))
			defer server.Close()

			err := NewClient(server.URL).HealthCheck(context.Background())
			if (err != nil) != tt.wantErr {
				t.Errorf("HealthCheck() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr && !errors.Is(err, ErrUnhealthy) {
				t.Errorf("expected ErrUnhealthy, got %v", err)
			}
		})
	}
}

func TestClient_HealthCheck_ContextCancellation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(100 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := NewClient(server.URL).HealthCheck(ctx); err == nil {
		t.Error("expected error from cancelled context")
	}
}

func TestClient_Execute(t *testing.T) {
	var got GQLRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v0/graphql" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if r.Method != http.MethodPost {
			t.Errorf("unexpected method: %s", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("unexpected content-type: %s", ct)
		}
		json.NewDecoder(r.Body).Decode(&got)

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"data": {"Prompt": [{"_docID": "bae-1", "label": "v1"}]}}`))
	}))
	defer server.Close()

	resp, err := NewClient(server.URL).Execute(context.Background(), `query($id: String) { Prompt { label } }`, map[string]any{"id": "bae-1"})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if resp.Error() != "" {
		t.Errorf("unexpected GraphQL error: %s", resp.Error())
	}
	docs := resp.Docs("Prompt")
	if len(docs) != 1 || docs[0]["label"] != "v1" {
		t.Errorf("unexpected docs: %v", docs)
	}
	if got.Variables["id"] != "bae-1" {
		t.Errorf("variables not sent: %v", got.Variables)
	}
}

func TestClient_Execute_Errors(t *testing.T) {
	t.Run("graphql error stays in response", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"errors": [{"message": "field not found"}]}`))
		}))
		defer server.Close()

		resp, err := NewClient(server.URL).Execute(context.Background(), `{ Invalid }`, nil)
		if err != nil {
			t.Fatalf("Execute() returned transport error: %v", err)
		}
		if resp.Error() != "field not found" {
			t.Errorf("unexpected error message: %q", resp.Error())
		}
	})

	t.Run("server error", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
			w.Write([]byte("boom"))
		}))
		defer server.Close()

		if _, err := NewClient(server.URL).Execute(context.Background(), `{ X }`, nil); err == nil {
			t.Error("expected error for 500 response")
		}
	})

	t.Run("empty body", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
		defer server.Close()

		if _, err := NewClient(server.URL).Execute(context.Background(), `{ X }`, nil); err == nil {
			t.Error("expected error for empty response")
		}
	})
}

func TestClient_AddSchema(t *testing.T) {
	var received string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v0/schema" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if ct := r.Header.Get("Content-Type"); ct != "text/plain" {
			t.Errorf("unexpected content-type: %s", ct)
		}
		b, _ := io.ReadAll(r.Body)
		received = string(b)
		if strings.Contains(received, "invalid") {
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte("invalid schema syntax"))
		}
	}))
	defer server.Close()

	client := NewClient(server.URL)
	schema := `type Prompt { label: String }`
	if err := client.AddSchema(context.Background(), schema); err != nil {
		t.Fatalf("AddSchema() error = %v", err)
	}
	if received != schema {
		t.Errorf("schema mismatch: got %q, want %q", received, schema)
	}

	if err := client.AddSchema(context.Background(), `invalid {`); err == nil {
		t.Error("expected error for invalid schema")
	}
}

func TestClient_Create(t *testing.T) {
	var query string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req GQLRequest
		json.NewDecoder(r.Body).Decode(&req)
		query = req.Query
		w.Write([]byte(`{"data": {"create_Prompt": [{"_docID": "bae-abc123"}]}}`))
	}))
	defer server.Close()

	docID, err := NewClient(server.URL).Create(context.Background(), "Prompt", map[string]any{
		"label":       "baseline",
		"temperature": 0.2,
	})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if docID != "bae-abc123" {
		t.Errorf("unexpected docID: %s", docID)
	}
	want := `mutation { create_Prompt(input: {label: "baseline", temperature: 0.2}) { _docID } }`
	if query != want {
		t.Errorf("query = %s\nwant    %s", query, want)
	}
}

func TestClient_Update(t *testing.T) {
	t.Run("clears nil fields", func(t *testing.T) {
		var query string
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var req GQLRequest
			json.NewDecoder(r.Body).Decode(&req)
			query = req.Query
			w.Write([]byte(`{"data": {"update_FieldSet": [{"_docID": "bae-1"}]}}`))
		}))
		defer server.Close()

		var unknown *string
		err := NewClient(server.URL).Update(context.Background(), "FieldSet", "bae-1", map[string]any{
			"author": "Ann",
			"isbn":   unknown,
		})
		if err != nil {
			t.Fatalf("Update() error = %v", err)
		}
		if !strings.Contains(query, `input: {author: "Ann", isbn: null}`) {
			t.Errorf("unexpected query: %s", query)
		}
	})

	t.Run("missing document", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"data": {"update_FieldSet": []}}`))
		}))
		defer server.Close()

		err := NewClient(server.URL).Update(context.Background(), "FieldSet", "bae-404", map[string]any{"author": "x"})
		if !errors.Is(err, ErrNoDocument) {
			t.Errorf("expected ErrNoDocument, got %v", err)
		}
	})

	t.Run("rejects unsafe id", func(t *testing.T) {
		err := NewClient("http://unused").Update(context.Background(), "FieldSet", `x") { _docID } }`, nil)
		if err == nil {
			t.Error("expected validation error")
		}
	})
}

func TestClient_Get(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req GQLRequest
		json.NewDecoder(r.Body).Decode(&req)
		if req.Variables["v0"] == "bae-found" {
			w.Write([]byte(`{"data": {"BookInput": [{"_docID": "bae-found", "label": "Book"}]}}`))
			return
		}
		w.Write([]byte(`{"data": {"BookInput": []}}`))
	}))
	defer server.Close()

	client := NewClient(server.URL)
	doc, err := client.Get(context.Background(), "BookInput", "bae-found", "label")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if doc["label"] != "Book" {
		t.Errorf("unexpected doc: %v", doc)
	}

	if _, err := client.Get(context.Background(), "BookInput", "bae-missing", "label"); !errors.Is(err, ErrNoDocument) {
		t.Errorf("expected ErrNoDocument, got %v", err)
	}
}

func TestClient_URLNormalization(t *testing.T) {
	if got := NewClient("http://localhost:9181/").URL(); got != "http://localhost:9181" {
		t.Errorf("URL not normalized: %s", got)
	}
}

func TestMapToGraphQLInput(t *testing.T) {
	tests := []struct {
		name  string
		input map[string]any
		want  string
	}{
		{"string value", map[string]any{"label": "Test"}, `{label: "Test"}`},
		{"escapes", map[string]any{"text": "a\"b\nc"}, `{text: "a\"b\nc"}`},
		{"int value", map[string]any{"count": 42}, `{count: 42}`},
		{"bool value", map[string]any{"starred": true}, `{starred: true}`},
		{"nil value", map[string]any{"notes": nil}, `{notes: null}`},
		{"sorted keys", map[string]any{"b": 1, "a": 2}, `{a: 2, b: 1}`},
		{"time value", map[string]any{"at": time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)}, `{at: "2024-01-02T03:04:05Z"}`},
		{"empty map", map[string]any{}, `{}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := mapToGraphQLInput(tt.input)
			if err != nil {
				t.Fatalf("mapToGraphQLInput() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("mapToGraphQLInput() = %s, want %s", got, tt.want)
			}
		})
	}
}
