package endpoints

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/jackzampolin/promptlab/internal/api"
	"github.com/jackzampolin/promptlab/internal/config"
	"github.com/jackzampolin/promptlab/internal/evaluate"
	"github.com/jackzampolin/promptlab/internal/providers"
	"github.com/jackzampolin/promptlab/internal/runs"
	"github.com/jackzampolin/promptlab/internal/store"
	"github.com/jackzampolin/promptlab/internal/svcctx"
)

// testEnv serves every endpoint over a memory store and a mock model.
type testEnv struct {
	store    *store.MemoryStore
	mock     *providers.MockClient
	services *svcctx.Services
	handler  http.Handler
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	st := store.NewMemoryStore()
	mock := providers.NewMockClient()
	holder := providers.NewHolder(mock)
	eval := evaluate.NewService(st, logger)

	cfgPath := t.TempDir() + "/config.yaml"
	if err := config.WriteDefault(cfgPath); err != nil {
		t.Fatal(err)
	}
	cm, err := config.NewManager(cfgPath)
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}

	env := &testEnv{
		store: st,
		mock:  mock,
		services: &svcctx.Services{
			Store:     st,
			Evaluator: eval,
			Executor:  runs.NewExecutor(st, holder, eval, runs.NewTracker(), logger),
			LLM:       holder,
			Models:    providers.NewModelCache(),
			Config:    cm,
			Logger:    logger,
		},
	}

	reg := api.NewRegistry()
	for _, ep := range All(Config{Backend: config.BackendMemory}) {
		reg.Register(ep)
	}
	mux := http.NewServeMux()
	reg.RegisterRoutes(mux, func(next http.HandlerFunc) http.HandlerFunc { return next })
	env.handler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mux.ServeHTTP(w, r.WithContext(svcctx.WithServices(r.Context(), env.services)))
	})
	return env
}

func (e *testEnv) request(t *testing.T, method, path string, body any, header ...string) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		rd = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, rd)
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

// do sends a request, checks the status and decodes the response into out.
func (e *testEnv) do(t *testing.T, method, path string, body any, wantStatus int, out any) {
	t.Helper()
	rec := e.request(t, method, path, body)
	if rec.Code != wantStatus {
		t.Fatalf("%s %s status = %d, want %d; body: %s", method, path, rec.Code, wantStatus, rec.Body.String())
	}
	if out != nil {
		if err := json.Unmarshal(rec.Body.Bytes(), out); err != nil {
			t.Fatalf("%s %s: decode response: %v", method, path, err)
		}
	}
}

// seed creates one prompt and one book input.
func (e *testEnv) seed(t *testing.T) (*store.Prompt, *store.BookInput) {
	t.Helper()
	ctx := context.Background()
	p := &store.Prompt{Label: "v1", Text: "Tag the front matter.", Temperature: 0.3}
	if err := e.store.CreatePrompt(ctx, p); err != nil {
		t.Fatal(err)
	}
	in := &store.BookInput{Label: "walden", OCRMarkdown: "WALDEN\n\nby Henry D. Thoreau"}
	if err := e.store.CreateBookInput(ctx, in); err != nil {
		t.Fatal(err)
	}
	return p, in
}
