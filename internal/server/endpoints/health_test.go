package endpoints

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/jackzampolin/promptlab/internal/providers"
)

func TestHealthAndStatus(t *testing.T) {
	env := newTestEnv(t)

	var health HealthResponse
	env.do(t, "GET", "/health", nil, http.StatusOK, &health)
	if health.Status != "ok" {
		t.Errorf("health = %+v", health)
	}

	env.do(t, "GET", "/ready", nil, http.StatusOK, nil)

	var status StatusResponse
	env.do(t, "GET", "/status", nil, http.StatusOK, &status)
	if status.Store != "memory" || status.LLM.Provider != providers.MockClientName {
		t.Errorf("status = %+v", status)
	}
	if status.Defra.Container != "not_used" || status.Defra.Health != "not_used" {
		t.Errorf("defra status = %+v", status.Defra)
	}

	env.services.Store = nil
	env.do(t, "GET", "/ready", nil, http.StatusServiceUnavailable, nil)
}

func TestListModels(t *testing.T) {
	env := newTestEnv(t)
	env.mock.Models = []providers.Model{{ID: "a/one", Name: "One"}, {ID: "b/two", Name: "Two"}}

	for range 2 {
		var resp ModelsResponse
		env.do(t, "GET", "/api/models", nil, http.StatusOK, &resp)
		if len(resp.Models) != 2 || resp.Models[0].ID != "a/one" {
			t.Errorf("models = %+v", resp.Models)
		}
	}
	if calls := env.mock.ModelCalls(); calls != 1 {
		t.Errorf("ListModels calls = %d, want 1 (cached)", calls)
	}

	t.Run("fetch error", func(t *testing.T) {
		env := newTestEnv(t)
		env.mock.ModelsErr = errors.New("catalogue down")
		env.do(t, "GET", "/api/models", nil, http.StatusBadGateway, nil)
		env.mock.ModelsErr = nil
		env.do(t, "GET", "/api/models", nil, http.StatusOK, nil)
	})

	t.Run("no client", func(t *testing.T) {
		env := newTestEnv(t)
		env.services.LLM.Set(nil)
		env.do(t, "GET", "/api/models", nil, http.StatusServiceUnavailable, nil)
	})
}

func TestSwaggerEndpoint(t *testing.T) {
	path := filepath.Join(t.TempDir(), "swagger.json")
	if err := os.WriteFile(path, []byte(`{"swagger":"2.0"}`), 0o644); err != nil {
		t.Fatal(err)
	}

	_, _, handler := (&SwaggerEndpoint{SpecPath: path}).Route()
	rec := httptest.NewRecorder()
	handler(rec, httptest.NewRequest("GET", "/swagger.json", nil))
	if rec.Code != http.StatusOK || rec.Body.String() != `{"swagger":"2.0"}` {
		t.Errorf("got %d %q", rec.Code, rec.Body.String())
	}

	_, _, handler = (&SwaggerEndpoint{SpecPath: filepath.Join(t.TempDir(), "missing.json")}).Route()
	rec = httptest.NewRecorder()
	handler(rec, httptest.NewRequest("GET", "/swagger.json", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("missing spec status = %d, want 404", rec.Code)
	}
}
