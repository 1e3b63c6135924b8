package api

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/spf13/cobra"
)

type stubEndpoint struct {
	method, path, group, use string
	requiresInit             bool
}

func (e stubEndpoint) Route() (string, string, http.HandlerFunc) {
	return e.method, e.path, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}
}

func (e stubEndpoint) RequiresInit() bool { return e.requiresInit }

func (e stubEndpoint) Command(func() string) *cobra.Command {
	if e.use == "" {
		return nil
	}
	cmd := &cobra.Command{Use: e.use}
	if e.group != "" {
		return Grouped(e.group, cmd)
	}
	return cmd
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	r.Register(stubEndpoint{method: "GET", path: "/health", use: "health"})
	r.Register(stubEndpoint{method: "GET", path: "/api/runs", group: "runs", use: "list", requiresInit: true})
	r.Register(stubEndpoint{method: "GET", path: "/api/runs/{id}", group: "runs", use: "get", requiresInit: true})
	r.Register(stubEndpoint{method: "PUT", path: "/api/runs/{id}", requiresInit: true})

	t.Run("routes", func(t *testing.T) {
		mux := http.NewServeMux()
		blocked := 0
		r.RegisterRoutes(mux, func(next http.HandlerFunc) http.HandlerFunc {
			return func(w http.ResponseWriter, req *http.Request) {
				blocked++
				w.WriteHeader(http.StatusServiceUnavailable)
			}
		})

		for path, want := range map[string]int{
			"/health":     http.StatusNoContent,
			"/api/runs":   http.StatusServiceUnavailable,
			"/api/runs/x": http.StatusServiceUnavailable,
		} {
			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
			if rec.Code != want {
				t.Errorf("GET %s = %d, want %d", path, rec.Code, want)
			}
		}
		if blocked != 2 {
			t.Errorf("init middleware ran %d times, want 2", blocked)
		}
	})

	t.Run("commands", func(t *testing.T) {
		root := r.BuildCommands(func() string { return "" })
		var names []string
		for _, c := range root.Commands() {
			names = append(names, c.Name())
		}
		if len(names) != 2 || names[0] != "health" || names[1] != "runs" {
			t.Fatalf("top-level commands = %v", names)
		}
		runs, _, err := root.Find([]string{"runs", "get"})
		if err != nil || runs.Name() != "get" {
			t.Errorf("Find(runs get) = %v, %v", runs, err)
		}
	})
}

func TestOutputTo(t *testing.T) {
	data := map[string]any{"score": 50}

	var buf bytes.Buffer
	if err := OutputTo(&buf, OutputFormatYAML, data); err != nil {
		t.Fatal(err)
	}
	if buf.String() != "score: 50\n" {
		t.Errorf("yaml = %q", buf.String())
	}

	buf.Reset()
	if err := OutputTo(&buf, OutputFormatJSON, data); err != nil {
		t.Fatal(err)
	}
	if buf.String() != "{\n  \"score\": 50\n}\n" {
		t.Errorf("json = %q", buf.String())
	}

	if err := SetOutputFormat("xml"); err == nil {
		t.Error("SetOutputFormat(xml) should fail")
	}
	if err := SetOutputFormat(""); err != nil || GetOutputFormat() != DefaultOutput {
		t.Errorf("SetOutputFormat(\"\") = %v, format %s", err, GetOutputFormat())
	}
}
