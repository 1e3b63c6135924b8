package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func newTestClient(url string) *OpenRouterClient {
	return NewOpenRouterClient(OpenRouterConfig{
		APIKey:       "test-key",
		BaseURL:      url,
		DefaultModel: "test/default",
		MaxRetries:   3,
		RetryDelay:   time.Millisecond,
	})
}

func TestOpenRouterClient_Chat(t *testing.T) {
	t.Run("successful chat", func(t *testing.T) {
		var got openRouterRequest
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/chat/completions" {
				t.Errorf("unexpected path: %s", r.URL.Path)
			}
			if r.Method != http.MethodPost {
				t.Errorf("unexpected method: %s", r.Method)
			}
			if auth := r.Header.Get("Authorization"); auth != "Bearer test-key" {
				t.Errorf("unexpected authorization: %s", auth)
			}
			json.NewDecoder(r.Body).Decode(&got)

			resp := map[string]any{
				"id":    "test-id",
				"model": "test/default",
				"choices": []map[string]any{
					{
						"message":       map[string]any{"role": "assistant", "content": "<!-- field=\"title_l1\" -->Walden"},
						"finish_reason": "stop",
					},
				},
				"usage": map[string]int{
					"prompt_tokens":     10,
					"completion_tokens": 8,
					"total_tokens":      18,
				},
			}
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(resp)
		}))
		defer server.Close()

		client := newTestClient(server.URL)
		result, err := client.Chat(context.Background(), NewChatRequest("system", "user", "", 0, 120))
		if err != nil {
			t.Fatalf("Chat() error = %v", err)
		}
		if result.FinishReason != FinishStop {
			t.Errorf("FinishReason = %q", result.FinishReason)
		}
		if result.TotalTokens != 18 {
			t.Errorf("TotalTokens = %d, want 18", result.TotalTokens)
		}
		if result.Attempts != 1 {
			t.Errorf("Attempts = %d, want 1", result.Attempts)
		}
		if got.Model != "test/default" || got.MaxTokens != 120 || len(got.Messages) != 2 {
			t.Errorf("request = %+v", got)
		}
	})

	t.Run("retries server errors with nonce", func(t *testing.T) {
		var calls atomic.Int32
		var lastUser atomic.Value
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var req openRouterRequest
			json.NewDecoder(r.Body).Decode(&req)
			lastUser.Store(req.Messages[len(req.Messages)-1].Content)
			if calls.Add(1) == 1 {
				w.WriteHeader(http.StatusBadGateway)
				w.Write([]byte("bad gateway"))
				return
			}
			w.Write([]byte(`{"model":"m","choices":[{"message":{"content":"ok"},"finish_reason":"stop"}]}`))
		}))
		defer server.Close()

		result, err := newTestClient(server.URL).Chat(context.Background(), NewChatRequest("s", "u", "m", 0, 0))
		if err != nil {
			t.Fatalf("Chat() error = %v", err)
		}
		if result.Attempts != 2 {
			t.Errorf("Attempts = %d, want 2", result.Attempts)
		}
		if user, _ := lastUser.Load().(string); !strings.Contains(user, "retry_1_id") {
			t.Errorf("retry did not inject nonce: %q", user)
		}
	})

	t.Run("client error is not retried", func(t *testing.T) {
		var calls atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`{"error":{"message":"bad model"}}`))
		}))
		defer server.Close()

		_, err := newTestClient(server.URL).Chat(context.Background(), NewChatRequest("s", "u", "m", 0, 0))
		if err == nil || !strings.Contains(err.Error(), "status 400") {
			t.Errorf("Chat() error = %v, want status 400", err)
		}
		if calls.Load() != 1 {
			t.Errorf("calls = %d, want 1", calls.Load())
		}
	})

	t.Run("gives up after max retries", func(t *testing.T) {
		var calls atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			w.WriteHeader(http.StatusTooManyRequests)
		}))
		defer server.Close()

		_, err := newTestClient(server.URL).Chat(context.Background(), NewChatRequest("s", "u", "m", 0, 0))
		if err == nil || !strings.Contains(err.Error(), "max retries") {
			t.Errorf("Chat() error = %v, want max retries", err)
		}
		if calls.Load() != 3 {
			t.Errorf("calls = %d, want 3", calls.Load())
		}
	})

	t.Run("empty choices", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"model":"m","choices":[]}`))
		}))
		defer server.Close()

		_, err := newTestClient(server.URL).Chat(context.Background(), NewChatRequest("s", "u", "m", 0, 0))
		if !errors.Is(err, ErrNoChoices) {
			t.Errorf("Chat() error = %v, want ErrNoChoices", err)
		}
	})
}

func TestOpenRouterClient_ListModels(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || r.URL.Path != "/models" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		w.Write([]byte(`{"data":[
			{"id":"a/one","name":"One","context_length":8192,"pricing":{"prompt":"0.000001","completion":"0.000002"}},
			{"id":"b/two","name":"Two"}
		]}`))
	}))
	defer server.Close()

	models, err := newTestClient(server.URL).ListModels(context.Background())
	if err != nil {
		t.Fatalf("ListModels() error = %v", err)
	}
	want := []Model{
		{ID: "a/one", Name: "One", ContextLength: 8192, PromptPrice: "0.000001", CompletionPrice: "0.000002"},
		{ID: "b/two", Name: "Two"},
	}
	if diff := cmp.Diff(want, models); diff != "" {
		t.Errorf("ListModels() mismatch (-want +got):\n%s", diff)
	}
}

// sseServer streams each event as an SSE data line, then [DONE].
func sseServer(t *testing.T, events []string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		json.NewDecoder(r.Body).Decode(&body)
		if body["stream"] != true {
			t.Errorf("stream not requested: %v", body["stream"])
		}
		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		for _, e := range events {
			fmt.Fprintf(w, "data: %s\n\n", e)
			flusher.Flush()
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
		flusher.Flush()
	}))
}

func chunkEvent(content, finish string) string {
	choice := map[string]any{"index": 0, "delta": map[string]any{"content": content}}
	if finish != "" {
		choice["finish_reason"] = finish
	}
	b, _ := json.Marshal(map[string]any{
		"id":      "gen-1",
		"object":  "chat.completion.chunk",
		"created": 1,
		"model":   "test/default",
		"choices": []any{choice},
	})
	return string(b)
}

const usageEvent = `{"id":"gen-1","object":"chat.completion.chunk","created":1,"model":"test/default","choices":[],"usage":{"prompt_tokens":5,"completion_tokens":3,"total_tokens":8}}`

func TestOpenRouterClient_ChatStream(t *testing.T) {
	t.Run("deltas in order with summary", func(t *testing.T) {
		server := sseServer(t, []string{
			chunkEvent("Wal", ""),
			chunkEvent("den", ""),
			chunkEvent("", "stop"),
			usageEvent,
		})
		defer server.Close()

		var deltas []string
		summary, err := newTestClient(server.URL).ChatStream(context.Background(),
			NewChatRequest("s", "u", "", 0.3, 50),
			func(c StreamChunk) error {
				deltas = append(deltas, c.Delta)
				return nil
			})
		if err != nil {
			t.Fatalf("ChatStream() error = %v", err)
		}
		if diff := cmp.Diff([]string{"Wal", "den"}, deltas); diff != "" {
			t.Errorf("deltas mismatch (-want +got):\n%s", diff)
		}
		if summary.FinishReason != FinishStop || summary.TotalTokens != 8 || summary.Chunks != 2 {
			t.Errorf("summary = %+v", summary)
		}
	})

	t.Run("length finish is reported", func(t *testing.T) {
		server := sseServer(t, []string{chunkEvent("partial", "length")})
		defer server.Close()

		summary, err := newTestClient(server.URL).ChatStream(context.Background(),
			NewChatRequest("s", "u", "", 0, 0), func(StreamChunk) error { return nil })
		if err != nil {
			t.Fatalf("ChatStream() error = %v", err)
		}
		if summary.FinishReason != FinishLength {
			t.Errorf("FinishReason = %q, want length", summary.FinishReason)
		}
	})

	t.Run("callback error stops the stream", func(t *testing.T) {
		server := sseServer(t, []string{chunkEvent("a", ""), chunkEvent("b", ""), chunkEvent("c", "stop")})
		defer server.Close()

		stop := errors.New("stop reading")
		var n int
		summary, err := newTestClient(server.URL).ChatStream(context.Background(),
			NewChatRequest("s", "u", "", 0, 0), func(StreamChunk) error {
				n++
				return stop
			})
		if !errors.Is(err, stop) {
			t.Errorf("ChatStream() error = %v, want callback error", err)
		}
		if n != 1 || summary.Chunks != 1 {
			t.Errorf("callback ran %d times, summary %+v", n, summary)
		}
	})
}
