package endpoints

import (
	"net/http"
	"testing"

	"github.com/jackzampolin/promptlab/internal/store"
)

func TestInputEndpoints(t *testing.T) {
	env := newTestEnv(t)

	var created store.BookInput
	env.do(t, "POST", "/api/inputs", CreateInputRequest{Label: "walden", OCRMarkdown: "WALDEN"}, http.StatusCreated, &created)
	if created.ID == "" {
		t.Fatal("created input has no ID")
	}

	t.Run("validation", func(t *testing.T) {
		env.do(t, "POST", "/api/inputs", CreateInputRequest{OCRMarkdown: "x"}, http.StatusBadRequest, nil)
		rec := env.request(t, "POST", "/api/inputs", nil)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("empty body status = %d, want 400", rec.Code)
		}
	})

	t.Run("list", func(t *testing.T) {
		var resp ListInputsResponse
		env.do(t, "GET", "/api/inputs", nil, http.StatusOK, &resp)
		if len(resp.Inputs) != 1 || resp.Inputs[0].ID != created.ID {
			t.Errorf("inputs = %+v", resp.Inputs)
		}
	})

	t.Run("update", func(t *testing.T) {
		label := "Walden"
		var updated store.BookInput
		env.do(t, "PUT", "/api/inputs/"+created.ID, UpdateInputRequest{Label: &label}, http.StatusOK, &updated)
		if updated.Label != "Walden" || updated.OCRMarkdown != "WALDEN" {
			t.Errorf("updated = %+v", updated)
		}
	})

	t.Run("not found", func(t *testing.T) {
		env.do(t, "GET", "/api/inputs/missing", nil, http.StatusNotFound, nil)
	})

	t.Run("set field", func(t *testing.T) {
		var resp SetFieldResponse
		env.do(t, "PUT", "/api/inputs/"+created.ID+"/fields/title_l1", SetFieldRequest{Value: " Walden "}, http.StatusOK, &resp)
		if got := resp.Value.Text(); got != "Walden" {
			t.Errorf("value = %q, want Walden", got)
		}

		env.do(t, "PUT", "/api/inputs/"+created.ID+"/fields/isbn", SetFieldRequest{Value: "empty"}, http.StatusOK, &resp)
		if !resp.CorrectFields.Get("isbn").IsEmpty() {
			t.Errorf("isbn = %v, want empty", resp.CorrectFields.Get("isbn"))
		}
		if resp.CorrectFields.Get("title_l1").Text() != "Walden" {
			t.Error("earlier field lost on second edit")
		}

		var got InputResponse
		env.do(t, "GET", "/api/inputs/"+created.ID, nil, http.StatusOK, &got)
		if got.CorrectFields == nil || got.CorrectFields.Get("title_l1").Text() != "Walden" {
			t.Errorf("correct fields = %+v", got.CorrectFields)
		}

		env.do(t, "PUT", "/api/inputs/"+created.ID+"/fields/nope", SetFieldRequest{Value: "x"}, http.StatusBadRequest, nil)
		env.do(t, "PUT", "/api/inputs/missing/fields/author", SetFieldRequest{Value: "x"}, http.StatusNotFound, nil)
	})

	t.Run("score without runs", func(t *testing.T) {
		var resp ScoreResponse
		env.do(t, "GET", "/api/inputs/"+created.ID+"/score", nil, http.StatusOK, &resp)
		if resp.Scored {
			t.Errorf("score = %+v, want unscored", resp)
		}
	})
}

func TestPromptEndpoints(t *testing.T) {
	env := newTestEnv(t)

	var created store.Prompt
	env.do(t, "POST", "/api/prompts", CreatePromptRequest{Label: "v1", Text: "Tag fields.", Temperature: 0.2}, http.StatusCreated, &created)

	env.do(t, "POST", "/api/prompts", CreatePromptRequest{Label: "hot", Temperature: 1.5}, http.StatusBadRequest, nil)

	temp := 0.7
	var updated store.Prompt
	env.do(t, "PUT", "/api/prompts/"+created.ID, UpdatePromptRequest{Temperature: &temp}, http.StatusOK, &updated)
	if updated.Temperature != 0.7 || updated.Text != "Tag fields." {
		t.Errorf("updated = %+v", updated)
	}

	bad := -0.1
	env.do(t, "PUT", "/api/prompts/"+created.ID, UpdatePromptRequest{Temperature: &bad}, http.StatusBadRequest, nil)

	var list ListPromptsResponse
	env.do(t, "GET", "/api/prompts", nil, http.StatusOK, &list)
	if len(list.Prompts) != 1 {
		t.Errorf("prompts = %d, want 1", len(list.Prompts))
	}
	env.do(t, "GET", "/api/prompts/missing", nil, http.StatusNotFound, nil)
}
