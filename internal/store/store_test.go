package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/jackzampolin/promptlab/internal/fields"
)

// testStore runs the behaviour every backend must share.
func testStore(t *testing.T, newStore func(t *testing.T) Store) {
	t.Run("book inputs", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		in := &BookInput{Label: "first", OCRMarkdown: "# Title"}
		if err := s.CreateBookInput(ctx, in); err != nil {
			t.Fatalf("CreateBookInput() error = %v", err)
		}
		if in.ID == "" || in.CreatedAt.IsZero() {
			t.Fatalf("CreateBookInput() did not stamp id/created_at: %+v", in)
		}

		got, err := s.GetBookInput(ctx, in.ID)
		if err != nil {
			t.Fatalf("GetBookInput() error = %v", err)
		}
		if got.Label != "first" || got.OCRMarkdown != "# Title" || got.CorrectFieldsID != "" {
			t.Errorf("GetBookInput() = %+v", got)
		}
		if !got.CreatedAt.Equal(in.CreatedAt) {
			t.Errorf("CreatedAt = %v, want %v", got.CreatedAt, in.CreatedAt)
		}

		created := in.CreatedAt
		in.Label = "renamed"
		in.CorrectFieldsID = "fs-1"
		in.CreatedAt = created.Add(time.Hour)
		if err := s.UpdateBookInput(ctx, in); err != nil {
			t.Fatalf("UpdateBookInput() error = %v", err)
		}
		got, err = s.GetBookInput(ctx, in.ID)
		if err != nil {
			t.Fatalf("GetBookInput() error = %v", err)
		}
		if got.Label != "renamed" || got.CorrectFieldsID != "fs-1" {
			t.Errorf("after update = %+v", got)
		}
		if !got.CreatedAt.Equal(created) {
			t.Errorf("update changed CreatedAt to %v", got.CreatedAt)
		}

		second := &BookInput{Label: "second"}
		if err := s.CreateBookInput(ctx, second); err != nil {
			t.Fatalf("CreateBookInput() error = %v", err)
		}
		list, err := s.ListBookInputs(ctx)
		if err != nil {
			t.Fatalf("ListBookInputs() error = %v", err)
		}
		if len(list) != 2 || list[0].ID != second.ID {
			t.Errorf("ListBookInputs() = %+v, want newest first", list)
		}

		if _, err := s.GetBookInput(ctx, "missing"); !errors.Is(err, ErrNotFound) {
			t.Errorf("GetBookInput(missing) error = %v, want ErrNotFound", err)
		}
		if err := s.UpdateBookInput(ctx, &BookInput{ID: "missing", Label: "x"}); !errors.Is(err, ErrNotFound) {
			t.Errorf("UpdateBookInput(missing) error = %v, want ErrNotFound", err)
		}
	})

	t.Run("prompts", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		p := &Prompt{Label: "v1", Text: "Find the title.", Temperature: 0.2}
		if err := s.CreatePrompt(ctx, p); err != nil {
			t.Fatalf("CreatePrompt() error = %v", err)
		}
		got, err := s.GetPrompt(ctx, p.ID)
		if err != nil {
			t.Fatalf("GetPrompt() error = %v", err)
		}
		if got.Text != p.Text || got.Temperature != 0.2 {
			t.Errorf("GetPrompt() = %+v", got)
		}

		p.Temperature = 0
		if err := s.UpdatePrompt(ctx, p); err != nil {
			t.Fatalf("UpdatePrompt() error = %v", err)
		}
		got, _ = s.GetPrompt(ctx, p.ID)
		if got.Temperature != 0 {
			t.Errorf("zero temperature not persisted: %v", got.Temperature)
		}

		list, err := s.ListPrompts(ctx)
		if err != nil || len(list) != 1 {
			t.Errorf("ListPrompts() = %v, %v", list, err)
		}
		if _, err := s.GetPrompt(ctx, "missing"); !errors.Is(err, ErrNotFound) {
			t.Errorf("GetPrompt(missing) error = %v, want ErrNotFound", err)
		}
	})

	t.Run("runs", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		at := now()
		runs := []*Run{
			{PromptID: "p1", BookInputID: "b1", Model: "m", Status: RunCompleted, CreatedAt: at},
			{PromptID: "p2", BookInputID: "b1", Model: "m", Status: RunFailed, CreatedAt: at},
			{PromptID: "p1", BookInputID: "b2", Model: "m", Status: RunCompleted, CreatedAt: at, Starred: true},
		}
		for _, r := range runs {
			if err := s.CreateRun(ctx, r); err != nil {
				t.Fatalf("CreateRun() error = %v", err)
			}
		}

		tests := []struct {
			name   string
			filter RunFilter
			want   []string
		}{
			{"all newest first", RunFilter{}, []string{runs[2].ID, runs[1].ID, runs[0].ID}},
			{"by book input", RunFilter{BookInputID: "b1"}, []string{runs[1].ID, runs[0].ID}},
			{"by prompt", RunFilter{PromptID: "p1"}, []string{runs[2].ID, runs[0].ID}},
			{"by status", RunFilter{Status: RunFailed}, []string{runs[1].ID}},
			{"starred", RunFilter{StarredOnly: true}, []string{runs[2].ID}},
			{"limit", RunFilter{Limit: 1}, []string{runs[2].ID}},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				list, err := s.ListRuns(ctx, tt.filter)
				if err != nil {
					t.Fatalf("ListRuns() error = %v", err)
				}
				ids := make([]string, len(list))
				for i, r := range list {
					ids[i] = r.ID
				}
				if diff := cmp.Diff(tt.want, ids); diff != "" {
					t.Errorf("ListRuns() mismatch (-want +got):\n%s", diff)
				}
			})
		}

		latest, err := s.LatestRun(ctx, "b1")
		if err != nil {
			t.Fatalf("LatestRun() error = %v", err)
		}
		if latest.ID != runs[1].ID {
			t.Errorf("LatestRun() = %s, want %s", latest.ID, runs[1].ID)
		}
		if _, err := s.LatestRun(ctx, "nobody"); !errors.Is(err, ErrNotFound) {
			t.Errorf("LatestRun(nobody) error = %v, want ErrNotFound", err)
		}

		r := runs[0]
		r.Starred = true
		r.Notes = "good one"
		r.DiscoveredFieldsID = "fs-9"
		if err := s.UpdateRun(ctx, r); err != nil {
			t.Fatalf("UpdateRun() error = %v", err)
		}
		got, err := s.GetRun(ctx, r.ID)
		if err != nil {
			t.Fatalf("GetRun() error = %v", err)
		}
		if !got.Starred || got.Notes != "good one" || got.DiscoveredFieldsID != "fs-9" {
			t.Errorf("after update = %+v", got)
		}
		if _, err := s.GetRun(ctx, "missing"); !errors.Is(err, ErrNotFound) {
			t.Errorf("GetRun(missing) error = %v, want ErrNotFound", err)
		}
	})

	t.Run("field sets", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		set := fields.NewSet()
		_ = set.Put("title_l1", fields.Text("Moby-Dick"))
		_ = set.Put("subtitle", fields.Empty)

		id, err := s.CreateFieldSet(ctx, set)
		if err != nil {
			t.Fatalf("CreateFieldSet() error = %v", err)
		}
		got, err := s.GetFieldSet(ctx, id)
		if err != nil {
			t.Fatalf("GetFieldSet() error = %v", err)
		}
		if diff := cmp.Diff(set.Stored(), got.Stored()); diff != "" {
			t.Errorf("GetFieldSet() mismatch (-want +got):\n%s", diff)
		}
		if !got.Get("author").IsUnknown() {
			t.Errorf("author = %v, want unknown", got.Get("author"))
		}

		_ = set.Put("subtitle", fields.Unknown)
		_ = set.Put("author", fields.Text("Herman Melville"))
		if err := s.UpdateFieldSet(ctx, id, set); err != nil {
			t.Fatalf("UpdateFieldSet() error = %v", err)
		}
		got, _ = s.GetFieldSet(ctx, id)
		if got != set {
			t.Errorf("after update = %v, want %v", got.Stored(), set.Stored())
		}

		if _, err := s.GetFieldSet(ctx, "missing"); !errors.Is(err, ErrNotFound) {
			t.Errorf("GetFieldSet(missing) error = %v, want ErrNotFound", err)
		}
		if err := s.UpdateFieldSet(ctx, "missing", set); !errors.Is(err, ErrNotFound) {
			t.Errorf("UpdateFieldSet(missing) error = %v, want ErrNotFound", err)
		}
	})
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		check   func() error
		wantErr bool
	}{
		{"book input ok", (&BookInput{Label: "x"}).Validate, false},
		{"book input no label", (&BookInput{}).Validate, true},
		{"prompt ok", (&Prompt{Label: "x", Temperature: 1}).Validate, false},
		{"prompt no label", (&Prompt{Temperature: 0.5}).Validate, true},
		{"prompt negative temperature", (&Prompt{Label: "x", Temperature: -0.1}).Validate, true},
		{"prompt temperature above one", (&Prompt{Label: "x", Temperature: 1.5}).Validate, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.check(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestRunStatusValid(t *testing.T) {
	for _, s := range []RunStatus{RunCompleted, RunFailed, RunCancelled} {
		if !s.Valid() {
			t.Errorf("%q should be valid", s)
		}
	}
	if RunStatus("running").Valid() {
		t.Error("running should not be valid")
	}
}

func TestNextSeqIncreases(t *testing.T) {
	prev := nextSeq()
	for i := 0; i < 1000; i++ {
		n := nextSeq()
		if n <= prev {
			t.Fatalf("nextSeq() = %d after %d", n, prev)
		}
		prev = n
	}
}
