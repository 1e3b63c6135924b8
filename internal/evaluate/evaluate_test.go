package evaluate

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/jackzampolin/promptlab/internal/fields"
	"github.com/jackzampolin/promptlab/internal/store"
)

func newTestService(t *testing.T) (*Service, *store.MemoryStore) {
	t.Helper()
	st := store.NewMemoryStore()
	return NewService(st, slog.New(slog.NewTextHandler(io.Discard, nil))), st
}

func setOf(t *testing.T, kv map[string]fields.Value) fields.Set {
	t.Helper()
	s := fields.NewSet()
	for k, v := range kv {
		if err := s.Put(k, v); err != nil {
			t.Fatal(err)
		}
	}
	return s
}

func mustFieldSet(t *testing.T, st store.Store, s fields.Set) string {
	t.Helper()
	id, err := st.CreateFieldSet(context.Background(), s)
	if err != nil {
		t.Fatal(err)
	}
	return id
}

func TestParseAndStore(t *testing.T) {
	ctx := context.Background()

	t.Run("empty markdown inserts nothing", func(t *testing.T) {
		svc, st := newTestService(t)
		if _, err := svc.ParseAndStore(ctx, ""); !errors.Is(err, ErrEmptyMarkdown) {
			t.Errorf("ParseAndStore(\"\") error = %v, want ErrEmptyMarkdown", err)
		}
		if n := st.FieldSetCount(); n != 0 {
			t.Errorf("FieldSetCount() = %d, want 0", n)
		}
	})

	t.Run("whitespace markdown stores an empty set", func(t *testing.T) {
		svc, st := newTestService(t)
		id, err := svc.ParseAndStore(ctx, "   \n\t")
		if err != nil {
			t.Fatalf("ParseAndStore() error = %v", err)
		}
		got, err := st.GetFieldSet(ctx, id)
		if err != nil {
			t.Fatal(err)
		}
		got.Each(func(d fields.Definition, v fields.Value) {
			if !v.IsEmpty() {
				t.Errorf("%s = %v, want empty", d.Key, v)
			}
		})
	})

	t.Run("two titles and nothing else", func(t *testing.T) {
		svc, st := newTestService(t)
		md := "<!-- field=\"bookTitle\" -->Title One\n<!-- field=\"bookTitle\" -->Title Two\n"

		id, err := svc.ParseAndStore(ctx, md)
		if err != nil {
			t.Fatalf("ParseAndStore() error = %v", err)
		}
		got, err := st.GetFieldSet(ctx, id)
		if err != nil {
			t.Fatal(err)
		}
		got.Each(func(d fields.Definition, v fields.Value) {
			switch d.Key {
			case "title_l1":
				if v != fields.Text("Title One") {
					t.Errorf("title_l1 = %v", v)
				}
			case "title_l2":
				if v != fields.Text("Title Two") {
					t.Errorf("title_l2 = %v", v)
				}
			default:
				if !v.IsEmpty() {
					t.Errorf("%s = %v, want empty", d.Key, v)
				}
			}
		})
		if n := st.FieldSetCount(); n != 1 {
			t.Errorf("FieldSetCount() = %d, want 1", n)
		}
	})

	t.Run("store failure", func(t *testing.T) {
		svc, st := newTestService(t)
		st.Err = errors.New("disk full")
		if _, err := svc.ParseAndStore(ctx, "text"); !errors.Is(err, st.Err) {
			t.Errorf("error = %v, want store error", err)
		}
	})
}

// scoreFixture creates a book input with optional correct and discovered
// sets and a run linking them.
type scoreFixture struct {
	correct    *fields.Set
	discovered *fields.Set
	noRun      bool
}

func (f scoreFixture) build(t *testing.T, st store.Store) *store.BookInput {
	t.Helper()
	ctx := context.Background()
	in := &store.BookInput{Label: "book", OCRMarkdown: "md"}
	if f.correct != nil {
		in.CorrectFieldsID = mustFieldSet(t, st, *f.correct)
	}
	if err := st.CreateBookInput(ctx, in); err != nil {
		t.Fatal(err)
	}
	if f.noRun {
		return in
	}
	run := &store.Run{BookInputID: in.ID, PromptID: "p", Status: store.RunCompleted}
	if f.discovered != nil {
		run.DiscoveredFieldsID = mustFieldSet(t, st, *f.discovered)
	}
	if err := st.CreateRun(ctx, run); err != nil {
		t.Fatal(err)
	}
	return in
}

func TestScore(t *testing.T) {
	foo := setOf(t, map[string]fields.Value{"title_l1": fields.Text("Foo"), "copyright": fields.Empty})
	fooLoose := setOf(t, map[string]fields.Value{"title_l1": fields.Text("foo "), "copyright": fields.Empty})
	bar := setOf(t, map[string]fields.Value{"title_l1": fields.Text("Bar")})
	shouted := setOf(t, map[string]fields.Value{"title_l1": fields.Text("FOO")})
	onlyEmpty := setOf(t, map[string]fields.Value{"copyright": fields.Empty})

	tests := []struct {
		name    string
		fixture scoreFixture
		want    int
		wantOK  bool
	}{
		{"normalized match", scoreFixture{correct: &foo, discovered: &fooLoose}, 100, true},
		{"half", scoreFixture{correct: &foo, discovered: &shouted}, 50, true},
		{"mismatch", scoreFixture{correct: &foo, discovered: &bar}, 0, true},
		{"title only mismatch", scoreFixture{correct: &bar, discovered: &foo}, 0, true},
		{"no correct set", scoreFixture{discovered: &foo}, 0, false},
		{"no run", scoreFixture{correct: &foo, noRun: true}, 0, false},
		{"no discovered set", scoreFixture{correct: &foo}, 0, false},
		{"no present correct fields", scoreFixture{correct: &onlyEmpty, discovered: &foo}, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, st := newTestService(t)
			in := tt.fixture.build(t, st)

			got, ok, err := svc.Score(context.Background(), in.ID)
			if err != nil {
				t.Fatalf("Score() error = %v", err)
			}
			if got != tt.want || ok != tt.wantOK {
				t.Errorf("Score() = %d, %v; want %d, %v", got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestScoreUsesLatestRun(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()
	correct := setOf(t, map[string]fields.Value{"author": fields.Text("Thoreau")})
	good := setOf(t, map[string]fields.Value{"author": fields.Text("thoreau")})
	bad := setOf(t, map[string]fields.Value{"author": fields.Text("Emerson")})

	in := scoreFixture{correct: &correct, discovered: &good}.build(t, st)
	if err := st.CreateRun(ctx, &store.Run{BookInputID: in.ID, DiscoveredFieldsID: mustFieldSet(t, st, bad)}); err != nil {
		t.Fatal(err)
	}

	got, ok, err := svc.Score(ctx, in.ID)
	if err != nil || !ok {
		t.Fatalf("Score() = %d, %v, %v", got, ok, err)
	}
	if got != 0 {
		t.Errorf("Score() = %d, want 0 from the newest run", got)
	}
}

func TestScoreStoreError(t *testing.T) {
	svc, st := newTestService(t)
	in := scoreFixture{}.build(t, st)
	st.Err = errors.New("connection refused")
	if _, _, err := svc.Score(context.Background(), in.ID); !errors.Is(err, st.Err) {
		t.Errorf("Score() error = %v, want store error", err)
	}
}

func TestCompareRun(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()
	correct := setOf(t, map[string]fields.Value{
		"title_l1": fields.Text("Walden"),
		"author":   fields.Text("Thoreau"),
	})
	discovered := setOf(t, map[string]fields.Value{
		"title_l1":  fields.Text("walden"),
		"publisher": fields.Text("Ticknor"),
	})
	in := scoreFixture{correct: &correct, discovered: &discovered}.build(t, st)
	run, err := st.LatestRun(ctx, in.ID)
	if err != nil {
		t.Fatal(err)
	}

	cmpRun, err := svc.CompareRun(ctx, run.ID)
	if err != nil {
		t.Fatalf("CompareRun() error = %v", err)
	}
	if len(cmpRun.Rows) != fields.Count {
		t.Fatalf("rows = %d, want %d", len(cmpRun.Rows), fields.Count)
	}
	head := []string{cmpRun.Rows[0].Key, cmpRun.Rows[1].Key, cmpRun.Rows[2].Key}
	if diff := cmp.Diff([]string{"author", "publisher", "title_l1"}, head); diff != "" {
		t.Errorf("row order mismatch (-want +got):\n%s", diff)
	}
	if !cmpRun.Scored || cmpRun.Score != 50 {
		t.Errorf("score = %d, %v", cmpRun.Score, cmpRun.Scored)
	}

	if _, err := svc.CompareRun(ctx, "missing"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("CompareRun(missing) error = %v, want ErrNotFound", err)
	}
}

func TestGrid(t *testing.T) {
	svc, st := newTestService(t)
	correct := setOf(t, map[string]fields.Value{"isbn": fields.Text("978-0")})
	scored := scoreFixture{correct: &correct, discovered: &correct}.build(t, st)
	bare := scoreFixture{noRun: true}.build(t, st)

	rows, err := svc.Grid(context.Background())
	if err != nil {
		t.Fatalf("Grid() error = %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("Grid() = %d rows", len(rows))
	}
	byID := map[string]GridRow{}
	for _, r := range rows {
		byID[r.Input.ID] = r
	}
	if r := byID[scored.ID]; !r.Scored || r.Score != 100 || r.LatestRun == nil {
		t.Errorf("scored row = %+v", r)
	}
	if r := byID[bare.ID]; r.Scored || r.LatestRun != nil {
		t.Errorf("bare row = %+v", r)
	}
}
