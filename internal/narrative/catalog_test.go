package narrative

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

const rulesYAML = `rules:
  - from_beat: hook
    to_beat: inciting_incident
    priority: 1
    description: first discovery moves the story
    conditions:
      books_discovered:
        min: 1
`

const blurbsYAML = `blurbs:
  - id: b-start
    trigger: game_start
    beat: hook
    order: 0
    speaker: The Librarian
    chunks:
      - "Welcome to the stacks."
      - "Mind the dust."
  - id: b-start-late
    trigger: game_start
    beat: hook
    order: 5
    speaker: The Librarian
    chunks:
      - "You again?"
  - id: b-bad
    trigger: game_start
    chunks: []
`

func TestLoadCatalog(t *testing.T) {
	dir := t.TempDir()
	rulesPath := writeFile(t, dir, "rules.yaml", rulesYAML)
	blurbsPath := writeFile(t, dir, "blurbs.yaml", blurbsYAML)

	cat := LoadCatalog(rulesPath, blurbsPath)
	if len(cat.Rules) != 1 {
		t.Fatalf("rules = %d, want 1", len(cat.Rules))
	}
	rule := cat.Rules[0]
	if rule.FromBeat != BeatHook || rule.ToBeat != BeatIncitingIncident {
		t.Errorf("rule beats = %q -> %q", rule.FromBeat, rule.ToBeat)
	}
	if bound, ok := rule.Conditions[MetricBooksDiscovered]; !ok || bound.Min == nil || *bound.Min != 1 {
		t.Errorf("rule condition parsed wrong: %+v", rule.Conditions)
	}
	// The chunkless blurb is dropped, the two valid ones kept.
	if len(cat.Blurbs) != 2 {
		t.Fatalf("blurbs = %d, want 2", len(cat.Blurbs))
	}
	if cat.Blurbs[0].Speaker != "The Librarian" || len(cat.Blurbs[0].Chunks) != 2 {
		t.Errorf("blurb parsed wrong: %+v", cat.Blurbs[0])
	}
}

func TestLoadCatalogDegradesToEmpty(t *testing.T) {
	dir := t.TempDir()
	malformed := writeFile(t, dir, "rules.yaml", "rules: {not a list")

	cat := LoadCatalog(malformed, filepath.Join(dir, "missing.yaml"))
	if len(cat.Rules) != 0 || len(cat.Blurbs) != 0 {
		t.Fatalf("expected empty catalog, got %d rules / %d blurbs", len(cat.Rules), len(cat.Blurbs))
	}

	// An empty catalog evaluates cleanly: zero matches ever.
	e := NewEvaluator(cat)
	p := NewProgress(time.Unix(0, 0))
	if f := e.CheckTrigger(p, Metrics{}, Metrics{BooksDiscovered: 50}); f != nil {
		t.Fatalf("empty catalog produced a firing: %+v", f)
	}
}

func TestContentForOrderAndBeat(t *testing.T) {
	cat := &Catalog{Blurbs: []Blurb{
		{ID: "late", Trigger: "t", Beat: BeatMidpoint, Order: 0, Chunks: []string{"x"}},
		{ID: "second", Trigger: "t", Beat: BeatHook, Order: 2, Chunks: []string{"x"}},
		{ID: "first", Trigger: "t", Beat: BeatHook, Order: 1, Chunks: []string{"x"}},
	}}

	if b := cat.ContentFor("t", BeatHook); b == nil || b.ID != "first" {
		t.Fatalf("ContentFor at hook = %+v, want first", b)
	}
	if b := cat.ContentFor("t", BeatMidpoint); b == nil || b.ID != "late" {
		t.Fatalf("ContentFor at midpoint = %+v, want late (order 0)", b)
	}
	if b := cat.ContentFor("other", BeatHook); b != nil {
		t.Fatalf("unknown trigger returned content: %+v", b)
	}
}

func TestCategories(t *testing.T) {
	cat := &Catalog{Blurbs: []Blurb{
		{ID: "a", Trigger: CategoryTrigger("arcana"), Chunks: []string{"x"}},
		{ID: "b", Trigger: CategoryTrigger("fables"), Chunks: []string{"x"}},
		{ID: "c", Trigger: CategoryTrigger("arcana"), Chunks: []string{"x"}},
		{ID: "d", Trigger: "first_book_discovered", Chunks: []string{"x"}},
	}}
	got := cat.Categories()
	if len(got) != 2 || got[0] != "arcana" || got[1] != "fables" {
		t.Fatalf("Categories() = %v, want [arcana fables]", got)
	}
}
