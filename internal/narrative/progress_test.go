package narrative

import (
	"testing"
	"time"
)

func TestNewProgressDefaults(t *testing.T) {
	p := NewProgress(time.Unix(0, 0))
	if p.CurrentBeat != FirstBeat() {
		t.Errorf("CurrentBeat = %q, want %q", p.CurrentBeat, FirstBeat())
	}
	if len(p.UnlockedContentIDs) != 0 || len(p.FiredTriggers) != 0 || len(p.Books) != 0 {
		t.Error("new progress should start empty")
	}
}

func TestMutationsDoNotAliasOriginal(t *testing.T) {
	now := time.Unix(0, 0)
	p := NewProgress(now).WithBook("alpha", 4, now)
	next := p.WithPartCompleted("alpha", 0, time.Unix(1, 0)).
		Unlock("first_book_discovered", "b-1", time.Unix(2, 0))

	if p.Books["alpha"].Bitmap != 0 {
		t.Error("original snapshot's bitmap was mutated")
	}
	if len(p.UnlockedContentIDs) != 0 || p.HasFired("first_book_discovered") {
		t.Error("original snapshot saw the unlock")
	}
	if next.Books["alpha"].Bitmap != 1 {
		t.Errorf("new snapshot bitmap = %d, want 1", next.Books["alpha"].Bitmap)
	}
}

func TestUnlockIdempotent(t *testing.T) {
	now := time.Unix(0, 0)
	p := NewProgress(now).
		Unlock("t1", "b-1", now).
		Unlock("t2", "b-1", now).
		Unlock("t2", "b-2", now)

	if len(p.UnlockedContentIDs) != 2 {
		t.Fatalf("unlock list = %v, want [b-1 b-2]", p.UnlockedContentIDs)
	}
	if p.UnlockedContentIDs[0] != "b-1" || p.UnlockedContentIDs[1] != "b-2" {
		t.Fatalf("unlock order = %v, want insertion order", p.UnlockedContentIDs)
	}
	if !p.HasFired("t1") || !p.HasFired("t2") {
		t.Error("both triggers should be recorded")
	}
	if p.CurrentContentID != "b-2" {
		t.Errorf("CurrentContentID = %q, want b-2", p.CurrentContentID)
	}
}

func TestWithBookSanitizesOnShrink(t *testing.T) {
	now := time.Unix(0, 0)
	p := NewProgress(now).WithBook("alpha", 4, now)
	for i := 0; i < 4; i++ {
		p = p.WithPartCompleted("alpha", i, now)
	}
	// The book is edited down to 2 parts: the stale high bits must go.
	p = p.WithBook("alpha", 2, now)
	if p.Books["alpha"].Bitmap != 3 {
		t.Errorf("bitmap after shrink = %d, want 3", p.Books["alpha"].Bitmap)
	}
	if p.Books["alpha"].TotalParts != 2 {
		t.Errorf("TotalParts = %d, want 2", p.Books["alpha"].TotalParts)
	}
}

func TestWithPartCompletedUnknownBook(t *testing.T) {
	now := time.Unix(0, 0)
	p := NewProgress(now).WithPartCompleted("ghost", 0, now)
	if len(p.Books) != 0 {
		t.Error("completing a part of an undiscovered book must not create it")
	}
}

func TestSanitized(t *testing.T) {
	now := time.Unix(0, 0)
	p := NewProgress(now)
	p.Books["alpha"] = BookState{Bitmap: 0xFF, TotalParts: 4}
	p.CurrentBeat = "corrupted_beat"

	clean := p.Sanitized()
	if clean.Books["alpha"].Bitmap != 15 {
		t.Errorf("sanitized bitmap = %d, want 15", clean.Books["alpha"].Bitmap)
	}
	if clean.CurrentBeat != FirstBeat() {
		t.Errorf("unknown beat should reset to %q, got %q", FirstBeat(), clean.CurrentBeat)
	}
}
