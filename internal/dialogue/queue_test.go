package dialogue

import (
	"testing"
	"time"
)

// stubScheduler captures scheduled callbacks so tests can settle
// transitions deterministically.
type stubScheduler struct {
	tasks []func()
}

func (s *stubScheduler) schedule(_ time.Duration, fn func()) {
	s.tasks = append(s.tasks, fn)
}

// settle runs every scheduled callback, including ones scheduled while
// settling (pending replays).
func (s *stubScheduler) settle() {
	for len(s.tasks) > 0 {
		next := s.tasks[0]
		s.tasks = s.tasks[1:]
		next()
	}
}

func newTestQueue(cb Callbacks) (*Queue, *stubScheduler) {
	q := NewQueue(DefaultTimings(), cb)
	s := &stubScheduler{}
	q.schedule = s.schedule
	return q, s
}

func entry(id string, chunks ...string) Entry {
	return Entry{ID: id, Speaker: "The Librarian", Chunks: chunks}
}

func visibleIDs(q *Queue) []string {
	var ids []string
	for _, e := range q.Visible() {
		ids = append(ids, e.ID)
	}
	return ids
}

func TestEnqueueValidation(t *testing.T) {
	q, s := newTestQueue(Callbacks{})
	if err := q.Enqueue(Entry{Chunks: []string{"x"}}); err != ErrMissingID {
		t.Errorf("missing id: got %v, want ErrMissingID", err)
	}
	if err := q.Enqueue(Entry{ID: "a"}); err != ErrNoChunks {
		t.Errorf("no chunks: got %v, want ErrNoChunks", err)
	}
	if err := q.Enqueue(entry("a", "x")); err != nil {
		t.Fatalf("valid enqueue failed: %v", err)
	}
	s.settle()
	if err := q.Enqueue(entry("a", "y")); err != ErrDuplicateID {
		t.Errorf("duplicate id: got %v, want ErrDuplicateID", err)
	}
}

func TestFirstEntryBecomesActive(t *testing.T) {
	q, s := newTestQueue(Callbacks{})
	if err := q.Enqueue(entry("a", "x")); err != nil {
		t.Fatal(err)
	}
	if !q.InTransition() {
		t.Error("enqueue should start a transition")
	}
	if got := q.Visible(); len(got) != 1 || got[0].State != StateEntering {
		t.Fatalf("visible = %+v, want one entering entry", got)
	}
	s.settle()
	if q.InTransition() {
		t.Error("transition should be settled")
	}
	if got := q.Visible(); got[0].State != StateActive {
		t.Errorf("state = %q, want active", got[0].State)
	}
}

func TestSecondEntryShiftsFirst(t *testing.T) {
	q, s := newTestQueue(Callbacks{})
	_ = q.Enqueue(entry("a", "x"))
	s.settle()
	_ = q.Enqueue(entry("b", "y"))

	got := q.Visible()
	if len(got) != 2 || got[0].State != StateShifting || got[1].State != StateEntering {
		t.Fatalf("mid-transition states = %+v", got)
	}
	s.settle()
	for _, e := range q.Visible() {
		if e.State != StateActive {
			t.Errorf("entry %s state = %q, want active", e.ID, e.State)
		}
	}
}

func TestCapacityEvictsOldest(t *testing.T) {
	q, s := newTestQueue(Callbacks{})
	_ = q.Enqueue(entry("a", "x"))
	s.settle()
	_ = q.Enqueue(entry("b", "y"))
	s.settle()
	_ = q.Enqueue(entry("c", "z"))

	got := visibleIDs(q)
	if len(got) != MaxVisible || got[0] != "b" || got[1] != "c" {
		t.Fatalf("visible = %v, want [b c]", got)
	}
	s.settle()
	if got := visibleIDs(q); len(got) != 2 || got[0] != "b" || got[1] != "c" {
		t.Fatalf("after settle visible = %v, want [b c]", got)
	}
}

func TestPendingBufferKeepsLastOnly(t *testing.T) {
	q, s := newTestQueue(Callbacks{})
	// A starts its transition; B and C arrive during the lock window.
	_ = q.Enqueue(entry("a", "x"))
	_ = q.Enqueue(entry("b", "y"))
	_ = q.Enqueue(entry("c", "z"))

	s.settle()
	got := visibleIDs(q)
	if len(got) != 2 || got[0] != "a" || got[1] != "c" {
		t.Fatalf("visible = %v, want [a c] (b superseded)", got)
	}
}

func TestPendingProcessedAfterTransition(t *testing.T) {
	// Spec ordering scenario: A, then B during A's transition, then C
	// after B is committed -> visible [B, C] with A removed.
	q, s := newTestQueue(Callbacks{})
	_ = q.Enqueue(entry("a", "1"))
	_ = q.Enqueue(entry("b", "2"))
	s.settle() // commits A, then replays B
	_ = q.Enqueue(entry("c", "3"))
	s.settle()

	got := visibleIDs(q)
	if len(got) != 2 || got[0] != "b" || got[1] != "c" {
		t.Fatalf("visible = %v, want [b c]", got)
	}
}

func TestAdvanceRevealsChunksThenNotifies(t *testing.T) {
	var finished []string
	q, s := newTestQueue(Callbacks{
		EntryFinished: func(id string) { finished = append(finished, id) },
	})
	_ = q.Enqueue(entry("a", "x", "y"))
	s.settle()

	q.Advance()
	if len(finished) != 0 {
		t.Fatal("revealing a chunk must not notify the caller")
	}
	if got := q.Visible(); got[0].ChunkIndex != 1 {
		t.Fatalf("chunk index = %d, want 1", got[0].ChunkIndex)
	}

	q.Advance()
	if len(finished) != 1 || finished[0] != "a" {
		t.Fatalf("finished = %v, want [a]", finished)
	}
	// The queue does not remove the entry itself.
	if q.Len() != 1 {
		t.Errorf("len = %d, want 1", q.Len())
	}
}

func TestAdvanceNoOpDuringTransitionOrEmpty(t *testing.T) {
	notified := 0
	q, s := newTestQueue(Callbacks{
		EntryFinished: func(string) { notified++ },
	})
	q.Advance() // empty queue

	_ = q.Enqueue(entry("a", "x"))
	q.Advance() // transition in flight
	if notified != 0 {
		t.Fatalf("advance produced %d notifications, want 0", notified)
	}
	s.settle()
	q.Advance()
	if notified != 1 {
		t.Fatalf("advance after settle produced %d notifications, want 1", notified)
	}
}

func TestAdvanceTargetsNewestEntry(t *testing.T) {
	var finished []string
	q, s := newTestQueue(Callbacks{
		EntryFinished: func(id string) { finished = append(finished, id) },
	})
	_ = q.Enqueue(entry("a", "old", "older"))
	s.settle()
	_ = q.Enqueue(entry("b", "new"))
	s.settle()

	q.Advance()
	if len(finished) != 1 || finished[0] != "b" {
		t.Fatalf("finished = %v, want [b]", finished)
	}
}

func TestDrainedFiresOnceAndOnlyAfterUse(t *testing.T) {
	drained := 0
	q, s := newTestQueue(Callbacks{
		Drained: func() { drained++ },
	})

	// Never-used queue: clearing must not signal.
	q.Clear()
	if drained != 0 {
		t.Fatalf("drained = %d for a never-used queue, want 0", drained)
	}

	_ = q.Enqueue(entry("a", "x"))
	s.settle()
	q.Clear()
	if drained != 1 {
		t.Fatalf("drained = %d, want 1", drained)
	}
	// Clearing the already-empty queue stays quiet.
	q.Clear()
	if drained != 1 {
		t.Fatalf("drained = %d after second clear, want 1", drained)
	}

	// A new presentation cycle signals again.
	_ = q.Enqueue(entry("b", "y"))
	s.settle()
	q.Clear()
	if drained != 2 {
		t.Fatalf("drained = %d after reuse, want 2", drained)
	}
}

func TestClearDuringTransitionResetsEverything(t *testing.T) {
	q, s := newTestQueue(Callbacks{})
	_ = q.Enqueue(entry("a", "x"))
	_ = q.Enqueue(entry("b", "y")) // pending
	q.Clear()

	if q.Len() != 0 || q.InTransition() {
		t.Fatal("clear must empty the queue and release the lock")
	}

	// The stale transition timer fires after Clear: it must be a no-op.
	s.settle()
	if q.Len() != 0 || q.InTransition() {
		t.Fatal("stale callback mutated a cleared queue")
	}

	// The queue remains usable.
	if err := q.Enqueue(entry("c", "z")); err != nil {
		t.Fatalf("enqueue after clear failed: %v", err)
	}
	s.settle()
	if got := visibleIDs(q); len(got) != 1 || got[0] != "c" {
		t.Fatalf("visible = %v, want [c]", got)
	}
}

func TestStaleCallbackFromSupersededTransition(t *testing.T) {
	q, s := newTestQueue(Callbacks{})
	_ = q.Enqueue(entry("a", "x"))

	// Capture A's completion but do not run it yet.
	stale := s.tasks[0]
	s.tasks = nil

	q.Clear()
	_ = q.Enqueue(entry("b", "y"))

	// A's completion fires late, against a newer generation.
	stale()
	if got := q.Visible(); len(got) != 1 || got[0].ID != "b" || got[0].State != StateEntering {
		t.Fatalf("stale callback disturbed the new transition: %+v", got)
	}
	s.settle()
	if got := q.Visible(); got[0].State != StateActive {
		t.Fatalf("state = %q, want active", got[0].State)
	}
}

func TestNeverMoreThanTwoVisible(t *testing.T) {
	q, s := newTestQueue(Callbacks{})
	for i, id := range []string{"a", "b", "c", "d", "e"} {
		_ = q.Enqueue(entry(id, "chunk"))
		if q.Len() > MaxVisible {
			t.Fatalf("after enqueue %d: %d visible entries", i, q.Len())
		}
		s.settle()
		if q.Len() > MaxVisible {
			t.Fatalf("after settle %d: %d visible entries", i, q.Len())
		}
	}
	if got := visibleIDs(q); got[0] != "d" || got[1] != "e" {
		t.Fatalf("visible = %v, want [d e]", got)
	}
}
