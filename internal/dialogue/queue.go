// Package dialogue sequences the animated presentation of narrative
// panels. At most two entries are visible at once; arrivals during an
// animated transition are buffered (last one wins) and replayed once the
// transition settles. Scheduled callbacks carry a generation stamp so a
// stale timer firing after Clear or a newer transition is a no-op.
package dialogue

import (
	"errors"
	"log"
	"sync"
	"time"

	"go.uber.org/atomic"
)

// State is the animation state of a visible slot.
type State string

const (
	StateEntering State = "entering"
	StateActive   State = "active"
	StateShifting State = "shifting"
	StateExiting  State = "exiting"
)

// MaxVisible is the number of concurrently visible entries.
const MaxVisible = 2

var (
	// ErrMissingID rejects entries without a caller-supplied id.
	ErrMissingID = errors.New("dialogue: entry id is required")
	// ErrNoChunks rejects entries with no text to reveal.
	ErrNoChunks = errors.New("dialogue: entry needs at least one chunk")
	// ErrDuplicateID rejects an id already on screen.
	ErrDuplicateID = errors.New("dialogue: entry id already visible")
)

// Entry is one speaker's turn. The caller supplies ID, Speaker and
// Chunks; the queue owns ChunkIndex and State while the entry is visible.
type Entry struct {
	ID         string   `json:"id"`
	Speaker    string   `json:"speaker"`
	Chunks     []string `json:"chunks"`
	ChunkIndex int      `json:"chunk_index"`
	State      State    `json:"state"`
}

// Timings are the fixed animation durations.
type Timings struct {
	Enter   time.Duration
	Shift   time.Duration
	Exit    time.Duration
	Stagger time.Duration
}

// DefaultTimings returns the stock 500ms transitions with a 100ms
// inter-slot stagger.
func DefaultTimings() Timings {
	return Timings{
		Enter:   500 * time.Millisecond,
		Shift:   500 * time.Millisecond,
		Exit:    500 * time.Millisecond,
		Stagger: 100 * time.Millisecond,
	}
}

// Callbacks are the one-way signals the queue emits. Both are optional.
type Callbacks struct {
	// EntryFinished fires when Advance is called on an entry with no
	// chunks left. The queue does not remove the entry itself; the
	// caller enqueues a replacement or ends the session with Clear.
	EntryFinished func(entryID string)
	// Drained fires exactly once per transition from at least one
	// visible entry to none, and never for a queue that was never used.
	Drained func()
}

// Queue is the dialogue presentation state machine. Safe for concurrent
// use; mutations during an animated transition are deferred, never
// blocked.
type Queue struct {
	mu         sync.Mutex
	visible    []*Entry // oldest first, len <= MaxVisible
	exiting    *Entry   // leaving the screen, discarded when its timer fires
	pending    *Entry   // most recent arrival buffered during a transition
	locked     bool     // transition in flight
	hadEntries bool     // guards Drained against never-used queues
	generation *atomic.Int64
	timings    Timings
	cb         Callbacks
	schedule   func(time.Duration, func())
}

// NewQueue builds a queue with the given timings and callbacks.
func NewQueue(timings Timings, cb Callbacks) *Queue {
	return &Queue{
		generation: atomic.NewInt64(0),
		timings:    timings,
		cb:         cb,
		schedule: func(d time.Duration, fn func()) {
			time.AfterFunc(d, fn)
		},
	}
}

// Enqueue submits an entry for presentation. During an in-flight
// transition the entry is buffered; only the most recently submitted
// pending entry survives the lock window.
func (q *Queue) Enqueue(entry Entry) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if entry.ID == "" {
		return ErrMissingID
	}
	if len(entry.Chunks) == 0 {
		return ErrNoChunks
	}
	if q.entryVisible(entry.ID) {
		return ErrDuplicateID
	}
	if q.locked {
		buffered := entry
		q.pending = &buffered
		return nil
	}
	q.admit(entry)
	return nil
}

// admit starts the animated transition for a committed entry. mu held.
func (q *Queue) admit(entry Entry) {
	entry.ChunkIndex = 0
	entry.State = StateEntering
	q.hadEntries = true
	q.locked = true
	gen := q.generation.Inc()

	switch len(q.visible) {
	case 0:
		e := entry
		q.visible = append(q.visible, &e)
		q.schedule(q.timings.Enter, func() { q.completeTransition(gen) })
	case 1:
		q.visible[0].State = StateShifting
		e := entry
		q.visible = append(q.visible, &e)
		q.schedule(q.transitionSpan(), func() { q.completeTransition(gen) })
	default:
		oldest := q.visible[0]
		oldest.State = StateExiting
		q.exiting = oldest
		q.visible[0] = q.visible[1]
		q.visible[0].State = StateShifting
		e := entry
		q.visible[1] = &e
		q.schedule(q.timings.Exit, func() { q.completeExit(gen) })
		q.schedule(q.transitionSpan(), func() { q.completeTransition(gen) })
	}
}

// transitionSpan is how long the whole staggered transition takes.
func (q *Queue) transitionSpan() time.Duration {
	longest := q.timings.Enter
	if q.timings.Shift > longest {
		longest = q.timings.Shift
	}
	if q.timings.Exit > longest {
		longest = q.timings.Exit
	}
	return longest + q.timings.Stagger
}

// completeExit discards the entry whose exit animation finished.
func (q *Queue) completeExit(gen int64) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if gen != q.generation.Load() {
		return
	}
	q.exiting = nil
}

// completeTransition settles the in-flight transition and replays the
// pending entry, if any. A panic while settling resets the lock and
// drops the buffer so the queue never stays stuck.
func (q *Queue) completeTransition(gen int64) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if gen != q.generation.Load() || !q.locked {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[Dialogue] Transition fault, resetting queue lock: %v", r)
			q.locked = false
			q.pending = nil
			q.exiting = nil
		}
	}()

	for _, e := range q.visible {
		e.State = StateActive
	}
	q.exiting = nil
	q.locked = false

	if q.pending != nil {
		next := *q.pending
		q.pending = nil
		if !q.entryVisible(next.ID) {
			q.admit(next)
		}
	}
}

// Advance reveals the next chunk of the most recent entry, or signals
// EntryFinished when none remain. A no-op while a transition is in
// flight or the queue is empty.
func (q *Queue) Advance() {
	q.mu.Lock()
	if q.locked || len(q.visible) == 0 {
		q.mu.Unlock()
		return
	}
	newest := q.visible[len(q.visible)-1]
	if newest.ChunkIndex+1 < len(newest.Chunks) {
		newest.ChunkIndex++
		q.mu.Unlock()
		return
	}
	id := newest.ID
	finished := q.cb.EntryFinished
	q.mu.Unlock()

	if finished != nil {
		finished(id)
	}
}

// Clear empties the queue immediately, releasing the lock and dropping
// any pending entry regardless of in-flight state. Fires Drained when
// entries were on screen.
func (q *Queue) Clear() {
	q.mu.Lock()
	q.generation.Inc() // fence: in-flight timers become stale
	had := len(q.visible) > 0 || q.exiting != nil
	q.visible = nil
	q.exiting = nil
	q.pending = nil
	q.locked = false
	fire := had && q.hadEntries
	if fire {
		q.hadEntries = false
	}
	drained := q.cb.Drained
	q.mu.Unlock()

	if fire && drained != nil {
		drained()
	}
}

// Visible returns a snapshot of the on-screen entries, oldest first.
func (q *Queue) Visible() []Entry {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]Entry, 0, len(q.visible))
	for _, e := range q.visible {
		entry := *e
		entry.Chunks = append([]string(nil), e.Chunks...)
		out = append(out, entry)
	}
	return out
}

// Len returns the number of visible entries.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.visible)
}

// InTransition reports whether an animated transition is in flight.
func (q *Queue) InTransition() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.locked
}

func (q *Queue) entryVisible(id string) bool {
	for _, e := range q.visible {
		if e.ID == id {
			return true
		}
	}
	return false
}
