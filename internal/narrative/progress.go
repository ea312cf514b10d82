package narrative

import (
	"time"

	"Inkbound/server/internal/bitmap"
)

// BookState is the per-book completion state tracked by a session.
type BookState struct {
	Bitmap     uint32 `json:"bitmap"`
	TotalParts int    `json:"total_parts"`
}

// Progress is the session progress aggregate. Values are immutable
// snapshots: every mutation returns a new copy so trigger evaluation can
// compare before and after without aliasing surprises.
type Progress struct {
	CurrentBeat        Beat                 `json:"current_beat"`
	UnlockedContentIDs []string             `json:"unlocked_content_ids"`
	FiredTriggers      map[string]bool      `json:"fired_triggers"`
	CurrentContentID   string               `json:"current_content_id"`
	LastUpdated        time.Time            `json:"last_updated"`
	Books              map[string]BookState `json:"books"`
	ArchiveRevealed    bool                 `json:"archive_revealed"`
	CurrentCategory    string               `json:"current_category"`
}

// NewProgress returns the new-game default progress snapshot.
func NewProgress(now time.Time) *Progress {
	return &Progress{
		CurrentBeat:   FirstBeat(),
		FiredTriggers: make(map[string]bool),
		Books:         make(map[string]BookState),
		LastUpdated:   now,
	}
}

// Clone returns a deep copy of the snapshot.
func (p *Progress) Clone() *Progress {
	next := *p
	next.UnlockedContentIDs = append([]string(nil), p.UnlockedContentIDs...)
	next.FiredTriggers = make(map[string]bool, len(p.FiredTriggers))
	for k, v := range p.FiredTriggers {
		next.FiredTriggers[k] = v
	}
	next.Books = make(map[string]BookState, len(p.Books))
	for k, v := range p.Books {
		next.Books[k] = v
	}
	return &next
}

// HasFired reports whether the named trigger has already fired.
func (p *Progress) HasFired(trigger string) bool {
	return p.FiredTriggers[trigger]
}

// HasUnlocked reports whether the content id is already in the unlock list.
func (p *Progress) HasUnlocked(contentID string) bool {
	for _, id := range p.UnlockedContentIDs {
		if id == contentID {
			return true
		}
	}
	return false
}

// WithBeat returns a snapshot advanced to the given beat.
func (p *Progress) WithBeat(beat Beat, now time.Time) *Progress {
	next := p.Clone()
	next.CurrentBeat = beat
	next.LastUpdated = now
	return next
}

// WithBook returns a snapshot with the book discovered. A re-discovered
// book keeps its bitmap, sanitized against the current part count in case
// the book shrank in a content edit.
func (p *Progress) WithBook(bookID string, totalParts int, now time.Time) *Progress {
	next := p.Clone()
	state := next.Books[bookID]
	state.Bitmap = bitmap.Sanitize(state.Bitmap, totalParts)
	state.TotalParts = totalParts
	next.Books[bookID] = state
	next.LastUpdated = now
	return next
}

// WithPartCompleted returns a snapshot with one part of a discovered book
// marked completed. Unknown books and out-of-range parts change nothing
// beyond the timestamp.
func (p *Progress) WithPartCompleted(bookID string, part int, now time.Time) *Progress {
	next := p.Clone()
	if state, ok := next.Books[bookID]; ok {
		state.Bitmap = bitmap.Sanitize(bitmap.SetPart(state.Bitmap, part), state.TotalParts)
		next.Books[bookID] = state
	}
	next.LastUpdated = now
	return next
}

// WithCategory returns a snapshot with the player's current category.
func (p *Progress) WithCategory(category string, now time.Time) *Progress {
	next := p.Clone()
	next.CurrentCategory = category
	next.LastUpdated = now
	return next
}

// WithArchiveRevealed returns a snapshot with the archive flag set.
func (p *Progress) WithArchiveRevealed(now time.Time) *Progress {
	next := p.Clone()
	next.ArchiveRevealed = true
	next.LastUpdated = now
	return next
}

// Unlock returns a snapshot with the content unlocked and the trigger
// recorded as fired. Unlocking an already-unlocked content id is
// idempotent on the unlock list; the trigger is recorded either way.
func (p *Progress) Unlock(trigger, contentID string, now time.Time) *Progress {
	next := p.Clone()
	if !next.HasUnlocked(contentID) {
		next.UnlockedContentIDs = append(next.UnlockedContentIDs, contentID)
	}
	next.FiredTriggers[trigger] = true
	next.CurrentContentID = contentID
	next.LastUpdated = now
	return next
}

// Sanitized returns a snapshot with every book bitmap masked to its part
// count. Applied to loaded data before any metrics are derived from it.
func (p *Progress) Sanitized() *Progress {
	next := p.Clone()
	for id, state := range next.Books {
		state.Bitmap = bitmap.Sanitize(state.Bitmap, state.TotalParts)
		next.Books[id] = state
	}
	if !next.CurrentBeat.Known() {
		next.CurrentBeat = FirstBeat()
	}
	return next
}
