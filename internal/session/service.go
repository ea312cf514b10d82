// Package session owns the live game sessions. It runs the control flow
// of the narrative core: a game event updates the progress snapshot, the
// metrics delta is evaluated against the rules and triggers, a matched
// unlock is persisted and announced, and its blurb is handed to the
// session's dialogue queue for presentation.
package session

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"Inkbound/server/internal/bitmap"
	"Inkbound/server/internal/dialogue"
	"Inkbound/server/internal/interfaces"
	"Inkbound/server/internal/narrative"
)

// ErrSessionNotActive reports an operation on a session id that has not
// been started in this process.
var ErrSessionNotActive = errors.New("session not active")

// Service coordinates session progress, evaluation, persistence and
// dialogue presentation. Constructed once and passed by reference; there
// are no package-level singletons so independent sessions (and tests)
// never share hidden state.
type Service struct {
	evaluator *narrative.Evaluator
	store     interfaces.ProgressStore // optional
	cache     interfaces.ProgressCache // optional
	notifier  interfaces.Notifier      // optional
	timings   dialogue.Timings

	mu       sync.RWMutex
	sessions map[string]*liveSession

	now func() time.Time
}

type liveSession struct {
	id       string
	progress *narrative.Progress
	queue    *dialogue.Queue
}

// Snapshot is the read view of a live session handed to the web layer.
type Snapshot struct {
	SessionID string               `json:"session_id"`
	Progress  *narrative.Progress  `json:"progress"`
	Dialogue  []dialogue.Entry     `json:"dialogue"`
	Books     map[string]BookView  `json:"books"`
}

// BookView is the per-book completion summary derived from the bitmap.
type BookView struct {
	Bitmap          uint32 `json:"bitmap"`
	TotalParts      int    `json:"total_parts"`
	PartsCompleted  int    `json:"parts_completed"`
	Percent         int    `json:"percent"`
	Complete        bool   `json:"complete"`
	FirstIncomplete int    `json:"first_incomplete"`
}

// NewService builds the session service. Store, cache and notifier may
// each be nil: the service then runs memory-only and unobserved, which is
// the degraded mode the game falls back to when infrastructure is down.
func NewService(
	evaluator *narrative.Evaluator,
	store interfaces.ProgressStore,
	cache interfaces.ProgressCache,
	notifier interfaces.Notifier,
	timings dialogue.Timings,
) *Service {
	return &Service{
		evaluator: evaluator,
		store:     store,
		cache:     cache,
		notifier:  notifier,
		timings:   timings,
		sessions:  make(map[string]*liveSession),
		now:       time.Now,
	}
}

// StartSession activates a session: cached or stored progress when it
// exists, new-game defaults otherwise. Starting an already-active
// session is a no-op beyond returning its snapshot. The game-start
// evaluation runs here so a brand new player gets the opening blurb.
func (s *Service) StartSession(ctx context.Context, sessionID string) (*Snapshot, error) {
	if sessionID == "" {
		return nil, fmt.Errorf("session id is required")
	}

	s.mu.Lock()
	if sess, ok := s.sessions[sessionID]; ok {
		snap := s.snapshotLocked(sess)
		s.mu.Unlock()
		return snap, nil
	}

	progress := s.loadProgress(ctx, sessionID)
	sess := &liveSession{
		id:       sessionID,
		progress: progress,
	}
	sess.queue = dialogue.NewQueue(s.timings, dialogue.Callbacks{
		EntryFinished: func(entryID string) { s.entryFinished(sessionID, entryID) },
		Drained:       func() { s.queueDrained(sessionID) },
	})
	s.sessions[sessionID] = sess
	s.mu.Unlock()

	return s.applyEvent(ctx, sessionID, func(p *narrative.Progress) *narrative.Progress {
		return p
	})
}

// EndSession clears the session's dialogue, persists its progress one
// last time and drops it from the active map.
func (s *Service) EndSession(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	sess, ok := s.sessions[sessionID]
	if !ok {
		s.mu.Unlock()
		return ErrSessionNotActive
	}
	delete(s.sessions, sessionID)
	progress := sess.progress
	s.mu.Unlock()

	sess.queue.Clear()
	s.persist(ctx, sessionID, progress)
	return nil
}

// BookDiscovered records a newly discovered book and evaluates the
// narrative consequences.
func (s *Service) BookDiscovered(ctx context.Context, sessionID, bookID string, totalParts int) (*Snapshot, error) {
	if bookID == "" {
		return nil, fmt.Errorf("book id is required")
	}
	if totalParts < 1 || totalParts > bitmap.MaxParts {
		return nil, fmt.Errorf("total parts must be in [1,%d], got %d", bitmap.MaxParts, totalParts)
	}
	return s.applyEvent(ctx, sessionID, func(p *narrative.Progress) *narrative.Progress {
		return p.WithBook(bookID, totalParts, s.now())
	})
}

// PuzzleSolved records one solved puzzle (one completed book part) and
// evaluates the narrative consequences.
func (s *Service) PuzzleSolved(ctx context.Context, sessionID, bookID string, part int) (*Snapshot, error) {
	if bookID == "" {
		return nil, fmt.Errorf("book id is required")
	}
	return s.applyEvent(ctx, sessionID, func(p *narrative.Progress) *narrative.Progress {
		if _, ok := p.Books[bookID]; !ok {
			log.Printf("[Session] %s: puzzle solved for undiscovered book %s, ignoring", sessionID, bookID)
			return p
		}
		return p.WithPartCompleted(bookID, part, s.now())
	})
}

// CategoryEntered records the player browsing into a category.
func (s *Service) CategoryEntered(ctx context.Context, sessionID, category string) (*Snapshot, error) {
	return s.applyEvent(ctx, sessionID, func(p *narrative.Progress) *narrative.Progress {
		return p.WithCategory(category, s.now())
	})
}

// ArchiveRevealed records the one-way reveal of the hidden archive.
func (s *Service) ArchiveRevealed(ctx context.Context, sessionID string) (*Snapshot, error) {
	return s.applyEvent(ctx, sessionID, func(p *narrative.Progress) *narrative.Progress {
		if p.ArchiveRevealed {
			return p
		}
		return p.WithArchiveRevealed(s.now())
	})
}

// AdvanceDialogue forwards a player tap to the session's dialogue queue.
func (s *Service) AdvanceDialogue(sessionID string) error {
	sess, err := s.session(sessionID)
	if err != nil {
		return err
	}
	sess.queue.Advance()
	return nil
}

// EndDialogue closes the narrative presentation for the session.
func (s *Service) EndDialogue(sessionID string) error {
	sess, err := s.session(sessionID)
	if err != nil {
		return err
	}
	sess.queue.Clear()
	return nil
}

// Snapshot returns a defensive copy of the session's current state.
func (s *Service) Snapshot(sessionID string) (*Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[sessionID]
	if !ok {
		return nil, ErrSessionNotActive
	}
	return s.snapshotLocked(sess), nil
}

// ActiveSessions returns the ids of sessions live in this process.
func (s *Service) ActiveSessions() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.sessions))
	for id := range s.sessions {
		ids = append(ids, id)
	}
	return ids
}

// applyEvent is the heart of the control flow: mutate the snapshot,
// recompute metrics, apply at most one beat advancement and one trigger
// firing, persist, notify, and enqueue any unlocked blurb.
func (s *Service) applyEvent(ctx context.Context, sessionID string, mutate func(*narrative.Progress) *narrative.Progress) (*Snapshot, error) {
	sess, err := s.session(sessionID)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	prevMetrics := narrative.ComputeMetrics(sess.progress)
	next := mutate(sess.progress)
	metrics := narrative.ComputeMetrics(next)

	if rule := s.evaluator.CheckBeatAdvancement(next, metrics); rule != nil {
		previous := next.CurrentBeat
		next = next.WithBeat(rule.ToBeat, s.now())
		log.Printf("[Session] %s: story beat %s -> %s (%s)", sessionID, previous, rule.ToBeat, rule.Description)
		if s.notifier != nil {
			s.notifier.BeatChanged(sessionID, previous, rule.ToBeat)
		}
	}

	var firing *narrative.Firing
	if firing = s.evaluator.CheckTrigger(next, prevMetrics, metrics); firing != nil {
		next = next.Unlock(firing.Trigger, firing.Content.ID, s.now())
		log.Printf("[Session] %s: trigger %s unlocked %s", sessionID, firing.Trigger, firing.Content.ID)
	}

	sess.progress = next
	snap := s.snapshotLocked(sess)
	queue := sess.queue
	s.mu.Unlock()

	if firing != nil {
		if s.notifier != nil {
			s.notifier.ContentUnlocked(sessionID, firing.Content.ID, firing.Trigger)
		}
		if s.store != nil {
			if err := s.store.RecordUnlock(ctx, sessionID, firing.Content.ID, firing.Trigger); err != nil {
				log.Printf("[Session] Warning: failed to record unlock for %s: %v", sessionID, err)
			}
		}
		entry := dialogue.Entry{
			ID:      firing.Content.ID,
			Speaker: firing.Content.Speaker,
			Chunks:  firing.Content.Chunks,
		}
		if err := queue.Enqueue(entry); err != nil {
			log.Printf("[Session] Warning: failed to enqueue blurb %s: %v", firing.Content.ID, err)
		}
	}

	s.persist(ctx, sessionID, next)
	return snap, nil
}

// entryFinished handles the queue's "advance the narrative source"
// signal. The service is the narrative source here, and unlocks enqueue
// their blurbs directly, so a finished entry with nothing behind it ends
// the presentation.
func (s *Service) entryFinished(sessionID, entryID string) {
	log.Printf("[Session] %s: dialogue entry %s finished", sessionID, entryID)
	sess, err := s.session(sessionID)
	if err != nil {
		return
	}
	sess.queue.Clear()
}

func (s *Service) queueDrained(sessionID string) {
	if s.notifier != nil {
		s.notifier.QueueDrained(sessionID)
	}
}

func (s *Service) session(sessionID string) (*liveSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[sessionID]
	if !ok {
		return nil, ErrSessionNotActive
	}
	return sess, nil
}

// loadProgress resolves starting progress: cache, then store, then
// new-game defaults. Loaded snapshots arrive pre-sanitized.
func (s *Service) loadProgress(ctx context.Context, sessionID string) *narrative.Progress {
	if s.cache != nil {
		p, err := s.cache.GetCachedProgress(ctx, sessionID)
		if err == nil {
			return p
		}
		if !errors.Is(err, interfaces.ErrSessionNotFound) {
			log.Printf("[Session] Warning: progress cache read failed for %s: %v", sessionID, err)
		}
	}
	if s.store != nil {
		p, err := s.store.LoadProgress(ctx, sessionID)
		if err == nil {
			return p
		}
		if !errors.Is(err, interfaces.ErrSessionNotFound) {
			log.Printf("[Session] Warning: progress load failed for %s: %v", sessionID, err)
		}
	}
	return narrative.NewProgress(s.now())
}

// persist writes through to the store and refreshes the cache. Failures
// degrade to in-memory progress with a warning; the game keeps running.
func (s *Service) persist(ctx context.Context, sessionID string, p *narrative.Progress) {
	if s.store != nil {
		if err := s.store.SaveProgress(ctx, sessionID, p); err != nil {
			log.Printf("[Session] Warning: failed to save progress for %s: %v", sessionID, err)
		}
	}
	if s.cache != nil {
		if err := s.cache.CacheProgress(ctx, sessionID, p); err != nil {
			log.Printf("[Session] Warning: failed to cache progress for %s: %v", sessionID, err)
		}
	}
}

// snapshotLocked builds the read view. Callers hold s.mu.
func (s *Service) snapshotLocked(sess *liveSession) *Snapshot {
	progress := sess.progress.Clone()
	books := make(map[string]BookView, len(progress.Books))
	for id, state := range progress.Books {
		books[id] = BookView{
			Bitmap:          state.Bitmap,
			TotalParts:      state.TotalParts,
			PartsCompleted:  bitmap.Count(bitmap.Sanitize(state.Bitmap, state.TotalParts)),
			Percent:         bitmap.Percent(state.Bitmap, state.TotalParts),
			Complete:        bitmap.IsComplete(state.Bitmap, state.TotalParts),
			FirstIncomplete: bitmap.FirstIncomplete(state.Bitmap, state.TotalParts),
		}
	}
	return &Snapshot{
		SessionID: sess.id,
		Progress:  progress,
		Dialogue:  sess.queue.Visible(),
		Books:     books,
	}
}
