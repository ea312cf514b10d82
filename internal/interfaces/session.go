// Package interfaces defines the narrow seams between the narrative core
// and its collaborators: persistence, caching, and outbound notifications.
package interfaces

import (
	"context"
	"errors"

	"Inkbound/server/internal/narrative"
)

// ErrSessionNotFound reports that no persisted progress exists for a
// session id. A fresh session starts from defaults in that case.
var ErrSessionNotFound = errors.New("session not found")

// ProgressStore is the durable home of session progress snapshots.
type ProgressStore interface {
	// SaveProgress writes the full snapshot for a session.
	SaveProgress(ctx context.Context, sessionID string, p *narrative.Progress) error

	// LoadProgress reads the snapshot for a session, or
	// ErrSessionNotFound when none exists.
	LoadProgress(ctx context.Context, sessionID string) (*narrative.Progress, error)

	// RecordUnlock appends one row to the unlock history.
	RecordUnlock(ctx context.Context, sessionID, contentID, trigger string) error
}

// ProgressCache is the hot, TTL-bounded copy of session progress.
type ProgressCache interface {
	CacheProgress(ctx context.Context, sessionID string, p *narrative.Progress) error

	// GetCachedProgress returns ErrSessionNotFound on a cache miss.
	GetCachedProgress(ctx context.Context, sessionID string) (*narrative.Progress, error)

	InvalidateProgress(ctx context.Context, sessionID string) error
}

// Notifier receives the core's one-way narrative signals. The core never
// depends on a subscriber being present; a nil Notifier is valid.
type Notifier interface {
	BeatChanged(sessionID string, previous, current narrative.Beat)
	ContentUnlocked(sessionID, contentID, trigger string)
	QueueDrained(sessionID string)
}
