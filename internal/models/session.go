package models

import (
	"time"

	"gorm.io/gorm"
)

// SessionRecord is the persisted session progress aggregate. List-shaped
// fields are stored as JSON text; per-book bitmaps live in BookProgress.
type SessionRecord struct {
	SessionID          string         `gorm:"primaryKey;size:64" json:"session_id"`
	CurrentBeat        string         `gorm:"size:32" json:"current_beat"`
	CurrentContentID   string         `gorm:"size:64" json:"current_content_id"`
	UnlockedContentIDs string         `gorm:"type:text" json:"-"` // JSON array, unlock order
	FiredTriggers      string         `gorm:"type:text" json:"-"` // JSON array
	CurrentCategory    string         `gorm:"size:64" json:"current_category"`
	ArchiveRevealed    bool           `json:"archive_revealed"`
	LastUpdated        time.Time      `json:"last_updated"`
	CreatedAt          time.Time      `json:"created_at"`
	UpdatedAt          time.Time      `json:"updated_at"`
	DeletedAt          gorm.DeletedAt `gorm:"index" json:"-"`
}

// BookProgress is one book's completion bitmap within a session.
type BookProgress struct {
	SessionID  string    `gorm:"primaryKey;size:64" json:"session_id"`
	BookID     string    `gorm:"primaryKey;size:64" json:"book_id"`
	Bitmap     uint32    `json:"bitmap"`
	TotalParts int       `json:"total_parts"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// UnlockRecord is one row of the append-only unlock history, kept so UI
// badge logic can page through unlocks without parsing the session blob.
type UnlockRecord struct {
	ID        uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	SessionID string    `gorm:"index;size:64" json:"session_id"`
	ContentID string    `gorm:"size:64" json:"content_id"`
	Trigger   string    `gorm:"size:64" json:"trigger"`
	CreatedAt time.Time `json:"created_at"`
}
