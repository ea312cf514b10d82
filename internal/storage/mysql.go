package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"Inkbound/server/internal/config"
	"Inkbound/server/internal/interfaces"
	"Inkbound/server/internal/models"
	"Inkbound/server/internal/narrative"
)

type MySQLStore struct {
	db *gorm.DB
}

func NewMySQLStore(cfg config.MySQLConfig) (*MySQLStore, error) {
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		cfg.Username,
		cfg.Password,
		cfg.Host,
		cfg.Port,
		cfg.Database,
	)

	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}

	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime())

	if err := db.AutoMigrate(
		&models.SessionRecord{},
		&models.BookProgress{},
		&models.UnlockRecord{},
	); err != nil {
		return nil, err
	}

	return &MySQLStore{db: db}, nil
}

func (s *MySQLStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *MySQLStore) GetDB() *gorm.DB {
	return s.db
}

// Transaction helper
func (s *MySQLStore) WithTx(fn func(*gorm.DB) error) error {
	return s.db.Transaction(fn)
}

// SaveProgress writes the full snapshot: the session row plus one
// BookProgress row per discovered book, in a single transaction.
func (s *MySQLStore) SaveProgress(ctx context.Context, sessionID string, p *narrative.Progress) error {
	record, books, err := recordFromProgress(sessionID, p)
	if err != nil {
		return fmt.Errorf("failed to encode session %s: %w", sessionID, err)
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(&record).Error; err != nil {
			return fmt.Errorf("failed to save session record: %w", err)
		}
		if err := tx.Where("session_id = ?", sessionID).Delete(&models.BookProgress{}).Error; err != nil {
			return fmt.Errorf("failed to reset book progress: %w", err)
		}
		if len(books) > 0 {
			if err := tx.Create(&books).Error; err != nil {
				return fmt.Errorf("failed to save book progress: %w", err)
			}
		}
		return nil
	})
}

// LoadProgress reads the snapshot for a session, or
// interfaces.ErrSessionNotFound when the session has never been saved.
func (s *MySQLStore) LoadProgress(ctx context.Context, sessionID string) (*narrative.Progress, error) {
	var record models.SessionRecord
	err := s.db.WithContext(ctx).First(&record, "session_id = ?", sessionID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, interfaces.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session record: %w", err)
	}

	var books []models.BookProgress
	if err := s.db.WithContext(ctx).Where("session_id = ?", sessionID).Find(&books).Error; err != nil {
		return nil, fmt.Errorf("failed to load book progress: %w", err)
	}

	return progressFromRecord(record, books)
}

// RecordUnlock appends one row to the unlock history.
func (s *MySQLStore) RecordUnlock(ctx context.Context, sessionID, contentID, trigger string) error {
	row := models.UnlockRecord{
		SessionID: sessionID,
		ContentID: contentID,
		Trigger:   trigger,
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("failed to record unlock: %w", err)
	}
	return nil
}

// UnlockHistory returns the unlock rows for a session, oldest first.
func (s *MySQLStore) UnlockHistory(ctx context.Context, sessionID string) ([]models.UnlockRecord, error) {
	var rows []models.UnlockRecord
	err := s.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("id asc").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load unlock history: %w", err)
	}
	return rows, nil
}

func recordFromProgress(sessionID string, p *narrative.Progress) (models.SessionRecord, []models.BookProgress, error) {
	unlocked, err := json.Marshal(p.UnlockedContentIDs)
	if err != nil {
		return models.SessionRecord{}, nil, err
	}

	fired := make([]string, 0, len(p.FiredTriggers))
	for trigger := range p.FiredTriggers {
		fired = append(fired, trigger)
	}
	sort.Strings(fired)
	firedJSON, err := json.Marshal(fired)
	if err != nil {
		return models.SessionRecord{}, nil, err
	}

	record := models.SessionRecord{
		SessionID:          sessionID,
		CurrentBeat:        string(p.CurrentBeat),
		CurrentContentID:   p.CurrentContentID,
		UnlockedContentIDs: string(unlocked),
		FiredTriggers:      string(firedJSON),
		CurrentCategory:    p.CurrentCategory,
		ArchiveRevealed:    p.ArchiveRevealed,
		LastUpdated:        p.LastUpdated,
	}

	bookIDs := make([]string, 0, len(p.Books))
	for id := range p.Books {
		bookIDs = append(bookIDs, id)
	}
	sort.Strings(bookIDs)
	books := make([]models.BookProgress, 0, len(bookIDs))
	for _, id := range bookIDs {
		state := p.Books[id]
		books = append(books, models.BookProgress{
			SessionID:  sessionID,
			BookID:     id,
			Bitmap:     state.Bitmap,
			TotalParts: state.TotalParts,
		})
	}

	return record, books, nil
}

func progressFromRecord(record models.SessionRecord, books []models.BookProgress) (*narrative.Progress, error) {
	p := &narrative.Progress{
		CurrentBeat:      narrative.Beat(record.CurrentBeat),
		CurrentContentID: record.CurrentContentID,
		CurrentCategory:  record.CurrentCategory,
		ArchiveRevealed:  record.ArchiveRevealed,
		LastUpdated:      record.LastUpdated,
		FiredTriggers:    make(map[string]bool),
		Books:            make(map[string]narrative.BookState, len(books)),
	}

	if record.UnlockedContentIDs != "" {
		if err := json.Unmarshal([]byte(record.UnlockedContentIDs), &p.UnlockedContentIDs); err != nil {
			return nil, fmt.Errorf("failed to decode unlocked content ids: %w", err)
		}
	}
	if record.FiredTriggers != "" {
		var fired []string
		if err := json.Unmarshal([]byte(record.FiredTriggers), &fired); err != nil {
			return nil, fmt.Errorf("failed to decode fired triggers: %w", err)
		}
		for _, trigger := range fired {
			p.FiredTriggers[trigger] = true
		}
	}
	for _, book := range books {
		p.Books[book.BookID] = narrative.BookState{
			Bitmap:     book.Bitmap,
			TotalParts: book.TotalParts,
		}
	}

	// Loaded bitmaps may predate a content edit; mask them before anyone
	// derives metrics from them.
	return p.Sanitized(), nil
}
