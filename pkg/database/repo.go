package database

import (
	"context"
	"time"

	"cifuzz/internal/types"

	"gorm.io/gorm"
)

// AddCrash inserts a single crash record into the database.
func AddCrash(ctx context.Context, db *gorm.DB, crash *Crash) error {
	if crash == nil {
		return nil
	}
	return db.WithContext(ctx).Create(crash).Error
}

// NewCrash maps a crash event to its database record.
func NewCrash(event *types.CrashEvent, architecture string) *Crash {
	return &Crash{
		EventID:      event.EventID,
		CreatedAt:    time.Now(),
		Project:      event.Project,
		CommitSHA:    event.CommitSHA,
		Architecture: architecture,
		Target:       event.Target,
		Sanitizer:    event.Sanitizer,
		Engine:       event.Engine,
		TestCase:     event.TestCase,
		Summary:      event.Summary,
		Digest:       event.Digest,
	}
}
