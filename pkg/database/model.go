package database

import (
	"time"
)

// Crash represents a record in the public.crashes table
type Crash struct {
	ID           int       `gorm:"primaryKey;column:id"`
	EventID      string    `gorm:"column:event_id;not null"`
	CreatedAt    time.Time `gorm:"column:created_at;default:now()"`
	Project      string    `gorm:"column:project;not null"`
	CommitSHA    string    `gorm:"column:commit_sha"`
	Architecture string    `gorm:"column:architecture;not null"`
	Target       string    `gorm:"column:target;not null"`
	Sanitizer    string    `gorm:"column:sanitizer;not null"`
	Engine       string    `gorm:"column:engine;not null"`
	TestCase     string    `gorm:"column:test_case;not null"`
	Summary      string    `gorm:"column:summary"`
	Digest       string    `gorm:"column:digest;not null"`
}
