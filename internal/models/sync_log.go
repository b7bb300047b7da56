package models

import (
	"time"
)

// Sync log actions.
const (
	SyncActionCreated   = "created"
	SyncActionUpdated   = "updated"
	SyncActionCancelled = "cancelled"
)

// SyncLog is one observed external-event action. The composite unique
// index on (unit_id, event_id, timestamp) makes appends idempotent: an
// unchanged upstream snapshot carries the same last-modified timestamp
// and inserts zero new rows on replay.
type SyncLog struct {
	ID        string `gorm:"primaryKey"`
	UnitID    string `gorm:"not null;uniqueIndex:idx_sync_log_unit_event_ts,priority:1"`
	EventID   string `gorm:"not null;uniqueIndex:idx_sync_log_unit_event_ts,priority:2"`
	Action    string `gorm:"not null"`
	UserEmail string
	EventData JSONMap   `gorm:"type:json"`
	Timestamp time.Time `gorm:"not null;uniqueIndex:idx_sync_log_unit_event_ts,priority:3"`
	CreatedAt time.Time
}

// TableName overrides the table name used by SyncLog to `calendar_sync_logs`
func (SyncLog) TableName() string {
	return "calendar_sync_logs"
}
