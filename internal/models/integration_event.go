package models

import (
	"time"
)

// EventType represents the type of integration audit event
type EventType string

const (
	EventIntegrationConnected    EventType = "INTEGRATION_CONNECTED"
	EventIntegrationDisconnected EventType = "INTEGRATION_DISCONNECTED"
	EventTokenRefreshed          EventType = "TOKEN_REFRESHED"
	EventTokenRefreshFailed      EventType = "TOKEN_REFRESH_FAILED"
	EventSyncCompleted           EventType = "SYNC_COMPLETED"
	EventSyncFailed              EventType = "SYNC_FAILED"
	EventOAuthDenied             EventType = "OAUTH_DENIED"
)

// EventSeverity represents the severity level of an audit event
type EventSeverity string

const (
	SeverityInfo    EventSeverity = "INFO"
	SeverityWarning EventSeverity = "WARNING"
	SeverityError   EventSeverity = "ERROR"
)

// IntegrationEvent is one row of the integration audit trail. Detail
// never contains token material, ciphertext included.
type IntegrationEvent struct {
	ID           string        `gorm:"primaryKey"`
	UnitID       string        `gorm:"not null;index"`
	Provider     Provider      `gorm:"not null;index"`
	EventType    EventType     `gorm:"not null;index"`
	Severity     EventSeverity `gorm:"not null;default:'INFO'"`
	Detail       JSONMap       `gorm:"type:json"`
	Success      bool          `gorm:"not null;default:true"`
	ErrorMessage string
	CreatedAt    time.Time `gorm:"index"`
}

// TableName overrides the table name used by IntegrationEvent to `integration_events`
func (IntegrationEvent) TableName() string {
	return "integration_events"
}
