package models

import (
	"time"
)

// Canonical event status values.
const (
	EventStatusActive    = "active"
	EventStatusCancelled = "cancelled"
	EventStatusCompleted = "completed"
)

// CalendarEvent is the provider-agnostic event representation. Provider
// adapters build it from raw payloads; everything downstream of the
// adapters consumes only this type.
type CalendarEvent struct {
	ExternalID     string         `json:"external_id"`
	Title          string         `json:"title"`
	Start          time.Time      `json:"start"`
	End            time.Time      `json:"end"`
	Status         string         `json:"status"`
	JoinURL        string         `json:"join_url,omitempty"`
	Location       string         `json:"location,omitempty"`
	Description    string         `json:"description,omitempty"`
	WebLink        string         `json:"web_link,omitempty"`
	OrganizerEmail string         `json:"organizer_email,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

// Snapshot returns the event as a JSONMap for sync-log storage.
func (e *CalendarEvent) Snapshot() JSONMap {
	m := JSONMap{
		"external_id": e.ExternalID,
		"title":       e.Title,
		"start":       e.Start.Format(time.RFC3339),
		"end":         e.End.Format(time.RFC3339),
		"status":      e.Status,
	}
	if e.JoinURL != "" {
		m["join_url"] = e.JoinURL
	}
	if e.Location != "" {
		m["location"] = e.Location
	}
	if e.WebLink != "" {
		m["web_link"] = e.WebLink
	}
	return m
}

// EventChange is a requested mutation of a provider event. Zero-value
// fields are left untouched by update operations.
type EventChange struct {
	Title       string     `json:"title,omitempty"`
	Start       *time.Time `json:"start,omitempty"`
	End         *time.Time `json:"end,omitempty"`
	Location    string     `json:"location,omitempty"`
	Description string     `json:"description,omitempty"`
}

// TimeSlot is a free interval reported by availability lookups.
type TimeSlot struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}
