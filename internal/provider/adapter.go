package provider

import (
	"context"
	"time"

	"github.com/Souzaab/crm-multi-acesso-sub000/internal/models"
)

// TimeWindow bounds a calendar fetch.
type TimeWindow struct {
	Start time.Time
	End   time.Time
}

// CalendarAdapter is implemented by each calendar provider. Adapters
// translate between provider payloads and the canonical event model;
// retry policy and throttling live in Client, not here.
type CalendarAdapter interface {
	// FetchEvents lists events inside the window, following provider
	// pagination to completion.
	FetchEvents(ctx context.Context, tokens TokenSource, window TimeWindow) ([]models.CalendarEvent, error)

	// CreateEvent writes a new event and returns it with the
	// provider-assigned external ID filled in.
	CreateEvent(ctx context.Context, tokens TokenSource, event *models.CalendarEvent) (*models.CalendarEvent, error)

	// UpdateEvent applies a partial change to an existing event.
	UpdateEvent(ctx context.Context, tokens TokenSource, externalID string, change *models.EventChange) error

	// CancelEvent removes the event from the provider calendar.
	CancelEvent(ctx context.Context, tokens TokenSource, externalID string) error

	// Profile returns the connected account's email address.
	Profile(ctx context.Context, tokens TokenSource) (string, error)
}
