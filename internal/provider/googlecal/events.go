// Package googlecal adapts Google Calendar API payloads to the
// canonical event model.
package googlecal

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/Souzaab/crm-multi-acesso-sub000/internal/models"
	"github.com/Souzaab/crm-multi-acesso-sub000/internal/provider"
)

const (
	calendarBaseURL = "https://www.googleapis.com/calendar/v3"
	userinfoURL     = "https://www.googleapis.com/oauth2/v2/userinfo"

	// primaryCalendar is the calendar every account always has.
	primaryCalendar = "primary"

	pageSize = 250
)

// googleEvent is the subset of the Calendar API event resource the sync
// engine consumes.
type googleEvent struct {
	ID          string       `json:"id"`
	Summary     string       `json:"summary"`
	Description string       `json:"description,omitempty"`
	Location    string       `json:"location,omitempty"`
	Status      string       `json:"status"`
	HTMLLink    string       `json:"htmlLink"`
	HangoutLink string       `json:"hangoutLink,omitempty"`
	Start       *eventTime   `json:"start,omitempty"`
	End         *eventTime   `json:"end,omitempty"`
	Organizer   *participant `json:"organizer,omitempty"`
	Created     string       `json:"created"`
	Updated     string       `json:"updated"`
}

// eventTime carries either dateTime (timed events) or date (all-day).
type eventTime struct {
	DateTime string `json:"dateTime,omitempty"`
	Date     string `json:"date,omitempty"`
	TimeZone string `json:"timeZone,omitempty"`
}

type participant struct {
	Email string `json:"email"`
}

// Adapter implements the calendar adapter against Google Calendar.
type Adapter struct {
	client      *provider.Client
	baseURL     string
	userinfoURL string
}

// New creates a Google Calendar adapter using the shared provider client.
func New(client *provider.Client) *Adapter {
	return &Adapter{client: client, baseURL: calendarBaseURL, userinfoURL: userinfoURL}
}

// NewWithBaseURL creates an adapter against an alternate API host.
func NewWithBaseURL(client *provider.Client, baseURL string) *Adapter {
	return &Adapter{client: client, baseURL: baseURL, userinfoURL: baseURL + "/userinfo"}
}

// FetchEvents lists events in the window from the primary calendar,
// following pageToken pagination. singleEvents expands recurrences so
// every occurrence lands in the window query.
func (a *Adapter) FetchEvents(
	ctx context.Context,
	tokens provider.TokenSource,
	window provider.TimeWindow,
) ([]models.CalendarEvent, error) {
	params := url.Values{
		"timeMin":      {window.Start.UTC().Format(time.RFC3339)},
		"timeMax":      {window.End.UTC().Format(time.RFC3339)},
		"singleEvents": {"true"},
		"showDeleted":  {"true"},
		"maxResults":   {fmt.Sprintf("%d", pageSize)},
	}

	var events []models.CalendarEvent
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		body, err := a.client.Do(ctx, tokens, &provider.Request{
			Method: http.MethodGet,
			URL:    a.eventsURL("") + "?" + params.Encode(),
		})
		if err != nil {
			return nil, err
		}

		var page struct {
			Items         []googleEvent `json:"items"`
			NextPageToken string        `json:"nextPageToken"`
		}
		if err := json.Unmarshal(body, &page); err != nil {
			return nil, fmt.Errorf("googlecal: malformed events page: %w", err)
		}

		for i := range page.Items {
			events = append(events, page.Items[i].toCanonical())
		}
		if page.NextPageToken == "" {
			return events, nil
		}
		params.Set("pageToken", page.NextPageToken)
	}
}

// CreateEvent writes a new event to the primary calendar.
func (a *Adapter) CreateEvent(
	ctx context.Context,
	tokens provider.TokenSource,
	event *models.CalendarEvent,
) (*models.CalendarEvent, error) {
	payload, err := json.Marshal(buildGoogleEvent(event))
	if err != nil {
		return nil, err
	}

	body, err := a.client.Do(ctx, tokens, &provider.Request{
		Method: http.MethodPost,
		URL:    a.eventsURL(""),
		Body:   payload,
	})
	if err != nil {
		return nil, err
	}

	var created googleEvent
	if err := json.Unmarshal(body, &created); err != nil {
		return nil, fmt.Errorf("googlecal: malformed create response: %w", err)
	}
	canonical := created.toCanonical()
	return &canonical, nil
}

// UpdateEvent applies a partial change via PATCH.
func (a *Adapter) UpdateEvent(
	ctx context.Context,
	tokens provider.TokenSource,
	externalID string,
	change *models.EventChange,
) error {
	patch := map[string]any{}
	if change.Title != "" {
		patch["summary"] = change.Title
	}
	if change.Start != nil {
		patch["start"] = map[string]string{"dateTime": change.Start.UTC().Format(time.RFC3339)}
	}
	if change.End != nil {
		patch["end"] = map[string]string{"dateTime": change.End.UTC().Format(time.RFC3339)}
	}
	if change.Location != "" {
		patch["location"] = change.Location
	}
	if change.Description != "" {
		patch["description"] = change.Description
	}
	if len(patch) == 0 {
		return nil
	}

	payload, err := json.Marshal(patch)
	if err != nil {
		return err
	}
	_, err = a.client.Do(ctx, tokens, &provider.Request{
		Method: http.MethodPatch,
		URL:    a.eventsURL(externalID),
		Body:   payload,
	})
	return err
}

// CancelEvent deletes the event from the primary calendar.
func (a *Adapter) CancelEvent(ctx context.Context, tokens provider.TokenSource, externalID string) error {
	_, err := a.client.Do(ctx, tokens, &provider.Request{
		Method: http.MethodDelete,
		URL:    a.eventsURL(externalID),
	})
	return err
}

// Profile returns the connected account's email address.
func (a *Adapter) Profile(ctx context.Context, tokens provider.TokenSource) (string, error) {
	body, err := a.client.Do(ctx, tokens, &provider.Request{
		Method: http.MethodGet,
		URL:    a.userinfoURL,
	})
	if err != nil {
		return "", err
	}

	var info struct {
		Email string `json:"email"`
	}
	if err := json.Unmarshal(body, &info); err != nil {
		return "", fmt.Errorf("googlecal: malformed userinfo response: %w", err)
	}
	return info.Email, nil
}

func (a *Adapter) eventsURL(externalID string) string {
	base := a.baseURL + "/calendars/" + primaryCalendar + "/events"
	if externalID == "" {
		return base
	}
	return base + "/" + url.PathEscape(externalID)
}

// toCanonical maps a Calendar API event to the canonical model.
func (e *googleEvent) toCanonical() models.CalendarEvent {
	event := models.CalendarEvent{
		ExternalID:  e.ID,
		Title:       e.Summary,
		Description: e.Description,
		Location:    e.Location,
		Status:      models.EventStatusActive,
		WebLink:     e.HTMLLink,
		JoinURL:     e.HangoutLink,
		Start:       parseEventTime(e.Start),
		End:         parseEventTime(e.End),
		CreatedAt:   parseTimestamp(e.Created),
		UpdatedAt:   parseTimestamp(e.Updated),
	}
	if e.Status == "cancelled" {
		event.Status = models.EventStatusCancelled
	}
	if e.Organizer != nil {
		event.OrganizerEmail = e.Organizer.Email
	}
	return event
}

func buildGoogleEvent(event *models.CalendarEvent) map[string]any {
	payload := map[string]any{
		"summary": event.Title,
		"start":   map[string]string{"dateTime": event.Start.UTC().Format(time.RFC3339)},
		"end":     map[string]string{"dateTime": event.End.UTC().Format(time.RFC3339)},
	}
	if event.Location != "" {
		payload["location"] = event.Location
	}
	if event.Description != "" {
		payload["description"] = event.Description
	}
	return payload
}

// parseEventTime handles both timed (dateTime) and all-day (date)
// events; all-day boundaries land at midnight UTC.
func parseEventTime(et *eventTime) time.Time {
	if et == nil {
		return time.Time{}
	}
	if et.DateTime != "" {
		if t, err := time.Parse(time.RFC3339, et.DateTime); err == nil {
			return t.UTC()
		}
		return time.Time{}
	}
	if et.Date != "" {
		if t, err := time.Parse("2006-01-02", et.Date); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

func parseTimestamp(value string) time.Time {
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}
	}
	return t.UTC()
}
