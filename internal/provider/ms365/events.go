// Package ms365 adapts Microsoft Graph calendar payloads to the
// canonical event model.
package ms365

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

const graphBaseURL = "https://graph.microsoft.com/v1.0"

// pageSize is the $top value for calendarView pages.
const pageSize = 100

// graphEvent is the subset of the Graph event resource the sync engine
// consumes.
type graphEvent struct {
	ID                   string        `json:"id"`
	Subject              string        `json:"subject"`
	Body                 *eventBody    `json:"body,omitempty"`
	Start                *dateTimeZone `json:"start,omitempty"`
	End                  *dateTimeZone `json:"end,omitempty"`
	Location             *location     `json:"location,omitempty"`
	Organizer            *recipient    `json:"organizer,omitempty"`
	WebLink              string        `json:"webLink"`
	IsCancelled          bool          `json:"isCancelled"`
	IsOnlineMeeting      bool          `json:"isOnlineMeeting"`
	OnlineMeeting        *onlineInfo   `json:"onlineMeeting,omitempty"`
	CreatedDateTime      string        `json:"createdDateTime"`
	LastModifiedDateTime string        `json:"lastModifiedDateTime"`
}

type eventBody struct {
	ContentType string `json:"contentType"`
	Content     string `json:"content"`
}

// dateTimeZone is the Graph dateTimeTimeZone resource.
type dateTimeZone struct {
	DateTime string `json:"dateTime"`
	TimeZone string `json:"timeZone"`
}

type location struct {
	DisplayName string `json:"displayName"`
}

type recipient struct {
	EmailAddress struct {
		Name    string `json:"name"`
		Address string `json:"address"`
	} `json:"emailAddress"`
}

type onlineInfo struct {
	JoinURL string `json:"joinUrl"`
}

// Adapter implements the calendar adapter against Microsoft Graph.
type Adapter struct {
	client  *provider.Client
	baseURL string
}

// New creates a Graph calendar adapter using the shared provider client.
func New(client *provider.Client) *Adapter {
	return &Adapter{client: client, baseURL: graphBaseURL}
}

// NewWithBaseURL creates an adapter against an alternate Graph host.
func NewWithBaseURL(client *provider.Client, baseURL string) *Adapter {
	return &Adapter{client: client, baseURL: baseURL}
}

// FetchEvents lists the calendar view inside the window, following
// @odata.nextLink pagination.
func (a *Adapter) FetchEvents(
	ctx context.Context,
	tokens provider.TokenSource,
	window provider.TimeWindow,
) ([]models.CalendarEvent, error) {
	params := url.Values{
		"startDateTime": {window.Start.UTC().Format(time.RFC3339)},
		"endDateTime":   {window.End.UTC().Format(time.RFC3339)},
		"$top":          {fmt.Sprintf("%d", pageSize)},
	}
	next := a.baseURL + "/me/calendarView?" + params.Encode()

	var events []models.CalendarEvent
	for next != "" {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		body, err := a.client.Do(ctx, tokens, &provider.Request{
			Method: http.MethodGet,
			URL:    next,
			Header: http.Header{
				// Pin event times to UTC so normalization is uniform.
				"Prefer": {`outlook.timezone="UTC"`},
			},
		})
		if err != nil {
			return nil, err
		}

		var page struct {
			Value    []graphEvent `json:"value"`
			NextLink string       `json:"@odata.nextLink"`
		}
		if err := json.Unmarshal(body, &page); err != nil {
			return nil, fmt.Errorf("ms365: malformed calendarView page: %w", err)
		}

		for i := range page.Value {
			events = append(events, page.Value[i].toCanonical())
		}
		next = page.NextLink
	}
	return events, nil
}

// CreateEvent writes a new event to the primary calendar.
func (a *Adapter) CreateEvent(
	ctx context.Context,
	tokens provider.TokenSource,
	event *models.CalendarEvent,
) (*models.CalendarEvent, error) {
	payload, err := json.Marshal(buildGraphEvent(event))
	if err != nil {
		return nil, err
	}

	body, err := a.client.Do(ctx, tokens, &provider.Request{
		Method: http.MethodPost,
		URL:    a.baseURL + "/me/events",
		Body:   payload,
	})
	if err != nil {
		return nil, err
	}

	var created graphEvent
	if err := json.Unmarshal(body, &created); err != nil {
		return nil, fmt.Errorf("ms365: malformed create response: %w", err)
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
		patch["subject"] = change.Title
	}
	if change.Start != nil {
		patch["start"] = toDateTimeZone(*change.Start)
	}
	if change.End != nil {
		patch["end"] = toDateTimeZone(*change.End)
	}
	if change.Location != "" {
		patch["location"] = map[string]any{"displayName": change.Location}
	}
	if change.Description != "" {
		patch["body"] = map[string]any{"contentType": "text", "content": change.Description}
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
		URL:    a.baseURL + "/me/events/" + url.PathEscape(externalID),
		Body:   payload,
	})
	return err
}

// CancelEvent deletes the event from the calendar.
func (a *Adapter) CancelEvent(ctx context.Context, tokens provider.TokenSource, externalID string) error {
	_, err := a.client.Do(ctx, tokens, &provider.Request{
		Method: http.MethodDelete,
		URL:    a.baseURL + "/me/events/" + url.PathEscape(externalID),
	})
	return err
}

// Profile returns the signed-in account's email address.
func (a *Adapter) Profile(ctx context.Context, tokens provider.TokenSource) (string, error) {
	body, err := a.client.Do(ctx, tokens, &provider.Request{
		Method: http.MethodGet,
		URL:    a.baseURL + "/me",
	})
	if err != nil {
		return "", err
	}

	var me struct {
		Mail              string `json:"mail"`
		UserPrincipalName string `json:"userPrincipalName"`
	}
	if err := json.Unmarshal(body, &me); err != nil {
		return "", fmt.Errorf("ms365: malformed profile response: %w", err)
	}
	if me.Mail != "" {
		return me.Mail, nil
	}
	return me.UserPrincipalName, nil
}

// toCanonical maps a Graph event to the canonical model. Times arrive
// pinned to UTC via the Prefer header.
func (e *graphEvent) toCanonical() models.CalendarEvent {
	event := models.CalendarEvent{
		ExternalID: e.ID,
		Title:      e.Subject,
		Status:     models.EventStatusActive,
		WebLink:    e.WebLink,
		Start:      parseGraphTime(e.Start),
		End:        parseGraphTime(e.End),
		CreatedAt:  parseGraphTimestamp(e.CreatedDateTime),
		UpdatedAt:  parseGraphTimestamp(e.LastModifiedDateTime),
	}
	if e.IsCancelled {
		event.Status = models.EventStatusCancelled
	}
	if e.Location != nil {
		event.Location = e.Location.DisplayName
	}
	if e.Organizer != nil {
		event.OrganizerEmail = e.Organizer.EmailAddress.Address
	}
	if e.OnlineMeeting != nil {
		event.JoinURL = e.OnlineMeeting.JoinURL
	}
	if e.Body != nil {
		event.Description = e.Body.Content
	}
	return event
}

func buildGraphEvent(event *models.CalendarEvent) map[string]any {
	payload := map[string]any{
		"subject": event.Title,
		"start":   toDateTimeZone(event.Start),
		"end":     toDateTimeZone(event.End),
	}
	if event.Location != "" {
		payload["location"] = map[string]any{"displayName": event.Location}
	}
	if event.Description != "" {
		payload["body"] = map[string]any{"contentType": "text", "content": event.Description}
	}
	return payload
}

func toDateTimeZone(t time.Time) map[string]string {
	return map[string]string{
		"dateTime": t.UTC().Format("2006-01-02T15:04:05"),
		"timeZone": "UTC",
	}
}

// parseGraphTime reads a dateTimeTimeZone value. Graph omits the offset
// from dateTime; the zone name resolves it.
func parseGraphTime(dtz *dateTimeZone) time.Time {
	if dtz == nil {
		return time.Time{}
	}
	loc := time.UTC
	if dtz.TimeZone != "" && dtz.TimeZone != "UTC" {
		if parsed, err := time.LoadLocation(dtz.TimeZone); err == nil {
			loc = parsed
		}
	}
	t, err := time.ParseInLocation("2006-01-02T15:04:05", trimFraction(dtz.DateTime), loc)
	if err != nil {
		return time.Time{}
	}
	return t.UTC()
}

func parseGraphTimestamp(value string) time.Time {
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}
	}
	return t.UTC()
}

// trimFraction drops Graph's 7-digit fractional seconds.
func trimFraction(value string) string {
	for i := range len(value) {
		if value[i] == '.' {
			return value[:i]
		}
	}
	return value
}
