package ms365

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Souzaab/crm-multi-acesso-sub000/internal/models"
	"github.com/Souzaab/crm-multi-acesso-sub000/internal/provider"
)

type staticTokens struct{}

func (staticTokens) Token(ctx context.Context) (string, error)   { return "at-test", nil }
func (staticTokens) Refresh(ctx context.Context) (string, error) { return "at-test", nil }

func newTestAdapter(t *testing.T, handler http.Handler) *Adapter {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := provider.NewClient(5 * time.Second)
	require.NoError(t, err)
	return NewWithBaseURL(client, server.URL)
}

const graphEventFixture = `{
	"id": "AAMkAGI1",
	"subject": "Trial class: swimming",
	"body": {"contentType": "text", "content": "First visit"},
	"start": {"dateTime": "2026-03-10T14:00:00.0000000", "timeZone": "UTC"},
	"end": {"dateTime": "2026-03-10T15:00:00.0000000", "timeZone": "UTC"},
	"location": {"displayName": "Pool A"},
	"organizer": {"emailAddress": {"name": "Front Desk", "address": "desk@school.example"}},
	"webLink": "https://outlook.office365.com/calendar/item/AAMkAGI1",
	"isCancelled": false,
	"isOnlineMeeting": true,
	"onlineMeeting": {"joinUrl": "https://teams.microsoft.com/l/meetup-join/abc"},
	"createdDateTime": "2026-03-01T09:00:00Z",
	"lastModifiedDateTime": "2026-03-05T12:30:00Z"
}`

func TestFetchEvents(t *testing.T) {
	t.Run("Single page maps to canonical events", func(t *testing.T) {
		adapter := newTestAdapter(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/me/calendarView", r.URL.Path)
			assert.Equal(t, "Bearer at-test", r.Header.Get("Authorization"))
			assert.Contains(t, r.Header.Get("Prefer"), "UTC")
			assert.NotEmpty(t, r.URL.Query().Get("startDateTime"))

			fmt.Fprintf(w, `{"value": [%s]}`, graphEventFixture)
		}))

		events, err := adapter.FetchEvents(context.Background(), staticTokens{}, provider.TimeWindow{
			Start: time.Now().Add(-24 * time.Hour),
			End:   time.Now().Add(24 * time.Hour),
		})
		require.NoError(t, err)
		require.Len(t, events, 1)

		event := events[0]
		assert.Equal(t, "AAMkAGI1", event.ExternalID)
		assert.Equal(t, "Trial class: swimming", event.Title)
		assert.Equal(t, models.EventStatusActive, event.Status)
		assert.Equal(t, time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC), event.Start)
		assert.Equal(t, time.Date(2026, 3, 10, 15, 0, 0, 0, time.UTC), event.End)
		assert.Equal(t, "Pool A", event.Location)
		assert.Equal(t, "desk@school.example", event.OrganizerEmail)
		assert.Equal(t, "https://teams.microsoft.com/l/meetup-join/abc", event.JoinURL)
		assert.Equal(t, time.Date(2026, 3, 5, 12, 30, 0, 0, time.UTC), event.UpdatedAt)
	})

	t.Run("Cancelled flag maps to cancelled status", func(t *testing.T) {
		adapter := newTestAdapter(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, `{"value": [{"id": "evt-2", "subject": "Gone", "isCancelled": true}]}`)
		}))

		events, err := adapter.FetchEvents(context.Background(), staticTokens{}, provider.TimeWindow{})
		require.NoError(t, err)
		require.Len(t, events, 1)
		assert.Equal(t, models.EventStatusCancelled, events[0].Status)
	})

	t.Run("Follows nextLink pagination", func(t *testing.T) {
		var server *httptest.Server
		mux := http.NewServeMux()
		mux.HandleFunc("/me/calendarView", func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprintf(w, `{"value": [{"id": "evt-1"}], "@odata.nextLink": %q}`, server.URL+"/page2")
		})
		mux.HandleFunc("/page2", func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, `{"value": [{"id": "evt-2"}]}`)
		})
		server = httptest.NewServer(mux)
		t.Cleanup(server.Close)

		client, err := provider.NewClient(5 * time.Second)
		require.NoError(t, err)
		adapter := NewWithBaseURL(client, server.URL)

		events, err := adapter.FetchEvents(context.Background(), staticTokens{}, provider.TimeWindow{})
		require.NoError(t, err)
		require.Len(t, events, 2)
		assert.Equal(t, "evt-1", events[0].ExternalID)
		assert.Equal(t, "evt-2", events[1].ExternalID)
	})

	t.Run("Cancelled context stops pagination", func(t *testing.T) {
		adapter := newTestAdapter(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, `{"value": []}`)
		}))

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := adapter.FetchEvents(ctx, staticTokens{}, provider.TimeWindow{})
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestCreateEvent(t *testing.T) {
	adapter := newTestAdapter(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/me/events", r.URL.Path)

		var payload map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		assert.Equal(t, "Enrollment meeting", payload["subject"])
		start := payload["start"].(map[string]any)
		assert.Equal(t, "UTC", start["timeZone"])

		w.WriteHeader(http.StatusCreated)
		fmt.Fprint(w, `{"id": "evt-new", "subject": "Enrollment meeting",
			"start": {"dateTime": "2026-04-01T10:00:00", "timeZone": "UTC"},
			"end": {"dateTime": "2026-04-01T10:30:00", "timeZone": "UTC"}}`)
	}))

	created, err := adapter.CreateEvent(context.Background(), staticTokens{}, &models.CalendarEvent{
		Title: "Enrollment meeting",
		Start: time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC),
		End:   time.Date(2026, 4, 1, 10, 30, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	assert.Equal(t, "evt-new", created.ExternalID)
	assert.Equal(t, time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC), created.Start)
}

func TestUpdateEvent(t *testing.T) {
	t.Run("Sends only changed fields", func(t *testing.T) {
		adapter := newTestAdapter(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodPatch, r.Method)
			assert.Equal(t, "/me/events/evt-1", r.URL.Path)

			var patch map[string]any
			require.NoError(t, json.NewDecoder(r.Body).Decode(&patch))
			assert.Equal(t, "New title", patch["subject"])
			assert.NotContains(t, patch, "start")
			assert.NotContains(t, patch, "location")

			fmt.Fprint(w, `{}`)
		}))

		err := adapter.UpdateEvent(context.Background(), staticTokens{}, "evt-1",
			&models.EventChange{Title: "New title"})
		require.NoError(t, err)
	})

	t.Run("Empty change skips the call", func(t *testing.T) {
		adapter := newTestAdapter(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			t.Fatal("no request expected")
		}))
		assert.NoError(t, adapter.UpdateEvent(context.Background(), staticTokens{}, "evt-1", &models.EventChange{}))
	})
}

func TestCancelEvent(t *testing.T) {
	adapter := newTestAdapter(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		assert.Equal(t, "/me/events/evt-1", r.URL.Path)
		w.WriteHeader(http.StatusNoContent)
	}))

	assert.NoError(t, adapter.CancelEvent(context.Background(), staticTokens{}, "evt-1"))
}

func TestProfile(t *testing.T) {
	t.Run("Prefers mail", func(t *testing.T) {
		adapter := newTestAdapter(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/me", r.URL.Path)
			fmt.Fprint(w, `{"mail": "owner@school.example", "userPrincipalName": "owner@tenant.onmicrosoft.com"}`)
		}))

		email, err := adapter.Profile(context.Background(), staticTokens{})
		require.NoError(t, err)
		assert.Equal(t, "owner@school.example", email)
	})

	t.Run("Falls back to principal name", func(t *testing.T) {
		adapter := newTestAdapter(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, `{"mail": "", "userPrincipalName": "owner@tenant.onmicrosoft.com"}`)
		}))

		email, err := adapter.Profile(context.Background(), staticTokens{})
		require.NoError(t, err)
		assert.Equal(t, "owner@tenant.onmicrosoft.com", email)
	})
}

func TestParseGraphTime(t *testing.T) {
	t.Run("Named zone resolves to UTC instant", func(t *testing.T) {
		got := parseGraphTime(&dateTimeZone{
			DateTime: "2026-03-10T09:00:00.0000000",
			TimeZone: "America/Sao_Paulo",
		})
		assert.Equal(t, time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC), got)
	})

	t.Run("Nil and malformed values yield zero time", func(t *testing.T) {
		assert.True(t, parseGraphTime(nil).IsZero())
		assert.True(t, parseGraphTime(&dateTimeZone{DateTime: "not-a-time"}).IsZero())
	})
}
