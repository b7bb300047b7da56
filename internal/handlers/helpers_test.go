package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/Souzaab/crm-multi-acesso-sub000/internal/auth"
	"github.com/Souzaab/crm-multi-acesso-sub000/internal/config"
	"github.com/Souzaab/crm-multi-acesso-sub000/internal/metrics"
	"github.com/Souzaab/crm-multi-acesso-sub000/internal/models"
	"github.com/Souzaab/crm-multi-acesso-sub000/internal/provider"
	"github.com/Souzaab/crm-multi-acesso-sub000/internal/services"
	"github.com/Souzaab/crm-multi-acesso-sub000/internal/store"
	"github.com/Souzaab/crm-multi-acesso-sub000/internal/vault"
)

type apiEnv struct {
	store   *store.Store
	vault   *vault.Vault
	state   *auth.StateSigner
	router  *gin.Engine
	adapter *stubAdapter
}

func newAPIEnv(t *testing.T) *apiEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	s, err := store.New("sqlite", "file::memory:?cache=shared&id="+uuid.New().String())
	require.NoError(t, err)

	v, err := vault.New("handlers-test-secret-0123456789")
	require.NoError(t, err)

	creds := config.ProviderCredentials{
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		RedirectURI:  "http://localhost:8080/oauth/callback/test",
	}
	registry := auth.NewRegistry(&config.Config{
		MS365:           creds,
		GoogleCalendar:  creds,
		GoogleSheets:    creds,
		ProviderTimeout: 5 * time.Second,
	})

	state := auth.NewStateSigner("handlers-test-state-secret")
	audit := services.NewAuditService(s, true, 100)
	t.Cleanup(audit.Shutdown)

	recorder := metrics.NewNoopMetrics()
	tokens := services.NewTokenService(s, v, registry, audit, recorder)

	adapter := &stubAdapter{email: "owner@example.com"}
	adapters := map[models.Provider]provider.CalendarAdapter{
		models.ProviderMS365:          adapter,
		models.ProviderGoogleCalendar: adapter,
	}

	oauthSvc := services.NewOAuthService(s, v, registry, state, audit, adapters, time.Minute)
	syncSvc := services.NewSyncService(s, tokens, audit, recorder, adapters, nil,
		30*24*time.Hour, 90*24*time.Hour)

	integrationHandler := NewIntegrationHandler(oauthSvc, recorder)
	eventsHandler := NewEventsHandler(syncSvc)
	healthHandler := NewHealthHandler(s)

	router := gin.New()
	router.GET("/health", healthHandler.Health)
	router.GET("/oauth/callback/:provider", integrationHandler.Callback)

	group := router.Group("/integrations/:provider/:unit")
	group.GET("/connect", integrationHandler.Connect)
	group.GET("/status", integrationHandler.Status)
	group.DELETE("", integrationHandler.Disconnect)
	group.GET("/events", eventsHandler.ListEvents)
	group.POST("/events", eventsHandler.CreateEvent)
	group.PATCH("/events/:id", eventsHandler.UpdateEvent)
	group.DELETE("/events/:id", eventsHandler.CancelEvent)
	group.GET("/availability", eventsHandler.Availability)
	group.POST("/sync", eventsHandler.Sync)
	group.GET("/sync-logs", eventsHandler.SyncLogs)
	group.POST("/sheets/rows", eventsHandler.AppendRow)

	return &apiEnv{
		store:   s,
		vault:   v,
		state:   state,
		router:  router,
		adapter: adapter,
	}
}

func (e *apiEnv) seedIntegration(t *testing.T, unitID string, p models.Provider) {
	t.Helper()

	accessCt, err := e.vault.Encrypt("at-live")
	require.NoError(t, err)
	refreshCt, err := e.vault.Encrypt("rt-live")
	require.NoError(t, err)

	require.NoError(t, e.store.UpsertIntegration(&models.Integration{
		UnitID:                 unitID,
		Provider:               p,
		AccessTokenCiphertext:  accessCt,
		RefreshTokenCiphertext: refreshCt,
		TokenExpiresAt:         time.Now().Add(time.Hour),
		Timezone:               "UTC",
		Status:                 models.StatusConnected,
	}))
}

func (e *apiEnv) do(method, path string, body *string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != nil {
		req = httptest.NewRequest(method, path, strings.NewReader(*body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

// stubAdapter is an in-memory calendar provider for handler tests.
type stubAdapter struct {
	events    []models.CalendarEvent
	email     string
	fetchErr  error
	cancelled []string
}

func (f *stubAdapter) FetchEvents(
	ctx context.Context,
	tokens provider.TokenSource,
	window provider.TimeWindow,
) ([]models.CalendarEvent, error) {
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	if _, err := tokens.Token(ctx); err != nil {
		return nil, err
	}
	return f.events, nil
}

func (f *stubAdapter) CreateEvent(
	ctx context.Context,
	tokens provider.TokenSource,
	event *models.CalendarEvent,
) (*models.CalendarEvent, error) {
	created := *event
	created.ExternalID = "evt-" + uuid.New().String()[:8]
	created.Status = models.EventStatusActive
	created.CreatedAt = time.Now().UTC()
	created.UpdatedAt = created.CreatedAt
	return &created, nil
}

func (f *stubAdapter) UpdateEvent(
	ctx context.Context,
	tokens provider.TokenSource,
	externalID string,
	change *models.EventChange,
) error {
	return nil
}

func (f *stubAdapter) CancelEvent(ctx context.Context, tokens provider.TokenSource, externalID string) error {
	f.cancelled = append(f.cancelled, externalID)
	return nil
}

func (f *stubAdapter) Profile(ctx context.Context, tokens provider.TokenSource) (string, error) {
	return f.email, nil
}
