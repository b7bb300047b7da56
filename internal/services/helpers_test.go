package services

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/Souzaab/crm-multi-acesso-sub000/internal/auth"
	"github.com/Souzaab/crm-multi-acesso-sub000/internal/config"
	"github.com/Souzaab/crm-multi-acesso-sub000/internal/metrics"
	"github.com/Souzaab/crm-multi-acesso-sub000/internal/models"
	"github.com/Souzaab/crm-multi-acesso-sub000/internal/provider"
	"github.com/Souzaab/crm-multi-acesso-sub000/internal/store"
	"github.com/Souzaab/crm-multi-acesso-sub000/internal/vault"
)

const (
	testVaultSecret = "services-test-secret-0123456789"
	testStateSecret = "services-test-state-secret"
)

// testEnv bundles the wiring shared by service tests.
type testEnv struct {
	store *store.Store
	vault *vault.Vault
	oauth *auth.Registry
	state *auth.StateSigner
	audit *AuditService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	s, err := store.New("sqlite", "file::memory:?cache=shared&id="+uuid.New().String())
	require.NoError(t, err)

	v, err := vault.New(testVaultSecret)
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

	audit := NewAuditService(s, true, 100)
	t.Cleanup(audit.Shutdown)

	return &testEnv{
		store: s,
		vault: v,
		oauth: registry,
		state: auth.NewStateSigner(testStateSecret),
		audit: audit,
	}
}

// pointTokenServer routes all providers' token endpoints at handler.
func (e *testEnv) pointTokenServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	endpoint := oauth2.Endpoint{
		AuthURL:  server.URL + "/authorize",
		TokenURL: server.URL + "/token",
	}
	e.oauth.SetEndpoint(models.ProviderMS365, endpoint)
	e.oauth.SetEndpoint(models.ProviderGoogleCalendar, endpoint)
	e.oauth.SetEndpoint(models.ProviderGoogleSheets, endpoint)
	return server
}

// seedIntegration stores a connected integration with encrypted tokens.
func (e *testEnv) seedIntegration(
	t *testing.T,
	unitID string,
	p models.Provider,
	accessToken, refreshToken string,
	expiresAt time.Time,
) *models.Integration {
	t.Helper()

	accessCt, err := e.vault.Encrypt(accessToken)
	require.NoError(t, err)
	refreshCt := ""
	if refreshToken != "" {
		refreshCt, err = e.vault.Encrypt(refreshToken)
		require.NoError(t, err)
	}

	integration := &models.Integration{
		UnitID:                 unitID,
		Provider:               p,
		AccessTokenCiphertext:  accessCt,
		RefreshTokenCiphertext: refreshCt,
		TokenExpiresAt:         expiresAt,
		Timezone:               "UTC",
		Status:                 models.StatusConnected,
	}
	require.NoError(t, e.store.UpsertIntegration(integration))
	return integration
}

func (e *testEnv) newTokenService() *TokenService {
	return NewTokenService(e.store, e.vault, e.oauth, e.audit, metrics.NewNoopMetrics())
}

// fakeAdapter is an in-memory calendar provider.
type fakeAdapter struct {
	events     []models.CalendarEvent
	email      string
	fetchErr   error
	created    []models.CalendarEvent
	updated    map[string]*models.EventChange
	cancelled  []string
	fetchCalls int
}

func newFakeAdapter(events ...models.CalendarEvent) *fakeAdapter {
	return &fakeAdapter{
		events:  events,
		email:   "owner@example.com",
		updated: make(map[string]*models.EventChange),
	}
}

func (f *fakeAdapter) FetchEvents(
	ctx context.Context,
	tokens provider.TokenSource,
	window provider.TimeWindow,
) ([]models.CalendarEvent, error) {
	f.fetchCalls++
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	if _, err := tokens.Token(ctx); err != nil {
		return nil, err
	}
	return f.events, nil
}

func (f *fakeAdapter) CreateEvent(
	ctx context.Context,
	tokens provider.TokenSource,
	event *models.CalendarEvent,
) (*models.CalendarEvent, error) {
	created := *event
	created.ExternalID = "evt-" + uuid.New().String()[:8]
	created.Status = models.EventStatusActive
	created.CreatedAt = time.Now().UTC()
	created.UpdatedAt = created.CreatedAt
	f.created = append(f.created, created)
	return &created, nil
}

func (f *fakeAdapter) UpdateEvent(
	ctx context.Context,
	tokens provider.TokenSource,
	externalID string,
	change *models.EventChange,
) error {
	f.updated[externalID] = change
	return nil
}

func (f *fakeAdapter) CancelEvent(ctx context.Context, tokens provider.TokenSource, externalID string) error {
	f.cancelled = append(f.cancelled, externalID)
	return nil
}

func (f *fakeAdapter) Profile(ctx context.Context, tokens provider.TokenSource) (string, error) {
	return f.email, nil
}
