package services

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/Souzaab/crm-multi-acesso-sub000/internal/auth"
	"github.com/Souzaab/crm-multi-acesso-sub000/internal/cache"
	"github.com/Souzaab/crm-multi-acesso-sub000/internal/models"
	"github.com/Souzaab/crm-multi-acesso-sub000/internal/provider"
	"github.com/Souzaab/crm-multi-acesso-sub000/internal/store"
	"github.com/Souzaab/crm-multi-acesso-sub000/internal/vault"
)

// ErrStateMismatch is returned when a callback state names a different
// provider than the callback route.
var ErrStateMismatch = errors.New("state does not match callback provider")

// IntegrationStatus is the connection summary exposed per provider.
type IntegrationStatus struct {
	Provider       models.Provider `json:"provider"`
	Status         string          `json:"status"`
	AccountEmail   string          `json:"account_email,omitempty"`
	TokenExpiresAt *time.Time      `json:"token_expires_at,omitempty"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// OAuthService drives the connect and disconnect flows.
type OAuthService struct {
	store    *store.Store
	vault    *vault.Vault
	oauth    *auth.Registry
	state    *auth.StateSigner
	audit    *AuditService
	adapters map[models.Provider]provider.CalendarAdapter

	statusCache cache.Cache[[]IntegrationStatus]
	statusTTL   time.Duration
}

// NewOAuthService wires the OAuth flow controller.
func NewOAuthService(
	s *store.Store,
	v *vault.Vault,
	oauth *auth.Registry,
	state *auth.StateSigner,
	audit *AuditService,
	adapters map[models.Provider]provider.CalendarAdapter,
	statusCacheTTL time.Duration,
) *OAuthService {
	return &OAuthService{
		store:       s,
		vault:       v,
		oauth:       oauth,
		state:       state,
		audit:       audit,
		adapters:    adapters,
		statusCache: cache.NewMemoryCache[[]IntegrationStatus](),
		statusTTL:   statusCacheTTL,
	}
}

// BeginAuthorization returns the provider authorization URL carrying a
// signed state for the unit.
func (s *OAuthService) BeginAuthorization(unitID string, p models.Provider) (string, error) {
	if !s.oauth.Enabled(p) {
		return "", auth.ErrProviderDisabled
	}

	state, err := s.state.Sign(unitID, p)
	if err != nil {
		return "", err
	}
	return s.oauth.AuthCodeURL(p, state)
}

// CompleteAuthorization validates the callback and persists the token
// set. On re-consent a provider may withhold the refresh token; the
// previously stored grant is kept in that case. A first connect without
// a refresh token fails, since the integration could never refresh.
func (s *OAuthService) CompleteAuthorization(
	ctx context.Context,
	routeProvider models.Provider,
	stateParam, code string,
) (*models.Integration, error) {
	payload, err := s.state.Verify(stateParam)
	if err != nil {
		return nil, err
	}
	if payload.Provider != routeProvider {
		return nil, ErrStateMismatch
	}
	unitID := payload.UnitID

	token, err := s.oauth.Exchange(ctx, routeProvider, code)
	if err != nil {
		return nil, err
	}

	refreshCiphertext := ""
	if token.RefreshToken != "" {
		refreshCiphertext, err = s.vault.Encrypt(token.RefreshToken)
		if err != nil {
			return nil, err
		}
	} else {
		existing, getErr := s.store.GetIntegration(unitID, routeProvider)
		if getErr != nil || existing.RefreshTokenCiphertext == "" {
			return nil, ErrRefreshTokenMissing
		}
		refreshCiphertext = existing.RefreshTokenCiphertext
	}

	accessCiphertext, err := s.vault.Encrypt(token.AccessToken)
	if err != nil {
		return nil, err
	}

	integration := &models.Integration{
		UnitID:                 unitID,
		Provider:               routeProvider,
		AccessTokenCiphertext:  accessCiphertext,
		RefreshTokenCiphertext: refreshCiphertext,
		TokenExpiresAt:         token.Expiry,
		Timezone:               "UTC",
		Status:                 models.StatusConnected,
		AccountEmail:           s.lookupAccountEmail(ctx, routeProvider, token.AccessToken),
	}
	if err := s.store.UpsertIntegration(integration); err != nil {
		return nil, err
	}
	_ = s.statusCache.Delete(ctx, unitID)

	s.audit.Record(AuditEntry{
		UnitID:    unitID,
		Provider:  routeProvider,
		EventType: models.EventIntegrationConnected,
		Severity:  models.SeverityInfo,
		Detail:    models.JSONMap{"account_email": integration.AccountEmail},
		Success:   true,
	})
	return integration, nil
}

// RecordDenied notes a user-denied consent screen in the audit trail.
// The state may be expired at this point, so failures to verify it are
// tolerated and logged without unit attribution.
func (s *OAuthService) RecordDenied(routeProvider models.Provider, stateParam, reason string) {
	unitID := ""
	if payload, err := s.state.Verify(stateParam); err == nil {
		unitID = payload.UnitID
	}

	s.audit.Record(AuditEntry{
		UnitID:       unitID,
		Provider:     routeProvider,
		EventType:    models.EventOAuthDenied,
		Severity:     models.SeverityWarning,
		Success:      false,
		ErrorMessage: reason,
	})
}

// Disconnect revokes tokens best-effort and clears stored credentials.
// The integration row stays so history and a later reconnect keep their
// identity.
func (s *OAuthService) Disconnect(ctx context.Context, unitID string, p models.Provider) error {
	integration, err := s.store.GetIntegration(unitID, p)
	if err != nil {
		if errors.Is(err, store.ErrIntegrationNotFound) {
			return ErrNoIntegration
		}
		return err
	}

	if integration.AccessTokenCiphertext != "" {
		if token, decErr := s.vault.Decrypt(integration.AccessTokenCiphertext); decErr == nil {
			if revErr := s.oauth.Revoke(ctx, p, token); revErr != nil {
				log.Printf("Token revocation for %s/%s failed: %v", unitID, p, revErr)
			}
		}
	}

	if err := s.store.ClearIntegrationTokens(unitID, p); err != nil {
		return err
	}
	_ = s.statusCache.Delete(ctx, unitID)

	s.audit.Record(AuditEntry{
		UnitID:    unitID,
		Provider:  p,
		EventType: models.EventIntegrationDisconnected,
		Severity:  models.SeverityInfo,
		Success:   true,
	})
	return nil
}

// Status summarizes every enabled provider for a unit. Providers with
// no stored row report as disconnected. Results are cached briefly.
func (s *OAuthService) Status(ctx context.Context, unitID string) ([]IntegrationStatus, error) {
	if cached, err := s.statusCache.Get(ctx, unitID); err == nil {
		return cached, nil
	}

	integrations, err := s.store.ListIntegrations(unitID)
	if err != nil {
		return nil, err
	}
	byProvider := make(map[models.Provider]models.Integration, len(integrations))
	for _, integration := range integrations {
		byProvider[integration.Provider] = integration
	}

	statuses := make([]IntegrationStatus, 0, 3)
	for _, p := range []models.Provider{models.ProviderMS365, models.ProviderGoogleCalendar, models.ProviderGoogleSheets} {
		if !s.oauth.Enabled(p) {
			continue
		}
		status := IntegrationStatus{Provider: p, Status: models.StatusDisconnected}
		if integration, ok := byProvider[p]; ok {
			status.Status = integration.Status
			status.AccountEmail = integration.AccountEmail
			status.UpdatedAt = integration.UpdatedAt
			if !integration.TokenExpiresAt.IsZero() {
				expiry := integration.TokenExpiresAt
				status.TokenExpiresAt = &expiry
			}
		}
		statuses = append(statuses, status)
	}

	_ = s.statusCache.Set(ctx, unitID, statuses, s.statusTTL)
	return statuses, nil
}

// lookupAccountEmail asks the provider who the token belongs to.
// Best-effort: a connect does not fail because the profile call did.
func (s *OAuthService) lookupAccountEmail(ctx context.Context, p models.Provider, accessToken string) string {
	adapter, ok := s.adapters[p]
	if !ok {
		return ""
	}
	email, err := adapter.Profile(ctx, staticTokenSource(accessToken))
	if err != nil {
		log.Printf("Account profile lookup for %s failed: %v", p, err)
		return ""
	}
	return email
}

// staticTokenSource serves one already-minted token, used during the
// connect flow before the integration row exists.
type staticTokenSource string

func (t staticTokenSource) Token(ctx context.Context) (string, error)   { return string(t), nil }
func (t staticTokenSource) Refresh(ctx context.Context) (string, error) { return string(t), nil }
