// Package services implements the business logic of the integration
// layer: token lifecycle, OAuth connect/disconnect, calendar sync, and
// the audit trail.
package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/Souzaab/crm-multi-acesso-sub000/internal/auth"
	"github.com/Souzaab/crm-multi-acesso-sub000/internal/metrics"
	"github.com/Souzaab/crm-multi-acesso-sub000/internal/models"
	"github.com/Souzaab/crm-multi-acesso-sub000/internal/provider"
	"github.com/Souzaab/crm-multi-acesso-sub000/internal/store"
	"github.com/Souzaab/crm-multi-acesso-sub000/internal/vault"
)

var (
	// ErrNoIntegration is returned when a unit has no integration for the provider
	ErrNoIntegration = errors.New("no integration configured")

	// ErrNotConnected is returned when the integration exists but is not connected
	ErrNotConnected = errors.New("integration is not connected")

	// ErrRefreshTokenMissing is returned when no refresh token is stored
	ErrRefreshTokenMissing = errors.New("no refresh token stored")

	// ErrRefreshFailed is returned when the provider rejected the refresh
	// grant; the integration needs re-authorization.
	ErrRefreshFailed = errors.New("token refresh failed, reconnect required")

	// ErrDecryptFailed is returned when stored ciphertext cannot be
	// opened, typically after an encryption key change.
	ErrDecryptFailed = errors.New("stored credentials unreadable, reconnect required")
)

// tokenExpirySkew refreshes tokens that are about to expire so a call
// started now does not fail mid-flight.
const tokenExpirySkew = 2 * time.Minute

// TokenService owns the stored-token lifecycle: decryption for use,
// proactive refresh, and serialization of refreshes per integration.
type TokenService struct {
	store   *store.Store
	vault   *vault.Vault
	oauth   *auth.Registry
	audit   *AuditService
	metrics metrics.Recorder

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewTokenService wires the token lifecycle.
func NewTokenService(
	s *store.Store,
	v *vault.Vault,
	oauth *auth.Registry,
	audit *AuditService,
	recorder metrics.Recorder,
) *TokenService {
	return &TokenService{
		store:   s,
		vault:   v,
		oauth:   oauth,
		audit:   audit,
		metrics: recorder,
		locks:   make(map[string]*sync.Mutex),
	}
}

// lockFor returns the mutex serializing refreshes for one integration.
// Concurrent callers for the same (unit, provider) share a lock; other
// integrations refresh independently.
func (s *TokenService) lockFor(unitID string, p models.Provider) *sync.Mutex {
	key := unitID + "/" + string(p)

	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.locks[key]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[key] = lock
	}
	return lock
}

// AccessToken returns a usable plaintext access token, refreshing it
// first when expired or about to expire.
func (s *TokenService) AccessToken(ctx context.Context, unitID string, p models.Provider) (string, error) {
	integration, err := s.loadConnected(unitID, p)
	if err != nil {
		return "", err
	}

	if !integration.TokenExpired(tokenExpirySkew) {
		token, err := s.vault.Decrypt(integration.AccessTokenCiphertext)
		if err != nil {
			return "", s.failDecrypt(unitID, p, err)
		}
		return token, nil
	}

	return s.refreshLocked(ctx, unitID, p, false)
}

// ForceRefresh discards the cached access token and mints a new one.
// Used after a provider 401 on a token that looked valid locally.
func (s *TokenService) ForceRefresh(ctx context.Context, unitID string, p models.Provider) (string, error) {
	return s.refreshLocked(ctx, unitID, p, true)
}

// refreshLocked performs a refresh under the per-integration lock.
// Unless forced, the expiry is re-checked after acquiring the lock so
// callers queued behind a completed refresh reuse its result.
func (s *TokenService) refreshLocked(ctx context.Context, unitID string, p models.Provider, force bool) (string, error) {
	lock := s.lockFor(unitID, p)
	lock.Lock()
	defer lock.Unlock()

	integration, err := s.loadConnected(unitID, p)
	if err != nil {
		return "", err
	}

	if !force && !integration.TokenExpired(tokenExpirySkew) {
		token, err := s.vault.Decrypt(integration.AccessTokenCiphertext)
		if err != nil {
			return "", s.failDecrypt(unitID, p, err)
		}
		return token, nil
	}

	if integration.RefreshTokenCiphertext == "" {
		return "", ErrRefreshTokenMissing
	}
	refreshToken, err := s.vault.Decrypt(integration.RefreshTokenCiphertext)
	if err != nil {
		return "", s.failDecrypt(unitID, p, err)
	}

	token, err := s.oauth.Refresh(ctx, p, refreshToken)
	if err != nil {
		s.metrics.RecordTokenRefresh(string(p), false)
		if s.oauth.IsInvalidGrant(err) {
			// The grant is dead; stop retrying until the unit reconnects.
			_ = s.store.UpdateIntegrationStatus(unitID, p, models.StatusError)
			s.audit.Record(AuditEntry{
				UnitID:       unitID,
				Provider:     p,
				EventType:    models.EventTokenRefreshFailed,
				Severity:     models.SeverityError,
				Success:      false,
				ErrorMessage: "refresh grant rejected by provider",
			})
			return "", ErrRefreshFailed
		}
		return "", err
	}

	accessCiphertext, err := s.vault.Encrypt(token.AccessToken)
	if err != nil {
		return "", err
	}

	// Providers may rotate the refresh token; an absent one keeps the
	// stored grant.
	var refreshCiphertext string
	if token.RefreshToken != "" && token.RefreshToken != refreshToken {
		refreshCiphertext, err = s.vault.Encrypt(token.RefreshToken)
		if err != nil {
			return "", err
		}
	}

	if err := s.store.UpdateIntegrationTokens(unitID, p, accessCiphertext, refreshCiphertext, token.Expiry); err != nil {
		return "", err
	}

	s.metrics.RecordTokenRefresh(string(p), true)
	s.audit.Record(AuditEntry{
		UnitID:    unitID,
		Provider:  p,
		EventType: models.EventTokenRefreshed,
		Severity:  models.SeverityInfo,
		Success:   true,
	})
	return token.AccessToken, nil
}

func (s *TokenService) loadConnected(unitID string, p models.Provider) (*models.Integration, error) {
	integration, err := s.store.GetIntegration(unitID, p)
	if err != nil {
		if errors.Is(err, store.ErrIntegrationNotFound) {
			return nil, ErrNoIntegration
		}
		return nil, err
	}
	if !integration.IsConnected() {
		return nil, ErrNotConnected
	}
	return integration, nil
}

func (s *TokenService) failDecrypt(unitID string, p models.Provider, cause error) error {
	_ = s.store.UpdateIntegrationStatus(unitID, p, models.StatusError)
	s.audit.Record(AuditEntry{
		UnitID:       unitID,
		Provider:     p,
		EventType:    models.EventTokenRefreshFailed,
		Severity:     models.SeverityError,
		Success:      false,
		ErrorMessage: "stored ciphertext unreadable",
	})
	return ErrDecryptFailed
}

// Source returns a provider.TokenSource bound to one integration, for
// use by the outbound HTTP client.
func (s *TokenService) Source(unitID string, p models.Provider) provider.TokenSource {
	return &boundTokenSource{svc: s, unitID: unitID, provider: p}
}

type boundTokenSource struct {
	svc      *TokenService
	unitID   string
	provider models.Provider
}

func (b *boundTokenSource) Token(ctx context.Context) (string, error) {
	return b.svc.AccessToken(ctx, b.unitID, b.provider)
}

func (b *boundTokenSource) Refresh(ctx context.Context) (string, error) {
	return b.svc.ForceRefresh(ctx, b.unitID, b.provider)
}
