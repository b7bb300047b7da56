package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"golang.org/x/oauth2/microsoft"

	"github.com/Souzaab/crm-multi-acesso-sub000/internal/config"
	"github.com/Souzaab/crm-multi-acesso-sub000/internal/models"
)

var (
	// ErrProviderDisabled is returned when a provider has no OAuth app registration
	ErrProviderDisabled = errors.New("provider is not configured")

	// ErrExchangeFailed is returned when the authorization code exchange fails
	ErrExchangeFailed = errors.New("authorization code exchange failed")
)

// googleRevokeURL accepts both access and refresh tokens. Microsoft has
// no per-token revocation endpoint, so ms365 revocation is a no-op.
const googleRevokeURL = "https://oauth2.googleapis.com/revoke"

// providerScopes lists the consent each provider needs. offline_access /
// access_type=offline is what yields the refresh token.
var providerScopes = map[models.Provider][]string{
	models.ProviderMS365: {
		"offline_access",
		"User.Read",
		"Calendars.ReadWrite",
	},
	models.ProviderGoogleCalendar: {
		"https://www.googleapis.com/auth/calendar",
		"https://www.googleapis.com/auth/userinfo.email",
	},
	models.ProviderGoogleSheets: {
		"https://www.googleapis.com/auth/spreadsheets",
		"https://www.googleapis.com/auth/userinfo.email",
	},
}

// Registry holds one oauth2.Config per enabled provider.
type Registry struct {
	configs    map[models.Provider]*oauth2.Config
	httpClient *http.Client
}

// NewRegistry builds provider configs from the loaded app registrations.
// Providers without complete credentials are left out and report
// ErrProviderDisabled on use.
func NewRegistry(cfg *config.Config) *Registry {
	r := &Registry{
		configs:    make(map[models.Provider]*oauth2.Config),
		httpClient: &http.Client{Timeout: cfg.ProviderTimeout},
	}

	register := func(provider models.Provider, creds config.ProviderCredentials, endpoint oauth2.Endpoint) {
		if !creds.Enabled() {
			return
		}
		r.configs[provider] = &oauth2.Config{
			ClientID:     creds.ClientID,
			ClientSecret: creds.ClientSecret,
			RedirectURL:  creds.RedirectURI,
			Endpoint:     endpoint,
			Scopes:       providerScopes[provider],
		}
	}

	register(models.ProviderMS365, cfg.MS365, microsoft.AzureADEndpoint("common"))
	register(models.ProviderGoogleCalendar, cfg.GoogleCalendar, google.Endpoint)
	register(models.ProviderGoogleSheets, cfg.GoogleSheets, google.Endpoint)

	return r
}

// Enabled reports whether the provider has a registered OAuth app.
func (r *Registry) Enabled(provider models.Provider) bool {
	_, ok := r.configs[provider]
	return ok
}

// EnabledProviders returns every provider with a registered OAuth app.
func (r *Registry) EnabledProviders() []models.Provider {
	providers := make([]models.Provider, 0, len(r.configs))
	for p := range r.configs {
		providers = append(providers, p)
	}
	return providers
}

// AuthCodeURL builds the provider authorization URL for the given state.
// Google requires access_type=offline plus prompt=consent to return a
// refresh token; the combination is harmless on Microsoft.
func (r *Registry) AuthCodeURL(provider models.Provider, state string) (string, error) {
	cfg, ok := r.configs[provider]
	if !ok {
		return "", ErrProviderDisabled
	}
	return cfg.AuthCodeURL(state,
		oauth2.AccessTypeOffline,
		oauth2.SetAuthURLParam("prompt", "consent"),
	), nil
}

// Exchange trades an authorization code for a token set.
func (r *Registry) Exchange(ctx context.Context, provider models.Provider, code string) (*oauth2.Token, error) {
	cfg, ok := r.configs[provider]
	if !ok {
		return nil, ErrProviderDisabled
	}

	token, err := cfg.Exchange(r.clientContext(ctx), code)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrExchangeFailed, err)
	}
	return token, nil
}

// Refresh obtains a fresh access token from a stored refresh token. The
// returned token may or may not carry a rotated refresh token; callers
// must treat an absent one as "keep the stored grant".
func (r *Registry) Refresh(ctx context.Context, provider models.Provider, refreshToken string) (*oauth2.Token, error) {
	cfg, ok := r.configs[provider]
	if !ok {
		return nil, ErrProviderDisabled
	}

	source := cfg.TokenSource(r.clientContext(ctx), &oauth2.Token{RefreshToken: refreshToken})
	return source.Token()
}

// Revoke best-effort revokes a token at the provider. Errors are
// returned for logging but disconnect proceeds regardless.
func (r *Registry) Revoke(ctx context.Context, provider models.Provider, token string) error {
	if _, ok := r.configs[provider]; !ok {
		return ErrProviderDisabled
	}
	if provider == models.ProviderMS365 {
		// Graph tokens expire on their own; there is nothing to call.
		return nil
	}

	form := url.Values{"token": {token}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, googleRevokeURL,
		strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("revocation returned status %d", resp.StatusCode)
	}
	return nil
}

// SetEndpoint overrides a provider endpoint. Test hook.
func (r *Registry) SetEndpoint(provider models.Provider, endpoint oauth2.Endpoint) {
	if cfg, ok := r.configs[provider]; ok {
		cfg.Endpoint = endpoint
	}
}

// clientContext pins the oauth2 transport to the registry's HTTP client
// so outbound token calls inherit the provider timeout.
func (r *Registry) clientContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, r.httpClient)
}

// IsInvalidGrant reports whether a refresh failure means the stored
// refresh token is dead (revoked consent, expired grant) rather than a
// transient fault.
func (r *Registry) IsInvalidGrant(err error) bool {
	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		if retrieveErr.ErrorCode == "invalid_grant" {
			return true
		}
		return retrieveErr.Response != nil && retrieveErr.Response.StatusCode == http.StatusBadRequest &&
			strings.Contains(string(retrieveErr.Body), "invalid_grant")
	}
	return false
}
