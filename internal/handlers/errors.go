// Package handlers exposes the integration API over gin.
package handlers

import (
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Souzaab/crm-multi-acesso-sub000/internal/auth"
	"github.com/Souzaab/crm-multi-acesso-sub000/internal/provider"
	"github.com/Souzaab/crm-multi-acesso-sub000/internal/services"
)

// writeError maps a service error onto an HTTP response. User-correctable
// failures get a descriptive 4xx; everything else collapses into a 502
// whose details stay in the server log, never in the response body.
func writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, auth.ErrProviderDisabled):
		respond(c, http.StatusNotFound, "provider_not_configured",
			"This provider has no OAuth app registration.")

	case errors.Is(err, auth.ErrExpiredState):
		respond(c, http.StatusBadRequest, "state_expired",
			"The authorization took too long. Please start the connection again.")

	case errors.Is(err, auth.ErrInvalidState), errors.Is(err, services.ErrStateMismatch):
		respond(c, http.StatusBadRequest, "invalid_state",
			"The authorization state could not be verified. Please start the connection again.")

	case errors.Is(err, auth.ErrExchangeFailed):
		respond(c, http.StatusBadRequest, "exchange_failed",
			"The authorization code was rejected by the provider. Please start the connection again.")

	case errors.Is(err, services.ErrNoIntegration):
		respond(c, http.StatusNotFound, "integration_not_found",
			"No integration exists for this unit and provider.")

	case errors.Is(err, services.ErrNotConnected):
		respond(c, http.StatusConflict, "not_connected",
			"The integration is not connected.")

	case errors.Is(err, services.ErrRefreshTokenMissing):
		respond(c, http.StatusConflict, "refresh_token_missing",
			"The provider did not issue a refresh token. Remove the app's access in the provider account and connect again.")

	case errors.Is(err, services.ErrRefreshFailed), errors.Is(err, provider.ErrAuthFailed):
		respond(c, http.StatusConflict, "reconnect_required",
			"Stored credentials were rejected by the provider. Please reconnect the integration.")

	case errors.Is(err, services.ErrPolicyViolation):
		respond(c, http.StatusConflict, "cancellation_window_closed",
			"Events starting within 15 minutes can no longer be cancelled.")

	case errors.Is(err, services.ErrSyncUnsupported):
		respond(c, http.StatusBadRequest, "operation_not_supported",
			"This provider does not support the requested operation.")

	case errors.Is(err, provider.ErrRateLimited):
		respond(c, http.StatusTooManyRequests, "provider_rate_limited",
			"The provider is rate limiting requests. Please try again later.")

	default:
		log.Printf("[API] Integration failure on %s %s: %v", c.Request.Method, c.Request.URL.Path, err)
		respond(c, http.StatusBadGateway, "integration_unavailable",
			"The integration is temporarily unavailable. Please try again later.")
	}
}

func respond(c *gin.Context, status int, code, description string) {
	c.JSON(status, gin.H{
		"error":             code,
		"error_description": description,
	})
}
