package handlers

import (
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Souzaab/crm-multi-acesso-sub000/internal/metrics"
	"github.com/Souzaab/crm-multi-acesso-sub000/internal/models"
	"github.com/Souzaab/crm-multi-acesso-sub000/internal/services"
)

// IntegrationHandler serves the connect, callback, status, and
// disconnect endpoints.
type IntegrationHandler struct {
	oauth   *services.OAuthService
	metrics metrics.Recorder
}

// NewIntegrationHandler creates the integration lifecycle handler.
func NewIntegrationHandler(oauth *services.OAuthService, m metrics.Recorder) *IntegrationHandler {
	return &IntegrationHandler{oauth: oauth, metrics: m}
}

// Connect redirects the unit's browser to the provider consent screen.
func (h *IntegrationHandler) Connect(c *gin.Context) {
	p, err := models.ParseProvider(c.Param("provider"))
	if err != nil {
		respond(c, http.StatusBadRequest, "invalid_provider", err.Error())
		return
	}
	unitID := c.Param("unit")

	authURL, err := h.oauth.BeginAuthorization(unitID, p)
	if err != nil {
		writeError(c, err)
		return
	}
	c.Redirect(http.StatusFound, authURL)
}

// Callback completes the authorization. The provider redirects here
// with either a code or an error param.
func (h *IntegrationHandler) Callback(c *gin.Context) {
	p, err := models.ParseProvider(c.Param("provider"))
	if err != nil {
		respond(c, http.StatusBadRequest, "invalid_provider", err.Error())
		return
	}
	state := c.Query("state")

	if providerErr := c.Query("error"); providerErr != "" {
		log.Printf("[OAuth] Consent denied for %s: %s", p, providerErr)
		h.oauth.RecordDenied(p, state, providerErr)
		h.metrics.RecordOAuthDenied(string(p))
		respond(c, http.StatusBadRequest, "consent_denied",
			"The provider reported that authorization was not granted.")
		return
	}

	code := c.Query("code")
	if code == "" {
		respond(c, http.StatusBadRequest, "missing_code", "The callback carried no authorization code.")
		return
	}

	integration, err := h.oauth.CompleteAuthorization(c.Request.Context(), p, state, code)
	if err != nil {
		h.metrics.RecordOAuthConnect(string(p), false)
		writeError(c, err)
		return
	}
	h.metrics.RecordOAuthConnect(string(p), true)

	c.JSON(http.StatusOK, gin.H{
		"provider":      integration.Provider,
		"status":        integration.Status,
		"account_email": integration.AccountEmail,
	})
}

// Status reports the unit's connection summary. The route names a
// provider; "all" returns every enabled provider.
func (h *IntegrationHandler) Status(c *gin.Context) {
	unitID := c.Param("unit")

	statuses, err := h.oauth.Status(c.Request.Context(), unitID)
	if err != nil {
		writeError(c, err)
		return
	}

	routeProvider := c.Param("provider")
	if routeProvider == "all" {
		c.JSON(http.StatusOK, gin.H{"integrations": statuses})
		return
	}

	p, err := models.ParseProvider(routeProvider)
	if err != nil {
		respond(c, http.StatusBadRequest, "invalid_provider", err.Error())
		return
	}
	for _, status := range statuses {
		if status.Provider == p {
			c.JSON(http.StatusOK, status)
			return
		}
	}
	respond(c, http.StatusNotFound, "provider_not_configured",
		"This provider has no OAuth app registration.")
}

// Disconnect revokes and clears the unit's stored credentials.
func (h *IntegrationHandler) Disconnect(c *gin.Context) {
	p, err := models.ParseProvider(c.Param("provider"))
	if err != nil {
		respond(c, http.StatusBadRequest, "invalid_provider", err.Error())
		return
	}
	unitID := c.Param("unit")

	if err := h.oauth.Disconnect(c.Request.Context(), unitID, p); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"provider": p, "status": models.StatusDisconnected})
}
