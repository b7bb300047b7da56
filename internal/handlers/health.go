package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Souzaab/crm-multi-acesso-sub000/internal/store"
	"github.com/Souzaab/crm-multi-acesso-sub000/internal/version"
)

// HealthHandler reports process liveness and database reachability.
type HealthHandler struct {
	store *store.Store
}

// NewHealthHandler creates the health endpoint handler.
func NewHealthHandler(s *store.Store) *HealthHandler {
	return &HealthHandler{store: s}
}

// Health returns 200 when the database answers, 503 otherwise.
func (h *HealthHandler) Health(c *gin.Context) {
	v := version.Version
	if v == "" {
		v = "dev"
	}

	if err := h.store.Health(); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":  "unhealthy",
			"version": v,
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"version": v,
	})
}
