package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"

	"bistrobooks/internal/port"
)

// HealthHandler handles health check endpoints.
type HealthHandler struct {
	db         *sqlx.DB
	textLister port.ModelLister
}

// NewHealthHandler creates a new HealthHandler. textLister is optional;
// when set, readiness also requires the text model backend to answer a
// model-list probe.
func NewHealthHandler(db *sqlx.DB, textLister port.ModelLister) *HealthHandler {
	return &HealthHandler{db: db, textLister: textLister}
}

// Liveness handles GET /healthz
func (h *HealthHandler) Liveness(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Readiness handles GET /readyz
func (h *HealthHandler) Readiness(c *gin.Context) {
	if err := h.db.PingContext(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": "database not reachable"})
		return
	}
	if h.textLister != nil {
		if _, err := h.textLister.ListModels(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": "text model backend not reachable"})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
