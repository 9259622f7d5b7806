package http

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/quantforge/QuantForge/backend/internal/degraded"
	"github.com/quantforge/QuantForge/backend/internal/infrastructure/resilience"
)

// Handlers serves the observability surface the dashboard polls. All reads
// are snapshots: stale between polls, never blocking in-flight calls.
type Handlers struct {
	registry *resilience.Registry
	store    *degraded.Store
	watcher  *degraded.Watcher
	started  time.Time
}

// NewHandlers creates the handler set. The registry, mode store, and
// watcher are injected, never resolved at call time.
func NewHandlers(registry *resilience.Registry, store *degraded.Store, watcher *degraded.Watcher) *Handlers {
	return &Handlers{
		registry: registry,
		store:    store,
		watcher:  watcher,
		started:  time.Now(),
	}
}

// Health reports overall service status plus the resilience summary.
func (h *Handlers) Health(c *gin.Context) {
	summary := h.registry.HealthSummary()
	status := "ok"
	if summary.Unhealthy > 0 {
		status = "degraded"
	}
	c.JSON(http.StatusOK, gin.H{
		"status":         status,
		"mode":           h.store.Mode(),
		"uptime_seconds": time.Since(h.started).Seconds(),
		"summary":        summary,
	})
}

// GetAllHealth returns the display shape for every integration.
func (h *Handlers) GetAllHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"integrations": h.registry.GetAllHealth()})
}

// GetIntegrationHealth returns one integration. Unknown names are a 404
// with a body, never a 500: the dashboard must stay resilient to
// registration races.
func (h *Handlers) GetIntegrationHealth(c *gin.Context) {
	name := c.Param("name")
	health, err := h.registry.GetHealth(name)
	if err != nil {
		if errors.Is(err, resilience.ErrUnknownIntegration) {
			c.JSON(http.StatusNotFound, gin.H{"error": "integration not found", "integration": name})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, health)
}

// GetBreakers returns per-breaker statistics.
func (h *Handlers) GetBreakers(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"circuit_breakers": h.registry.GetAllBreakerStatuses()})
}

// GetDegraded returns the degraded set in registration order, plus the
// current application mode.
func (h *Handlers) GetDegraded(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"mode":     h.store.Mode(),
		"reason":   h.store.Reason(),
		"degraded": h.registry.DegradedIntegrations(),
	})
}

// GetSummary returns the aggregate health summary.
func (h *Handlers) GetSummary(c *gin.Context) {
	c.JSON(http.StatusOK, h.registry.HealthSummary())
}

// ResetBreaker forces a breaker closed. Always 202: a reset for an unknown
// name is logged by the registry and otherwise ignored, since the dashboard
// may race registration. Resetting an already-closed breaker fires no
// transition event, so the watcher reconciles the persisted mode here;
// this is the recovery path for offline mode carried across a restart.
func (h *Handlers) ResetBreaker(c *gin.Context) {
	name := c.Param("name")
	h.registry.ResetBreaker(name)
	if h.watcher != nil {
		h.watcher.Reconcile()
	}
	c.JSON(http.StatusAccepted, gin.H{"integration": name, "reset": true})
}
