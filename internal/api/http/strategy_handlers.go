package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/quantforge/QuantForge/backend/internal/degraded"
	"github.com/quantforge/QuantForge/backend/internal/infrastructure/resilience"
	"github.com/quantforge/QuantForge/backend/internal/integrations/ai"
	"github.com/quantforge/QuantForge/backend/internal/integrations/persistence"
	"github.com/quantforge/QuantForge/backend/internal/logging"
)

// StrategyHandlers serves strategy generation and retrieval. Every outbound
// call runs through the resilience registry; these handlers translate
// breaker rejections into dashboard-friendly 503s instead of surfacing raw
// errors.
type StrategyHandlers struct {
	generator *ai.Client
	backend   *persistence.Client
	store     *degraded.Store
	logger    *logging.Logger
}

// NewStrategyHandlers creates the strategy handler set.
func NewStrategyHandlers(generator *ai.Client, backend *persistence.Client, store *degraded.Store, logger *logging.Logger) *StrategyHandlers {
	return &StrategyHandlers{
		generator: generator,
		backend:   backend,
		store:     store,
		logger:    logger.Component("strategies"),
	}
}

// Generate requests a new strategy from the AI service and stores it.
func (h *StrategyHandlers) Generate(c *gin.Context) {
	if h.store.Mode() == degraded.ModeOffline {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error":  "generation unavailable in offline mode",
			"mode":   degraded.ModeOffline,
			"reason": h.store.Reason(),
		})
		return
	}

	var req ai.GenerateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}

	strategy, err := h.generator.Generate(c.Request.Context(), req)
	if err != nil {
		h.failGeneration(c, err)
		return
	}

	// Persistence failure is not generation failure; the strategy is still
	// returned and the breaker has already recorded the outcome.
	if err := h.backend.SaveStrategy(c.Request.Context(), strategy); err != nil {
		h.logger.Warn("failed to persist strategy",
			zap.String("strategy_id", strategy.ID),
			zap.Error(err),
		)
	}

	c.JSON(http.StatusOK, strategy)
}

// Get fetches a stored strategy by id.
func (h *StrategyHandlers) Get(c *gin.Context) {
	strategy, err := h.backend.GetStrategy(c.Request.Context(), c.Param("id"))
	if err != nil {
		var open *resilience.CircuitOpenError
		if errors.As(err, &open) {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"error":        "persistence unavailable",
				"integration":  open.Integration,
				"next_attempt": open.NextAttempt,
			})
			return
		}
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, strategy)
}

func (h *StrategyHandlers) failGeneration(c *gin.Context, err error) {
	var open *resilience.CircuitOpenError
	if errors.As(err, &open) {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error":        "generation temporarily unavailable",
			"integration":  open.Integration,
			"next_attempt": open.NextAttempt,
			"mode":         h.store.Mode(),
		})
		return
	}

	// The breaker already recorded this failure; nothing to escalate here.
	h.logger.Warn("generation failed", zap.Error(err))
	c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
}
