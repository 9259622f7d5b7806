package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/quantforge/QuantForge/backend/internal/integrations/marketdata"
)

// MarketHandlers serves the latest cached quotes. The cache is fed by the
// background pump; an open feed breaker just means the quotes go stale.
type MarketHandlers struct {
	pump *marketdata.Pump
}

// NewMarketHandlers creates the market data handler set.
func NewMarketHandlers(pump *marketdata.Pump) *MarketHandlers {
	return &MarketHandlers{pump: pump}
}

// GetQuotes returns the most recent quote per subscribed symbol.
func (h *MarketHandlers) GetQuotes(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"quotes": h.pump.Latest()})
}
