package ai

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/hashicorp/go-retryablehttp"
	"golang.org/x/time/rate"

	"github.com/quantforge/QuantForge/backend/internal/infrastructure/config"
	"github.com/quantforge/QuantForge/backend/internal/infrastructure/resilience"
)

// Integration is the registry name this client executes through.
const Integration = "ai-generation"

// GenerateRequest asks the AI service for a trading strategy.
type GenerateRequest struct {
	Prompt      string   `json:"prompt"`
	Symbols     []string `json:"symbols,omitempty"`
	RiskProfile string   `json:"risk_profile,omitempty"`
}

// Strategy is a generated trading strategy.
type Strategy struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Indicators  []string  `json:"indicators,omitempty"`
	EntryRule   string    `json:"entry_rule,omitempty"`
	ExitRule    string    `json:"exit_rule,omitempty"`
	GeneratedAt time.Time `json:"generated_at"`
}

// Client calls the strategy-generation API through the resilience registry.
// Rate limited: generation is expensive and the upstream throttles hard.
type Client struct {
	resty    *resty.Client
	limiter  *rate.Limiter
	registry *resilience.Registry
}

// NewClient creates a production-ready generation client. The HTTP timeout
// is the operation's own deadline; the breaker imposes none of its own.
func NewClient(cfg config.AIConfig, registry *resilience.Registry) *Client {
	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = 2
	retryClient.RetryWaitMin = 1 * time.Second
	retryClient.RetryWaitMax = 10 * time.Second
	retryClient.Logger = nil

	restyClient := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(cfg.Timeout).
		SetHeader("User-Agent", "QuantForge-Backend/1.0")
	restyClient.SetTransport(retryClient.HTTPClient.Transport)

	limiter := rate.NewLimiter(rate.Inf, 0)
	if cfg.RPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RPS), 1)
	}

	return &Client{
		resty:    restyClient,
		limiter:  limiter,
		registry: registry,
	}
}

// Generate requests a strategy. A circuit-open rejection surfaces as a
// *resilience.CircuitOpenError so callers can fall back to cached
// strategies.
func (c *Client) Generate(ctx context.Context, req GenerateRequest) (*Strategy, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit error: %w", err)
	}

	result, err := c.registry.Execute(Integration, func() (any, error) {
		var strategy Strategy
		resp, err := c.resty.R().
			SetContext(ctx).
			SetBody(req).
			SetResult(&strategy).
			Post("/v1/strategies/generate")
		if err != nil {
			return nil, err
		}
		if resp.IsError() {
			return nil, fmt.Errorf("ai service returned %s", resp.Status())
		}
		return &strategy, nil
	})
	if err != nil {
		return nil, err
	}
	return result.(*Strategy), nil
}
