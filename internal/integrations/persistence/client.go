package persistence

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/bytedance/sonic"
	"github.com/hashicorp/go-retryablehttp"

	"github.com/quantforge/QuantForge/backend/internal/infrastructure/config"
	"github.com/quantforge/QuantForge/backend/internal/infrastructure/resilience"
	"github.com/quantforge/QuantForge/backend/internal/integrations/ai"
)

// Integration is the registry name this client executes through.
const Integration = "database"

// Client talks to the persistence backend that stores generated strategies.
// Transient network blips are retried by the transport; sustained failure
// is the breaker's job.
type Client struct {
	http     *retryablehttp.Client
	baseURL  string
	registry *resilience.Registry
}

// NewClient creates a persistence client.
func NewClient(cfg config.BackendConfig, registry *resilience.Registry) *Client {
	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = 2
	retryClient.RetryWaitMin = 500 * time.Millisecond
	retryClient.RetryWaitMax = 5 * time.Second
	retryClient.HTTPClient.Timeout = cfg.Timeout
	retryClient.Logger = nil

	return &Client{
		http:     retryClient,
		baseURL:  cfg.BaseURL,
		registry: registry,
	}
}

// SaveStrategy stores a generated strategy.
func (c *Client) SaveStrategy(ctx context.Context, strategy *ai.Strategy) error {
	body, err := sonic.Marshal(strategy)
	if err != nil {
		return fmt.Errorf("failed to encode strategy: %w", err)
	}

	_, err = c.registry.Execute(Integration, func() (any, error) {
		req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/strategies", bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			return nil, fmt.Errorf("persistence request failed: %w", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode >= http.StatusBadRequest {
			return nil, fmt.Errorf("persistence backend returned %s", resp.Status)
		}
		return nil, nil
	})
	return err
}

// GetStrategy fetches a stored strategy by id.
func (c *Client) GetStrategy(ctx context.Context, id string) (*ai.Strategy, error) {
	result, err := c.registry.Execute(Integration, func() (any, error) {
		req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/strategies/"+id, nil)
		if err != nil {
			return nil, err
		}

		resp, err := c.http.Do(req)
		if err != nil {
			return nil, fmt.Errorf("persistence request failed: %w", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode >= http.StatusBadRequest {
			return nil, fmt.Errorf("persistence backend returned %s", resp.Status)
		}

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, err
		}
		var strategy ai.Strategy
		if err := sonic.Unmarshal(data, &strategy); err != nil {
			return nil, fmt.Errorf("failed to decode strategy: %w", err)
		}
		return &strategy, nil
	})
	if err != nil {
		return nil, err
	}
	return result.(*ai.Strategy), nil
}

// Ping probes backend reachability. Used by startup checks.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.registry.Execute(Integration, func() (any, error) {
		req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
		if err != nil {
			return nil, err
		}
		resp, err := c.http.Do(req)
		if err != nil {
			return nil, fmt.Errorf("persistence ping failed: %w", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("persistence backend returned %s", resp.Status)
		}
		return nil, nil
	})
	return err
}
