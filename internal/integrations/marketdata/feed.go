package marketdata

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/quantforge/QuantForge/backend/internal/infrastructure/config"
	"github.com/quantforge/QuantForge/backend/internal/infrastructure/resilience"
	"github.com/quantforge/QuantForge/backend/internal/logging"
)

// Integration is the registry name this feed executes through.
const Integration = "market-data"

// Quote is one tick from the live feed.
type Quote struct {
	Symbol string    `json:"symbol"`
	Bid    float64   `json:"bid"`
	Ask    float64   `json:"ask"`
	Last   float64   `json:"last"`
	At     time.Time `json:"at"`
}

type subscribeMessage struct {
	Type    string   `json:"type"`
	Symbols []string `json:"symbols"`
}

// Feed is the live market-data client. Every socket operation goes through
// the resilience registry: a dropped feed trips the breaker like any other
// integration failure, and the dashboard sees it the same way.
type Feed struct {
	url      string
	timeout  time.Duration
	registry *resilience.Registry
	logger   *logging.Logger
	dialer   *websocket.Dialer

	mu   sync.Mutex
	conn *websocket.Conn
}

// NewFeed creates a disconnected feed client.
func NewFeed(cfg config.MarketDataConfig, registry *resilience.Registry, logger *logging.Logger) *Feed {
	if logger == nil {
		logger = logging.NewDefault()
	}
	return &Feed{
		url:      cfg.URL,
		timeout:  cfg.Timeout,
		registry: registry,
		logger:   logger.Component("marketdata"),
		dialer: &websocket.Dialer{
			HandshakeTimeout: cfg.Timeout,
		},
	}
}

// Connect dials the feed. Reconnecting an already-connected feed closes the
// old socket first.
func (f *Feed) Connect(ctx context.Context) error {
	_, err := f.registry.Execute(Integration, func() (any, error) {
		conn, _, err := f.dialer.DialContext(ctx, f.url, nil)
		if err != nil {
			return nil, fmt.Errorf("feed dial failed: %w", err)
		}

		f.mu.Lock()
		if f.conn != nil {
			_ = f.conn.Close()
		}
		f.conn = conn
		f.mu.Unlock()

		f.logger.Info("feed connected", zap.String("url", f.url))
		return nil, nil
	})
	return err
}

// Subscribe requests quotes for the given symbols.
func (f *Feed) Subscribe(symbols []string) error {
	_, err := f.registry.Execute(Integration, func() (any, error) {
		conn, err := f.current()
		if err != nil {
			return nil, err
		}
		_ = conn.SetWriteDeadline(time.Now().Add(f.timeout))
		if err := conn.WriteJSON(subscribeMessage{Type: "subscribe", Symbols: symbols}); err != nil {
			return nil, fmt.Errorf("feed subscribe failed: %w", err)
		}
		return nil, nil
	})
	return err
}

// ReadQuote blocks for the next tick. A read error counts as a feed
// failure; the caller decides whether to reconnect once the breaker allows
// it again.
func (f *Feed) ReadQuote() (*Quote, error) {
	result, err := f.registry.Execute(Integration, func() (any, error) {
		conn, err := f.current()
		if err != nil {
			return nil, err
		}
		_ = conn.SetReadDeadline(time.Now().Add(f.timeout))
		var quote Quote
		if err := conn.ReadJSON(&quote); err != nil {
			return nil, fmt.Errorf("feed read failed: %w", err)
		}
		return &quote, nil
	})
	if err != nil {
		return nil, err
	}
	return result.(*Quote), nil
}

// Close shuts the socket down. Not routed through the breaker: closing a
// connection is not evidence of feed health.
func (f *Feed) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.conn == nil {
		return nil
	}
	err := f.conn.Close()
	f.conn = nil
	return err
}

func (f *Feed) current() (*websocket.Conn, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.conn == nil {
		return nil, fmt.Errorf("feed not connected")
	}
	return f.conn, nil
}
