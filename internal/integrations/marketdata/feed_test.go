package marketdata

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantforge/QuantForge/backend/internal/infrastructure/config"
	"github.com/quantforge/QuantForge/backend/internal/infrastructure/resilience"
	"github.com/quantforge/QuantForge/backend/internal/logging"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// quoteServer upgrades, waits for a subscribe message, then emits one quote
// per subscribed symbol.
func quoteServer(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		var sub subscribeMessage
		if err := conn.ReadJSON(&sub); err != nil {
			return
		}
		for _, symbol := range sub.Symbols {
			quote := Quote{Symbol: symbol, Bid: 100.0, Ask: 100.2, Last: 100.1, At: time.Now()}
			if err := conn.WriteJSON(quote); err != nil {
				return
			}
		}
	}))
}

func newTestFeed(t *testing.T, serverURL string, failureThreshold int) (*Feed, *resilience.Registry) {
	t.Helper()
	registry := resilience.NewRegistry(logging.NewNop())
	registry.Register(Integration, resilience.TypeMarketData, resilience.Settings{
		FailureThreshold: failureThreshold,
		SuccessThreshold: 1,
		RecoveryTimeout:  time.Minute,
	})
	wsURL := "ws" + strings.TrimPrefix(serverURL, "http")
	feed := NewFeed(config.MarketDataConfig{URL: wsURL, Timeout: 5 * time.Second}, registry, logging.NewNop())
	return feed, registry
}

func TestFeedConnectSubscribeRead(t *testing.T) {
	server := quoteServer(t)
	defer server.Close()

	feed, registry := newTestFeed(t, server.URL, 3)
	defer feed.Close()

	require.NoError(t, feed.Connect(context.Background()))
	require.NoError(t, feed.Subscribe([]string{"SPY", "QQQ"}))

	quote, err := feed.ReadQuote()
	require.NoError(t, err)
	assert.Equal(t, "SPY", quote.Symbol)
	assert.Equal(t, 100.0, quote.Bid)

	quote, err = feed.ReadQuote()
	require.NoError(t, err)
	assert.Equal(t, "QQQ", quote.Symbol)

	health, err := registry.GetHealth(Integration)
	require.NoError(t, err)
	assert.True(t, health.Healthy)
	assert.Equal(t, 4, health.ConsecutiveSuccesses)
}

func TestFeedDialFailuresOpenBreaker(t *testing.T) {
	feed, _ := newTestFeed(t, "http://127.0.0.1:1", 2)

	for i := 0; i < 2; i++ {
		err := feed.Connect(context.Background())
		require.Error(t, err)
	}

	// Breaker open: the next attempt is rejected without dialing.
	err := feed.Connect(context.Background())
	assert.True(t, errors.Is(err, resilience.ErrCircuitOpen))
}

func TestFeedReadWithoutConnectIsFailure(t *testing.T) {
	server := quoteServer(t)
	defer server.Close()

	feed, registry := newTestFeed(t, server.URL, 5)

	_, err := feed.ReadQuote()
	require.Error(t, err)
	assert.False(t, errors.Is(err, resilience.ErrCircuitOpen))

	health, gerr := registry.GetHealth(Integration)
	require.NoError(t, gerr)
	assert.Equal(t, 1, health.ConsecutiveFailures)
}
