package marketdata

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/quantforge/QuantForge/backend/internal/infrastructure/resilience"
	"github.com/quantforge/QuantForge/backend/internal/logging"
)

const reconnectDelay = 2 * time.Second

// Pump keeps the feed connected and caches the latest quote per symbol.
// When the feed breaker is open the pump idles until the recovery window
// instead of hammering a dead socket.
type Pump struct {
	feed    *Feed
	symbols []string
	logger  *logging.Logger

	mu     sync.RWMutex
	latest map[string]Quote
}

// NewPump creates a pump for the given symbols.
func NewPump(feed *Feed, symbols []string, logger *logging.Logger) *Pump {
	if logger == nil {
		logger = logging.NewDefault()
	}
	return &Pump{
		feed:    feed,
		symbols: symbols,
		logger:  logger.Component("quotepump"),
		latest:  make(map[string]Quote),
	}
}

// Latest returns a copy of the most recent quote per symbol.
func (p *Pump) Latest() map[string]Quote {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make(map[string]Quote, len(p.latest))
	for symbol, quote := range p.latest {
		out[symbol] = quote
	}
	return out
}

// Run drives the connect/subscribe/read loop until ctx is cancelled.
func (p *Pump) Run(ctx context.Context) {
	for {
		if err := p.session(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			p.sleep(ctx, delayFor(err))
		}
		if ctx.Err() != nil {
			return
		}
	}
}

func (p *Pump) session(ctx context.Context) error {
	if err := p.feed.Connect(ctx); err != nil {
		return err
	}
	if err := p.feed.Subscribe(p.symbols); err != nil {
		return err
	}
	for {
		quote, err := p.feed.ReadQuote()
		if err != nil {
			p.logger.Warn("feed read failed, reconnecting", zap.Error(err))
			return err
		}
		p.mu.Lock()
		p.latest[quote.Symbol] = *quote
		p.mu.Unlock()

		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

// delayFor waits out an open breaker instead of retrying into it.
func delayFor(err error) time.Duration {
	var open *resilience.CircuitOpenError
	if errors.As(err, &open) && !open.NextAttempt.IsZero() {
		if until := time.Until(open.NextAttempt); until > reconnectDelay {
			return until
		}
	}
	return reconnectDelay
}

func (p *Pump) sleep(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
