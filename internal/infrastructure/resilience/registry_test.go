package resilience

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	return NewRegistry(nil)
}

func TestRegistryExecuteUnknownIntegration(t *testing.T) {
	registry := newTestRegistry(t)

	_, err := registry.Execute("ghost", succeedingOp)

	var unknown *UnknownIntegrationError
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, "ghost", unknown.Name)
	assert.True(t, errors.Is(err, ErrUnknownIntegration))
}

func TestRegistryRegisterIdempotent(t *testing.T) {
	registry := newTestRegistry(t)
	registry.Register("database", TypeDatabase, Settings{FailureThreshold: 3})

	_, _ = registry.Execute("database", failingOp)
	_, _ = registry.Execute("database", failingOp)

	// Re-registering a known name updates configuration without resetting
	// the accumulated failure count.
	registry.Register("database", TypeDatabase, Settings{FailureThreshold: 3})

	health, err := registry.GetHealth("database")
	require.NoError(t, err)
	assert.Equal(t, 2, health.ConsecutiveFailures)
	assert.Equal(t, StateClosed.String(), health.CircuitBreakerState)
}

func TestRegistryGetHealth(t *testing.T) {
	registry := newTestRegistry(t)
	registry.Register("ai-generation", TypeAI, Settings{FailureThreshold: 3})

	_, _ = registry.Execute("ai-generation", succeedingOp)

	health, err := registry.GetHealth("ai-generation")
	require.NoError(t, err)
	assert.Equal(t, "ai-generation", health.Integration)
	assert.Equal(t, TypeAI, health.Type)
	assert.True(t, health.Healthy)
	assert.Equal(t, 1, health.ConsecutiveSuccesses)
	assert.Equal(t, StateClosed.String(), health.CircuitBreakerState)
	assert.False(t, health.LastCheck.IsZero())

	_, err = registry.GetHealth("nope")
	var unknown *UnknownIntegrationError
	assert.ErrorAs(t, err, &unknown)
}

func TestRegistryGetAllHealth(t *testing.T) {
	registry := newTestRegistry(t)
	registry.Register("ai-generation", TypeAI, Settings{})
	registry.Register("database", TypeDatabase, Settings{})

	all := registry.GetAllHealth()
	assert.Len(t, all, 2)
	assert.Contains(t, all, "ai-generation")
	assert.Contains(t, all, "database")
}

func TestRegistryBreakerStatuses(t *testing.T) {
	registry := newTestRegistry(t)
	registry.Register("market-data", TypeMarketData, Settings{FailureThreshold: 1, RecoveryTimeout: time.Minute})

	_, _ = registry.Execute("market-data", failingOp)

	statuses := registry.GetAllBreakerStatuses()
	status, ok := statuses["market-data"]
	require.True(t, ok)
	assert.Equal(t, StateOpen.String(), status.State)
	assert.Equal(t, 1, status.Failures)
	assert.Equal(t, float64(1), status.FailureRate)
	require.NotNil(t, status.NextAttempt)
	assert.True(t, status.NextAttempt.After(time.Now()))
}

func TestRegistryDegradedIntegrations(t *testing.T) {
	registry := newTestRegistry(t)
	registry.Register("a", TypeAI, Settings{FailureThreshold: 1, SuccessThreshold: 2, RecoveryTimeout: 20 * time.Millisecond})
	registry.Register("b", TypeDatabase, Settings{FailureThreshold: 1, RecoveryTimeout: time.Minute})
	registry.Register("c", TypeMarketData, Settings{FailureThreshold: 1, SuccessThreshold: 2, RecoveryTimeout: 20 * time.Millisecond})

	assert.Empty(t, registry.DegradedIntegrations())

	// b: open. c: half-open (trial success below the success threshold).
	_, _ = registry.Execute("b", failingOp)
	_, _ = registry.Execute("c", failingOp)
	time.Sleep(30 * time.Millisecond)
	_, err := registry.Execute("c", succeedingOp)
	require.NoError(t, err)

	degraded := registry.DegradedIntegrations()
	require.Len(t, degraded, 2)
	// Registration order, for deterministic rendering.
	assert.Equal(t, "b", degraded[0].Name)
	assert.Equal(t, TypeDatabase, degraded[0].Type)
	assert.Equal(t, "c", degraded[1].Name)
}

func TestRegistryHealthSummary(t *testing.T) {
	registry := newTestRegistry(t)
	registry.Register("a", TypeAI, Settings{FailureThreshold: 10})
	registry.Register("b", TypeDatabase, Settings{FailureThreshold: 10})

	// a: error rate 0.0, b: error rate 0.5.
	_, _ = registry.Execute("a", succeedingOp)
	_, _ = registry.Execute("a", succeedingOp)
	_, _ = registry.Execute("b", succeedingOp)
	_, _ = registry.Execute("b", failingOp)

	summary := registry.HealthSummary()
	assert.Equal(t, 2, summary.Total)
	assert.Equal(t, 1, summary.Healthy)
	assert.Equal(t, 1, summary.Unhealthy)
	assert.InDelta(t, 0.25, summary.AvgErrorRate, 1e-9)
}

func TestRegistryHealthSummaryEmpty(t *testing.T) {
	registry := newTestRegistry(t)
	summary := registry.HealthSummary()
	assert.Equal(t, Summary{}, summary)
}

func TestRegistryResetBreaker(t *testing.T) {
	registry := newTestRegistry(t)
	registry.Register("database", TypeDatabase, Settings{FailureThreshold: 1, RecoveryTimeout: time.Minute})

	_, _ = registry.Execute("database", failingOp)
	require.Len(t, registry.DegradedIntegrations(), 1)

	registry.ResetBreaker("database")

	health, err := registry.GetHealth("database")
	require.NoError(t, err)
	assert.Equal(t, StateClosed.String(), health.CircuitBreakerState)
	assert.Equal(t, 0, health.ConsecutiveFailures)
	assert.Empty(t, registry.DegradedIntegrations())

	// Unknown names log and return: callers may race registration.
	assert.NotPanics(t, func() { registry.ResetBreaker("ghost") })
}

func TestRegistryForceOpen(t *testing.T) {
	registry := newTestRegistry(t)
	registry.Register("ai-generation", TypeAI, Settings{})

	require.NoError(t, registry.ForceOpen("ai-generation"))

	_, err := registry.Execute("ai-generation", succeedingOp)
	assert.True(t, errors.Is(err, ErrCircuitOpen))

	assert.Error(t, registry.ForceOpen("ghost"))
}

type capturingListener struct {
	events chan StateChangeEvent
}

func (l *capturingListener) OnStateChange(event StateChangeEvent) {
	l.events <- event
}

func TestRegistryNotifiesListeners(t *testing.T) {
	registry := newTestRegistry(t)
	registry.Register("market-data", TypeMarketData, Settings{FailureThreshold: 1, RecoveryTimeout: time.Minute})

	listener := &capturingListener{events: make(chan StateChangeEvent, 4)}
	registry.AddListener(listener)

	_, _ = registry.Execute("market-data", failingOp)

	select {
	case event := <-listener.events:
		assert.Equal(t, "market-data", event.Integration)
		assert.Equal(t, TypeMarketData, event.Type)
		assert.Equal(t, StateClosed, event.From)
		assert.Equal(t, StateOpen, event.To)
		assert.NotEmpty(t, event.ID)
	case <-time.After(time.Second):
		t.Fatal("expected a state change event")
	}
}
