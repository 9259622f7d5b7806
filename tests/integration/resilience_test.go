//go:build integration
// +build integration

package integration

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantforge/QuantForge/backend/internal/degraded"
	"github.com/quantforge/QuantForge/backend/internal/infrastructure/resilience"
	"github.com/quantforge/QuantForge/backend/internal/logging"
	"github.com/quantforge/QuantForge/backend/tests/helpers/testutil"
)

func TestBreakerLifecycle(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping breaker lifecycle test")
	}

	registry := testutil.NewTestRegistry(t, "test-service", resilience.Settings{
		FailureThreshold: 3,
		SuccessThreshold: 1,
		RecoveryTimeout:  100 * time.Millisecond,
	})

	t.Run("opens after consecutive failures and short-circuits", func(t *testing.T) {
		fail := testutil.FailingOperation()
		for i := 0; i < 3; i++ {
			_, err := registry.Execute("test-service", fail)
			require.Error(t, err)
		}

		health, err := registry.GetHealth("test-service")
		require.NoError(t, err)
		assert.Equal(t, "open", health.CircuitBreakerState)
		assert.False(t, health.Healthy)

		// Rejected without invoking the operation
		invoked := false
		_, err = registry.Execute("test-service", func() (any, error) {
			invoked = true
			return nil, nil
		})
		assert.ErrorIs(t, err, resilience.ErrCircuitOpen)
		assert.False(t, invoked)
	})

	t.Run("recovers through half-open after the timeout", func(t *testing.T) {
		time.Sleep(150 * time.Millisecond)

		result, err := registry.Execute("test-service", testutil.SucceedingOperation("ok"))
		require.NoError(t, err)
		assert.Equal(t, "ok", result)

		health, err := registry.GetHealth("test-service")
		require.NoError(t, err)
		assert.Equal(t, "closed", health.CircuitBreakerState)
		assert.True(t, health.Healthy)
		assert.Empty(t, registry.DegradedIntegrations())
	})
}

func TestDegradedModeHandoff(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping degraded mode test")
	}

	stateFile := filepath.Join(t.TempDir(), "mode.json")
	logger := logging.NewNop()

	registry := resilience.NewRegistry(logger)
	registry.Register("ai-generation", resilience.TypeAI, resilience.Settings{
		FailureThreshold: 2,
		SuccessThreshold: 1,
		RecoveryTimeout:  50 * time.Millisecond,
	})

	store := degraded.NewStore(stateFile)
	watcher := degraded.NewWatcher(registry, store, []string{"ai-generation"}, logger)
	registry.AddListener(watcher)

	// Trip the critical breaker
	fail := testutil.FailingOperation()
	for i := 0; i < 2; i++ {
		_, _ = registry.Execute("ai-generation", fail)
	}

	// Listener dispatch is asynchronous
	require.Eventually(t, func() bool {
		return store.Mode() == degraded.ModeOffline
	}, time.Second, 10*time.Millisecond)

	// A restart sees the persisted offline mode
	reloaded := degraded.NewStore(stateFile)
	assert.Equal(t, degraded.ModeOffline, reloaded.Mode())

	// Recovery closes the breaker and returns to live mode
	time.Sleep(75 * time.Millisecond)
	_, err := registry.Execute("ai-generation", testutil.SucceedingOperation(nil))
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return store.Mode() == degraded.ModeLive
	}, time.Second, 10*time.Millisecond)
}
