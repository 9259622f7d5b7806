package degraded

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantforge/QuantForge/backend/internal/infrastructure/resilience"
	"github.com/quantforge/QuantForge/backend/internal/logging"
)

func TestStorePersistsModeAcrossRestarts(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mode.json")

	store := NewStore(path)
	assert.Equal(t, ModeLive, store.Mode())

	require.NoError(t, store.SetMode(ModeOffline, "circuit open: database"))
	assert.Equal(t, ModeOffline, store.Mode())
	assert.Equal(t, "circuit open: database", store.Reason())

	// A restart during the outage comes back up offline.
	reopened := NewStore(path)
	assert.Equal(t, ModeOffline, reopened.Mode())
}

func TestClassify(t *testing.T) {
	tests := []struct {
		message     string
		integration string
		ok          bool
	}{
		{"AI service timed out during generation", "ai-generation", true},
		{"dial tcp: connection refused", "database", true},
		{"SQL syntax error near SELECT", "database", true},
		{"quote stream disconnected", "market-data", true},
		{"websocket: close 1006", "market-data", true},
		{"something entirely unrelated", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.message, func(t *testing.T) {
			name, ok := Classify(tt.message)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.integration, name)
		})
	}
}

func event(integration string, to resilience.State) resilience.StateChangeEvent {
	return resilience.StateChangeEvent{
		ID:          "test-event",
		Integration: integration,
		From:        resilience.StateClosed,
		To:          to,
		At:          time.Now(),
	}
}

func TestWatcherFlipsModeOnCriticalOpen(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), "mode.json"))
	registry := resilience.NewRegistry(logging.NewNop())
	watcher := NewWatcher(registry, store, []string{"database"}, logging.NewNop())

	// Non-critical integration opening does not change the mode.
	watcher.OnStateChange(event("market-data", resilience.StateOpen))
	assert.Equal(t, ModeLive, store.Mode())

	watcher.OnStateChange(event("database", resilience.StateOpen))
	assert.Equal(t, ModeOffline, store.Mode())

	// Recovery of the critical integration restores live mode.
	watcher.OnStateChange(event("database", resilience.StateClosed))
	assert.Equal(t, ModeLive, store.Mode())
}

func TestWatcherStaysOfflineWhileAnyCriticalOpen(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), "mode.json"))
	registry := resilience.NewRegistry(logging.NewNop())
	watcher := NewWatcher(registry, store, []string{"database", "ai-generation"}, logging.NewNop())

	watcher.OnStateChange(event("database", resilience.StateOpen))
	watcher.OnStateChange(event("ai-generation", resilience.StateOpen))
	watcher.OnStateChange(event("database", resilience.StateClosed))

	assert.Equal(t, ModeOffline, store.Mode(), "ai-generation is still open")

	watcher.OnStateChange(event("ai-generation", resilience.StateClosed))
	assert.Equal(t, ModeLive, store.Mode())
}

func TestReconcileClearsStaleOfflineMode(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mode.json")
	require.NoError(t, NewStore(path).SetMode(ModeOffline, "circuit open: database"))

	// After a restart the breakers are closed but the persisted mode is
	// still offline, and no transition event will arrive to clear it.
	store := NewStore(path)
	registry := resilience.NewRegistry(logging.NewNop())
	registry.Register("database", resilience.TypeDatabase, resilience.Settings{})
	watcher := NewWatcher(registry, store, []string{"database"}, logging.NewNop())

	watcher.Reconcile()
	assert.Equal(t, ModeLive, store.Mode())
}

func TestReconcileKeepsOfflineWhileCriticalOpen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mode.json")
	require.NoError(t, NewStore(path).SetMode(ModeOffline, "circuit open: database"))

	store := NewStore(path)
	registry := resilience.NewRegistry(logging.NewNop())
	registry.Register("database", resilience.TypeDatabase, resilience.Settings{})
	watcher := NewWatcher(registry, store, []string{"database"}, logging.NewNop())
	require.NoError(t, registry.ForceOpen("database"))

	watcher.Reconcile()
	assert.Equal(t, ModeOffline, store.Mode())
}

func TestWatcherHandleError(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), "mode.json"))
	registry := resilience.NewRegistry(logging.NewNop())
	registry.Register("database", resilience.TypeDatabase, resilience.Settings{})
	watcher := NewWatcher(registry, store, []string{"database"}, logging.NewNop())

	name, ok := watcher.HandleError(errors.New("pq: connection refused"))
	require.True(t, ok)
	assert.Equal(t, "database", name)

	// The breaker is now open: calls short-circuit.
	_, err := registry.Execute("database", func() (any, error) { return nil, nil })
	assert.True(t, errors.Is(err, resilience.ErrCircuitOpen))

	// Unattributable errors are left alone.
	_, ok = watcher.HandleError(errors.New("divide by zero"))
	assert.False(t, ok)
	_, ok = watcher.HandleError(nil)
	assert.False(t, ok)
}
