// Package testutil provides testing utilities and helpers for backend tests.
package testutil

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/mock"

	"github.com/quantforge/QuantForge/backend/internal/infrastructure/resilience"
	"github.com/quantforge/QuantForge/backend/internal/logging"
)

// ErrUnavailable is the failure injected by the flaky operation helpers.
var ErrUnavailable = errors.New("service unavailable")

// FailingOperation always fails.
func FailingOperation() func() (any, error) {
	return func() (any, error) {
		return nil, ErrUnavailable
	}
}

// SucceedingOperation always succeeds with the given result.
func SucceedingOperation(result any) func() (any, error) {
	return func() (any, error) {
		return result, nil
	}
}

// FlakyOperation fails the first n calls, then succeeds.
func FlakyOperation(n int) func() (any, error) {
	var (
		mu    sync.Mutex
		calls int
	)
	return func() (any, error) {
		mu.Lock()
		defer mu.Unlock()
		calls++
		if calls <= n {
			return nil, ErrUnavailable
		}
		return "success", nil
	}
}

// NewTestRegistry creates a registry with a no-op logger, registers the
// given integration, and returns the registry.
func NewTestRegistry(t *testing.T, name string, settings resilience.Settings) *resilience.Registry {
	t.Helper()
	registry := resilience.NewRegistry(logging.NewNop())
	registry.Register(name, "test", settings)
	return registry
}

// MockListener is a mock resilience.StateChangeListener for testing.
type MockListener struct {
	mock.Mock
}

// OnStateChange records the transition event.
func (m *MockListener) OnStateChange(event resilience.StateChangeEvent) {
	m.Called(event)
}

// RecordingListener collects transition events for assertions when mock
// expectations are overkill.
type RecordingListener struct {
	mu     sync.Mutex
	events []resilience.StateChangeEvent
}

// OnStateChange implements resilience.StateChangeListener.
func (r *RecordingListener) OnStateChange(event resilience.StateChangeEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

// Events returns a copy of the recorded events.
func (r *RecordingListener) Events() []resilience.StateChangeEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]resilience.StateChangeEvent, len(r.events))
	copy(out, r.events)
	return out
}
