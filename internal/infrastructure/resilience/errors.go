package resilience

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrCircuitOpen is the sentinel for every short-circuited call. Use
	// errors.Is against it, or errors.As with *CircuitOpenError for the
	// retry-after detail.
	ErrCircuitOpen = errors.New("circuit breaker is open")

	// ErrUnknownIntegration is returned by query and execute paths when
	// the named integration was never registered.
	ErrUnknownIntegration = errors.New("unknown integration")
)

// CircuitOpenError is returned when a call is rejected without being
// executed, either because the breaker is open or because a recovery trial
// is already in flight.
type CircuitOpenError struct {
	Integration string
	// NextAttempt is when the next trial call will be permitted. Zero when
	// the rejection came from a concurrent half-open trial.
	NextAttempt time.Time
}

func (e *CircuitOpenError) Error() string {
	if e.NextAttempt.IsZero() {
		return fmt.Sprintf("integration %q is recovering: trial call already in flight", e.Integration)
	}
	return fmt.Sprintf("integration %q is unavailable (circuit open): retry after %s", e.Integration, e.NextAttempt.Format(time.RFC3339))
}

func (e *CircuitOpenError) Unwrap() error { return ErrCircuitOpen }

// UnknownIntegrationError identifies a query for an unregistered name. It is
// returned, never panicked, so dashboard polling stays resilient to
// registration races during startup.
type UnknownIntegrationError struct {
	Name string
}

func (e *UnknownIntegrationError) Error() string {
	return fmt.Sprintf("integration %q is not registered", e.Name)
}

func (e *UnknownIntegrationError) Unwrap() error { return ErrUnknownIntegration }
