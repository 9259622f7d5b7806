package resilience

import (
	"sync"
	"time"
)

// State represents the circuit breaker state
type State int

const (
	StateClosed State = iota
	StateHalfOpen
	StateOpen
)

// String returns the string representation of the state
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateHalfOpen:
		return "half-open"
	case StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

// Settings configures breaker behavior for one integration. Tolerances
// differ per dependency: a flaky market-data socket is expected to reconnect
// more readily than the persistence backend.
type Settings struct {
	// FailureThreshold is the consecutive-failure count that opens the
	// breaker from closed state.
	FailureThreshold int
	// SuccessThreshold is the consecutive trial successes required to close
	// the breaker from half-open state.
	SuccessThreshold int
	// RecoveryTimeout is how long the breaker stays open before the next
	// execute call becomes a recovery trial.
	RecoveryTimeout time.Duration
	// OnStateChange is called, if set, whenever the state changes.
	OnStateChange func(name string, from State, to State)
}

func (s *Settings) applyDefaults() {
	if s.FailureThreshold <= 0 {
		s.FailureThreshold = 5
	}
	if s.SuccessThreshold <= 0 {
		s.SuccessThreshold = 1
	}
	if s.RecoveryTimeout <= 0 {
		s.RecoveryTimeout = 30 * time.Second
	}
}

// Breaker guards calls to one integration. It decides per call whether the
// wrapped operation may run, and transitions state from the outcomes
// recorded in the shared HealthRecord.
type Breaker struct {
	name string

	mu            sync.Mutex
	settings      Settings
	state         State
	openedAt      time.Time
	trialInFlight bool
	// generation invalidates in-flight calls across transitions and resets
	// so a stale completion cannot drive a second transition.
	generation uint64

	record *HealthRecord
}

// NewBreaker creates a closed breaker bound to the given health record.
func NewBreaker(name string, settings Settings, record *HealthRecord) *Breaker {
	settings.applyDefaults()
	if record == nil {
		record = NewHealthRecord(DefaultWindowSize)
	}
	return &Breaker{
		name:     name,
		settings: settings,
		state:    StateClosed,
		record:   record,
	}
}

// Name returns the integration name this breaker guards.
func (b *Breaker) Name() string { return b.name }

// Record returns the health record shared with this breaker.
func (b *Breaker) Record() *HealthRecord { return b.record }

// State returns the current state. Read-only: the open to half-open
// transition happens on the next Execute call, not on queries, so dashboard
// polling never mutates breaker state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// NextAttempt returns when the next trial is permitted, and false when the
// breaker is not open.
func (b *Breaker) NextAttempt() (time.Time, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state != StateOpen {
		return time.Time{}, false
	}
	return b.openedAt.Add(b.settings.RecoveryTimeout), true
}

// Execute runs op if the breaker allows it. Open state short-circuits with
// a *CircuitOpenError without invoking op and without touching the health
// record: a rejected call is not evidence of integration health. The
// operation's own error is always re-surfaced to the caller after being
// recorded. The operation is expected to enforce its own timeout.
func (b *Breaker) Execute(op func() (any, error)) (any, error) {
	generation, err := b.beforeCall(time.Now())
	if err != nil {
		return nil, err
	}

	start := time.Now()
	defer func() {
		if e := recover(); e != nil {
			b.afterCall(generation, false, time.Since(start))
			panic(e)
		}
	}()

	result, err := op()
	b.afterCall(generation, err == nil, time.Since(start))
	return result, err
}

// beforeCall makes the allow/deny decision and claims the half-open trial
// slot. The call that crosses the recovery timeout becomes the trial call,
// not a further rejection.
func (b *Breaker) beforeCall(now time.Time) (uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == StateOpen {
		nextAttempt := b.openedAt.Add(b.settings.RecoveryTimeout)
		if now.Before(nextAttempt) {
			return 0, &CircuitOpenError{Integration: b.name, NextAttempt: nextAttempt}
		}
		b.setState(StateHalfOpen)
	}

	if b.state == StateHalfOpen {
		if b.trialInFlight {
			// One trial at a time: concurrent callers must not stampede a
			// recovering dependency.
			return 0, &CircuitOpenError{Integration: b.name}
		}
		b.trialInFlight = true
	}

	return b.generation, nil
}

// afterCall feeds the outcome into the health record and applies the
// transition rules. Outcomes from a previous generation still count toward
// the rolling statistics but drive no transition.
func (b *Breaker) afterCall(generation uint64, success bool, latency time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if success {
		b.record.RecordSuccess(latency)
	} else {
		b.record.RecordFailure(latency)
	}

	if generation != b.generation {
		return
	}

	switch b.state {
	case StateClosed:
		if !success && b.record.ConsecutiveFailures() >= b.settings.FailureThreshold {
			b.trip()
		}
	case StateHalfOpen:
		b.trialInFlight = false
		if !success {
			// Recovery timer restarts from the new failure time.
			b.trip()
			return
		}
		if b.record.ConsecutiveSuccesses() >= b.settings.SuccessThreshold {
			b.setState(StateClosed)
			b.record.Reset()
		}
	}
}

// ForceOpen trips the breaker regardless of recorded outcomes. Used by the
// degraded-mode error boundary when it attributes a failure to this
// integration.
func (b *Breaker) ForceOpen() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state != StateOpen {
		b.trip()
	}
}

// ForceReset is the administrative override: immediately closed, streak
// counters zeroed, recovery timer cleared. The only way state regresses to
// initial.
func (b *Breaker) ForceReset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.setState(StateClosed)
	b.openedAt = time.Time{}
	b.trialInFlight = false
	b.record.Reset()
}

// UpdateSettings replaces thresholds and timeout without resetting
// accumulated counters. Supports idempotent re-registration.
func (b *Breaker) UpdateSettings(settings Settings) {
	settings.applyDefaults()
	b.mu.Lock()
	defer b.mu.Unlock()
	if settings.OnStateChange == nil {
		settings.OnStateChange = b.settings.OnStateChange
	}
	b.settings = settings
}

// trip must be called with the lock held.
func (b *Breaker) trip() {
	b.openedAt = time.Now()
	b.trialInFlight = false
	b.setState(StateOpen)
}

// setState must be called with the lock held.
func (b *Breaker) setState(state State) {
	b.generation++
	if b.state == state {
		return
	}
	prev := b.state
	b.state = state
	if b.settings.OnStateChange != nil {
		b.settings.OnStateChange(b.name, prev, state)
	}
}
