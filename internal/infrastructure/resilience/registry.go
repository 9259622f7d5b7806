package resilience

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/quantforge/QuantForge/backend/internal/logging"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/stat"
)

// Well-known integration type tags, used only for display grouping.
const (
	TypeAI         = "ai"
	TypeDatabase   = "database"
	TypeMarketData = "market-data"
)

// HealthStatus is the merged display shape consumed by the dashboard: the
// health record snapshot joined with the breaker state.
type HealthStatus struct {
	Integration          string    `json:"integration"`
	Type                 string    `json:"type"`
	Healthy              bool      `json:"healthy"`
	LastCheck            time.Time `json:"last_check"`
	ConsecutiveFailures  int       `json:"consecutive_failures"`
	ConsecutiveSuccesses int       `json:"consecutive_successes"`
	CircuitBreakerState  string    `json:"circuit_breaker_state"`
	ResponseTimeMs       float64   `json:"response_time_ms"`
	ErrorRate            float64   `json:"error_rate"`
}

// BreakerStatus summarizes one breaker for the dashboard.
type BreakerStatus struct {
	State       string     `json:"state"`
	Failures    int        `json:"failures"`
	Successes   int        `json:"successes"`
	FailureRate float64    `json:"failure_rate"`
	NextAttempt *time.Time `json:"next_attempt,omitempty"`
}

// DegradedIntegration identifies an integration whose breaker is not closed.
type DegradedIntegration struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// Summary aggregates health across all registered integrations. Latency and
// error rate are unweighted arithmetic means over the set; the dashboard
// only needs a coarse signal.
type Summary struct {
	Total        int     `json:"total"`
	Healthy      int     `json:"healthy"`
	Unhealthy    int     `json:"unhealthy"`
	AvgLatencyMs float64 `json:"avg_latency_ms"`
	AvgErrorRate float64 `json:"avg_error_rate"`
}

// StateChangeEvent describes one breaker transition.
type StateChangeEvent struct {
	ID          string    `json:"id"`
	Integration string    `json:"integration"`
	Type        string    `json:"type"`
	From        State     `json:"-"`
	To          State     `json:"-"`
	FromState   string    `json:"from"`
	ToState     string    `json:"to"`
	At          time.Time `json:"at"`
}

// StateChangeListener is notified of breaker transitions. Listeners run on
// their own goroutines and must not call back into the registry's execute
// path synchronously.
type StateChangeListener interface {
	OnStateChange(event StateChangeEvent)
}

// MetricsRecorder receives call outcomes and transitions. Implemented by
// the monitoring package; nil-safe at the registry level so tests can run
// without a metrics pipeline.
type MetricsRecorder interface {
	RecordIntegrationCall(integration, outcome string, duration time.Duration)
	SetBreakerState(integration string, state State)
	RecordBreakerTrip(integration string)
	RecordBreakerReset(integration string)
}

// Call outcomes reported to the metrics pipeline.
const (
	OutcomeSuccess  = "success"
	OutcomeFailure  = "failure"
	OutcomeRejected = "rejected"
)

type entry struct {
	name    string
	kind    string
	record  *HealthRecord
	breaker *Breaker
}

// Registry owns the (HealthRecord, Breaker) pair for every registered
// integration and exposes the aggregate view. Callers hold no mutable
// reference to either: everything goes through the execute/query surface.
// Construct one at process start and pass it by handle; there is no package
// level instance.
type Registry struct {
	mu        sync.RWMutex
	entries   map[string]*entry
	order     []string
	listeners []StateChangeListener

	windowSize int
	logger     *logging.Logger
	metrics    MetricsRecorder
}

// Option configures a Registry.
type Option func(*Registry)

// WithWindowSize sets the rolling-statistics window for new health records.
func WithWindowSize(n int) Option {
	return func(r *Registry) { r.windowSize = n }
}

// WithMetrics attaches a metrics recorder.
func WithMetrics(m MetricsRecorder) Option {
	return func(r *Registry) { r.metrics = m }
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *logging.Logger, opts ...Option) *Registry {
	if logger == nil {
		logger = logging.NewDefault()
	}
	r := &Registry{
		entries:    make(map[string]*entry),
		windowSize: DefaultWindowSize,
		logger:     logger,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register adds an integration or, for a known name, updates its breaker
// configuration without resetting accumulated counters. Registration order
// is preserved for deterministic iteration.
func (r *Registry) Register(name, kind string, settings Settings) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if e, ok := r.entries[name]; ok {
		e.kind = kind
		e.breaker.UpdateSettings(settings)
		r.logger.Info("integration reconfigured", zap.String("integration", name))
		return
	}

	record := NewHealthRecord(r.windowSize)
	settings.OnStateChange = r.transitionHook(name, kind)
	e := &entry{
		name:    name,
		kind:    kind,
		record:  record,
		breaker: NewBreaker(name, settings, record),
	}
	r.entries[name] = e
	r.order = append(r.order, name)

	if r.metrics != nil {
		r.metrics.SetBreakerState(name, StateClosed)
	}
	r.logger.Info("integration registered",
		zap.String("integration", name),
		zap.String("type", kind))
}

// Execute routes op through the named integration's breaker and feeds the
// outcome back into its health record. The operation must enforce its own
// timeout; a timeout is reported here as an ordinary failure.
func (r *Registry) Execute(name string, op func() (any, error)) (any, error) {
	r.mu.RLock()
	e, ok := r.entries[name]
	r.mu.RUnlock()
	if !ok {
		return nil, &UnknownIntegrationError{Name: name}
	}

	start := time.Now()
	result, err := e.breaker.Execute(op)
	r.recordOutcome(name, err, time.Since(start))
	return result, err
}

func (r *Registry) recordOutcome(name string, err error, duration time.Duration) {
	if r.metrics == nil {
		return
	}
	switch {
	case err == nil:
		r.metrics.RecordIntegrationCall(name, OutcomeSuccess, duration)
	case isCircuitOpen(err):
		r.metrics.RecordIntegrationCall(name, OutcomeRejected, duration)
	default:
		r.metrics.RecordIntegrationCall(name, OutcomeFailure, duration)
	}
}

func isCircuitOpen(err error) bool {
	_, ok := err.(*CircuitOpenError)
	return ok
}

// GetHealth returns the display shape for one integration. Unknown names
// yield a typed not-found error, never a panic: the dashboard polls on a
// fixed interval and must survive registration races during startup.
func (r *Registry) GetHealth(name string) (HealthStatus, error) {
	r.mu.RLock()
	e, ok := r.entries[name]
	r.mu.RUnlock()
	if !ok {
		return HealthStatus{}, &UnknownIntegrationError{Name: name}
	}
	return r.healthOf(e), nil
}

func (r *Registry) healthOf(e *entry) HealthStatus {
	state := e.breaker.State()
	snap := e.record.Snapshot(state == StateOpen)
	return HealthStatus{
		Integration:          e.name,
		Type:                 e.kind,
		Healthy:              snap.Healthy,
		LastCheck:            snap.LastCheck,
		ConsecutiveFailures:  snap.ConsecutiveFailures,
		ConsecutiveSuccesses: snap.ConsecutiveSuccesses,
		CircuitBreakerState:  state.String(),
		ResponseTimeMs:       float64(snap.AvgLatency) / float64(time.Millisecond),
		ErrorRate:            snap.ErrorRate,
	}
}

// GetAllHealth returns the display shape for every registered integration.
func (r *Registry) GetAllHealth() map[string]HealthStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()

	all := make(map[string]HealthStatus, len(r.entries))
	for name, e := range r.entries {
		all[name] = r.healthOf(e)
	}
	return all
}

// GetAllBreakerStatuses returns per-breaker statistics for every
// registered integration.
func (r *Registry) GetAllBreakerStatuses() map[string]BreakerStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()

	all := make(map[string]BreakerStatus, len(r.entries))
	for name, e := range r.entries {
		state := e.breaker.State()
		snap := e.record.Snapshot(state == StateOpen)
		status := BreakerStatus{
			State:       state.String(),
			Failures:    snap.ConsecutiveFailures,
			Successes:   snap.ConsecutiveSuccesses,
			FailureRate: snap.ErrorRate,
		}
		if next, ok := e.breaker.NextAttempt(); ok {
			status.NextAttempt = &next
		}
		all[name] = status
	}
	return all
}

// DegradedIntegrations lists every integration whose breaker is not closed,
// in registration order. Recomputed on every call, never cached.
func (r *Registry) DegradedIntegrations() []DegradedIntegration {
	r.mu.RLock()
	defer r.mu.RUnlock()

	degraded := make([]DegradedIntegration, 0)
	for _, name := range r.order {
		e := r.entries[name]
		if e.breaker.State() != StateClosed {
			degraded = append(degraded, DegradedIntegration{Name: e.name, Type: e.kind})
		}
	}
	return degraded
}

// HealthSummary aggregates across all registered integrations.
func (r *Registry) HealthSummary() Summary {
	r.mu.RLock()
	defer r.mu.RUnlock()

	summary := Summary{Total: len(r.order)}
	if summary.Total == 0 {
		return summary
	}

	latencies := make([]float64, 0, summary.Total)
	errorRates := make([]float64, 0, summary.Total)
	for _, name := range r.order {
		e := r.entries[name]
		state := e.breaker.State()
		snap := e.record.Snapshot(state == StateOpen)
		if snap.Healthy {
			summary.Healthy++
		} else {
			summary.Unhealthy++
		}
		latencies = append(latencies, float64(snap.AvgLatency)/float64(time.Millisecond))
		errorRates = append(errorRates, snap.ErrorRate)
	}
	summary.AvgLatencyMs = stat.Mean(latencies, nil)
	summary.AvgErrorRate = stat.Mean(errorRates, nil)
	return summary
}

// ResetBreaker forces the named breaker closed. Unknown names log and
// return: callers may race registration and a reset is advisory.
func (r *Registry) ResetBreaker(name string) {
	r.mu.RLock()
	e, ok := r.entries[name]
	r.mu.RUnlock()
	if !ok {
		r.logger.Warn("reset requested for unknown integration", zap.String("integration", name))
		return
	}
	e.breaker.ForceReset()
	if r.metrics != nil {
		r.metrics.RecordBreakerReset(name)
	}
	r.logger.Info("circuit breaker reset", zap.String("integration", name))
}

// ForceOpen trips the named breaker immediately. The degraded-mode error
// boundary uses this when it attributes a caught error to an integration.
func (r *Registry) ForceOpen(name string) error {
	r.mu.RLock()
	e, ok := r.entries[name]
	r.mu.RUnlock()
	if !ok {
		return &UnknownIntegrationError{Name: name}
	}
	e.breaker.ForceOpen()
	return nil
}

// AddListener registers a state-change listener.
func (r *Registry) AddListener(listener StateChangeListener) {
	if listener == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listeners = append(r.listeners, listener)
}

// transitionHook builds the per-breaker OnStateChange callback. The breaker
// invokes it while holding its own lock, so everything here is handed off
// to a goroutine before any other lock is taken.
func (r *Registry) transitionHook(name, kind string) func(string, State, State) {
	return func(_ string, from, to State) {
		event := StateChangeEvent{
			ID:          uuid.NewString(),
			Integration: name,
			Type:        kind,
			From:        from,
			To:          to,
			FromState:   from.String(),
			ToState:     to.String(),
			At:          time.Now(),
		}
		go r.dispatch(event)
	}
}

func (r *Registry) dispatch(event StateChangeEvent) {
	r.logger.Warn("circuit breaker state changed",
		zap.String("integration", event.Integration),
		zap.String("from", event.FromState),
		zap.String("to", event.ToState),
		zap.String("event_id", event.ID))

	if r.metrics != nil {
		r.metrics.SetBreakerState(event.Integration, event.To)
		if event.To == StateOpen {
			r.metrics.RecordBreakerTrip(event.Integration)
		}
	}

	r.mu.RLock()
	listeners := make([]StateChangeListener, len(r.listeners))
	copy(listeners, r.listeners)
	r.mu.RUnlock()

	for _, listener := range listeners {
		go func(l StateChangeListener) {
			defer func() {
				if rec := recover(); rec != nil {
					r.logger.Error("state change listener panicked",
						zap.String("integration", event.Integration),
						zap.Any("panic", rec))
				}
			}()
			l.OnStateChange(event)
		}(listener)
	}
}
