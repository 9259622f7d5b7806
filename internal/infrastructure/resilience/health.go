package resilience

import (
	"sync"
	"time"

	"gonum.org/v1/gonum/stat"
)

// DefaultWindowSize is the capacity of the rolling outcome and latency
// buffers when none is configured.
const DefaultWindowSize = 50

// HealthSnapshot is a read-only, point-in-time view of a HealthRecord,
// consumed by the breaker, the registry, and the dashboard.
type HealthSnapshot struct {
	Healthy              bool          `json:"healthy"`
	ConsecutiveFailures  int           `json:"consecutive_failures"`
	ConsecutiveSuccesses int           `json:"consecutive_successes"`
	LastCheck            time.Time     `json:"last_check"`
	ErrorRate            float64       `json:"error_rate"`
	AvgLatency           time.Duration `json:"avg_latency"`
}

// HealthRecord keeps rolling outcome and latency statistics for one
// integration. Pure bookkeeping: no decisions, no failure modes. All
// mutators and queries are safe for concurrent use.
type HealthRecord struct {
	mu sync.Mutex

	consecutiveFailures  int
	consecutiveSuccesses int
	lastCheck            time.Time

	// Fixed-capacity rings, oldest entry evicted on overflow.
	outcomes  []bool
	latencies []time.Duration
	next      int
	filled    int
}

// NewHealthRecord creates a record with the given rolling window capacity.
// A non-positive window falls back to DefaultWindowSize.
func NewHealthRecord(window int) *HealthRecord {
	if window <= 0 {
		window = DefaultWindowSize
	}
	return &HealthRecord{
		outcomes:  make([]bool, window),
		latencies: make([]time.Duration, window),
	}
}

// RecordSuccess notes a successful call. Resets the failure streak.
func (r *HealthRecord) RecordSuccess(latency time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.consecutiveSuccesses++
	r.consecutiveFailures = 0
	r.push(true, latency)
}

// RecordFailure notes a failed call. Resets the success streak.
func (r *HealthRecord) RecordFailure(latency time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.consecutiveFailures++
	r.consecutiveSuccesses = 0
	r.push(false, latency)
}

// push must be called with the lock held.
func (r *HealthRecord) push(ok bool, latency time.Duration) {
	r.outcomes[r.next] = ok
	r.latencies[r.next] = latency
	r.next = (r.next + 1) % len(r.outcomes)
	if r.filled < len(r.outcomes) {
		r.filled++
	}
	r.lastCheck = time.Now()
}

// ErrorRate returns the fraction of failures in the rolling window, in
// [0, 1]. An empty window reports 0: before any call completes there is no
// evidence of failure.
func (r *HealthRecord) ErrorRate() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.errorRateLocked()
}

func (r *HealthRecord) errorRateLocked() float64 {
	if r.filled == 0 {
		return 0
	}
	failures := 0
	for i := 0; i < r.filled; i++ {
		if !r.outcomes[i] {
			failures++
		}
	}
	return float64(failures) / float64(r.filled)
}

// AverageLatency returns the mean latency over the rolling window, 0 when
// the window is empty.
func (r *HealthRecord) AverageLatency() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.averageLatencyLocked()
}

func (r *HealthRecord) averageLatencyLocked() time.Duration {
	if r.filled == 0 {
		return 0
	}
	samples := make([]float64, r.filled)
	for i := 0; i < r.filled; i++ {
		samples[i] = float64(r.latencies[i])
	}
	return time.Duration(stat.Mean(samples, nil))
}

// ConsecutiveFailures returns the current failure streak.
func (r *HealthRecord) ConsecutiveFailures() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.consecutiveFailures
}

// ConsecutiveSuccesses returns the current success streak.
func (r *HealthRecord) ConsecutiveSuccesses() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.consecutiveSuccesses
}

// Reset zeroes the streak counters and clears the rolling buffers.
func (r *HealthRecord) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.consecutiveFailures = 0
	r.consecutiveSuccesses = 0
	r.next = 0
	r.filled = 0
}

// Snapshot returns a consistent view of the record. The healthy flag is
// derived here, and only here, so every consumer agrees on its meaning:
// no active failure streak and the guarding breaker not open.
func (r *HealthRecord) Snapshot(circuitOpen bool) HealthSnapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return HealthSnapshot{
		Healthy:              r.consecutiveFailures == 0 && !circuitOpen,
		ConsecutiveFailures:  r.consecutiveFailures,
		ConsecutiveSuccesses: r.consecutiveSuccesses,
		LastCheck:            r.lastCheck,
		ErrorRate:            r.errorRateLocked(),
		AvgLatency:           r.averageLatencyLocked(),
	}
}
