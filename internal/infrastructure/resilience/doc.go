/*
Package resilience is the integration fault-isolation layer: per-integration
health tracking, circuit breakers, and the registry that decides when the
application should run degraded.

# Overview

Every external dependency (the strategy-generation AI, the persistence
backend, the market-data feed) is registered by name. Calls to a dependency
go through its breaker; outcomes flow into a rolling health record; the
breaker consults the record to decide its next transition. The registry owns
all of it and exposes the read-only aggregate the dashboard polls.

# Components

  - HealthRecord: rolling outcome/latency statistics, no behavior beyond
    update and query
  - Breaker: three-state machine (closed, open, half-open) guarding one
    integration
  - Registry: one (record, breaker) pair per integration, aggregate queries,
    degraded set, reset entry point, state-change fan-out

# Usage

	registry := resilience.NewRegistry(logger)
	registry.Register("ai-generation", resilience.TypeAI, resilience.Settings{
		FailureThreshold: 3,
		SuccessThreshold: 1,
		RecoveryTimeout:  30 * time.Second,
	})

	result, err := registry.Execute("ai-generation", func() (any, error) {
		return client.Generate(ctx, req)
	})
	var open *resilience.CircuitOpenError
	if errors.As(err, &open) {
		// dependency is being protected: fall back, retry after open.NextAttempt
	}

# Pattern

	Closed --[failure threshold]-> Open --[recovery timeout]-> Half-Open
	   ^                            ^                              |
	   |                            +---------[trial failure]------+
	   +------------[success threshold of trials]------------------+

Half-open admits exactly one in-flight trial at a time. Without that
restriction, concurrent callers during recovery would each count as an
independent success and flap the breaker closed against a still-unstable
dependency.

This layer coordinates failure state for a single process, not across
replicas, and issues no retries: it gates whether a call may be attempted
and records the outcome of attempts.
*/
package resilience
