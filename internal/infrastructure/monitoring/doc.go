/*
Package monitoring provides Prometheus-based metrics collection.

# Overview

Tracks HTTP requests against the observability API, every integration call
routed through the resilience registry, and circuit breaker state
transitions.

# Usage

	// Create the metrics collector (once per process)
	metrics := monitoring.NewMetrics()

	// Add middleware to the Gin router
	router.Use(monitoring.Middleware(metrics))

	// Attach to the registry so call outcomes and transitions are recorded
	registry := resilience.NewRegistry(logger, resilience.WithMetrics(metrics))

# Metrics Endpoint

Expose metrics via the standard Prometheus endpoint:

	import "github.com/prometheus/client_golang/prometheus/promhttp"
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
*/
package monitoring
