// Package middleware provides production-ready HTTP middleware for the
// resilience backend.
//
// Middleware stack includes:
//   - CORS: Cross-origin resource sharing with configurable origins
//   - RateLimit: Per-IP token bucket rate limiting
//   - ErrorBoundary: Panic recovery that attributes dependency failures
//     to their integration and forces the breaker open
//
// Rate Limiting:
//   - Per-IP tracking with automatic cleanup
//   - Token bucket algorithm
//   - Configurable RPS and burst capacity
//
// Example Usage:
//
//	router.Use(middleware.ErrorBoundary(watcher, logger))
//	router.Use(middleware.CORS(nil))
//	router.Use(middleware.RateLimit(cfg.RateLimit))
package middleware
