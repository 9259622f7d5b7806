// Package server provides HTTP server setup and initialization for the
// resilience backend.
//
// This package orchestrates all components:
//   - HTTP routing with Gin framework
//   - Middleware stack (CORS, rate limiting, tracing, error boundary)
//   - Resilience registry and integration registration
//   - Degraded-mode store and watcher wiring
//   - Integration clients (AI generation, market data, persistence)
//
// Server Lifecycle:
//  1. Load configuration from environment
//  2. Initialize logger (production or development)
//  3. Create metrics, tracer, and the resilience registry
//  4. Register integrations from the integrations file or defaults
//  5. Attach the degraded-mode watcher to breaker transitions
//  6. Setup HTTP routes, WebSocket stream, and middleware
//  7. Start HTTP server
//  8. Graceful shutdown on signal
//
// Example Usage:
//
//	cfg := config.LoadOrDefault()
//	srv, err := server.NewServer(cfg)
//	if err := srv.Run(); err != nil {
//	    log.Fatal(err)
//	}
package server
