// Package main is the entry point for the QuantForge backend server.
//
// This application fronts the trading-strategy dashboard, wrapping every
// external dependency (AI generation, market data feed, persistence) in a
// circuit breaker and exposing the resulting health picture over REST and
// WebSocket.
//
// Architecture:
//
//	Dashboard (React) → Go Backend → AI Service (strategy generation)
//	                              → Market Data Feed (WebSocket)
//	                              → Persistence Backend (REST)
//
// The server provides:
//   - Per-integration health tracking and circuit breakers
//   - Degraded-mode handoff persisted across restarts
//   - REST observability surface for the dashboard
//   - WebSocket health streaming
//   - Prometheus metrics, rate limiting, and request tracing
//
// Configuration:
//   - Environment variables (12-factor)
//   - Optional integrations YAML file (INTEGRATIONS_FILE)
//   - Defaults for development
//
// Usage:
//
//	PORT=8600 AI_BASE_URL=http://localhost:8601 ./server
//
// Signals:
//   - SIGINT, SIGTERM: Graceful shutdown
package main
