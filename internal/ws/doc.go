// Package ws streams health snapshots to dashboard clients over WebSocket.
//
// Clients connect to /stream and receive the full health snapshot (all
// integrations, breaker statuses, degraded set, summary, application mode)
// on a fixed interval, plus an immediate push on request.
//
// Message types (client to server):
//   - refresh: push a snapshot now
//   - ping: keep-alive
//
// Message types (server to client):
//   - snapshot: the health snapshot
//   - pong: keep-alive reply
package ws
