// Package gateway is the host collaborator for the secret cell: it owns the
// cell, the session manager, and the HTTP server that exposes them.
//
// # Overview
//
// The Gateway struct wires the components together:
//
//	type Gateway struct {
//	    config   *config.Config
//	    cell     *cell.Cell
//	    sessions *session.Manager
//	    store    store.AuditStore
//	    // ...
//	}
//
// # HTTP API
//
// Endpoints, all JSON (byte payloads base64-encoded):
//
//   - POST /api/open   - Open a session, returns a handle
//   - POST /api/read   - Read the secret (handle + declared capacity)
//   - POST /api/write  - Replace the secret (handle + data)
//   - POST /api/close  - Close a session
//   - GET  /api/stats  - Lifetime tx/rx/error and open/close counters
//   - GET  /api/audit  - List audit entries (op/handle/since/limit filters)
//   - GET  /health     - Liveness check
//   - GET  /health/ready - Readiness with active session count
//
// # Error Mapping
//
// Cell and session errors map to statuses:
//
//   - receive buffer below capacity  -> 400
//   - no secret set                  -> 404
//   - handle not open                -> 409
//   - payload exceeds capacity       -> 413
//
// Error bodies are {"error": "..."}.
//
// # Lifecycle
//
// Start the gateway:
//
//	gw, err := gateway.New(cfg, logger)
//	err = gw.Run(ctx)
//
// Run blocks until the context is canceled or the server fails, then shuts
// down gracefully within the configured timeout.
package gateway
