// Package api implements the HTTP REST API and WebSocket push hub for
// FinBoard Core.
//
// This package provides:
//   - REST endpoints for widget CRUD, ordering, templates and import/export
//   - Acquisition control (start, stop, manual refresh, URL probing)
//   - Field discovery and display projections for UI rendering
//   - WebSocket hub pushing widget store events, per dashboard or per widget
//   - Read access to the configuration audit trail
//   - Prometheus metrics endpoint
//   - Middleware stack (request ID, logging and metrics, recovery, CORS, body limit)
//
// # Architecture
//
// The server sits between the dashboard UI and the widget store. Mutations go
// through the store; the acquisition engine follows store events, so the API
// never starts or stops polling as a side effect of its own. Widget results
// reach the UI through the hub, which is registered as a store listener.
//
// # Graceful Degradation
//
// MQTT is optional. Without it the health endpoint reports mqtt as disabled
// and everything else works unchanged.
package api
