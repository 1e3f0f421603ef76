// Package api provides the HTTP REST API and WebSocket server for
// Signage Core.
//
// It exposes the device fleet, content assignments and command
// dispatch to dashboards and operator tooling, and relays every
// fan-out event to connected WebSocket clients in real time.
//
// The server follows the same lifecycle pattern as other
// infrastructure components:
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
//
// Thread Safety: All methods are safe for concurrent use from
// multiple goroutines.
package api
