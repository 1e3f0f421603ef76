// Package gateway bridges the MQTT broker and the device registry.
//
// The gateway owns the broker-facing message flow in both directions:
//
//   - Inbound: it subscribes to the per-device telemetry topics
//     (status, heartbeat, error, content/current), parses each payload
//     by topic kind, and applies the result to the fleet registry.
//     Every inbound message - recognised or not - is also forwarded to
//     the fan-out broker so live observers see raw broker traffic.
//
//   - Outbound: it wraps commands in a timestamped envelope and
//     publishes them to a device's command topic.
//
// # Message Parsing
//
// Each telemetry topic carries its own payload shape, and payloads are
// parsed strictly by kind: a status message must carry a valid status
// value, a heartbeat may carry an RFC 3339 timestamp, and so on.
// Anything that fails to parse is rejected with ErrMalformedMessage,
// logged, and dropped - a misbehaving device can never corrupt
// registry state.
//
// # Failure Model
//
// Inbound handler errors are logged and never fatal: a malformed
// payload or a registry conflict drops that one message and the
// gateway keeps consuming. Outbound publishes surface transport errors
// to the caller (ErrNotConnected when the broker session is down).
//
// # Thread Safety
//
// All methods are safe for concurrent use. Handlers run on the
// transport's delivery goroutines.
package gateway
