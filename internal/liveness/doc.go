// Package liveness detects silent devices and marks them offline.
//
// Devices assert their own liveness by publishing heartbeats; the
// monitor asserts the opposite. On a fixed interval it sweeps every
// online device and compares the last heartbeat against the configured
// timeout. A device that has been silent past the timeout is
// transitioned to offline and a synthetic status event is broadcast on
// the fan-out broker, exactly as if the device had reported the
// transition itself:
//
//	topic:   device/{id}/status
//	payload: {"status":"offline","reason":"heartbeat_timeout"}
//
// # Transition Direction
//
// The sweep only ever moves devices offline. The reverse transition
// belongs exclusively to inbound telemetry (a heartbeat or status
// message through the gateway).
//
// # Concurrency
//
// Each candidate is re-read immediately before the offline write, and
// the write is revision-guarded. A heartbeat racing the sweep wins:
// the guarded write fails with a conflict, which is logged and
// skipped - the device stays online and the next sweep re-evaluates.
package liveness
