// Package fleet defines the Device and Content entities and the typed
// registry over the document store.
//
// Devices are the remote display endpoints; Content is the media they
// render. Both are stored as revisioned JSON documents - the registry
// marshals between the typed structs and store documents and surfaces
// the store's optimistic concurrency unchanged: a write that loses a
// race returns store.ErrConflict and the caller decides whether to
// re-read and retry.
//
// # Invariant
//
// For every content item the key set of the per-device order map equals
// the assigned-device set. The registry rejects writes that violate
// this; the assignment package is the only writer of those fields.
//
// # Auto-registration
//
// Telemetry from an unknown device id creates the device on first
// contact with placeholder metadata. Field deployments flash devices
// with nothing but an id and a broker address; the registry fills in
// the rest when the device first speaks.
package fleet
