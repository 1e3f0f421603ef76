// Package assignment manages which content plays on which devices.
//
// The engine owns every mutation of the content/device relationship:
// assigning, unassigning, reordering, shuffling and content deletion.
// It is the only writer of the order map, and preserves its invariant
// on every path: the order keys always equal the assigned device set.
//
// # Ordering
//
// Each device has an independent playlist. A content item's position
// on a device is its order value for that device; playlists are read
// back ascending by that value. New assignments append after the
// highest existing position, reordering rewrites positions 0..n-1,
// and shuffling applies a uniform random permutation.
//
// # Playlist Push
//
// After a successful mutation the engine recomputes the playlist of
// every affected device and publishes an update_content command to it.
// The push is fire-and-forget: a publish failure (device offline,
// broker down) is logged and never rolls back the registry write - the
// device catches up on its next content fetch.
//
// # Concurrency
//
// Registry writes are revision-guarded. A concurrent mutation of the
// same content item surfaces as store.ErrConflict to the caller, who
// retries with fresh state.
package assignment
