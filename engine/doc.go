// Package engine provides the learned-index structure layer for lindex.
//
// The engine is organized as three layers:
//
//   - Root: an immutable snapshot routing keys to Groups through a two-stage
//     learned model. The root pointer is replaced wholesale on structural
//     change, never mutated, which is what makes lock-free reads against a
//     stable snapshot possible.
//   - Group: a contiguous key-range partition owning a sorted array, a local
//     bounded-error model, and a write buffer absorbing mutations.
//   - Buffer: a small ordered mutable holding area; entries are merged into
//     the group array at compaction, at which point the group model is refit.
//
// # Concurrency Model
//
// Foreground operations never block on structural work: they run against
// whatever root snapshot is currently live. Writers targeting a group whose
// buffer is frozen by a concurrent compaction receive ErrRetry and re-route
// through the (possibly updated) live root.
//
// Group readers load the buffer pointer before the data pointer; compaction
// stores the new data before the new buffer. A reader that observes the
// fresh empty buffer is therefore guaranteed to observe the merged array.
//
// Retired roots, groups, and buffer snapshots are handed to the epoch
// reclaimer and released only once no worker can still reference them.
//
// # Background Adjustment
//
// The Adjuster runs rounds in which worker tasks evaluate disjoint group
// subsets (buffer compaction, model retraining, split/merge candidacy). If
// any group signals a structural change, a new root is built from the
// post-adjustment groups, published atomically, and the old root retired
// behind an epoch barrier.
package engine
