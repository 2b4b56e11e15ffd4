// Package lindex provides a concurrent, self-adjusting learned ordered
// key-value index for Go.
//
// Instead of comparison-based tree nodes, lindex routes lookups through
// learned models: a top-level two-stage model maps a key to a contiguous
// key-range partition ("group"), and each group pairs a bounded-error model
// over a sorted array with a small mutable write buffer absorbing inserts,
// overwrites, and deletions. Background (or synchronous) adjustment rounds
// compact buffers, retrain models, split or merge groups, and atomically
// swap in a freshly built root while concurrent readers continue operating
// without locks, protected by epoch-based reclamation.
//
// Production-ready features include:
//
//   - Point lookups, inserts, deletes, bounded scans, and range scans over
//     a sorted uint64 key space with generic values
//   - Lock-free reads against a stable root snapshot; writers never block
//     on background reorganization
//   - Error-bounded learned models with split-on-violation enforcement
//   - Background adjustment workers plus a synchronous force path for
//     deterministic testing
//   - Per-group bloom filters screening negative lookups
//   - Structured logging (log/slog), pluggable metrics (including a
//     Prometheus collector), and recursive allocated/used byte reporting
//
// # Quick Start
//
// Bulk-load a sorted key set and operate on it:
//
//	ix, err := lindex.New[string](keys, vals,
//	    lindex.WithWorkers(4),
//	    lindex.WithBackgroundWorkers(1),
//	)
//	if err != nil {
//	    panic(err)
//	}
//	defer ix.Close()
//
//	const worker = 0 // stable per-goroutine id in [0, workers)
//	v, err := ix.Get(42, worker)
//	err = ix.Put(43, "hello", worker)
//	pairs, err := ix.RangeScan(10, 100, worker)
//
// Every operation takes a caller-supplied worker identifier used solely to
// track that worker's epoch progress for safe memory reclamation; callers
// must supply a stable identifier in [0, workers).
//
// # Adjustment
//
// With background workers enabled, buffers are compacted and the structure
// reorganized automatically. With zero background workers, adjustment runs
// only through the synchronous path:
//
//	structural := ix.ForceAdjustment()
//
// For tuning guidance see the option documentation in options.go.
package lindex
