package lindex

import (
	"errors"
	"fmt"
	"runtime"
	"sync/atomic"
	"time"
	"unsafe"

	"github.com/hupe1980/lindex/engine"
	"github.com/hupe1980/lindex/internal/epoch"
	"github.com/hupe1980/lindex/internal/mem"
)

// KV is a key-value pair returned by scans.
type KV[V any] = engine.KV[V]

// Stats summarizes the live structure for diagnostics.
type Stats = engine.Stats

// Index is a concurrent, self-adjusting learned ordered key-value index.
// All methods are safe for concurrent use as long as each goroutine supplies
// its own worker id in [0, workers).
type Index[V any] struct {
	cfg engine.Config

	live     atomic.Pointer[engine.Root[V]]
	rec      *epoch.Reclaimer
	acct     *mem.Accountant
	adjuster *engine.Adjuster[V]

	logger  *Logger
	metrics MetricsCollector

	closed atomic.Bool
	bgN    int
}

// New bulk-loads an index from keys and vals. keys must be strictly
// ascending (sorted, no duplicates) and the same length as vals; an empty
// load is valid. The index starts its background adjustment workers
// immediately when WithBackgroundWorkers is set.
func New[V any](keys []uint64, vals []V, optFns ...Option) (*Index[V], error) {
	o := applyOptions(optFns)

	if err := o.cfg.Validate(); err != nil {
		return nil, configError(err)
	}
	if len(keys) != len(vals) {
		return nil, fmt.Errorf("%w: %d keys but %d values", ErrBulkLoad, len(keys), len(vals))
	}
	for i := 1; i < len(keys); i++ {
		if keys[i] <= keys[i-1] {
			return nil, fmt.Errorf("%w: keys not strictly ascending at position %d", ErrBulkLoad, i)
		}
	}

	ix := &Index[V]{
		cfg:     o.cfg,
		rec:     epoch.NewReclaimer(o.cfg.WorkerN),
		acct:    mem.NewAccountant(),
		logger:  o.logger,
		metrics: o.metricsCollector,
		bgN:     o.backgroundN,
	}

	root := engine.NewRoot(keys, vals, ix.cfg, ix.acct, ix.rec)
	root.Trim()
	ix.live.Store(root)

	ix.adjuster = engine.NewAdjuster(&ix.live, ix.rec, o.backgroundN, o.adjustInterval, o.adjustLimiter, o.logger.Logger)
	ix.adjuster.Start()

	ix.logger.Info("index loaded",
		"entries", len(keys),
		"group_n", root.GroupCount(),
		"workers", o.cfg.WorkerN,
		"background_workers", o.backgroundN,
	)
	return ix, nil
}

func (ix *Index[V]) checkOp(worker int) error {
	if ix.closed.Load() {
		return ErrClosed
	}
	if worker < 0 || worker >= ix.rec.Workers() {
		return fmt.Errorf("%w: %d not in [0, %d)", ErrInvalidWorker, worker, ix.rec.Workers())
	}
	return nil
}

// Get returns the value stored under key, or ErrNotFound. worker is the
// caller's stable worker id.
func (ix *Index[V]) Get(key uint64, worker int) (V, error) {
	var zero V
	if err := ix.checkOp(worker); err != nil {
		return zero, err
	}

	start := time.Now()
	ix.rec.Enter(worker)
	v, err := ix.live.Load().Get(key)
	ix.rec.Exit(worker)

	found := err == nil
	ix.metrics.RecordGet(time.Since(start), found)
	ix.logger.LogGet(key, found)
	if err != nil {
		return zero, translateError(err)
	}
	return v, nil
}

// Put inserts or overwrites key with val. A put landing on a group in the
// middle of a structural change is transparently re-routed through the
// updated live root; callers never see the conflict.
func (ix *Index[V]) Put(key uint64, val V, worker int) error {
	if err := ix.checkOp(worker); err != nil {
		return err
	}

	start := time.Now()
	retries := 0

	ix.rec.Enter(worker)
	for {
		err := ix.live.Load().Put(key, val)
		if !errors.Is(err, engine.ErrRetry) {
			ix.rec.Exit(worker)
			ix.metrics.RecordPut(time.Since(start), retries)
			ix.logger.LogPut(key, retries, err)
			return translateError(err)
		}

		// Leave the epoch while yielding so the retry loop cannot stall
		// the reclamation barrier of the very rebuild it is waiting on.
		retries++
		ix.rec.Exit(worker)
		runtime.Gosched()
		ix.rec.Enter(worker)
	}
}

// Remove deletes key. Returns ErrNotFound when the key is absent. The
// deletion is visible to subsequent gets immediately.
func (ix *Index[V]) Remove(key uint64, worker int) error {
	if err := ix.checkOp(worker); err != nil {
		return err
	}

	start := time.Now()

	ix.rec.Enter(worker)
	for {
		err := ix.live.Load().Remove(key)
		if !errors.Is(err, engine.ErrRetry) {
			ix.rec.Exit(worker)
			found := err == nil
			ix.metrics.RecordRemove(time.Since(start), found)
			ix.logger.LogRemove(key, found)
			return translateError(err)
		}

		ix.rec.Exit(worker)
		runtime.Gosched()
		ix.rec.Enter(worker)
	}
}

// Scan returns up to limit pairs with keys >= begin in ascending key order.
// The result is consistent with some interleaving of concurrent mutations,
// not a point-in-time snapshot.
func (ix *Index[V]) Scan(begin uint64, limit int, worker int) ([]KV[V], error) {
	if err := ix.checkOp(worker); err != nil {
		return nil, err
	}
	if limit <= 0 {
		return nil, nil
	}

	start := time.Now()
	ix.rec.Enter(worker)
	pairs := ix.live.Load().Scan(begin, limit)
	ix.rec.Exit(worker)

	ix.metrics.RecordScan(len(pairs), time.Since(start))
	ix.logger.LogScan(begin, len(pairs))
	return pairs, nil
}

// RangeScan returns all pairs with keys in [begin, end) in ascending key
// order. An empty range yields an empty result.
func (ix *Index[V]) RangeScan(begin, end uint64, worker int) ([]KV[V], error) {
	if err := ix.checkOp(worker); err != nil {
		return nil, err
	}

	start := time.Now()
	ix.rec.Enter(worker)
	pairs := ix.live.Load().RangeScan(begin, end)
	ix.rec.Exit(worker)

	ix.metrics.RecordScan(len(pairs), time.Since(start))
	ix.logger.LogScan(begin, len(pairs))
	return pairs, nil
}

// ForceAdjustment runs one full adjustment round synchronously: buffer
// compaction, model refits, and any required root rebuild. It reports
// whether a structural change was performed. Deterministic counterpart of
// the background workers, intended for tests and controlled maintenance.
func (ix *Index[V]) ForceAdjustment() bool {
	if ix.closed.Load() {
		return false
	}

	start := time.Now()
	structural := ix.adjuster.Force(func() bool { return !ix.closed.Load() })
	ix.metrics.RecordAdjustment(time.Since(start), structural)
	ix.logger.LogAdjustment(structural, ix.live.Load().Stats())
	return structural
}

// StartBackground starts the background adjustment workers. No-op when
// background workers are disabled or already running.
func (ix *Index[V]) StartBackground() {
	if ix.closed.Load() {
		return
	}
	ix.adjuster.Start()
}

// StopBackground stops the background adjustment workers, blocking until the
// in-flight round (if any) completes.
func (ix *Index[V]) StopBackground() {
	ix.adjuster.Stop()
}

// Stats returns a diagnostic summary of the live structure.
func (ix *Index[V]) Stats() Stats {
	return ix.live.Load().Stats()
}

// ByteSize reports the recursive memory footprint of the index.
func (ix *Index[V]) ByteSize() ByteSize {
	shell := uint64(unsafe.Sizeof(*ix))
	size := ix.live.Load().ByteSize()
	size.Allocated += shell
	size.Used += shell
	return size
}

// Close stops background work, retires the whole structure, and verifies the
// byte accounting balances. Operations on a closed index return ErrClosed.
// Close is idempotent.
func (ix *Index[V]) Close() error {
	if !ix.closed.CompareAndSwap(false, true) {
		return nil
	}

	ix.adjuster.Stop()

	// Retiring under the adjuster's structural mutex fences out a Force that
	// passed its fast closed-check before the flag flipped; its guard re-check
	// runs after we release the mutex and sees the index closed.
	ix.adjuster.Exclusive(func() {
		ix.live.Load().RetireAll()
	})
	ix.rec.Barrier()

	if leaked, overRelease := ix.acct.Leaked(); leaked != 0 {
		ix.logger.LogLeak(leaked, overRelease)
	}

	ix.logger.Info("index closed")
	return nil
}
