// Package epoch implements epoch-based memory reclamation for lock-free
// readers (RCU style).
//
// Workers bracket every operation with Enter/Exit. Structures retired during
// a structural change are queued with the epoch at which they were retired
// and released only once Barrier has observed every worker outside all older
// epochs. Readers therefore never observe a released Root, Group, or buffer
// snapshot, without taking any lock on the read path.
package epoch

import (
	"runtime"
	"sync"
	"sync/atomic"
	"time"
)

// cacheLineSize pads per-worker slots to avoid false sharing between
// workers hammering adjacent epoch counters.
const cacheLineSize = 64

type slot struct {
	// 0 means quiescent; otherwise the global epoch the worker entered at.
	epoch atomic.Uint64
	_     [cacheLineSize - 8]byte
}

type retired struct {
	epoch   uint64
	release func()
}

// Reclaimer tracks per-worker epochs and defers release callbacks until no
// worker can still reference the retired memory.
type Reclaimer struct {
	global atomic.Uint64
	slots  []slot

	mu    sync.Mutex
	queue []retired
}

// NewReclaimer creates a Reclaimer for workerN foreground workers.
func NewReclaimer(workerN int) *Reclaimer {
	r := &Reclaimer{
		slots: make([]slot, workerN),
	}
	r.global.Store(1)
	return r
}

// Workers returns the number of tracked worker slots.
func (r *Reclaimer) Workers() int {
	return len(r.slots)
}

// Enter marks the worker as active in the current global epoch. Every
// foreground operation must call Enter before touching the live root and
// Exit when done.
func (r *Reclaimer) Enter(worker int) {
	r.slots[worker].epoch.Store(r.global.Load())
}

// Exit marks the worker as quiescent.
func (r *Reclaimer) Exit(worker int) {
	r.slots[worker].epoch.Store(0)
}

// Retire queues a release callback at the current epoch. The callback runs
// during a later Barrier, once no worker can still hold a reference from
// before the retirement.
func (r *Reclaimer) Retire(release func()) {
	e := r.global.Load()
	r.mu.Lock()
	r.queue = append(r.queue, retired{epoch: e, release: release})
	r.mu.Unlock()
}

// Barrier advances the global epoch, waits until every worker has left all
// epochs older than the new one, and then runs the release callbacks retired
// before it.
//
// Barrier blocks for as long as any worker remains pinned in an old epoch;
// this is the reclamation-safety guarantee, not a liveness bug.
func (r *Reclaimer) Barrier() {
	target := r.global.Add(1)

	for i := range r.slots {
		spins := 0
		for {
			e := r.slots[i].epoch.Load()
			if e == 0 || e >= target {
				break
			}
			spins++
			if spins < 64 {
				runtime.Gosched()
			} else {
				time.Sleep(10 * time.Microsecond)
			}
		}
	}

	r.mu.Lock()
	var keep []retired
	ready := make([]func(), 0, len(r.queue))
	for _, item := range r.queue {
		if item.epoch < target {
			ready = append(ready, item.release)
		} else {
			keep = append(keep, item)
		}
	}
	r.queue = keep
	r.mu.Unlock()

	for _, release := range ready {
		release()
	}
}

// Pending returns the number of queued retirement callbacks. Used by
// diagnostics and tests.
func (r *Reclaimer) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.queue)
}
