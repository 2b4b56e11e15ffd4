package engine

import (
	"sync"
	"unsafe"

	"github.com/RoaringBitmap/roaring/v2/roaring64"
	"github.com/google/btree"

	"github.com/hupe1980/lindex/internal/mem"
)

// bufEntry is a single buffered write.
type bufEntry[V any] struct {
	key uint64
	val V
}

// LookupState is the outcome of a buffer point lookup.
type LookupState int

const (
	// LookupMiss means the buffer holds no information about the key.
	LookupMiss LookupState = iota
	// LookupLive means the buffer holds the current value for the key.
	LookupLive
	// LookupTombstone means the key was removed and the deletion has not
	// yet been compacted into the array.
	LookupTombstone
)

// btreeDegree matches the small working set of a group buffer.
const btreeDegree = 8

// Buffer is a group-local ordered holding area for writes that have not yet
// been merged into the group's sorted array.
//
// Live overwrites and inserts go into a btree; deletions of keys that still
// have an array entry are tracked in a tombstone bitmap. Buffer entries take
// precedence over array entries (array entries are older by construction).
//
// A buffer freezes exactly once, at the start of the owning group's
// compaction. A frozen buffer stays readable for in-flight readers but
// rejects writes with ErrRetry.
type Buffer[V any] struct {
	mu     sync.RWMutex
	frozen bool
	live   *btree.BTreeG[bufEntry[V]]
	dead   *roaring64.Bitmap

	bound     int
	tolerance int
}

// NewBuffer creates an empty buffer with the given size bound and tolerance.
func NewBuffer[V any](bound, tolerance int) *Buffer[V] {
	return &Buffer[V]{
		live: btree.NewG(btreeDegree, func(a, b bufEntry[V]) bool {
			return a.key < b.key
		}),
		dead:      roaring64.New(),
		bound:     bound,
		tolerance: tolerance,
	}
}

// Get looks up key in the buffer.
func (b *Buffer[V]) Get(key uint64) (V, LookupState) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if e, ok := b.live.Get(bufEntry[V]{key: key}); ok {
		return e.val, LookupLive
	}
	if b.dead.Contains(key) {
		var zero V
		return zero, LookupTombstone
	}
	var zero V
	return zero, LookupMiss
}

// Put inserts or overwrites key. It reports whether the buffer has crossed
// its size bound plus tolerance and needs compaction. Returns ErrRetry if
// the buffer is frozen by a concurrent compaction.
func (b *Buffer[V]) Put(key uint64, val V) (needCompact bool, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.frozen {
		return false, ErrRetry
	}

	b.dead.Remove(key)
	b.live.ReplaceOrInsert(bufEntry[V]{key: key, val: val})

	return b.sizeLocked() > b.bound+b.tolerance, nil
}

// Remove deletes key from the buffer. inArray tells the buffer whether the
// owning group's sorted array still holds an entry for the key; if so, a
// tombstone is recorded so the deletion stays visible until the next
// compaction physically purges the entry.
//
// It reports whether the key was logically present. Returns ErrRetry if the
// buffer is frozen.
func (b *Buffer[V]) Remove(key uint64, inArray bool) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.frozen {
		return false, ErrRetry
	}

	_, hadLive := b.live.Delete(bufEntry[V]{key: key})
	if !hadLive && b.dead.Contains(key) {
		// Already tombstoned; nothing left to delete.
		return false, nil
	}
	if inArray {
		b.dead.Add(key)
		return true, nil
	}
	return hadLive, nil
}

// Len returns the number of buffered writes, tombstones included.
func (b *Buffer[V]) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.sizeLocked()
}

func (b *Buffer[V]) sizeLocked() int {
	return b.live.Len() + int(b.dead.GetCardinality())
}

// Freeze flips the buffer read-only and returns its contents in ascending
// key order together with the tombstone set. Idempotent callers are not
// supported: a buffer freezes exactly once.
func (b *Buffer[V]) Freeze() ([]bufEntry[V], *roaring64.Bitmap) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.frozen = true

	entries := make([]bufEntry[V], 0, b.live.Len())
	b.live.Ascend(func(e bufEntry[V]) bool {
		entries = append(entries, e)
		return true
	})
	return entries, b.dead.Clone()
}

// View returns the buffered entries with keys in [begin, end) in ascending
// order, plus a snapshot of the tombstone set, for merge-walking scans.
// unbounded ignores end and walks to the top of the key domain, so the
// maximum key value stays an ordinary, scannable key.
func (b *Buffer[V]) View(begin, end uint64, unbounded bool) ([]bufEntry[V], *roaring64.Bitmap) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var entries []bufEntry[V]
	b.live.AscendGreaterOrEqual(bufEntry[V]{key: begin}, func(e bufEntry[V]) bool {
		if !unbounded && e.key >= end {
			return false
		}
		entries = append(entries, e)
		return true
	})
	return entries, b.dead.Clone()
}

// ByteSize reports the buffer's memory footprint. The btree's internal node
// slack is not visible from outside, so allocated and used coincide here up
// to the tombstone bitmap's container overhead.
func (b *Buffer[V]) ByteSize() mem.ByteSize {
	b.mu.RLock()
	defer b.mu.RUnlock()

	entryBytes := uint64(b.live.Len()) * uint64(unsafe.Sizeof(bufEntry[V]{}))
	bitmapBytes := b.dead.GetSizeInBytes()

	return mem.ByteSize{
		Allocated: entryBytes + bitmapBytes,
		Used:      entryBytes + bitmapBytes,
	}
}
