package engine

import (
	"encoding/binary"
	"sort"
	"sync/atomic"
	"unsafe"

	"github.com/RoaringBitmap/roaring/v2/roaring64"
	"github.com/bits-and-blooms/bloom/v3"

	"github.com/hupe1980/lindex/internal/epoch"
	"github.com/hupe1980/lindex/internal/mem"
	"github.com/hupe1980/lindex/model"
)

// Group lifecycle: stable -> compacting -> (stable | splitNeeded).
// splitNeeded groups are replaced at root-rebuild time, never mutated in
// place afterward; retired groups reject writes so callers re-route.
const (
	groupStable int32 = iota
	groupCompacting
	groupSplitNeeded
	groupRetired
)

// bloomFPRate sizes the per-group negative-lookup filter.
const bloomFPRate = 0.01

// groupData is the immutable read side of a group: the sorted array, the
// model fitted over it, and a membership filter screening absent keys.
// Replaced wholesale at compaction, never mutated.
type groupData[V any] struct {
	keys   []uint64
	vals   []V
	model  *model.Linear
	filter *bloom.BloomFilter
}

func newGroupData[V any](keys []uint64, vals []V) *groupData[V] {
	d := &groupData[V]{
		keys:  keys,
		vals:  vals,
		model: model.FitLinear(keys),
	}
	if len(keys) > 0 {
		d.filter = bloom.NewWithEstimates(uint(len(keys)), bloomFPRate)
		var b [8]byte
		for _, k := range keys {
			binary.LittleEndian.PutUint64(b[:], k)
			d.filter.Add(b[:])
		}
	}
	return d
}

// bytes returns the accountable footprint of the data snapshot: full slice
// capacities count as allocated.
func (d *groupData[V]) bytes() uint64 {
	var v V
	n := uint64(cap(d.keys))*8 + uint64(cap(d.vals))*uint64(unsafe.Sizeof(v))
	if d.filter != nil {
		n += uint64(d.filter.Cap() / 8)
	}
	return n
}

func (d *groupData[V]) usedBytes() uint64 {
	var v V
	n := uint64(len(d.keys))*8 + uint64(len(d.vals))*uint64(unsafe.Sizeof(v))
	if d.filter != nil {
		n += uint64(d.filter.Cap() / 8)
	}
	return n
}

// search locates key in the sorted array using the model prediction plus a
// bounded window. Any key present in the array was part of the fit, so its
// true slot is guaranteed to lie within MaxError of the prediction.
func (d *groupData[V]) search(key uint64) (int, bool) {
	n := len(d.keys)
	if n == 0 {
		return 0, false
	}

	if d.filter != nil {
		var b [8]byte
		binary.LittleEndian.PutUint64(b[:], key)
		if !d.filter.Test(b[:]) {
			return 0, false
		}
	}

	pred := d.model.Predict(key)
	e := d.model.MaxError()
	lo := pred - e
	if lo < 0 {
		lo = 0
	}
	hi := pred + e + 1
	if hi > n {
		hi = n
	}

	i := lo + sort.Search(hi-lo, func(j int) bool {
		return d.keys[lo+j] >= key
	})
	if i < hi && d.keys[i] == key {
		return i, true
	}
	return i, false
}

// lowerBound returns the first slot with key >= begin.
func (d *groupData[V]) lowerBound(begin uint64) int {
	return sort.Search(len(d.keys), func(i int) bool {
		return d.keys[i] >= begin
	})
}

// Group owns one contiguous key range: a sorted array with a fitted model
// (the data snapshot) plus a write buffer absorbing mutations.
//
// Readers must load the buffer pointer before the data pointer; compaction
// stores the new data before the new buffer. See the package doc for why
// this ordering makes reads consistent without locks.
type Group[V any] struct {
	low  uint64
	cfg  Config
	acct *mem.Accountant
	rec  *epoch.Reclaimer

	buf  atomic.Pointer[Buffer[V]]
	data atomic.Pointer[groupData[V]]

	state       atomic.Int32
	compactHint atomic.Bool
}

// newGroup builds a stable group over the given sorted segment. low is the
// inclusive lower bound of the group's key range, which may extend below the
// first array key.
func newGroup[V any](low uint64, keys []uint64, vals []V, cfg Config, acct *mem.Accountant, rec *epoch.Reclaimer) *Group[V] {
	g := &Group[V]{
		low:  low,
		cfg:  cfg,
		acct: acct,
		rec:  rec,
	}
	d := newGroupData(keys, vals)
	acct.Grab(d.bytes())
	g.data.Store(d)
	g.buf.Store(NewBuffer[V](cfg.BufferSizeBound, cfg.BufferSizeTolerance))
	return g
}

// Low returns the inclusive lower bound of the group's key range.
func (g *Group[V]) Low() uint64 {
	return g.low
}

// Get returns the value for key. The buffer takes precedence over the array
// so overwrites and tombstones are visible before compaction.
func (g *Group[V]) Get(key uint64) (V, error) {
	var zero V

	b := g.buf.Load()
	if v, st := b.Get(key); st == LookupLive {
		return v, nil
	} else if st == LookupTombstone {
		return zero, ErrNotFound
	}

	d := g.data.Load()
	if i, ok := d.search(key); ok {
		return d.vals[i], nil
	}
	return zero, ErrNotFound
}

// Put buffers an insert or overwrite. Returns ErrRetry while a structural
// change is in progress; the caller must re-route through the live root.
func (g *Group[V]) Put(key uint64, val V) error {
	if g.state.Load() != groupStable {
		return ErrRetry
	}

	needCompact, err := g.buf.Load().Put(key, val)
	if err != nil {
		return err
	}
	if needCompact {
		g.compactHint.Store(true)
	}
	return nil
}

// Remove logically deletes key. Deletions are visible to subsequent gets
// immediately even though the array entry persists until compaction.
func (g *Group[V]) Remove(key uint64) error {
	if g.state.Load() == groupRetired {
		return ErrRetry
	}

	b := g.buf.Load()
	d := g.data.Load()
	_, inArray := d.search(key)

	removed, err := b.Remove(key, inArray)
	if err != nil {
		return err
	}
	if !removed {
		return ErrNotFound
	}
	return nil
}

// scanInto merge-walks the array and buffer in ascending key order, honoring
// tombstones, appending entries with keys in [begin, end) to acc. unbounded
// ignores end; limit < 0 means unlimited. It reports whether the limit was
// reached.
func (g *Group[V]) scanInto(acc *[]KV[V], begin, end uint64, unbounded bool, limit int) bool {
	b := g.buf.Load()
	d := g.data.Load()

	entries, dead := b.View(begin, end, unbounded)

	i := d.lowerBound(begin)
	j := 0
	for i < len(d.keys) || j < len(entries) {
		if limit >= 0 && len(*acc) >= limit {
			return true
		}

		var takeBuffer bool
		switch {
		case i >= len(d.keys):
			takeBuffer = true
		case j >= len(entries):
			takeBuffer = false
		default:
			takeBuffer = entries[j].key <= d.keys[i]
		}

		if takeBuffer {
			e := entries[j]
			j++
			if i < len(d.keys) && d.keys[i] == e.key {
				i++ // buffer overwrites the array entry
			}
			*acc = append(*acc, KV[V]{Key: e.key, Value: e.val})
			continue
		}

		k := d.keys[i]
		if !unbounded && k >= end {
			return false
		}
		if !dead.Contains(k) {
			*acc = append(*acc, KV[V]{Key: k, Value: d.vals[i]})
		}
		i++
	}
	return false
}

// Compact freezes the buffer, merges it into a new sorted array, refits the
// model, and swaps the data snapshot. The old snapshot and buffer are
// retired through the epoch reclaimer. No-op unless the group is stable.
func (g *Group[V]) Compact() {
	if !g.state.CompareAndSwap(groupStable, groupCompacting) {
		return
	}

	oldBuf := g.buf.Load()
	entries, dead := oldBuf.Freeze()
	oldData := g.data.Load()

	keys, vals := mergeIntoArray(oldData.keys, oldData.vals, entries, dead)
	nd := newGroupData(keys, vals)
	g.acct.Grab(nd.bytes())

	// Data before buffer: see the reader ordering invariant.
	g.data.Store(nd)
	g.buf.Store(NewBuffer[V](g.cfg.BufferSizeBound, g.cfg.BufferSizeTolerance))
	g.compactHint.Store(false)

	oldBytes := oldData.bytes()
	g.rec.Retire(func() { g.acct.Release(oldBytes) })

	if g.splitCandidate(nd) {
		g.state.Store(groupSplitNeeded)
	} else {
		g.state.Store(groupStable)
	}
}

func (g *Group[V]) splitCandidate(d *groupData[V]) bool {
	if d.model == nil {
		return false
	}
	if len(d.keys) > g.cfg.MaxGroupSize {
		return true
	}
	return d.model.MaxError() > g.cfg.GroupErrorBound ||
		d.model.MeanError() > g.cfg.GroupErrorTolerance
}

// Adjust runs one adjustment evaluation: compact the buffer when it has
// crossed the compaction threshold, then report whether the group requires
// a structural (root-level) change.
func (g *Group[V]) Adjust() bool {
	switch g.state.Load() {
	case groupSplitNeeded:
		return true
	case groupCompacting, groupRetired:
		return false
	}

	n := g.buf.Load().Len()
	if g.compactHint.Load() || (n > 0 && n*g.cfg.BufferCompactThreshold >= g.cfg.BufferSizeBound) {
		g.Compact()
	}
	return g.state.Load() == groupSplitNeeded
}

// MeanError returns the mean prediction error of the current model, the
// fitness metric driving reorganization decisions.
func (g *Group[V]) MeanError() float64 {
	d := g.data.Load()
	if d.model == nil {
		return 0
	}
	return d.model.MeanError()
}

// ArrayLen returns the length of the current sorted array.
func (g *Group[V]) ArrayLen() int {
	return len(g.data.Load().keys)
}

// BufferedLen returns the current buffer population.
func (g *Group[V]) BufferedLen() int {
	return g.buf.Load().Len()
}

// snapshotAll freezes the buffer and returns the group's full merged
// contents. Used when the group is about to be replaced by a split or merge;
// the group must already be out of the stable state.
func (g *Group[V]) snapshotAll() ([]uint64, []V) {
	entries, dead := g.buf.Load().Freeze()
	d := g.data.Load()
	return mergeIntoArray(d.keys, d.vals, entries, dead)
}

// retire marks the group dead so writers re-route, and queues its accounting
// release behind the epoch barrier.
func (g *Group[V]) retire() {
	g.state.Store(groupRetired)
	bytes := g.data.Load().bytes()
	acct := g.acct
	g.rec.Retire(func() { acct.Release(bytes) })
}

// ByteSize reports the group's current footprint, buffer included.
func (g *Group[V]) ByteSize() mem.ByteSize {
	d := g.data.Load()
	size := mem.ByteSize{
		Allocated: d.bytes(),
		Used:      d.usedBytes(),
	}
	return size.Add(g.buf.Load().ByteSize())
}

// mergeIntoArray merges buffered entries into a sorted array, dropping
// tombstoned keys. Buffer entries win over array entries with equal keys.
func mergeIntoArray[V any](keys []uint64, vals []V, entries []bufEntry[V], dead *roaring64.Bitmap) ([]uint64, []V) {
	outKeys := make([]uint64, 0, len(keys)+len(entries))
	outVals := make([]V, 0, len(keys)+len(entries))

	i, j := 0, 0
	for i < len(keys) || j < len(entries) {
		var takeBuffer bool
		switch {
		case i >= len(keys):
			takeBuffer = true
		case j >= len(entries):
			takeBuffer = false
		default:
			takeBuffer = entries[j].key <= keys[i]
		}

		if takeBuffer {
			e := entries[j]
			j++
			if i < len(keys) && keys[i] == e.key {
				i++
			}
			outKeys = append(outKeys, e.key)
			outVals = append(outVals, e.val)
			continue
		}

		if !dead.Contains(keys[i]) {
			outKeys = append(outKeys, keys[i])
			outVals = append(outVals, vals[i])
		}
		i++
	}
	return outKeys, outVals
}
