package engine

import (
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/lindex/internal/epoch"
	"github.com/hupe1980/lindex/internal/mem"
	"github.com/hupe1980/lindex/model"
)

// Root is an immutable routing snapshot: the ordered set of groups, their
// pivot (lower-bound) keys, and a two-stage model over the pivots. Group
// key ranges partition the whole key domain without gaps or overlaps, in
// ascending order.
//
// A root is never mutated after construction; structural change builds a new
// root from the current groups and the live pointer is swapped wholesale.
type Root[V any] struct {
	cfg  Config
	acct *mem.Accountant
	rec  *epoch.Reclaimer

	pivots []uint64
	groups []*Group[V]
	rmi    *model.RMI

	// scratch holds rebuild staging (oversized pivot workspace) released by
	// Trim once the root is live, to bound peak memory.
	scratch []uint64
}

// NewRoot bulk-loads an initial root from a fully sorted key set. Group
// boundaries are chosen so every group's local model satisfies the group
// error bound; model fitting is parallelized across workers.
func NewRoot[V any](keys []uint64, vals []V, cfg Config, acct *mem.Accountant, rec *epoch.Reclaimer) *Root[V] {
	cfg = cfg.withDefaults()

	var groups []*Group[V]
	if len(keys) == 0 {
		groups = []*Group[V]{newGroup(0, nil, []V(nil), cfg, acct, rec)}
	} else {
		// Cut into chunks first, then bisect each chunk down to the error
		// bound in parallel.
		type chunkResult struct {
			index  int
			groups []*Group[V]
		}

		var starts []int
		for start := 0; start < len(keys); start += initGroupSize {
			starts = append(starts, start)
		}

		results := make([]chunkResult, len(starts))
		var eg errgroup.Group
		eg.SetLimit(cfg.WorkerN)
		for ci, start := range starts {
			end := min(start+initGroupSize, len(keys))
			low := keys[start]
			if start == 0 {
				low = 0 // the first group covers the bottom of the domain
			}
			eg.Go(func() error {
				results[ci] = chunkResult{
					index:  ci,
					groups: buildGroups(keys[start:end], vals[start:end], low, cfg, acct, rec),
				}
				return nil
			})
		}
		_ = eg.Wait() // tasks are infallible

		for _, res := range results {
			groups = append(groups, res.groups...)
		}
	}

	return assembleRoot(groups, cfg, acct, rec)
}

// assembleRoot wires pivots and the routing model over an ordered group set.
func assembleRoot[V any](groups []*Group[V], cfg Config, acct *mem.Accountant, rec *epoch.Reclaimer) *Root[V] {
	r := &Root[V]{
		cfg:    cfg,
		acct:   acct,
		rec:    rec,
		groups: groups,
	}

	r.pivots = make([]uint64, len(groups))
	for i, g := range groups {
		r.pivots[i] = g.Low()
	}
	r.rmi = fitRouting(r.pivots, cfg)

	// Staging workspace retained until Trim: rebuild-time pivot scratch.
	r.scratch = make([]uint64, 0, 2*len(r.pivots)+16)
	r.scratch = append(r.scratch, r.pivots...)

	acct.Grab(r.bytes())
	return r
}

// fitRouting fits the two-stage routing model, refining the second stage
// until the observed error meets the root error bound or the memory
// constraint caps the model count.
func fitRouting(pivots []uint64, cfg Config) *model.RMI {
	maxModels := cfg.RootMemoryConstraint / rmiModelBytes
	if maxModels < 1 {
		maxModels = 1
	}
	if maxModels > len(pivots) {
		maxModels = len(pivots)
	}

	stage2N := len(pivots)/8 + 1
	if stage2N > maxModels {
		stage2N = maxModels
	}

	rmi := model.FitRMI(pivots, stage2N)
	for rmi != nil && rmi.MaxError() > cfg.RootErrorBound && stage2N < maxModels {
		stage2N = min(stage2N*2, maxModels)
		rmi = model.FitRMI(pivots, stage2N)
	}
	return rmi
}

// bytes returns the accountable footprint of the root shell (pivot array and
// staging scratch); groups account for themselves.
func (r *Root[V]) bytes() uint64 {
	return uint64(cap(r.pivots))*8 + uint64(cap(r.scratch))*8
}

// locate returns the index of the group owning key: the rightmost group
// whose pivot is <= key. The routing model narrows the pivot search to a
// small window; galloping from the prediction keeps the lookup correct even
// at the model's error boundary, without ever scanning all pivots.
func (r *Root[V]) locate(key uint64) int {
	n := len(r.pivots)
	if n == 1 {
		return 0
	}

	i := r.rmi.Predict(key)
	if i < 0 {
		i = 0
	} else if i >= n {
		i = n - 1
	}

	lo, hi := i, i+1
	step := 1
	for lo > 0 && r.pivots[lo] > key {
		lo -= step
		step <<= 1
		if lo < 0 {
			lo = 0
		}
	}
	step = 1
	for hi < n && r.pivots[hi] <= key {
		hi += step
		step <<= 1
		if hi > n {
			hi = n
		}
	}

	j := lo + sort.Search(hi-lo, func(k int) bool {
		return r.pivots[lo+k] > key
	}) - 1
	if j < 0 {
		j = 0
	}
	return j
}

// Get routes a point lookup to the owning group.
func (r *Root[V]) Get(key uint64) (V, error) {
	return r.groups[r.locate(key)].Get(key)
}

// Put routes an insert/overwrite to the owning group. ErrRetry propagates to
// the caller, which must re-route through the (possibly updated) live root.
func (r *Root[V]) Put(key uint64, val V) error {
	return r.groups[r.locate(key)].Put(key, val)
}

// Remove routes a delete to the owning group.
func (r *Root[V]) Remove(key uint64) error {
	return r.groups[r.locate(key)].Remove(key)
}

// Scan returns up to limit pairs with keys >= begin in ascending order.
func (r *Root[V]) Scan(begin uint64, limit int) []KV[V] {
	acc := make([]KV[V], 0, limit)
	for i := r.locate(begin); i < len(r.groups); i++ {
		if r.groups[i].scanInto(&acc, begin, 0, true, limit) {
			break
		}
	}
	return acc
}

// RangeScan returns all pairs with keys in [begin, end) in ascending order.
func (r *Root[V]) RangeScan(begin, end uint64) []KV[V] {
	var acc []KV[V]
	if begin >= end {
		return acc
	}
	for i := r.locate(begin); i < len(r.groups); i++ {
		if i > 0 && r.pivots[i] >= end {
			break
		}
		r.groups[i].scanInto(&acc, begin, end, false, -1)
	}
	return acc
}

// ForceAdjustmentSync evaluates every group's adjustment need inline, with
// no worker tasks, and reports whether any group requires a structural
// change. Deterministic counterpart of a background round.
func (r *Root[V]) ForceAdjustmentSync() bool {
	structural := false
	for _, g := range r.groups {
		if g.Adjust() {
			structural = true
		}
	}
	return structural || r.mergeCandidates()
}

// mergeCandidates reports whether some adjacent pair of stable groups is
// small enough to be merged at the next rebuild.
func (r *Root[V]) mergeCandidates() bool {
	for i := 0; i+1 < len(r.groups); i++ {
		a, b := r.groups[i], r.groups[i+1]
		if a.state.Load() != groupStable || b.state.Load() != groupStable {
			continue
		}
		if mergeable(a, b, r.cfg) {
			return true
		}
	}
	return false
}

func mergeable[V any](a, b *Group[V], cfg Config) bool {
	aTotal := a.ArrayLen() + a.BufferedLen()
	bTotal := b.ArrayLen() + b.BufferedLen()
	return aTotal < cfg.MinGroupSize && aTotal+bTotal <= cfg.MaxGroupSize
}

// CreateNewRoot builds a brand-new root from the current groups'
// post-adjustment state: split-needed groups are partitioned down to the
// error bound, undersized adjacent groups are merged, all strictly in range
// order so the result stays totally ordered and non-overlapping.
//
// The old root and its groups are left intact for in-flight readers;
// replaced groups are retired through the epoch reclaimer. The caller
// publishes the returned root, waits for an epoch barrier, then calls Trim.
func (r *Root[V]) CreateNewRoot() *Root[V] {
	cfg := r.cfg

	rebuilt := make([]*Group[V], 0, len(r.groups)+8)
	for _, g := range r.groups {
		if g.state.Load() == groupSplitNeeded {
			keys, vals := g.snapshotAll()
			children := buildGroups(keys, vals, g.Low(), cfg, r.acct, r.rec)
			g.retire()
			rebuilt = append(rebuilt, children...)
			continue
		}
		rebuilt = append(rebuilt, g)
	}

	merged := make([]*Group[V], 0, len(rebuilt))
	for i := 0; i < len(rebuilt); {
		g := rebuilt[i]
		if i+1 < len(rebuilt) {
			next := rebuilt[i+1]
			if mergeable(g, next, cfg) &&
				g.state.CompareAndSwap(groupStable, groupCompacting) {
				if next.state.CompareAndSwap(groupStable, groupCompacting) {
					gk, gv := g.snapshotAll()
					nk, nv := next.snapshotAll()
					keys := append(gk, nk...)
					vals := append(gv, nv...)
					child := newGroup(g.Low(), keys, vals, cfg, r.acct, r.rec)
					g.retire()
					next.retire()
					merged = append(merged, child)
					i += 2
					continue
				}
				// Neighbor raced into another state; undo and keep both.
				g.state.Store(groupStable)
			}
		}
		merged = append(merged, g)
		i++
	}

	return assembleRoot(merged, cfg, r.acct, r.rec)
}

// Trim releases the rebuild staging workspace once the root is live.
func (r *Root[V]) Trim() {
	if r.scratch == nil {
		return
	}
	r.acct.Release(uint64(cap(r.scratch)) * 8)
	r.scratch = nil
}

// Retire queues the root shell's accounting release; its surviving groups
// are owned by the successor root and are not touched.
func (r *Root[V]) Retire() {
	bytes := r.bytes()
	acct := r.acct
	r.rec.Retire(func() { acct.Release(bytes) })
}

// RetireAll retires the root shell and every group it owns. Used only at
// index teardown, when no successor root will inherit the groups.
func (r *Root[V]) RetireAll() {
	for _, g := range r.groups {
		g.retire()
	}
	r.Retire()
}

// GroupCount returns the number of groups under this root.
func (r *Root[V]) GroupCount() int {
	return len(r.groups)
}

// Stats summarizes the root for diagnostics.
func (r *Root[V]) Stats() Stats {
	st := Stats{
		GroupCount: len(r.groups),
	}
	if r.rmi != nil {
		st.SecondStageModels = r.rmi.SecondStageModels()
	}
	for _, g := range r.groups {
		me := g.MeanError()
		st.AvgGroupError += me
		if me > st.MaxGroupError {
			st.MaxGroupError = me
		}
		st.BufferedEntries += g.BufferedLen()
	}
	if len(r.groups) > 0 {
		st.AvgGroupError /= float64(len(r.groups))
	}
	return st
}

// ByteSize reports the recursive footprint of the root and its groups.
func (r *Root[V]) ByteSize() mem.ByteSize {
	total := mem.ByteSize{
		Allocated: r.bytes(),
		Used:      uint64(len(r.pivots)) * 8,
	}
	for _, g := range r.groups {
		total = total.Add(g.ByteSize())
	}
	return total
}

// buildGroups recursively bisects a sorted segment until each piece's model
// meets the group error bound and tolerance. Split points balance the
// resulting sub-array sizes. The segment data is copied so child groups own
// their arrays.
func buildGroups[V any](keys []uint64, vals []V, low uint64, cfg Config, acct *mem.Accountant, rec *epoch.Reclaimer) []*Group[V] {
	if len(keys) <= 2*cfg.MinGroupSize {
		return []*Group[V]{newOwnedGroup(low, keys, vals, cfg, acct, rec)}
	}

	m := model.FitLinear(keys)
	if m.MaxError() <= cfg.GroupErrorBound &&
		m.MeanError() <= cfg.GroupErrorTolerance &&
		len(keys) <= cfg.MaxGroupSize {
		return []*Group[V]{newOwnedGroup(low, keys, vals, cfg, acct, rec)}
	}

	mid := len(keys) / 2
	left := buildGroups(keys[:mid], vals[:mid], low, cfg, acct, rec)
	right := buildGroups(keys[mid:], vals[mid:], keys[mid], cfg, acct, rec)
	return append(left, right...)
}

// newOwnedGroup copies the segment before handing it to a group.
func newOwnedGroup[V any](low uint64, keys []uint64, vals []V, cfg Config, acct *mem.Accountant, rec *epoch.Reclaimer) *Group[V] {
	ownedKeys := make([]uint64, len(keys))
	copy(ownedKeys, keys)
	ownedVals := make([]V, len(vals))
	copy(ownedVals, vals)
	return newGroup(low, ownedKeys, ownedVals, cfg, acct, rec)
}
