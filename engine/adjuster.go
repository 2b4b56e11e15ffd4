package engine

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/hupe1980/lindex/internal/epoch"
)

// DefaultAdjustInterval is the pause between background adjustment rounds.
const DefaultAdjustInterval = 100 * time.Millisecond

// Adjuster coordinates structural maintenance of the index: background
// adjustment rounds and the synchronous force path. It is the only actor
// that builds and publishes new roots, serialized by an internal mutex, so
// a rebuild either fully replaces the live root or leaves it fully intact.
type Adjuster[V any] struct {
	live     *atomic.Pointer[Root[V]]
	rec      *epoch.Reclaimer
	logger   *slog.Logger
	bgN      int
	interval time.Duration
	limiter  *rate.Limiter

	// structMu serializes rounds against the force path; foreground
	// operations never take it.
	structMu sync.Mutex

	cancel  context.CancelFunc
	done    chan struct{}
	running atomic.Bool
}

// NewAdjuster creates an Adjuster over the live root pointer. bgN is the
// number of background worker tasks per round; limiter optionally paces
// per-group adjustment work and may be nil.
func NewAdjuster[V any](live *atomic.Pointer[Root[V]], rec *epoch.Reclaimer, bgN int, interval time.Duration, limiter *rate.Limiter, logger *slog.Logger) *Adjuster[V] {
	if interval <= 0 {
		interval = DefaultAdjustInterval
	}
	return &Adjuster[V]{
		live:     live,
		rec:      rec,
		logger:   logger,
		bgN:      bgN,
		interval: interval,
		limiter:  limiter,
	}
}

// Start launches the background coordinator. No-op when bgN == 0 or the
// adjuster is already running.
func (a *Adjuster[V]) Start() {
	if a.bgN == 0 || !a.running.CompareAndSwap(false, true) {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel
	a.done = make(chan struct{})

	goSafe(a.logger, func() {
		defer close(a.done)
		ticker := time.NewTicker(a.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				a.round(ctx)
			}
		}
	})
}

// Stop terminates the background loop cooperatively: the cancellation is
// observed at the top of a round, so Stop may block for up to one full
// round before the coordinator exits.
func (a *Adjuster[V]) Stop() {
	if !a.running.CompareAndSwap(true, false) {
		return
	}
	a.cancel()
	<-a.done
}

// Force runs one adjustment round inline with no worker tasks, for
// deterministic testing and benchmarking. It reports whether a structural
// change was performed.
//
// guard, if non-nil, is evaluated under the structural mutex and aborts the
// round when it returns false. This lets the owner fence Force against
// teardown: once teardown has retired the live root under Exclusive, a
// concurrent Force must not rebuild from the retired groups.
func (a *Adjuster[V]) Force(guard func() bool) bool {
	a.structMu.Lock()
	defer a.structMu.Unlock()

	if guard != nil && !guard() {
		return false
	}

	root := a.live.Load()
	if !root.ForceAdjustmentSync() {
		return false
	}
	a.swapLocked(root)
	return true
}

// Exclusive runs fn while holding the structural mutex, excluding any
// concurrent round or Force from publishing a new root in the meantime.
func (a *Adjuster[V]) Exclusive(fn func()) {
	a.structMu.Lock()
	defer a.structMu.Unlock()
	fn()
}

// round partitions the live root's groups across bgN worker tasks, each
// performing group-local adjustment for its disjoint subset concurrently
// with foreground traffic, then rebuilds the root if any group signaled a
// structural change.
func (a *Adjuster[V]) round(ctx context.Context) {
	a.structMu.Lock()
	defer a.structMu.Unlock()

	root := a.live.Load()
	n := len(root.groups)

	var structural atomic.Bool
	eg, egCtx := errgroup.WithContext(ctx)
	for w := 0; w < a.bgN; w++ {
		eg.Go(func() error {
			for i := w; i < n; i += a.bgN {
				if a.limiter != nil {
					if err := a.limiter.Wait(egCtx); err != nil {
						return err
					}
				}
				if root.groups[i].Adjust() {
					structural.Store(true)
				}
			}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		// Cancelled mid-round; leftover work is picked up next round.
		return
	}

	if structural.Load() || root.mergeCandidates() {
		a.swapLocked(root)
	}
}

// swapLocked publishes a freshly built root and retires the old one behind
// an epoch barrier. Caller holds structMu and guarantees old is live.
func (a *Adjuster[V]) swapLocked(old *Root[V]) {
	newRoot := old.CreateNewRoot()
	a.live.Store(newRoot)
	old.Retire()

	// No in-flight operation references the old root or its discarded
	// groups once the barrier returns.
	a.rec.Barrier()
	newRoot.Trim()

	st := newRoot.Stats()
	a.logger.Debug("root rebuilt",
		"group_n", st.GroupCount,
		"rmi_2nd_stage_model_n", st.SecondStageModels,
		"avg_group_error", st.AvgGroupError,
		"max_group_error", st.MaxGroupError,
	)
}
