package engine

import (
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/lindex/internal/epoch"
	"github.com/hupe1980/lindex/internal/mem"
)

func testNoopSlog() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func TestAdjusterForce(t *testing.T) {
	t.Run("no structural change on a quiet index", func(t *testing.T) {
		cfg := testConfig()
		rec := epoch.NewReclaimer(1)
		root := NewRoot(sequentialKeys(1000, 3), make([]uint64, 1000), cfg, mem.NewAccountant(), rec)
		root.Trim()

		var live atomic.Pointer[Root[uint64]]
		live.Store(root)

		a := NewAdjuster(&live, rec, 0, 0, nil, testNoopSlog())
		assert.False(t, a.Force(nil))
		assert.Same(t, root, live.Load())
	})

	t.Run("rebuilds and swaps on split pressure", func(t *testing.T) {
		cfg := testConfig()
		cfg.MaxGroupSize = 64
		cfg.BufferSizeBound = 8
		cfg.BufferSizeTolerance = 2

		rec := epoch.NewReclaimer(1)
		acct := mem.NewAccountant()
		keys := sequentialKeys(64, 10)
		root := NewRoot(keys, keys, cfg, acct, rec)
		root.Trim()

		var live atomic.Pointer[Root[uint64]]
		live.Store(root)
		a := NewAdjuster(&live, rec, 0, 0, nil, testNoopSlog())

		for k := uint64(1); k <= 100; k++ {
			put := func() error { return live.Load().Put(k*10+5, k) }
			err := put()
			for err == ErrRetry {
				a.Force(nil)
				err = put()
			}
			require.NoError(t, err)
		}

		require.True(t, a.Force(nil))
		newRoot := live.Load()
		assert.NotSame(t, root, newRoot)
		assert.Greater(t, newRoot.GroupCount(), root.GroupCount())

		for k := uint64(1); k <= 100; k++ {
			v, err := newRoot.Get(k*10 + 5)
			require.NoError(t, err)
			assert.Equal(t, k, v)
		}
	})
}

func TestAdjusterBackground(t *testing.T) {
	cfg := testConfig()
	cfg.BufferSizeBound = 8
	cfg.BufferSizeTolerance = 2

	rec := epoch.NewReclaimer(1)
	keys := sequentialKeys(256, 4)
	root := NewRoot(keys, keys, cfg, mem.NewAccountant(), rec)
	root.Trim()

	var live atomic.Pointer[Root[uint64]]
	live.Store(root)

	a := NewAdjuster(&live, rec, 2, time.Millisecond, nil, testNoopSlog())
	a.Start()
	defer a.Stop()

	for k := uint64(0); k < 200; k++ {
		put := func() error { return live.Load().Put(k*4+1, k) }
		for put() == ErrRetry {
			time.Sleep(time.Millisecond)
		}
	}

	// Background rounds drain buffers below the compaction threshold.
	require.Eventually(t, func() bool {
		st := live.Load().Stats()
		return st.BufferedEntries*cfg.BufferCompactThreshold < cfg.BufferSizeBound*live.Load().GroupCount()
	}, 5*time.Second, 5*time.Millisecond)

	a.Stop()

	for k := uint64(0); k < 200; k++ {
		v, err := live.Load().Get(k*4 + 1)
		require.NoError(t, err)
		assert.Equal(t, k, v)
	}
}

func TestAdjusterForceGuard(t *testing.T) {
	cfg := testConfig()
	cfg.BufferSizeBound = 8
	cfg.BufferSizeTolerance = 2
	cfg.MaxGroupSize = 64

	rec := epoch.NewReclaimer(1)
	keys := sequentialKeys(64, 10)
	root := NewRoot(keys, keys, cfg, mem.NewAccountant(), rec)
	root.Trim()

	var live atomic.Pointer[Root[uint64]]
	live.Store(root)
	a := NewAdjuster(&live, rec, 0, 0, nil, testNoopSlog())

	// Build up enough split pressure that an unguarded Force would rebuild.
	for k := uint64(1); k <= 100; k++ {
		require.NoError(t, live.Load().Put(k*10+5, k))
	}

	assert.False(t, a.Force(func() bool { return false }))
	assert.Same(t, root, live.Load())

	assert.True(t, a.Force(func() bool { return true }))
	assert.NotSame(t, root, live.Load())
}

func TestAdjusterStartStop(t *testing.T) {
	cfg := testConfig()
	rec := epoch.NewReclaimer(1)
	root := NewRoot(sequentialKeys(100, 2), make([]uint64, 100), cfg, mem.NewAccountant(), rec)
	root.Trim()

	var live atomic.Pointer[Root[uint64]]
	live.Store(root)

	t.Run("zero background workers never start", func(t *testing.T) {
		a := NewAdjuster(&live, rec, 0, time.Millisecond, nil, testNoopSlog())
		a.Start()
		a.Stop() // must not panic or block
	})

	t.Run("start and stop are idempotent", func(t *testing.T) {
		a := NewAdjuster(&live, rec, 1, time.Millisecond, nil, testNoopSlog())
		a.Start()
		a.Start()
		a.Stop()
		a.Stop()
	})
}
