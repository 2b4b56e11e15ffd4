package engine

import (
	"math/rand"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/lindex/internal/epoch"
	"github.com/hupe1980/lindex/internal/mem"
)

func testRoot(t *testing.T, keys []uint64, cfg Config) *Root[uint64] {
	t.Helper()

	vals := make([]uint64, len(keys))
	for i, k := range keys {
		vals[i] = k * 10
	}
	return NewRoot(keys, vals, cfg, mem.NewAccountant(), epoch.NewReclaimer(cfg.WorkerN))
}

func sequentialKeys(n int, stride uint64) []uint64 {
	keys := make([]uint64, n)
	for i := range keys {
		keys[i] = uint64(i+1) * stride
	}
	return keys
}

func randomKeys(n int, seed int64) []uint64 {
	rng := rand.New(rand.NewSource(seed))
	seen := make(map[uint64]struct{}, n)
	keys := make([]uint64, 0, n)
	for len(keys) < n {
		k := rng.Uint64() >> 2
		if _, ok := seen[k]; ok || k == 0 {
			continue
		}
		seen[k] = struct{}{}
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

func TestRootBulkLoad(t *testing.T) {
	t.Run("empty load yields one empty group", func(t *testing.T) {
		r := testRoot(t, nil, testConfig())
		assert.Equal(t, 1, r.GroupCount())

		_, err := r.Get(42)
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("pivots partition the domain in order", func(t *testing.T) {
		r := testRoot(t, randomKeys(20_000, 1), testConfig())
		require.Greater(t, r.GroupCount(), 1)

		assert.Equal(t, uint64(0), r.pivots[0])
		for i := 1; i < len(r.pivots); i++ {
			assert.Less(t, r.pivots[i-1], r.pivots[i])
		}
	})

	t.Run("every loaded key resolves", func(t *testing.T) {
		keys := randomKeys(10_000, 2)
		r := testRoot(t, keys, testConfig())

		for _, k := range keys {
			v, err := r.Get(k)
			require.NoError(t, err)
			require.Equal(t, k*10, v)
		}
	})

	t.Run("parallel load matches single worker", func(t *testing.T) {
		keys := randomKeys(20_000, 3)

		cfg := testConfig()
		cfg.WorkerN = 4
		r := testRoot(t, keys, cfg)

		for _, k := range keys[:1000] {
			_, err := r.Get(k)
			require.NoError(t, err)
		}
	})
}

func TestRootLocate(t *testing.T) {
	keys := sequentialKeys(50_000, 7)
	r := testRoot(t, keys, testConfig())

	t.Run("exact pivots and interior keys", func(t *testing.T) {
		for i, p := range r.pivots {
			assert.Equal(t, i, r.locate(p))
			if i+1 < len(r.pivots) {
				assert.Equal(t, i, r.locate(r.pivots[i+1]-1))
			}
		}
	})

	t.Run("domain extremes", func(t *testing.T) {
		assert.Equal(t, 0, r.locate(0))
		assert.Equal(t, len(r.pivots)-1, r.locate(^uint64(0)))
	})
}

func TestRootScan(t *testing.T) {
	keys := sequentialKeys(10_000, 3)
	r := testRoot(t, keys, testConfig())

	t.Run("limit scan returns ascending prefix", func(t *testing.T) {
		pairs := r.Scan(30, 100)
		require.Len(t, pairs, 100)

		assert.Equal(t, uint64(30), pairs[0].Key)
		for i := 1; i < len(pairs); i++ {
			assert.Less(t, pairs[i-1].Key, pairs[i].Key)
		}
	})

	t.Run("range scan covers group boundaries", func(t *testing.T) {
		begin, end := uint64(1500), uint64(24_000)
		pairs := r.RangeScan(begin, end)

		want := 0
		for _, k := range keys {
			if k >= begin && k < end {
				want++
			}
		}
		require.Len(t, pairs, want)
		assert.GreaterOrEqual(t, pairs[0].Key, begin)
		assert.Less(t, pairs[len(pairs)-1].Key, end)
	})

	t.Run("empty range", func(t *testing.T) {
		assert.Empty(t, r.RangeScan(500, 500))
		assert.Empty(t, r.RangeScan(600, 500))
	})

	t.Run("scan sees buffered writes", func(t *testing.T) {
		require.NoError(t, r.Put(2, 20))
		require.NoError(t, r.Remove(3))

		pairs := r.RangeScan(1, 10)
		require.NotEmpty(t, pairs)
		assert.Equal(t, KV[uint64]{Key: 2, Value: 20}, pairs[0])
		for _, p := range pairs {
			assert.NotEqual(t, uint64(3), p.Key)
		}
	})
}

func TestRootCreateNewRoot(t *testing.T) {
	t.Run("split preserves contents and order", func(t *testing.T) {
		cfg := testConfig()
		cfg.MaxGroupSize = 64
		cfg.BufferSizeBound = 128
		cfg.BufferSizeTolerance = 16

		keys := sequentialKeys(64, 5)
		r := testRoot(t, keys, cfg)
		require.Equal(t, 1, r.GroupCount())

		// Push the single group past MaxGroupSize through its buffer.
		for k := uint64(1); k <= 200; k++ {
			require.NoError(t, r.Put(k*5+1, k))
		}
		require.True(t, r.ForceAdjustmentSync())

		nr := r.CreateNewRoot()
		nr.Trim()
		assert.Greater(t, nr.GroupCount(), 1)

		for i := 1; i < len(nr.pivots); i++ {
			assert.Less(t, nr.pivots[i-1], nr.pivots[i])
		}
		for _, k := range keys {
			v, err := nr.Get(k)
			require.NoError(t, err)
			assert.Equal(t, k*10, v)
		}
		for k := uint64(1); k <= 200; k++ {
			v, err := nr.Get(k*5 + 1)
			require.NoError(t, err)
			assert.Equal(t, k, v)
		}
	})

	t.Run("split respects error bound", func(t *testing.T) {
		cfg := testConfig()
		cfg.GroupErrorBound = 8
		cfg.GroupErrorTolerance = 2

		// Heavily skewed keys defeat a single linear fit.
		var keys []uint64
		for i := uint64(1); i <= 2000; i++ {
			keys = append(keys, i)
		}
		for i := uint64(1); i <= 2000; i++ {
			keys = append(keys, 1<<40+i*i)
		}

		r := testRoot(t, keys, cfg)
		for _, g := range r.groups {
			d := g.data.Load()
			if d.model == nil || len(d.keys) <= 2*cfg.MinGroupSize {
				continue
			}
			assert.LessOrEqual(t, d.model.MaxError(), cfg.GroupErrorBound)
		}
	})

	t.Run("undersized neighbors merge", func(t *testing.T) {
		cfg := testConfig()
		cfg.MinGroupSize = 64

		acct := mem.NewAccountant()
		rec := epoch.NewReclaimer(1)
		a := newGroup(0, []uint64{1, 2, 3}, []uint64{10, 20, 30}, cfg, acct, rec)
		b := newGroup(100, []uint64{100, 200}, []uint64{1000, 2000}, cfg, acct, rec)
		r := assembleRoot([]*Group[uint64]{a, b}, cfg, acct, rec)
		r.Trim()
		require.True(t, r.mergeCandidates())

		nr := r.CreateNewRoot()
		nr.Trim()
		assert.Equal(t, 1, nr.GroupCount())

		for _, k := range []uint64{1, 2, 3} {
			v, err := nr.Get(k)
			require.NoError(t, err)
			assert.Equal(t, k*10, v)
		}
		v, err := nr.Get(200)
		require.NoError(t, err)
		assert.Equal(t, uint64(2000), v)
	})
}

func TestRootStats(t *testing.T) {
	keys := sequentialKeys(5000, 2)
	r := testRoot(t, keys, testConfig())

	require.NoError(t, r.Put(1, 99))
	require.NoError(t, r.Put(3, 98))

	st := r.Stats()
	assert.Equal(t, r.GroupCount(), st.GroupCount)
	assert.Positive(t, st.SecondStageModels)
	assert.Equal(t, 2, st.BufferedEntries)
	assert.GreaterOrEqual(t, st.MaxGroupError, st.AvgGroupError)
}

func TestRootByteSize(t *testing.T) {
	r := testRoot(t, sequentialKeys(1000, 2), testConfig())

	size := r.ByteSize()
	assert.Positive(t, size.Allocated)
	assert.GreaterOrEqual(t, size.Allocated, size.Used)
}
