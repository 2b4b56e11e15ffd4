package engine

import (
	"fmt"
)

// KV is an ordered key-value pair returned by scans.
type KV[V any] struct {
	Key   uint64
	Value V
}

// Config holds the structure tunables. Every field must be strictly
// positive; Validate rejects anything else at construction time.
type Config struct {
	// RootErrorBound is the maximum tolerated prediction error of the root
	// routing model over group pivots.
	RootErrorBound int

	// RootMemoryConstraint caps, in bytes, the memory spent on second-stage
	// routing models.
	RootMemoryConstraint int

	// GroupErrorBound is the maximum tolerated worst-case prediction error
	// of a group model over its sorted array. A fit exceeding it triggers a
	// finer partition (a split).
	GroupErrorBound int

	// GroupErrorTolerance is the mean-error threshold above which a group
	// becomes a split candidate after compaction.
	GroupErrorTolerance float64

	// BufferSizeBound is the nominal capacity of a group write buffer.
	BufferSizeBound int

	// BufferSizeTolerance is the slack beyond BufferSizeBound before a put
	// signals need-for-compaction.
	BufferSizeTolerance int

	// BufferCompactThreshold controls how aggressively a background round
	// compacts a non-full buffer: buffers holding at least
	// BufferSizeBound/BufferCompactThreshold entries are compacted
	// opportunistically. A tunable, not a correctness parameter.
	BufferCompactThreshold int

	// WorkerN is the number of foreground workers tracked for epoch
	// reclamation. Operation worker ids must lie in [0, WorkerN).
	WorkerN int

	// MaxGroupSize is the array size beyond which a group becomes a split
	// candidate regardless of model error. Defaulted when zero.
	MaxGroupSize int

	// MinGroupSize is the array size below which a group is considered for
	// merging with a neighbor. Defaulted when zero.
	MinGroupSize int
}

const (
	defaultMaxGroupSize = 64 * 1024
	defaultMinGroupSize = 64

	// initGroupSize is the partition chunk size used during bulk load
	// before error-driven bisection.
	initGroupSize = 4096

	// rmiModelBytes is the rough per-model footprint used to derive the
	// second-stage model count from RootMemoryConstraint.
	rmiModelBytes = 64
)

// Validate reports the first invalid tunable, or nil.
func (c *Config) Validate() error {
	checks := []struct {
		name string
		ok   bool
	}{
		{"root error bound", c.RootErrorBound > 0},
		{"root memory constraint", c.RootMemoryConstraint > 0},
		{"group error bound", c.GroupErrorBound > 0},
		{"group error tolerance", c.GroupErrorTolerance > 0},
		{"buffer size bound", c.BufferSizeBound > 0},
		{"buffer size tolerance", c.BufferSizeTolerance > 0},
		{"buffer compact threshold", c.BufferCompactThreshold > 0},
		{"worker count", c.WorkerN > 0},
	}
	for _, ck := range checks {
		if !ck.ok {
			return fmt.Errorf("%s must be strictly positive", ck.name)
		}
	}
	return nil
}

// withDefaults returns a copy with optional fields defaulted.
func (c Config) withDefaults() Config {
	if c.MaxGroupSize <= 0 {
		c.MaxGroupSize = defaultMaxGroupSize
	}
	if c.MinGroupSize <= 0 {
		c.MinGroupSize = defaultMinGroupSize
	}
	return c
}

// Stats is a point-in-time summary of the live root.
type Stats struct {
	// GroupCount is the number of groups under the live root.
	GroupCount int

	// SecondStageModels is the second-stage model count of the routing RMI.
	SecondStageModels int

	// AvgGroupError and MaxGroupError aggregate the groups' mean prediction
	// errors; they drive (and explain) reorganization decisions.
	AvgGroupError float64
	MaxGroupError float64

	// BufferedEntries is the total number of entries currently absorbed by
	// group buffers and not yet merged into sorted arrays.
	BufferedEntries int
}
