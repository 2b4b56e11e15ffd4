package model

// RMI is a two-stage recursive model index over group pivot keys. The first
// stage dispatches a key to one of the second-stage models, each of which
// predicts a group index for its share of the pivot space.
//
// Like Linear, an RMI is immutable after fitting and records the worst-case
// prediction error across all second-stage models.
type RMI struct {
	stage1 *Linear
	stage2 []*Linear
	// offsets[i] is the global slot of the first pivot assigned to
	// second-stage model i.
	offsets []int
	n       int
	maxErr  int
}

// FitRMI fits a two-stage model over the ascending pivot keys with
// stage2N second-stage models. stage2N is clamped to [1, len(keys)].
// It returns nil for an empty pivot set.
func FitRMI(keys []uint64, stage2N int) *RMI {
	n := len(keys)
	if n == 0 {
		return nil
	}
	if stage2N < 1 {
		stage2N = 1
	}
	if stage2N > n {
		stage2N = n
	}

	r := &RMI{
		stage2:  make([]*Linear, 0, stage2N),
		offsets: make([]int, 0, stage2N),
		n:       n,
	}

	// The first stage is fitted over all pivots, its prediction scaled to a
	// bucket index. Second-stage buckets take contiguous pivot ranges so
	// the per-bucket models stay monotone in key order.
	r.stage1 = FitLinear(keys)

	per := (n + stage2N - 1) / stage2N
	for start := 0; start < n; start += per {
		end := min(start+per, n)
		sub := FitLinear(keys[start:end])
		r.stage2 = append(r.stage2, sub)
		r.offsets = append(r.offsets, start)

		if sub.MaxError() > r.maxErr {
			r.maxErr = sub.MaxError()
		}
	}

	return r
}

// Predict returns the approximate global slot of the pivot governing key.
func (r *RMI) Predict(key uint64) int {
	bucket := 0
	if len(r.stage2) > 1 {
		// Scale the stage-1 slot prediction into bucket space.
		pred := r.stage1.Predict(key)
		bucket = pred * len(r.stage2) / r.n
		if bucket >= len(r.stage2) {
			bucket = len(r.stage2) - 1
		}
	}
	return r.offsets[bucket] + r.stage2[bucket].Predict(key)
}

// MaxError returns the worst-case absolute prediction error across all
// second-stage models.
//
// Stage-1 dispatch can additionally land a key one bucket off; callers must
// treat MaxError as the width of the per-bucket window and still verify the
// located pivot, which the bounded pivot search in the root does.
func (r *RMI) MaxError() int {
	return r.maxErr
}

// SecondStageModels returns the number of second-stage models.
func (r *RMI) SecondStageModels() int {
	return len(r.stage2)
}

// Len returns the number of pivots the model was fitted over.
func (r *RMI) Len() int {
	return r.n
}
