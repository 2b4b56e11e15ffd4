package model

import (
	"math"
)

// Linear is a least-squares linear model mapping a key to an approximate
// slot in a sorted key array. It records its worst-case and mean absolute
// prediction error over the fitted keys.
type Linear struct {
	slope     float64
	intercept float64
	n         int
	maxErr    int
	meanErr   float64
}

// FitLinear fits a linear model over the given ascending keys, where key i
// lives at slot i. It returns nil for an empty key set.
func FitLinear(keys []uint64) *Linear {
	n := len(keys)
	if n == 0 {
		return nil
	}

	m := &Linear{n: n}
	if n == 1 {
		// Degenerate fit: always predict slot 0.
		m.slope = 0
		m.intercept = 0
		return m
	}

	// Least squares over (key, slot). Keys are shifted by their first value
	// to keep the sums well conditioned for large uint64 domains.
	base := float64(keys[0])
	var sumX, sumY, sumXY, sumXX float64
	for i, k := range keys {
		x := float64(k) - base
		y := float64(i)
		sumX += x
		sumY += y
		sumXY += x * y
		sumXX += x * x
	}

	fn := float64(n)
	denom := fn*sumXX - sumX*sumX
	if denom == 0 {
		// All keys identical after shifting; fall back to the midpoint.
		m.slope = 0
		m.intercept = sumY / fn
	} else {
		m.slope = (fn*sumXY - sumX*sumY) / denom
		m.intercept = (sumY - m.slope*sumX) / fn
	}
	m.intercept -= m.slope * base

	var total float64
	for i, k := range keys {
		err := m.Predict(k) - i
		if err < 0 {
			err = -err
		}
		if err > m.maxErr {
			m.maxErr = err
		}
		total += float64(err)
	}
	m.meanErr = total / fn

	return m
}

// Predict returns the approximate slot for key, clamped to [0, n).
func (m *Linear) Predict(key uint64) int {
	pos := m.slope*float64(key) + m.intercept
	if math.IsNaN(pos) || pos < 0 {
		return 0
	}
	p := int(pos)
	if p >= m.n {
		return m.n - 1
	}
	return p
}

// MaxError returns the worst-case absolute prediction error observed during
// fitting. The true slot of any fitted key lies within MaxError of the
// prediction.
func (m *Linear) MaxError() int {
	return m.maxErr
}

// MeanError returns the mean absolute prediction error over the fitted keys.
// It is the fitness metric driving group retraining and split decisions.
func (m *Linear) MeanError() float64 {
	return m.meanErr
}

// Len returns the number of keys the model was fitted over.
func (m *Linear) Len() int {
	return m.n
}
