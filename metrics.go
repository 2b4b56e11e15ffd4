package lindex

import (
	"sync/atomic"
	"time"
)

// MetricsCollector defines an interface for collecting operational metrics.
// Implement this interface to integrate with monitoring systems, or use the
// bundled PrometheusMetricsCollector.
type MetricsCollector interface {
	// RecordGet is called after each point lookup.
	// duration is the total time taken; found reports a positive lookup.
	RecordGet(duration time.Duration, found bool)

	// RecordPut is called after each insert/overwrite. retries is the
	// number of internal re-routes caused by concurrent structural changes.
	RecordPut(duration time.Duration, retries int)

	// RecordRemove is called after each delete.
	RecordRemove(duration time.Duration, found bool)

	// RecordScan is called after each scan or range scan with the number
	// of returned pairs.
	RecordScan(results int, duration time.Duration)

	// RecordAdjustment is called after each forced or background
	// adjustment round; structural reports whether the root was rebuilt.
	RecordAdjustment(duration time.Duration, structural bool)
}

// NoopMetricsCollector is a no-op implementation of MetricsCollector.
// Use this when metrics collection is not needed.
type NoopMetricsCollector struct{}

func (NoopMetricsCollector) RecordGet(time.Duration, bool)        {}
func (NoopMetricsCollector) RecordPut(time.Duration, int)         {}
func (NoopMetricsCollector) RecordRemove(time.Duration, bool)     {}
func (NoopMetricsCollector) RecordScan(int, time.Duration)        {}
func (NoopMetricsCollector) RecordAdjustment(time.Duration, bool) {}

// BasicMetricsCollector provides simple in-memory metrics collection.
// Useful for debugging and basic monitoring without external dependencies.
type BasicMetricsCollector struct {
	GetCount        atomic.Int64
	GetMisses       atomic.Int64
	GetTotalNanos   atomic.Int64
	PutCount        atomic.Int64
	PutRetries      atomic.Int64
	PutTotalNanos   atomic.Int64
	RemoveCount     atomic.Int64
	RemoveMisses    atomic.Int64
	ScanCount       atomic.Int64
	ScanResults     atomic.Int64
	AdjustmentCount atomic.Int64
	RootRebuilds    atomic.Int64
}

// RecordGet implements MetricsCollector.
func (b *BasicMetricsCollector) RecordGet(duration time.Duration, found bool) {
	b.GetCount.Add(1)
	b.GetTotalNanos.Add(duration.Nanoseconds())
	if !found {
		b.GetMisses.Add(1)
	}
}

// RecordPut implements MetricsCollector.
func (b *BasicMetricsCollector) RecordPut(duration time.Duration, retries int) {
	b.PutCount.Add(1)
	b.PutRetries.Add(int64(retries))
	b.PutTotalNanos.Add(duration.Nanoseconds())
}

// RecordRemove implements MetricsCollector.
func (b *BasicMetricsCollector) RecordRemove(duration time.Duration, found bool) {
	b.RemoveCount.Add(1)
	if !found {
		b.RemoveMisses.Add(1)
	}
}

// RecordScan implements MetricsCollector.
func (b *BasicMetricsCollector) RecordScan(results int, duration time.Duration) {
	b.ScanCount.Add(1)
	b.ScanResults.Add(int64(results))
}

// RecordAdjustment implements MetricsCollector.
func (b *BasicMetricsCollector) RecordAdjustment(duration time.Duration, structural bool) {
	b.AdjustmentCount.Add(1)
	if structural {
		b.RootRebuilds.Add(1)
	}
}

// GetStats returns a snapshot of current metrics.
func (b *BasicMetricsCollector) GetStats() BasicMetricsStats {
	return BasicMetricsStats{
		GetCount:        b.GetCount.Load(),
		GetMisses:       b.GetMisses.Load(),
		GetAvgNanos:     avg(b.GetTotalNanos.Load(), b.GetCount.Load()),
		PutCount:        b.PutCount.Load(),
		PutRetries:      b.PutRetries.Load(),
		PutAvgNanos:     avg(b.PutTotalNanos.Load(), b.PutCount.Load()),
		RemoveCount:     b.RemoveCount.Load(),
		RemoveMisses:    b.RemoveMisses.Load(),
		ScanCount:       b.ScanCount.Load(),
		ScanResults:     b.ScanResults.Load(),
		AdjustmentCount: b.AdjustmentCount.Load(),
		RootRebuilds:    b.RootRebuilds.Load(),
	}
}

func avg(total, count int64) int64 {
	if count == 0 {
		return 0
	}
	return total / count
}

// BasicMetricsStats is a snapshot of BasicMetricsCollector state.
type BasicMetricsStats struct {
	GetCount        int64
	GetMisses       int64
	GetAvgNanos     int64
	PutCount        int64
	PutRetries      int64
	PutAvgNanos     int64
	RemoveCount     int64
	RemoveMisses    int64
	ScanCount       int64
	ScanResults     int64
	AdjustmentCount int64
	RootRebuilds    int64
}
