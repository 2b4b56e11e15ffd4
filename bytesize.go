package lindex

import "github.com/hupe1980/lindex/internal/mem"

// ByteSize reports memory footprint in two dimensions: Allocated counts the
// full capacity of owned allocations, Used counts the bytes actually holding
// live data. The gap between them is slack available to future growth.
type ByteSize = mem.ByteSize
