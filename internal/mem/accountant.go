package mem

import (
	"sync/atomic"
)

// ByteSize reports allocated versus logically used bytes.
//
// Allocated covers the full capacity of backing slices; Used covers only the
// portion holding live entries. Arena-style allocation makes these differ,
// and both are reported rather than just one.
type ByteSize struct {
	Allocated uint64
	Used      uint64
}

// Add accumulates rhs into b and returns the sum.
func (b ByteSize) Add(rhs ByteSize) ByteSize {
	return ByteSize{
		Allocated: b.Allocated + rhs.Allocated,
		Used:      b.Used + rhs.Used,
	}
}

// Accountant tracks bytes grabbed and released by a single index instance.
//
// Grab and Release must balance over the lifetime of the instance; a nonzero
// balance at teardown indicates a reclamation bug and is surfaced by the
// facade at Close.
type Accountant struct {
	grabbed  atomic.Uint64
	released atomic.Uint64
}

// NewAccountant creates an Accountant with a zero balance.
func NewAccountant() *Accountant {
	return &Accountant{}
}

// Grab records n bytes as allocated.
func (a *Accountant) Grab(n uint64) {
	if a == nil || n == 0 {
		return
	}
	a.grabbed.Add(n)
}

// Release records n bytes as freed.
func (a *Accountant) Release(n uint64) {
	if a == nil || n == 0 {
		return
	}
	a.released.Add(n)
}

// Balance returns grabbed minus released bytes.
//
// A negative balance (more released than grabbed) is reported as grabbed and
// released totals via Totals; Balance saturates at zero in that case so
// callers can distinguish "leak" from "double free" with Totals.
func (a *Accountant) Balance() uint64 {
	g := a.grabbed.Load()
	r := a.released.Load()
	if r >= g {
		return 0
	}
	return g - r
}

// Totals returns the cumulative grabbed and released byte counts.
func (a *Accountant) Totals() (grabbed, released uint64) {
	return a.grabbed.Load(), a.released.Load()
}

// Leaked reports whether the accountant holds an unbalanced byte count.
// overRelease is true when more bytes were released than grabbed.
func (a *Accountant) Leaked() (leaked uint64, overRelease bool) {
	g := a.grabbed.Load()
	r := a.released.Load()
	if r > g {
		return r - g, true
	}
	return g - r, false
}
