// Package mem provides byte accounting for the index structures.
//
// The index uses arena-style bulk slices internally, so the number of bytes
// reserved from the runtime differs from the number of bytes logically in
// use. Both numbers are tracked and reported.
//
// The Accountant is injected into every structure constructor instead of
// living in a package-level variable, so multiple index instances can be
// accounted independently.
package mem
