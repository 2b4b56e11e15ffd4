// Package model provides the learned models that route keys to approximate
// positions inside sorted key arrays.
//
// A fitted model replaces comparison-based tree traversal: Predict returns an
// approximate slot for a key, and the recorded MaxError bounds how far the
// true slot can be from the prediction, so a caller only searches a small
// window around it.
//
// Models are immutable once fitted. Retraining always produces a new
// instance, which is what allows lock-free readers to keep using a stale
// model while a replacement is being fitted.
package model
