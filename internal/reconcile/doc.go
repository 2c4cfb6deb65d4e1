// Package reconcile implements the record-to-batch stages of a sync run.
//
// The stages are pure functions over ir values:
//
//	DetectConflicts -> Deduplicate -> Group -> Split -> Materialize
//
// None of them touch the store, the network or a clock. The pipeline
// package persists each stage's output and feeds the next stage from the
// persisted table.
//
// Equality is always fingerprint equality (see ir.Fingerprint): two
// attribute sets are equal iff they map the same cleaned keys to the same
// cleaned values. Empty values count.
package reconcile
