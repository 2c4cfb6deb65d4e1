package ir

import (
	"maps"
	"slices"
)

// ConflictSet holds the asset ids seen with more than one distinct
// fingerprint, with the number of distinct fingerprints for each.
// It is read-only once the detector returns it. A nil *ConflictSet is an
// empty set.
type ConflictSet struct {
	counts map[string]int
}

// NewConflictSet returns an empty set.
func NewConflictSet() *ConflictSet {
	return &ConflictSet{counts: make(map[string]int)}
}

// Add records id with the number of distinct fingerprints it carried.
func (s *ConflictSet) Add(id string, fingerprints int) {
	s.counts[id] = fingerprints
}

// Contains reports whether id is a conflicting asset id.
func (s *ConflictSet) Contains(id string) bool {
	if s == nil {
		return false
	}
	_, ok := s.counts[id]
	return ok
}

// FingerprintCount returns how many distinct fingerprints id carried,
// or 0 when id is not in the set.
func (s *ConflictSet) FingerprintCount(id string) int {
	if s == nil {
		return 0
	}
	return s.counts[id]
}

// Len returns the number of conflicting ids.
func (s *ConflictSet) Len() int {
	if s == nil {
		return 0
	}
	return len(s.counts)
}

// IDs returns the conflicting ids in sorted order.
func (s *ConflictSet) IDs() []string {
	if s == nil {
		return nil
	}
	return slices.Sorted(maps.Keys(s.counts))
}
