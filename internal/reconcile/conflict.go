package reconcile

import (
	"github.com/roach88/attrsync/internal/ir"
)

// DetectConflicts returns the asset ids that occur with more than one
// distinct fingerprint. Repeats of an id with the same fingerprint are not
// conflicts. Empty input yields an empty set.
func DetectConflicts(records []ir.AssetRecord) *ir.ConflictSet {
	seen := make(map[string]map[ir.Fingerprint]struct{}, len(records))
	for _, rec := range records {
		id := ir.CleanField(rec.AssetID)
		fps, ok := seen[id]
		if !ok {
			fps = make(map[ir.Fingerprint]struct{}, 1)
			seen[id] = fps
		}
		fps[rec.Fingerprint()] = struct{}{}
	}

	conflicts := ir.NewConflictSet()
	for id, fps := range seen {
		if len(fps) > 1 {
			conflicts.Add(id, len(fps))
		}
	}
	return conflicts
}

// Deduplicate splits records into the clean records, whose id is not in
// conflicts, and the dropped records of conflicting ids. Both keep input
// order. Conflicting ids are dropped entirely; no attempt is made to pick
// one of their attribute sets.
func Deduplicate(records []ir.AssetRecord, conflicts *ir.ConflictSet) (clean, dropped []ir.AssetRecord) {
	clean = make([]ir.AssetRecord, 0, len(records))
	for _, rec := range records {
		if conflicts.Contains(ir.CleanField(rec.AssetID)) {
			dropped = append(dropped, rec)
			continue
		}
		clean = append(clean, rec)
	}
	return clean, dropped
}
