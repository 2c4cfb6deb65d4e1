package reconcile

import (
	"github.com/roach88/attrsync/internal/ir"
)

// Group partitions records into equivalence groups by fingerprint.
//
// Groups are numbered from 1 in the order their fingerprint is first seen.
// Each group lists its ids in first-seen order, each id once even when it
// repeats with the same fingerprint. A group's attributes are the cleaned
// attributes of its first record.
func Group(records []ir.AssetRecord) []ir.Group {
	var groups []ir.Group
	index := make(map[ir.Fingerprint]int)
	members := make(map[ir.Fingerprint]map[string]struct{})

	for _, rec := range records {
		fp := rec.Fingerprint()
		i, ok := index[fp]
		if !ok {
			i = len(groups)
			index[fp] = i
			members[fp] = make(map[string]struct{})
			groups = append(groups, ir.Group{
				Number:      i + 1,
				Fingerprint: fp,
				Attributes:  rec.Attributes.Clean(),
				AssetIDs:    []string{},
			})
		}

		id := ir.CleanField(rec.AssetID)
		if _, dup := members[fp][id]; dup {
			continue
		}
		members[fp][id] = struct{}{}
		groups[i].AssetIDs = append(groups[i].AssetIDs, id)
	}

	return groups
}
