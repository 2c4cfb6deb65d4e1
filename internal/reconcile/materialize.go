package reconcile

import (
	"fmt"

	"github.com/roach88/attrsync/internal/ir"
)

// Criterion constants of the asset filter.
const (
	filterField    = "id"
	filterOperator = "IN"
)

// Materialize renders the request body for one batch.
//
// The filter selects exactly the batch's ids, joined by commas. The update
// section is keyed by fn and carries the non-empty attributes in contract
// order; an empty value means "nothing to set" and is left out. The result
// depends only on its arguments.
func Materialize(batch ir.Batch, fn ir.APIFunction) (ir.Payload, error) {
	if !fn.Valid() {
		return ir.Payload{}, fmt.Errorf("materialize group %d batch %d: invalid api function %q",
			batch.GroupNumber, batch.BatchNumber, fn)
	}

	return ir.Payload{ServiceRequest: ir.ServiceRequest{
		Filters: ir.Filters{Criteria: []ir.Criterion{{
			Field:    filterField,
			Operator: filterOperator,
			Value:    batch.JoinedIDs(),
		}}},
		Data: ir.PayloadData{Asset: ir.PayloadAsset{
			CustomAttributes: map[ir.APIFunction]ir.CustomAttributeSet{
				fn: {CustomAttribute: batch.Attributes.Clean().NonEmpty()},
			},
		}},
	}}, nil
}

// MaterializeRecord renders the single-asset payload for one record. These
// per-asset candidates are kept for audit before grouping.
func MaterializeRecord(rec ir.AssetRecord, fn ir.APIFunction) (ir.Payload, error) {
	return Materialize(ir.Batch{
		AssetIDs:    []string{rec.AssetID},
		Fingerprint: rec.Fingerprint(),
		Attributes:  rec.Attributes,
	}, fn)
}
