package reconcile

import (
	"errors"
	"fmt"

	"github.com/roach88/attrsync/internal/ir"
)

// DefaultMaxBatchSize is the number of asset ids per remote call.
const DefaultMaxBatchSize = 100

// ErrInvalidBatchSize is returned for a non-positive batch size.
var ErrInvalidBatchSize = errors.New("max batch size must be positive")

// Split cuts a group's ids into batches of at most maxBatchSize ids.
//
// Batch numbers start at 1 within the group. Every batch but the last holds
// exactly maxBatchSize ids, and concatenating the batches in order gives
// back the group's ids. A group without ids yields one empty batch so that
// every group keeps an audit row.
func Split(group ir.Group, maxBatchSize int) ([]ir.Batch, error) {
	if maxBatchSize <= 0 {
		return nil, fmt.Errorf("split group %d: %w (got %d)", group.Number, ErrInvalidBatchSize, maxBatchSize)
	}

	newBatch := func(number int, ids []string) ir.Batch {
		return ir.Batch{
			GroupNumber: group.Number,
			BatchNumber: number,
			AssetIDs:    ids,
			Fingerprint: group.Fingerprint,
			Attributes:  group.Attributes,
		}
	}

	if len(group.AssetIDs) == 0 {
		return []ir.Batch{newBatch(1, []string{})}, nil
	}

	batches := make([]ir.Batch, 0, (len(group.AssetIDs)+maxBatchSize-1)/maxBatchSize)
	for start := 0; start < len(group.AssetIDs); start += maxBatchSize {
		end := min(start+maxBatchSize, len(group.AssetIDs))
		ids := make([]string, end-start)
		copy(ids, group.AssetIDs[start:end])
		batches = append(batches, newBatch(len(batches)+1, ids))
	}
	return batches, nil
}

// SplitAll splits every group, keeping group order.
func SplitAll(groups []ir.Group, maxBatchSize int) ([]ir.Batch, error) {
	var batches []ir.Batch
	for _, g := range groups {
		bs, err := Split(g, maxBatchSize)
		if err != nil {
			return nil, err
		}
		batches = append(batches, bs...)
	}
	return batches, nil
}
