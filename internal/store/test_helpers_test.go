package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/roach88/attrsync/internal/ir"
)

// createTestStore creates a new store in a temporary directory.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// recreateTables recreates the given tables or fails the test.
func recreateTables(t *testing.T, s *Store, tables ...Table) {
	t.Helper()
	for _, table := range tables {
		if err := s.Recreate(context.Background(), table); err != nil {
			t.Fatalf("Recreate(%s) failed: %v", table, err)
		}
	}
}

// createTestRecord creates an asset record with Business and SLA attributes.
func createTestRecord(id, business, sla string) ir.AssetRecord {
	return ir.AssetRecord{
		AssetID: id,
		Attributes: ir.Attributes{
			{Key: "Business", Value: business},
			{Key: "SLA", Value: sla},
		},
	}
}

// createTestBatch creates a batch carrying the attributes of createTestRecord.
func createTestBatch(group, batch int, ids ...string) ir.Batch {
	attrs := createTestRecord("", "X", "Gold").Attributes
	return ir.Batch{
		GroupNumber: group,
		BatchNumber: batch,
		AssetIDs:    ids,
		Fingerprint: attrs.Fingerprint(),
		Attributes:  attrs,
	}
}
