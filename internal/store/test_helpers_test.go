package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/roach88/swimport/internal/ir"
)

var testEpoch = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

// createTestStore creates a new temp-dir store for testing.
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

// createTestRecord creates a record with minimal required fields.
// The request hash is derived from id so records never deduplicate.
func createTestRecord(id, kind string, requested int) ir.Microtransaction {
	return ir.Microtransaction{
		ID:             id,
		Owner:          "test-owner",
		Kind:           kind,
		RequestHash:    "hash-" + id,
		RequestPayload: ir.Object{kind: ir.Object{"name": ir.String(id)}},
		Progress:       ir.Progress{Requested: requested},
		CreatedAt:      testEpoch,
	}
}

// createTestEntity creates an entity keyed by a single name component.
func createTestEntity(kind, name string) ir.Entity {
	key := ir.Object{"name": ir.String(name)}
	return ir.Entity{
		Kind:       kind,
		KeyHash:    ir.MustKeyHash(kind, key),
		NaturalKey: key,
		Attributes: ir.Object{},
	}
}
