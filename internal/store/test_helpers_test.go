package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/roach88/galley/internal/domain"
	"github.com/roach88/galley/internal/testutil"
)

// createTestStore opens a fresh database under t.TempDir().
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

// createCafeStore opens a store seeded with the shared cafe catalog.
func createCafeStore(t *testing.T) *Store {
	t.Helper()
	s := createTestStore(t)
	if err := s.ImportCatalog(context.Background(), testutil.CafeData()); err != nil {
		t.Fatalf("ImportCatalog() failed: %v", err)
	}
	return s
}

var testEpoch = time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

func createTestOrder(id string, position float64, status domain.Status) domain.Order {
	return domain.Order{
		ID:       id,
		TenantID: testutil.CafeA,
		Lines: []domain.OrderLine{{
			MenuItemID:  "latte",
			ModifierIDs: []string{"oat"},
			Quantity:    1,
			ItemName:    "Latte",
			Modifiers:   []domain.ModifierSnapshot{{ID: "oat", Name: "Oat milk"}},
		}},
		Status:    status,
		Position:  position,
		CreatedAt: testEpoch,
		Seq:       1,
	}
}
