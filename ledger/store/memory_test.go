package store_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/warp/pto-ledger/ledger"
	"github.com/warp/pto-ledger/ledger/store"
)

func seedAuditEntries(t *testing.T, m *store.Memory, n int) {
	t.Helper()
	ctx := context.Background()
	id := ledger.EmployeeID("emp-1")
	base := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	for i := 0; i < n; i++ {
		err := m.AppendAudit(ctx, ledger.AuditEntry{
			ID:         fmt.Sprintf("entry-%d", i),
			Timestamp:  base.Add(time.Duration(i) * time.Minute),
			EmployeeID: &id,
			Action:     ledger.ActionAdjustment,
			Category:   ledger.CategoryAdjustment,
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
}

func TestEntries_PaginationBounds(t *testing.T) {
	m := store.NewMemory()
	ctx := context.Background()
	seedAuditEntries(t, m, 3)

	// A negative offset reads from the start instead of panicking.
	entries, err := m.Entries(ctx, ledger.AuditQuery{Offset: -5})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(entries) != 3 {
		t.Errorf("expected all 3 entries for negative offset, got %d", len(entries))
	}

	// An offset past the end yields an empty page.
	entries, err = m.Entries(ctx, ledger.AuditQuery{Offset: 10})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("expected empty page past the end, got %d entries", len(entries))
	}

	// Offset plus limit walk newest-first.
	entries, err = m.Entries(ctx, ledger.AuditQuery{Offset: 1, Limit: 1})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	if entries[0].ID != "entry-1" {
		t.Errorf("expected entry-1 at offset 1 newest-first, got %s", entries[0].ID)
	}
}
