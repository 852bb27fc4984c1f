package store

import (
	"testing"
	"time"
)

func TestBudgetSetUpserts(t *testing.T) {
	db := setupTestDB(t)
	bs := NewBudgetStore(db)
	h, _ := createTestHousehold(t, db)

	b, err := bs.Set(h.ID, "groceries", 50000)
	if err != nil {
		t.Fatalf("set budget: %v", err)
	}
	if b.LimitCents != 50000 {
		t.Errorf("limit = %d, want 50000", b.LimitCents)
	}

	b2, err := bs.Set(h.ID, "groceries", 60000)
	if err != nil {
		t.Fatalf("re-set budget: %v", err)
	}
	if b2.ID != b.ID {
		t.Errorf("upsert created a new row: %d != %d", b2.ID, b.ID)
	}
	if b2.LimitCents != 60000 {
		t.Errorf("limit = %d, want 60000", b2.LimitCents)
	}

	list, err := bs.List(h.ID)
	if err != nil {
		t.Fatalf("list budgets: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("expected 1 budget, got %d", len(list))
	}
}

func TestBudgetProgressScopedToMonth(t *testing.T) {
	db := setupTestDB(t)
	bs := NewBudgetStore(db)
	ts := NewTransactionStore(db)
	h, u := createTestHousehold(t, db)

	if _, err := bs.Set(h.ID, "groceries", 50000); err != nil {
		t.Fatalf("set budget: %v", err)
	}

	ref := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	inMonth := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	lastMonth := time.Date(2026, 2, 27, 10, 0, 0, 0, time.UTC)

	if _, err := ts.Create(h.ID, &u.ID, 12000, "groceries", "", "", inMonth); err != nil {
		t.Fatalf("create transaction: %v", err)
	}
	if _, err := ts.Create(h.ID, &u.ID, 9000, "groceries", "", "", lastMonth); err != nil {
		t.Fatalf("create transaction: %v", err)
	}

	progress, err := bs.ListProgress(h.ID, ref)
	if err != nil {
		t.Fatalf("list progress: %v", err)
	}
	if len(progress) != 1 {
		t.Fatalf("expected 1 budget, got %d", len(progress))
	}
	if progress[0].SpentCents != 12000 {
		t.Errorf("spent = %d, want 12000 (current month only)", progress[0].SpentCents)
	}
	if progress[0].OverLimit() {
		t.Error("budget should not be over limit")
	}
}

func TestBudgetDelete(t *testing.T) {
	db := setupTestDB(t)
	bs := NewBudgetStore(db)
	h, _ := createTestHousehold(t, db)

	if _, err := bs.Set(h.ID, "groceries", 50000); err != nil {
		t.Fatalf("set budget: %v", err)
	}
	if err := bs.Delete(h.ID, "groceries"); err != nil {
		t.Fatalf("delete budget: %v", err)
	}

	b, err := bs.Get(h.ID, "groceries")
	if err != nil {
		t.Fatalf("get deleted budget: %v", err)
	}
	if b != nil {
		t.Error("expected deleted budget to be gone")
	}
}
