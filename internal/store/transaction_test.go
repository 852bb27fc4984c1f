package store

import (
	"testing"
	"time"
)

func TestTransactionListForRange(t *testing.T) {
	db := setupTestDB(t)
	ts := NewTransactionStore(db)
	h, u := createTestHousehold(t, db)

	base := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	for i, day := range []int{1, 5, 20} {
		occurred := base.AddDate(0, 0, day-10)
		if _, err := ts.Create(h.ID, &u.ID, int64(1000*(i+1)), "groceries", "Market", "", occurred); err != nil {
			t.Fatalf("create transaction: %v", err)
		}
	}

	from := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)
	txns, err := ts.ListForRange(h.ID, from, to)
	if err != nil {
		t.Fatalf("list for range: %v", err)
	}
	if len(txns) != 2 {
		t.Fatalf("expected 2 transactions in range, got %d", len(txns))
	}
	if !txns[0].OccurredAt.After(txns[1].OccurredAt) {
		t.Error("expected newest-first ordering")
	}
}

func TestTransactionListScopedToHousehold(t *testing.T) {
	db := setupTestDB(t)
	ts := NewTransactionStore(db)
	hs := NewHouseholdStore(db)
	h, u := createTestHousehold(t, db)

	other, err := hs.Create("Buckland", "USD")
	if err != nil {
		t.Fatalf("create household: %v", err)
	}

	now := time.Now().UTC()
	if _, err := ts.Create(h.ID, &u.ID, 500, "groceries", "", "", now.Add(-time.Hour)); err != nil {
		t.Fatalf("create transaction: %v", err)
	}
	if _, err := ts.Create(other.ID, nil, 900, "groceries", "", "", now.Add(-time.Hour)); err != nil {
		t.Fatalf("create other transaction: %v", err)
	}

	txns, err := ts.ListForRange(h.ID, now.AddDate(0, 0, -1), now)
	if err != nil {
		t.Fatalf("list for range: %v", err)
	}
	if len(txns) != 1 || txns[0].HouseholdID != h.ID {
		t.Errorf("expected only household %d transactions, got %+v", h.ID, txns)
	}
}

func TestSpentByCategoryExcludesIncome(t *testing.T) {
	db := setupTestDB(t)
	ts := NewTransactionStore(db)
	h, u := createTestHousehold(t, db)

	now := time.Now().UTC()
	occurred := now.Add(-time.Hour)
	if _, err := ts.Create(h.ID, &u.ID, 2000, "groceries", "", "", occurred); err != nil {
		t.Fatalf("create spend: %v", err)
	}
	if _, err := ts.Create(h.ID, &u.ID, 3500, "groceries", "", "", occurred); err != nil {
		t.Fatalf("create spend: %v", err)
	}
	if _, err := ts.Create(h.ID, &u.ID, -150000, "salary", "", "", occurred); err != nil {
		t.Fatalf("create income: %v", err)
	}
	if _, err := ts.Create(h.ID, &u.ID, 1200, "transport", "", "", occurred); err != nil {
		t.Fatalf("create spend: %v", err)
	}

	spent, err := ts.SpentByCategory(h.ID, now.AddDate(0, 0, -1), now)
	if err != nil {
		t.Fatalf("spent by category: %v", err)
	}
	if spent["groceries"] != 5500 {
		t.Errorf("groceries = %d, want 5500", spent["groceries"])
	}
	if spent["transport"] != 1200 {
		t.Errorf("transport = %d, want 1200", spent["transport"])
	}
	if _, ok := spent["salary"]; ok {
		t.Error("income category should not appear in spend")
	}
}

func TestTransactionUpdateAndDelete(t *testing.T) {
	db := setupTestDB(t)
	ts := NewTransactionStore(db)
	h, u := createTestHousehold(t, db)

	txn, err := ts.Create(h.ID, &u.ID, 1000, "groceries", "Market", "weekly shop", time.Now().UTC())
	if err != nil {
		t.Fatalf("create transaction: %v", err)
	}

	updated, err := ts.Update(txn.ID, 1500, "dining", "Cafe", "", txn.OccurredAt)
	if err != nil {
		t.Fatalf("update transaction: %v", err)
	}
	if updated.AmountCents != 1500 || updated.Category != "dining" {
		t.Errorf("updated = %+v, want amount 1500 category dining", updated)
	}

	if err := ts.Delete(txn.ID); err != nil {
		t.Fatalf("delete transaction: %v", err)
	}
	gone, err := ts.GetByID(txn.ID)
	if err != nil {
		t.Fatalf("get deleted: %v", err)
	}
	if gone != nil {
		t.Error("expected deleted transaction to be gone")
	}
}
