package store

import (
	"testing"
	"time"

	"hearthledger/internal/model"
)

func TestHabitCompleteDedupesPerDay(t *testing.T) {
	db := setupTestDB(t)
	hs := NewHabitStore(db)
	h, u := createTestHousehold(t, db)

	habit, err := hs.Create(h.ID, u.ID, "Log every expense", model.CadenceDaily)
	if err != nil {
		t.Fatalf("create habit: %v", err)
	}

	day := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	if err := hs.Complete(habit.ID, day); err != nil {
		t.Fatalf("complete: %v", err)
	}
	// Same day, later hour
	if err := hs.Complete(habit.ID, day.Add(8*time.Hour)); err != nil {
		t.Fatalf("complete again: %v", err)
	}

	days, err := hs.Completions(habit.ID, day.AddDate(0, 0, -7))
	if err != nil {
		t.Fatalf("completions: %v", err)
	}
	if len(days) != 1 {
		t.Fatalf("expected 1 completion day, got %d", len(days))
	}
}

func TestHabitCompletionsNewestFirst(t *testing.T) {
	db := setupTestDB(t)
	hs := NewHabitStore(db)
	h, u := createTestHousehold(t, db)

	habit, err := hs.Create(h.ID, u.ID, "Review budget", model.CadenceWeekly)
	if err != nil {
		t.Fatalf("create habit: %v", err)
	}

	base := time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC)
	for _, offset := range []int{-2, 0, -1} {
		if err := hs.Complete(habit.ID, base.AddDate(0, 0, offset)); err != nil {
			t.Fatalf("complete: %v", err)
		}
	}

	days, err := hs.Completions(habit.ID, base.AddDate(0, 0, -7))
	if err != nil {
		t.Fatalf("completions: %v", err)
	}
	if len(days) != 3 {
		t.Fatalf("expected 3 completions, got %d", len(days))
	}
	for i := 1; i < len(days); i++ {
		if days[i].After(days[i-1]) {
			t.Fatalf("completions out of order: %v", days)
		}
	}
}

func TestHabitDeleteCascadesCompletions(t *testing.T) {
	db := setupTestDB(t)
	hs := NewHabitStore(db)
	h, u := createTestHousehold(t, db)

	habit, err := hs.Create(h.ID, u.ID, "Log every expense", model.CadenceDaily)
	if err != nil {
		t.Fatalf("create habit: %v", err)
	}
	if err := hs.Complete(habit.ID, time.Now().UTC()); err != nil {
		t.Fatalf("complete: %v", err)
	}

	if err := hs.Delete(habit.ID); err != nil {
		t.Fatalf("delete habit: %v", err)
	}

	var count int
	if err := db.QueryRow(`SELECT COUNT(*) FROM habit_completions WHERE habit_id = ?`, habit.ID).Scan(&count); err != nil {
		t.Fatalf("count completions: %v", err)
	}
	if count != 0 {
		t.Errorf("expected completions to cascade on delete, found %d", count)
	}
}
