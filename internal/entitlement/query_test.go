package entitlement

import (
	"testing"
	"time"
)

func testQueries(store Store, now time.Time) *Queries {
	q := NewQueries(store, Config{})
	q.now = func() time.Time { return now }
	return q
}

func TestGetAbsentRecordIsFree(t *testing.T) {
	q := testQueries(&memStore{}, baseTime)

	ent, err := q.Get(42)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if ent.Status != StatusFree {
		t.Errorf("status = %q, want %q", ent.Status, StatusFree)
	}
	if ent.TrialUsed {
		t.Error("fresh household must have trial available")
	}
	if ent.IsPro() {
		t.Error("fresh household must not be pro")
	}
}

func TestGetDerivesExpiredTrial(t *testing.T) {
	started := baseTime.Add(-10 * 24 * time.Hour)
	ended := started.Add(7 * 24 * time.Hour)
	store := &memStore{
		ent: &Entitlement{
			HouseholdID:    42,
			Status:         StatusTrialActive,
			TrialUsed:      true,
			TrialStartedAt: &started,
			TrialEndsAt:    &ended,
			UpdatedAt:      started,
		},
		version: started.UnixNano(),
	}
	q := testQueries(store, baseTime)

	ent, err := q.Get(42)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if ent.Status != StatusFree {
		t.Errorf("status = %q, want %q", ent.Status, StatusFree)
	}
	if !ent.TrialUsed {
		t.Error("trial_used must survive trial expiry")
	}
	// Read path never corrects the store.
	if store.ent.Status != StatusTrialActive {
		t.Errorf("stored status mutated to %q", store.ent.Status)
	}
}

func TestGetDerivesGraceWindow(t *testing.T) {
	renews := baseTime.Add(-24 * time.Hour)
	since := baseTime.Add(-60 * 24 * time.Hour)
	cancelled := baseTime.Add(-10 * 24 * time.Hour)
	store := &memStore{
		ent: &Entitlement{
			HouseholdID:    42,
			Status:         StatusProActive,
			TrialUsed:      true,
			ProSince:       &since,
			ProRenewsAt:    &renews,
			ProCancelledAt: &cancelled,
			UpdatedAt:      cancelled,
		},
		version: cancelled.UnixNano(),
	}
	q := testQueries(store, baseTime)

	ent, err := q.Get(42)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if ent.Status != StatusGrace {
		t.Errorf("status = %q, want %q", ent.Status, StatusGrace)
	}
	if !ent.IsPro() {
		t.Error("grace must still grant pro access")
	}
	if !ent.InGrace() {
		t.Error("expected in-grace projection")
	}
	want := renews.Add(3 * 24 * time.Hour)
	if ent.GraceEndsAt == nil || !ent.GraceEndsAt.Equal(want) {
		t.Errorf("grace_ends_at = %v, want %v", ent.GraceEndsAt, want)
	}
}

func TestGetDerivesFreePastGrace(t *testing.T) {
	renews := baseTime.Add(-10 * 24 * time.Hour)
	since := baseTime.Add(-60 * 24 * time.Hour)
	store := &memStore{
		ent: &Entitlement{
			HouseholdID: 42,
			Status:      StatusProActive,
			ProSince:    &since,
			ProRenewsAt: &renews,
			UpdatedAt:   since,
		},
		version: since.UnixNano(),
	}
	q := testQueries(store, baseTime)

	ent, err := q.Get(42)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if ent.Status != StatusFree {
		t.Errorf("status = %q, want %q", ent.Status, StatusFree)
	}
	if !ent.Expired() {
		t.Error("lapsed subscriber should report expired")
	}
	if ent.IsPro() {
		t.Error("past grace there is no pro access")
	}
}

func TestIsPro(t *testing.T) {
	renews := baseTime.Add(30 * 24 * time.Hour)
	store := &memStore{
		ent: &Entitlement{
			HouseholdID: 42,
			Status:      StatusProActive,
			ProRenewsAt: &renews,
			UpdatedAt:   baseTime,
		},
		version: baseTime.UnixNano(),
	}
	q := testQueries(store, baseTime)

	pro, err := q.IsPro(42)
	if err != nil {
		t.Fatalf("is pro: %v", err)
	}
	if !pro {
		t.Error("active subscription must be pro")
	}
}
