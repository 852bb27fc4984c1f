package entitlement

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"
)

// memStore is an in-memory Store with compare-and-set semantics, used to
// exercise the engine without a database.
type memStore struct {
	mu      sync.Mutex
	ent     *Entitlement
	version int64
	fail    error // when set, Get and PutIfVersion return it
}

func (m *memStore) Get(householdID int64) (*Entitlement, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return nil, 0, m.fail
	}
	if m.ent == nil {
		return nil, 0, nil
	}
	ent := *m.ent
	return &ent, m.version, nil
}

func (m *memStore) PutIfVersion(ent *Entitlement, expected int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return m.fail
	}
	if m.version != expected {
		return ErrVersionConflict
	}
	next := *ent
	m.ent = &next
	m.version = ent.UpdatedAt.UnixNano()
	return nil
}

type memberSet map[int64]bool

func (m memberSet) IsMember(userID, householdID int64) (bool, error) {
	return m[userID], nil
}

func testEngine(t *testing.T, store Store, members MembershipOracle, now time.Time) *Engine {
	t.Helper()
	e := NewEngine(store, members, Config{MaxRetries: 3}, nil)
	e.now = func() time.Time { return now }
	return e
}

var (
	baseTime = time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	member   = memberSet{1: true}
)

func TestStartTrialFreshHousehold(t *testing.T) {
	store := &memStore{}
	e := testEngine(t, store, member, baseTime)

	ent, err := e.StartTrial(context.Background(), 42, 1)
	if err != nil {
		t.Fatalf("start trial: %v", err)
	}
	if ent.Status != StatusTrialActive {
		t.Errorf("status = %q, want %q", ent.Status, StatusTrialActive)
	}
	if !ent.TrialUsed {
		t.Error("expected trial_used = true")
	}
	want := baseTime.Add(7 * 24 * time.Hour)
	if ent.TrialEndsAt == nil || !ent.TrialEndsAt.Equal(want) {
		t.Errorf("trial_ends_at = %v, want %v", ent.TrialEndsAt, want)
	}
}

func TestStartTrialNonMember(t *testing.T) {
	store := &memStore{}
	e := testEngine(t, store, member, baseTime)

	_, err := e.StartTrial(context.Background(), 42, 99)
	if !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("err = %v, want ErrPermissionDenied", err)
	}
	if store.ent != nil {
		t.Error("expected no record written")
	}
}

func TestStartTrialAlreadyPro(t *testing.T) {
	renews := baseTime.Add(30 * 24 * time.Hour)
	store := &memStore{
		ent: &Entitlement{
			HouseholdID: 42,
			Status:      StatusProActive,
			ProRenewsAt: &renews,
			UpdatedAt:   baseTime.Add(-time.Hour),
		},
		version: baseTime.Add(-time.Hour).UnixNano(),
	}
	e := testEngine(t, store, member, baseTime)

	_, err := e.StartTrial(context.Background(), 42, 1)
	if !errors.Is(err, ErrAlreadyPro) {
		t.Fatalf("err = %v, want ErrAlreadyPro", err)
	}
	if store.ent.TrialUsed {
		t.Error("record mutated by rejected trial")
	}
}

func TestStartTrialAlreadyUsed(t *testing.T) {
	store := &memStore{}
	e := testEngine(t, store, member, baseTime)

	if _, err := e.StartTrial(context.Background(), 42, 1); err != nil {
		t.Fatalf("first trial: %v", err)
	}
	// Move past the trial window; trial_used must still block a second one.
	e.now = func() time.Time { return baseTime.Add(10 * 24 * time.Hour) }

	_, err := e.StartTrial(context.Background(), 42, 1)
	if !errors.Is(err, ErrTrialUsed) {
		t.Fatalf("err = %v, want ErrTrialUsed", err)
	}
}

func TestTrialUsedNeverCleared(t *testing.T) {
	store := &memStore{}
	e := testEngine(t, store, member, baseTime)
	ctx := context.Background()

	if _, err := e.StartTrial(ctx, 42, 1); err != nil {
		t.Fatalf("start trial: %v", err)
	}
	if _, err := e.RecordPurchase(ctx, 42, baseTime.Add(30*24*time.Hour)); err != nil {
		t.Fatalf("record purchase: %v", err)
	}
	if _, err := e.RecordCancellation(ctx, 42); err != nil {
		t.Fatalf("record cancellation: %v", err)
	}
	e.now = func() time.Time { return baseTime.Add(40 * 24 * time.Hour) }
	if _, err := e.ExpireIfDue(ctx, 42); err != nil {
		t.Fatalf("expire: %v", err)
	}

	if !store.ent.TrialUsed {
		t.Error("trial_used was cleared")
	}
}

func TestRecordPurchaseExtendsForward(t *testing.T) {
	store := &memStore{}
	e := testEngine(t, store, member, baseTime)
	ctx := context.Background()

	t1 := baseTime.Add(30 * 24 * time.Hour)
	t2 := t1.Add(30 * 24 * time.Hour)

	if _, err := e.RecordPurchase(ctx, 42, t1); err != nil {
		t.Fatalf("purchase: %v", err)
	}
	ent, err := e.RecordPurchase(ctx, 42, t2)
	if err != nil {
		t.Fatalf("renewal: %v", err)
	}
	if ent.ProRenewsAt == nil || !ent.ProRenewsAt.Equal(t2) {
		t.Errorf("pro_renews_at = %v, want %v", ent.ProRenewsAt, t2)
	}
}

func TestRecordPurchaseRejectsRegression(t *testing.T) {
	store := &memStore{}
	e := testEngine(t, store, member, baseTime)
	ctx := context.Background()

	t1 := baseTime.Add(30 * 24 * time.Hour)
	if _, err := e.RecordPurchase(ctx, 42, t1); err != nil {
		t.Fatalf("purchase: %v", err)
	}

	_, err := e.RecordPurchase(ctx, 42, t1.Add(-24*time.Hour))
	if !errors.Is(err, ErrInvalidRenewalWindow) {
		t.Fatalf("err = %v, want ErrInvalidRenewalWindow", err)
	}
	if !store.ent.ProRenewsAt.Equal(t1) {
		t.Errorf("pro_renews_at moved to %v", store.ent.ProRenewsAt)
	}
}

func TestPurchaseUpgradesMidTrial(t *testing.T) {
	store := &memStore{}
	e := testEngine(t, store, member, baseTime)
	ctx := context.Background()

	if _, err := e.StartTrial(ctx, 42, 1); err != nil {
		t.Fatalf("start trial: %v", err)
	}
	ent, err := e.RecordPurchase(ctx, 42, baseTime.Add(30*24*time.Hour))
	if err != nil {
		t.Fatalf("purchase: %v", err)
	}
	if ent.Status != StatusProActive {
		t.Errorf("status = %q, want %q", ent.Status, StatusProActive)
	}
	if ent.TrialEndsAt != nil {
		t.Error("trial window should be cleared on upgrade")
	}
	if !ent.TrialUsed {
		t.Error("trial_used must survive the upgrade")
	}
}

func TestCancellationKeepsProUntilPeriodEnd(t *testing.T) {
	store := &memStore{}
	e := testEngine(t, store, member, baseTime)
	ctx := context.Background()

	renews := baseTime.Add(30 * 24 * time.Hour)
	if _, err := e.RecordPurchase(ctx, 42, renews); err != nil {
		t.Fatalf("purchase: %v", err)
	}
	ent, err := e.RecordCancellation(ctx, 42)
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if ent.Status != StatusProActive {
		t.Errorf("status = %q, want %q", ent.Status, StatusProActive)
	}
	if ent.ProCancelledAt == nil {
		t.Error("expected pro_cancelled_at set")
	}

	// Past the period end the household is in grace, still entitled.
	e.now = func() time.Time { return renews.Add(24 * time.Hour) }
	ent, err = e.ExpireIfDue(ctx, 42)
	if err != nil {
		t.Fatalf("expire: %v", err)
	}
	if ent.Status != StatusGrace {
		t.Errorf("status = %q, want %q", ent.Status, StatusGrace)
	}
	if !ent.IsPro() {
		t.Error("grace must still grant pro access")
	}

	// Past the grace window it falls back to free.
	e.now = func() time.Time { return renews.Add(4 * 24 * time.Hour) }
	ent, err = e.ExpireIfDue(ctx, 42)
	if err != nil {
		t.Fatalf("expire past grace: %v", err)
	}
	if ent.Status != StatusFree {
		t.Errorf("status = %q, want %q", ent.Status, StatusFree)
	}
	if !ent.Expired() {
		t.Error("lapsed subscriber should report expired")
	}
}

func TestCancellationNoOpWhenNotPro(t *testing.T) {
	store := &memStore{}
	e := testEngine(t, store, member, baseTime)

	ent, err := e.RecordCancellation(context.Background(), 42)
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if ent.Status != StatusFree {
		t.Errorf("status = %q, want %q", ent.Status, StatusFree)
	}
	if store.ent != nil {
		t.Error("no-op cancellation wrote a record")
	}
}

func TestExpireIfDueIdempotent(t *testing.T) {
	store := &memStore{}
	e := testEngine(t, store, member, baseTime)
	ctx := context.Background()

	if _, err := e.StartTrial(ctx, 42, 1); err != nil {
		t.Fatalf("start trial: %v", err)
	}
	e.now = func() time.Time { return baseTime.Add(8 * 24 * time.Hour) }

	first, err := e.ExpireIfDue(ctx, 42)
	if err != nil {
		t.Fatalf("first expire: %v", err)
	}
	if first.Status != StatusFree {
		t.Errorf("status = %q, want %q", first.Status, StatusFree)
	}
	versionAfterFirst := store.version

	second, err := e.ExpireIfDue(ctx, 42)
	if err != nil {
		t.Fatalf("second expire: %v", err)
	}
	if !reflect.DeepEqual(second, first) {
		t.Errorf("second expire produced %+v, want %+v", second, first)
	}
	if store.version != versionAfterFirst {
		t.Error("idempotent expire rewrote the record")
	}
}

func TestStartTrialConcurrentSingleWinner(t *testing.T) {
	store := &memStore{}
	members := memberSet{}
	const n = 16
	for i := int64(1); i <= n; i++ {
		members[i] = true
	}

	e := NewEngine(store, members, Config{MaxRetries: 50}, nil)

	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = e.StartTrial(context.Background(), 42, int64(i+1))
		}(i)
	}
	wg.Wait()

	var won, lost int
	for _, err := range errs {
		switch {
		case err == nil:
			won++
		case errors.Is(err, ErrTrialUsed):
			lost++
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	if won != 1 {
		t.Errorf("winners = %d, want 1", won)
	}
	if lost != n-1 {
		t.Errorf("losers = %d, want %d", lost, n-1)
	}
	if store.ent == nil || !store.ent.TrialUsed {
		t.Fatal("expected exactly one persisted trial")
	}
}

// conflictStore always rejects writes, as if another writer wins every race.
type conflictStore struct{ memStore }

func (c *conflictStore) PutIfVersion(ent *Entitlement, expected int64) error {
	return ErrVersionConflict
}

func TestRetryBudgetExhaustion(t *testing.T) {
	e := testEngine(t, &conflictStore{}, member, baseTime)

	_, err := e.StartTrial(context.Background(), 42, 1)
	if !errors.Is(err, ErrUpdateConflict) {
		t.Fatalf("err = %v, want ErrUpdateConflict", err)
	}
}

func TestStorageFailureSurfaced(t *testing.T) {
	store := &memStore{fail: ErrStorageUnavailable}
	e := testEngine(t, store, member, baseTime)

	_, err := e.StartTrial(context.Background(), 42, 1)
	if !errors.Is(err, ErrStorageUnavailable) {
		t.Fatalf("err = %v, want ErrStorageUnavailable", err)
	}
}
