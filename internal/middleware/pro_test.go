package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"hearthledger/internal/auth"
	"hearthledger/internal/database"
	"hearthledger/internal/entitlement"
	"hearthledger/internal/store"
)

func setupProGate(t *testing.T) (*entitlement.Engine, *entitlement.Queries, int64, int64) {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	hs := store.NewHouseholdStore(db)
	us := store.NewUserStore(db)
	es := store.NewEntitlementStore(db)

	u, _ := us.Create("alice@example.com", "Alice")
	h, err := hs.Create("Shire", "USD")
	if err != nil {
		t.Fatalf("create household: %v", err)
	}
	if _, err := hs.AddMember(h.ID, u.ID, "admin"); err != nil {
		t.Fatalf("add member: %v", err)
	}

	engine := entitlement.NewEngine(es, hs, entitlement.Config{}, nil)
	queries := entitlement.NewQueries(es, entitlement.Config{})
	return engine, queries, h.ID, u.ID
}

func proRequest(householdID int64) *http.Request {
	ctx := auth.WithAuth(context.Background(), auth.AuthContext{UserID: 1, HouseholdID: householdID})
	return httptest.NewRequest("GET", "/", nil).WithContext(ctx)
}

func TestRequireProDeniesFreeHousehold(t *testing.T) {
	_, queries, householdID, _ := setupProGate(t)

	handler := RequirePro(queries, slog.Default())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("should not reach handler")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, proRequest(householdID))

	if rec.Code != http.StatusPaymentRequired {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusPaymentRequired)
	}
}

func TestRequireProAllowsTrial(t *testing.T) {
	engine, queries, householdID, userID := setupProGate(t)

	if _, err := engine.StartTrial(context.Background(), householdID, userID); err != nil {
		t.Fatalf("start trial: %v", err)
	}

	handler := RequirePro(queries, slog.Default())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, proRequest(householdID))

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
	}
}

func TestRequireProAllowsActiveSubscription(t *testing.T) {
	engine, queries, householdID, _ := setupProGate(t)

	periodEnd := time.Now().Add(30 * 24 * time.Hour)
	if _, err := engine.RecordPurchase(context.Background(), householdID, periodEnd); err != nil {
		t.Fatalf("record purchase: %v", err)
	}

	handler := RequirePro(queries, slog.Default())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, proRequest(householdID))

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
	}
}

func TestRequireProNoAuthContext(t *testing.T) {
	_, queries, _, _ := setupProGate(t)

	handler := RequirePro(queries, slog.Default())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("should not reach handler")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/", nil))

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}
}
