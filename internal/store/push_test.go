package store

import (
	"testing"

	"hearthledger/internal/model"
)

func TestPushUpsertReplacesKeys(t *testing.T) {
	db := setupTestDB(t)
	h, u := createTestHousehold(t, db)
	ps := NewPushStore(db)

	sub, err := ps.Upsert(u.ID, h.ID, "https://push.example/ep1", "p256dh-a", "auth-a", "phone")
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}

	sub2, err := ps.Upsert(u.ID, h.ID, "https://push.example/ep1", "p256dh-b", "auth-b", "phone")
	if err != nil {
		t.Fatalf("re-upsert: %v", err)
	}
	if sub2.ID != sub.ID {
		t.Errorf("re-subscribe created a new row: id %d != %d", sub2.ID, sub.ID)
	}
	if sub2.P256dhKey != "p256dh-b" {
		t.Errorf("p256dh = %q, want replaced key", sub2.P256dhKey)
	}
}

func TestPushListHouseholdIDs(t *testing.T) {
	db := setupTestDB(t)
	h, u := createTestHousehold(t, db)
	ps := NewPushStore(db)

	ids, err := ps.ListHouseholdIDs()
	if err != nil {
		t.Fatalf("list household ids: %v", err)
	}
	if len(ids) != 0 {
		t.Errorf("ids = %v, want none before any subscription", ids)
	}

	if _, err := ps.Upsert(u.ID, h.ID, "https://push.example/ep1", "k", "a", ""); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if _, err := ps.Upsert(u.ID, h.ID, "https://push.example/ep2", "k", "a", ""); err != nil {
		t.Fatalf("upsert second device: %v", err)
	}

	ids, err = ps.ListHouseholdIDs()
	if err != nil {
		t.Fatalf("list household ids: %v", err)
	}
	if len(ids) != 1 || ids[0] != h.ID {
		t.Errorf("ids = %v, want just household %d", ids, h.ID)
	}
}

func TestPushSentLog(t *testing.T) {
	db := setupTestDB(t)
	h, _ := createTestHousehold(t, db)
	ps := NewPushStore(db)

	sent, err := ps.WasSent(h.ID, model.NotifTypeTrialEnding, "trial-2d")
	if err != nil {
		t.Fatalf("was sent: %v", err)
	}
	if sent {
		t.Error("fresh log reports already sent")
	}

	if err := ps.RecordSent(h.ID, model.NotifTypeTrialEnding, "trial-2d"); err != nil {
		t.Fatalf("record sent: %v", err)
	}
	// Recording the same notification twice is a no-op.
	if err := ps.RecordSent(h.ID, model.NotifTypeTrialEnding, "trial-2d"); err != nil {
		t.Fatalf("repeat record sent: %v", err)
	}

	sent, err = ps.WasSent(h.ID, model.NotifTypeTrialEnding, "trial-2d")
	if err != nil {
		t.Fatalf("was sent after record: %v", err)
	}
	if !sent {
		t.Error("recorded notification not reported as sent")
	}

	// A different reference is independent.
	sent, err = ps.WasSent(h.ID, model.NotifTypeTrialEnding, "trial-1d")
	if err != nil {
		t.Fatalf("was sent other ref: %v", err)
	}
	if sent {
		t.Error("unrelated reference reported as sent")
	}
}
