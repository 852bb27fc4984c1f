package entitlement

import (
	"fmt"
	"time"
)

// Queries is the read-only projection of entitlement state. Feature gates and
// the paywall screen consume it; it never writes.
type Queries struct {
	store Store
	cfg   Config
	now   func() time.Time
}

// NewQueries creates a read-only entitlement facade. A zero Config gets the
// product defaults.
func NewQueries(store Store, cfg Config) *Queries {
	return &Queries{store: store, cfg: cfg.withDefaults(), now: time.Now}
}

// Get returns the household's entitlement with the effective status derived
// against current time. A household with no stored record is reported as
// Free. The stored record is never corrected here; see Engine.ExpireIfDue.
func (q *Queries) Get(householdID int64) (*Entitlement, error) {
	stored, _, err := q.store.Get(householdID)
	if err != nil {
		return nil, fmt.Errorf("read entitlement: %w", err)
	}
	if stored == nil {
		return freeRecord(householdID), nil
	}

	ent := *stored
	status, graceEnd := derive(stored, q.now(), q.cfg)
	ent.Status = status
	if status == StatusGrace {
		ent.GraceEndsAt = graceEnd
	}
	if status == StatusFree {
		// Expired windows are projected away; sticky fields stay.
		ent.TrialStartedAt = nil
		ent.TrialEndsAt = nil
		ent.GraceEndsAt = nil
	}
	return &ent, nil
}

// IsPro reports whether the household currently has Pro feature access.
func (q *Queries) IsPro(householdID int64) (bool, error) {
	ent, err := q.Get(householdID)
	if err != nil {
		return false, err
	}
	return ent.IsPro(), nil
}
