// Package entitlement tracks whether a household is on the free tier, an
// active trial, a paid Pro subscription, or a post-expiration grace window,
// and guards every transition between those states.
//
// The stored record is allowed to lag wall-clock truth: expiration is derived
// on read and only persisted by ExpireIfDue, so no background scheduler is
// needed. All writes are conditional on the previously observed version
// token, which is what makes a trial start at most once per household even
// under concurrent requests from different devices.
package entitlement

import "time"

type Status string

const (
	StatusFree        Status = "free"
	StatusTrialActive Status = "trial_active"
	StatusProActive   Status = "pro_active"
	StatusGrace       Status = "grace"
	StatusExpired     Status = "expired"
)

// Entitlement is the per-household subscription record. Status as stored may
// be stale relative to wall-clock; use Queries.Get for the effective status.
type Entitlement struct {
	HouseholdID    int64      `json:"household_id"`
	Status         Status     `json:"status"`
	TrialUsed      bool       `json:"trial_used"`
	TrialStartedAt *time.Time `json:"trial_started_at,omitempty"`
	TrialEndsAt    *time.Time `json:"trial_ends_at,omitempty"`
	ProSince       *time.Time `json:"pro_since,omitempty"`
	ProRenewsAt    *time.Time `json:"pro_renews_at,omitempty"`
	ProCancelledAt *time.Time `json:"pro_cancelled_at,omitempty"`
	GraceEndsAt    *time.Time `json:"grace_ends_at,omitempty"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// IsPro reports whether the household has Pro feature access. Grace still
// grants access. Meaningful on records whose Status has been re-derived
// against current time (Queries.Get output).
func (e *Entitlement) IsPro() bool {
	return e.Status == StatusProActive || e.Status == StatusGrace
}

// HasAccess reports whether Pro features are usable right now: an active
// trial, an active subscription, or grace.
func (e *Entitlement) HasAccess() bool {
	return e.Status == StatusTrialActive || e.IsPro()
}

// InGrace reports whether the household is in the post-expiration leniency window.
func (e *Entitlement) InGrace() bool {
	return e.Status == StatusGrace
}

// Expired reports whether a previously-paid household has fallen back to the
// free tier. The paywall uses this to show "subscription expired" instead of
// the first-run pitch.
func (e *Entitlement) Expired() bool {
	return e.Status == StatusFree && e.ProSince != nil
}

// Config holds the tunable durations of the entitlement state machine.
type Config struct {
	TrialDuration time.Duration
	GracePeriod   time.Duration
	MaxRetries    uint64
}

// DefaultConfig returns the product defaults: 7-day trial, 3-day grace,
// 3 optimistic-write retries.
func DefaultConfig() Config {
	return Config{
		TrialDuration: 7 * 24 * time.Hour,
		GracePeriod:   3 * 24 * time.Hour,
		MaxRetries:    3,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.TrialDuration <= 0 {
		c.TrialDuration = d.TrialDuration
	}
	if c.GracePeriod <= 0 {
		c.GracePeriod = d.GracePeriod
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = d.MaxRetries
	}
	return c
}

// Store is the durable per-household record contract. Get returns the stored
// record and its version token, or (nil, 0, nil) when no record exists yet.
// PutIfVersion writes the record only if the stored version still equals
// expected (0 meaning "no record yet"); a stale token fails with
// ErrVersionConflict, never a silent merge.
type Store interface {
	Get(householdID int64) (*Entitlement, int64, error)
	PutIfVersion(ent *Entitlement, expected int64) error
}

// MembershipOracle answers whether a user may act on a household. Results
// must not be cached across operations.
type MembershipOracle interface {
	IsMember(userID, householdID int64) (bool, error)
}

// derive reconciles a stored record against now and returns the effective
// status plus the grace deadline implied by an expiring subscription. It
// never mutates its input.
func derive(e *Entitlement, now time.Time, cfg Config) (Status, *time.Time) {
	switch e.Status {
	case StatusTrialActive:
		if e.TrialEndsAt != nil && now.Before(*e.TrialEndsAt) {
			return StatusTrialActive, nil
		}
		// Trial expiration skips grace entirely.
		return StatusFree, nil

	case StatusProActive:
		if e.ProRenewsAt == nil || now.Before(*e.ProRenewsAt) {
			return StatusProActive, nil
		}
		graceEnd := e.ProRenewsAt.Add(cfg.GracePeriod)
		if now.Before(graceEnd) {
			return StatusGrace, &graceEnd
		}
		return StatusFree, nil

	case StatusGrace:
		if e.GraceEndsAt != nil && now.Before(*e.GraceEndsAt) {
			return StatusGrace, e.GraceEndsAt
		}
		return StatusFree, nil

	case StatusExpired:
		return StatusFree, nil

	default:
		return StatusFree, nil
	}
}

// freeRecord is the implicit default for a household with no stored row.
func freeRecord(householdID int64) *Entitlement {
	return &Entitlement{
		HouseholdID: householdID,
		Status:      StatusFree,
	}
}
