package entitlement

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sethvargo/go-retry"
)

// Engine executes guarded entitlement transitions. It is the only writer of
// entitlement records; everything else reads through Queries. Each transition
// is a single conditional write, so an abandoned call never leaves a record
// half-updated. When a write loses a race the whole transition re-reads fresh
// state and re-validates, up to Config.MaxRetries attempts.
type Engine struct {
	store   Store
	members MembershipOracle
	cfg     Config
	now     func() time.Time
	logger  *slog.Logger
}

// NewEngine creates an entitlement engine. A zero Config gets the product
// defaults.
func NewEngine(store Store, members MembershipOracle, cfg Config, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		store:   store,
		members: members,
		cfg:     cfg.withDefaults(),
		now:     time.Now,
		logger:  logger,
	}
}

// StartTrial begins the household's one-time Pro trial on behalf of
// actingUserID. Fails with ErrPermissionDenied for non-members,
// ErrAlreadyPro while a subscription or grace window is live, and
// ErrTrialUsed once a trial has ever been started. At most one trial ever
// starts per household, regardless of concurrent callers.
func (e *Engine) StartTrial(ctx context.Context, householdID, actingUserID int64) (*Entitlement, error) {
	return e.transition(ctx, householdID, func(stored *Entitlement, version int64) (*Entitlement, error) {
		ok, err := e.members.IsMember(actingUserID, householdID)
		if err != nil {
			return nil, fmt.Errorf("check membership: %w", err)
		}
		if !ok {
			return nil, ErrPermissionDenied
		}

		now := e.now()
		status, _ := derive(stored, now, e.cfg)
		if status == StatusProActive || status == StatusGrace {
			return nil, ErrAlreadyPro
		}
		if stored.TrialUsed {
			return nil, ErrTrialUsed
		}

		next := *stored
		now = nextVersion(now, version)
		ends := now.Add(e.cfg.TrialDuration)
		next.Status = StatusTrialActive
		next.TrialUsed = true
		next.TrialStartedAt = &now
		next.TrialEndsAt = &ends
		next.GraceEndsAt = nil
		next.UpdatedAt = now
		return &next, nil
	})
}

// RecordPurchase applies a subscription purchase or renewal reported by the
// billing system. The renewal deadline only ever moves forward; a periodEnd
// earlier than the stored one fails with ErrInvalidRenewalWindow and changes
// nothing. Calling again with the same periodEnd is harmless.
func (e *Engine) RecordPurchase(ctx context.Context, householdID int64, periodEnd time.Time) (*Entitlement, error) {
	return e.transition(ctx, householdID, func(stored *Entitlement, version int64) (*Entitlement, error) {
		if stored.ProRenewsAt != nil && periodEnd.Before(*stored.ProRenewsAt) {
			return nil, ErrInvalidRenewalWindow
		}

		now := nextVersion(e.now(), version)
		next := *stored
		next.Status = StatusProActive
		if next.ProSince == nil {
			next.ProSince = &now
		}
		next.ProRenewsAt = &periodEnd
		next.ProCancelledAt = nil
		next.TrialStartedAt = nil
		next.TrialEndsAt = nil
		next.GraceEndsAt = nil
		next.UpdatedAt = now
		return &next, nil
	})
}

// RecordCancellation marks an active subscription as cancelled. Pro access
// continues until the current period ends, after which evaluation moves the
// household through Grace to Free. Cancelling a household that is not
// ProActive, or one already marked cancelled, is a no-op.
func (e *Engine) RecordCancellation(ctx context.Context, householdID int64) (*Entitlement, error) {
	return e.transition(ctx, householdID, func(stored *Entitlement, version int64) (*Entitlement, error) {
		status, _ := derive(stored, e.now(), e.cfg)
		if status != StatusProActive || stored.ProCancelledAt != nil {
			return nil, errNoChange
		}

		now := nextVersion(e.now(), version)
		next := *stored
		next.ProCancelledAt = &now
		next.UpdatedAt = now
		return &next, nil
	})
}

// ExpireIfDue reconciles the stored status with wall-clock time, persisting
// TrialActive→Free, ProActive→Grace, and Grace→Free transitions once their
// deadline has passed. It is the only place the stored status is corrected,
// and it is safe to invoke lazily on every read: when nothing is due it
// writes nothing.
func (e *Engine) ExpireIfDue(ctx context.Context, householdID int64) (*Entitlement, error) {
	return e.transition(ctx, householdID, func(stored *Entitlement, version int64) (*Entitlement, error) {
		now := e.now()
		status, graceEnd := derive(stored, now, e.cfg)
		if status == stored.Status {
			return nil, errNoChange
		}

		next := *stored
		next.Status = status
		switch status {
		case StatusGrace:
			next.GraceEndsAt = graceEnd
		case StatusFree:
			next.TrialStartedAt = nil
			next.TrialEndsAt = nil
			next.ProRenewsAt = nil
			next.GraceEndsAt = nil
		}
		next.UpdatedAt = nextVersion(now, version)
		return &next, nil
	})
}

// errNoChange signals that a transition found nothing to write; the current
// derived record is returned to the caller as-is.
var errNoChange = errors.New("no entitlement change")

// transition runs one guarded read-validate-write cycle under the bounded
// optimistic-retry policy. apply receives the stored record (an implicit Free
// record when absent) and the version token the write will be conditioned on.
func (e *Engine) transition(ctx context.Context, householdID int64, apply func(stored *Entitlement, version int64) (*Entitlement, error)) (*Entitlement, error) {
	var result *Entitlement

	backoff := retry.WithMaxRetries(e.cfg.MaxRetries, retry.NewConstant(10*time.Millisecond))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		stored, version, err := e.store.Get(householdID)
		if err != nil {
			return fmt.Errorf("read entitlement: %w", err)
		}
		if stored == nil {
			stored = freeRecord(householdID)
		}

		next, err := apply(stored, version)
		if errors.Is(err, errNoChange) {
			result = e.project(stored)
			return nil
		}
		if err != nil {
			return err
		}

		if err := e.store.PutIfVersion(next, version); err != nil {
			if errors.Is(err, ErrVersionConflict) {
				e.logger.Debug("entitlement write conflict, retrying",
					"household_id", householdID)
				return retry.RetryableError(err)
			}
			return fmt.Errorf("write entitlement: %w", err)
		}
		result = e.project(next)
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrVersionConflict) {
			return nil, ErrUpdateConflict
		}
		return nil, err
	}
	return result, nil
}

// project returns a copy with the effective status derived against now, so
// callers always see current truth even when the write path left a stale
// stored status untouched.
func (e *Engine) project(stored *Entitlement) *Entitlement {
	ent := *stored
	status, graceEnd := derive(stored, e.now(), e.cfg)
	ent.Status = status
	if status == StatusGrace {
		ent.GraceEndsAt = graceEnd
	}
	return &ent
}

// nextVersion returns now, nudged forward when needed so the new version
// token strictly exceeds the previous one. UpdatedAt doubles as the
// optimistic-concurrency token, so it must change on every write.
func nextVersion(now time.Time, prev int64) time.Time {
	if now.UnixNano() <= prev {
		return time.Unix(0, prev+1).UTC()
	}
	return now
}
