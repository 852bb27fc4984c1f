package store

import (
	"database/sql"
	"fmt"
	"time"

	"hearthledger/internal/entitlement"
)

// EntitlementStore persists one entitlement row per household. Writes are
// conditional on the updated_at_ns version token so concurrent engines never
// lose updates; see entitlement.Store.
type EntitlementStore struct {
	db *sql.DB
}

func NewEntitlementStore(db *sql.DB) *EntitlementStore {
	return &EntitlementStore{db: db}
}

const entitlementCols = `household_id, status, trial_used, trial_started_at, trial_ends_at, pro_since, pro_renews_at, pro_cancelled_at, grace_ends_at, updated_at_ns`

func scanEntitlement(scanner interface{ Scan(...any) error }) (*entitlement.Entitlement, int64, error) {
	var e entitlement.Entitlement
	var trialUsed int
	var trialStarted, trialEnds, proSince, proRenews, proCancelled, graceEnds sql.NullTime
	var updatedNS int64

	err := scanner.Scan(
		&e.HouseholdID, &e.Status, &trialUsed, &trialStarted, &trialEnds,
		&proSince, &proRenews, &proCancelled, &graceEnds, &updatedNS,
	)
	if err != nil {
		return nil, 0, err
	}

	e.TrialUsed = trialUsed != 0
	if trialStarted.Valid {
		e.TrialStartedAt = &trialStarted.Time
	}
	if trialEnds.Valid {
		e.TrialEndsAt = &trialEnds.Time
	}
	if proSince.Valid {
		e.ProSince = &proSince.Time
	}
	if proRenews.Valid {
		e.ProRenewsAt = &proRenews.Time
	}
	if proCancelled.Valid {
		e.ProCancelledAt = &proCancelled.Time
	}
	if graceEnds.Valid {
		e.GraceEndsAt = &graceEnds.Time
	}
	e.UpdatedAt = time.Unix(0, updatedNS).UTC()
	return &e, updatedNS, nil
}

// Get returns the stored record and its version token, or (nil, 0, nil) when
// the household has no row yet.
func (s *EntitlementStore) Get(householdID int64) (*entitlement.Entitlement, int64, error) {
	row := s.db.QueryRow(
		`SELECT `+entitlementCols+` FROM entitlements WHERE household_id = ?`,
		householdID,
	)
	e, version, err := scanEntitlement(row)
	if err == sql.ErrNoRows {
		return nil, 0, nil
	}
	if err != nil {
		return nil, 0, fmt.Errorf("get entitlement: %w: %v", entitlement.ErrStorageUnavailable, err)
	}
	return e, version, nil
}

// PutIfVersion writes the record only if the stored version still equals
// expected. expected = 0 inserts a fresh row; a concurrent insert or update
// in between fails with entitlement.ErrVersionConflict.
func (s *EntitlementStore) PutIfVersion(ent *entitlement.Entitlement, expected int64) error {
	var trialUsed int
	if ent.TrialUsed {
		trialUsed = 1
	}
	args := []any{
		ent.Status, trialUsed,
		nullTime(ent.TrialStartedAt), nullTime(ent.TrialEndsAt),
		nullTime(ent.ProSince), nullTime(ent.ProRenewsAt),
		nullTime(ent.ProCancelledAt), nullTime(ent.GraceEndsAt),
		ent.UpdatedAt.UnixNano(),
	}

	if expected == 0 {
		// INSERT OR IGNORE keeps a lost insert race from surfacing as a
		// constraint error; zero rows affected means someone else won.
		result, err := s.db.Exec(
			`INSERT OR IGNORE INTO entitlements
			 (status, trial_used, trial_started_at, trial_ends_at, pro_since, pro_renews_at, pro_cancelled_at, grace_ends_at, updated_at_ns, household_id)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			append(args, ent.HouseholdID)...,
		)
		if err != nil {
			return fmt.Errorf("insert entitlement: %w: %v", entitlement.ErrStorageUnavailable, err)
		}
		n, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("insert entitlement: %w: %v", entitlement.ErrStorageUnavailable, err)
		}
		if n == 0 {
			return entitlement.ErrVersionConflict
		}
		return nil
	}

	result, err := s.db.Exec(
		`UPDATE entitlements
		 SET status = ?, trial_used = ?, trial_started_at = ?, trial_ends_at = ?, pro_since = ?, pro_renews_at = ?, pro_cancelled_at = ?, grace_ends_at = ?, updated_at_ns = ?
		 WHERE household_id = ? AND updated_at_ns = ?`,
		append(args, ent.HouseholdID, expected)...,
	)
	if err != nil {
		return fmt.Errorf("update entitlement: %w: %v", entitlement.ErrStorageUnavailable, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update entitlement: %w: %v", entitlement.ErrStorageUnavailable, err)
	}
	if n == 0 {
		return entitlement.ErrVersionConflict
	}
	return nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
