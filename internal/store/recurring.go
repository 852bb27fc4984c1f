package store

import (
	"database/sql"
	"fmt"
	"time"

	"hearthledger/internal/model"
)

type RecurringStore struct {
	db *sql.DB
}

func NewRecurringStore(db *sql.DB) *RecurringStore {
	return &RecurringStore{db: db}
}

func scanRecurring(scanner interface{ Scan(...any) error }) (*model.RecurringTransaction, error) {
	var r model.RecurringTransaction
	var lastPosted sql.NullTime
	var active int
	err := scanner.Scan(
		&r.ID, &r.HouseholdID, &r.AmountCents, &r.Category, &r.Merchant,
		&r.Note, &r.Interval, &r.AnchorDate, &lastPosted, &active,
		&r.CreatedAt, &r.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if lastPosted.Valid {
		r.LastPostedOn = &lastPosted.Time
	}
	r.Active = active != 0
	return &r, nil
}

const recurringCols = `id, household_id, amount_cents, category, merchant, note, interval, anchor_date, last_posted_on, active, created_at, updated_at`

func (s *RecurringStore) Create(householdID, amountCents int64, category, merchant, note, interval string, anchor time.Time) (*model.RecurringTransaction, error) {
	result, err := s.db.Exec(
		`INSERT INTO recurring_transactions (household_id, amount_cents, category, merchant, note, interval, anchor_date) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		householdID, amountCents, category, merchant, note, interval, anchor,
	)
	if err != nil {
		return nil, fmt.Errorf("insert recurring transaction: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(id)
}

func (s *RecurringStore) GetByID(id int64) (*model.RecurringTransaction, error) {
	row := s.db.QueryRow(`SELECT `+recurringCols+` FROM recurring_transactions WHERE id = ?`, id)
	r, err := scanRecurring(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get recurring transaction: %w", err)
	}
	return r, nil
}

func (s *RecurringStore) ListActive(householdID int64) ([]model.RecurringTransaction, error) {
	rows, err := s.db.Query(
		`SELECT `+recurringCols+` FROM recurring_transactions WHERE household_id = ? AND active = 1 ORDER BY created_at ASC`,
		householdID,
	)
	if err != nil {
		return nil, fmt.Errorf("list recurring transactions: %w", err)
	}
	defer rows.Close()

	var items []model.RecurringTransaction
	for rows.Next() {
		r, err := scanRecurring(rows)
		if err != nil {
			return nil, fmt.Errorf("scan recurring transaction: %w", err)
		}
		items = append(items, *r)
	}
	return items, rows.Err()
}

// ListActiveHouseholds returns the distinct households that have at least one
// active schedule, so the periodic sweep only touches households with work.
func (s *RecurringStore) ListActiveHouseholds() ([]int64, error) {
	rows, err := s.db.Query(`SELECT DISTINCT household_id FROM recurring_transactions WHERE active = 1`)
	if err != nil {
		return nil, fmt.Errorf("list active households: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan household id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *RecurringStore) SetActive(id int64, active bool) error {
	var v int
	if active {
		v = 1
	}
	_, err := s.db.Exec(`UPDATE recurring_transactions SET active = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`, v, id)
	if err != nil {
		return fmt.Errorf("set recurring active: %w", err)
	}
	return nil
}

// MarkPosted advances the schedule's high-water mark after its occurrences
// have been materialized as transactions.
func (s *RecurringStore) MarkPosted(id int64, on time.Time) error {
	_, err := s.db.Exec(
		`UPDATE recurring_transactions SET last_posted_on = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		on, id,
	)
	if err != nil {
		return fmt.Errorf("mark recurring posted: %w", err)
	}
	return nil
}

func (s *RecurringStore) Delete(id int64) error {
	_, err := s.db.Exec(`DELETE FROM recurring_transactions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete recurring transaction: %w", err)
	}
	return nil
}
