package store

import (
	"database/sql"
	"fmt"
	"time"

	"hearthledger/internal/model"
)

type TransactionStore struct {
	db *sql.DB
}

func NewTransactionStore(db *sql.DB) *TransactionStore {
	return &TransactionStore{db: db}
}

func scanTransaction(scanner interface{ Scan(...any) error }) (*model.Transaction, error) {
	var t model.Transaction
	var userID sql.NullInt64
	err := scanner.Scan(
		&t.ID, &t.HouseholdID, &userID, &t.AmountCents, &t.Category,
		&t.Merchant, &t.Note, &t.OccurredAt, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if userID.Valid {
		t.UserID = &userID.Int64
	}
	return &t, nil
}

const transactionCols = `id, household_id, user_id, amount_cents, category, merchant, note, occurred_at, created_at, updated_at`

func (s *TransactionStore) Create(householdID int64, userID *int64, amountCents int64, category, merchant, note string, occurredAt time.Time) (*model.Transaction, error) {
	var uID sql.NullInt64
	if userID != nil {
		uID = sql.NullInt64{Int64: *userID, Valid: true}
	}
	result, err := s.db.Exec(
		`INSERT INTO transactions (household_id, user_id, amount_cents, category, merchant, note, occurred_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		householdID, uID, amountCents, category, merchant, note, occurredAt,
	)
	if err != nil {
		return nil, fmt.Errorf("insert transaction: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(id)
}

func (s *TransactionStore) GetByID(id int64) (*model.Transaction, error) {
	row := s.db.QueryRow(`SELECT `+transactionCols+` FROM transactions WHERE id = ?`, id)
	t, err := scanTransaction(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get transaction: %w", err)
	}
	return t, nil
}

func (s *TransactionStore) Update(id int64, amountCents int64, category, merchant, note string, occurredAt time.Time) (*model.Transaction, error) {
	_, err := s.db.Exec(
		`UPDATE transactions SET amount_cents = ?, category = ?, merchant = ?, note = ?, occurred_at = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		amountCents, category, merchant, note, occurredAt, id,
	)
	if err != nil {
		return nil, fmt.Errorf("update transaction: %w", err)
	}
	return s.GetByID(id)
}

func (s *TransactionStore) Delete(id int64) error {
	_, err := s.db.Exec(`DELETE FROM transactions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete transaction: %w", err)
	}
	return nil
}

// ListForRange returns the household's transactions in [from, to), newest first.
func (s *TransactionStore) ListForRange(householdID int64, from, to time.Time) ([]model.Transaction, error) {
	rows, err := s.db.Query(
		`SELECT `+transactionCols+` FROM transactions
		 WHERE household_id = ? AND occurred_at >= ? AND occurred_at < ?
		 ORDER BY occurred_at DESC, id DESC`,
		householdID, from, to,
	)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	var txns []model.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		txns = append(txns, *t)
	}
	return txns, rows.Err()
}

// SpentByCategory sums positive amounts per category in [from, to). Income
// (negative amounts) is excluded from budget spend.
func (s *TransactionStore) SpentByCategory(householdID int64, from, to time.Time) (map[string]int64, error) {
	rows, err := s.db.Query(
		`SELECT category, SUM(amount_cents) FROM transactions
		 WHERE household_id = ? AND occurred_at >= ? AND occurred_at < ? AND amount_cents > 0
		 GROUP BY category`,
		householdID, from, to,
	)
	if err != nil {
		return nil, fmt.Errorf("sum by category: %w", err)
	}
	defer rows.Close()

	spent := make(map[string]int64)
	for rows.Next() {
		var category string
		var total int64
		if err := rows.Scan(&category, &total); err != nil {
			return nil, fmt.Errorf("scan category total: %w", err)
		}
		spent[category] = total
	}
	return spent, rows.Err()
}
