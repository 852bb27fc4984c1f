package store

import (
	"database/sql"
	"fmt"
	"time"

	"hearthledger/internal/model"
)

type BudgetStore struct {
	db   *sql.DB
	txns *TransactionStore
}

func NewBudgetStore(db *sql.DB) *BudgetStore {
	return &BudgetStore{db: db, txns: NewTransactionStore(db)}
}

func scanBudget(scanner interface{ Scan(...any) error }) (*model.Budget, error) {
	var b model.Budget
	err := scanner.Scan(&b.ID, &b.HouseholdID, &b.Category, &b.LimitCents, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &b, nil
}

const budgetCols = `id, household_id, category, limit_cents, created_at, updated_at`

// Set creates or replaces the household's budget for a category.
func (s *BudgetStore) Set(householdID int64, category string, limitCents int64) (*model.Budget, error) {
	_, err := s.db.Exec(
		`INSERT INTO budgets (household_id, category, limit_cents) VALUES (?, ?, ?)
		 ON CONFLICT (household_id, category) DO UPDATE SET limit_cents = excluded.limit_cents, updated_at = CURRENT_TIMESTAMP`,
		householdID, category, limitCents,
	)
	if err != nil {
		return nil, fmt.Errorf("set budget: %w", err)
	}
	return s.Get(householdID, category)
}

func (s *BudgetStore) Get(householdID int64, category string) (*model.Budget, error) {
	row := s.db.QueryRow(
		`SELECT `+budgetCols+` FROM budgets WHERE household_id = ? AND category = ?`,
		householdID, category,
	)
	b, err := scanBudget(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get budget: %w", err)
	}
	return b, nil
}

func (s *BudgetStore) Delete(householdID int64, category string) error {
	_, err := s.db.Exec(`DELETE FROM budgets WHERE household_id = ? AND category = ?`, householdID, category)
	if err != nil {
		return fmt.Errorf("delete budget: %w", err)
	}
	return nil
}

func (s *BudgetStore) List(householdID int64) ([]model.Budget, error) {
	rows, err := s.db.Query(
		`SELECT `+budgetCols+` FROM budgets WHERE household_id = ? ORDER BY category ASC`,
		householdID,
	)
	if err != nil {
		return nil, fmt.Errorf("list budgets: %w", err)
	}
	defer rows.Close()

	var budgets []model.Budget
	for rows.Next() {
		b, err := scanBudget(rows)
		if err != nil {
			return nil, fmt.Errorf("scan budget: %w", err)
		}
		budgets = append(budgets, *b)
	}
	return budgets, rows.Err()
}

// ListProgress returns every budget with the household's spend for the
// calendar month containing ref.
func (s *BudgetStore) ListProgress(householdID int64, ref time.Time) ([]model.BudgetProgress, error) {
	budgets, err := s.List(householdID)
	if err != nil {
		return nil, err
	}

	from := time.Date(ref.Year(), ref.Month(), 1, 0, 0, 0, 0, ref.Location())
	to := from.AddDate(0, 1, 0)
	spent, err := s.txns.SpentByCategory(householdID, from, to)
	if err != nil {
		return nil, err
	}

	progress := make([]model.BudgetProgress, 0, len(budgets))
	for _, b := range budgets {
		progress = append(progress, model.BudgetProgress{
			Budget:     b,
			SpentCents: spent[b.Category],
		})
	}
	return progress, nil
}
