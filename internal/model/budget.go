package model

import "time"

type Budget struct {
	ID          int64     `json:"id"`
	HouseholdID int64     `json:"household_id"`
	Category    string    `json:"category"`
	LimitCents  int64     `json:"limit_cents"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// BudgetProgress is a budget joined with spend for one calendar month.
type BudgetProgress struct {
	Budget
	SpentCents int64 `json:"spent_cents"`
}

// OverLimit reports whether the month's spend has exceeded the limit.
func (b BudgetProgress) OverLimit() bool {
	return b.SpentCents > b.LimitCents
}
