package model

import "time"

// Transaction amounts are integer cents; negative amounts are income.
type Transaction struct {
	ID          int64     `json:"id"`
	HouseholdID int64     `json:"household_id"`
	UserID      *int64    `json:"user_id"`
	AmountCents int64     `json:"amount_cents"`
	Category    string    `json:"category"`
	Merchant    string    `json:"merchant"`
	Note        string    `json:"note"`
	OccurredAt  time.Time `json:"occurred_at"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Recurrence interval constants for recurring transactions.
const (
	IntervalWeekly  = "weekly"
	IntervalMonthly = "monthly"
	IntervalYearly  = "yearly"
)

type RecurringTransaction struct {
	ID           int64      `json:"id"`
	HouseholdID  int64      `json:"household_id"`
	AmountCents  int64      `json:"amount_cents"`
	Category     string     `json:"category"`
	Merchant     string     `json:"merchant"`
	Note         string     `json:"note"`
	Interval     string     `json:"interval"`
	AnchorDate   time.Time  `json:"anchor_date"`
	LastPostedOn *time.Time `json:"last_posted_on"`
	Active       bool       `json:"active"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}
