package model

import "time"

// Habit cadence constants.
const (
	CadenceDaily  = "daily"
	CadenceWeekly = "weekly"
)

type Habit struct {
	ID          int64     `json:"id"`
	HouseholdID int64     `json:"household_id"`
	UserID      int64     `json:"user_id"`
	Name        string    `json:"name"`
	Cadence     string    `json:"cadence"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type HabitCompletion struct {
	ID          int64     `json:"id"`
	HabitID     int64     `json:"habit_id"`
	CompletedOn time.Time `json:"completed_on"`
	CreatedAt   time.Time `json:"created_at"`
}
