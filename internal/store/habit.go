package store

import (
	"database/sql"
	"fmt"
	"time"

	"hearthledger/internal/model"
)

type HabitStore struct {
	db *sql.DB
}

func NewHabitStore(db *sql.DB) *HabitStore {
	return &HabitStore{db: db}
}

func scanHabit(scanner interface{ Scan(...any) error }) (*model.Habit, error) {
	var h model.Habit
	err := scanner.Scan(&h.ID, &h.HouseholdID, &h.UserID, &h.Name, &h.Cadence, &h.CreatedAt, &h.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &h, nil
}

const habitCols = `id, household_id, user_id, name, cadence, created_at, updated_at`

func (s *HabitStore) Create(householdID, userID int64, name, cadence string) (*model.Habit, error) {
	if cadence == "" {
		cadence = model.CadenceDaily
	}
	result, err := s.db.Exec(
		`INSERT INTO habits (household_id, user_id, name, cadence) VALUES (?, ?, ?, ?)`,
		householdID, userID, name, cadence,
	)
	if err != nil {
		return nil, fmt.Errorf("insert habit: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(id)
}

func (s *HabitStore) GetByID(id int64) (*model.Habit, error) {
	row := s.db.QueryRow(`SELECT `+habitCols+` FROM habits WHERE id = ?`, id)
	h, err := scanHabit(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get habit: %w", err)
	}
	return h, nil
}

func (s *HabitStore) List(householdID int64) ([]model.Habit, error) {
	rows, err := s.db.Query(
		`SELECT `+habitCols+` FROM habits WHERE household_id = ? ORDER BY created_at ASC`,
		householdID,
	)
	if err != nil {
		return nil, fmt.Errorf("list habits: %w", err)
	}
	defer rows.Close()

	var habits []model.Habit
	for rows.Next() {
		h, err := scanHabit(rows)
		if err != nil {
			return nil, fmt.Errorf("scan habit: %w", err)
		}
		habits = append(habits, *h)
	}
	return habits, rows.Err()
}

func (s *HabitStore) Delete(id int64) error {
	_, err := s.db.Exec(`DELETE FROM habits WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete habit: %w", err)
	}
	return nil
}

// Complete records a completion for the given day; completing the same day
// twice is a no-op.
func (s *HabitStore) Complete(habitID int64, day time.Time) error {
	day = time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	_, err := s.db.Exec(
		`INSERT OR IGNORE INTO habit_completions (habit_id, completed_on) VALUES (?, ?)`,
		habitID, day,
	)
	if err != nil {
		return fmt.Errorf("record completion: %w", err)
	}
	return nil
}

// Completions returns completion days since the given date, newest first.
func (s *HabitStore) Completions(habitID int64, since time.Time) ([]time.Time, error) {
	rows, err := s.db.Query(
		`SELECT completed_on FROM habit_completions WHERE habit_id = ? AND completed_on >= ? ORDER BY completed_on DESC`,
		habitID, since,
	)
	if err != nil {
		return nil, fmt.Errorf("list completions: %w", err)
	}
	defer rows.Close()

	var days []time.Time
	for rows.Next() {
		var d time.Time
		if err := rows.Scan(&d); err != nil {
			return nil, fmt.Errorf("scan completion: %w", err)
		}
		days = append(days, d)
	}
	return days, rows.Err()
}
