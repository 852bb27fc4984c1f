// Package streak computes habit streaks from completion history. All
// functions are pure against a supplied "today" so tests never depend on the
// wall clock.
package streak

import (
	"time"

	"hearthledger/internal/model"
)

// Compute returns the current streak length for a habit given its completion
// days, newest first. A daily streak counts consecutive days; missing today
// does not break the streak until the day is over, so a run ending yesterday
// still counts. A weekly streak counts consecutive ISO weeks with at least
// one completion.
func Compute(habit model.Habit, completions []time.Time, today time.Time) int {
	if len(completions) == 0 {
		return 0
	}
	if habit.Cadence == model.CadenceWeekly {
		return weeklyStreak(completions, today)
	}
	return dailyStreak(completions, today)
}

func dailyStreak(completions []time.Time, today time.Time) int {
	today = startOfDay(today)
	latest := startOfDay(completions[0])

	// Streak is alive if the latest completion is today or yesterday.
	if latest.Before(today.AddDate(0, 0, -1)) {
		return 0
	}

	streak := 1
	prev := latest
	for _, c := range completions[1:] {
		day := startOfDay(c)
		if day.Equal(prev) {
			continue
		}
		if !day.Equal(prev.AddDate(0, 0, -1)) {
			break
		}
		streak++
		prev = day
	}
	return streak
}

func weeklyStreak(completions []time.Time, today time.Time) int {
	thisWeek := startOfWeek(today)
	latest := startOfWeek(completions[0])

	// Alive if the latest completion falls in this week or the previous one.
	if latest.Before(thisWeek.AddDate(0, 0, -7)) {
		return 0
	}

	streak := 1
	prev := latest
	for _, c := range completions[1:] {
		week := startOfWeek(c)
		if week.Equal(prev) {
			continue
		}
		if !week.Equal(prev.AddDate(0, 0, -7)) {
			break
		}
		streak++
		prev = week
	}
	return streak
}

// DoneThisPeriod reports whether the habit has a completion in the current
// period: today for daily habits, this ISO week for weekly ones. Completions
// are newest first.
func DoneThisPeriod(habit model.Habit, completions []time.Time, today time.Time) bool {
	if len(completions) == 0 {
		return false
	}
	if habit.Cadence == model.CadenceWeekly {
		return !startOfWeek(completions[0]).Before(startOfWeek(today))
	}
	return !startOfDay(completions[0]).Before(startOfDay(today))
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// startOfWeek returns the Monday of t's week.
func startOfWeek(t time.Time) time.Time {
	d := startOfDay(t)
	offset := (int(d.Weekday()) + 6) % 7
	return d.AddDate(0, 0, -offset)
}
