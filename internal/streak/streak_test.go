package streak

import (
	"testing"
	"time"

	"hearthledger/internal/model"
)

var today = time.Date(2026, 3, 14, 15, 0, 0, 0, time.UTC) // a Saturday

func day(offset int) time.Time {
	return time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC).AddDate(0, 0, offset)
}

func TestComputeNoCompletions(t *testing.T) {
	h := model.Habit{Cadence: model.CadenceDaily}
	if got := Compute(h, nil, today); got != 0 {
		t.Errorf("streak = %d, want 0", got)
	}
}

func TestDailyStreakEndingToday(t *testing.T) {
	h := model.Habit{Cadence: model.CadenceDaily}
	completions := []time.Time{day(0), day(-1), day(-2)}
	if got := Compute(h, completions, today); got != 3 {
		t.Errorf("streak = %d, want 3", got)
	}
}

func TestDailyStreakEndingYesterdayStillAlive(t *testing.T) {
	h := model.Habit{Cadence: model.CadenceDaily}
	completions := []time.Time{day(-1), day(-2)}
	if got := Compute(h, completions, today); got != 2 {
		t.Errorf("streak = %d, want 2", got)
	}
}

func TestDailyStreakBrokenByGap(t *testing.T) {
	h := model.Habit{Cadence: model.CadenceDaily}
	completions := []time.Time{day(0), day(-1), day(-3), day(-4)}
	if got := Compute(h, completions, today); got != 2 {
		t.Errorf("streak = %d, want 2", got)
	}
}

func TestDailyStreakDeadAfterTwoDays(t *testing.T) {
	h := model.Habit{Cadence: model.CadenceDaily}
	completions := []time.Time{day(-2), day(-3)}
	if got := Compute(h, completions, today); got != 0 {
		t.Errorf("streak = %d, want 0", got)
	}
}

func TestDailyStreakDuplicateDays(t *testing.T) {
	h := model.Habit{Cadence: model.CadenceDaily}
	// Morning and evening of the same day count once.
	completions := []time.Time{
		day(0).Add(20 * time.Hour),
		day(0).Add(8 * time.Hour),
		day(-1),
	}
	if got := Compute(h, completions, today); got != 2 {
		t.Errorf("streak = %d, want 2", got)
	}
}

func TestWeeklyStreakConsecutiveWeeks(t *testing.T) {
	h := model.Habit{Cadence: model.CadenceWeekly}
	completions := []time.Time{day(-2), day(-9), day(-16)}
	if got := Compute(h, completions, today); got != 3 {
		t.Errorf("streak = %d, want 3", got)
	}
}

func TestWeeklyStreakSkippedWeekBreaks(t *testing.T) {
	h := model.Habit{Cadence: model.CadenceWeekly}
	completions := []time.Time{day(-2), day(-16)}
	if got := Compute(h, completions, today); got != 1 {
		t.Errorf("streak = %d, want 1", got)
	}
}

func TestWeeklyStreakAcrossYearBoundary(t *testing.T) {
	h := model.Habit{Cadence: model.CadenceWeekly}
	// Jan 2 2026 falls in the week of Mon Dec 29; Dec 26 is the week before.
	jan2 := time.Date(2026, 1, 2, 12, 0, 0, 0, time.UTC)
	dec26 := time.Date(2025, 12, 26, 12, 0, 0, 0, time.UTC)
	completions := []time.Time{jan2, dec26}
	if got := Compute(h, completions, jan2); got != 2 {
		t.Errorf("streak = %d, want 2", got)
	}
	completions = []time.Time{jan2, dec26.AddDate(0, 0, -7)}
	if got := Compute(h, completions, jan2); got != 1 {
		t.Errorf("streak = %d, want 1", got)
	}
}

func TestDoneThisPeriodDaily(t *testing.T) {
	h := model.Habit{Cadence: model.CadenceDaily}
	if !DoneThisPeriod(h, []time.Time{day(0)}, today) {
		t.Error("completion today not recognized")
	}
	if DoneThisPeriod(h, []time.Time{day(-1)}, today) {
		t.Error("yesterday's completion counted as today")
	}
	if DoneThisPeriod(h, nil, today) {
		t.Error("no completions counted as done")
	}
}

func TestDoneThisPeriodWeekly(t *testing.T) {
	h := model.Habit{Cadence: model.CadenceWeekly}
	// Saturday the 14th; Monday the 9th is the same ISO week.
	if !DoneThisPeriod(h, []time.Time{day(-5)}, today) {
		t.Error("completion earlier this week not recognized")
	}
	if DoneThisPeriod(h, []time.Time{day(-6)}, today) {
		t.Error("last week's completion counted as this week")
	}
}
