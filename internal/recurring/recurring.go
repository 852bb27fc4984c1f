// Package recurring expands recurring-transaction schedules and materializes
// due occurrences as real transactions. PostDue runs when a schedule is
// created and from a periodic sweep in main, so the ledger can lag reality by
// at most one sweep interval.
package recurring

import (
	"fmt"
	"log/slog"
	"time"

	"hearthledger/internal/model"
	"hearthledger/internal/store"
)

// Occurrences returns the due dates of a schedule up to and including the
// until day, excluding anything already posted.
func Occurrences(r model.RecurringTransaction, until time.Time) []time.Time {
	until = startOfDay(until)

	var due []time.Time
	for n := 0; ; n++ {
		occ := nthOccurrence(r, n)
		if occ.After(until) {
			break
		}
		if r.LastPostedOn != nil && !occ.After(startOfDay(*r.LastPostedOn)) {
			continue
		}
		due = append(due, occ)
	}
	return due
}

func nthOccurrence(r model.RecurringTransaction, n int) time.Time {
	anchor := startOfDay(r.AnchorDate)
	switch r.Interval {
	case model.IntervalWeekly:
		return anchor.AddDate(0, 0, 7*n)
	case model.IntervalYearly:
		return anchor.AddDate(n, 0, 0)
	default:
		return addMonthsClamped(anchor, n)
	}
}

// addMonthsClamped advances by whole months, clamping to the last day of the
// target month so a schedule anchored on the 31st fires on Feb 28 instead of
// rolling into March.
func addMonthsClamped(anchor time.Time, months int) time.Time {
	firstOfTarget := time.Date(anchor.Year(), anchor.Month(), 1, 0, 0, 0, 0, anchor.Location()).AddDate(0, months, 0)
	lastDay := firstOfTarget.AddDate(0, 1, -1).Day()
	day := anchor.Day()
	if day > lastDay {
		day = lastDay
	}
	return time.Date(firstOfTarget.Year(), firstOfTarget.Month(), day, 0, 0, 0, 0, anchor.Location())
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// Service posts due recurring occurrences into the transaction ledger.
type Service struct {
	recurring *store.RecurringStore
	txns      *store.TransactionStore
	logger    *slog.Logger
}

func NewService(rs *store.RecurringStore, ts *store.TransactionStore, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{recurring: rs, txns: ts, logger: logger}
}

// PostDue materializes every due occurrence of the household's active
// schedules as transactions and advances each schedule's high-water mark.
// Returns the number of transactions posted.
func (s *Service) PostDue(householdID int64, now time.Time) (int, error) {
	schedules, err := s.recurring.ListActive(householdID)
	if err != nil {
		return 0, fmt.Errorf("list schedules: %w", err)
	}

	posted := 0
	for _, r := range schedules {
		due := Occurrences(r, now)
		for _, occ := range due {
			_, err := s.txns.Create(householdID, nil, r.AmountCents, r.Category, r.Merchant, r.Note, occ)
			if err != nil {
				return posted, fmt.Errorf("post occurrence: %w", err)
			}
			posted++
		}
		if len(due) > 0 {
			last := due[len(due)-1]
			if err := s.recurring.MarkPosted(r.ID, last); err != nil {
				return posted, fmt.Errorf("advance schedule: %w", err)
			}
			s.logger.Debug("posted recurring transactions",
				"household_id", householdID, "schedule_id", r.ID, "count", len(due))
		}
	}
	return posted, nil
}

// PostDueAll runs PostDue for every household with an active schedule. A
// failure in one household is logged and does not stop the sweep.
func (s *Service) PostDueAll(now time.Time) (int, error) {
	ids, err := s.recurring.ListActiveHouseholds()
	if err != nil {
		return 0, fmt.Errorf("list households: %w", err)
	}

	posted := 0
	for _, id := range ids {
		n, err := s.PostDue(id, now)
		posted += n
		if err != nil {
			s.logger.Error("recurring sweep failed for household", "household_id", id, "error", err)
		}
	}
	return posted, nil
}
