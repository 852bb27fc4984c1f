package push

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"hearthledger/internal/entitlement"
	"hearthledger/internal/model"
	"hearthledger/internal/store"
	"hearthledger/internal/streak"
)

// Trial-ending warnings start this many days before the trial expires.
const trialWarnDays = 3

// Streak reminders go out in the evening, after this hour UTC.
const streakReminderHour = 18

// Scheduler periodically checks for notifications to send: trial-ending
// warnings over the last days of a trial and evening nudges for habit streaks
// at risk of breaking. Sends are deduplicated through the sent-notification
// log so restarts never repeat a warning.
type Scheduler struct {
	mu           sync.RWMutex
	service      *Service
	push         *store.PushStore
	habits       *store.HabitStore
	entitlements *entitlement.Queries
	logger       *slog.Logger
	interval     time.Duration
	now          func() time.Time
	send         func(*model.PushSubscription, Payload) error
	cancel       context.CancelFunc
	done         chan struct{}
}

// NewScheduler creates a notification scheduler.
func NewScheduler(svc *Service, pushStore *store.PushStore, habitStore *store.HabitStore, entitlements *entitlement.Queries, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		service:      svc,
		push:         pushStore,
		habits:       habitStore,
		entitlements: entitlements,
		logger:       logger,
		interval:     60 * time.Second,
		now:          time.Now,
		send:         svc.Send,
	}
}

// Start begins the scheduler loop.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})
	s.mu.Unlock()

	go func() {
		defer close(s.done)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.tick()
			}
		}
	}()
}

// Stop gracefully stops the scheduler.
func (s *Scheduler) Stop() {
	s.mu.RLock()
	cancel := s.cancel
	done := s.done
	s.mu.RUnlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}

func (s *Scheduler) tick() {
	householdIDs, err := s.push.ListHouseholdIDs()
	if err != nil {
		s.logger.Error("list push households", "error", err)
		return
	}

	for _, hid := range householdIDs {
		s.checkTrialEnding(hid)
		s.checkStreakReminders(hid)
	}
}

// checkTrialEnding warns a household on each of the last trialWarnDays days
// of an active trial. The reference ID carries the remaining-day count, so
// every count is warned about exactly once.
func (s *Scheduler) checkTrialEnding(householdID int64) {
	now := s.now().UTC()

	ent, err := s.entitlements.Get(householdID)
	if err != nil {
		s.logger.Error("trial check: read entitlement", "household_id", householdID, "error", err)
		return
	}
	if ent.Status != entitlement.StatusTrialActive || ent.TrialEndsAt == nil {
		return
	}

	daysLeft := int(ent.TrialEndsAt.Sub(now).Hours()/24) + 1
	if daysLeft < 1 || daysLeft > trialWarnDays {
		return
	}

	refID := fmt.Sprintf("trial-%dd", daysLeft)
	sent, err := s.push.WasSent(householdID, model.NotifTypeTrialEnding, refID)
	if err != nil || sent {
		return
	}

	s.deliver(householdID, TrialEnding(daysLeft))
	s.push.RecordSent(householdID, model.NotifTypeTrialEnding, refID)
}

// checkStreakReminders nudges the household once per evening about habits
// whose streak is alive but not yet extended today (or this week, for weekly
// habits).
func (s *Scheduler) checkStreakReminders(householdID int64) {
	now := s.now().UTC()
	if now.Hour() < streakReminderHour {
		return
	}

	refID := fmt.Sprintf("streaks-%s", now.Format("2006-01-02"))
	sent, err := s.push.WasSent(householdID, model.NotifTypeStreakReminder, refID)
	if err != nil || sent {
		return
	}

	habits, err := s.habits.List(householdID)
	if err != nil {
		s.logger.Error("streak check: list habits", "household_id", householdID, "error", err)
		return
	}

	var payloads []Payload
	for _, h := range habits {
		completions, err := s.habits.Completions(h.ID, now.AddDate(0, 0, -60))
		if err != nil {
			s.logger.Error("streak check: list completions", "habit_id", h.ID, "error", err)
			continue
		}
		current := streak.Compute(h, completions, now)
		if current == 0 || streak.DoneThisPeriod(h, completions, now) {
			continue
		}
		payloads = append(payloads, StreakReminder(h, current))
	}

	for _, p := range payloads {
		s.deliver(householdID, p)
	}
	// Record even when nothing was due, so the habits are only scanned once
	// per evening.
	s.push.RecordSent(householdID, model.NotifTypeStreakReminder, refID)
}

func (s *Scheduler) deliver(householdID int64, payload Payload) {
	subs, err := s.push.ListByHousehold(householdID)
	if err != nil {
		s.logger.Error("list push subscriptions", "household_id", householdID, "error", err)
		return
	}

	for i := range subs {
		if err := s.send(&subs[i], payload); err != nil {
			if errors.Is(err, ErrExpired) {
				s.push.DeleteByEndpoint(subs[i].Endpoint)
				continue
			}
			s.logger.Warn("send push notification", "type", payload.Type, "error", err)
		}
	}
}
