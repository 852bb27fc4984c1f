package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"hearthledger/internal/auth"
	"hearthledger/internal/model"
	"hearthledger/internal/store"
	"hearthledger/internal/streak"
	"hearthledger/internal/websocket"
)

// streakLookback bounds how much completion history feeds streak computation.
const streakLookback = 400 * 24 * time.Hour

// HabitHandler manages financial habits and their completion streaks.
type HabitHandler struct {
	habits *store.HabitStore
	hub    *websocket.Hub
	logger *slog.Logger
}

func NewHabitHandler(hs *store.HabitStore, hub *websocket.Hub, logger *slog.Logger) *HabitHandler {
	return &HabitHandler{
		habits: hs,
		hub:    hub,
		logger: logger.With("component", "habit"),
	}
}

type habitWithStreak struct {
	model.Habit
	Streak int `json:"streak"`
}

func (h *HabitHandler) Create(w http.ResponseWriter, r *http.Request) {
	ac, _ := auth.FromContext(r.Context())

	var req struct {
		Name    string `json:"name"`
		Cadence string `json:"cadence"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}
	if req.Cadence != model.CadenceDaily && req.Cadence != model.CadenceWeekly {
		writeError(w, http.StatusBadRequest, "cadence must be daily or weekly")
		return
	}

	habit, err := h.habits.Create(ac.HouseholdID, ac.UserID, req.Name, req.Cadence)
	if err != nil {
		h.logger.Error("create habit", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to create habit")
		return
	}

	if h.hub != nil {
		h.hub.Broadcast(ac.HouseholdID, websocket.NewMessage("habit", "created", habit.ID, nil))
	}
	writeJSON(w, http.StatusCreated, habit)
}

// List returns the household's habits with their current streaks.
func (h *HabitHandler) List(w http.ResponseWriter, r *http.Request) {
	householdID := auth.HouseholdID(r.Context())

	habits, err := h.habits.List(householdID)
	if err != nil {
		h.logger.Error("list habits", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list habits")
		return
	}

	now := time.Now().UTC()
	out := make([]habitWithStreak, 0, len(habits))
	for _, habit := range habits {
		completions, err := h.habits.Completions(habit.ID, now.Add(-streakLookback))
		if err != nil {
			h.logger.Error("list completions", "habit_id", habit.ID, "error", err)
			writeError(w, http.StatusInternalServerError, "failed to list habits")
			return
		}
		out = append(out, habitWithStreak{
			Habit:  habit,
			Streak: streak.Compute(habit, completions, now),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

// Complete marks the habit done for today. Completing twice on the same day
// is a no-op.
func (h *HabitHandler) Complete(w http.ResponseWriter, r *http.Request) {
	ac, _ := auth.FromContext(r.Context())

	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid habit id")
		return
	}

	habit, err := h.habits.GetByID(id)
	if err != nil {
		h.logger.Error("get habit", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load habit")
		return
	}
	if habit == nil || habit.HouseholdID != ac.HouseholdID {
		writeError(w, http.StatusNotFound, "habit not found")
		return
	}

	now := time.Now().UTC()
	if err := h.habits.Complete(id, now); err != nil {
		h.logger.Error("complete habit", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to complete habit")
		return
	}

	completions, err := h.habits.Completions(id, now.Add(-streakLookback))
	if err != nil {
		h.logger.Error("list completions", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load streak")
		return
	}

	if h.hub != nil {
		h.hub.Broadcast(ac.HouseholdID, websocket.NewMessage("habit", "completed", id, nil))
	}
	writeJSON(w, http.StatusOK, habitWithStreak{
		Habit:  *habit,
		Streak: streak.Compute(*habit, completions, now),
	})
}

func (h *HabitHandler) Delete(w http.ResponseWriter, r *http.Request) {
	ac, _ := auth.FromContext(r.Context())

	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid habit id")
		return
	}

	habit, err := h.habits.GetByID(id)
	if err != nil {
		h.logger.Error("get habit", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load habit")
		return
	}
	if habit == nil || habit.HouseholdID != ac.HouseholdID {
		writeError(w, http.StatusNotFound, "habit not found")
		return
	}

	if err := h.habits.Delete(id); err != nil {
		h.logger.Error("delete habit", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to delete habit")
		return
	}

	if h.hub != nil {
		h.hub.Broadcast(ac.HouseholdID, websocket.NewMessage("habit", "deleted", id, nil))
	}
	w.WriteHeader(http.StatusNoContent)
}
