package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"hearthledger/internal/auth"
	"hearthledger/internal/model"
	"hearthledger/internal/recurring"
	"hearthledger/internal/store"
	"hearthledger/internal/websocket"
)

// RecurringHandler manages recurring transaction schedules.
type RecurringHandler struct {
	store  *store.RecurringStore
	poster *recurring.Service
	hub    *websocket.Hub
	logger *slog.Logger
}

func NewRecurringHandler(rs *store.RecurringStore, poster *recurring.Service, hub *websocket.Hub, logger *slog.Logger) *RecurringHandler {
	return &RecurringHandler{
		store:  rs,
		poster: poster,
		hub:    hub,
		logger: logger.With("component", "recurring"),
	}
}

func validInterval(interval string) bool {
	switch interval {
	case model.IntervalWeekly, model.IntervalMonthly, model.IntervalYearly:
		return true
	}
	return false
}

func (h *RecurringHandler) Create(w http.ResponseWriter, r *http.Request) {
	ac, _ := auth.FromContext(r.Context())

	var req struct {
		AmountCents int64     `json:"amount_cents"`
		Category    string    `json:"category"`
		Merchant    string    `json:"merchant"`
		Note        string    `json:"note"`
		Interval    string    `json:"interval"`
		AnchorDate  time.Time `json:"anchor_date"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	req.Category = strings.TrimSpace(req.Category)
	if req.AmountCents == 0 {
		writeError(w, http.StatusBadRequest, "amount_cents must be non-zero")
		return
	}
	if req.Category == "" {
		writeError(w, http.StatusBadRequest, "category is required")
		return
	}
	if !validInterval(req.Interval) {
		writeError(w, http.StatusBadRequest, "interval must be weekly, monthly, or yearly")
		return
	}
	if req.AnchorDate.IsZero() {
		writeError(w, http.StatusBadRequest, "anchor_date is required")
		return
	}

	rec, err := h.store.Create(ac.HouseholdID, req.AmountCents, req.Category, req.Merchant, req.Note, req.Interval, req.AnchorDate.UTC())
	if err != nil {
		h.logger.Error("create recurring transaction", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to create schedule")
		return
	}

	// Occurrences already due materialize immediately rather than waiting
	// for the next background sweep.
	if _, err := h.poster.PostDue(ac.HouseholdID, time.Now().UTC()); err != nil {
		h.logger.Error("post due occurrences", "error", err)
	}

	if h.hub != nil {
		h.hub.Broadcast(ac.HouseholdID, websocket.NewMessage("recurring", "created", rec.ID, nil))
	}
	writeJSON(w, http.StatusCreated, rec)
}

func (h *RecurringHandler) List(w http.ResponseWriter, r *http.Request) {
	recs, err := h.store.ListActive(auth.HouseholdID(r.Context()))
	if err != nil {
		h.logger.Error("list recurring transactions", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list schedules")
		return
	}
	writeJSON(w, http.StatusOK, recs)
}

// SetActive pauses or resumes a schedule.
func (h *RecurringHandler) SetActive(w http.ResponseWriter, r *http.Request) {
	ac, _ := auth.FromContext(r.Context())

	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid schedule id")
		return
	}

	rec, err := h.store.GetByID(id)
	if err != nil {
		h.logger.Error("get recurring transaction", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load schedule")
		return
	}
	if rec == nil || rec.HouseholdID != ac.HouseholdID {
		writeError(w, http.StatusNotFound, "schedule not found")
		return
	}

	var req struct {
		Active bool `json:"active"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	if err := h.store.SetActive(id, req.Active); err != nil {
		h.logger.Error("set schedule active", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to update schedule")
		return
	}

	if h.hub != nil {
		h.hub.Broadcast(ac.HouseholdID, websocket.NewMessage("recurring", "updated", id, map[string]any{"active": req.Active}))
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *RecurringHandler) Delete(w http.ResponseWriter, r *http.Request) {
	ac, _ := auth.FromContext(r.Context())

	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid schedule id")
		return
	}

	rec, err := h.store.GetByID(id)
	if err != nil {
		h.logger.Error("get recurring transaction", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load schedule")
		return
	}
	if rec == nil || rec.HouseholdID != ac.HouseholdID {
		writeError(w, http.StatusNotFound, "schedule not found")
		return
	}

	if err := h.store.Delete(id); err != nil {
		h.logger.Error("delete recurring transaction", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to delete schedule")
		return
	}

	if h.hub != nil {
		h.hub.Broadcast(ac.HouseholdID, websocket.NewMessage("recurring", "deleted", id, nil))
	}
	w.WriteHeader(http.StatusNoContent)
}
