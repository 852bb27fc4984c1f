package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"hearthledger/internal/auth"
	"hearthledger/internal/store"
	"hearthledger/internal/websocket"
)

// BudgetHandler manages per-category monthly budgets.
type BudgetHandler struct {
	budgets *store.BudgetStore
	hub     *websocket.Hub
	logger  *slog.Logger
}

func NewBudgetHandler(bs *store.BudgetStore, hub *websocket.Hub, logger *slog.Logger) *BudgetHandler {
	return &BudgetHandler{
		budgets: bs,
		hub:     hub,
		logger:  logger.With("component", "budget"),
	}
}

// Set creates or replaces the budget for one category.
func (h *BudgetHandler) Set(w http.ResponseWriter, r *http.Request) {
	householdID := auth.HouseholdID(r.Context())

	var req struct {
		Category   string `json:"category"`
		LimitCents int64  `json:"limit_cents"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	req.Category = strings.TrimSpace(req.Category)
	if req.Category == "" {
		writeError(w, http.StatusBadRequest, "category is required")
		return
	}
	if req.LimitCents <= 0 {
		writeError(w, http.StatusBadRequest, "limit_cents must be positive")
		return
	}

	budget, err := h.budgets.Set(householdID, req.Category, req.LimitCents)
	if err != nil {
		h.logger.Error("set budget", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to set budget")
		return
	}

	if h.hub != nil {
		h.hub.Broadcast(householdID, websocket.NewMessage("budget", "updated", budget.ID, map[string]any{"category": budget.Category}))
	}
	writeJSON(w, http.StatusOK, budget)
}

// List returns each budget with the current month's spend.
func (h *BudgetHandler) List(w http.ResponseWriter, r *http.Request) {
	progress, err := h.budgets.ListProgress(auth.HouseholdID(r.Context()), time.Now().UTC())
	if err != nil {
		h.logger.Error("list budget progress", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list budgets")
		return
	}
	writeJSON(w, http.StatusOK, progress)
}

// Delete removes the budget for one category.
func (h *BudgetHandler) Delete(w http.ResponseWriter, r *http.Request) {
	householdID := auth.HouseholdID(r.Context())

	category := strings.TrimSpace(r.PathValue("category"))
	if category == "" {
		writeError(w, http.StatusBadRequest, "category is required")
		return
	}

	if err := h.budgets.Delete(householdID, category); err != nil {
		h.logger.Error("delete budget", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to delete budget")
		return
	}

	if h.hub != nil {
		h.hub.Broadcast(householdID, websocket.NewMessage("budget", "deleted", 0, map[string]any{"category": category}))
	}
	w.WriteHeader(http.StatusNoContent)
}
