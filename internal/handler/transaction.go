package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"hearthledger/internal/auth"
	"hearthledger/internal/push"
	"hearthledger/internal/store"
	"hearthledger/internal/websocket"
)

// TransactionHandler manages the household ledger. Mutations broadcast a sync
// message to the household's connected devices, and spends that push a budget
// over its alert threshold fan out a notification.
type TransactionHandler struct {
	transactions *store.TransactionStore
	budgets      *store.BudgetStore
	pushSubs     *store.PushStore
	pushSvc      *push.Service
	hub          *websocket.Hub
	logger       *slog.Logger
}

func NewTransactionHandler(ts *store.TransactionStore, bs *store.BudgetStore, ps *store.PushStore, svc *push.Service, hub *websocket.Hub, logger *slog.Logger) *TransactionHandler {
	return &TransactionHandler{
		transactions: ts,
		budgets:      bs,
		pushSubs:     ps,
		pushSvc:      svc,
		hub:          hub,
		logger:       logger.With("component", "transaction"),
	}
}

func (h *TransactionHandler) broadcast(householdID int64, msg websocket.Message) {
	if h.hub != nil {
		h.hub.Broadcast(householdID, msg)
	}
}

type transactionRequest struct {
	AmountCents int64      `json:"amount_cents"`
	Category    string     `json:"category"`
	Merchant    string     `json:"merchant"`
	Note        string     `json:"note"`
	OccurredAt  *time.Time `json:"occurred_at"`
}

func (r *transactionRequest) validate() string {
	r.Category = strings.TrimSpace(r.Category)
	r.Merchant = strings.TrimSpace(r.Merchant)
	if r.AmountCents == 0 {
		return "amount_cents must be non-zero"
	}
	if r.Category == "" {
		return "category is required"
	}
	return ""
}

func (h *TransactionHandler) Create(w http.ResponseWriter, r *http.Request) {
	ac, _ := auth.FromContext(r.Context())

	var req transactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if msg := req.validate(); msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}

	occurredAt := time.Now().UTC()
	if req.OccurredAt != nil {
		occurredAt = req.OccurredAt.UTC()
	}

	txn, err := h.transactions.Create(ac.HouseholdID, &ac.UserID, req.AmountCents, req.Category, req.Merchant, req.Note, occurredAt)
	if err != nil {
		h.logger.Error("create transaction", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to create transaction")
		return
	}

	h.broadcast(ac.HouseholdID, websocket.NewMessage("transaction", "created", txn.ID, map[string]any{"category": txn.Category}))
	go h.checkBudgetAlert(ac.HouseholdID, txn.Category)

	writeJSON(w, http.StatusCreated, txn)
}

func (h *TransactionHandler) List(w http.ResponseWriter, r *http.Request) {
	householdID := auth.HouseholdID(r.Context())

	to := time.Now().UTC()
	from := to.AddDate(0, -1, 0)
	if v := r.URL.Query().Get("from"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid from timestamp")
			return
		}
		from = t
	}
	if v := r.URL.Query().Get("to"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid to timestamp")
			return
		}
		to = t
	}

	txns, err := h.transactions.ListForRange(householdID, from, to)
	if err != nil {
		h.logger.Error("list transactions", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list transactions")
		return
	}
	writeJSON(w, http.StatusOK, txns)
}

func (h *TransactionHandler) Update(w http.ResponseWriter, r *http.Request) {
	ac, _ := auth.FromContext(r.Context())

	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid transaction id")
		return
	}
	existing, err := h.transactions.GetByID(id)
	if err != nil {
		h.logger.Error("get transaction", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load transaction")
		return
	}
	if existing == nil || existing.HouseholdID != ac.HouseholdID {
		writeError(w, http.StatusNotFound, "transaction not found")
		return
	}

	var req transactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if msg := req.validate(); msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}

	occurredAt := existing.OccurredAt
	if req.OccurredAt != nil {
		occurredAt = req.OccurredAt.UTC()
	}

	txn, err := h.transactions.Update(id, req.AmountCents, req.Category, req.Merchant, req.Note, occurredAt)
	if err != nil {
		h.logger.Error("update transaction", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to update transaction")
		return
	}

	h.broadcast(ac.HouseholdID, websocket.NewMessage("transaction", "updated", txn.ID, nil))
	go h.checkBudgetAlert(ac.HouseholdID, txn.Category)

	writeJSON(w, http.StatusOK, txn)
}

func (h *TransactionHandler) Delete(w http.ResponseWriter, r *http.Request) {
	ac, _ := auth.FromContext(r.Context())

	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid transaction id")
		return
	}
	existing, err := h.transactions.GetByID(id)
	if err != nil {
		h.logger.Error("get transaction", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load transaction")
		return
	}
	if existing == nil || existing.HouseholdID != ac.HouseholdID {
		writeError(w, http.StatusNotFound, "transaction not found")
		return
	}

	if err := h.transactions.Delete(id); err != nil {
		h.logger.Error("delete transaction", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to delete transaction")
		return
	}

	h.broadcast(ac.HouseholdID, websocket.NewMessage("transaction", "deleted", id, nil))
	w.WriteHeader(http.StatusNoContent)
}

// alertThresholdPct is the share of a budget that triggers a push alert.
const alertThresholdPct = 90

// checkBudgetAlert notifies the household when this month's spend in a
// category crosses the alert threshold. Runs off the request path; a failed
// notification never fails the mutation that triggered it.
func (h *TransactionHandler) checkBudgetAlert(householdID int64, category string) {
	if h.pushSvc == nil || !h.pushSvc.Configured() {
		return
	}

	progress, err := h.budgets.ListProgress(householdID, time.Now().UTC())
	if err != nil {
		h.logger.Error("budget progress for alert", "error", err)
		return
	}

	for _, p := range progress {
		if p.Category != category || p.LimitCents <= 0 {
			continue
		}
		if p.SpentCents*100 < p.LimitCents*alertThresholdPct {
			continue
		}

		subs, err := h.pushSubs.ListByHousehold(householdID)
		if err != nil {
			h.logger.Error("list push subscriptions", "error", err)
			return
		}
		if len(subs) == 0 {
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		expired, err := h.pushSvc.Fanout(ctx, subs, push.BudgetAlert(p))
		if err != nil {
			h.logger.Error("budget alert fanout", "error", err)
		}
		for _, endpoint := range expired {
			if err := h.pushSubs.DeleteByEndpoint(endpoint); err != nil {
				h.logger.Error("prune expired subscription", "error", err)
			}
		}
		return
	}
}
