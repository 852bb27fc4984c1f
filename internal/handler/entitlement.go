package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"hearthledger/internal/auth"
	"hearthledger/internal/entitlement"
)

// EntitlementHandler exposes the household's plan state and the trial upgrade.
type EntitlementHandler struct {
	engine  *entitlement.Engine
	queries *entitlement.Queries
	logger  *slog.Logger
}

func NewEntitlementHandler(engine *entitlement.Engine, queries *entitlement.Queries, logger *slog.Logger) *EntitlementHandler {
	return &EntitlementHandler{
		engine:  engine,
		queries: queries,
		logger:  logger.With("component", "entitlement"),
	}
}

// Get returns the household's effective entitlement. Reads opportunistically
// reconcile a stored status that has lapsed; when that write loses a race the
// derived view is served unchanged.
func (h *EntitlementHandler) Get(w http.ResponseWriter, r *http.Request) {
	householdID := auth.HouseholdID(r.Context())

	ent, err := h.engine.ExpireIfDue(r.Context(), householdID)
	if err != nil {
		if errors.Is(err, entitlement.ErrStorageUnavailable) {
			writeError(w, http.StatusServiceUnavailable, "entitlement state unavailable")
			return
		}
		// Reconciliation lost a concurrent update; the read-only view is
		// still authoritative.
		ent, err = h.queries.Get(householdID)
		if err != nil {
			h.logger.Error("get entitlement", "household_id", householdID, "error", err)
			writeError(w, http.StatusServiceUnavailable, "entitlement state unavailable")
			return
		}
	}

	writeJSON(w, http.StatusOK, ent)
}

// StartTrial begins the household's one free trial.
func (h *EntitlementHandler) StartTrial(w http.ResponseWriter, r *http.Request) {
	ac, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	ent, err := h.engine.StartTrial(r.Context(), ac.HouseholdID, ac.UserID)
	if err != nil {
		switch {
		case errors.Is(err, entitlement.ErrPermissionDenied):
			writeError(w, http.StatusForbidden, "only household members can start a trial")
		case errors.Is(err, entitlement.ErrTrialUsed):
			writeError(w, http.StatusConflict, "this household has already used its trial")
		case errors.Is(err, entitlement.ErrAlreadyPro):
			writeError(w, http.StatusConflict, "household already has an active subscription")
		case errors.Is(err, entitlement.ErrUpdateConflict):
			writeError(w, http.StatusConflict, "entitlement was updated concurrently, try again")
		case errors.Is(err, entitlement.ErrStorageUnavailable):
			writeError(w, http.StatusServiceUnavailable, "entitlement state unavailable")
		default:
			h.logger.Error("start trial", "household_id", ac.HouseholdID, "error", err)
			writeError(w, http.StatusInternalServerError, "failed to start trial")
		}
		return
	}

	h.logger.Info("trial started", "household_id", ac.HouseholdID, "ends_at", ent.TrialEndsAt)
	writeJSON(w, http.StatusCreated, ent)
}
