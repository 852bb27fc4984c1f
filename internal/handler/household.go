package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"hearthledger/internal/auth"
	"hearthledger/internal/email"
	"hearthledger/internal/store"
)

// HouseholdHandler manages households, membership and invites.
type HouseholdHandler struct {
	households *store.HouseholdStore
	users      *store.UserStore
	sessions   *store.SessionStore
	email      *email.Client
	logger     *slog.Logger
}

func NewHouseholdHandler(hs *store.HouseholdStore, us *store.UserStore, ss *store.SessionStore, ec *email.Client, logger *slog.Logger) *HouseholdHandler {
	return &HouseholdHandler{
		households: hs,
		users:      us,
		sessions:   ss,
		email:      ec,
		logger:     logger.With("component", "household"),
	}
}

// Create makes a new household with the caller as its admin. The caller gets
// a fresh session scoped to the new household.
func (h *HouseholdHandler) Create(w http.ResponseWriter, r *http.Request) {
	ac, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req struct {
		Name     string `json:"name"`
		Currency string `json:"currency"`
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
	if req.Currency == "" {
		req.Currency = "USD"
	}

	household, err := h.households.Create(req.Name, req.Currency)
	if err != nil {
		h.logger.Error("create household", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to create household")
		return
	}

	if _, err := h.households.AddMember(household.ID, ac.UserID, "admin"); err != nil {
		h.logger.Error("add creator as admin", "household_id", household.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to create household")
		return
	}

	session, err := h.sessions.Create(ac.UserID, household.ID)
	if err != nil {
		h.logger.Error("create scoped session", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to create household")
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"household": household,
		"token":     session.Token,
	})
}

// Join adds the caller to the household matching the invite code.
func (h *HouseholdHandler) Join(w http.ResponseWriter, r *http.Request) {
	ac, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req struct {
		InviteCode string `json:"invite_code"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	household, err := h.households.GetByInviteCode(strings.TrimSpace(req.InviteCode))
	if err != nil {
		h.logger.Error("lookup invite code", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to join household")
		return
	}
	if household == nil {
		writeError(w, http.StatusNotFound, "invalid invite code")
		return
	}

	member, err := h.households.GetMember(household.ID, ac.UserID)
	if err != nil {
		h.logger.Error("check membership", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to join household")
		return
	}
	if member == nil {
		if _, err := h.households.AddMember(household.ID, ac.UserID, "member"); err != nil {
			h.logger.Error("add member", "household_id", household.ID, "error", err)
			writeError(w, http.StatusInternalServerError, "failed to join household")
			return
		}
	}

	session, err := h.sessions.Create(ac.UserID, household.ID)
	if err != nil {
		h.logger.Error("create scoped session", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to join household")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"household": household,
		"token":     session.Token,
	})
}

// Get returns the caller's active household.
func (h *HouseholdHandler) Get(w http.ResponseWriter, r *http.Request) {
	household, err := h.households.GetByID(auth.HouseholdID(r.Context()))
	if err != nil {
		h.logger.Error("get household", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load household")
		return
	}
	if household == nil {
		writeError(w, http.StatusNotFound, "household not found")
		return
	}
	writeJSON(w, http.StatusOK, household)
}

// ListMembers returns the household's members.
func (h *HouseholdHandler) ListMembers(w http.ResponseWriter, r *http.Request) {
	members, err := h.households.ListMembers(auth.HouseholdID(r.Context()))
	if err != nil {
		h.logger.Error("list members", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list members")
		return
	}
	writeJSON(w, http.StatusOK, members)
}

// Invite emails the household invite code to an address. Admin only.
func (h *HouseholdHandler) Invite(w http.ResponseWriter, r *http.Request) {
	ac, _ := auth.FromContext(r.Context())

	var req struct {
		Email string `json:"email"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if req.Email == "" || !strings.Contains(req.Email, "@") {
		writeError(w, http.StatusBadRequest, "valid email is required")
		return
	}

	household, err := h.households.GetByID(ac.HouseholdID)
	if err != nil || household == nil {
		writeError(w, http.StatusInternalServerError, "failed to load household")
		return
	}

	if h.email.Configured() {
		if err := h.email.SendInvite(req.Email, household.InviteCode, household.Name); err != nil {
			h.logger.Error("send invite", "error", err)
			writeError(w, http.StatusInternalServerError, "failed to send invite")
			return
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":      "sent",
		"invite_code": household.InviteCode,
	})
}

// RemoveMember removes a member from the household. Admin only; admins cannot
// remove themselves.
func (h *HouseholdHandler) RemoveMember(w http.ResponseWriter, r *http.Request) {
	ac, _ := auth.FromContext(r.Context())

	userID, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid user id")
		return
	}
	if userID == ac.UserID {
		writeError(w, http.StatusBadRequest, "cannot remove yourself")
		return
	}

	if err := h.households.RemoveMember(ac.HouseholdID, userID); err != nil {
		h.logger.Error("remove member", "user_id", userID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to remove member")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
