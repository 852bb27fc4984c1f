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

const maxCodeAttempts = 5

// AuthHandler implements passwordless sign-in with emailed one-time codes.
type AuthHandler struct {
	users      *store.UserStore
	loginCodes *store.LoginCodeStore
	sessions   *store.SessionStore
	households *store.HouseholdStore
	email      *email.Client
	logger     *slog.Logger
}

func NewAuthHandler(us *store.UserStore, lcs *store.LoginCodeStore, ss *store.SessionStore, hs *store.HouseholdStore, ec *email.Client, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{
		users:      us,
		loginCodes: lcs,
		sessions:   ss,
		households: hs,
		email:      ec,
		logger:     logger.With("component", "auth"),
	}
}

// RequestCode emails a one-time sign-in code. It answers 200 whether or not
// the address is known, so it can't be used to probe for accounts.
func (h *AuthHandler) RequestCode(w http.ResponseWriter, r *http.Request) {
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

	code, err := h.loginCodes.Create(req.Email)
	if err != nil {
		h.logger.Error("create login code", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to create sign-in code")
		return
	}

	if h.email.Configured() {
		if err := h.email.SendLoginCode(req.Email, code.Code); err != nil {
			h.logger.Error("send login code", "error", err)
			writeError(w, http.StatusInternalServerError, "failed to send sign-in code")
			return
		}
	} else {
		// Local development without an email provider
		h.logger.Info("login code issued", "email", req.Email, "code", code.Code)
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "sent"})
}

// Verify exchanges an emailed code for a session token, creating the user
// record on first sign-in.
func (h *AuthHandler) Verify(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
		Code  string `json:"code"`
		Name  string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	req.Code = strings.TrimSpace(req.Code)
	if req.Email == "" || req.Code == "" {
		writeError(w, http.StatusBadRequest, "email and code are required")
		return
	}

	code, err := h.loginCodes.GetByEmailAndCode(req.Email, req.Code)
	if err != nil {
		h.logger.Error("lookup login code", "error", err)
		writeError(w, http.StatusInternalServerError, "verification failed")
		return
	}
	if code == nil {
		h.recordFailedAttempt(req.Email)
		writeError(w, http.StatusUnauthorized, "invalid or expired code")
		return
	}
	if code.Attempts >= maxCodeAttempts {
		writeError(w, http.StatusUnauthorized, "too many attempts, request a new code")
		return
	}

	if err := h.loginCodes.MarkUsed(code.ID); err != nil {
		h.logger.Error("mark code used", "error", err)
		writeError(w, http.StatusInternalServerError, "verification failed")
		return
	}

	user, err := h.users.GetByEmail(req.Email)
	if err != nil {
		h.logger.Error("get user", "error", err)
		writeError(w, http.StatusInternalServerError, "verification failed")
		return
	}
	if user == nil {
		name := strings.TrimSpace(req.Name)
		if name == "" {
			name = req.Email[:strings.Index(req.Email, "@")]
		}
		user, err = h.users.Create(req.Email, name)
		if err != nil {
			h.logger.Error("create user", "error", err)
			writeError(w, http.StatusInternalServerError, "verification failed")
			return
		}
	}

	// A user signing in before joining any household gets a session without
	// a household scope; household routes reject it until they create or join one.
	var householdID int64
	households, err := h.households.ListHouseholdsForUser(user.ID)
	if err != nil {
		h.logger.Error("list households", "error", err)
		writeError(w, http.StatusInternalServerError, "verification failed")
		return
	}
	if len(households) > 0 {
		householdID = households[0].ID
	}

	session, err := h.sessions.Create(user.ID, householdID)
	if err != nil {
		h.logger.Error("create session", "error", err)
		writeError(w, http.StatusInternalServerError, "verification failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"token": session.Token,
		"user":  user,
	})
}

// Logout deletes the current session.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	token := bearerToken(r)
	if token == "" {
		if cookie, err := r.Cookie("hearthledger_session"); err == nil {
			token = cookie.Value
		}
	}
	if token != "" {
		if err := h.sessions.Delete(token); err != nil {
			h.logger.Error("delete session", "error", err)
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "signed out"})
}

// Me returns the signed-in user and their active household scope.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	ac, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	user, err := h.users.GetByID(ac.UserID)
	if err != nil || user == nil {
		writeError(w, http.StatusInternalServerError, "failed to load user")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"user":         user,
		"household_id": ac.HouseholdID,
		"role":         ac.Role,
	})
}

func (h *AuthHandler) recordFailedAttempt(emailAddr string) {
	// Attempts are tracked per issued code; a miss against a different code
	// burns attempts on the most recent one for the address.
	latest, err := h.loginCodes.GetLatestForEmail(emailAddr)
	if err != nil || latest == nil {
		return
	}
	if _, err := h.loginCodes.IncrementAttempts(latest.ID); err != nil {
		h.logger.Error("increment attempts", "error", err)
	}
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if after, ok := strings.CutPrefix(header, "Bearer "); ok {
		return after
	}
	return ""
}
