package middleware

import (
	"log/slog"
	"net/http"

	"hearthledger/internal/auth"
	"hearthledger/internal/entitlement"
)

// RequirePro gates a route on the household's Pro entitlement. Trials and
// grace still grant access. On a storage failure the gate denies rather than
// guessing: it never fabricates pro access.
func RequirePro(queries *entitlement.Queries, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			householdID := auth.HouseholdID(r.Context())
			if householdID == 0 {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			ent, err := queries.Get(householdID)
			if err != nil {
				logger.Error("entitlement check failed", "household_id", householdID, "error", err)
				http.Error(w, "Entitlement check unavailable", http.StatusServiceUnavailable)
				return
			}
			if !ent.HasAccess() {
				http.Error(w, "Pro subscription required", http.StatusPaymentRequired)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
