// Package auth carries the authenticated request identity through context.
// A session binds a user to exactly one household, so every handler
// downstream of the auth middleware can read both without another lookup.
package auth

import "context"

type ctxKey int

const authKey ctxKey = iota

// AuthContext identifies the caller for the duration of one request.
// HouseholdID is 0 for a user who has not yet created or joined a household;
// household-scoped routes reject such sessions.
type AuthContext struct {
	UserID      int64
	HouseholdID int64
	Role        string
	SessionID   int64
}

func WithAuth(ctx context.Context, ac AuthContext) context.Context {
	return context.WithValue(ctx, authKey, ac)
}

func FromContext(ctx context.Context) (AuthContext, bool) {
	ac, ok := ctx.Value(authKey).(AuthContext)
	return ac, ok
}

// HouseholdID returns the caller's household scope, or 0 when the request is
// unauthenticated or unscoped.
func HouseholdID(ctx context.Context) int64 {
	ac, ok := FromContext(ctx)
	if !ok {
		return 0
	}
	return ac.HouseholdID
}

// UserID returns the caller's user ID, or 0 when unauthenticated.
func UserID(ctx context.Context) int64 {
	ac, ok := FromContext(ctx)
	if !ok {
		return 0
	}
	return ac.UserID
}

// IsAdmin reports whether the caller holds the admin role in their household.
func IsAdmin(ctx context.Context) bool {
	ac, ok := FromContext(ctx)
	if !ok {
		return false
	}
	return ac.Role == "admin"
}
