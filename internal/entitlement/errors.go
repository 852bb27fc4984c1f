package entitlement

import "errors"

// Every guarded transition fails with one of these sentinels so callers can
// branch with errors.Is instead of matching message text.
var (
	// ErrPermissionDenied means the acting user is not a member of the household.
	ErrPermissionDenied = errors.New("not a household member")

	// ErrAlreadyPro means a trial was requested while the household already
	// has Pro access (active subscription or grace window).
	ErrAlreadyPro = errors.New("household already has pro access")

	// ErrTrialUsed means the household's one-time trial has already been started.
	ErrTrialUsed = errors.New("trial already used")

	// ErrInvalidRenewalWindow means a purchase tried to move the renewal
	// deadline backward.
	ErrInvalidRenewalWindow = errors.New("renewal period end precedes current period end")

	// ErrUpdateConflict means the bounded optimistic-retry budget was
	// exhausted without winning a conditional write.
	ErrUpdateConflict = errors.New("concurrent entitlement update conflict")

	// ErrVersionConflict is returned by Store implementations when the
	// expected version token is stale. The engine retries on it; it never
	// reaches callers.
	ErrVersionConflict = errors.New("stale entitlement version")

	// ErrStorageUnavailable wraps entitlement store read/write failures.
	ErrStorageUnavailable = errors.New("entitlement storage unavailable")
)
