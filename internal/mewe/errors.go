package mewe

import (
	"errors"
	"fmt"
)

var (
	// ErrNotAuthenticated indicates the identify call rejected the session
	// cookies, usually because the exported cookie file is stale.
	ErrNotAuthenticated = errors.New("failed to identify user, are cookies fresh enough?")
	// ErrSessionDead indicates the upstream still refuses the session after a
	// forced refresh; the user has to export a new set of credential cookies.
	ErrSessionDead = errors.New("session died, please provide new credentials")
	// ErrNoCSRFToken indicates identify completed but no csrf-token cookie was
	// set and no previously extracted token is available.
	ErrNoCSRFToken = errors.New("failed to extract CSRF token from auth/identify")
	// ErrEmptyFeed indicates a feed page came back empty: either the end of the
	// feed was reached or the profile is private.
	ErrEmptyFeed = errors.New("empty feed, either you've reached the end or this is a private profile")
)

// StatusError is returned for upstream responses outside the 2xx range that
// are not recognized as session failures.
type StatusError struct {
	StatusCode int
	Endpoint   string
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("upstream returned %d for %s: %s", e.StatusCode, e.Endpoint, e.Body)
}
