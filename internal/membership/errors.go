package membership

import (
	"errors"
	"fmt"
)

// Sentinel errors for membership resolution.
var (
	// ErrNotConfigured means the access token or campaign ID is missing
	// and cannot be recovered for the rest of the process lifetime.
	ErrNotConfigured = errors.New("membership service not configured")
	// ErrBadCredentials means the subscription API rejected the token.
	ErrBadCredentials = errors.New("subscription API rejected credentials")
	// ErrNotFound means the email matched no member on any page.
	ErrNotFound = errors.New("email not found among members")
	// ErrNoTiers means the member matched and is eligible but has no
	// resolvable tier titles.
	ErrNoTiers = errors.New("member has no entitled tiers")
)

// InactiveError means the member matched but their subscription status
// does not grant access.
type InactiveError struct {
	Status string
}

func (e *InactiveError) Error() string {
	return fmt.Sprintf("membership inactive: status %q", e.Status)
}

// APIError is any non-200 response from the subscription API other
// than a credentials rejection.
type APIError struct {
	StatusCode int
}

func (e *APIError) Error() string {
	return fmt.Sprintf("subscription API error: status %d", e.StatusCode)
}
