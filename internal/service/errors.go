// Package service provides business logic for the application.
package service

import (
	"errors"
	"fmt"
	"time"

	"github.com/tiergate/tiergate/internal/policy"
)

// Service errors.
var (
	ErrTryAgain        = errors.New("verification took too long, try again")
	ErrUnverified      = errors.New("user is not verified")
	ErrFileNotFound    = errors.New("file not found in your catalog")
	ErrInvalidDuration = errors.New("duration must be a positive number of days")
	ErrRateLimited     = errors.New("too many verification attempts")
	ErrEmptyChannel    = errors.New("log channel id is empty")
)

// AccessDeniedError reports an active temp ban together with the time
// left on it, so callers can render the countdown.
type AccessDeniedError struct {
	Expiry    time.Time
	Remaining policy.Remaining
}

func (e *AccessDeniedError) Error() string {
	return fmt.Sprintf("access denied for another %s", e.Remaining)
}
