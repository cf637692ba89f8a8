// Package model defines domain entities for the application.
package model

import (
	"slices"
	"strings"
	"time"
)

// EmailAdminGranted is the sentinel recorded instead of a real contact
// address when an administrator grants access directly.
const EmailAdminGranted = "admin_granted"

// UserRecord is the stored entitlement state for a single chat identity.
// Ban and temporary-access overrides are independent of the verified tier
// set and survive re-verification.
type UserRecord struct {
	UserID       string     `json:"user_id"`
	Email        string     `json:"email"`
	Tiers        []string   `json:"tiers"`
	VerifiedAt   time.Time  `json:"verified_at"`
	BanExpiry    *time.Time `json:"ban_expiry,omitempty"`
	AccessExpiry *time.Time `json:"access_expiry,omitempty"`
	GrantedBy    string     `json:"granted_by,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// IsBanned reports whether a temp ban is in effect at the given instant.
func (u *UserRecord) IsBanned(now time.Time) bool {
	return u.BanExpiry != nil && u.BanExpiry.After(now)
}

// HasTempAccess reports whether a full-catalog grant is in effect at the
// given instant.
func (u *UserRecord) HasTempAccess(now time.Time) bool {
	return u.AccessExpiry != nil && u.AccessExpiry.After(now)
}

// HasTier checks tier membership case-insensitively.
func (u *UserRecord) HasTier(name string) bool {
	return slices.ContainsFunc(u.Tiers, func(t string) bool {
		return strings.EqualFold(t, name)
	})
}

// IsAdminGranted reports whether the record was created by an admin grant
// rather than an email verification.
func (u *UserRecord) IsAdminGranted() bool {
	return u.Email == EmailAdminGranted
}
