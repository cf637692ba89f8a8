// Package policy computes access decisions from stored entitlement state.
// Evaluation is pure: the same record and clock always produce the same
// decision, which keeps the precedence rules testable in isolation.
package policy

import (
	"fmt"
	"time"

	"github.com/tiergate/tiergate/internal/model"
)

// Mode is the effective file-visibility mode for a user at an instant.
type Mode string

const (
	// ModeDenied blocks all downloads while a temp ban is active.
	ModeDenied Mode = "denied"
	// ModeFullCatalog grants every file regardless of tiers.
	ModeFullCatalog Mode = "full_catalog"
	// ModeTierScoped grants the files of the user's verified tiers.
	ModeTierScoped Mode = "tier_scoped"
	// ModeUnverified means no record, or a record with no active grant.
	ModeUnverified Mode = "unverified"
)

// Remaining is a display breakdown of the time left on an override.
type Remaining struct {
	Days    int `json:"days"`
	Hours   int `json:"hours"`
	Minutes int `json:"minutes"`
	Seconds int `json:"seconds"`
}

// Breakdown decomposes a duration into days/hours/minutes/seconds.
// Negative durations collapse to zero.
func Breakdown(d time.Duration) Remaining {
	if d < 0 {
		d = 0
	}
	total := int(d / time.Second)
	return Remaining{
		Days:    total / 86400,
		Hours:   (total % 86400) / 3600,
		Minutes: (total % 3600) / 60,
		Seconds: total % 60,
	}
}

func (r Remaining) String() string {
	return fmt.Sprintf("%dd %dh %dm %ds", r.Days, r.Hours, r.Minutes, r.Seconds)
}

// Decision is the result of evaluating a user record at an instant.
// Expiry timestamps are carried raw for machine use alongside the
// display breakdown.
type Decision struct {
	Mode            Mode       `json:"mode"`
	Tiers           []string   `json:"tiers,omitempty"`
	BanExpiry       *time.Time `json:"ban_expiry,omitempty"`
	BanRemaining    *Remaining `json:"ban_remaining,omitempty"`
	AccessExpiry    *time.Time `json:"access_expiry,omitempty"`
	AccessRemaining *Remaining `json:"access_remaining,omitempty"`
}

// Evaluate computes the access decision for a record at the given instant.
// Precedence is strict: an active ban dominates an active full-catalog
// grant, which dominates tier scoping. A nil record is unverified.
func Evaluate(rec *model.UserRecord, now time.Time) Decision {
	if rec == nil {
		return Decision{Mode: ModeUnverified}
	}

	if rec.IsBanned(now) {
		remaining := Breakdown(rec.BanExpiry.Sub(now))
		return Decision{
			Mode:         ModeDenied,
			BanExpiry:    rec.BanExpiry,
			BanRemaining: &remaining,
		}
	}

	if rec.HasTempAccess(now) {
		remaining := Breakdown(rec.AccessExpiry.Sub(now))
		return Decision{
			Mode:            ModeFullCatalog,
			AccessExpiry:    rec.AccessExpiry,
			AccessRemaining: &remaining,
		}
	}

	if len(rec.Tiers) > 0 {
		return Decision{
			Mode:  ModeTierScoped,
			Tiers: rec.Tiers,
		}
	}

	return Decision{Mode: ModeUnverified}
}
