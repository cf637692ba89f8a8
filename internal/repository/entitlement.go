package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/tiergate/tiergate/internal/model"
)

// Common errors for entitlement repository operations.
var (
	ErrUserNotFound = errors.New("user record not found")
)

// GetUser retrieves the entitlement record for a chat identity.
// An absent row is ErrUserNotFound; a scan failure is surfaced as a
// real error, never collapsed into "no record".
func (r *Repository) GetUser(ctx context.Context, userID string) (*model.UserRecord, error) {
	query := `
		SELECT user_id, email, tiers, verified_at, ban_expiry, access_expiry, granted_by, created_at, updated_at
		FROM entitlements
		WHERE user_id = $1
	`

	var rec model.UserRecord
	err := r.pool.QueryRow(ctx, query, userID).Scan(
		&rec.UserID,
		&rec.Email,
		&rec.Tiers,
		&rec.VerifiedAt,
		&rec.BanExpiry,
		&rec.AccessExpiry,
		&rec.GrantedBy,
		&rec.CreatedAt,
		&rec.UpdatedAt,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user record: %w", err)
	}

	return &rec, nil
}

// UpsertVerification records the outcome of a successful verification or
// admin grant. Only the verification fields are written; ban_expiry and
// access_expiry survive untouched, so overrides outlive re-verification.
func (r *Repository) UpsertVerification(ctx context.Context, userID, email string, tiers []string, verifiedAt time.Time, grantedBy string) (*model.UserRecord, error) {
	query := `
		INSERT INTO entitlements (user_id, email, tiers, verified_at, granted_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, now(), now())
		ON CONFLICT (user_id) DO UPDATE SET
			email       = EXCLUDED.email,
			tiers       = EXCLUDED.tiers,
			verified_at = EXCLUDED.verified_at,
			granted_by  = EXCLUDED.granted_by,
			updated_at  = now()
		RETURNING user_id, email, tiers, verified_at, ban_expiry, access_expiry, granted_by, created_at, updated_at
	`

	if tiers == nil {
		tiers = []string{}
	}

	var rec model.UserRecord
	err := r.pool.QueryRow(ctx, query, userID, email, tiers, verifiedAt, grantedBy).Scan(
		&rec.UserID,
		&rec.Email,
		&rec.Tiers,
		&rec.VerifiedAt,
		&rec.BanExpiry,
		&rec.AccessExpiry,
		&rec.GrantedBy,
		&rec.CreatedAt,
		&rec.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert verification: %w", err)
	}

	return &rec, nil
}

// SetBan sets a ban expiry on a user, creating a bare record if the
// user was never verified. Verification fields are left alone.
func (r *Repository) SetBan(ctx context.Context, userID string, expiry time.Time) error {
	query := `
		INSERT INTO entitlements (user_id, email, tiers, verified_at, ban_expiry, created_at, updated_at)
		VALUES ($1, '', '{}', $2, $3, now(), now())
		ON CONFLICT (user_id) DO UPDATE SET
			ban_expiry = EXCLUDED.ban_expiry,
			updated_at = now()
	`

	if _, err := r.pool.Exec(ctx, query, userID, time.Time{}, expiry); err != nil {
		return fmt.Errorf("failed to set ban: %w", err)
	}
	return nil
}

// ClearBan removes any ban from a user. Clearing a user with no record
// or no active ban is ErrUserNotFound so callers can report it.
func (r *Repository) ClearBan(ctx context.Context, userID string) error {
	query := `
		UPDATE entitlements
		SET ban_expiry = NULL, updated_at = now()
		WHERE user_id = $1 AND ban_expiry IS NOT NULL
	`

	result, err := r.pool.Exec(ctx, query, userID)
	if err != nil {
		return fmt.Errorf("failed to clear ban: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

// SetTempAccess sets a full-catalog access expiry on a user, creating a
// bare record if necessary.
func (r *Repository) SetTempAccess(ctx context.Context, userID string, expiry time.Time) error {
	query := `
		INSERT INTO entitlements (user_id, email, tiers, verified_at, access_expiry, created_at, updated_at)
		VALUES ($1, '', '{}', $2, $3, now(), now())
		ON CONFLICT (user_id) DO UPDATE SET
			access_expiry = EXCLUDED.access_expiry,
			updated_at    = now()
	`

	if _, err := r.pool.Exec(ctx, query, userID, time.Time{}, expiry); err != nil {
		return fmt.Errorf("failed to set temp access: %w", err)
	}
	return nil
}
