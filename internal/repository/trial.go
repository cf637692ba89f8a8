package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// TrialCooldownError means the user claimed a trial too recently.
type TrialCooldownError struct {
	NextEligible time.Time
}

func (e *TrialCooldownError) Error() string {
	return fmt.Sprintf("trial already claimed, next eligible at %s", e.NextEligible.Format(time.RFC3339))
}

// ClaimTrial records a trial claim for a user if the cooldown since the
// previous claim has elapsed. The check-and-write runs in a transaction
// with the claim row locked, so concurrent claims cannot both succeed.
func (r *Repository) ClaimTrial(ctx context.Context, userID string, now time.Time, cooldown time.Duration) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin trial claim: %w", err)
	}
	defer tx.Rollback(ctx)

	var claimedAt time.Time
	err = tx.QueryRow(ctx,
		`SELECT claimed_at FROM trial_claims WHERE user_id = $1 FOR UPDATE`,
		userID,
	).Scan(&claimedAt)

	switch {
	case errors.Is(err, pgx.ErrNoRows):
		// First claim for this user.
	case err != nil:
		return fmt.Errorf("failed to read trial claim: %w", err)
	default:
		nextEligible := claimedAt.Add(cooldown)
		if now.Before(nextEligible) {
			return &TrialCooldownError{NextEligible: nextEligible}
		}
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO trial_claims (user_id, claimed_at)
		VALUES ($1, $2)
		ON CONFLICT (user_id) DO UPDATE SET claimed_at = EXCLUDED.claimed_at
	`, userID, now)
	if err != nil {
		return fmt.Errorf("failed to record trial claim: %w", err)
	}

	return tx.Commit(ctx)
}

// GetTrialClaim returns the last claim time for a user, or
// ErrUserNotFound if the user never claimed a trial.
func (r *Repository) GetTrialClaim(ctx context.Context, userID string) (time.Time, error) {
	var claimedAt time.Time
	err := r.pool.QueryRow(ctx,
		`SELECT claimed_at FROM trial_claims WHERE user_id = $1`,
		userID,
	).Scan(&claimedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return time.Time{}, ErrUserNotFound
		}
		return time.Time{}, fmt.Errorf("failed to get trial claim: %w", err)
	}
	return claimedAt, nil
}
