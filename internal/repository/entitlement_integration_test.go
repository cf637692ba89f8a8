//go:build integration

package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/tiergate/tiergate/internal/testutil"
)

func TestIntegrationEntitlements_GetUser_NotFound(t *testing.T) {
	ctx, repo := newEntitlementTestEnv(t)

	_, err := repo.GetUser(ctx, "nonexistent-user")
	if !errors.Is(err, ErrUserNotFound) {
		t.Errorf("Expected ErrUserNotFound, got: %v", err)
	}
}

func TestIntegrationEntitlements_UpsertVerification(t *testing.T) {
	ctx, repo := newEntitlementTestEnv(t)

	userID := testutil.UniqueID("user")
	verifiedAt := time.Now().UTC().Truncate(time.Second)

	rec, err := repo.UpsertVerification(ctx, userID, "patron@example.com", []string{"Advanced Mage"}, verifiedAt, "")
	if err != nil {
		t.Fatalf("UpsertVerification failed: %v", err)
	}

	if rec.Email != "patron@example.com" {
		t.Errorf("Email mismatch: got %q", rec.Email)
	}
	if len(rec.Tiers) != 1 || rec.Tiers[0] != "Advanced Mage" {
		t.Errorf("Tiers mismatch: got %v", rec.Tiers)
	}
	if !rec.VerifiedAt.Equal(verifiedAt) {
		t.Errorf("VerifiedAt mismatch: got %v, want %v", rec.VerifiedAt, verifiedAt)
	}

	retrieved, err := repo.GetUser(ctx, userID)
	if err != nil {
		t.Fatalf("GetUser failed: %v", err)
	}
	if retrieved.Email != rec.Email {
		t.Errorf("Email mismatch after read: got %q", retrieved.Email)
	}
}

func TestIntegrationEntitlements_ReverifyPreservesOverrides(t *testing.T) {
	ctx, repo := newEntitlementTestEnv(t)

	userID := testutil.UniqueID("user")
	banExpiry := time.Now().UTC().Add(48 * time.Hour).Truncate(time.Second)
	accessExpiry := time.Now().UTC().Add(72 * time.Hour).Truncate(time.Second)

	if _, err := repo.UpsertVerification(ctx, userID, "patron@example.com", []string{"Advanced Mage"}, time.Now().UTC(), ""); err != nil {
		t.Fatalf("UpsertVerification failed: %v", err)
	}
	if err := repo.SetBan(ctx, userID, banExpiry); err != nil {
		t.Fatalf("SetBan failed: %v", err)
	}
	if err := repo.SetTempAccess(ctx, userID, accessExpiry); err != nil {
		t.Fatalf("SetTempAccess failed: %v", err)
	}

	// Re-verify with a different tier set.
	rec, err := repo.UpsertVerification(ctx, userID, "patron@example.com", []string{"Advanced Warlock"}, time.Now().UTC(), "")
	if err != nil {
		t.Fatalf("UpsertVerification (second) failed: %v", err)
	}

	if rec.BanExpiry == nil || !rec.BanExpiry.Equal(banExpiry) {
		t.Errorf("BanExpiry not preserved: got %v, want %v", rec.BanExpiry, banExpiry)
	}
	if rec.AccessExpiry == nil || !rec.AccessExpiry.Equal(accessExpiry) {
		t.Errorf("AccessExpiry not preserved: got %v, want %v", rec.AccessExpiry, accessExpiry)
	}
	if len(rec.Tiers) != 1 || rec.Tiers[0] != "Advanced Warlock" {
		t.Errorf("Tiers not replaced: got %v", rec.Tiers)
	}
}

func TestIntegrationEntitlements_SetBan_CreatesBareRecord(t *testing.T) {
	ctx, repo := newEntitlementTestEnv(t)

	userID := testutil.UniqueID("user")
	expiry := time.Now().UTC().Add(24 * time.Hour).Truncate(time.Second)

	if err := repo.SetBan(ctx, userID, expiry); err != nil {
		t.Fatalf("SetBan failed: %v", err)
	}

	rec, err := repo.GetUser(ctx, userID)
	if err != nil {
		t.Fatalf("GetUser failed: %v", err)
	}
	if rec.BanExpiry == nil || !rec.BanExpiry.Equal(expiry) {
		t.Errorf("BanExpiry mismatch: got %v, want %v", rec.BanExpiry, expiry)
	}
	if rec.Email != "" || len(rec.Tiers) != 0 {
		t.Errorf("Expected bare record, got email %q, tiers %v", rec.Email, rec.Tiers)
	}
}

func TestIntegrationEntitlements_ClearBan(t *testing.T) {
	ctx, repo := newEntitlementTestEnv(t)

	userID := testutil.UniqueID("user")

	if err := repo.SetBan(ctx, userID, time.Now().UTC().Add(time.Hour)); err != nil {
		t.Fatalf("SetBan failed: %v", err)
	}
	if err := repo.ClearBan(ctx, userID); err != nil {
		t.Fatalf("ClearBan failed: %v", err)
	}

	rec, err := repo.GetUser(ctx, userID)
	if err != nil {
		t.Fatalf("GetUser failed: %v", err)
	}
	if rec.BanExpiry != nil {
		t.Errorf("BanExpiry should be nil after clear, got %v", rec.BanExpiry)
	}

	// Clearing again reports no active ban.
	if err := repo.ClearBan(ctx, userID); !errors.Is(err, ErrUserNotFound) {
		t.Errorf("Expected ErrUserNotFound on double clear, got: %v", err)
	}
}

func TestIntegrationEntitlements_ClearBan_NoRecord(t *testing.T) {
	ctx, repo := newEntitlementTestEnv(t)

	if err := repo.ClearBan(ctx, "never-seen"); !errors.Is(err, ErrUserNotFound) {
		t.Errorf("Expected ErrUserNotFound, got: %v", err)
	}
}

func newEntitlementTestEnv(t *testing.T) (context.Context, *Repository) {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration tests in short mode")
	}

	ctx := context.Background()
	dbURL := testutil.RequireEnv(t, "DATABASE_URL")

	repo, err := New(ctx, dbURL)
	if err != nil {
		t.Fatalf("connect db: %v", err)
	}
	t.Cleanup(repo.Close)

	unlock, err := testutil.AcquireDBLock(ctx, repo.Pool())
	if err != nil {
		t.Fatalf("acquire db lock: %v", err)
	}
	t.Cleanup(func() {
		_ = unlock()
	})

	if err := testutil.ResetEntitlementsSchema(ctx, repo.Pool()); err != nil {
		t.Fatalf("reset entitlements schema: %v", err)
	}

	return ctx, repo
}
