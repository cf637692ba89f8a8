package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/tiergate/tiergate/internal/auditlog"
	"github.com/tiergate/tiergate/internal/catalog"
	"github.com/tiergate/tiergate/internal/model"
	"github.com/tiergate/tiergate/internal/repository"
)

// OverrideStore is the subset of the repository the admin service uses
// for entitlement overrides.
type OverrideStore interface {
	UpsertVerification(ctx context.Context, userID, email string, tiers []string, verifiedAt time.Time, grantedBy string) (*model.UserRecord, error)
	SetBan(ctx context.Context, userID string, expiry time.Time) error
	ClearBan(ctx context.Context, userID string) error
	SetTempAccess(ctx context.Context, userID string, expiry time.Time) error
}

// SettingsStore persists operator settings.
type SettingsStore interface {
	GetSetting(ctx context.Context, key string) (string, error)
	SetSetting(ctx context.Context, key, value string) error
}

// AdminService handles operator-initiated grants, bans and settings.
type AdminService struct {
	store    OverrideStore
	settings SettingsStore
	catalog  *catalog.Catalog
	audit    AuditPublisher
	logger   *slog.Logger
}

// NewAdminService creates a new AdminService.
func NewAdminService(store OverrideStore, settings SettingsStore, cat *catalog.Catalog, audit AuditPublisher, logger *slog.Logger) *AdminService {
	return &AdminService{
		store:    store,
		settings: settings,
		catalog:  cat,
		audit:    audit,
		logger:   logger.With("component", "service.admin"),
	}
}

// GrantFullAccess marks a user as entitled to every catalog tier without
// email verification. The record carries the admin-granted sentinel in
// place of a contact address.
func (s *AdminService) GrantFullAccess(ctx context.Context, actor, userID string) (*model.UserRecord, error) {
	now := time.Now().UTC()
	rec, err := s.store.UpsertVerification(ctx, userID, model.EmailAdminGranted, s.catalog.TierNames(), now, actor)
	if err != nil {
		return nil, fmt.Errorf("grant full access: %w", err)
	}

	s.audit.PublishAsync(auditlog.EventPayload{
		Actor:      actor,
		Action:     auditlog.ActionGrantedFull,
		TargetUser: userID,
		OccurredAt: now.UnixMilli(),
	})

	return rec, nil
}

// GrantTempAccess opens the full catalog to a user until the returned
// expiry. Non-positive durations are rejected before any state changes.
func (s *AdminService) GrantTempAccess(ctx context.Context, actor, userID string, days int) (time.Time, error) {
	if days <= 0 {
		return time.Time{}, ErrInvalidDuration
	}

	now := time.Now().UTC()
	expiry := now.AddDate(0, 0, days)
	if err := s.store.SetTempAccess(ctx, userID, expiry); err != nil {
		return time.Time{}, fmt.Errorf("set temp access: %w", err)
	}

	s.audit.PublishAsync(auditlog.EventPayload{
		Actor:      actor,
		Action:     auditlog.ActionGrantedTemp,
		TargetUser: userID,
		Detail:     formatDays(days),
		OccurredAt: now.UnixMilli(),
	})

	return expiry, nil
}

// TempBan blocks all downloads for a user until the returned expiry.
// Non-positive durations are rejected before any state changes.
func (s *AdminService) TempBan(ctx context.Context, actor, userID string, days int) (time.Time, error) {
	if days <= 0 {
		return time.Time{}, ErrInvalidDuration
	}

	now := time.Now().UTC()
	expiry := now.AddDate(0, 0, days)
	if err := s.store.SetBan(ctx, userID, expiry); err != nil {
		return time.Time{}, fmt.Errorf("set ban: %w", err)
	}

	s.audit.PublishAsync(auditlog.EventPayload{
		Actor:      actor,
		Action:     auditlog.ActionBanned,
		TargetUser: userID,
		Detail:     formatDays(days),
		OccurredAt: now.UnixMilli(),
	})

	return expiry, nil
}

// RemoveTempBan lifts an active ban. Returns repository.ErrUserNotFound
// when the user has no ban to lift.
func (s *AdminService) RemoveTempBan(ctx context.Context, actor, userID string) error {
	if err := s.store.ClearBan(ctx, userID); err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return err
		}
		return fmt.Errorf("clear ban: %w", err)
	}

	s.audit.PublishAsync(auditlog.EventPayload{
		Actor:      actor,
		Action:     auditlog.ActionUnbanned,
		TargetUser: userID,
		OccurredAt: time.Now().UTC().UnixMilli(),
	})

	return nil
}

// SetLogDestination stores the channel audit events are forwarded to.
func (s *AdminService) SetLogDestination(ctx context.Context, actor, channelID string) error {
	channelID = strings.TrimSpace(channelID)
	if channelID == "" {
		return ErrEmptyChannel
	}

	if err := s.settings.SetSetting(ctx, repository.SettingLogChannel, channelID); err != nil {
		return fmt.Errorf("store log channel: %w", err)
	}

	s.logger.Info("log destination updated", "actor", actor, "channel_id", channelID)
	return nil
}

// LogChannel returns the configured audit log destination, or empty when
// none is set. Satisfies the audit worker's settings dependency.
func (s *AdminService) LogChannel(ctx context.Context) (string, error) {
	channelID, err := s.settings.GetSetting(ctx, repository.SettingLogChannel)
	if errors.Is(err, repository.ErrSettingNotFound) {
		return "", nil
	}
	return channelID, err
}

func formatDays(days int) string {
	if days == 1 {
		return "1 day"
	}
	return fmt.Sprintf("%d days", days)
}
