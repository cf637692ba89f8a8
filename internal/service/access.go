package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/tiergate/tiergate/internal/auditlog"
	"github.com/tiergate/tiergate/internal/cache"
	"github.com/tiergate/tiergate/internal/catalog"
	"github.com/tiergate/tiergate/internal/delivery"
	"github.com/tiergate/tiergate/internal/membership"
	"github.com/tiergate/tiergate/internal/metrics"
	"github.com/tiergate/tiergate/internal/model"
	"github.com/tiergate/tiergate/internal/policy"
	"github.com/tiergate/tiergate/internal/repository"
)

const (
	// DefaultVerifyTimeout caps a single verification attempt. The
	// membership API paginates the full member list, which can take a
	// while on large campaigns.
	DefaultVerifyTimeout = 25 * time.Second

	// TrialCooldown is how long a user waits between trial claims.
	TrialCooldown = 180 * 24 * time.Hour

	// Verification attempts allowed per user per minute.
	defaultVerifyRate  = 3
	defaultVerifyBurst = 3
)

// EntitlementStore is the subset of the repository the access service
// depends on.
type EntitlementStore interface {
	GetUser(ctx context.Context, userID string) (*model.UserRecord, error)
	UpsertVerification(ctx context.Context, userID, email string, tiers []string, verifiedAt time.Time, grantedBy string) (*model.UserRecord, error)
	ClaimTrial(ctx context.Context, userID string, now time.Time, cooldown time.Duration) error
}

// TierResolver looks up currently entitled tiers for a contact address.
type TierResolver interface {
	ResolveTiers(ctx context.Context, email string) ([]string, error)
}

// TierCache caches resolver results keyed by hashed email.
type TierCache interface {
	GetTiers(ctx context.Context, email string) ([]string, error)
	SetTiers(ctx context.Context, email string, tiers []string) error
	IsNegativelyCached(ctx context.Context, email string) (bool, error)
	SetNegativeCache(ctx context.Context, email string) error
}

// VerifyLimiter throttles verification attempts per chat identity.
type VerifyLimiter interface {
	CheckVerifyRateLimit(ctx context.Context, userID string, ratePerMinute, burst int) (*cache.RateLimitResult, error)
}

// Deliverer sends resolved files to a user.
type Deliverer interface {
	DeliverOne(ctx context.Context, userID string, file model.FileDescriptor) (*delivery.Result, error)
	DeliverAll(ctx context.Context, userID string, files []model.FileDescriptor) (*delivery.Result, error)
}

// AuditPublisher records audit events without blocking the caller.
type AuditPublisher interface {
	PublishAsync(event auditlog.EventPayload)
}

// AccessService handles verification, status, catalog resolution and
// file delivery for end users.
type AccessService struct {
	store     EntitlementStore
	resolver  TierResolver
	tierCache TierCache
	limiter   VerifyLimiter
	catalog   *catalog.Catalog
	deliverer Deliverer
	audit     AuditPublisher
	logger    *slog.Logger
	metrics   metrics.Recorder

	verifyTimeout time.Duration
	verifyRate    int
	verifyBurst   int
	trialFile     model.FileDescriptor
}

// AccessOption customizes an AccessService.
type AccessOption func(*AccessService)

// WithVerifyTimeout overrides the per-attempt verification budget.
func WithVerifyTimeout(d time.Duration) AccessOption {
	return func(s *AccessService) { s.verifyTimeout = d }
}

// WithVerifyRateLimit overrides the per-user verification rate limit.
func WithVerifyRateLimit(ratePerMinute, burst int) AccessOption {
	return func(s *AccessService) { s.verifyRate, s.verifyBurst = ratePerMinute, burst }
}

// WithTrialFile sets the file delivered on trial claims.
func WithTrialFile(f model.FileDescriptor) AccessOption {
	return func(s *AccessService) { s.trialFile = f }
}

// WithAccessMetrics sets the metrics recorder.
func WithAccessMetrics(m metrics.Recorder) AccessOption {
	return func(s *AccessService) { s.metrics = m }
}

// NewAccessService creates a new AccessService.
func NewAccessService(store EntitlementStore, resolver TierResolver, tierCache TierCache, limiter VerifyLimiter, cat *catalog.Catalog, deliverer Deliverer, audit AuditPublisher, logger *slog.Logger, opts ...AccessOption) *AccessService {
	s := &AccessService{
		store:         store,
		resolver:      resolver,
		tierCache:     tierCache,
		limiter:       limiter,
		catalog:       cat,
		deliverer:     deliverer,
		audit:         audit,
		logger:        logger.With("component", "service.access"),
		metrics:       metrics.NewNoop(),
		verifyTimeout: DefaultVerifyTimeout,
		verifyRate:    defaultVerifyRate,
		verifyBurst:   defaultVerifyBurst,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Verify resolves the user's entitled tiers by email and persists the
// result. Ban and temp-access overrides on an existing record survive.
func (s *AccessService) Verify(ctx context.Context, userID, email string) (*model.UserRecord, error) {
	email = strings.TrimSpace(email)

	if res, err := s.limiter.CheckVerifyRateLimit(ctx, userID, s.verifyRate, s.verifyBurst); err == nil && !res.Allowed {
		s.metrics.IncVerification("rate_limited")
		return nil, ErrRateLimited
	}

	tiers, err := s.lookupTiers(ctx, email)
	if err != nil {
		s.metrics.IncVerification(verifyOutcome(err))
		return nil, err
	}

	now := time.Now().UTC()
	rec, err := s.store.UpsertVerification(ctx, userID, email, tiers, now, "")
	if err != nil {
		s.metrics.IncVerification("error")
		return nil, fmt.Errorf("persist verification: %w", err)
	}

	s.metrics.IncVerification("verified")
	s.audit.PublishAsync(auditlog.EventPayload{
		Actor:      userID,
		Action:     auditlog.ActionVerified,
		Detail:     strings.Join(tiers, ", "),
		OccurredAt: now.UnixMilli(),
	})

	return rec, nil
}

// lookupTiers consults the cache before the membership API. Not-found
// results are negatively cached so repeated attempts with a bad email
// don't re-walk the member list.
func (s *AccessService) lookupTiers(ctx context.Context, email string) ([]string, error) {
	if tiers, err := s.tierCache.GetTiers(ctx, email); err == nil {
		s.metrics.IncTierCacheHit()
		return tiers, nil
	}
	s.metrics.IncTierCacheMiss()

	if negative, _ := s.tierCache.IsNegativelyCached(ctx, email); negative {
		return nil, membership.ErrNotFound
	}

	rctx, cancel := context.WithTimeout(ctx, s.verifyTimeout)
	defer cancel()

	tiers, err := s.resolver.ResolveTiers(rctx, email)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return nil, ErrTryAgain
		}
		if errors.Is(err, membership.ErrNotFound) {
			if cerr := s.tierCache.SetNegativeCache(ctx, email); cerr != nil {
				s.logger.Warn("failed to set negative cache", "error", cerr)
			}
		}
		return nil, err
	}

	if cerr := s.tierCache.SetTiers(ctx, email, tiers); cerr != nil {
		s.logger.Warn("failed to cache tiers", "error", cerr)
	}
	return tiers, nil
}

func verifyOutcome(err error) string {
	var inactive *membership.InactiveError
	switch {
	case errors.Is(err, membership.ErrNotFound):
		return "not_found"
	case errors.As(err, &inactive):
		return "inactive"
	case errors.Is(err, membership.ErrNoTiers):
		return "no_tiers"
	case errors.Is(err, ErrTryAgain):
		return "timeout"
	default:
		return "error"
	}
}

// Status evaluates the user's current access mode. An absent record is
// not an error, it evaluates to unverified.
func (s *AccessService) Status(ctx context.Context, userID string) (policy.Decision, error) {
	rec, err := s.store.GetUser(ctx, userID)
	if err != nil && !errors.Is(err, repository.ErrUserNotFound) {
		return policy.Decision{}, fmt.Errorf("load user: %w", err)
	}
	return policy.Evaluate(rec, time.Now().UTC()), nil
}

// Files resolves the concrete file list the user may download right now.
func (s *AccessService) Files(ctx context.Context, userID string) ([]model.FileDescriptor, error) {
	decision, err := s.Status(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.filesForDecision(decision)
}

func (s *AccessService) filesForDecision(decision policy.Decision) ([]model.FileDescriptor, error) {
	switch decision.Mode {
	case policy.ModeDenied:
		return nil, &AccessDeniedError{
			Expiry:    *decision.BanExpiry,
			Remaining: *decision.BanRemaining,
		}
	case policy.ModeFullCatalog:
		return s.catalog.AllFiles(), nil
	case policy.ModeTierScoped:
		return s.catalog.FilesFor(decision.Tiers), nil
	default:
		return nil, ErrUnverified
	}
}

// Download delivers one file by name, or the user's whole resolved set
// when fileName is empty. The name match is case-insensitive and scoped
// to the files the user is entitled to.
func (s *AccessService) Download(ctx context.Context, userID, fileName string) (*delivery.Result, error) {
	files, err := s.Files(ctx, userID)
	if err != nil {
		return nil, err
	}

	var result *delivery.Result
	kind := "bulk"
	if fileName != "" {
		kind = "single"
		file, ok := catalog.Find(files, fileName)
		if !ok {
			return nil, ErrFileNotFound
		}
		result, err = s.deliverer.DeliverOne(ctx, userID, file)
	} else {
		result, err = s.deliverer.DeliverAll(ctx, userID, files)
	}
	if err != nil {
		return nil, err
	}

	s.metrics.IncDownload(kind)
	s.audit.PublishAsync(auditlog.EventPayload{
		Actor:      userID,
		Action:     auditlog.ActionFilesDelivered,
		TargetUser: userID,
		Detail:     fmt.Sprintf("%d attached, %d linked, %d failed", result.Attached, result.Linked, result.Failed),
		OccurredAt: time.Now().UTC().UnixMilli(),
	})

	return result, nil
}

// ClaimTrial grants the one-time trial file, enforcing the cooldown.
// A *repository.TrialCooldownError carries the next eligible time.
func (s *AccessService) ClaimTrial(ctx context.Context, userID string) (*delivery.Result, error) {
	now := time.Now().UTC()
	if err := s.store.ClaimTrial(ctx, userID, now, TrialCooldown); err != nil {
		return nil, err
	}

	result, err := s.deliverer.DeliverOne(ctx, userID, s.trialFile)
	if err != nil {
		return nil, err
	}

	s.audit.PublishAsync(auditlog.EventPayload{
		Actor:      userID,
		Action:     auditlog.ActionTrialClaimed,
		OccurredAt: now.UnixMilli(),
	})

	return result, nil
}

// PageSize exposes the catalog page size for presentation layers.
func (s *AccessService) PageSize() int {
	return catalog.PageSize
}
