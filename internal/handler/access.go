package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/tiergate/tiergate/internal/delivery"
	"github.com/tiergate/tiergate/internal/handler/dto"
	"github.com/tiergate/tiergate/internal/membership"
	"github.com/tiergate/tiergate/internal/repository"
	"github.com/tiergate/tiergate/internal/service"
)

// AccessHandler handles verification, status and download endpoints.
type AccessHandler struct {
	svc          *service.AccessService
	logger       *slog.Logger
	trialEnabled bool
}

// NewAccessHandler creates a new AccessHandler.
func NewAccessHandler(svc *service.AccessService, logger *slog.Logger, trialEnabled bool) *AccessHandler {
	return &AccessHandler{
		svc:          svc,
		logger:       logger,
		trialEnabled: trialEnabled,
	}
}

// Verify handles POST /api/v1/verify.
func (h *AccessHandler) Verify(w http.ResponseWriter, r *http.Request) {
	var req dto.VerifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "INVALID_JSON", "Invalid request body", nil)
		return
	}

	if req.UserID == "" || strings.TrimSpace(req.Email) == "" {
		h.writeError(w, http.StatusBadRequest, "MISSING_FIELDS", "user_id and email are required", nil)
		return
	}

	rec, err := h.svc.Verify(r.Context(), req.UserID, req.Email)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	h.logger.Info("user_verified",
		"user_id", rec.UserID,
		"tiers", rec.Tiers,
	)

	writeJSON(w, http.StatusOK, dto.VerifyResponse{
		UserID:     rec.UserID,
		Tiers:      rec.Tiers,
		VerifiedAt: rec.VerifiedAt,
	})
}

// Status handles GET /api/v1/status.
func (h *AccessHandler) Status(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		h.writeError(w, http.StatusBadRequest, "MISSING_USER_ID", "user_id query parameter is required", nil)
		return
	}

	decision, err := h.svc.Status(r.Context(), userID)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, dto.ToStatusResponse(userID, decision))
}

// Files handles GET /api/v1/files.
func (h *AccessHandler) Files(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		h.writeError(w, http.StatusBadRequest, "MISSING_USER_ID", "user_id query parameter is required", nil)
		return
	}

	files, err := h.svc.Files(r.Context(), userID)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, dto.ToFilesResponse(userID, files, h.svc.PageSize()))
}

// Download handles POST /api/v1/downloads.
func (h *AccessHandler) Download(w http.ResponseWriter, r *http.Request) {
	var req dto.DownloadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "INVALID_JSON", "Invalid request body", nil)
		return
	}

	if req.UserID == "" {
		h.writeError(w, http.StatusBadRequest, "MISSING_USER_ID", "user_id is required", nil)
		return
	}

	result, err := h.svc.Download(r.Context(), req.UserID, req.FileName)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	h.logger.Info("files_delivered",
		"user_id", req.UserID,
		"attached", result.Attached,
		"linked", result.Linked,
		"failed", result.Failed,
	)

	writeJSON(w, http.StatusOK, dto.ToDeliveryResponse(req.UserID, result))
}

// Trial handles POST /api/v1/trials.
func (h *AccessHandler) Trial(w http.ResponseWriter, r *http.Request) {
	if !h.trialEnabled {
		h.writeError(w, http.StatusServiceUnavailable, "TRIALS_DISABLED", "Trial claims are not configured", nil)
		return
	}

	var req dto.TrialRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "INVALID_JSON", "Invalid request body", nil)
		return
	}

	if req.UserID == "" {
		h.writeError(w, http.StatusBadRequest, "MISSING_USER_ID", "user_id is required", nil)
		return
	}

	result, err := h.svc.ClaimTrial(r.Context(), req.UserID)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	h.logger.Info("trial_claimed", "user_id", req.UserID)

	writeJSON(w, http.StatusOK, dto.ToDeliveryResponse(req.UserID, result))
}

// handleServiceError maps service errors to HTTP responses.
func (h *AccessHandler) handleServiceError(w http.ResponseWriter, err error) {
	var (
		inactive *membership.InactiveError
		apiErr   *membership.APIError
		denied   *service.AccessDeniedError
		cooldown *repository.TrialCooldownError
	)

	switch {
	case errors.Is(err, membership.ErrNotFound):
		h.writeError(w, http.StatusNotFound, "MEMBER_NOT_FOUND", "No membership found for that email", nil)
	case errors.As(err, &inactive):
		h.writeError(w, http.StatusForbidden, "MEMBERSHIP_INACTIVE", "Membership is not active", map[string]string{"status": inactive.Status})
	case errors.Is(err, membership.ErrNoTiers):
		h.writeError(w, http.StatusForbidden, "NO_ENTITLED_TIERS", "Membership has no entitled tiers", nil)
	case errors.Is(err, service.ErrTryAgain):
		h.writeError(w, http.StatusGatewayTimeout, "VERIFY_TIMEOUT", "Verification took too long, try again", nil)
	case errors.Is(err, service.ErrRateLimited):
		h.writeError(w, http.StatusTooManyRequests, "RATE_LIMITED", "Too many verification attempts, slow down", nil)
	case errors.Is(err, membership.ErrBadCredentials),
		errors.Is(err, membership.ErrNotConfigured),
		errors.As(err, &apiErr):
		h.logger.Error("membership_api_error", "error", err)
		h.writeError(w, http.StatusBadGateway, "UPSTREAM_ERROR", "Membership service is unavailable", nil)
	case errors.Is(err, service.ErrUnverified):
		h.writeError(w, http.StatusForbidden, "UNVERIFIED", "User is not verified", nil)
	case errors.As(err, &denied):
		h.writeError(w, http.StatusForbidden, "ACCESS_DENIED", "Downloads are blocked by a temporary ban", map[string]any{
			"expiry":    denied.Expiry,
			"remaining": denied.Remaining,
		})
	case errors.Is(err, service.ErrFileNotFound):
		h.writeError(w, http.StatusNotFound, "FILE_NOT_FOUND", "No such file in your catalog", nil)
	case errors.As(err, &cooldown):
		h.writeError(w, http.StatusConflict, "TRIAL_COOLDOWN", "Trial already claimed", map[string]any{
			"next_eligible": cooldown.NextEligible,
		})
	case errors.Is(err, delivery.ErrDeliveryForbidden):
		h.writeError(w, http.StatusConflict, "DELIVERY_FORBIDDEN", "Cannot open a direct channel to this user", nil)
	default:
		h.logger.Error("internal_error", "error", err)
		h.writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "An internal error occurred", nil)
	}
}

// writeError writes an error response.
func (h *AccessHandler) writeError(w http.ResponseWriter, status int, code, message string, details any) {
	writeJSON(w, status, dto.ErrorResponse{
		Error:   message,
		Code:    code,
		Details: details,
	})
}
