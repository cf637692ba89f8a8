package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/tiergate/tiergate/internal/auth"
	"github.com/tiergate/tiergate/internal/handler/dto"
	"github.com/tiergate/tiergate/internal/repository"
	"github.com/tiergate/tiergate/internal/service"
)

// AdminHandler provides operator endpoints for grants, bans and settings.
// All routes require the admin scope.
type AdminHandler struct {
	svc    *service.AdminService
	logger *slog.Logger
}

// NewAdminHandler creates a new AdminHandler.
func NewAdminHandler(svc *service.AdminService, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{
		svc:    svc,
		logger: logger,
	}
}

// Grant handles POST /api/v1/admin/grants.
// Grants permanent full-catalog access to a user.
func (h *AdminHandler) Grant(w http.ResponseWriter, r *http.Request) {
	var req dto.GrantRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "INVALID_JSON", "Invalid request body")
		return
	}

	if req.UserID == "" {
		h.writeError(w, http.StatusBadRequest, "MISSING_USER_ID", "user_id is required")
		return
	}

	actor := h.actor(r, req.ActorID)
	rec, err := h.svc.GrantFullAccess(r.Context(), actor, req.UserID)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	h.logger.Info("full_access_granted",
		"actor", actor,
		"user_id", req.UserID,
	)

	writeJSON(w, http.StatusOK, dto.VerifyResponse{
		UserID:     rec.UserID,
		Tiers:      rec.Tiers,
		VerifiedAt: rec.VerifiedAt,
	})
}

// TempAccess handles POST /api/v1/admin/temp-access.
func (h *AdminHandler) TempAccess(w http.ResponseWriter, r *http.Request) {
	var req dto.DurationGrantRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "INVALID_JSON", "Invalid request body")
		return
	}

	if req.UserID == "" {
		h.writeError(w, http.StatusBadRequest, "MISSING_USER_ID", "user_id is required")
		return
	}

	actor := h.actor(r, req.ActorID)
	expiry, err := h.svc.GrantTempAccess(r.Context(), actor, req.UserID, req.Days)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	h.logger.Info("temp_access_granted",
		"actor", actor,
		"user_id", req.UserID,
		"days", req.Days,
	)

	writeJSON(w, http.StatusOK, dto.ExpiryResponse{UserID: req.UserID, Expiry: expiry})
}

// Ban handles POST /api/v1/admin/bans.
func (h *AdminHandler) Ban(w http.ResponseWriter, r *http.Request) {
	var req dto.DurationGrantRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "INVALID_JSON", "Invalid request body")
		return
	}

	if req.UserID == "" {
		h.writeError(w, http.StatusBadRequest, "MISSING_USER_ID", "user_id is required")
		return
	}

	actor := h.actor(r, req.ActorID)
	expiry, err := h.svc.TempBan(r.Context(), actor, req.UserID, req.Days)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	h.logger.Info("user_banned",
		"actor", actor,
		"user_id", req.UserID,
		"days", req.Days,
	)

	writeJSON(w, http.StatusOK, dto.ExpiryResponse{UserID: req.UserID, Expiry: expiry})
}

// Unban handles DELETE /api/v1/admin/bans/{user_id}.
func (h *AdminHandler) Unban(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "user_id")
	if userID == "" {
		h.writeError(w, http.StatusBadRequest, "MISSING_USER_ID", "user_id is required")
		return
	}

	actor := h.actor(r, r.URL.Query().Get("actor_id"))
	if err := h.svc.RemoveTempBan(r.Context(), actor, userID); err != nil {
		h.handleServiceError(w, err)
		return
	}

	h.logger.Info("user_unbanned",
		"actor", actor,
		"user_id", userID,
	)

	w.WriteHeader(http.StatusNoContent)
}

// SetLogChannel handles PUT /api/v1/admin/log-channel.
func (h *AdminHandler) SetLogChannel(w http.ResponseWriter, r *http.Request) {
	var req dto.LogChannelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "INVALID_JSON", "Invalid request body")
		return
	}

	actor := h.actor(r, req.ActorID)
	if err := h.svc.SetLogDestination(r.Context(), actor, req.ChannelID); err != nil {
		h.handleServiceError(w, err)
		return
	}

	h.logger.Info("log_channel_set",
		"actor", actor,
		"channel_id", req.ChannelID,
	)

	writeJSON(w, http.StatusOK, map[string]string{"channel_id": req.ChannelID})
}

// actor resolves the acting identity: the operator's chat identity when the
// gateway forwards one, otherwise the calling API key.
func (h *AdminHandler) actor(r *http.Request, actorID string) string {
	if actorID != "" {
		return actorID
	}
	if keyID := auth.KeyIDFromContext(r.Context()); keyID != "" {
		return "key:" + keyID
	}
	return "unknown"
}

// handleServiceError maps admin service errors to HTTP responses.
func (h *AdminHandler) handleServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidDuration):
		h.writeError(w, http.StatusBadRequest, "INVALID_DURATION", "Days must be a positive integer")
	case errors.Is(err, service.ErrEmptyChannel):
		h.writeError(w, http.StatusBadRequest, "MISSING_CHANNEL_ID", "channel_id is required")
	case errors.Is(err, repository.ErrUserNotFound):
		h.writeError(w, http.StatusNotFound, "USER_NOT_FOUND", "No record found for that user")
	default:
		h.logger.Error("internal_error", "error", err)
		h.writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "An internal error occurred")
	}
}

// writeError writes an error response.
func (h *AdminHandler) writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, dto.ErrorResponse{
		Error: message,
		Code:  code,
	})
}
