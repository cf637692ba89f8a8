// Package dto provides Data Transfer Objects for API requests and responses.
package dto

import (
	"time"

	"github.com/tiergate/tiergate/internal/delivery"
	"github.com/tiergate/tiergate/internal/model"
	"github.com/tiergate/tiergate/internal/policy"
)

// VerifyRequest represents the request body for verifying a membership.
type VerifyRequest struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
}

// VerifyResponse reports a successful verification.
type VerifyResponse struct {
	UserID     string    `json:"user_id"`
	Tiers      []string  `json:"tiers"`
	VerifiedAt time.Time `json:"verified_at"`
}

// RemainingResponse is the display breakdown of time left on an override.
type RemainingResponse struct {
	Days    int `json:"days"`
	Hours   int `json:"hours"`
	Minutes int `json:"minutes"`
	Seconds int `json:"seconds"`
}

// StatusResponse reports a user's current access mode.
type StatusResponse struct {
	UserID          string             `json:"user_id"`
	Mode            string             `json:"mode"`
	Tiers           []string           `json:"tiers,omitempty"`
	BanExpiry       *time.Time         `json:"ban_expiry,omitempty"`
	BanRemaining    *RemainingResponse `json:"ban_remaining,omitempty"`
	AccessExpiry    *time.Time         `json:"access_expiry,omitempty"`
	AccessRemaining *RemainingResponse `json:"access_remaining,omitempty"`
}

// FileResponse describes one downloadable file.
type FileResponse struct {
	Name string `json:"name"`
	Tier string `json:"tier"`
	URL  string `json:"url"`
}

// FilesResponse is the resolved file list for a user.
type FilesResponse struct {
	UserID   string         `json:"user_id"`
	Files    []FileResponse `json:"files"`
	PageSize int            `json:"page_size"`
}

// DownloadRequest represents the request body for a download.
// An empty FileName requests the whole resolved set.
type DownloadRequest struct {
	UserID   string `json:"user_id"`
	FileName string `json:"file_name,omitempty"`
}

// DeliveredFileResponse reports the outcome for one file.
type DeliveredFileResponse struct {
	Name   string `json:"name"`
	Status string `json:"status"`
	URL    string `json:"url,omitempty"`
}

// DeliveryResponse summarizes a completed delivery.
type DeliveryResponse struct {
	UserID   string                  `json:"user_id"`
	Files    []DeliveredFileResponse `json:"files"`
	Attached int                     `json:"attached"`
	Linked   int                     `json:"linked"`
	Failed   int                     `json:"failed"`
}

// TrialRequest represents the request body for claiming a trial.
type TrialRequest struct {
	UserID string `json:"user_id"`
}

// GrantRequest represents the request body for a full-access grant.
type GrantRequest struct {
	ActorID string `json:"actor_id"`
	UserID  string `json:"user_id"`
}

// DurationGrantRequest represents a temp-access or ban request.
type DurationGrantRequest struct {
	ActorID string `json:"actor_id"`
	UserID  string `json:"user_id"`
	Days    int    `json:"days"`
}

// ExpiryResponse reports when an override lapses.
type ExpiryResponse struct {
	UserID string    `json:"user_id"`
	Expiry time.Time `json:"expiry"`
}

// LogChannelRequest represents the request body for the log destination.
type LogChannelRequest struct {
	ActorID   string `json:"actor_id"`
	ChannelID string `json:"channel_id"`
}

// ErrorResponse represents an API error.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code"`
	Details any    `json:"details,omitempty"`
}

// ToStatusResponse converts a policy decision to a StatusResponse DTO.
func ToStatusResponse(userID string, d policy.Decision) *StatusResponse {
	return &StatusResponse{
		UserID:          userID,
		Mode:            string(d.Mode),
		Tiers:           d.Tiers,
		BanExpiry:       d.BanExpiry,
		BanRemaining:    toRemaining(d.BanRemaining),
		AccessExpiry:    d.AccessExpiry,
		AccessRemaining: toRemaining(d.AccessRemaining),
	}
}

func toRemaining(r *policy.Remaining) *RemainingResponse {
	if r == nil {
		return nil
	}
	return &RemainingResponse{
		Days:    r.Days,
		Hours:   r.Hours,
		Minutes: r.Minutes,
		Seconds: r.Seconds,
	}
}

// ToFilesResponse converts resolved descriptors to a FilesResponse DTO.
func ToFilesResponse(userID string, files []model.FileDescriptor, pageSize int) *FilesResponse {
	out := make([]FileResponse, 0, len(files))
	for _, f := range files {
		out = append(out, FileResponse{
			Name: f.Name,
			Tier: f.Tier,
			URL:  f.SourceURL,
		})
	}
	return &FilesResponse{UserID: userID, Files: out, PageSize: pageSize}
}

// ToDeliveryResponse converts a dispatcher result to a DeliveryResponse DTO.
func ToDeliveryResponse(userID string, result *delivery.Result) *DeliveryResponse {
	files := make([]DeliveredFileResponse, 0, len(result.Files))
	for _, f := range result.Files {
		entry := DeliveredFileResponse{
			Name:   f.File.Name,
			Status: string(f.Status),
		}
		if f.Status != delivery.StatusAttached {
			entry.URL = f.File.SourceURL
		}
		files = append(files, entry)
	}
	return &DeliveryResponse{
		UserID:   userID,
		Files:    files,
		Attached: result.Attached,
		Linked:   result.Linked,
		Failed:   result.Failed,
	}
}
