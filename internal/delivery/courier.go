// Package delivery fetches catalog files and hands them to a chat
// gateway for direct delivery to a user.
package delivery

import (
	"context"
	"errors"
)

// Common delivery errors.
var (
	// ErrDeliveryForbidden means a private channel to the user could not
	// be opened. Distinct from a fetch failure: the user can fix this
	// (privacy settings), we cannot.
	ErrDeliveryForbidden = errors.New("cannot open direct channel to user")
	// ErrFetchFailed means the file bytes could not be retrieved.
	ErrFetchFailed = errors.New("failed to fetch file")
)

// Attachment is a file payload carried by a message.
type Attachment struct {
	Filename string `json:"filename"`
	Data     []byte `json:"data"`
}

// Message is one outbound chat message with optional attachments.
type Message struct {
	Content     string       `json:"content"`
	Attachments []Attachment `json:"attachments,omitempty"`
}

// Courier delivers messages to users through the chat gateway.
type Courier interface {
	// OpenDirectChannel resolves a private channel to the user.
	// Returns ErrDeliveryForbidden when the gateway refuses.
	OpenDirectChannel(ctx context.Context, userID string) (string, error)
	// Send posts a message to a channel.
	Send(ctx context.Context, channelID string, msg Message) error
}
