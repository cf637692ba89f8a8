// Package auditlog captures moderation and access events and forwards
// them to the operator-configured log channel.
package auditlog

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/redis/go-redis/v9"

	"github.com/tiergate/tiergate/internal/metrics"
)

const (
	// StreamKey is the Redis stream for audit events.
	StreamKey = "stream:audit_events"

	// DeadLetterStreamKey is the Redis stream for poison messages.
	DeadLetterStreamKey = "stream:audit_events:dlq"

	// MaxStreamLen is the approximate max length of the stream.
	MaxStreamLen = 10000

	// PublishTimeout is the max time to wait for Redis publish.
	PublishTimeout = 100 * time.Millisecond
)

// Audit actions.
const (
	ActionVerified       = "verified"
	ActionGrantedFull    = "granted_full_access"
	ActionGrantedTemp    = "granted_temp_access"
	ActionBanned         = "temp_banned"
	ActionUnbanned       = "unbanned"
	ActionTrialClaimed   = "trial_claimed"
	ActionFilesDelivered = "files_delivered"
)

// EventPayload is the compressed event format for the Redis stream.
type EventPayload struct {
	EventID    string `json:"id"`
	Actor      string `json:"a"`            // acting identity (admin or the user themselves)
	Action     string `json:"ac"`           // one of the Action constants
	TargetUser string `json:"tu,omitempty"` // affected chat identity
	Detail     string `json:"d,omitempty"`  // free-form extra context
	OccurredAt int64  `json:"t"`            // Unix milliseconds
}

// ValidateEventPayload rejects events that cannot be rendered.
func ValidateEventPayload(p EventPayload) error {
	if p.Action == "" {
		return errors.New("event action is empty")
	}
	if p.Actor == "" {
		return errors.New("event actor is empty")
	}
	if p.OccurredAt <= 0 {
		return errors.New("event timestamp is missing")
	}
	return nil
}

// NewEventID generates a ULID for an audit event.
func NewEventID() string {
	return ulid.MustNew(ulid.Timestamp(time.Now()), rand.Reader).String()
}

// Publisher enqueues audit events to the Redis stream.
type Publisher struct {
	redis   *redis.Client
	logger  *slog.Logger
	metrics metrics.Recorder
}

// NewPublisher creates a new audit event publisher.
func NewPublisher(client *redis.Client, logger *slog.Logger, recorder metrics.Recorder) *Publisher {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	return &Publisher{
		redis:   client,
		logger:  logger.With("component", "auditlog.publisher"),
		metrics: recorder,
	}
}

// Publish adds an audit event to the stream synchronously.
func (p *Publisher) Publish(ctx context.Context, event EventPayload) (string, error) {
	if event.EventID == "" {
		event.EventID = NewEventID()
	}
	data, err := json.Marshal(event)
	if err != nil {
		return "", fmt.Errorf("marshal event: %w", err)
	}

	result, err := p.redis.XAdd(ctx, &redis.XAddArgs{
		Stream: StreamKey,
		MaxLen: MaxStreamLen,
		Approx: true, // ~MAXLEN for performance
		ID:     "*",  // Auto-generate ID
		Values: map[string]interface{}{
			"payload": string(data),
		},
	}).Result()

	if err != nil {
		return "", fmt.Errorf("xadd: %w", err)
	}

	return result, nil
}

// PublishAsync publishes without blocking the caller.
// Errors are logged but not returned (fire-and-forget).
func (p *Publisher) PublishAsync(event EventPayload) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), PublishTimeout)
		defer cancel()

		streamID, err := p.Publish(ctx, event)
		if err != nil {
			p.logger.Warn("failed to publish audit event",
				"action", event.Action,
				"error", err,
			)
			p.metrics.IncAuditEvent("dropped")
			return
		}

		p.logger.Debug("audit event published",
			"action", event.Action,
			"stream_id", streamID,
		)
		p.metrics.IncAuditEvent("published")
	}()
}
