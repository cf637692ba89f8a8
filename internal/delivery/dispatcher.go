package delivery

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/tiergate/tiergate/internal/metrics"
	"github.com/tiergate/tiergate/internal/model"
)

const (
	// BatchSize is the number of files grouped into one message.
	BatchSize = 5
	// DefaultBatchDelay is the pause between batches, keeping the
	// gateway under its message rate limits.
	DefaultBatchDelay = 2 * time.Second
)

// FileStatus is the per-file delivery outcome.
type FileStatus string

const (
	StatusAttached FileStatus = "attached"
	StatusTooLarge FileStatus = "too_large"
	StatusFailed   FileStatus = "failed"
)

// FileResult records what happened to one file.
type FileResult struct {
	File   model.FileDescriptor
	Status FileStatus
}

// Result summarizes a bulk delivery.
type Result struct {
	Files    []FileResult
	Attached int
	Linked   int
	Failed   int
}

// FileFetcher retrieves file bytes by URL.
type FileFetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// Dispatcher streams catalog files to users in batches.
type Dispatcher struct {
	fetcher    FileFetcher
	courier    Courier
	logger     *slog.Logger
	metrics    metrics.Recorder
	batchDelay time.Duration
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithBatchDelay overrides the inter-batch pause.
func WithBatchDelay(d time.Duration) DispatcherOption {
	return func(dp *Dispatcher) { dp.batchDelay = d }
}

// WithDispatcherMetrics sets the metrics recorder.
func WithDispatcherMetrics(m metrics.Recorder) DispatcherOption {
	return func(dp *Dispatcher) { dp.metrics = m }
}

// NewDispatcher creates a Dispatcher.
func NewDispatcher(fetcher FileFetcher, courier Courier, logger *slog.Logger, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		fetcher:    fetcher,
		courier:    courier,
		logger:     logger,
		metrics:    metrics.NewNoop(),
		batchDelay: DefaultBatchDelay,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// DeliverOne sends a single file to the user's direct channel.
func (d *Dispatcher) DeliverOne(ctx context.Context, userID string, file model.FileDescriptor) (*Result, error) {
	return d.deliver(ctx, userID, []model.FileDescriptor{file})
}

// DeliverAll sends every file in the list to the user's direct channel,
// in batches with a pause in between. The returned Result is per-file;
// only channel-level failures surface as errors.
func (d *Dispatcher) DeliverAll(ctx context.Context, userID string, files []model.FileDescriptor) (*Result, error) {
	return d.deliver(ctx, userID, files)
}

func (d *Dispatcher) deliver(ctx context.Context, userID string, files []model.FileDescriptor) (*Result, error) {
	start := time.Now()
	defer func() {
		d.metrics.ObserveDeliveryDuration(time.Since(start))
	}()

	channelID, err := d.courier.OpenDirectChannel(ctx, userID)
	if err != nil {
		return nil, err
	}

	result := &Result{}
	for batchStart := 0; batchStart < len(files); batchStart += BatchSize {
		if batchStart > 0 {
			if err := sleepCtx(ctx, d.batchDelay); err != nil {
				return result, err
			}
		}

		end := batchStart + BatchSize
		if end > len(files) {
			end = len(files)
		}
		batch := files[batchStart:end]

		msg := d.buildBatchMessage(ctx, batch, result)

		// A batch with zero attachments still carries its manifest, so
		// the user always learns what happened to every file.
		if err := d.courier.Send(ctx, channelID, msg); err != nil {
			return result, fmt.Errorf("send batch: %w", err)
		}
	}

	d.logger.Info("delivery complete",
		slog.String("user_id", userID),
		slog.Int("attached", result.Attached),
		slog.Int("linked", result.Linked),
		slog.Int("failed", result.Failed))

	return result, nil
}

// buildBatchMessage fetches each file in the batch and assembles the
// manifest plus attachments, updating the running result.
func (d *Dispatcher) buildBatchMessage(ctx context.Context, batch []model.FileDescriptor, result *Result) Message {
	var lines []string
	var attachments []Attachment

	for _, file := range batch {
		data, err := d.fetcher.Fetch(ctx, file.SourceURL)
		switch {
		case err != nil:
			d.logger.Warn("file fetch failed",
				slog.String("file", file.Name),
				slog.Any("error", err))
			lines = append(lines, fmt.Sprintf("%s: fetch failed, try again later", file.Name))
			result.Files = append(result.Files, FileResult{File: file, Status: StatusFailed})
			result.Failed++
			d.metrics.IncFileDelivery(string(StatusFailed))

		case len(data) > MaxAttachmentBytes:
			lines = append(lines, fmt.Sprintf("%s (too large to attach): %s", file.Name, file.SourceURL))
			result.Files = append(result.Files, FileResult{File: file, Status: StatusTooLarge})
			result.Linked++
			d.metrics.IncFileDelivery(string(StatusTooLarge))

		default:
			lines = append(lines, file.Name)
			attachments = append(attachments, Attachment{
				Filename: file.Filename(),
				Data:     data,
			})
			result.Files = append(result.Files, FileResult{File: file, Status: StatusAttached})
			result.Attached++
			d.metrics.IncFileDelivery(string(StatusAttached))
		}
	}

	return Message{
		Content:     strings.Join(lines, "\n"),
		Attachments: attachments,
	}
}

// sleepCtx pauses for d unless the context ends first.
func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
