package metrics

import "time"

// NoopRecorder implements Recorder with no-op methods.
type NoopRecorder struct{}

// NewNoop returns a Recorder that discards all metrics.
func NewNoop() Recorder {
	return &NoopRecorder{}
}

// IncVerification is a no-op.
func (n *NoopRecorder) IncVerification(outcome string) {}

// ObserveResolveDuration is a no-op.
func (n *NoopRecorder) ObserveResolveDuration(duration time.Duration) {}

// IncTierCacheHit is a no-op.
func (n *NoopRecorder) IncTierCacheHit() {}

// IncTierCacheMiss is a no-op.
func (n *NoopRecorder) IncTierCacheMiss() {}

// IncDownload is a no-op.
func (n *NoopRecorder) IncDownload(kind string) {}

// IncFileDelivery is a no-op.
func (n *NoopRecorder) IncFileDelivery(status string) {}

// ObserveDeliveryDuration is a no-op.
func (n *NoopRecorder) ObserveDeliveryDuration(duration time.Duration) {}

// IncAuditEvent is a no-op.
func (n *NoopRecorder) IncAuditEvent(status string) {}

// SetAuditQueueDepth is a no-op.
func (n *NoopRecorder) SetAuditQueueDepth(depth int64) {}
