// Package metrics provides lightweight hooks for instrumentation.
package metrics

import "time"

// Recorder captures metric events for the application.
// Implementations can expose these to Prometheus, StatsD, etc.
type Recorder interface {
	// Verification metrics
	IncVerification(outcome string) // outcome: "verified", "not_found", "inactive", "no_tiers", "timeout", "error"
	ObserveResolveDuration(duration time.Duration)
	IncTierCacheHit()
	IncTierCacheMiss()

	// Delivery metrics
	IncDownload(kind string)       // kind: "single" or "bulk"
	IncFileDelivery(status string) // status: "attached", "too_large", "failed"
	ObserveDeliveryDuration(duration time.Duration)

	// Audit pipeline metrics
	IncAuditEvent(status string) // status: "published", "dropped", "forwarded", "failed"
	SetAuditQueueDepth(depth int64)
}

// Snapshotter exposes a snapshot of current metrics.
type Snapshotter interface {
	Snapshot() Snapshot
}
