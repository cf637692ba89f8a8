package metrics

import (
	"sync"
	"sync/atomic"
	"time"
)

// Snapshot captures current in-memory counters.
type Snapshot struct {
	Verifications          map[string]uint64
	ResolveDurationCount   uint64
	ResolveDurationTotalNs int64
	TierCacheHits          uint64
	TierCacheMisses        uint64
	Downloads              map[string]uint64
	FileDeliveries         map[string]uint64
	AuditEvents            map[string]uint64
	AuditQueueDepth        int64
}

// InMemoryRecorder stores metrics in memory for tests.
type InMemoryRecorder struct {
	mu                     sync.Mutex
	verifications          map[string]uint64
	downloads              map[string]uint64
	fileDeliveries         map[string]uint64
	auditEvents            map[string]uint64
	resolveDurationCount   uint64
	resolveDurationTotalNs int64
	tierCacheHits          uint64
	tierCacheMisses        uint64
	auditQueueDepth        int64
}

// NewInMemory returns a Recorder that stores counters in memory.
func NewInMemory() *InMemoryRecorder {
	return &InMemoryRecorder{
		verifications:  make(map[string]uint64),
		downloads:      make(map[string]uint64),
		fileDeliveries: make(map[string]uint64),
		auditEvents:    make(map[string]uint64),
	}
}

// Snapshot returns a copy of the counters.
func (m *InMemoryRecorder) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Snapshot{
		Verifications:          copyCounts(m.verifications),
		ResolveDurationCount:   atomic.LoadUint64(&m.resolveDurationCount),
		ResolveDurationTotalNs: atomic.LoadInt64(&m.resolveDurationTotalNs),
		TierCacheHits:          atomic.LoadUint64(&m.tierCacheHits),
		TierCacheMisses:        atomic.LoadUint64(&m.tierCacheMisses),
		Downloads:              copyCounts(m.downloads),
		FileDeliveries:         copyCounts(m.fileDeliveries),
		AuditEvents:            copyCounts(m.auditEvents),
		AuditQueueDepth:        atomic.LoadInt64(&m.auditQueueDepth),
	}
}

// IncVerification increments the verification outcome counter.
func (m *InMemoryRecorder) IncVerification(outcome string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.verifications[outcome]++
}

// ObserveResolveDuration records a membership resolution duration.
func (m *InMemoryRecorder) ObserveResolveDuration(duration time.Duration) {
	atomic.AddUint64(&m.resolveDurationCount, 1)
	atomic.AddInt64(&m.resolveDurationTotalNs, duration.Nanoseconds())
}

// IncTierCacheHit increments the tier cache hit counter.
func (m *InMemoryRecorder) IncTierCacheHit() {
	atomic.AddUint64(&m.tierCacheHits, 1)
}

// IncTierCacheMiss increments the tier cache miss counter.
func (m *InMemoryRecorder) IncTierCacheMiss() {
	atomic.AddUint64(&m.tierCacheMisses, 1)
}

// IncDownload increments the download counter for a kind.
func (m *InMemoryRecorder) IncDownload(kind string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.downloads[kind]++
}

// IncFileDelivery increments the per-file delivery status counter.
func (m *InMemoryRecorder) IncFileDelivery(status string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fileDeliveries[status]++
}

// ObserveDeliveryDuration records a bulk delivery duration.
func (m *InMemoryRecorder) ObserveDeliveryDuration(duration time.Duration) {}

// IncAuditEvent increments the audit event status counter.
func (m *InMemoryRecorder) IncAuditEvent(status string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.auditEvents[status]++
}

// SetAuditQueueDepth records the audit stream queue depth.
func (m *InMemoryRecorder) SetAuditQueueDepth(depth int64) {
	atomic.StoreInt64(&m.auditQueueDepth, depth)
}

func copyCounts(in map[string]uint64) map[string]uint64 {
	out := make(map[string]uint64, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
