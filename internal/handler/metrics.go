package handler

import (
	"fmt"
	"net/http"
	"sort"

	"github.com/tiergate/tiergate/internal/metrics"
)

// MetricsHandler exposes in-memory metrics.
type MetricsHandler struct {
	snapshotter metrics.Snapshotter
}

// NewMetricsHandler creates a new MetricsHandler.
func NewMetricsHandler(snapshotter metrics.Snapshotter) *MetricsHandler {
	return &MetricsHandler{snapshotter: snapshotter}
}

// Metrics returns metrics in Prometheus exposition format.
func (h *MetricsHandler) Metrics(w http.ResponseWriter, r *http.Request) {
	if h.snapshotter == nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}

	snap := h.snapshotter.Snapshot()

	w.Header().Set("Content-Type", "text/plain; version=0.0.4")

	writeLabeledMetric(w, "tiergate_verifications_total", "outcome", snap.Verifications)
	writeMetric(w, "tiergate_resolve_duration_seconds_count %d\n", snap.ResolveDurationCount)
	writeMetric(w, "tiergate_resolve_duration_seconds_sum %.6f\n", float64(snap.ResolveDurationTotalNs)/1e9)

	writeMetric(w, "tiergate_tier_cache_hits_total %d\n", snap.TierCacheHits)
	writeMetric(w, "tiergate_tier_cache_misses_total %d\n", snap.TierCacheMisses)

	writeLabeledMetric(w, "tiergate_downloads_total", "kind", snap.Downloads)
	writeLabeledMetric(w, "tiergate_file_deliveries_total", "status", snap.FileDeliveries)

	writeLabeledMetric(w, "tiergate_audit_events_total", "status", snap.AuditEvents)
	writeMetric(w, "tiergate_audit_queue_depth %d\n", snap.AuditQueueDepth)
}

// writeLabeledMetric emits one line per label value, sorted for stable output.
func writeLabeledMetric(w http.ResponseWriter, name, label string, counts map[string]uint64) {
	values := make([]string, 0, len(counts))
	for v := range counts {
		values = append(values, v)
	}
	sort.Strings(values)
	for _, v := range values {
		writeMetric(w, "%s{%s=%q} %d\n", name, label, v, counts[v])
	}
}

func writeMetric(w http.ResponseWriter, format string, args ...any) {
	_, _ = fmt.Fprintf(w, format, args...)
}
