// internal/common/metrics/metrics.go
package metrics

import (
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	StatsRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stats_requests_total",
			Help: "Total number of requests sent to the statistics backend",
		},
		[]string{"endpoint", "status"},
	)

	StatsRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "stats_request_duration_seconds",
			Help:    "Duration of statistics backend requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"endpoint"},
	)

	SnapshotsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stats_snapshots_published_total",
			Help: "Total number of snapshots published per sink",
		},
		[]string{"sink"},
	)

	SnapshotFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stats_snapshot_failures_total",
			Help: "Total number of snapshot publish failures per sink",
		},
		[]string{"sink", "error_code"},
	)

	PollCyclesActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "stats_poll_cycles_active",
			Help: "Number of poll cycles currently running",
		},
	)
)

// EndpointLabel collapses request paths into a bounded label set so job IDs
// do not explode metric cardinality.
func EndpointLabel(path string) string {
	switch {
	case path == "/stats/dashboard":
		return "dashboard"
	case path == "/stats/workers":
		return "workers"
	case path == "/stats/executions":
		return "executions"
	case strings.HasPrefix(path, "/stats/jobs/") && len(path) > len("/stats/jobs/"):
		return "jobs"
	}
	return "other"
}
