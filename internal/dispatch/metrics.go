package dispatch

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/ringdove/outcall/internal/queue"
)

const namespace = "outcall"

var (
	dispatchPasses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dispatch",
			Name:      "passes_total",
			Help:      "Dispatch loop passes by result",
		},
		[]string{"result"},
	)

	placements = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dispatch",
			Name:      "placements_total",
			Help:      "Call placement attempts by outcome",
		},
		[]string{"outcome"},
	)

	placementDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "dispatch",
			Name:      "placement_duration_seconds",
			Help:      "Time spent placing one call against the external service",
			Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		},
	)

	activeCalls = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "dispatch",
			Name:      "active_calls",
			Help:      "Local estimate of calls currently occupying a line",
		},
	)

	queueSize = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "queue",
			Name:      "size",
			Help:      "Number of queue items by lifecycle state",
		},
		[]string{"status"},
	)
)

func recordPass(result string) {
	dispatchPasses.WithLabelValues(result).Inc()
}

func recordPlacement(outcome string, duration time.Duration) {
	placements.WithLabelValues(outcome).Inc()
	placementDuration.Observe(duration.Seconds())
}

func recordActiveCalls(n int) {
	activeCalls.Set(float64(n))
}

// RecordQueueStats updates queue size metrics.
func RecordQueueStats(stats *queue.Stats) {
	queueSize.WithLabelValues(string(queue.StatusPending)).Set(float64(stats.Backlog))
	queueSize.WithLabelValues(string(queue.StatusPendingInitiation)).Set(float64(stats.PendingInitiation))
	queueSize.WithLabelValues(string(queue.StatusInitiated)).Set(float64(stats.Initiated))
	queueSize.WithLabelValues(string(queue.StatusFailedToInitiate)).Set(float64(stats.FailedToInitiate))
}
