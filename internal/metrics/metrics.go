// Package metrics exposes Prometheus counters for the sync engine.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// syncRuns counts finished sync runs by aggregate status.
	syncRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "catalog_sync_runs_total",
		Help: "Total number of finished sync runs by status",
	}, []string{"status"})

	// syncProducts counts per-product outcomes.
	syncProducts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "catalog_sync_products_total",
		Help: "Total number of synced products by action",
	}, []string{"action"})

	// syncDuration tracks end-to-end run duration.
	syncDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "catalog_sync_run_duration_seconds",
		Help:    "Duration of sync runs",
		Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
	})

	// remoteCalls counts XML-RPC calls by model and method.
	remoteCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "catalog_remote_calls_total",
		Help: "Total number of remote XML-RPC calls by model and method",
	}, []string{"model", "method", "outcome"})

	// remoteCallDuration tracks remote call latency.
	remoteCallDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "catalog_remote_call_duration_seconds",
		Help:    "Duration of remote XML-RPC calls by method",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 15},
	}, []string{"method"})

	// previewsGenerated counts completed preview analyses.
	previewsGenerated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "catalog_previews_generated_total",
		Help: "Total number of completed preview analyses",
	})
)

// RecordRun records one finished sync run.
func RecordRun(status string, duration time.Duration, created, updated, skipped, errored int) {
	syncRuns.WithLabelValues(status).Inc()
	syncDuration.Observe(duration.Seconds())
	syncProducts.WithLabelValues("created").Add(float64(created))
	syncProducts.WithLabelValues("updated").Add(float64(updated))
	syncProducts.WithLabelValues("skipped").Add(float64(skipped))
	syncProducts.WithLabelValues("errored").Add(float64(errored))
}

// RecordRemoteCall records one XML-RPC round trip.
func RecordRemoteCall(model, method string, duration time.Duration, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	remoteCalls.WithLabelValues(model, method, outcome).Inc()
	remoteCallDuration.WithLabelValues(method).Observe(duration.Seconds())
}

// RecordPreview records one completed analysis.
func RecordPreview() {
	previewsGenerated.Inc()
}
