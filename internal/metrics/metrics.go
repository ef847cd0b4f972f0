// Package metrics exposes the Prometheus counters/gauges/histograms shared
// across the pipeline's processes. Each cmd/* mounts Handler() on
// /metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry bundles the counters a given process cares about. Not every
// process uses every field; unused collectors simply never get
// incremented.
type Registry struct {
	AnomaliesDetected  *prometheus.CounterVec
	MessagesProcessed  *prometheus.CounterVec
	MessagesDropped    *prometheus.CounterVec
	BusPublishFailures *prometheus.CounterVec
	BusPublishLatency  prometheus.Histogram
	RateLimitDenials   prometheus.Counter
	ClipsCreated       prometheus.Counter
	ClipCreationErrors prometheus.Counter
	HTTPRequestLatency *prometheus.HistogramVec
	StreamersIngested  prometheus.Counter
	ChatRowsWritten    prometheus.Counter
}

// New registers and returns a Registry. namespace becomes the Prometheus
// metric name prefix, e.g. "anomalydetector".
func New(namespace string) *Registry {
	return &Registry{
		AnomaliesDetected: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "anomalies_detected_total",
			Help:      "Number of anomalies published, by broadcaster_id.",
		}, []string{"broadcaster_id"}),
		MessagesProcessed: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_processed_total",
			Help:      "Number of bus messages successfully processed, by stage.",
		}, []string{"stage"}),
		MessagesDropped: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_dropped_total",
			Help:      "Number of bus messages dropped (poison or filtered), by reason.",
		}, []string{"reason"}),
		BusPublishFailures: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bus_publish_failures_total",
			Help:      "Number of failed bus publishes, by subject.",
		}, []string{"subject"}),
		BusPublishLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "bus_publish_latency_seconds",
			Help:      "Latency of bus publish calls.",
		}),
		RateLimitDenials: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limit_denials_total",
			Help:      "Number of rate limiter denials observed.",
		}),
		ClipsCreated: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "clips_created_total",
			Help:      "Number of clips successfully created and stored.",
		}),
		ClipCreationErrors: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "clip_creation_errors_total",
			Help:      "Number of clip creation attempts that failed.",
		}),
		HTTPRequestLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_latency_seconds",
			Help:      "Latency of HTTP handlers, by route and status class.",
		}, []string{"route", "status"}),
		StreamersIngested: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "streamers_ingested_total",
			Help:      "Number of new streamer ids inserted into the registry.",
		}),
		ChatRowsWritten: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chat_rows_written_total",
			Help:      "Number of chat rows written to storage.",
		}),
	}
}

// Handler returns the HTTP handler to mount at /metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}
