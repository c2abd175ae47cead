package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "storm_radar"

// Metrics holds the Prometheus counters, histograms, and gauges for the radar service.
type Metrics struct {
	// Archive client metrics.
	ArchiveRequests *prometheus.CounterVec   // labels: op={list,download}, outcome={success,not_found,error}
	ArchiveDuration *prometheus.HistogramVec // labels: op={list,download}

	// Fetch service metrics.
	FetchRetries  prometheus.Counter
	InflightJoins prometheus.Counter
	PollNewScans  prometheus.Counter
	PollErrors    prometheus.Counter

	// Cache metrics.
	CacheLookups   *prometheus.CounterVec // labels: result={hit,miss}
	CacheBytes     prometheus.Gauge
	CacheEntries   prometheus.Gauge
	CacheEvictions prometheus.Counter

	// Decode and pipeline metrics.
	DecodeDuration      prometheus.Histogram
	DecodeErrors        *prometheus.CounterVec // labels: kind
	UnsupportedMessages prometheus.Counter
	ScansProcessed      prometheus.Counter
	ScansPublished      prometheus.Counter
	PipelineRunning     prometheus.Gauge
}

func newMetrics() *Metrics {
	return &Metrics{
		ArchiveRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "archive_requests_total",
			Help:      "Archive requests by operation and outcome.",
		}, []string{"op", "outcome"}),
		ArchiveDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "archive_request_duration_seconds",
			Help:      "Archive request duration in seconds.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"op"}),
		FetchRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetch_retries_total",
			Help:      "Archive requests retried after a transient failure.",
		}),
		InflightJoins: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetch_inflight_joins_total",
			Help:      "Fetches that waited on an identical request already in progress.",
		}),
		PollNewScans: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "poll_new_scans_total",
			Help:      "Scans discovered by polling.",
		}),
		PollErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "poll_errors_total",
			Help:      "Polling rounds that failed to list the archive.",
		}),
		CacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_lookups_total",
			Help:      "Scan cache lookups by result.",
		}, []string{"result"}),
		CacheBytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "cache_bytes",
			Help:      "Aggregate size of cached scans.",
		}),
		CacheEntries: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "cache_entries",
			Help:      "Number of cached scans.",
		}),
		CacheEvictions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_evictions_total",
			Help:      "Scans evicted from the cache.",
		}),
		DecodeDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "decode_duration_seconds",
			Help:      "Duration of decoding one volume scan.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}),
		DecodeErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decode_errors_total",
			Help:      "Volume scans that failed to decode, by error kind.",
		}, []string{"kind"}),
		UnsupportedMessages: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "unsupported_messages_total",
			Help:      "Messages skipped because their type is not understood.",
		}),
		ScansProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scans_processed_total",
			Help:      "Volume scans fetched and decoded.",
		}),
		ScansPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scans_published_total",
			Help:      "Scan summaries written to the sink.",
		}),
		PipelineRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pipeline_running",
			Help:      "1 when the pipeline is active, 0 when shut down.",
		}),
	}
}

// NewMetrics creates and registers all service metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.ArchiveRequests,
		m.ArchiveDuration,
		m.FetchRetries,
		m.InflightJoins,
		m.PollNewScans,
		m.PollErrors,
		m.CacheLookups,
		m.CacheBytes,
		m.CacheEntries,
		m.CacheEvictions,
		m.DecodeDuration,
		m.DecodeErrors,
		m.UnsupportedMessages,
		m.ScansProcessed,
		m.ScansPublished,
		m.PipelineRunning,
	)
	return m
}

// NewMetricsForTesting creates unregistered Metrics to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}
