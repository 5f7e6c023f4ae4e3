package obs

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the engine's Prometheus instrumentation.
type Metrics struct {
	// Ingest
	EntriesIngestedTotal prometheus.Counter
	IngestErrorsTotal    prometheus.Counter
	IngestDuration       prometheus.Histogram

	// Search
	SearchesTotal      prometheus.Counter
	SearchErrorsTotal  prometheus.Counter
	SearchDuration     prometheus.Histogram
	StreamSessionsOpen prometheus.Gauge

	// Alarms
	AlarmsEvaluatedTotal     prometheus.Counter
	AlarmsTriggeredTotal     prometheus.Counter
	NotificationsSentTotal   prometheus.Counter
	NotificationsFailedTotal prometheus.Counter

	// Retention
	EntriesDeletedTotal prometheus.Counter
	SweepsTotal         prometheus.Counter
}

var (
	instance *Metrics
	once     sync.Once
)

// Get returns the process-wide metrics instance
func Get() *Metrics {
	once.Do(func() {
		instance = newMetrics()
	})
	return instance
}

func newMetrics() *Metrics {
	return &Metrics{
		EntriesIngestedTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "logsift_entries_ingested_total",
			Help: "Total number of log entries ingested",
		}),
		IngestErrorsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "logsift_ingest_errors_total",
			Help: "Total number of failed ingest batches",
		}),
		IngestDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "logsift_ingest_duration_seconds",
			Help:    "Time spent indexing ingest batches",
			Buckets: prometheus.DefBuckets,
		}),
		SearchesTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "logsift_searches_total",
			Help: "Total number of search executions",
		}),
		SearchErrorsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "logsift_search_errors_total",
			Help: "Total number of failed search executions",
		}),
		SearchDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "logsift_search_duration_seconds",
			Help:    "Search execution latency",
			Buckets: prometheus.DefBuckets,
		}),
		StreamSessionsOpen: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "logsift_stream_sessions_open",
			Help: "Streaming search sessions currently open",
		}),
		AlarmsEvaluatedTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "logsift_alarms_evaluated_total",
			Help: "Total number of alarm evaluations",
		}),
		AlarmsTriggeredTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "logsift_alarms_triggered_total",
			Help: "Total number of OK to TRIGGERED transitions",
		}),
		NotificationsSentTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "logsift_notifications_sent_total",
			Help: "Total number of notifications dispatched",
		}),
		NotificationsFailedTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "logsift_notifications_failed_total",
			Help: "Total number of notification dispatch failures",
		}),
		EntriesDeletedTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "logsift_retention_entries_deleted_total",
			Help: "Total number of entries removed by retention sweeps",
		}),
		SweepsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "logsift_retention_sweeps_total",
			Help: "Total number of retention sweeps executed",
		}),
	}
}
