package config

import "time"

// Server defaults
const (
	DefaultPort        = "8080"
	DefaultDataDir     = "./data/logsift"
	DefaultMaxMemoryMB = 48
)

// Background engine intervals
const (
	RetentionInterval = 1 * time.Hour
	AlarmInterval     = 1 * time.Minute
	BadgerGCInterval  = 10 * time.Minute
)

// Search defaults and limits
const (
	SearchTimeout       = 30 * time.Second
	DefaultPageSize     = 100
	MaxPageSize         = 1000
	DefaultSearchWindow = 30 * 24 * time.Hour
)

// Histogram bucket widths by total range. These are display policy, not a
// protocol invariant; tune them if dashboards want a different density.
const (
	HistogramRange1h  = 1 * time.Hour
	HistogramRange3h  = 3 * time.Hour
	HistogramRange12h = 12 * time.Hour

	HistogramBucket1m  = 1 * time.Minute
	HistogramBucket5m  = 5 * time.Minute
	HistogramBucket15m = 15 * time.Minute
	HistogramBucket30m = 30 * time.Minute

	// HistogramMaxBuckets caps one histogram's bucket count. Ranges too
	// wide for the standard widths get wider buckets instead.
	HistogramMaxBuckets = 2000
)

// Ingest timeouts and limits
const (
	IngestTimeout      = 5 * time.Second
	IngestMaxBatchSize = 5000
)

// Streaming search configuration
const (
	StreamPageSize    = 100
	StreamEventBuffer = 16
)

// WebSocket configuration
const (
	WSReadBufferSize  = 1024
	WSWriteBufferSize = 1024
	WSWriteDeadline   = 10 * time.Second
	WSPingInterval    = 30 * time.Second
)

// Notification dispatch
const (
	NotifyTimeout         = 10 * time.Second
	NotifyMaxRetryElapsed = 30 * time.Second
)
