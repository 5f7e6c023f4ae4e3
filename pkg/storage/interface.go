package storage

import (
	"context"

	"github.com/logsift/logsift/pkg/logs"
)

// Store defines the interface for log index backends.
// Implementations: memory (testing), badger (production)
type Store interface {
	// Ingest indexes a batch of entries. Concurrency-safe; entries become
	// visible to Search within the backend's refresh delay (badger: on
	// transaction commit). Write failures are reported as *logs.IngestError.
	Ingest(ctx context.Context, entries []logs.Entry) error

	// Search returns entries matching the request plus the exact total
	// count of matches (never approximated), independent of paging.
	Search(ctx context.Context, req SearchRequest) ([]logs.Entry, int, error)

	// DeleteOlderThan removes entries with Timestamp < before (Unix ms).
	// An empty source deletes across all sources. Returns the number of
	// entries removed.
	DeleteOlderThan(ctx context.Context, before int64, source string) (int, error)

	// Stats returns index statistics.
	Stats(ctx context.Context) (*Stats, error)

	// Close cleanly shuts down the store.
	Close() error
}

// Matcher filters entries inside the store. Implemented by the query
// package's compiled filters; the store stays ignorant of query syntax.
type Matcher interface {
	Match(e *logs.Entry) bool
}

// SearchRequest specifies which entries to retrieve.
type SearchRequest struct {
	// Filter is applied to every candidate entry. Nil matches all.
	Filter Matcher

	// Time range [Start, End) in Unix ms over the event timestamp.
	// Zero values mean unbounded on that side.
	Start int64
	End   int64

	// SortField is a field name ("timestamp", "level", "source", or any
	// metadata key). Empty means timestamp. Ties always break by ID so
	// pagination is stable.
	SortField string
	Ascending bool

	// Zero-based page; PageSize <= 0 means no paging (all matches).
	Page     int
	PageSize int
}

// Stats provides index health and usage info.
type Stats struct {
	TotalEntries    uint64
	DistinctSources uint64
	SizeBytes       uint64
	OldestTimestamp int64
	NewestTimestamp int64
}
