package memory

import (
	"context"
	"sync"

	"github.com/logsift/logsift/pkg/logs"
	"github.com/logsift/logsift/pkg/storage"
)

// Store keeps entries in memory. Data is lost on restart.
// Useful for testing and development.
type Store struct {
	entries []logs.Entry
	mu      sync.RWMutex
}

// New creates an in-memory log store
func New() *Store {
	return &Store{
		entries: make([]logs.Entry, 0, 10000),
	}
}

// Ingest appends entries to the store
func (s *Store) Ingest(ctx context.Context, entries []logs.Entry) error {
	if err := ctx.Err(); err != nil {
		return &logs.IngestError{Err: err}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries = append(s.entries, entries...)
	return nil
}

// Search returns matching entries, sorted and paged, plus the exact total
func (s *Store) Search(ctx context.Context, req storage.SearchRequest) ([]logs.Entry, int, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}

	s.mu.RLock()
	matches := make([]logs.Entry, 0, len(s.entries))
	for i := range s.entries {
		e := &s.entries[i]
		if !inRange(e.Timestamp, req.Start, req.End) {
			continue
		}
		if req.Filter != nil && !req.Filter.Match(e) {
			continue
		}
		matches = append(matches, *e)
	}
	s.mu.RUnlock()

	total := len(matches)
	storage.SortEntries(matches, req.SortField, req.Ascending)
	return storage.Page(matches, req.Page, req.PageSize), total, nil
}

// DeleteOlderThan removes entries with Timestamp < before, optionally
// scoped to one source
func (s *Store) DeleteOlderThan(ctx context.Context, before int64, source string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	kept := make([]logs.Entry, 0, len(s.entries))
	deleted := 0
	for _, e := range s.entries {
		if e.Timestamp < before && (source == "" || e.Source == source) {
			deleted++
			continue
		}
		kept = append(kept, e)
	}
	s.entries = kept
	return deleted, nil
}

// Stats returns index statistics
func (s *Store) Stats(ctx context.Context) (*storage.Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := &storage.Stats{
		TotalEntries: uint64(len(s.entries)),
	}
	if len(s.entries) == 0 {
		return stats, nil
	}

	sources := make(map[string]bool)
	oldest := s.entries[0].Timestamp
	newest := s.entries[0].Timestamp
	for _, e := range s.entries {
		sources[e.Source] = true
		if e.Timestamp < oldest {
			oldest = e.Timestamp
		}
		if e.Timestamp > newest {
			newest = e.Timestamp
		}
	}

	stats.DistinctSources = uint64(len(sources))
	stats.OldestTimestamp = oldest
	stats.NewestTimestamp = newest
	// Rough size estimate (each entry ~200 bytes)
	stats.SizeBytes = uint64(len(s.entries)) * 200
	return stats, nil
}

// Close is a no-op for memory storage
func (s *Store) Close() error {
	return nil
}

// inRange checks [start, end) over Unix ms; zero bounds are open
func inRange(ts, start, end int64) bool {
	if start != 0 && ts < start {
		return false
	}
	if end != 0 && ts >= end {
		return false
	}
	return true
}
