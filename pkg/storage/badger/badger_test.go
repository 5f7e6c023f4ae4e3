package badger

import (
	"bytes"
	"context"
	"errors"
	"os"
	"testing"

	"github.com/logsift/logsift/pkg/logs"
	"github.com/logsift/logsift/pkg/storage"
)

// sourceFilter matches entries from one source
type sourceFilter struct {
	source string
}

func (f *sourceFilter) Match(e *logs.Entry) bool {
	return e.Source == f.source
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := New(Config{InMemory: true})
	if err != nil {
		t.Fatalf("Failed to create storage: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestBadgerIngestAndSearch(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	entries := []logs.Entry{
		{ID: "1", Timestamp: 1000, Level: "ERROR", Message: "boom", Source: "api"},
		{ID: "2", Timestamp: 2000, Level: "INFO", Message: "ok", Source: "api"},
		{ID: "3", Timestamp: 3000, Level: "ERROR", Message: "boom", Source: "web"},
	}
	if err := store.Ingest(ctx, entries); err != nil {
		t.Fatalf("Ingest failed: %v", err)
	}

	results, total, err := store.Search(ctx, storage.SearchRequest{
		Filter: &sourceFilter{source: "api"},
	})
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if total != 2 || len(results) != 2 {
		t.Errorf("expected 2 api entries, got total=%d len=%d", total, len(results))
	}
}

func TestBadgerSearchRangeSeek(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	var entries []logs.Entry
	for i := int64(0); i < 20; i++ {
		entries = append(entries, logs.Entry{
			ID:        string(rune('a' + i)),
			Timestamp: i * 1000,
			Source:    "api",
		})
	}
	if err := store.Ingest(ctx, entries); err != nil {
		t.Fatalf("Ingest failed: %v", err)
	}

	// [5000, 10000): entries 5..9 only
	results, total, err := store.Search(ctx, storage.SearchRequest{Start: 5000, End: 10000})
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if total != 5 {
		t.Errorf("expected 5 entries in range, got %d", total)
	}
	for _, e := range results {
		if e.Timestamp < 5000 || e.Timestamp >= 10000 {
			t.Errorf("entry at %d outside [5000,10000)", e.Timestamp)
		}
	}
}

func TestBadgerSearchSortAndPage(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	entries := []logs.Entry{
		{ID: "1", Timestamp: 1000},
		{ID: "2", Timestamp: 3000},
		{ID: "3", Timestamp: 2000},
	}
	if err := store.Ingest(ctx, entries); err != nil {
		t.Fatalf("Ingest failed: %v", err)
	}

	results, total, err := store.Search(ctx, storage.SearchRequest{PageSize: 2})
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if total != 3 {
		t.Errorf("expected total 3, got %d", total)
	}
	if len(results) != 2 || results[0].Timestamp != 3000 {
		t.Errorf("expected newest-first page of 2, got %+v", results)
	}
}

func TestBadgerDeleteOlderThan(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	entries := []logs.Entry{
		{ID: "1", Timestamp: 1000, Source: "api"},
		{ID: "2", Timestamp: 2000, Source: "web"},
		{ID: "3", Timestamp: 5000, Source: "api"},
	}
	if err := store.Ingest(ctx, entries); err != nil {
		t.Fatalf("Ingest failed: %v", err)
	}

	deleted, err := store.DeleteOlderThan(ctx, 3000, "")
	if err != nil {
		t.Fatalf("DeleteOlderThan failed: %v", err)
	}
	if deleted != 2 {
		t.Errorf("expected 2 deleted, got %d", deleted)
	}

	_, total, err := store.Search(ctx, storage.SearchRequest{})
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if total != 1 {
		t.Errorf("expected 1 surviving entry, got %d", total)
	}
}

func TestBadgerDeleteScopedToSource(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	entries := []logs.Entry{
		{ID: "1", Timestamp: 1000, Source: "api"},
		{ID: "2", Timestamp: 1500, Source: "web"},
		{ID: "3", Timestamp: 5000, Source: "api"},
	}
	if err := store.Ingest(ctx, entries); err != nil {
		t.Fatalf("Ingest failed: %v", err)
	}

	deleted, err := store.DeleteOlderThan(ctx, 3000, "api")
	if err != nil {
		t.Fatalf("DeleteOlderThan failed: %v", err)
	}
	if deleted != 1 {
		t.Errorf("expected 1 api entry deleted, got %d", deleted)
	}

	// The old web entry must survive a scoped sweep
	results, _, err := store.Search(ctx, storage.SearchRequest{End: 3000})
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(results) != 1 || results[0].Source != "web" {
		t.Errorf("expected the web entry to survive, got %+v", results)
	}
}

func TestBadgerStats(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	entries := []logs.Entry{
		{ID: "1", Timestamp: 1000, Source: "api"},
		{ID: "2", Timestamp: 4000, Source: "web"},
	}
	if err := store.Ingest(ctx, entries); err != nil {
		t.Fatalf("Ingest failed: %v", err)
	}

	stats, err := store.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if stats.TotalEntries != 2 {
		t.Errorf("expected 2 entries, got %d", stats.TotalEntries)
	}
	if stats.DistinctSources != 2 {
		t.Errorf("expected 2 sources, got %d", stats.DistinctSources)
	}
	if stats.OldestTimestamp != 1000 || stats.NewestTimestamp != 4000 {
		t.Errorf("unexpected bounds [%d,%d]", stats.OldestTimestamp, stats.NewestTimestamp)
	}
}

func TestBadgerPersistence(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "logsift-badger-*")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(tmpDir)

	ctx := context.Background()

	{
		store, err := New(Config{Path: tmpDir})
		if err != nil {
			t.Fatalf("Failed to create storage: %v", err)
		}
		err = store.Ingest(ctx, []logs.Entry{
			{ID: "persist-1", Timestamp: 1000, Level: "INFO", Message: "survives restart"},
		})
		if err != nil {
			t.Fatalf("Ingest failed: %v", err)
		}
		if err := store.Close(); err != nil {
			t.Fatalf("Close failed: %v", err)
		}
	}

	store, err := New(Config{Path: tmpDir})
	if err != nil {
		t.Fatalf("Failed to reopen storage: %v", err)
	}
	defer store.Close()

	results, total, err := store.Search(ctx, storage.SearchRequest{})
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if total != 1 || results[0].ID != "persist-1" {
		t.Errorf("expected the persisted entry, got total=%d %+v", total, results)
	}
}

func TestBadgerIngestCancelled(t *testing.T) {
	store := newTestStore(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := store.Ingest(ctx, []logs.Entry{{ID: "1", Timestamp: 1000}})
	if err == nil {
		t.Fatal("expected error from cancelled context")
	}
	var ierr *logs.IngestError
	if !errors.As(err, &ierr) {
		t.Fatalf("expected *IngestError, got %T", err)
	}
}

func TestKeyOrdering(t *testing.T) {
	a := makeKey(1000, "x")
	b := makeKey(2000, "x")
	if !(bytes.Compare(a, b) < 0) {
		t.Error("keys must sort by timestamp")
	}

	// Same timestamp, different IDs: distinct keys
	c := makeKey(1000, "y")
	if bytes.Equal(a, c) {
		t.Error("distinct IDs must not collide at the same timestamp")
	}

	if keyTimestamp(a) != 1000 {
		t.Errorf("expected timestamp 1000, got %d", keyTimestamp(a))
	}

	// seekKey lands at or before every key with that timestamp
	if bytes.Compare(seekKey(1000), a) > 0 {
		t.Error("seekKey must not skip keys at its timestamp")
	}
}
