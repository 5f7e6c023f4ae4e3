package badger

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"

	"github.com/cespare/xxhash/v2"
	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
	"github.com/logsift/logsift/pkg/logs"
	"github.com/logsift/logsift/pkg/storage"
)

// Store implements storage.Store using BadgerDB (LSM tree).
// Keys are time-prefixed so retention sweeps and range scans walk the
// index in timestamp order instead of scanning everything.
type Store struct {
	db *badger.DB
}

// Config holds BadgerDB configuration
type Config struct {
	// Path to store database files
	Path string

	// InMemory mode (for testing)
	InMemory bool

	// MaxMemoryMB limits BadgerDB memory usage in MB (0 = defaults).
	// Recommended: 64-128 MB for local dev, 256-512 MB for production.
	MaxMemoryMB int64
}

// New creates a BadgerDB-backed log store
func New(cfg Config) (*Store, error) {
	opts := badger.DefaultOptions(cfg.Path)

	if cfg.InMemory {
		opts = opts.WithInMemory(true)
	}

	// BadgerDB's defaults assume server-class memory. Self-hosted log
	// boxes are often small, so bound the memtable and caches.
	var memTableSize int64
	if cfg.MaxMemoryMB > 0 {
		memTableSize = cfg.MaxMemoryMB * 1024 * 1024 / 3
	} else {
		memTableSize = 16 * 1024 * 1024
	}

	opts = opts.
		WithCompression(options.Snappy).
		WithNumVersionsToKeep(1).
		WithMemTableSize(memTableSize).
		WithNumMemtables(3).
		WithBlockCacheSize(memTableSize / 2).
		WithIndexCacheSize(memTableSize / 4).
		WithMaxLevels(4).
		WithNumLevelZeroTables(2).
		WithNumLevelZeroTablesStall(4).
		WithValueThreshold(1024).
		WithNumCompactors(1).
		WithValueLogFileSize(64 << 20)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger: %w", err)
	}

	return &Store{db: db}, nil
}

// Ingest indexes a batch of entries. Visible to Search once the
// transaction commits.
func (s *Store) Ingest(ctx context.Context, entries []logs.Entry) error {
	if err := ctx.Err(); err != nil {
		return &logs.IngestError{Err: err}
	}

	done := make(chan error, 1)
	go func() {
		done <- s.db.Update(func(txn *badger.Txn) error {
			for i := range entries {
				// Check context periodically (every 100 entries)
				if i%100 == 0 {
					select {
					case <-ctx.Done():
						return ctx.Err()
					default:
					}
				}

				e := &entries[i]
				value, err := json.Marshal(e)
				if err != nil {
					return fmt.Errorf("failed to encode entry: %w", err)
				}
				if err := txn.Set(makeKey(e.Timestamp, e.ID), value); err != nil {
					return fmt.Errorf("failed to write entry: %w", err)
				}
			}
			return nil
		})
	}()

	select {
	case err := <-done:
		if err != nil {
			return &logs.IngestError{Err: err}
		}
		return nil
	case <-ctx.Done():
		return &logs.IngestError{Err: fmt.Errorf("ingest cancelled: %w", ctx.Err())}
	}
}

// Search returns matching entries, sorted and paged, plus the exact total
func (s *Store) Search(ctx context.Context, req storage.SearchRequest) ([]logs.Entry, int, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}

	type searchResult struct {
		matches []logs.Entry
		err     error
	}
	done := make(chan searchResult, 1)

	go func() {
		var matches []logs.Entry
		err := s.db.View(func(txn *badger.Txn) error {
			opts := badger.DefaultIteratorOptions
			opts.PrefetchSize = 100

			it := txn.NewIterator(opts)
			defer it.Close()

			var iterCount int
			for it.Seek(seekKey(req.Start)); it.Valid(); it.Next() {
				iterCount++
				// Check for cancellation every 1000 iterations so a slow
				// scan cannot block shutdown past the caller's timeout.
				if iterCount%1000 == 0 {
					select {
					case <-ctx.Done():
						return ctx.Err()
					default:
					}
				}

				item := it.Item()

				// Keys are timestamp-ordered: stop at the range end.
				ts := keyTimestamp(item.Key())
				if req.End != 0 && ts >= req.End {
					break
				}

				err := item.Value(func(val []byte) error {
					var e logs.Entry
					if err := json.Unmarshal(val, &e); err != nil {
						return err
					}
					if req.Filter != nil && !req.Filter.Match(&e) {
						return nil
					}
					matches = append(matches, e)
					return nil
				})
				if err != nil {
					return err
				}
			}
			return nil
		})
		done <- searchResult{matches: matches, err: err}
	}()

	select {
	case res := <-done:
		if res.err != nil {
			return nil, 0, res.err
		}
		total := len(res.matches)
		storage.SortEntries(res.matches, req.SortField, req.Ascending)
		return storage.Page(res.matches, req.Page, req.PageSize), total, nil
	case <-ctx.Done():
		return nil, 0, fmt.Errorf("search cancelled: %w", ctx.Err())
	}
}

// DeleteOlderThan removes entries with Timestamp < before, optionally
// scoped to one source
func (s *Store) DeleteOlderThan(ctx context.Context, before int64, source string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	type deleteResult struct {
		count int
		err   error
	}
	done := make(chan deleteResult, 1)

	go func() {
		var deleted int
		err := s.db.Update(func(txn *badger.Txn) error {
			iterOpts := badger.DefaultIteratorOptions
			// Values are only needed to check the source filter
			iterOpts.PrefetchValues = source != ""

			it := txn.NewIterator(iterOpts)
			defer it.Close()

			var keysToDelete [][]byte
			var iterCount int

			for it.Rewind(); it.Valid(); it.Next() {
				iterCount++
				if iterCount%1000 == 0 {
					select {
					case <-ctx.Done():
						return ctx.Err()
					default:
					}
				}

				item := it.Item()
				if keyTimestamp(item.Key()) >= before {
					// Time-ordered keys: everything after is newer.
					break
				}

				if source != "" {
					var e logs.Entry
					if err := item.Value(func(val []byte) error {
						return json.Unmarshal(val, &e)
					}); err != nil {
						return fmt.Errorf("failed to decode entry: %w", err)
					}
					if e.Source != source {
						continue
					}
				}

				keysToDelete = append(keysToDelete, item.KeyCopy(nil))
			}

			for _, key := range keysToDelete {
				if err := txn.Delete(key); err != nil {
					return err
				}
			}
			deleted = len(keysToDelete)
			return nil
		})
		done <- deleteResult{count: deleted, err: err}
	}()

	select {
	case res := <-done:
		return res.count, res.err
	case <-ctx.Done():
		return 0, fmt.Errorf("delete cancelled: %w", ctx.Err())
	}
}

// Stats returns index statistics
func (s *Store) Stats(ctx context.Context) (*storage.Stats, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	stats := &storage.Stats{}
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = true

		it := txn.NewIterator(opts)
		defer it.Close()

		sources := make(map[string]bool)
		var iterCount int
		for it.Rewind(); it.Valid(); it.Next() {
			iterCount++
			if iterCount%1000 == 0 {
				select {
				case <-ctx.Done():
					return ctx.Err()
				default:
				}
			}

			item := it.Item()
			stats.TotalEntries++

			ts := keyTimestamp(item.Key())
			if stats.OldestTimestamp == 0 || ts < stats.OldestTimestamp {
				stats.OldestTimestamp = ts
			}
			if ts > stats.NewestTimestamp {
				stats.NewestTimestamp = ts
			}

			var e logs.Entry
			if err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &e)
			}); err != nil {
				return err
			}
			sources[e.Source] = true
		}

		stats.DistinctSources = uint64(len(sources))
		return nil
	})
	if err != nil {
		return nil, err
	}

	lsmSize, vlogSize := s.db.Size()
	stats.SizeBytes = uint64(lsmSize + vlogSize)
	return stats, nil
}

// Close shuts down BadgerDB cleanly
func (s *Store) Close() error {
	return s.db.Close()
}

// RunGC runs BadgerDB's value log garbage collection to reclaim disk
// space from deleted entries.
// discardRatio: run GC if this fraction of a file can be discarded.
func (s *Store) RunGC(discardRatio float64) error {
	return s.db.RunValueLogGC(discardRatio)
}

// makeKey creates a sortable key: timestamp + id hash
// Format: [timestamp ms (8 bytes)][id hash (8 bytes)]
func makeKey(ts int64, id string) []byte {
	key := make([]byte, 16)
	binary.BigEndian.PutUint64(key[0:8], uint64(ts))
	binary.BigEndian.PutUint64(key[8:16], xxhash.Sum64String(id))
	return key
}

// seekKey returns the smallest key at or after the given timestamp
func seekKey(ts int64) []byte {
	if ts < 0 {
		ts = 0
	}
	key := make([]byte, 16)
	binary.BigEndian.PutUint64(key[0:8], uint64(ts))
	return key
}

// keyTimestamp extracts the timestamp prefix from a storage key
func keyTimestamp(key []byte) int64 {
	return int64(binary.BigEndian.Uint64(key[0:8]))
}
