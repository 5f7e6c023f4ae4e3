/*
Package storage provides the pluggable index abstraction for logsift
log entries.

# Store Interface

logsift uses an interface-based design to support multiple index backends:
  - memory: In-memory index for testing and ephemeral workloads
  - badger: BadgerDB (LSM tree + Snappy compression) for persistent storage

All backends implement the Store interface:

	type Store interface {
	    Ingest(ctx context.Context, entries []logs.Entry) error
	    Search(ctx context.Context, req SearchRequest) ([]logs.Entry, int, error)
	    DeleteOlderThan(ctx context.Context, before int64, source string) (int, error)
	    Stats(ctx context.Context) (*Stats, error)
	    Close() error
	}

# Key layout (badger)

Keys are [timestamp ms (8 bytes)][id hash (8 bytes)], big endian. Entries
are therefore stored in event-time order, which makes the two hot paths
cheap: time-bounded search seeks straight to the range start, and
retention sweeps walk from the front and stop at the age threshold.

# Counting

Search always returns the exact total match count alongside the requested
page. Alarm thresholds compare against that count, so it is never sampled
or approximated.

# Failure semantics

Write failures are reported as *logs.IngestError and never crash the
store. Duplicate ingestion of the same physical event is tolerated;
deduplication is the producer's problem.
*/
package storage
