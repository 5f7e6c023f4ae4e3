package query

import (
	"context"

	"github.com/logsift/logsift/pkg/config"
	"github.com/logsift/logsift/pkg/logs"
	"github.com/logsift/logsift/pkg/storage"
)

// EventType identifies a streaming search event
type EventType string

const (
	// EventInit announces the histogram bucket plan before any data
	EventInit EventType = "init"
	// EventPage carries one ordered page of matches
	EventPage EventType = "page"
	// EventHistogram carries a partial histogram snapshot
	EventHistogram EventType = "histogram"
	// EventHistogramDone marks the histogram as final
	EventHistogramDone EventType = "histogram_done"
	// EventDone terminates the stream and carries the exact total
	EventDone EventType = "done"
	// EventError terminates the stream on failure
	EventError EventType = "error"
)

// StreamEvent is one element of a streaming search session.
type StreamEvent struct {
	Type EventType `json:"type"`

	// EventPage
	Entries []logs.Entry `json:"entries,omitempty"`

	// EventInit
	From        int64 `json:"from,omitempty"`
	To          int64 `json:"to,omitempty"`
	IntervalMs  int64 `json:"interval_ms,omitempty"`
	BucketCount int   `json:"bucket_count,omitempty"`

	// EventHistogram / EventHistogramDone
	Histogram []Bucket `json:"histogram,omitempty"`

	// EventDone
	Total int `json:"total,omitempty"`

	// EventError
	Err string `json:"error,omitempty"`
}

// Stream executes a query and delivers results incrementally: an init
// event with the bucket plan, ordered pages of matches (later pages never
// contain rows ranking above earlier ones), partial histogram snapshots,
// a histogram-completion event, and a final done event with the exact
// total.
//
// The returned channel is closed when the stream completes, fails, or the
// context is cancelled. Cancellation stops emission promptly; no work
// continues in the background after the channel closes. Streams are
// finite and non-restartable: one call, one session.
func (e *Executor) Stream(ctx context.Context, req Request) <-chan StreamEvent {
	out := make(chan StreamEvent, config.StreamEventBuffer)

	go func() {
		defer close(out)
		req = req.normalize()
		if req.End <= req.Start {
			emit(ctx, out, StreamEvent{Type: EventError, Err: ErrInvalidTimeRange.Error()})
			return
		}

		width, bucketCount := bucketPlan(req.Start, req.End)
		if !emit(ctx, out, StreamEvent{
			Type:        EventInit,
			From:        req.Start,
			To:          req.End,
			IntervalMs:  width,
			BucketCount: bucketCount,
		}) {
			return
		}

		matches, total, err := e.store.Search(ctx, storage.SearchRequest{
			Filter:    req.Query,
			Start:     req.Start,
			End:       req.End,
			SortField: req.SortField,
			Ascending: req.Ascending,
		})
		if err != nil {
			emit(ctx, out, StreamEvent{Type: EventError, Err: err.Error()})
			return
		}

		pageSize := req.PageSize
		if pageSize <= 0 {
			pageSize = config.StreamPageSize
		}

		// Pages are consecutive slices of one sorted snapshot, which is
		// what guarantees the ordering property across pages.
		for start := 0; start < len(matches); start += pageSize {
			end := start + pageSize
			if end > len(matches) {
				end = len(matches)
			}
			if !emit(ctx, out, StreamEvent{Type: EventPage, Entries: matches[start:end]}) {
				return
			}

			// Interleave a histogram snapshot covering what has been
			// delivered so far.
			if !emit(ctx, out, StreamEvent{
				Type:      EventHistogram,
				Histogram: buildHistogram(matches[:end], req.Start, req.End),
			}) {
				return
			}
		}

		if !emit(ctx, out, StreamEvent{
			Type:      EventHistogramDone,
			Histogram: buildHistogram(matches, req.Start, req.End),
		}) {
			return
		}
		emit(ctx, out, StreamEvent{Type: EventDone, Total: total})
	}()

	return out
}

// emit sends one event unless the session is cancelled. Returns false
// when the consumer is gone and the producer should stop.
func emit(ctx context.Context, out chan<- StreamEvent, ev StreamEvent) bool {
	select {
	case out <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}
