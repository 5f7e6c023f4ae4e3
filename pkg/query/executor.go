package query

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/logsift/logsift/pkg/config"
	"github.com/logsift/logsift/pkg/logs"
	"github.com/logsift/logsift/pkg/storage"
)

// ErrInvalidTimeRange rejects a request whose normalized range is empty
// or inverted. It is a caller-input failure, like a parse error.
var ErrInvalidTimeRange = errors.New("invalid time range: end must be after start")

// Executor runs parsed queries against a log store
type Executor struct {
	store storage.Store
}

// NewExecutor creates a new query executor
func NewExecutor(store storage.Store) *Executor {
	return &Executor{store: store}
}

// Request describes one search execution.
type Request struct {
	Query *Query

	// Time range [Start, End) in Unix ms. If either bound is zero the
	// range defaults to the last config.DefaultSearchWindow ending now.
	Start int64
	End   int64

	// Sorting; empty SortField means timestamp, default descending.
	SortField string
	Ascending bool

	// Zero-based paging. PageSize <= 0 uses config.DefaultPageSize.
	Page     int
	PageSize int
}

// normalize fills in range and paging defaults. Only a missing bound is
// defaulted: a zero End becomes now, a zero Start becomes End minus the
// default search window. Start is floored at the epoch since timestamps
// are Unix ms.
func (r Request) normalize() Request {
	if r.End == 0 {
		r.End = time.Now().UnixMilli()
	}
	if r.Start == 0 {
		r.Start = r.End - config.DefaultSearchWindow.Milliseconds()
	}
	if r.Start < 0 {
		r.Start = 0
	}
	if r.PageSize <= 0 {
		r.PageSize = config.DefaultPageSize
	}
	if r.PageSize > config.MaxPageSize {
		r.PageSize = config.MaxPageSize
	}
	if r.Page < 0 {
		r.Page = 0
	}
	return r
}

// Search executes a query and assembles the full result: the requested
// page, the exact total, the zero-filled histogram over the whole range,
// and the aggregation table when the query has a pipeline.
func (e *Executor) Search(ctx context.Context, req Request) (*SearchResult, error) {
	req = req.normalize()
	if req.End <= req.Start {
		return nil, ErrInvalidTimeRange
	}

	// Fetch all matches once; paging, histogram and aggregation are all
	// derived from the same snapshot so their numbers agree.
	matches, total, err := e.store.Search(ctx, storage.SearchRequest{
		Filter:    req.Query,
		Start:     req.Start,
		End:       req.End,
		SortField: req.SortField,
		Ascending: req.Ascending,
	})
	if err != nil {
		return nil, &logs.SearchExecutionError{Query: req.Query.String(), Err: err}
	}

	result := &SearchResult{
		Matches:    storage.Page(matches, req.Page, req.PageSize),
		TotalCount: total,
		Histogram:  buildHistogram(matches, req.Start, req.End),
	}
	if req.Query.Pipeline != nil {
		result.Aggregation = aggregate(matches, req.Query.Pipeline)
	}
	return result, nil
}

// Metric computes the alarm metric for a query over a time range: the
// total match count, or the top group's count when the query has a
// pipeline.
func (e *Executor) Metric(ctx context.Context, q *Query, start, end int64) (int, error) {
	matches, total, err := e.store.Search(ctx, storage.SearchRequest{
		Filter: q,
		Start:  start,
		End:    end,
	})
	if err != nil {
		return 0, &logs.SearchExecutionError{Query: q.String(), Err: err}
	}
	if q.Pipeline == nil {
		return total, nil
	}
	groups := aggregate(matches, q.Pipeline)
	if len(groups) == 0 {
		return 0, nil
	}
	return groups[0].Count, nil
}

// BucketWidth selects the histogram bucket width for a total range:
// narrow buckets for short ranges, 30m for anything beyond 12h.
func BucketWidth(rangeMs int64) int64 {
	switch {
	case rangeMs <= config.HistogramRange1h.Milliseconds():
		return config.HistogramBucket1m.Milliseconds()
	case rangeMs <= config.HistogramRange3h.Milliseconds():
		return config.HistogramBucket5m.Milliseconds()
	case rangeMs <= config.HistogramRange12h.Milliseconds():
		return config.HistogramBucket15m.Milliseconds()
	default:
		return config.HistogramBucket30m.Milliseconds()
	}
}

// bucketPlan picks the width and bucket count for a histogram over
// [start, end) with end > start. The count never exceeds
// config.HistogramMaxBuckets: a range too large for the standard widths
// gets proportionally wider buckets instead of an unbounded allocation.
// All arithmetic stays in milliseconds to avoid int64 overflow on
// extreme ranges.
func bucketPlan(start, end int64) (width int64, n int) {
	r := end - start
	width = BucketWidth(r)
	count := ceilDiv(r, width)
	if count > config.HistogramMaxBuckets {
		width = ceilDiv(r, config.HistogramMaxBuckets)
		count = ceilDiv(r, width)
	}
	return width, int(count)
}

func ceilDiv(a, b int64) int64 {
	q := a / b
	if a%b != 0 {
		q++
	}
	return q
}

// buildHistogram counts matches into contiguous fixed-width buckets
// covering [start, end), zero-count buckets included, so charts show
// gaps correctly regardless of data density. When the width does not
// divide the range the final bucket nominally extends past end, but it
// only ever counts entries inside [start, end).
func buildHistogram(matches []logs.Entry, start, end int64) []Bucket {
	if end <= start {
		return []Bucket{}
	}

	width, n := bucketPlan(start, end)

	buckets := make([]Bucket, n)
	for i := range buckets {
		buckets[i].BucketStart = start + int64(i)*width
	}

	for i := range matches {
		ts, ok := bucketTime(&matches[i], start, end)
		if !ok {
			continue
		}
		idx := int((ts - start) / width)
		if idx >= 0 && idx < n {
			buckets[idx].Count++
		}
	}
	return buckets
}

// bucketTime picks the within-range time for an entry: record time when
// it falls inside the range, else the event timestamp.
func bucketTime(e *logs.Entry, start, end int64) (int64, bool) {
	if e.RecordTime != 0 && e.RecordTime >= start && e.RecordTime < end {
		return e.RecordTime, true
	}
	if e.Timestamp >= start && e.Timestamp < end {
		return e.Timestamp, true
	}
	return 0, false
}

// aggregate groups matches by the pipeline field's string value. Entries
// missing the field land in one "<empty>" group. Groups are ordered by
// count descending, ties by key ascending.
func aggregate(matches []logs.Entry, agg *Aggregation) []Group {
	counts := make(map[string]int)
	for i := range matches {
		key, ok := matches[i].Field(agg.GroupBy)
		if !ok {
			key = "<empty>"
		}
		counts[key]++
	}

	groups := make([]Group, 0, len(counts))
	for key, count := range counts {
		groups = append(groups, Group{Key: key, Count: count})
	}
	sort.Slice(groups, func(i, j int) bool {
		if groups[i].Count != groups[j].Count {
			return groups[i].Count > groups[j].Count
		}
		return groups[i].Key < groups[j].Key
	})
	return groups
}
