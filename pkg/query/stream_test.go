package query

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/logsift/logsift/pkg/logs"
	"github.com/logsift/logsift/pkg/storage/memory"
)

// collect drains a stream into a slice
func collect(ch <-chan StreamEvent) []StreamEvent {
	var events []StreamEvent
	for ev := range ch {
		events = append(events, ev)
	}
	return events
}

func TestStreamEventSequence(t *testing.T) {
	store := memory.New()
	start, end := seedEntries(t, store)
	executor := NewExecutor(store)

	q, _ := Parse("*")
	events := collect(executor.Stream(context.Background(), Request{
		Query: q, Start: start, End: end, PageSize: 2,
	}))

	if len(events) == 0 {
		t.Fatal("no events")
	}
	if events[0].Type != EventInit {
		t.Fatalf("expected init first, got %v", events[0].Type)
	}
	if events[0].From != start || events[0].To != end {
		t.Errorf("init range [%d,%d) != requested [%d,%d)", events[0].From, events[0].To, start, end)
	}
	if events[0].IntervalMs != BucketWidth(end-start) {
		t.Errorf("init interval %d != bucket width", events[0].IntervalMs)
	}

	last := events[len(events)-1]
	if last.Type != EventDone {
		t.Fatalf("expected done last, got %v", last.Type)
	}
	if last.Total != 5 {
		t.Errorf("expected total 5, got %d", last.Total)
	}

	// 5 entries, page size 2: pages of 2, 2, 1
	var pages [][]logs.Entry
	sawHistogramDone := false
	for _, ev := range events {
		switch ev.Type {
		case EventPage:
			pages = append(pages, ev.Entries)
		case EventHistogramDone:
			sawHistogramDone = true
		}
	}
	if len(pages) != 3 {
		t.Fatalf("expected 3 pages, got %d", len(pages))
	}
	if len(pages[0]) != 2 || len(pages[1]) != 2 || len(pages[2]) != 1 {
		t.Errorf("unexpected page sizes: %d, %d, %d", len(pages[0]), len(pages[1]), len(pages[2]))
	}
	if !sawHistogramDone {
		t.Error("expected a histogram_done event before done")
	}
}

func TestStreamOrderingAcrossPages(t *testing.T) {
	store := memory.New()
	start, end := seedEntries(t, store)
	executor := NewExecutor(store)

	q, _ := Parse("*")
	events := collect(executor.Stream(context.Background(), Request{
		Query: q, Start: start, End: end, PageSize: 2,
	}))

	// Flatten pages in arrival order; default sort is timestamp descending,
	// and later pages must never rank above earlier ones.
	var flat []logs.Entry
	for _, ev := range events {
		if ev.Type == EventPage {
			flat = append(flat, ev.Entries...)
		}
	}
	for i := 1; i < len(flat); i++ {
		if flat[i-1].Timestamp < flat[i].Timestamp {
			t.Fatalf("ordering violated across pages at index %d", i)
		}
	}
}

func TestStreamFinalHistogramMatchesTotal(t *testing.T) {
	store := memory.New()
	start, end := seedEntries(t, store)
	executor := NewExecutor(store)

	q, _ := Parse(`level="ERROR"`)
	events := collect(executor.Stream(context.Background(), Request{
		Query: q, Start: start, End: end,
	}))

	var final []Bucket
	total := -1
	for _, ev := range events {
		switch ev.Type {
		case EventHistogramDone:
			final = ev.Histogram
		case EventDone:
			total = ev.Total
		}
	}
	if total != 3 {
		t.Fatalf("expected total 3, got %d", total)
	}
	sum := 0
	for _, b := range final {
		sum += b.Count
	}
	if sum != total {
		t.Errorf("final histogram sum %d != total %d", sum, total)
	}
}

func TestStreamCancellationStopsEmission(t *testing.T) {
	store := memory.New()

	// Enough entries for many pages so cancellation lands mid-stream
	now := time.Now().UnixMilli()
	entries := make([]logs.Entry, 500)
	for i := range entries {
		entries[i] = logs.Entry{
			ID:        fmt.Sprintf("e%d", i),
			Timestamp: now - int64(i)*1000,
			Level:     "INFO",
			Message:   "filler",
			Source:    "api",
		}
	}
	if err := store.Ingest(context.Background(), entries); err != nil {
		t.Fatalf("Ingest failed: %v", err)
	}

	executor := NewExecutor(store)
	q, _ := Parse("*")

	ctx, cancel := context.WithCancel(context.Background())
	ch := executor.Stream(ctx, Request{Query: q, Start: now - 600_000, End: now + 1, PageSize: 10})

	// Read a couple of events, then walk away
	<-ch
	<-ch
	cancel()

	// The channel must close promptly without delivering the whole stream
	deadline := time.After(2 * time.Second)
	n := 0
	for {
		select {
		case _, ok := <-ch:
			if !ok {
				if n >= 100 {
					t.Errorf("expected early termination, drained %d events", n)
				}
				return
			}
			n++
		case <-deadline:
			t.Fatal("stream did not close after cancellation")
		}
	}
}

func TestStreamEmptyResult(t *testing.T) {
	store := memory.New()
	executor := NewExecutor(store)

	q, _ := Parse(`level="ERROR"`)
	events := collect(executor.Stream(context.Background(), Request{
		Query: q, Start: 1, End: 600_001,
	}))

	// init, histogram_done, done: no pages for an empty result
	if len(events) != 3 {
		t.Fatalf("expected 3 events, got %d", len(events))
	}
	if events[0].Type != EventInit || events[1].Type != EventHistogramDone || events[2].Type != EventDone {
		t.Errorf("unexpected sequence: %v %v %v", events[0].Type, events[1].Type, events[2].Type)
	}
	if events[2].Total != 0 {
		t.Errorf("expected total 0, got %d", events[2].Total)
	}
}

func TestStreamExtremeRangeTerminates(t *testing.T) {
	store := memory.New()
	executor := NewExecutor(store)
	q, _ := Parse("*")

	// A hostile start must not crash the producer goroutine; the range
	// is floored at the epoch and the stream runs to completion.
	events := collect(executor.Stream(context.Background(), Request{
		Query: q,
		Start: -9_200_000_000_000_000_000,
		End:   100,
	}))
	if len(events) == 0 {
		t.Fatal("expected at least one event")
	}
	last := events[len(events)-1]
	if last.Type != EventDone {
		t.Errorf("expected the stream to finish with done, got %s", last.Type)
	}
}

func TestStreamInvertedRangeErrors(t *testing.T) {
	store := memory.New()
	executor := NewExecutor(store)
	q, _ := Parse("*")

	events := collect(executor.Stream(context.Background(), Request{
		Query: q, Start: 200, End: 100,
	}))
	if len(events) != 1 || events[0].Type != EventError {
		t.Fatalf("expected a single error event, got %+v", events)
	}
}
