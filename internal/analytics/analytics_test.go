package analytics

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Image-Text-Search-Platform/pkg/kafka"
)

func TestAggregatorStats(t *testing.T) {
	a := NewAggregator()
	for i, q := range []string{"total", "total", "invoice", "zzz", "zzz", "zzz"} {
		matches := 2
		if q == "zzz" {
			matches = 0
		}
		a.Record(Event{Type: EventSearch, Query: q, Matches: matches, LatencyMs: int64(i + 1)})
	}
	a.Record(Event{Type: EventSearch, Query: "boom", Failed: true})
	a.Record(Event{Type: EventIngest, Processed: 2, Skipped: 1, Errors: 1})
	a.Record(Event{Type: EventIngest, Failed: true})

	s := a.Stats()
	if s.TotalSearches != 7 || s.FailedSearches != 1 || s.ZeroResultCount != 3 {
		t.Errorf("search totals = %d/%d/%d, want 7/1/3", s.TotalSearches, s.FailedSearches, s.ZeroResultCount)
	}
	if s.IngestRuns != 2 || s.FailedRuns != 1 || s.ImagesProcessed != 2 || s.ImagesSkipped != 1 || s.ImagesFailed != 1 {
		t.Errorf("ingest totals = %+v", s)
	}
	if len(s.TopQueries) != 3 || s.TopQueries[0] != (QueryCount{Query: "zzz", Count: 3}) || s.TopQueries[1] != (QueryCount{Query: "total", Count: 2}) {
		t.Errorf("top queries = %v", s.TopQueries)
	}
	if len(s.ZeroResultQueries) != 1 || s.ZeroResultQueries[0].Query != "zzz" {
		t.Errorf("zero result queries = %v", s.ZeroResultQueries)
	}
	if s.AvgLatencyMs != 3.5 || s.P50LatencyMs != 4 || s.P99LatencyMs != 6 {
		t.Errorf("latency avg/p50/p99 = %v/%d/%d", s.AvgLatencyMs, s.P50LatencyMs, s.P99LatencyMs)
	}
}

func TestAggregatorLatencyWindowIsBounded(t *testing.T) {
	a := NewAggregator()
	for i := 0; i < maxLatencySamples+500; i++ {
		a.Record(Event{Type: EventSearch, Query: "q", Matches: 1, LatencyMs: 1})
	}
	if n := len(a.latencies); n != maxLatencySamples {
		t.Errorf("samples = %d, want %d", n, maxLatencySamples)
	}
}

func TestHandleMessage(t *testing.T) {
	a := NewAggregator()
	value, _ := json.Marshal(Event{Type: EventSearch, Query: "x", Matches: 1})
	if err := a.HandleMessage(context.Background(), nil, value); err != nil {
		t.Fatal(err)
	}
	if err := a.HandleMessage(context.Background(), nil, []byte("{not json")); err != nil {
		t.Errorf("undecodable message returned %v, want nil", err)
	}
	if s := a.Stats(); s.TotalSearches != 1 {
		t.Errorf("total searches = %d, want 1", s.TotalSearches)
	}
}

type recordingPublisher struct {
	mu      sync.Mutex
	batches [][]kafka.Event
	fail    bool
}

func (p *recordingPublisher) PublishBatch(_ context.Context, events []kafka.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail {
		return errors.New("broker unavailable")
	}
	p.batches = append(p.batches, events)
	return nil
}

func TestCollectorFlushesToAggregator(t *testing.T) {
	a := NewAggregator()
	c := NewCollector(a, 100, time.Hour)
	c.Track(Event{Type: EventSearch, Query: "a", Matches: 1})
	c.Track(Event{Type: EventIngest, Processed: 3})
	if c.BufferLen() != 2 {
		t.Fatalf("buffer = %d, want 2", c.BufferLen())
	}
	c.Flush(context.Background())
	if c.BufferLen() != 0 {
		t.Errorf("buffer = %d after flush", c.BufferLen())
	}
	if s := a.Stats(); s.TotalSearches != 1 || s.ImagesProcessed != 3 {
		t.Errorf("stats = %+v", s)
	}
}

func TestCollectorRequeuesOnFailure(t *testing.T) {
	p := &recordingPublisher{fail: true}
	c := NewCollector(p, 2, time.Hour)
	for i := 0; i < 10; i++ {
		c.mu.Lock()
		c.buffer = append(c.buffer, kafka.Event{Key: "search", Value: Event{Type: EventSearch}})
		c.mu.Unlock()
		c.Flush(context.Background())
	}
	if n := c.BufferLen(); n != 6 {
		t.Errorf("buffer = %d, want capped at 6", n)
	}

	p.mu.Lock()
	p.fail = false
	p.mu.Unlock()
	c.Flush(context.Background())
	if c.BufferLen() != 0 || len(p.batches) != 1 || len(p.batches[0]) != 6 {
		t.Errorf("after recovery buffer = %d batches = %d", c.BufferLen(), len(p.batches))
	}
}

func TestCollectorFinalFlushOnShutdown(t *testing.T) {
	p := &recordingPublisher{}
	c := NewCollector(p, 100, time.Hour)
	ctx, cancel := context.WithCancel(context.Background())
	c.Start(ctx)
	c.Track(Event{Type: EventSearch, Query: "late"})
	cancel()
	c.Close()

	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.batches) != 1 {
		t.Fatalf("batches = %d, want 1", len(p.batches))
	}
	if e := p.batches[0][0].Value.(Event); e.Timestamp.IsZero() {
		t.Error("Track did not stamp the event")
	}
}

func TestStatsHandler(t *testing.T) {
	a := NewAggregator()
	a.Record(Event{Type: EventSearch, Query: "q", Matches: 0})
	rec := httptest.NewRecorder()
	NewHandler(a).Stats(rec, httptest.NewRequest(http.MethodGet, "/api/v1/analytics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var s Stats
	if err := json.NewDecoder(rec.Body).Decode(&s); err != nil {
		t.Fatal(err)
	}
	if s.TotalSearches != 1 || s.ZeroResultCount != 1 {
		t.Errorf("stats = %+v", s)
	}
}
