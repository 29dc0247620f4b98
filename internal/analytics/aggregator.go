package analytics

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Image-Text-Search-Platform/pkg/kafka"
)

// maxLatencySamples bounds the window the latency percentiles are computed
// over.
const maxLatencySamples = 10000

type Stats struct {
	TotalSearches     int64        `json:"total_searches"`
	FailedSearches    int64        `json:"failed_searches"`
	ZeroResultCount   int64        `json:"zero_result_count"`
	AvgLatencyMs      float64      `json:"avg_latency_ms"`
	P50LatencyMs      int64        `json:"p50_latency_ms"`
	P95LatencyMs      int64        `json:"p95_latency_ms"`
	P99LatencyMs      int64        `json:"p99_latency_ms"`
	TopQueries        []QueryCount `json:"top_queries"`
	ZeroResultQueries []QueryCount `json:"zero_result_queries"`
	QueriesPerMinute  float64      `json:"queries_per_minute"`
	IngestRuns        int64        `json:"ingest_runs"`
	FailedRuns        int64        `json:"failed_runs"`
	ImagesProcessed   int64        `json:"images_processed"`
	ImagesSkipped     int64        `json:"images_skipped"`
	ImagesFailed      int64        `json:"images_failed"`
}

type QueryCount struct {
	Query string `json:"query"`
	Count int64  `json:"count"`
}

// Aggregator folds events into running totals.
type Aggregator struct {
	mu        sync.RWMutex
	stats     Stats
	latencies []int64
	next      int
	queries   map[string]int64
	zeroes    map[string]int64
	startTime time.Time
	now       func() time.Time
	logger    *slog.Logger
}

func NewAggregator() *Aggregator {
	return &Aggregator{
		latencies: make([]int64, 0, 1024),
		queries:   make(map[string]int64),
		zeroes:    make(map[string]int64),
		startTime: time.Now(),
		now:       time.Now,
		logger:    slog.Default().With("component", "analytics-aggregator"),
	}
}

func (a *Aggregator) Record(e Event) {
	a.mu.Lock()
	defer a.mu.Unlock()
	switch e.Type {
	case EventSearch:
		a.stats.TotalSearches++
		if e.Failed {
			a.stats.FailedSearches++
			return
		}
		a.sample(e.LatencyMs)
		a.queries[e.Query]++
		if e.Matches == 0 {
			a.stats.ZeroResultCount++
			a.zeroes[e.Query]++
		}
	case EventIngest:
		a.stats.IngestRuns++
		if e.Failed {
			a.stats.FailedRuns++
		}
		a.stats.ImagesProcessed += int64(e.Processed)
		a.stats.ImagesSkipped += int64(e.Skipped)
		a.stats.ImagesFailed += int64(e.Errors)
	default:
		a.logger.Warn("unknown analytics event", "type", e.Type)
	}
}

func (a *Aggregator) sample(ms int64) {
	if len(a.latencies) < maxLatencySamples {
		a.latencies = append(a.latencies, ms)
		return
	}
	a.latencies[a.next] = ms
	a.next = (a.next + 1) % maxLatencySamples
}

// PublishBatch records events directly, letting a Collector feed this
// aggregator when no broker is configured.
func (a *Aggregator) PublishBatch(_ context.Context, events []kafka.Event) error {
	for _, ev := range events {
		e, ok := ev.Value.(Event)
		if !ok {
			return fmt.Errorf("unexpected analytics payload %T", ev.Value)
		}
		a.Record(e)
	}
	return nil
}

// HandleMessage is the Kafka consumer callback for the analytics topic.
// Undecodable messages are logged and acknowledged.
func (a *Aggregator) HandleMessage(_ context.Context, _ []byte, value []byte) error {
	var e Event
	if err := json.Unmarshal(value, &e); err != nil {
		a.logger.Error("failed to decode analytics event", "error", err)
		return nil
	}
	a.Record(e)
	return nil
}

func (a *Aggregator) Stats() Stats {
	a.mu.RLock()
	defer a.mu.RUnlock()

	stats := a.stats
	if len(a.latencies) > 0 {
		sorted := slices.Clone(a.latencies)
		slices.Sort(sorted)
		var sum int64
		for _, l := range sorted {
			sum += l
		}
		stats.AvgLatencyMs = float64(sum) / float64(len(sorted))
		stats.P50LatencyMs = percentile(sorted, 50)
		stats.P95LatencyMs = percentile(sorted, 95)
		stats.P99LatencyMs = percentile(sorted, 99)
	}
	stats.TopQueries = topN(a.queries, 10)
	stats.ZeroResultQueries = topN(a.zeroes, 10)
	if elapsed := a.now().Sub(a.startTime).Minutes(); elapsed > 0 {
		stats.QueriesPerMinute = float64(stats.TotalSearches) / elapsed
	}
	return stats
}

func percentile(sorted []int64, pct int) int64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := (pct * len(sorted)) / 100
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

// topN orders by count, then query, so ties are stable.
func topN(counts map[string]int64, n int) []QueryCount {
	result := make([]QueryCount, 0, len(counts))
	for q, c := range counts {
		result = append(result, QueryCount{Query: q, Count: c})
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Count != result[j].Count {
			return result[i].Count > result[j].Count
		}
		return result[i].Query < result[j].Query
	})
	if len(result) > n {
		result = result[:n]
	}
	return result
}
