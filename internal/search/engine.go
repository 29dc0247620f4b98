// Package search answers case-insensitive substring queries against the last
// committed record snapshot.
package search

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Image-Text-Search-Platform/internal/store"
	"github.com/Adithya-Monish-Kumar-K/Image-Text-Search-Platform/pkg/metrics"
)

// Snapshots is the read side of the record store.
type Snapshots interface {
	Load(ctx context.Context) ([]store.Record, error)
	Version(ctx context.Context) (string, error)
}

// Engine resolves queries. It never mutates the snapshot and may be called
// while an ingestion run is in progress.
type Engine struct {
	snapshots Snapshots
	cache     *QueryCache
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

type Option func(*Engine)

// WithCache serves repeated queries for the same snapshot from cache.
func WithCache(c *QueryCache) Option {
	return func(e *Engine) { e.cache = c }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

func NewEngine(snapshots Snapshots, opts ...Option) *Engine {
	e := &Engine{
		snapshots: snapshots,
		logger:    slog.Default().With("component", "search-engine"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Normalize trims surrounding whitespace and lower-cases the query.
func Normalize(query string) string {
	return strings.ToLower(strings.TrimSpace(query))
}

// Search returns the filenames whose text contains query, ignoring case, in
// snapshot order. Duplicated filenames are returned once per record. An empty
// query matches every record. Before the first ingestion it fails with
// ErrStoreNotFound.
func (e *Engine) Search(ctx context.Context, query string) ([]string, error) {
	start := time.Now()
	q := Normalize(query)

	var (
		matches     []string
		err         error
		cacheStatus = "bypass"
	)
	if e.cache != nil {
		matches, err = e.searchCached(ctx, q, &cacheStatus)
	} else {
		matches, err = e.scan(ctx, q)
	}
	if err != nil {
		return nil, err
	}

	resultType := "hit"
	if len(matches) == 0 {
		resultType = "zero"
	}
	e.metrics.ObserveSearch(resultType, cacheStatus, time.Since(start))
	e.logger.Debug("search completed", "query", q, "matches", len(matches), "cache", cacheStatus)
	return matches, nil
}

func (e *Engine) searchCached(ctx context.Context, q string, status *string) ([]string, error) {
	version, err := e.snapshots.Version(ctx)
	if err != nil {
		return nil, err
	}
	matches, cached, err := e.cache.GetOrCompute(ctx, version, q, func() ([]string, error) {
		return e.scan(ctx, q)
	})
	if err != nil {
		return nil, err
	}
	if cached {
		*status = "hit"
		e.metrics.CacheHit()
	} else {
		*status = "miss"
		e.metrics.CacheMiss()
	}
	return matches, nil
}

func (e *Engine) scan(ctx context.Context, q string) ([]string, error) {
	records, err := e.snapshots.Load(ctx)
	if err != nil {
		return nil, err
	}
	return Match(records, q), nil
}

// Match filters records by an already normalized query.
func Match(records []store.Record, q string) []string {
	matches := make([]string, 0)
	for _, r := range records {
		if strings.Contains(strings.ToLower(r.Text), q) {
			matches = append(matches, r.Filename)
		}
	}
	return matches
}
