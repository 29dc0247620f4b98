// Package pipeline drives one ingestion run: walk the archive, extract text
// from every image, then replace the record snapshot in a single save.
//
// A failure on one image is recorded against that image and never stops the
// run. An unreadable archive stops the run before any OCR work and leaves the
// snapshot untouched.
package pipeline

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/Adithya-Monish-Kumar-K/Image-Text-Search-Platform/internal/archive"
	"github.com/Adithya-Monish-Kumar-K/Image-Text-Search-Platform/internal/ocr"
	"github.com/Adithya-Monish-Kumar-K/Image-Text-Search-Platform/internal/store"
	"github.com/Adithya-Monish-Kumar-K/Image-Text-Search-Platform/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/Image-Text-Search-Platform/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Image-Text-Search-Platform/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/Image-Text-Search-Platform/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/Image-Text-Search-Platform/pkg/resilience"
	"github.com/Adithya-Monish-Kumar-K/Image-Text-Search-Platform/pkg/tracing"
)

// Extractor turns image bytes into text. *ocr.Adapter implements it.
type Extractor interface {
	Extract(ctx context.Context, data []byte) (string, error)
}

// Saver replaces the record snapshot. *store.CSVStore implements it.
type Saver interface {
	Save(ctx context.Context, records []store.Record) error
}

// Stats counts archive file entries by outcome. Directories are not counted.
type Stats struct {
	Processed int `json:"processed"`
	Skipped   int `json:"skipped"`
	Failed    int `json:"failed"`
}

// ItemResult is the outcome for one image entry: exactly one of Record and
// Err is set.
type ItemResult struct {
	Index    int
	Name     string
	Record   *store.Record
	Err      error
	Duration time.Duration
}

func (r ItemResult) OK() bool { return r.Err == nil }

// Result describes a finished run.
type Result struct {
	RunID     string
	Archive   string
	Status    RunStatus
	Records   []store.Record
	Items     []ItemResult
	Stats     Stats
	Err       error
	StartedAt time.Time
	Duration  time.Duration
}

// Failures returns the items that produced no record.
func (r *Result) Failures() []ItemResult {
	var out []ItemResult
	for _, it := range r.Items {
		if !it.OK() {
			out = append(out, it)
		}
	}
	return out
}

// Hook is notified about a finished run. Its error is logged and otherwise
// ignored.
type Hook func(ctx context.Context, res *Result) error

type Option func(*Pipeline)

func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Pipeline) { p.metrics = m }
}

// OnCommit registers a hook that runs after every successful snapshot save.
func OnCommit(h Hook) Option {
	return func(p *Pipeline) { p.onCommit = append(p.onCommit, h) }
}

// OnFinish registers a hook that runs after every run that got past opening
// the archive or failed doing so, whatever the outcome.
func OnFinish(h Hook) Option {
	return func(p *Pipeline) { p.onFinish = append(p.onFinish, h) }
}

// WithStateObserver reports every state transition, in order.
func WithStateObserver(fn func(State)) Option {
	return func(p *Pipeline) { p.observe = fn }
}

// Pipeline runs ingestions one at a time against a shared extractor.
type Pipeline struct {
	walker    *archive.Walker
	extractor Extractor
	saver     Saver
	cfg       config.OCRConfig
	metrics   *metrics.Metrics
	onCommit  []Hook
	onFinish  []Hook
	observe   func(State)
	runMu     sync.Mutex
	state     atomic.Int32
}

func New(walker *archive.Walker, extractor Extractor, saver Saver, cfg config.OCRConfig, opts ...Option) *Pipeline {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	p := &Pipeline{
		walker:    walker,
		extractor: extractor,
		saver:     saver,
		cfg:       cfg,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// State returns the current phase.
func (p *Pipeline) State() State {
	return State(p.state.Load())
}

func (p *Pipeline) setState(s State) {
	p.state.Store(int32(s))
	if p.observe != nil {
		p.observe(s)
	}
}

// Ingest extracts text from every image in the ZIP archive data and commits
// the records as the new snapshot. Calls are serialised.
//
// It fails with ErrArchiveFormat when data is not a ZIP archive and with
// ErrPersistence when the snapshot cannot be written; in both cases the
// previous snapshot is kept.
func (p *Pipeline) Ingest(ctx context.Context, archiveName string, data []byte) (*Result, error) {
	p.runMu.Lock()
	defer p.runMu.Unlock()

	res := &Result{
		RunID:     uuid.NewString(),
		Archive:   archiveName,
		StartedAt: time.Now(),
	}
	ctx = logger.WithRunID(ctx, res.RunID)
	log := logger.FromContext(ctx).With("component", "pipeline", "archive", archiveName)
	ctx, span := tracing.StartSpan(ctx, "ingest", res.RunID)
	span.SetAttr("archive", archiveName)
	span.SetAttr("bytes", len(data))

	err := p.run(ctx, log, res, data)
	res.Duration = time.Since(res.StartedAt)
	res.Err = err
	span.SetAttr("status", string(res.Status))
	span.Finish(err)
	span.Log(log)
	p.metrics.ObserveRun(string(res.Status), res.Duration)

	p.notify(ctx, log, res, err == nil)
	p.setState(StateIdle)
	if err != nil {
		return nil, err
	}
	log.Info("ingestion committed",
		"processed", res.Stats.Processed,
		"skipped", res.Stats.Skipped,
		"failed", res.Stats.Failed,
		"duration_ms", res.Duration.Milliseconds(),
	)
	return res, nil
}

func (p *Pipeline) run(ctx context.Context, log *slog.Logger, res *Result, data []byte) error {
	p.setState(StateWalking)
	walker := p.walker.WithSkipHandler(func(name string) {
		res.Stats.Skipped++
		log.Debug("entry skipped", "entry", name)
	})
	_, walkSpan := tracing.StartChildSpan(ctx, "walk")
	entries, err := walker.Walk(data)
	walkSpan.Finish(err)
	if err != nil {
		p.setState(StateFailed)
		res.Status = StatusArchiveError
		log.Warn("archive rejected", "error", err)
		return err
	}

	p.setState(StateExtracting)
	if p.cfg.Workers > 1 {
		res.Items = p.extractParallel(ctx, log, entries)
	} else {
		res.Items = p.extractSequential(ctx, log, entries)
	}
	p.metrics.CountSkipped(res.Stats.Skipped)
	if err := ctx.Err(); err != nil {
		res.Status = StatusCancelled
		return fmt.Errorf("ingestion cancelled: %w", err)
	}

	res.Records = make([]store.Record, 0, len(res.Items))
	for _, it := range res.Items {
		if it.OK() {
			res.Records = append(res.Records, *it.Record)
		} else {
			res.Stats.Failed++
		}
	}
	res.Stats.Processed = len(res.Records)

	p.setState(StatePersisting)
	_, saveSpan := tracing.StartChildSpan(ctx, "persist")
	saveSpan.SetAttr("records", len(res.Records))
	err = p.saver.Save(ctx, res.Records)
	saveSpan.Finish(err)
	p.metrics.ObserveSave(err, len(res.Records))
	if err != nil {
		res.Status = StatusPersistError
		log.Error("snapshot save failed", "error", err)
		if !errors.Is(err, apperrors.ErrPersistence) {
			err = fmt.Errorf("%w: %v", apperrors.ErrPersistence, err)
		}
		return err
	}
	res.Status = StatusCommitted
	return nil
}

func (p *Pipeline) extractSequential(ctx context.Context, log *slog.Logger, entries iter.Seq2[archive.Entry, error]) []ItemResult {
	var items []ItemResult
	for entry, err := range entries {
		if ctx.Err() != nil {
			break
		}
		items = append(items, p.process(ctx, log, entry, err))
	}
	return items
}

// extractParallel runs up to cfg.Workers extractions at once. Entries are
// read from the archive only as workers free up, and results are put back
// in archive order.
func (p *Pipeline) extractParallel(ctx context.Context, log *slog.Logger, entries iter.Seq2[archive.Entry, error]) []ItemResult {
	var (
		mu    sync.Mutex
		items []ItemResult
		g     errgroup.Group
	)
	g.SetLimit(p.cfg.Workers)
	for entry, err := range entries {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			item := p.process(ctx, log, entry, err)
			mu.Lock()
			items = append(items, item)
			mu.Unlock()
			return nil
		})
	}
	g.Wait()
	slices.SortFunc(items, func(a, b ItemResult) int { return cmp.Compare(a.Index, b.Index) })
	return items
}

func (p *Pipeline) process(ctx context.Context, log *slog.Logger, entry archive.Entry, readErr error) ItemResult {
	item := ItemResult{Index: entry.Index, Name: entry.Name}
	ctx, span := tracing.StartChildSpan(ctx, "ocr")
	span.SetAttr("entry", entry.Name)
	start := time.Now()

	var (
		out string
		err = readErr
	)
	if err == nil {
		out, err = p.extract(ctx, entry)
	}
	item.Duration = time.Since(start)
	span.Finish(err)

	if err != nil {
		item.Err = err
		outcome := "failed"
		if errors.Is(err, context.DeadlineExceeded) {
			outcome = "timeout"
		}
		p.metrics.ObserveOCR(outcome, item.Duration)
		log.Warn("entry failed", "entry", entry.Name, "index", entry.Index, "error", err)
		return item
	}
	item.Record = &store.Record{Filename: entry.Name, Text: out}
	p.metrics.ObserveOCR("ok", item.Duration)
	return item
}

// extract applies the per-item timeout and retry policy around one call to
// the extractor. Every error it returns wraps ErrOCRFailure.
func (p *Pipeline) extract(ctx context.Context, entry archive.Entry) (string, error) {
	op := "ocr " + entry.Name
	var text string
	err := resilience.Retry(ctx, op, resilience.RetryConfig{
		MaxAttempts:  p.cfg.MaxAttempts,
		InitialDelay: p.cfg.RetryBackoff,
		Retryable: func(err error) bool {
			return !errors.Is(err, ocr.ErrUndecodable)
		},
	}, func() error {
		// out is owned by this attempt; a timed-out call may still write it.
		var out string
		err := resilience.WithTimeout(ctx, p.cfg.Timeout, op, func(ctx context.Context) error {
			t, err := p.extractor.Extract(ctx, entry.Bytes)
			out = t
			return err
		})
		if err == nil {
			text = out
		}
		return err
	})
	if err != nil {
		if !errors.Is(err, apperrors.ErrOCRFailure) {
			err = fmt.Errorf("%w: %w", apperrors.ErrOCRFailure, err)
		}
		return "", err
	}
	return text, nil
}

func (p *Pipeline) notify(ctx context.Context, log *slog.Logger, res *Result, committed bool) {
	ctx = context.WithoutCancel(ctx)
	if committed {
		for _, h := range p.onCommit {
			if err := h(ctx, res); err != nil {
				log.Error("commit hook failed", "error", err)
			}
		}
	}
	for _, h := range p.onFinish {
		if err := h(ctx, res); err != nil {
			log.Error("finish hook failed", "error", err)
		}
	}
}
