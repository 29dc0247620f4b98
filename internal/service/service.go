// Package service turns ingestion and search calls into the view state the
// presentation layer renders: results, the query, an error message and an
// upload message.
package service

import (
	"context"
	"fmt"
	"net/http"
	"time"
	"unicode/utf8"

	"github.com/Adithya-Monish-Kumar-K/Image-Text-Search-Platform/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/Image-Text-Search-Platform/internal/ingest/validator"
	"github.com/Adithya-Monish-Kumar-K/Image-Text-Search-Platform/internal/pipeline"
	apperrors "github.com/Adithya-Monish-Kumar-K/Image-Text-Search-Platform/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Image-Text-Search-Platform/pkg/logger"
)

type Ingester interface {
	Ingest(ctx context.Context, archiveName string, data []byte) (*pipeline.Result, error)
}

type Searcher interface {
	Search(ctx context.Context, query string) ([]string, error)
}

// Tracker receives analytics events. *analytics.Collector implements it.
type Tracker interface {
	Track(e analytics.Event)
}

// View is the outcome of one request. Results is nil when no search ran,
// and empty when a search matched nothing.
type View struct {
	Results   []string `json:"results"`
	Query     string   `json:"query"`
	Error     string   `json:"error,omitempty"`
	UploadMsg string   `json:"upload_msg,omitempty"`
}

// Searched reports whether the view carries search results.
func (v View) Searched() bool {
	return v.Results != nil
}

type Service struct {
	ingester  Ingester
	searcher  Searcher
	validator *validator.Validator
	tracker   Tracker
	maxQuery  int
}

type Option func(*Service)

func WithTracker(t Tracker) Option {
	return func(s *Service) { s.tracker = t }
}

// WithMaxQueryLength rejects queries longer than n characters. Zero allows any
// length.
func WithMaxQueryLength(n int) Option {
	return func(s *Service) { s.maxQuery = n }
}

func New(ingester Ingester, searcher Searcher, v *validator.Validator, opts ...Option) *Service {
	s := &Service{ingester: ingester, searcher: searcher, validator: v}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// UploadMessage summarises a run for the uploader.
func UploadMessage(res *pipeline.Result) string {
	return fmt.Sprintf("Processed %d image(s), skipped %d, failed %d",
		res.Stats.Processed, res.Stats.Skipped, res.Stats.Failed)
}

// RunIngest validates the upload and runs the pipeline on it.
func (s *Service) RunIngest(ctx context.Context, filename string, data []byte) (*pipeline.Result, error) {
	if err := s.validator.Validate(validator.Upload{Filename: filename, Size: int64(len(data))}); err != nil {
		return nil, err
	}
	start := time.Now()
	res, err := s.ingester.Ingest(ctx, filename, data)
	s.trackIngest(ctx, filename, res, err, time.Since(start))
	if err != nil {
		logger.FromContext(ctx).Warn("ingestion failed", "archive", filename, "error", err)
		return nil, err
	}
	return res, nil
}

// Query runs a search and records it for analytics.
func (s *Service) Query(ctx context.Context, query string) ([]string, error) {
	if s.maxQuery > 0 && utf8.RuneCountInString(query) > s.maxQuery {
		return nil, apperrors.Newf(apperrors.ErrInvalidInput, http.StatusBadRequest,
			"The search text is longer than %d characters.", s.maxQuery)
	}
	start := time.Now()
	results, err := s.searcher.Search(ctx, query)
	if s.tracker != nil {
		s.tracker.Track(analytics.Event{
			Type:      analytics.EventSearch,
			Query:     query,
			Matches:   len(results),
			Failed:    err != nil,
			LatencyMs: time.Since(start).Milliseconds(),
			RequestID: logger.RequestID(ctx),
		})
	}
	if err != nil {
		logger.FromContext(ctx).Warn("search failed", "query", query, "error", err)
		return nil, err
	}
	return results, nil
}

func (s *Service) Ingest(ctx context.Context, filename string, data []byte) View {
	res, err := s.RunIngest(ctx, filename, data)
	if err != nil {
		return View{Error: apperrors.UserMessage(err)}
	}
	return View{UploadMsg: UploadMessage(res)}
}

func (s *Service) Search(ctx context.Context, query string) View {
	view := View{Query: query}
	results, err := s.Query(ctx, query)
	if err != nil {
		view.Error = apperrors.UserMessage(err)
		return view
	}
	view.Results = results
	return view
}

// IngestAndSearch ingests the archive and, if that succeeds, searches the
// snapshot it produced.
func (s *Service) IngestAndSearch(ctx context.Context, filename string, data []byte, query string) View {
	view := View{Query: query}
	res, err := s.RunIngest(ctx, filename, data)
	if err != nil {
		view.Error = apperrors.UserMessage(err)
		return view
	}
	view.UploadMsg = UploadMessage(res)
	results, err := s.Query(ctx, query)
	if err != nil {
		view.Error = apperrors.UserMessage(err)
		return view
	}
	view.Results = results
	return view
}

func (s *Service) trackIngest(ctx context.Context, filename string, res *pipeline.Result, err error, d time.Duration) {
	if s.tracker == nil {
		return
	}
	e := analytics.Event{
		Type:      analytics.EventIngest,
		Archive:   filename,
		Failed:    err != nil,
		LatencyMs: d.Milliseconds(),
		RequestID: logger.RequestID(ctx),
	}
	if res != nil {
		e.RunID = res.RunID
		e.Status = string(res.Status)
		e.Processed = res.Stats.Processed
		e.Skipped = res.Stats.Skipped
		e.Errors = res.Stats.Failed
	}
	s.tracker.Track(e)
}
