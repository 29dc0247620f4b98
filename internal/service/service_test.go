package service

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"reflect"
	"sync"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/Image-Text-Search-Platform/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/Image-Text-Search-Platform/internal/archive"
	"github.com/Adithya-Monish-Kumar-K/Image-Text-Search-Platform/internal/archive/archivetest"
	"github.com/Adithya-Monish-Kumar-K/Image-Text-Search-Platform/internal/ingest/validator"
	"github.com/Adithya-Monish-Kumar-K/Image-Text-Search-Platform/internal/pipeline"
	"github.com/Adithya-Monish-Kumar-K/Image-Text-Search-Platform/internal/search"
	"github.com/Adithya-Monish-Kumar-K/Image-Text-Search-Platform/internal/store"
	"github.com/Adithya-Monish-Kumar-K/Image-Text-Search-Platform/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/Image-Text-Search-Platform/pkg/errors"
)

type textByBody map[string]string

func (m textByBody) Extract(_ context.Context, data []byte) (string, error) {
	text, ok := m[string(data)]
	if !ok {
		return "", fmt.Errorf("%w: cannot read %q", apperrors.ErrOCRFailure, data)
	}
	return text, nil
}

type recorder struct {
	mu     sync.Mutex
	events []analytics.Event
}

func (r *recorder) Track(e analytics.Event) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
}

func newService(t *testing.T, opts ...Option) *Service {
	t.Helper()
	st := store.NewCSVStore(filepath.Join(t.TempDir(), "output.csv"))
	p := pipeline.New(
		archive.NewWalker(nil, 0),
		textByBody{"img-a": "invoice total 42", "img-b": ""},
		st,
		config.OCRConfig{Timeout: 0, MaxAttempts: 1, Workers: 1},
	)
	return New(p, search.NewEngine(st), validator.New(1<<20), opts...)
}

func scenarioArchive(t *testing.T) []byte {
	return archivetest.Build(t,
		archivetest.Member{Name: "a.png", Body: "img-a"},
		archivetest.Member{Name: "b.jpg", Body: "img-b"},
		archivetest.Member{Name: "notes.txt", Body: "plain text"},
	)
}

func TestIngestAndSearchScenario(t *testing.T) {
	rec := &recorder{}
	s := newService(t, WithTracker(rec))
	view := s.IngestAndSearch(context.Background(), "batch.zip", scenarioArchive(t), "TOTAL")

	want := View{
		Results:   []string{"a.png"},
		Query:     "TOTAL",
		UploadMsg: "Processed 2 image(s), skipped 1, failed 0",
	}
	if !reflect.DeepEqual(view, want) {
		t.Errorf("view = %+v, want %+v", view, want)
	}
	if len(rec.events) != 2 || rec.events[0].Type != analytics.EventIngest || rec.events[1].Type != analytics.EventSearch {
		t.Errorf("tracked events = %+v", rec.events)
	}

	zero := s.Search(context.Background(), "zzz")
	if !zero.Searched() || len(zero.Results) != 0 || zero.Error != "" {
		t.Errorf("zero-match view = %+v", zero)
	}
	upper, lower := s.Search(context.Background(), "INVOICE"), s.Search(context.Background(), "invoice")
	if !reflect.DeepEqual(upper.Results, lower.Results) {
		t.Errorf("case changed results: %v vs %v", upper.Results, lower.Results)
	}
}

func TestViewErrors(t *testing.T) {
	tests := []struct {
		name string
		run  func(s *Service) View
		want string
	}{
		{
			name: "wrong upload type",
			run: func(s *Service) View {
				return s.IngestAndSearch(context.Background(), "photo.png", []byte("x"), "q")
			},
			want: "Please upload a .zip file.",
		},
		{
			name: "corrupt archive",
			run: func(s *Service) View {
				return s.IngestAndSearch(context.Background(), "broken.zip", []byte("not a zip"), "q")
			},
			want: "Invalid ZIP file.",
		},
		{
			name: "search before ingest",
			run:  func(s *Service) View { return s.Search(context.Background(), "q") },
			want: "No archive has been ingested yet. Upload a .zip file first.",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			view := tt.run(newService(t))
			if view.Error != tt.want {
				t.Errorf("error = %q, want %q", view.Error, tt.want)
			}
			if view.Searched() {
				t.Errorf("results = %v, want none", view.Results)
			}
		})
	}
}

type stubIngester struct{ err error }

func (s stubIngester) Ingest(context.Context, string, []byte) (*pipeline.Result, error) {
	return nil, s.err
}

type stubSearcher struct{}

func (stubSearcher) Search(context.Context, string) ([]string, error) { return []string{}, nil }

func TestIngestErrorMessages(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{fmt.Errorf("%w: disk full", apperrors.ErrPersistence), "Could not save extracted text."},
		{errors.New("something odd"), "Something went wrong while processing the request."},
	}
	for _, tt := range tests {
		s := New(stubIngester{err: tt.err}, stubSearcher{}, validator.New(0))
		view := s.Ingest(context.Background(), "a.zip", []byte("data"))
		if view.Error != tt.want || view.UploadMsg != "" {
			t.Errorf("Ingest with %v = %+v, want error %q", tt.err, view, tt.want)
		}
	}
}

func TestIngestUploadMessageCountsFailures(t *testing.T) {
	s := newService(t)
	data := archivetest.Build(t,
		archivetest.Member{Name: "a.png", Body: "img-a"},
		archivetest.Member{Name: "broken.png", Body: "unreadable"},
		archivetest.Member{Name: "readme.md", Body: "#"},
	)
	view := s.Ingest(context.Background(), "mixed.zip", data)
	if want := "Processed 1 image(s), skipped 1, failed 1"; view.UploadMsg != want {
		t.Errorf("upload message = %q, want %q", view.UploadMsg, want)
	}
	if view.Searched() {
		t.Error("ingest-only view carries results")
	}
}

func TestSearchRejectsLongQuery(t *testing.T) {
	s := New(stubIngester{}, stubSearcher{}, validator.New(0), WithMaxQueryLength(5))
	if view := s.Search(context.Background(), "héllo"); view.Error != "" || !view.Searched() {
		t.Errorf("five-character query = %+v", view)
	}
	view := s.Search(context.Background(), "hello!")
	if view.Error != "The search text is longer than 5 characters." || view.Searched() {
		t.Errorf("six-character query = %+v", view)
	}
}
