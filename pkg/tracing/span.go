// Package tracing records an in-process span tree for one unit of work (an
// ingestion run) and writes it to slog when the work finishes.
package tracing

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

type spanKey struct{}

// Span is a timed step. Children may be added from several goroutines.
type Span struct {
	Name    string
	TraceID string
	Start   time.Time
	End     time.Time

	mu       sync.Mutex
	children []*Span
	attrs    []slog.Attr
	err      error
}

// StartSpan starts a root span identified by traceID.
func StartSpan(ctx context.Context, name, traceID string) (context.Context, *Span) {
	s := &Span{Name: name, TraceID: traceID, Start: time.Now()}
	return context.WithValue(ctx, spanKey{}, s), s
}

// StartChildSpan starts a span under the one carried by ctx. Without a parent
// the span is detached but still usable.
func StartChildSpan(ctx context.Context, name string) (context.Context, *Span) {
	s := &Span{Name: name, Start: time.Now()}
	if parent := SpanFromContext(ctx); parent != nil {
		s.TraceID = parent.TraceID
		parent.mu.Lock()
		parent.children = append(parent.children, s)
		parent.mu.Unlock()
	}
	return context.WithValue(ctx, spanKey{}, s), s
}

func SpanFromContext(ctx context.Context) *Span {
	s, _ := ctx.Value(spanKey{}).(*Span)
	return s
}

// Finish marks the span complete. err, if non-nil, is recorded.
func (s *Span) Finish(err error) {
	if s == nil {
		return
	}
	s.mu.Lock()
	s.End = time.Now()
	if err != nil {
		s.err = err
	}
	s.mu.Unlock()
}

func (s *Span) SetAttr(key string, value any) {
	if s == nil {
		return
	}
	s.mu.Lock()
	s.attrs = append(s.attrs, slog.Any(key, value))
	s.mu.Unlock()
}

// Duration is zero until Finish is called.
func (s *Span) Duration() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.End.IsZero() {
		return 0
	}
	return s.End.Sub(s.Start)
}

// Children returns a copy of the direct children in start order.
func (s *Span) Children() []*Span {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Span, len(s.children))
	copy(out, s.children)
	return out
}

func (s *Span) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Log writes the tree depth-first, one record per span, at debug level
// unless the span failed.
func (s *Span) Log(logger *slog.Logger) {
	if s == nil {
		return
	}
	s.log(logger, 0)
}

func (s *Span) log(logger *slog.Logger, depth int) {
	s.mu.Lock()
	attrs := []slog.Attr{
		slog.String("trace_id", s.TraceID),
		slog.String("span", s.Name),
		slog.Int("depth", depth),
	}
	if !s.End.IsZero() {
		attrs = append(attrs, slog.Int64("duration_ms", s.End.Sub(s.Start).Milliseconds()))
	}
	attrs = append(attrs, s.attrs...)
	level := slog.LevelDebug
	if s.err != nil {
		level = slog.LevelWarn
		attrs = append(attrs, slog.String("error", s.err.Error()))
	}
	children := make([]*Span, len(s.children))
	copy(children, s.children)
	s.mu.Unlock()

	logger.LogAttrs(context.Background(), level, "span", attrs...)
	for _, c := range children {
		c.log(logger, depth+1)
	}
}
