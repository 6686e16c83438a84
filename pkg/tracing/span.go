// Package tracing records a tree of timed phases for one request and logs it
// through slog. Spans travel in the context; a span started under another
// becomes its child.
package tracing

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

type spanKey struct{}

type Span struct {
	Name    string
	TraceID string
	Start   time.Time
	Elapsed time.Duration

	mu       sync.Mutex
	attrs    []slog.Attr
	children []*Span
}

// Start begins a span named name. If ctx already carries a span the new one
// is attached to it and inherits its trace id; otherwise it is a root with
// trace id traceID.
func Start(ctx context.Context, name, traceID string) (context.Context, *Span) {
	span := &Span{Name: name, TraceID: traceID, Start: time.Now()}
	if parent := FromContext(ctx); parent != nil {
		span.TraceID = parent.TraceID
		parent.mu.Lock()
		parent.children = append(parent.children, span)
		parent.mu.Unlock()
	}
	return context.WithValue(ctx, spanKey{}, span), span
}

// Phase is Start for a child of the span in ctx. It returns a nil span,
// whose methods are no-ops, when ctx carries none.
func Phase(ctx context.Context, name string) (context.Context, *Span) {
	if FromContext(ctx) == nil {
		return ctx, nil
	}
	return Start(ctx, name, "")
}

func FromContext(ctx context.Context) *Span {
	span, _ := ctx.Value(spanKey{}).(*Span)
	return span
}

func (s *Span) End() {
	if s == nil {
		return
	}
	s.Elapsed = time.Since(s.Start)
}

func (s *Span) Set(key string, value any) {
	if s == nil {
		return
	}
	s.mu.Lock()
	s.attrs = append(s.attrs, slog.Any(key, value))
	s.mu.Unlock()
}

// Children returns the spans started under s so far.
func (s *Span) Children() []*Span {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Span, len(s.children))
	copy(out, s.children)
	return out
}

// Log writes s and its descendants at debug level, one record per span.
func (s *Span) Log(ctx context.Context, l *slog.Logger) {
	if s == nil || !l.Enabled(ctx, slog.LevelDebug) {
		return
	}
	s.log(ctx, l, 0)
}

func (s *Span) log(ctx context.Context, l *slog.Logger, depth int) {
	s.mu.Lock()
	attrs := append([]slog.Attr{
		slog.String("trace_id", s.TraceID),
		slog.String("span", s.Name),
		slog.Float64("elapsed_ms", float64(s.Elapsed.Microseconds())/1000),
		slog.Int("depth", depth),
	}, s.attrs...)
	children := s.children
	s.mu.Unlock()

	l.LogAttrs(ctx, slog.LevelDebug, "span", attrs...)
	for _, child := range children {
		child.log(ctx, l, depth+1)
	}
}
