// Package trace carries trace and span identifiers through contexts and into slog output.
package trace

import (
	"context"
	"encoding/hex"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Propagation keys shared by HTTP headers, gRPC metadata and WebSocket messages.
const (
	TraceIDKey      = "x-trace-id"
	SpanIDKey       = "x-span-id"
	ParentSpanIDKey = "x-parent-span-id"
)

type ctxKey struct{}

// Context identifies one span within a trace.
type Context struct {
	TraceID      string
	SpanID       string
	ParentSpanID string
}

// New starts a fresh trace.
func New() Context {
	return Context{TraceID: newTraceID(), SpanID: newSpanID()}
}

// NewChild opens a span under parent.
func NewChild(parent Context) Context {
	return Context{TraceID: parent.TraceID, SpanID: newSpanID(), ParentSpanID: parent.SpanID}
}

// FromContext extracts the trace context, if any.
func FromContext(ctx context.Context) (Context, bool) {
	tc, ok := ctx.Value(ctxKey{}).(Context)
	return tc, ok
}

// WithContext stores tc in ctx.
func WithContext(ctx context.Context, tc Context) context.Context {
	return context.WithValue(ctx, ctxKey{}, tc)
}

// EnsureContext returns ctx unchanged when it already carries a trace, otherwise starts one.
func EnsureContext(ctx context.Context) (context.Context, Context) {
	if tc, ok := FromContext(ctx); ok {
		return ctx, tc
	}
	tc := New()
	return WithContext(ctx, tc), tc
}

// 128-bit trace id, hex encoded.
func newTraceID() string {
	id := uuid.New()
	return hex.EncodeToString(id[:])
}

// 64-bit span id, hex encoded.
func newSpanID() string {
	id := uuid.New()
	return hex.EncodeToString(id[:8])
}

func (c Context) logArgs() []any {
	args := []any{"trace_id", c.TraceID, "span_id", c.SpanID}
	if c.ParentSpanID != "" {
		args = append(args, "parent_span_id", c.ParentSpanID)
	}
	return args
}

// Span times one pipeline operation.
type Span struct {
	Name    string
	Ctx     Context
	Started time.Time
	Ended   time.Time
	attrs   []any
}

// StartSpan opens a child span of whatever trace ctx carries, or a new trace.
func StartSpan(ctx context.Context, name string) (context.Context, *Span) {
	tc := New()
	if parent, ok := FromContext(ctx); ok && parent.TraceID != "" {
		tc = NewChild(parent)
	}
	return WithContext(ctx, tc), &Span{Name: name, Ctx: tc, Started: time.Now()}
}

// SetAttr records an attribute logged when the span ends.
func (s *Span) SetAttr(key string, val any) {
	s.attrs = append(s.attrs, key, val)
}

// End closes the span and logs its duration at debug level.
func (s *Span) End() {
	s.Ended = time.Now()
	args := append(s.Ctx.logArgs(), "span", s.Name, "duration", s.Duration())
	slog.Debug("span finished", append(args, s.attrs...)...)
}

// Duration is zero until the span ends.
func (s *Span) Duration() time.Duration {
	if s.Ended.IsZero() {
		return 0
	}
	return s.Ended.Sub(s.Started)
}

// Logger returns the default logger annotated with ctx's trace ids.
func Logger(ctx context.Context) *slog.Logger {
	tc, ok := FromContext(ctx)
	if !ok {
		return slog.Default()
	}
	return slog.Default().With(tc.logArgs()...)
}
