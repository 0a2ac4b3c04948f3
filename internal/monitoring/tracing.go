package monitoring

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
)

// SpanStatus represents the status of a span
type SpanStatus string

const (
	SpanStatusOK    SpanStatus = "ok"
	SpanStatusError SpanStatus = "error"
)

// Span is one timed operation. Spans form a tree through ParentID and share a
// TraceID with the request or run that started them.
type Span struct {
	TraceID   string
	SpanID    string
	ParentID  string
	Operation string
	StartTime time.Time
	Duration  time.Duration
	Tags      map[string]string
	Status    SpanStatus
	Error     string
}

type spanKey struct{}

// SpanFromContext returns the active span, or nil
func SpanFromContext(ctx context.Context) *Span {
	span, _ := ctx.Value(spanKey{}).(*Span)
	return span
}

// TraceIDFromContext returns the active trace ID, or ""
func TraceIDFromContext(ctx context.Context) string {
	if span := SpanFromContext(ctx); span != nil {
		return span.TraceID
	}
	return ""
}

// Tracer records spans as log lines. It is a lightweight stand-in for a real
// tracing backend: spans exist only as structured log entries.
type Tracer struct {
	serviceName string
	logger      *Logger
	active      atomic.Int64
}

// NewTracer creates a new tracer instance
func NewTracer(serviceName string, logger *Logger) *Tracer {
	return &Tracer{serviceName: serviceName, logger: logger}
}

// StartSpan starts a child of the span in ctx, or a new trace
func (t *Tracer) StartSpan(ctx context.Context, operation string, tags ...string) (*Span, context.Context) {
	span := &Span{
		SpanID:    randomID(8),
		Operation: operation,
		StartTime: time.Now(),
		Tags:      make(map[string]string, len(tags)/2),
		Status:    SpanStatusOK,
	}
	if parent := SpanFromContext(ctx); parent != nil {
		span.TraceID = parent.TraceID
		span.ParentID = parent.SpanID
	} else {
		span.TraceID = randomID(16)
	}
	for i := 0; i+1 < len(tags); i += 2 {
		span.Tags[tags[i]] = tags[i+1]
	}

	t.active.Add(1)
	return span, context.WithValue(ctx, spanKey{}, span)
}

// EndSpan closes span and logs it
func (t *Tracer) EndSpan(span *Span, err error) {
	span.Duration = time.Since(span.StartTime)
	if err != nil {
		span.Status = SpanStatusError
		span.Error = err.Error()
	}
	t.active.Add(-1)

	if t.logger == nil {
		return
	}

	attrs := []any{
		"trace_id", span.TraceID,
		"span_id", span.SpanID,
		"service", t.serviceName,
		"operation", span.Operation,
		"status", span.Status,
		"duration_ms", span.Duration.Milliseconds(),
	}
	if span.ParentID != "" {
		attrs = append(attrs, "parent_id", span.ParentID)
	}
	if span.Error != "" {
		attrs = append(attrs, "error", span.Error)
	}
	for k, v := range span.Tags {
		attrs = append(attrs, "tag_"+k, v)
	}

	t.logger.Debug("Trace Span", attrs...)
}

// ActiveSpans returns the number of spans started but not yet ended
func (t *Tracer) ActiveSpans() int64 {
	return t.active.Load()
}

// TraceFunction runs fn inside a span named operation
func TraceFunction(ctx context.Context, tracer *Tracer, operation string, fn func(context.Context) error) error {
	if tracer == nil {
		return fn(ctx)
	}

	span, spanCtx := tracer.StartSpan(ctx, operation)
	defer func() {
		if r := recover(); r != nil {
			span.Tags["panic"] = "true"
			tracer.EndSpan(span, fmt.Errorf("panic: %v", r))
			panic(r)
		}
	}()

	err := fn(spanCtx)
	tracer.EndSpan(span, err)
	return err
}

// TracingMiddleware opens a span per request and echoes its trace ID
func TracingMiddleware(tracer *Tracer) gin.HandlerFunc {
	return func(c *gin.Context) {
		span, ctx := tracer.StartSpan(c.Request.Context(), c.Request.Method+" "+c.FullPath(),
			"http.method", c.Request.Method,
			"client_ip", c.ClientIP(),
		)
		c.Request = c.Request.WithContext(ctx)
		c.Header("X-Trace-ID", span.TraceID)

		c.Next()

		span.Tags["http.status_code"] = fmt.Sprintf("%d", c.Writer.Status())

		var err error
		if len(c.Errors) > 0 {
			err = fmt.Errorf("request errors: %v", c.Errors.Errors())
		}
		tracer.EndSpan(span, err)
	}
}

func randomID(n int) string {
	b := make([]byte, n)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
