package monitoring

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"WARN":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"chatty":  slog.LevelInfo,
	}
	for in, want := range tests {
		assert.Equal(t, want, ParseLevel(in), in)
	}
}

func TestLogger_PartialFetchLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerTo(&buf, "info")

	logger.PartialFetchLogger("acme/widgets", "abc123", errors.New("boom"))

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "partial_fetch", entry["event"])
	assert.Equal(t, "abc123", entry["sha"])
	assert.Equal(t, "WARN", entry["level"])
	assert.Contains(t, entry, "timestamp")
}

func TestLogger_RunLoggerLevels(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerTo(&buf, "info")

	logger.RunLogger("r1", "g1", 4, 1, 0, time.Second, nil)
	logger.RunLogger("r2", "g1", 4, 0, 0, time.Second, errors.New("upstream down"))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], `"level":"INFO"`)
	assert.Contains(t, lines[1], `"level":"ERROR"`)
	assert.Contains(t, lines[1], "upstream down")
}

func TestLogger_DebugSuppressedAtInfo(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerTo(&buf, "info")

	logger.ExternalAPILogger("GitHub", "list_commits", 200, time.Millisecond, nil)
	assert.Empty(t, buf.String())

	logger.ExternalAPILogger("GitHub", "list_commits", 502, time.Millisecond, errors.New("bad gateway"))
	assert.Contains(t, buf.String(), "bad gateway")
}

func TestMetrics_RunCounters(t *testing.T) {
	m := NewMetrics()

	m.RecordRun(nil, 2, time.Second)
	m.RecordRun(nil, 0, time.Second)
	m.RecordRun(errors.New("x"), 5, time.Second)
	m.IncrementPartialFetch()

	assert.Equal(t, 2.0, testutil.ToFloat64(m.runs.WithLabelValues("success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("failure")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.flagged), "failed runs flag nobody")
	assert.Equal(t, 1.0, testutil.ToFloat64(m.partialFetch))
}

func TestMetrics_ObserveAPICall(t *testing.T) {
	m := NewMetrics()

	m.ObserveAPICall("GitHub", "get_commit", 200, time.Millisecond, nil)
	m.ObserveAPICall("GitHub", "get_commit", 0, time.Millisecond, errors.New("dial"))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.apiCalls.WithLabelValues("GitHub", "get_commit", "200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.apiCalls.WithLabelValues("GitHub", "get_commit", "none")))
}

func TestMetrics_Handler(t *testing.T) {
	m := NewMetrics()
	m.IncrementCacheHit()

	w := httptest.NewRecorder()
	m.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "freerider_report_cache_lookups_total")
	assert.Contains(t, w.Body.String(), "go_goroutines")
}

func TestMonitoringMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)

	var buf bytes.Buffer
	m := NewMetrics()
	router := gin.New()
	router.Use(MonitoringMiddleware(m, NewLoggerTo(&buf, "info")))
	router.GET("/groups/:id", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	for _, id := range []string{"a", "b", "c"} {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/groups/"+id, nil))
		require.Equal(t, http.StatusNoContent, w.Code)
	}

	assert.Equal(t, 3.0, testutil.ToFloat64(m.httpRequests.WithLabelValues("GET", "/groups/:id", "204")))
	assert.Contains(t, buf.String(), `"route":"/groups/:id"`)
}

func TestSecurityMonitoringMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)

	var buf bytes.Buffer
	router := gin.New()
	router.Use(SecurityMonitoringMiddleware(NewLoggerTo(&buf, "info")))
	router.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x?q=1", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, buf.String())

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("User-Agent", "sqlmap/1.7")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code, "monitoring never blocks")
	assert.Contains(t, buf.String(), "suspicious_user_agent")
}

func TestSuspiciousPatterns(t *testing.T) {
	assert.True(t, containsSQLInjectionPatterns("id=1 UNION SELECT password"))
	assert.False(t, containsSQLInjectionPatterns("group=g-1"))
	assert.True(t, containsSuspiciousUserAgent("Mozilla/5.0 Nikto"))
	assert.False(t, containsSuspiciousUserAgent("curl/8.0"))
}

func TestTracer_ParentChild(t *testing.T) {
	tracer := NewTracer("free-rider-o-meter", nil)

	root, ctx := tracer.StartSpan(context.Background(), "run", "group_id", "g1")
	child, childCtx := tracer.StartSpan(ctx, "fetch")

	assert.Equal(t, root.TraceID, child.TraceID)
	assert.Equal(t, root.SpanID, child.ParentID)
	assert.Equal(t, "g1", root.Tags["group_id"])
	assert.Equal(t, root.TraceID, TraceIDFromContext(childCtx))
	assert.Equal(t, int64(2), tracer.ActiveSpans())

	tracer.EndSpan(child, errors.New("nope"))
	tracer.EndSpan(root, nil)

	assert.Equal(t, SpanStatusError, child.Status)
	assert.Equal(t, SpanStatusOK, root.Status)
	assert.Zero(t, tracer.ActiveSpans())
	assert.Empty(t, TraceIDFromContext(context.Background()))
}

func TestTraceFunction(t *testing.T) {
	tracer := NewTracer("svc", nil)
	want := errors.New("failed")

	err := TraceFunction(context.Background(), tracer, "op", func(ctx context.Context) error {
		assert.NotNil(t, SpanFromContext(ctx))
		return want
	})
	assert.ErrorIs(t, err, want)

	assert.NoError(t, TraceFunction(context.Background(), nil, "op", func(context.Context) error { return nil }))

	assert.Panics(t, func() {
		_ = TraceFunction(context.Background(), tracer, "op", func(context.Context) error { panic("x") })
	})
	assert.Zero(t, tracer.ActiveSpans())
}

func TestTracingMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tracer := NewTracer("svc", nil)
	router := gin.New()
	router.Use(TracingMiddleware(tracer))

	var seen string
	router.GET("/x", func(c *gin.Context) {
		seen = TraceIDFromContext(c.Request.Context())
		c.Status(http.StatusOK)
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))

	assert.NotEmpty(t, seen)
	assert.Equal(t, seen, w.Header().Get("X-Trace-ID"))
}
