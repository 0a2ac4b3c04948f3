package middleware

import (
	"bytes"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/gin-gonic/gin"
	"github.com/klauspost/compress/gzip"
)

// CompressionConfig holds configuration for response compression
type CompressionConfig struct {
	MinSize      int      // Minimum response size to compress (bytes)
	Level        int      // Gzip compression level (1-9)
	ContentTypes []string // Content type prefixes to compress
}

// DefaultCompressionConfig returns the default compression configuration
func DefaultCompressionConfig() CompressionConfig {
	return CompressionConfig{
		MinSize: 1024,
		Level:   gzip.DefaultCompression,
		ContentTypes: []string{
			"application/json",
			"text/plain",
			"text/html",
			"text/css",
			"application/javascript",
		},
	}
}

// Compression gzips response bodies for clients that accept it. Bodies are
// buffered so the size threshold can be applied before any byte is sent.
type Compression struct {
	config CompressionConfig
	pool   sync.Pool

	totalResponses      atomic.Int64
	compressedResponses atomic.Int64
	totalBytes          atomic.Int64
	compressedBytes     atomic.Int64
}

// NewCompression creates a new compression middleware
func NewCompression(config CompressionConfig) *Compression {
	if config.Level == 0 {
		config.Level = gzip.DefaultCompression
	}

	cm := &Compression{config: config}
	cm.pool.New = func() interface{} {
		gz, err := gzip.NewWriterLevel(nil, cm.config.Level)
		if err != nil {
			gz = gzip.NewWriter(nil)
		}
		return gz
	}
	return cm
}

// Handler returns the gin middleware
func (cm *Compression) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method == http.MethodHead || !strings.Contains(c.GetHeader("Accept-Encoding"), "gzip") {
			c.Next()
			return
		}

		original := c.Writer
		bw := &bufferedWriter{ResponseWriter: original}
		c.Writer = bw

		defer func() {
			c.Writer = original
			cm.flush(original, bw)
		}()

		c.Next()
	}
}

func (cm *Compression) flush(w gin.ResponseWriter, bw *bufferedWriter) {
	if !bw.Written() && bw.status == 0 {
		return
	}

	body := bw.buf.Bytes()
	cm.totalResponses.Add(1)
	cm.totalBytes.Add(int64(len(body)))

	if !cm.shouldCompress(w.Header(), len(body)) {
		w.WriteHeader(bw.Status())
		if len(body) == 0 {
			w.WriteHeaderNow()
			return
		}
		_, _ = w.Write(body)
		return
	}

	var out bytes.Buffer
	gz := cm.pool.Get().(*gzip.Writer)
	gz.Reset(&out)
	_, _ = gz.Write(body)
	_ = gz.Close()
	cm.pool.Put(gz)

	h := w.Header()
	h.Set("Content-Encoding", "gzip")
	h.Add("Vary", "Accept-Encoding")
	h.Set("Content-Length", strconv.Itoa(out.Len()))

	cm.compressedResponses.Add(1)
	cm.compressedBytes.Add(int64(out.Len()))

	w.WriteHeader(bw.Status())
	_, _ = w.Write(out.Bytes())
}

func (cm *Compression) shouldCompress(h http.Header, size int) bool {
	if size < cm.config.MinSize || h.Get("Content-Encoding") != "" {
		return false
	}
	contentType := h.Get("Content-Type")
	for _, ct := range cm.config.ContentTypes {
		if strings.HasPrefix(contentType, ct) {
			return true
		}
	}
	return false
}

// Stats returns compression statistics
func (cm *Compression) Stats() map[string]interface{} {
	total := cm.totalBytes.Load()
	compressed := cm.compressedBytes.Load()

	ratio := float64(0)
	if total > 0 {
		ratio = float64(compressed) / float64(total)
	}

	return map[string]interface{}{
		"total_responses":      cm.totalResponses.Load(),
		"compressed_responses": cm.compressedResponses.Load(),
		"total_bytes":          total,
		"compressed_bytes":     compressed,
		"compression_ratio":    ratio,
	}
}

// bufferedWriter holds the status and body until the middleware decides how
// to send them.
type bufferedWriter struct {
	gin.ResponseWriter
	buf         bytes.Buffer
	status      int
	wroteHeader bool
}

func (w *bufferedWriter) WriteHeader(code int) {
	if code > 0 && !w.wroteHeader {
		w.status = code
	}
}

func (w *bufferedWriter) WriteHeaderNow() {
	w.wroteHeader = true
}

func (w *bufferedWriter) Write(data []byte) (int, error) {
	w.wroteHeader = true
	return w.buf.Write(data)
}

func (w *bufferedWriter) WriteString(s string) (int, error) {
	w.wroteHeader = true
	return w.buf.WriteString(s)
}

func (w *bufferedWriter) Status() int {
	if w.status == 0 {
		return http.StatusOK
	}
	return w.status
}

func (w *bufferedWriter) Size() int {
	if !w.wroteHeader {
		return -1
	}
	return w.buf.Len()
}

func (w *bufferedWriter) Written() bool {
	return w.wroteHeader
}

// Flush is a no-op; the body is sent once the handler chain returns.
func (w *bufferedWriter) Flush() {}
