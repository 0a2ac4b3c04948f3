package monitoring

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

// maxIngestBody is the largest request body the monitoring layer considers normal
const maxIngestBody = 1 << 20

// MonitoringMiddleware creates Gin middleware for request metrics and logging
func MonitoringMiddleware(metrics *Metrics, logger *Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start)
		statusCode := c.Writer.Status()
		method := c.Request.Method
		ip := c.ClientIP()

		// Route templates keep label cardinality bounded.
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}

		if metrics != nil {
			metrics.RecordRequest(method, route, statusCode, duration)
		}
		if logger == nil {
			return
		}

		logger.RequestLogger(method, route, ip, statusCode, duration)

		for _, err := range c.Errors {
			logger.APIErrorLogger(err.Err, method, route, ip, statusCode)
		}

		if duration > 30*time.Second {
			logger.Warn("Slow request", "route", route, "duration_ms", duration.Milliseconds())
		}
	}
}

// SecurityMonitoringMiddleware logs requests that look like scans or abuse.
// It never blocks.
func SecurityMonitoringMiddleware(logger *Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		details := make(map[string]interface{})

		if containsSQLInjectionPatterns(c.Request.URL.RawQuery) {
			details["type"] = "potential_sql_injection"
			details["query"] = c.Request.URL.RawQuery
		}

		if (c.Request.Method == http.MethodPost || c.Request.Method == http.MethodPut) &&
			c.Request.ContentLength > maxIngestBody {
			details["type"] = "large_request_body"
			details["size_bytes"] = c.Request.ContentLength
		}

		userAgent := c.GetHeader("User-Agent")
		if containsSuspiciousUserAgent(userAgent) {
			details["type"] = "suspicious_user_agent"
			details["user_agent"] = userAgent
		}

		if len(details) > 0 && logger != nil {
			logger.SecurityLogger("suspicious_activity_detected", c.ClientIP(), userAgent, details)
		}

		c.Next()
	}
}

var sqlInjectionPatterns = []string{
	"union select",
	"union all",
	"select * from",
	"drop table",
	"delete from",
	"';--",
	"/*",
	"*/",
	" xp_",
}

func containsSQLInjectionPatterns(query string) bool {
	if query == "" {
		return false
	}
	q := strings.ToLower(query)
	for _, p := range sqlInjectionPatterns {
		if strings.Contains(q, p) {
			return true
		}
	}
	return false
}

var suspiciousAgents = []string{
	"sqlmap",
	"nmap",
	"masscan",
	"zmap",
	"dirbuster",
	"gobuster",
	"nikto",
	"acunetix",
	"nessus",
}

func containsSuspiciousUserAgent(userAgent string) bool {
	ua := strings.ToLower(userAgent)
	for _, agent := range suspiciousAgents {
		if strings.Contains(ua, agent) {
			return true
		}
	}
	return false
}
