package main

import (
	"net/http"
	"net/http/pprof"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/ZanzyTHEbar/free-rider-o-meter/internal/docs"
	apperrors "github.com/ZanzyTHEbar/free-rider-o-meter/internal/errors"
	"github.com/ZanzyTHEbar/free-rider-o-meter/internal/monitoring"
	"github.com/ZanzyTHEbar/free-rider-o-meter/internal/resilience"
)

// routerOptions toggles the optional operational endpoints
type routerOptions struct {
	profiling bool
}

// newRouter wires the middleware chain and every route of the server
func newRouter(a *app, opts routerOptions) *gin.Engine {
	r := gin.New()

	// Monitoring must wrap the error handler to record the final status.
	r.Use(apperrors.RecoveryHandler())
	r.Use(monitoring.TracingMiddleware(a.tracer))
	r.Use(monitoring.MonitoringMiddleware(a.metrics, a.logger))
	r.Use(monitoring.SecurityMonitoringMiddleware(a.logger))
	r.Use(apperrors.ErrorHandler())
	r.Use(a.compression.Handler())
	r.Use(a.security.CORSConfig())
	r.Use(a.security.SecurityHeadersMiddleware())

	r.GET("/health", func(c *gin.Context) {
		report := a.health.Check(c.Request.Context())
		status := http.StatusOK
		if report.Level == resilience.LevelCritical {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, report)
	})

	r.GET("/health/details", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"health": a.health.Check(c.Request.Context()),
			"pools":  a.poolStats(),
		})
	})

	r.GET("/metrics", gin.WrapH(a.metrics.Handler()))
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	if opts.profiling {
		a.logger.Info("Enabling performance profiling endpoints")
		prof := r.Group("/debug/pprof")
		prof.GET("/", gin.WrapF(pprof.Index))
		prof.GET("/cmdline", gin.WrapF(pprof.Cmdline))
		prof.GET("/profile", gin.WrapF(pprof.Profile))
		prof.GET("/symbol", gin.WrapF(pprof.Symbol))
		prof.GET("/trace", gin.WrapF(pprof.Trace))
		prof.GET("/:name", func(c *gin.Context) {
			pprof.Handler(c.Param("name")).ServeHTTP(c.Writer, c.Request)
		})
	}

	api := r.Group("/api/v1")
	api.Use(a.limiter.IPRateLimitMiddleware())
	api.Use(a.security.RequestTimeout)
	api.Use(a.security.LimitBody)
	api.Use(a.security.ValidateContentType)
	api.Use(a.security.Authenticate())
	a.handler().RegisterRoutes(api)

	return r
}
