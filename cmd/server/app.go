package main

import (
	"context"
	"fmt"
	"time"

	"github.com/ZanzyTHEbar/free-rider-o-meter/internal/adapters"
	"github.com/ZanzyTHEbar/free-rider-o-meter/internal/analysis"
	"github.com/ZanzyTHEbar/free-rider-o-meter/internal/cache"
	"github.com/ZanzyTHEbar/free-rider-o-meter/internal/config"
	"github.com/ZanzyTHEbar/free-rider-o-meter/internal/database"
	apperrors "github.com/ZanzyTHEbar/free-rider-o-meter/internal/errors"
	"github.com/ZanzyTHEbar/free-rider-o-meter/internal/freerider"
	"github.com/ZanzyTHEbar/free-rider-o-meter/internal/middleware"
	"github.com/ZanzyTHEbar/free-rider-o-meter/internal/monitoring"
	"github.com/ZanzyTHEbar/free-rider-o-meter/internal/ratelimit"
	"github.com/ZanzyTHEbar/free-rider-o-meter/internal/resilience"
	"github.com/ZanzyTHEbar/free-rider-o-meter/internal/security"
)

const (
	serviceName       = "free-rider-o-meter"
	githubBreakerName = "github"
)

// app owns every long-lived component of a process
type app struct {
	cfg     *config.Config
	logger  *monitoring.Logger
	metrics *monitoring.Metrics
	tracer  *monitoring.Tracer

	db          *database.DB
	groups      *database.GroupRepository
	evaluations *database.EvaluationRepository
	flags       *database.FreeRiderRepository

	redis    *ratelimit.RedisClient
	limiter  *ratelimit.RateLimiter
	breakers *resilience.CircuitBreakerRegistry
	github   *adapters.GitHubAdapter
	reports  *cache.Cache[*freerider.Report]

	service     *freerider.Service
	security    *security.SecurityMiddleware
	compression *middleware.Compression
	health      *resilience.HealthChecker
}

type appOption func(*appOptions)

type appOptions struct {
	hosting analysis.HostingAPI
}

// withHostingAPI replaces the GitHub adapter, for tests
func withHostingAPI(h analysis.HostingAPI) appOption {
	return func(o *appOptions) { o.hosting = h }
}

// apiObserver fans hosting API call outcomes out to metrics and the log
type apiObserver struct {
	metrics *monitoring.Metrics
	logger  *monitoring.Logger
}

func (o apiObserver) ObserveAPICall(apiName, operation string, statusCode int, duration time.Duration, err error) {
	o.metrics.ObserveAPICall(apiName, operation, statusCode, duration, err)
	o.logger.ExternalAPILogger(apiName, operation, statusCode, duration, err)
}

// newApp migrates and opens the database, connects the optional Redis
// instance and assembles the analysis service.
func newApp(ctx context.Context, cfg *config.Config, logger *monitoring.Logger, opts ...appOption) (_ *app, err error) {
	var o appOptions
	for _, opt := range opts {
		opt(&o)
	}

	a := &app{
		cfg:         cfg,
		logger:      logger,
		metrics:     monitoring.NewMetrics(),
		tracer:      monitoring.NewTracer(serviceName, logger),
		breakers:    resilience.NewCircuitBreakerRegistry(),
		security:    security.NewSecurityMiddleware(cfg.Security),
		compression: middleware.NewCompression(middleware.DefaultCompressionConfig()),
		health:      resilience.NewHealthChecker(5 * time.Second),
	}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	dbCfg := cfg.Database()
	if err := database.Migrate(dbCfg, -1); err != nil {
		return nil, fmt.Errorf("migrate database: %w", err)
	}
	a.db, err = database.Open(ctx, dbCfg)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	a.groups = database.NewGroupRepository(a.db)
	a.evaluations = database.NewEvaluationRepository(a.db)
	a.flags = database.NewFreeRiderRepository(a.db)

	a.redis, err = ratelimit.NewRedisClient(ctx, cfg.Redis)
	if err != nil {
		// Redis is optional; the limiter and group lock fall back to local state.
		logger.Warn("Continuing without Redis", "error", err)
		err = nil
	}
	a.limiter = ratelimit.NewRateLimiter(a.redis, cfg.Limits(), a.metrics)

	breaker := a.breakers.GetOrCreate(githubBreakerName, resilience.CircuitBreakerConfig{
		FailureThreshold: 5,
		RecoveryTimeout:  30 * time.Second,
		SuccessThreshold: 3,
	})

	hosting := o.hosting
	if hosting == nil {
		a.github, err = adapters.NewGitHubAdapter(adapters.GitHubConfig{
			Token:    cfg.GitHub.Token,
			BaseURL:  cfg.GitHub.BaseURL,
			Breaker:  breaker,
			Observer: apiObserver{metrics: a.metrics, logger: logger},
			Logger:   logger.Logger,
		})
		if err != nil {
			return nil, err
		}
		hosting = a.github
	}

	a.reports = cache.New[*freerider.Report](cfg.Cache.TTL)

	a.service, err = freerider.NewService(cfg.FreeRider(), freerider.Dependencies{
		Groups:      a.groups,
		Evaluations: a.evaluations,
		Hosting:     hosting,
		Flags:       a.flags,
		Lock:        ratelimit.NewGroupLock(a.redis, cfg.Security.RequestTimeout),
		Throttle:    a.limiter,
		Cache:       a.reports,
		Metrics:     a.metrics,
		Logger:      logger,
		Tracer:      a.tracer,
	})
	if err != nil {
		return nil, err
	}

	a.health.Register("database", true, a.db.HealthCheck)
	if a.redis.IsEnabled() {
		a.health.Register("redis", false, a.redis.HealthCheck)
	}
	a.health.Register(githubBreakerName, false, resilience.BreakerCheck(breaker))

	logger.SystemLogger("startup", fmt.Sprintf("backend=%s redis=%t", a.db.Backend(), a.redis.IsEnabled()))

	return a, nil
}

// handler builds the HTTP handler of the free-rider API
func (a *app) handler() *freerider.Handler {
	return freerider.NewHandler(a.service, a.groups, a.evaluations, a.security)
}

// poolStats collects the connection pool and cache statistics of every component
func (a *app) poolStats() map[string]interface{} {
	stats := map[string]interface{}{
		"database":     a.db.GetPoolStats(),
		"redis":        a.redis.GetPoolStats(),
		"report_cache": a.reports.Stats(),
		"rate_limiter": a.limiter.GetStats(),
		"breakers":     a.breakers.GetStats(),
		"active_spans": a.tracer.ActiveSpans(),
		"compression":  a.compression.Stats(),
	}
	if a.github != nil {
		stats["github"] = a.github.GetPoolStats()
	}
	return stats
}

// Close releases every component that was opened. It is safe on a partly
// built app.
func (a *app) Close() {
	if a.reports != nil {
		a.reports.Close()
	}
	if a.limiter != nil {
		a.limiter.Close()
	}
	if a.github != nil {
		apperrors.SafeClose(a.github, "github adapter")
	}
	if a.redis != nil {
		apperrors.SafeClose(a.redis, "redis")
	}
	if a.db != nil {
		apperrors.SafeClose(a.db, "database")
	}
}
