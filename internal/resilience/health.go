package resilience

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"
)

// DegradationLevel summarises how many dependencies are failing
type DegradationLevel int

const (
	LevelNormal DegradationLevel = iota
	LevelDegraded
	LevelCritical
)

func (l DegradationLevel) String() string {
	switch l {
	case LevelNormal:
		return "healthy"
	case LevelDegraded:
		return "degraded"
	default:
		return "critical"
	}
}

// HealthCheckFunc probes one dependency
type HealthCheckFunc func(ctx context.Context) error

// DependencyHealth is the outcome of one probe
type DependencyHealth struct {
	Name      string `json:"name"`
	Healthy   bool   `json:"healthy"`
	Critical  bool   `json:"critical"`
	Message   string `json:"message,omitempty"`
	LatencyMS int64  `json:"latency_ms"`
}

// HealthReport aggregates every registered probe
type HealthReport struct {
	Status       string             `json:"status"`
	Level        DegradationLevel   `json:"-"`
	Dependencies []DependencyHealth `json:"dependencies"`
	CheckedAt    time.Time          `json:"checked_at"`
}

type registeredCheck struct {
	fn       HealthCheckFunc
	critical bool
}

// HealthChecker runs dependency probes for the health endpoint. A failing
// critical dependency (the database) makes the service critical; any other
// failure (cache, hosting API breaker) only degrades it.
type HealthChecker struct {
	timeout time.Duration
	mu      sync.RWMutex
	checks  map[string]registeredCheck
}

// NewHealthChecker creates a checker whose probes each get timeout to finish
func NewHealthChecker(timeout time.Duration) *HealthChecker {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HealthChecker{
		timeout: timeout,
		checks:  make(map[string]registeredCheck),
	}
}

// Register adds a named probe
func (h *HealthChecker) Register(name string, critical bool, fn HealthCheckFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.checks[name] = registeredCheck{fn: fn, critical: critical}
	slog.Debug("Registered health check", "dependency", name, "critical", critical)
}

// BreakerCheck adapts a circuit breaker into a probe that fails while it is open
func BreakerCheck(cb *CircuitBreaker) HealthCheckFunc {
	return func(context.Context) error {
		if cb.State() == StateOpen {
			return NewCircuitBreakerError(cb.Name(), "circuit breaker is open", StateOpen)
		}
		return nil
	}
}

// Check runs all probes concurrently and folds them into a report
func (h *HealthChecker) Check(ctx context.Context) HealthReport {
	h.mu.RLock()
	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	checks := make(map[string]registeredCheck, len(h.checks))
	for k, v := range h.checks {
		checks[k] = v
	}
	h.mu.RUnlock()

	sort.Strings(names)
	results := make([]DependencyHealth, len(names))

	var wg sync.WaitGroup
	for i, name := range names {
		wg.Add(1)
		go func(i int, name string, rc registeredCheck) {
			defer wg.Done()

			checkCtx, cancel := context.WithTimeout(ctx, h.timeout)
			defer cancel()

			start := time.Now()
			err := rc.fn(checkCtx)
			dep := DependencyHealth{
				Name:      name,
				Healthy:   err == nil,
				Critical:  rc.critical,
				LatencyMS: time.Since(start).Milliseconds(),
			}
			if err != nil {
				dep.Message = err.Error()
			}
			results[i] = dep
		}(i, name, checks[name])
	}
	wg.Wait()

	level := LevelNormal
	for _, dep := range results {
		if dep.Healthy {
			continue
		}
		if dep.Critical {
			level = LevelCritical
			break
		}
		level = LevelDegraded
	}

	if level != LevelNormal {
		slog.Warn("Health check reported failures", "level", level.String())
	}

	return HealthReport{
		Status:       level.String(),
		Level:        level,
		Dependencies: results,
		CheckedAt:    time.Now().UTC(),
	}
}
