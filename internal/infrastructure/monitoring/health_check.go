package monitoring

import (
	"context"
	"sort"
	"sync"
	"time"
)

const (
	StatusHealthy   = "healthy"
	StatusUnhealthy = "unhealthy"
)

// CheckFunc reports whether a dependency is usable. A nil error with
// false is reported as a plain failure.
type CheckFunc func(ctx context.Context) (bool, error)

type healthCheck struct {
	name     string
	fn       CheckFunc
	interval time.Duration
	timeout  time.Duration
}

// CheckResult is the outcome of the latest run of one check.
type CheckResult struct {
	Healthy   bool          `json:"healthy"`
	Error     string        `json:"error,omitempty"`
	CheckedAt time.Time     `json:"checked_at"`
	Latency   time.Duration `json:"latency_ns"`
}

type HealthStatus struct {
	Status    string                 `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Checks    map[string]CheckResult `json:"checks"`
}

// Failing lists the names of the unhealthy checks in order.
func (s HealthStatus) Failing() []string {
	var names []string
	for name, r := range s.Checks {
		if !r.Healthy {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// HealthChecker runs named dependency checks, either on demand or on a
// per-check interval in the background, and keeps the latest result of
// each.
type HealthChecker struct {
	mu     sync.RWMutex
	checks []healthCheck

	resultsMu sync.RWMutex
	results   map[string]CheckResult
}

func NewHealthChecker() *HealthChecker {
	return &HealthChecker{results: make(map[string]CheckResult)}
}

func (h *HealthChecker) AddCheck(name string, fn CheckFunc, interval, timeout time.Duration) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checks = append(h.checks, healthCheck{name: name, fn: fn, interval: interval, timeout: timeout})
}

// CheckAll runs every check now.
func (h *HealthChecker) CheckAll(ctx context.Context) HealthStatus {
	h.mu.RLock()
	checks := append([]healthCheck(nil), h.checks...)
	h.mu.RUnlock()

	results := make(map[string]CheckResult, len(checks))
	for _, check := range checks {
		results[check.name] = h.run(ctx, check)
	}
	return summarize(results)
}

// LastStatus reports the results recorded so far without running
// anything. Checks that never ran are left out.
func (h *HealthChecker) LastStatus() HealthStatus {
	h.resultsMu.RLock()
	defer h.resultsMu.RUnlock()

	results := make(map[string]CheckResult, len(h.results))
	for name, r := range h.results {
		results[name] = r
	}
	return summarize(results)
}

func summarize(results map[string]CheckResult) HealthStatus {
	status := HealthStatus{Status: StatusHealthy, Timestamp: time.Now(), Checks: results}
	for _, r := range results {
		if !r.Healthy {
			status.Status = StatusUnhealthy
			break
		}
	}
	return status
}

func (h *HealthChecker) run(ctx context.Context, check healthCheck) CheckResult {
	checkCtx, cancel := context.WithTimeout(ctx, check.timeout)
	defer cancel()

	start := time.Now()
	ok, err := check.fn(checkCtx)
	result := CheckResult{Healthy: ok && err == nil, CheckedAt: start, Latency: time.Since(start)}
	switch {
	case err != nil:
		result.Error = err.Error()
	case !ok:
		result.Error = "check failed"
	}

	h.resultsMu.Lock()
	h.results[check.name] = result
	h.resultsMu.Unlock()
	return result
}

// StartBackgroundChecks runs every registered check once immediately and
// then on its interval until ctx is done.
func (h *HealthChecker) StartBackgroundChecks(ctx context.Context) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, check := range h.checks {
		go h.runPeriodically(ctx, check)
	}
}

func (h *HealthChecker) runPeriodically(ctx context.Context, check healthCheck) {
	h.run(ctx, check)

	ticker := time.NewTicker(check.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.run(ctx, check)
		}
	}
}
