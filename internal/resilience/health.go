package resilience

import (
	"context"
	"fmt"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/sourcegraph/conc"
)

// HealthStatus represents the health status of a component.
type HealthStatus string

const (
	HealthStatusHealthy   HealthStatus = "HEALTHY"
	HealthStatusDegraded  HealthStatus = "DEGRADED"
	HealthStatusUnhealthy HealthStatus = "UNHEALTHY"
	HealthStatusUnknown   HealthStatus = "UNKNOWN"
)

// ComponentHealth represents the health of a single component.
type ComponentHealth struct {
	Name      string                 `json:"name"`
	Status    HealthStatus           `json:"status"`
	Message   string                 `json:"message,omitempty"`
	LastCheck time.Time              `json:"last_check"`
	Latency   time.Duration          `json:"latency_ns"`
	Details   map[string]interface{} `json:"details,omitempty"`
}

// HealthCheck reports on one component.
type HealthCheck func(ctx context.Context) ComponentHealth

// SystemHealth is the aggregated result of the last check round.
type SystemHealth struct {
	Status     HealthStatus      `json:"status"`
	Uptime     string            `json:"uptime"`
	Checks     int64             `json:"checks"`
	Components []ComponentHealth `json:"components"`
}

// HealthMonitor runs registered checks and keeps the latest results.
type HealthMonitor struct {
	mu                 sync.RWMutex
	components         map[string]HealthCheck
	results            map[string]ComponentHealth
	overall            HealthStatus
	startTime          time.Time
	totalChecks        int64
	goroutineThreshold int
	checkTimeout       time.Duration
	onChange           func(from, to SystemHealth)
}

// NewHealthMonitor creates a monitor. goroutineThreshold <= 0 disables
// the goroutine check.
func NewHealthMonitor(goroutineThreshold int) *HealthMonitor {
	return &HealthMonitor{
		components:         make(map[string]HealthCheck),
		results:            make(map[string]ComponentHealth),
		overall:            HealthStatusUnknown,
		startTime:          time.Now(),
		goroutineThreshold: goroutineThreshold,
		checkTimeout:       5 * time.Second,
	}
}

// RegisterComponent registers a health check for a component.
func (m *HealthMonitor) RegisterComponent(name string, check HealthCheck) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.components[name] = check
}

// OnStatusChange registers fn to be called when the overall status changes.
func (m *HealthMonitor) OnStatusChange(fn func(from, to SystemHealth)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onChange = fn
}

// Run checks once immediately and then every interval until ctx is done.
func (m *HealthMonitor) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	m.Check(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			m.Check(ctx)
		}
	}
}

// Check runs every registered check concurrently and returns the aggregate.
// A panicking check is reported unhealthy.
func (m *HealthMonitor) Check(ctx context.Context) SystemHealth {
	m.mu.RLock()
	checks := make(map[string]HealthCheck, len(m.components))
	for k, v := range m.components {
		checks[k] = v
	}
	m.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, m.checkTimeout)
	defer cancel()

	var (
		wg      conc.WaitGroup
		resMu   sync.Mutex
		results = make([]ComponentHealth, 0, len(checks)+1)
	)
	collect := func(h ComponentHealth) {
		resMu.Lock()
		results = append(results, h)
		resMu.Unlock()
	}
	for name, check := range checks {
		name, check := name, check
		wg.Go(func() {
			start := time.Now()
			h := ComponentHealth{Name: name, Status: HealthStatusUnhealthy}
			defer func() {
				if r := recover(); r != nil {
					h.Status = HealthStatusUnhealthy
					h.Message = fmt.Sprintf("check panicked: %v", r)
				}
				h.Name = name
				h.LastCheck = time.Now()
				h.Latency = time.Since(start)
				collect(h)
			}()
			h = check(ctx)
		})
	}
	if m.goroutineThreshold > 0 {
		collect(m.checkGoroutines())
	}
	wg.Wait()

	overall := HealthStatusHealthy
	for _, h := range results {
		switch h.Status {
		case HealthStatusUnhealthy:
			overall = HealthStatusUnhealthy
		case HealthStatusDegraded, HealthStatusUnknown:
			if overall == HealthStatusHealthy {
				overall = HealthStatusDegraded
			}
		}
	}

	prev := m.GetHealth()
	m.mu.Lock()
	m.totalChecks++
	m.overall = overall
	for _, h := range results {
		m.results[h.Name] = h
	}
	onChange := m.onChange
	m.mu.Unlock()

	cur := m.GetHealth()
	if onChange != nil && prev.Status != cur.Status {
		onChange(prev, cur)
	}
	return cur
}

func (m *HealthMonitor) checkGoroutines() ComponentHealth {
	n := runtime.NumGoroutine()
	h := ComponentHealth{
		Name:      "goroutines",
		Status:    HealthStatusHealthy,
		LastCheck: time.Now(),
		Message:   fmt.Sprintf("Goroutine count: %d", n),
		Details:   map[string]interface{}{"count": n},
	}
	if n > m.goroutineThreshold {
		h.Status = HealthStatusDegraded
		h.Message = fmt.Sprintf("High goroutine count: %d", n)
	}
	return h
}

// GetHealth returns the results of the last check round.
func (m *HealthMonitor) GetHealth() SystemHealth {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := SystemHealth{
		Status:     m.overall,
		Uptime:     time.Since(m.startTime).Round(time.Second).String(),
		Checks:     m.totalChecks,
		Components: make([]ComponentHealth, 0, len(m.results)),
	}
	for _, h := range m.results {
		out.Components = append(out.Components, h)
	}
	sort.Slice(out.Components, func(i, j int) bool { return out.Components[i].Name < out.Components[j].Name })
	return out
}

// BreakerCheck reports an open breaker as unhealthy and a half-open one as degraded.
func BreakerCheck(cb *CircuitBreaker) HealthCheck {
	return func(context.Context) ComponentHealth {
		stats := cb.Stats()
		h := ComponentHealth{
			Status:  HealthStatusHealthy,
			Message: "circuit " + string(stats.State),
			Details: map[string]interface{}{"state": stats.State, "since": stats.LastStateChange},
		}
		switch stats.State {
		case CircuitOpen:
			h.Status = HealthStatusUnhealthy
		case CircuitHalfOpen:
			h.Status = HealthStatusDegraded
		}
		return h
	}
}
