package health

import (
	"context"
	"errors"
	"sync"
	"time"
)

// Check and report states.
const (
	StatusOK       = "ok"
	StatusFailing  = "failing"
	StatusReady    = "ready"
	StatusDegraded = "degraded"
)

// ErrCheckTimeout is reported when a check outlives the checker timeout.
var ErrCheckTimeout = errors.New("health check timeout")

// CheckFunc returns nil when the component is usable.
type CheckFunc func(ctx context.Context) error

// Result is one component's outcome.
type Result struct {
	Status    string  `json:"status"`
	Message   string  `json:"message,omitempty"`
	ElapsedMS float64 `json:"duration_ms"`
}

// Report is the body of /health and /ready.
type Report struct {
	Status    string            `json:"status"`
	Uptime    string            `json:"uptime,omitempty"`
	Checks    map[string]Result `json:"checks,omitempty"`
	Failing   []string          `json:"failing,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}

type namedCheck struct {
	name string
	fn   CheckFunc
}

// Checker runs keeper's readiness checks.
type Checker struct {
	mu      sync.RWMutex
	checks  []namedCheck
	timeout time.Duration
	started time.Time
}

// New returns a checker bounding each check by timeout (5s when zero).
func New(timeout time.Duration) *Checker {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Checker{timeout: timeout, started: time.Now()}
}

// Add registers fn under name, replacing an earlier check of that name.
// Failing checks are listed in registration order.
func (c *Checker) Add(name string, fn CheckFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i := range c.checks {
		if c.checks[i].name == name {
			c.checks[i].fn = fn
			return
		}
	}
	c.checks = append(c.checks, namedCheck{name: name, fn: fn})
}

// Live reports that keeper is serving. The proxy is not consulted, so a
// dead proxy never gets the host restarted by a platform liveness check.
func (c *Checker) Live() Report {
	return Report{
		Status:    StatusOK,
		Uptime:    time.Since(c.started).Round(time.Second).String(),
		Timestamp: time.Now(),
	}
}

// Ready runs every check concurrently. The report is degraded when any
// check fails.
func (c *Checker) Ready(ctx context.Context) Report {
	c.mu.RLock()
	checks := append([]namedCheck(nil), c.checks...)
	c.mu.RUnlock()

	results := make([]Result, len(checks))
	var wg sync.WaitGroup
	for i, chk := range checks {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = c.run(ctx, chk.fn)
		}()
	}
	wg.Wait()

	report := Report{
		Status:    StatusReady,
		Checks:    make(map[string]Result, len(checks)),
		Timestamp: time.Now(),
	}
	for i, chk := range checks {
		report.Checks[chk.name] = results[i]
		if results[i].Status != StatusOK {
			report.Status = StatusDegraded
			report.Failing = append(report.Failing, chk.name)
		}
	}
	return report
}

func (c *Checker) run(ctx context.Context, fn CheckFunc) Result {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	errc := make(chan error, 1)
	go func() { errc <- fn(ctx) }()

	var err error
	select {
	case err = <-errc:
	case <-ctx.Done():
		err = ErrCheckTimeout
	}

	res := Result{Status: StatusOK, ElapsedMS: float64(time.Since(start).Microseconds()) / 1000}
	if err != nil {
		res.Status = StatusFailing
		res.Message = err.Error()
	}
	return res
}
