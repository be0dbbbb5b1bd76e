// Package heartbeat logs a periodic keep-alive line. Some hosts put a
// service to sleep when it has been silent for a while; the line also
// reports whether the proxy is still running.
package heartbeat

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"wayfarer-hq/keeper/pkg/supervisor"
	"wayfarer-hq/keeper/pkg/telemetry/logging"
	"wayfarer-hq/keeper/pkg/telemetry/metrics"
)

// Reporter returns a snapshot of the supervised process. The supervisor's
// Status is the same lazy query the HTTP facade makes, so a tick never
// changes what /status would report.
type Reporter interface {
	Status() supervisor.Status
}

// Scheduler runs the keep-alive job on a cron schedule.
type Scheduler struct {
	schedule string
	reporter Reporter
	metrics  *metrics.Collector
	logger   *logging.Logger
	started  time.Time

	mu      sync.Mutex
	cron    *cron.Cron
	running bool
	ticks   int
}

// NewScheduler creates a heartbeat for reporter. A nil logger discards
// output; a nil collector records nothing.
func NewScheduler(schedule string, reporter Reporter, logger *logging.Logger, collector *metrics.Collector) *Scheduler {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Scheduler{
		schedule: schedule,
		reporter: reporter,
		metrics:  collector,
		logger:   logger.Component("heartbeat"),
		cron:     cron.New(),
	}
}

// Start schedules the job. The scheduler stops when ctx is cancelled. An
// empty schedule leaves it idle.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.schedule == "" {
		s.logger.Info("heartbeat schedule not configured, skipping")
		return nil
	}

	if _, err := cron.ParseStandard(s.schedule); err != nil {
		return fmt.Errorf("invalid heartbeat schedule %q: %w", s.schedule, err)
	}
	if _, err := s.cron.AddFunc(s.schedule, s.Tick); err != nil {
		return fmt.Errorf("failed to schedule heartbeat: %w", err)
	}

	s.started = time.Now()
	s.cron.Start()
	s.running = true
	s.logger.Info("heartbeat started", "schedule", s.schedule)

	go func() {
		<-ctx.Done()
		s.Stop()
	}()
	return nil
}

// Tick logs one keep-alive line from a single status snapshot.
func (s *Scheduler) Tick() {
	st := s.reporter.Status()
	alive := st.Alive()

	s.mu.Lock()
	s.ticks++
	n := s.ticks
	uptime := time.Since(s.started).Round(time.Second)
	s.mu.Unlock()

	s.metrics.RecordHeartbeat(alive)
	attrs := []any{"tick", n, "uptime", uptime.String(), "proxy", st.Summary()}
	if alive {
		s.logger.Info("keep-alive", attrs...)
	} else {
		s.logger.Warn("keep-alive: proxy not running", append(attrs, "state", st.State.String())...)
	}
}

// Stop stops the scheduler and waits for a running tick to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.cron == nil || !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	c := s.cron
	s.mu.Unlock()

	// Tick takes s.mu, so wait outside the lock.
	<-c.Stop().Done()
	s.logger.Info("heartbeat stopped")
}

// IsRunning reports whether the job is scheduled.
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// NextRun returns the next scheduled tick, or nil when idle.
func (s *Scheduler) NextRun() *time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := s.cron.Entries()
	if len(entries) == 0 {
		return nil
	}
	next := entries[0].Next
	return &next
}
