package supervisor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"

	"wayfarer-hq/keeper/pkg/config"
	"wayfarer-hq/keeper/pkg/journal"
	"wayfarer-hq/keeper/pkg/telemetry/logging"
	"wayfarer-hq/keeper/pkg/telemetry/metrics"
	"wayfarer-hq/keeper/pkg/telemetry/tracing"
)

// State is the lifecycle position of the supervised process.
type State int

const (
	NotStarted State = iota
	Launching
	Running
	Exited
	Crashed
)

// String returns the snake_case state name used in logs and metrics.
func (s State) String() string {
	switch s {
	case NotStarted:
		return "not_started"
	case Launching:
		return "launching"
	case Running:
		return "running"
	case Exited:
		return "exited"
	case Crashed:
		return "crashed"
	default:
		return "unknown"
	}
}

// MarshalText renders the state name in JSON.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Launch failure reasons.
const (
	ReasonExecutableMissing = "executable_missing"
	ReasonSpawnFailed       = "spawn_failed"
)

// ErrAlreadyLaunched is returned by every Launch call after the first.
var ErrAlreadyLaunched = errors.New("proxy already launched")

// LaunchError reports why the process could not be started.
type LaunchError struct {
	Reason string
	Err    error
}

func (e *LaunchError) Error() string {
	return fmt.Sprintf("launch failed (%s): %v", e.Reason, e.Err)
}

func (e *LaunchError) Unwrap() error { return e.Err }

// Process describes the launched child.
type Process struct {
	PID       int
	Args      []string
	StartedAt time.Time

	handle ProcessHandle
}

// Done is closed once the process has been reaped.
func (p *Process) Done() <-chan struct{} { return p.handle.Done() }

// Status is a point-in-time snapshot of the supervisor.
type Status struct {
	State     State     `json:"state"`
	Reason    string    `json:"reason,omitempty"`
	PID       int       `json:"pid,omitempty"`
	Args      []string  `json:"args,omitempty"`
	StartedAt time.Time `json:"started_at,omitzero"`
	ExitedAt  time.Time `json:"exited_at,omitzero"`
	ExitCode  int       `json:"exit_code"`
	Signal    string    `json:"signal,omitempty"`
}

// Alive reports whether the snapshot was taken while the process ran.
func (st Status) Alive() bool { return st.State == Running }

// Summary renders the snapshot in one line for health checks and the
// heartbeat.
func (st Status) Summary() string {
	switch st.State {
	case Running:
		return fmt.Sprintf("running (pid %d)", st.PID)
	case Exited:
		return fmt.Sprintf("exited with code %d", st.ExitCode)
	case Crashed:
		if st.Signal != "" {
			return "crashed: " + st.Signal
		}
		return "crashed"
	default:
		if st.Reason != "" {
			return st.State.String() + ": " + st.Reason
		}
		return st.State.String()
	}
}

// Config holds launch settings.
type Config struct {
	// Args is the argument template; "{config}" is replaced with the runtime
	// config path.
	Args []string

	// WaitDelay bounds how long Wait blocks on output pipes after the
	// process exits.
	WaitDelay time.Duration
}

// ConfigFrom extracts launch settings from the proxy section.
func ConfigFrom(cfg *config.ProxyConfig) Config {
	return Config{Args: cfg.Args, WaitDelay: cfg.StopTimeout}
}

// Supervisor launches the proxy once and reports its state. It never
// restarts the process. Exits are detected lazily: the state advances when
// Status, IsAlive or Describe is called.
type Supervisor struct {
	cfg Config

	mu       sync.Mutex
	state    State
	reason   string
	launched bool
	stopping bool
	proc     *Process
	exit     ExitStatus

	logger  *logging.Logger
	output  *logging.Logger
	metrics *metrics.Collector
	journal *journal.Journal
	tracer  *tracing.Tracer
}

// Option configures a Supervisor.
type Option func(*Supervisor)

// WithLogger sets the logger. Child output is logged with component=v2ray.
func WithLogger(l *logging.Logger) Option {
	return func(s *Supervisor) {
		if l != nil {
			s.logger = l.Component("supervisor")
			s.output = l.Component("v2ray")
		}
	}
}

// WithMetrics sets the metrics collector.
func WithMetrics(m *metrics.Collector) Option {
	return func(s *Supervisor) { s.metrics = m }
}

// WithJournal sets the lifecycle journal.
func WithJournal(j *journal.Journal) Option {
	return func(s *Supervisor) { s.journal = j }
}

// WithTracer sets the tracer.
func WithTracer(t *tracing.Tracer) Option {
	return func(s *Supervisor) { s.tracer = t }
}

// New creates a Supervisor in the NotStarted state.
func New(cfg Config, opts ...Option) *Supervisor {
	if len(cfg.Args) == 0 {
		cfg.Args = config.DefaultArgs
	}
	if cfg.WaitDelay <= 0 {
		cfg.WaitDelay = config.DefaultStopTimeout
	}
	s := &Supervisor{
		cfg:    cfg,
		logger: logging.Discard(),
		output: logging.Discard(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.metrics.SetProxyState(NotStarted.String())
	return s
}

// Launch starts executable with the configured arguments. It may be called
// once; later calls return ErrAlreadyLaunched. The child is not bound to
// ctx, which only carries tracing and logging fields.
func (s *Supervisor) Launch(ctx context.Context, executable, configPath string) (*Process, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.launched {
		return nil, ErrAlreadyLaunched
	}
	s.launched = true
	s.setState(Launching)

	ctx, span := s.tracer.Start(ctx, "proxy.launch")
	defer span.End()

	args := expandArgs(s.cfg.Args, configPath)

	if _, err := os.Stat(executable); err != nil {
		return nil, s.launchFailed(ctx, span, &LaunchError{Reason: ReasonExecutableMissing, Err: err})
	}

	cmd := exec.Command(executable, args...)
	stdout := newLineWriter(s.output, "stdout")
	stderr := newLineWriter(s.output, "stderr")
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	cmd.WaitDelay = s.cfg.WaitDelay

	started := time.Now()
	handle, err := startHandle(cmd, func() {
		stdout.Flush()
		stderr.Flush()
	})
	if err != nil {
		return nil, s.launchFailed(ctx, span, &LaunchError{Reason: ReasonSpawnFailed, Err: err})
	}

	s.proc = &Process{
		PID:       handle.PID(),
		Args:      append([]string{executable}, args...),
		StartedAt: started,
		handle:    handle,
	}
	s.reason = ""
	s.setState(Running)

	tracing.SetLaunchAttributes(span, executable, configPath, s.proc.PID)
	s.metrics.RecordLaunch("success")
	s.journal.Record(ctx, journal.KindProxyLaunched, "supervisor", "proxy launched", nil,
		"pid", strconv.Itoa(s.proc.PID), "executable", executable)
	s.logger.InfoContext(ctx, "proxy started", "pid", s.proc.PID, "args", strings.Join(s.proc.Args, " "))

	proc := *s.proc
	return &proc, nil
}

// launchFailed returns the supervisor to NotStarted with err's reason.
// Called with s.mu held.
func (s *Supervisor) launchFailed(ctx context.Context, span trace.Span, err *LaunchError) error {
	s.reason = err.Reason
	s.setState(NotStarted)

	tracing.SetStatus(span, err)
	s.metrics.RecordLaunch(err.Reason)
	s.journal.Record(ctx, journal.KindProxyLaunchFailed, "supervisor", "proxy launch failed", err.Err,
		"reason", err.Reason)
	s.logger.ErrorContext(ctx, "failed to start proxy", "reason", err.Reason, "error", err.Err)
	return err
}

// Inhibit records why launch was never attempted. The state stays
// NotStarted and later Launch calls still work. It has no effect once
// Launch has been called.
func (s *Supervisor) Inhibit(ctx context.Context, reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.launched {
		return
	}
	s.reason = reason
	s.journal.Record(ctx, journal.KindProxyInhibited, "supervisor", "proxy launch inhibited", nil, "reason", reason)
	s.logger.WarnContext(ctx, "proxy will not be started", "reason", reason)
}

// IsAlive reports whether the process is running. It is false before
// launch, after a failed launch and after exit.
func (s *Supervisor) IsAlive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refresh()
	return s.state == Running
}

// Status returns a snapshot of the supervisor state.
func (s *Supervisor) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refresh()

	st := Status{State: s.state, Reason: s.reason}
	if s.proc != nil {
		st.PID = s.proc.PID
		st.Args = append([]string(nil), s.proc.Args...)
		st.StartedAt = s.proc.StartedAt
	}
	if s.state == Exited || s.state == Crashed {
		st.ExitedAt = s.exit.Time
		st.ExitCode = s.exit.Code
		st.Signal = s.exit.Signal
	}
	return st
}

// Describe summarises the current status in one line.
func (s *Supervisor) Describe() string {
	return s.Status().Summary()
}

// Stop sends SIGTERM and waits for the process to exit, killing it when ctx
// is done first. It is a no-op unless the process is running.
func (s *Supervisor) Stop(ctx context.Context) error {
	s.mu.Lock()
	s.refresh()
	if s.state != Running {
		s.mu.Unlock()
		return nil
	}
	s.stopping = true
	proc := s.proc
	s.mu.Unlock()

	s.logger.InfoContext(ctx, "stopping proxy", "pid", proc.PID)

	var stopErr error
	if err := proc.handle.Terminate(); err != nil {
		s.logger.WarnContext(ctx, "failed to signal proxy", "pid", proc.PID, "error", err)
	}
	select {
	case <-proc.handle.Done():
	case <-ctx.Done():
		s.logger.WarnContext(ctx, "proxy did not stop in time, killing", "pid", proc.PID)
		if err := proc.handle.Kill(); err != nil {
			stopErr = fmt.Errorf("failed to kill proxy: %w", err)
		} else {
			<-proc.handle.Done()
		}
	}

	s.mu.Lock()
	s.refresh()
	s.mu.Unlock()

	s.journal.Record(ctx, journal.KindProxyStopped, "supervisor", "proxy stopped", stopErr, "pid", strconv.Itoa(proc.PID))
	return stopErr
}

// refresh advances Running to Exited or Crashed once the reaper has seen the
// process go. Every reader goes through it; the exit is recorded by whichever
// reader observes it first and later calls are no-ops. Called with s.mu held.
func (s *Supervisor) refresh() {
	if s.state != Running || s.proc.handle.IsRunning() {
		return
	}

	s.exit = s.proc.handle.Exit()
	next := Exited
	if s.exit.Err != nil || (s.exit.Signal != "" && !s.stopping) {
		next = Crashed
	}
	s.setState(next)
	s.metrics.RecordProxyExit(next.String(), s.exit.Code)

	attrs := []any{"pid", s.proc.PID, "state", next.String(), "exit_code", s.exit.Code}
	if s.exit.Signal != "" {
		attrs = append(attrs, "signal", s.exit.Signal)
	}
	if s.stopping {
		s.logger.Info("proxy exited", attrs...)
	} else {
		s.logger.Warn("proxy exited", attrs...)
	}
	s.journal.Record(context.Background(), journal.KindProxyExited, "supervisor", "proxy exited", s.exit.Err,
		"pid", strconv.Itoa(s.proc.PID), "state", next.String(), "exit_code", strconv.Itoa(s.exit.Code))
}

func (s *Supervisor) setState(state State) {
	s.state = state
	s.metrics.SetProxyState(state.String())
}

// expandArgs substitutes "{config}" in the argument template.
func expandArgs(template []string, configPath string) []string {
	args := make([]string, len(template))
	for i, arg := range template {
		args[i] = strings.ReplaceAll(arg, "{config}", configPath)
	}
	return args
}
