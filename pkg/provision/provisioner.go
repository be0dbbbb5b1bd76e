package provision

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"wayfarer-hq/keeper/pkg/config"
	"wayfarer-hq/keeper/pkg/journal"
	"wayfarer-hq/keeper/pkg/telemetry/logging"
	"wayfarer-hq/keeper/pkg/telemetry/metrics"
	"wayfarer-hq/keeper/pkg/telemetry/tracing"
)

// Outcomes reported by Ensure.
const (
	OutcomePresent     = "present"
	OutcomeAcquired    = "acquired"
	OutcomeUnavailable = "unavailable"
)

// Config holds the provisioner's file locations and fetch bound.
type Config struct {
	WorkDir     string
	ArchivePath string
	DownloadURL string
	Timeout     time.Duration
}

// ConfigFrom extracts the provisioner settings from the proxy section.
func ConfigFrom(cfg *config.ProxyConfig) Config {
	return Config{
		WorkDir:     cfg.WorkDir,
		ArchivePath: cfg.ArchivePath,
		DownloadURL: cfg.DownloadURL,
		Timeout:     cfg.FetchTimeout,
	}
}

// Provisioner makes sure the proxy binary exists, acquiring it through an
// ordered chain of strategies when it does not.
type Provisioner struct {
	cfg        Config
	strategies []Strategy

	logger  *logging.Logger
	metrics *metrics.Collector
	journal *journal.Journal
	tracer  *tracing.Tracer
}

// Option configures a Provisioner.
type Option func(*Provisioner)

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(p *Provisioner) {
		if l != nil {
			p.logger = l.Component("provision")
		}
	}
}

// WithMetrics sets the metrics collector.
func WithMetrics(m *metrics.Collector) Option {
	return func(p *Provisioner) { p.metrics = m }
}

// WithJournal sets the lifecycle journal.
func WithJournal(j *journal.Journal) Option {
	return func(p *Provisioner) { p.journal = j }
}

// WithTracer sets the tracer.
func WithTracer(t *tracing.Tracer) Option {
	return func(p *Provisioner) { p.tracer = t }
}

// New creates a Provisioner that tries strategies in order.
func New(cfg Config, strategies []Strategy, opts ...Option) *Provisioner {
	if cfg.Timeout <= 0 {
		cfg.Timeout = config.DefaultFetchTimeout
	}
	if cfg.WorkDir == "" {
		cfg.WorkDir = config.DefaultWorkDir
	}
	p := &Provisioner{
		cfg:        cfg,
		strategies: strategies,
		logger:     logging.Discard(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// StrategiesByName builds the acquisition chain from names. run is used by
// the command strategies; nil means os/exec.
func StrategiesByName(names []string, run Runner) ([]Strategy, error) {
	out := make([]Strategy, 0, len(names))
	for _, name := range names {
		switch name {
		case "curl":
			out = append(out, Curl(run))
		case "wget":
			out = append(out, Wget(run))
		case "http":
			out = append(out, &HTTPStrategy{})
		default:
			return nil, fmt.Errorf("unknown strategy %q", name)
		}
	}
	return out, nil
}

// Ensure returns nil when target exists or could be acquired. An existing
// target is never touched and no strategy runs. When every strategy fails
// the error matches ErrUnavailable and carries each StrategyError.
func (p *Provisioner) Ensure(ctx context.Context, target string) error {
	if _, err := os.Stat(target); err == nil {
		p.logger.InfoContext(ctx, "proxy binary already present", "path", target)
		p.metrics.RecordProvisionOutcome(OutcomePresent)
		p.journal.Record(ctx, journal.KindProvisionPresent, "provision", "binary already present", nil, "path", target)
		return nil
	}

	ctx, span := p.tracer.Start(ctx, "provision.ensure")
	defer span.End()

	p.logger.InfoContext(ctx, "downloading proxy binary",
		"url", p.cfg.DownloadURL,
		"strategies", len(p.strategies),
		"timeout", p.cfg.Timeout.String(),
	)

	req := Request{
		URL:         p.cfg.DownloadURL,
		ArchivePath: p.cfg.ArchivePath,
		WorkDir:     p.cfg.WorkDir,
		Target:      target,
		Timeout:     p.cfg.Timeout,
	}

	var failures []error
	for _, s := range p.strategies {
		err := p.attempt(ctx, s, req)
		if err == nil {
			p.metrics.RecordProvisionOutcome(OutcomeAcquired)
			p.journal.Record(ctx, journal.KindProvisionAcquired, "provision", "binary acquired", nil,
				"strategy", s.Name(), "path", target)
			p.logger.InfoContext(ctx, "proxy binary ready", "strategy", s.Name(), "path", target)
			p.removeArchive(ctx)
			return nil
		}
		failures = append(failures, err)
	}

	p.removeArchive(ctx)

	err := fmt.Errorf("%w: %w", ErrUnavailable, errors.Join(failures...))
	if len(failures) == 0 {
		err = fmt.Errorf("%w: no acquisition strategy configured", ErrUnavailable)
	}
	tracing.SetStatus(span, err)
	p.metrics.RecordProvisionOutcome(OutcomeUnavailable)
	p.journal.Record(ctx, journal.KindProvisionFailed, "provision", "every acquisition strategy failed", err)
	p.logger.ErrorContext(ctx, "proxy binary unavailable", "error", err)
	return err
}

// attempt runs one strategy under the fetch timeout, then verifies and marks
// the target executable.
func (p *Provisioner) attempt(ctx context.Context, s Strategy, req Request) error {
	ctx, span := p.tracer.Start(ctx, "provision.strategy")
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()

	start := time.Now()
	err := p.run(ctx, s, req)
	duration := time.Since(start)

	if err != nil {
		var se *StrategyError
		errors.As(err, &se)
		tracing.SetStrategyAttributes(span, s.Name(), se.Stage)
		tracing.SetStatus(span, err)
		p.metrics.RecordProvisionAttempt(s.Name(), "failure", duration)
		p.journal.Record(ctx, journal.KindProvisionAttempt, "provision", "acquisition strategy failed", se.Err,
			"strategy", s.Name(), "stage", se.Stage)
		p.logger.WarnContext(ctx, "acquisition strategy failed",
			"strategy", s.Name(),
			"stage", se.Stage,
			"duration", duration.String(),
			"error", se.Err,
		)
		return err
	}

	tracing.SetStrategyAttributes(span, s.Name(), "")
	p.metrics.RecordProvisionAttempt(s.Name(), "success", duration)
	return nil
}

func (p *Provisioner) run(ctx context.Context, s Strategy, req Request) error {
	if err := s.FetchAndExtract(ctx, req); err != nil {
		return &StrategyError{Strategy: s.Name(), Stage: stageOf(err), Err: err}
	}

	info, err := os.Stat(req.Target)
	if err != nil {
		return &StrategyError{Strategy: s.Name(), Stage: StageVerify, Err: fmt.Errorf("archive did not produce %s: %w", req.Target, err)}
	}
	if !info.Mode().IsRegular() {
		return &StrategyError{Strategy: s.Name(), Stage: StageVerify, Err: fmt.Errorf("%s is not a regular file", req.Target)}
	}
	if err := os.Chmod(req.Target, 0o755); err != nil {
		return &StrategyError{Strategy: s.Name(), Stage: StagePermission, Err: err}
	}
	return nil
}

// removeArchive deletes the downloaded archive. Failure is logged only.
func (p *Provisioner) removeArchive(ctx context.Context) {
	if p.cfg.ArchivePath == "" {
		return
	}
	if err := os.Remove(p.cfg.ArchivePath); err != nil && !errors.Is(err, os.ErrNotExist) {
		p.logger.WarnContext(ctx, "failed to remove archive", "path", p.cfg.ArchivePath, "error", err)
	}
}
