// Package watch notices when the proxy's runtime config on disk no longer
// matches what keeper wrote at startup. The proxy only reads its config at
// launch, so an edited file means the next restart will behave differently
// from the running process.
package watch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"wayfarer-hq/keeper/pkg/journal"
	"wayfarer-hq/keeper/pkg/telemetry/logging"
	"wayfarer-hq/keeper/pkg/telemetry/metrics"
)

// DriftWatcher compares the watched file with the expected bytes after every
// burst of changes.
type DriftWatcher struct {
	path     string
	expected []byte

	watcher  *fsnotify.Watcher
	debounce *Debouncer
	logger   *logging.Logger
	metrics  *metrics.Collector
	journal  *journal.Journal

	mu       sync.Mutex
	running  bool
	drifted  bool
	onChange func(drifted bool)
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// Option configures a DriftWatcher.
type Option func(*DriftWatcher)

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(w *DriftWatcher) {
		if l != nil {
			w.logger = l.Component("watch")
		}
	}
}

// WithMetrics sets the metrics collector.
func WithMetrics(m *metrics.Collector) Option {
	return func(w *DriftWatcher) { w.metrics = m }
}

// WithJournal sets the lifecycle journal.
func WithJournal(j *journal.Journal) Option {
	return func(w *DriftWatcher) { w.journal = j }
}

// OnChange registers a callback run after each comparison.
func OnChange(fn func(drifted bool)) Option {
	return func(w *DriftWatcher) { w.onChange = fn }
}

// New watches path, which should currently hold expected. The parent
// directory is watched so atomic replacements are seen too.
func New(path string, expected []byte, debounce time.Duration, opts ...Option) (*DriftWatcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %q: %w", path, err)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	if err := fsw.Add(filepath.Dir(abs)); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("failed to watch %q: %w", filepath.Dir(abs), err)
	}

	w := &DriftWatcher{
		path:     abs,
		expected: append([]byte(nil), expected...),
		watcher:  fsw,
		debounce: NewDebouncer(debounce),
		logger:   logging.Discard(),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Run processes file events until ctx is cancelled or Stop is called.
func (w *DriftWatcher) Run(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return fmt.Errorf("watcher already running")
	}
	w.running = true
	w.mu.Unlock()

	defer close(w.doneCh)

	w.logger.Info("watching runtime config", "path", w.path)

	for {
		select {
		case <-ctx.Done():
			return nil

		case <-w.stopCh:
			return nil

		case event, ok := <-w.watcher.Events:
			if !ok {
				return fmt.Errorf("watcher events channel closed")
			}
			if filepath.Clean(event.Name) != w.path || event.Op == fsnotify.Chmod {
				continue
			}
			w.logger.Debug("runtime config event", "op", event.Op.String())
			w.debounce.Trigger(func() { w.Check(ctx) })

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return fmt.Errorf("watcher errors channel closed")
			}
			w.logger.Error("file watcher error", "error", err)
		}
	}
}

// Check compares the file with the expected bytes and records drift on the
// transition from matching to diverged. It reports whether the file differs.
func (w *DriftWatcher) Check(ctx context.Context) bool {
	data, err := os.ReadFile(w.path)
	drifted := err != nil || !bytes.Equal(data, w.expected)

	w.mu.Lock()
	changed := drifted != w.drifted
	w.drifted = drifted
	onChange := w.onChange
	w.mu.Unlock()

	switch {
	case drifted && changed:
		detail := "content changed"
		if errors.Is(err, os.ErrNotExist) {
			detail = "file removed"
		} else if err != nil {
			detail = err.Error()
		}
		w.metrics.RecordConfigDrift()
		w.journal.Record(ctx, journal.KindConfigDrift, "watch", "runtime config diverged from synthesized config", nil,
			"path", w.path, "detail", detail)
		w.logger.WarnContext(ctx, "runtime config changed on disk; the running proxy still uses the original",
			"path", w.path, "detail", detail)
	case !drifted && changed:
		w.logger.InfoContext(ctx, "runtime config matches again", "path", w.path)
	}

	if onChange != nil {
		onChange(drifted)
	}
	return drifted
}

// Drifted reports the result of the last comparison.
func (w *DriftWatcher) Drifted() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.drifted
}

// Stop ends Run and releases the fsnotify watcher.
func (w *DriftWatcher) Stop() error {
	w.mu.Lock()
	running := w.running
	w.running = false
	w.mu.Unlock()

	if running {
		select {
		case <-w.stopCh:
		default:
			close(w.stopCh)
		}
		<-w.doneCh
	}
	w.debounce.Stop()

	if err := w.watcher.Close(); err != nil {
		return fmt.Errorf("failed to close watcher: %w", err)
	}
	return nil
}
