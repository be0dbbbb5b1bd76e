package journal

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"wayfarer-hq/keeper/pkg/config"
	"wayfarer-hq/keeper/pkg/telemetry/logging"
)

// Journal records lifecycle events to a Storage. A nil *Journal records
// nothing, so components can take one unconditionally.
type Journal struct {
	store  Storage
	logger *logging.Logger
	now    func() time.Time
}

// New wraps store. Storage failures are logged through logger and never
// returned to the caller: the journal is diagnostic and must not change the
// outcome of the operation being recorded.
func New(store Storage, logger *logging.Logger) *Journal {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Journal{store: store, logger: logger.Component("journal"), now: time.Now}
}

// Open builds the Storage selected by cfg.
func Open(cfg config.JournalConfig) (Storage, error) {
	switch cfg.Backend {
	case "memory", "":
		return NewMemoryStorage(cfg.Capacity), nil
	case "sqlite":
		return NewSQLiteStorage(SQLiteConfig{Path: cfg.SQLite.Path, BusyTimeout: cfg.SQLite.BusyTimeout})
	default:
		return nil, fmt.Errorf("unknown journal backend %q", cfg.Backend)
	}
}

// Record appends an event. attrs are key/value pairs; a trailing odd key is
// dropped.
func (j *Journal) Record(ctx context.Context, kind Kind, component, message string, err error, attrs ...string) {
	if j == nil || j.store == nil {
		return
	}

	event := Event{
		ID:        uuid.NewString(),
		Time:      j.now().UTC(),
		Kind:      kind,
		Component: component,
		Message:   message,
	}
	if err != nil {
		event.Error = err.Error()
	}
	if len(attrs) >= 2 {
		event.Attrs = make(map[string]string, len(attrs)/2)
		for i := 0; i+1 < len(attrs); i += 2 {
			event.Attrs[attrs[i]] = attrs[i+1]
		}
	}

	if appendErr := j.store.Append(ctx, event); appendErr != nil {
		j.logger.Warn("failed to record event", "kind", string(kind), "error", appendErr)
	}
}

// Recent returns up to limit events, newest first.
func (j *Journal) Recent(ctx context.Context, limit int) ([]Event, error) {
	if j == nil || j.store == nil {
		return nil, nil
	}
	return j.store.Recent(ctx, limit)
}

// Close closes the underlying storage.
func (j *Journal) Close() error {
	if j == nil || j.store == nil {
		return nil
	}
	return j.store.Close()
}
