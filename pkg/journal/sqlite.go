package journal

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite" // SQLite driver
)

// SQLiteStorage persists events in a SQLite database so the history
// survives restarts. It suits single-instance deployments with a writable
// volume.
type SQLiteStorage struct {
	db        *sql.DB
	path      string
	mu        sync.Mutex
	closeOnce sync.Once

	appendStmt *sql.Stmt
	recentStmt *sql.Stmt
}

// SQLiteConfig configures the SQLite storage.
type SQLiteConfig struct {
	// Path is the database file. Parent directories are created.
	Path string

	// BusyTimeout is how long to wait for locks before failing.
	// Default: 5 seconds
	BusyTimeout time.Duration
}

// NewSQLiteStorage opens (creating if needed) the journal database.
func NewSQLiteStorage(cfg SQLiteConfig) (*SQLiteStorage, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("db path cannot be empty")
	}
	if cfg.BusyTimeout == 0 {
		cfg.BusyTimeout = 5 * time.Second
	}

	if dir := filepath.Dir(cfg.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create journal directory: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(%d)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)",
		cfg.Path, cfg.BusyTimeout.Milliseconds())

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports a single writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	s := &SQLiteStorage{db: db, path: cfg.Path}

	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	if err := s.prepareStatements(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to prepare statements: %w", err)
	}

	return s, nil
}

// initSchema creates the database schema if it doesn't exist.
func (s *SQLiteStorage) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS events (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		recorded_at INTEGER NOT NULL,
		kind TEXT NOT NULL,
		component TEXT NOT NULL,
		message TEXT NOT NULL,
		attrs TEXT,
		error TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_events_kind ON events(kind);
	`

	_, err := s.db.Exec(schema)
	return err
}

// prepareStatements prepares SQL statements for reuse.
func (s *SQLiteStorage) prepareStatements() error {
	var err error

	s.appendStmt, err = s.db.Prepare(`
		INSERT INTO events (id, recorded_at, kind, component, message, attrs, error)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare append statement: %w", err)
	}

	s.recentStmt, err = s.db.Prepare(`
		SELECT id, recorded_at, kind, component, message, attrs, error
		FROM events
		ORDER BY seq DESC
		LIMIT ?
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare recent statement: %w", err)
	}

	return nil
}

// Append stores an event.
func (s *SQLiteStorage) Append(ctx context.Context, event Event) error {
	if event.ID == "" {
		return fmt.Errorf("event id cannot be empty")
	}

	var attrs []byte
	if len(event.Attrs) > 0 {
		var err error
		attrs, err = json.Marshal(event.Attrs)
		if err != nil {
			return fmt.Errorf("failed to marshal attrs: %w", err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.appendStmt.ExecContext(ctx,
		event.ID,
		event.Time.UnixNano(),
		string(event.Kind),
		event.Component,
		event.Message,
		string(attrs),
		event.Error,
	)
	if err != nil {
		return fmt.Errorf("failed to append event: %w", err)
	}
	return nil
}

// Recent returns up to limit events, newest first. A limit <= 0 returns
// every stored event.
func (s *SQLiteStorage) Recent(ctx context.Context, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = -1 // SQLite: no limit
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.recentStmt.QueryContext(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var (
			e          Event
			recordedAt int64
			kind       string
			attrs      sql.NullString
			errText    sql.NullString
		)
		if err := rows.Scan(&e.ID, &recordedAt, &kind, &e.Component, &e.Message, &attrs, &errText); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		e.Time = time.Unix(0, recordedAt)
		e.Kind = Kind(kind)
		e.Error = errText.String
		if attrs.Valid && attrs.String != "" {
			if err := json.Unmarshal([]byte(attrs.String), &e.Attrs); err != nil {
				return nil, fmt.Errorf("failed to unmarshal attrs: %w", err)
			}
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate events: %w", err)
	}
	return events, nil
}

// Close closes the prepared statements and the database.
func (s *SQLiteStorage) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.appendStmt.Close()
		s.recentStmt.Close()
		err = s.db.Close()
	})
	return err
}
