// ABOUTME: Lifecycle transition audit trail backed by SQLite
// ABOUTME: Records entity state changes for compliance and debugging; best-effort, never blocks a transition

package audit

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// EntityType identifies which entity a transition belongs to.
type EntityType string

const (
	EntitySession EntityType = "session"
	EntityTicket  EntityType = "ticket"
	EntityAgent   EntityType = "agent"
)

// Entry is a single recorded transition.
type Entry struct {
	ID         string
	EntityType EntityType
	EntityID   string
	FromState  string
	ToState    string
	Actor      string // "system" for engine-driven transitions, otherwise the caller's identity
	Reason     string
	CreatedAt  time.Time
}

// Recorder is the write side of the audit trail. Callers treat recording
// as best-effort: a failed write is logged and the owning transition
// proceeds.
type Recorder interface {
	Record(ctx context.Context, entry Entry) error
}

// Nop is a Recorder that discards entries. Useful in tests.
type Nop struct{}

// Record implements Recorder.
func (Nop) Record(ctx context.Context, entry Entry) error { return nil }

// SQLiteLog implements Recorder on a SQLite database.
type SQLiteLog struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteLog opens (or creates) the audit database at the given path.
// The schema is created automatically. Parent directories are created if
// needed.
func NewSQLiteLog(path string) (*SQLiteLog, error) {
	logger := slog.Default().With("component", "audit")

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("creating audit directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening audit database: %w", err)
	}

	// WAL mode for better concurrent reads
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	l := &SQLiteLog{db: db, logger: logger}
	if err := l.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("audit log initialized", "path", path)
	return l, nil
}

func (l *SQLiteLog) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS transitions (
			id TEXT PRIMARY KEY,
			entity_type TEXT NOT NULL,
			entity_id TEXT NOT NULL,
			from_state TEXT NOT NULL,
			to_state TEXT NOT NULL,
			actor TEXT NOT NULL,
			reason TEXT,
			created_at DATETIME NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_transitions_entity
			ON transitions(entity_type, entity_id, created_at);
	`
	_, err := l.db.Exec(schema)
	return err
}

// Close closes the underlying database.
func (l *SQLiteLog) Close() error {
	return l.db.Close()
}

// Record inserts a transition entry. A zero ID or timestamp is filled in.
func (l *SQLiteLog) Record(ctx context.Context, entry Entry) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	if entry.Actor == "" {
		entry.Actor = "system"
	}

	_, err := l.db.ExecContext(ctx, `
		INSERT INTO transitions (id, entity_type, entity_id, from_state, to_state, actor, reason, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID, string(entry.EntityType), entry.EntityID,
		entry.FromState, entry.ToState, entry.Actor, entry.Reason,
		entry.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("recording transition: %w", err)
	}
	return nil
}

// ListByEntity returns recorded transitions for one entity, oldest first.
func (l *SQLiteLog) ListByEntity(ctx context.Context, entityType EntityType, entityID string, limit int) ([]*Entry, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := l.db.QueryContext(ctx, `
		SELECT id, entity_type, entity_id, from_state, to_state, actor, reason, created_at
		FROM transitions
		WHERE entity_type = ? AND entity_id = ?
		ORDER BY created_at ASC
		LIMIT ?`,
		string(entityType), entityID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying transitions: %w", err)
	}
	defer rows.Close()

	var entries []*Entry
	for rows.Next() {
		var e Entry
		var entityTypeStr, createdAt string
		var reason sql.NullString
		if err := rows.Scan(&e.ID, &entityTypeStr, &e.EntityID, &e.FromState, &e.ToState, &e.Actor, &reason, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning transition: %w", err)
		}
		e.EntityType = EntityType(entityTypeStr)
		e.Reason = reason.String
		ts, err := time.Parse(time.RFC3339Nano, createdAt)
		if err != nil {
			return nil, fmt.Errorf("parsing transition timestamp: %w", err)
		}
		e.CreatedAt = ts
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}
