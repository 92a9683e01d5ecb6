// Package eventsourcing persists bus events to a SQLite journal so kernel
// calls and routing decisions can be inspected after the fact.
package eventsourcing

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/cortexos/cortex-go/internal/infrastructure/events"
	"github.com/cortexos/cortex-go/internal/shared"
)

// ErrJournalClosed is returned by operations on a closed journal.
var ErrJournalClosed = errors.New("journal is closed")

// JournalConfig holds configuration for opening a Journal.
type JournalConfig struct {
	// DatabasePath is the SQLite file path. ":memory:" opens an in-memory
	// journal. Empty defaults to .data/journal.db.
	DatabasePath string `json:"databasePath"`
}

// Entry is one persisted event. Payload is the JSON encoding of the typed
// event payload; decoding is left to the reader.
type Entry struct {
	ID        string           `json:"id"`
	Type      shared.EventType `json:"type"`
	Payload   json.RawMessage  `json:"payload"`
	Timestamp int64            `json:"timestamp"`
}

// Query selects journal entries. Zero-valued fields do not filter.
type Query struct {
	EventTypes    []shared.EventType `json:"eventTypes,omitempty"`
	FromTimestamp int64              `json:"fromTimestamp,omitempty"`
	ToTimestamp   int64              `json:"toTimestamp,omitempty"`
	Limit         int                `json:"limit,omitempty"`
	Offset        int                `json:"offset,omitempty"`
}

// Journal is an append-only SQLite log of bus events.
type Journal struct {
	mu     sync.RWMutex
	db     *sql.DB
	closed bool
}

// NewJournal opens (or creates) a journal at the configured path.
func NewJournal(config JournalConfig) (*Journal, error) {
	dbPath := config.DatabasePath
	if dbPath == "" {
		dbPath = ".data/journal.db"
	}

	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
			return nil, fmt.Errorf("journal: create directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("journal: open database: %w", err)
	}
	// A single connection keeps writes serialized and makes :memory: share
	// one database across the pool.
	db.SetMaxOpenConns(1)

	j := &Journal{db: db}
	if err := j.initSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return j, nil
}

func (j *Journal) initSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS journal (
			id TEXT PRIMARY KEY,
			event_type TEXT NOT NULL,
			payload BLOB NOT NULL,
			timestamp INTEGER NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_journal_type ON journal(event_type);
		CREATE INDEX IF NOT EXISTS idx_journal_timestamp ON journal(timestamp);
	`
	if _, err := j.db.Exec(schema); err != nil {
		return fmt.Errorf("journal: create schema: %w", err)
	}
	return nil
}

// Record appends one event to the journal.
func (j *Journal) Record(ctx context.Context, event shared.Event) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.closed {
		return ErrJournalClosed
	}

	payload, err := json.Marshal(event.Payload)
	if err != nil {
		return fmt.Errorf("journal: encode payload: %w", err)
	}

	_, err = j.db.ExecContext(ctx, `
		INSERT INTO journal (id, event_type, payload, timestamp)
		VALUES (?, ?, ?, ?)
	`, uuid.New().String(), string(event.Type), payload, event.Timestamp)
	if err != nil {
		return fmt.Errorf("journal: insert: %w", err)
	}
	return nil
}

// Attach subscribes the journal to every event the bus emits. Record errors
// cannot be surfaced to the emitter and are dropped.
func (j *Journal) Attach(bus *events.Bus) {
	bus.On(shared.EventAny, func(event shared.Event) {
		_ = j.Record(context.Background(), event)
	})
}

// Entries returns journal entries matching the query, oldest first.
func (j *Journal) Entries(ctx context.Context, query Query) ([]Entry, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()

	if j.closed {
		return nil, ErrJournalClosed
	}

	sqlQuery := `SELECT id, event_type, payload, timestamp FROM journal WHERE 1=1`
	args := make([]interface{}, 0)

	if len(query.EventTypes) > 0 {
		placeholders := ""
		for i, t := range query.EventTypes {
			if i > 0 {
				placeholders += ","
			}
			placeholders += "?"
			args = append(args, string(t))
		}
		sqlQuery += " AND event_type IN (" + placeholders + ")"
	}
	if query.FromTimestamp > 0 {
		sqlQuery += " AND timestamp >= ?"
		args = append(args, query.FromTimestamp)
	}
	if query.ToTimestamp > 0 {
		sqlQuery += " AND timestamp <= ?"
		args = append(args, query.ToTimestamp)
	}

	sqlQuery += " ORDER BY timestamp ASC, id ASC"

	if query.Limit > 0 {
		sqlQuery += " LIMIT ?"
		args = append(args, query.Limit)
	}
	if query.Offset > 0 {
		sqlQuery += " OFFSET ?"
		args = append(args, query.Offset)
	}

	rows, err := j.db.QueryContext(ctx, sqlQuery, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := make([]Entry, 0)
	for rows.Next() {
		var (
			entry     Entry
			eventType string
		)
		if err := rows.Scan(&entry.ID, &eventType, (*[]byte)(&entry.Payload), &entry.Timestamp); err != nil {
			return nil, err
		}
		entry.Type = shared.EventType(eventType)
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// Count returns the total number of journaled events.
func (j *Journal) Count(ctx context.Context) (int64, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()

	if j.closed {
		return 0, ErrJournalClosed
	}

	var count int64
	err := j.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM journal`).Scan(&count)
	return count, err
}

// CountByType returns per-type event counts.
func (j *Journal) CountByType(ctx context.Context) (map[shared.EventType]int64, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()

	if j.closed {
		return nil, ErrJournalClosed
	}

	rows, err := j.db.QueryContext(ctx, `
		SELECT event_type, COUNT(*) FROM journal GROUP BY event_type
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[shared.EventType]int64)
	for rows.Next() {
		var (
			eventType string
			count     int64
		)
		if err := rows.Scan(&eventType, &count); err != nil {
			return nil, err
		}
		counts[shared.EventType(eventType)] = count
	}
	return counts, rows.Err()
}

// Vacuum reclaims unused space in the database file.
func (j *Journal) Vacuum(ctx context.Context) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.closed {
		return ErrJournalClosed
	}
	_, err := j.db.ExecContext(ctx, "VACUUM")
	return err
}

// Close closes the journal. Further operations return ErrJournalClosed.
func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.closed {
		return nil
	}
	j.closed = true
	return j.db.Close()
}
