package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ismaiel54/dma-fix-gateway/internal/msg"
	"github.com/ismaiel54/dma-fix-gateway/internal/session"
	_ "modernc.org/sqlite"
)

// Store persists session sequence numbers, processed order commands and the
// order-event outbox
type Store struct {
	db *sql.DB
}

// ClaimResult represents the result of claiming an order command
type ClaimResult struct {
	Duplicate bool
	Status    string
	Reason    string
}

// OutboxEvent represents an event waiting to be published
type OutboxEvent struct {
	ID                  int64
	ClOrdID             string
	EventID             string
	Topic               string
	Key                 string
	PayloadJSON         string
	CreatedUnixMillis   int64
	PublishedUnixMillis sql.NullInt64
}

// Command statuses
const (
	StatusReceived = "RECEIVED"
	StatusSent     = "SENT"
	StatusFailed   = "FAILED"
)

// Open creates or opens the store
func Open(path string) (*Store, error) {
	// Create directory if it doesn't exist
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// sqlite allows a single writer
	db.SetMaxOpenConns(1)

	store := &Store{db: db}

	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return store, nil
}

// migrate creates the necessary tables
func (s *Store) migrate() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS session_sequences (
			trading_day TEXT NOT NULL,
			session_key TEXT NOT NULL,
			out_seq INTEGER NOT NULL,
			in_seq INTEGER NOT NULL,
			cl_ord_id INTEGER NOT NULL,
			updated_unix_millis INTEGER NOT NULL,
			PRIMARY KEY (trading_day, session_key)
		)`,
		`CREATE TABLE IF NOT EXISTS processed_commands (
			event_id TEXT PRIMARY KEY,
			action TEXT NOT NULL,
			first_seen_unix_millis INTEGER NOT NULL,
			status TEXT NOT NULL,
			reason TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS outbox_events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			cl_ord_id TEXT NOT NULL,
			event_id TEXT NOT NULL UNIQUE,
			topic TEXT NOT NULL,
			key TEXT NOT NULL,
			payload_json TEXT NOT NULL,
			created_unix_millis INTEGER NOT NULL,
			published_unix_millis INTEGER NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_outbox_unpublished
			ON outbox_events(published_unix_millis)
			WHERE published_unix_millis IS NULL`,
	}

	for _, query := range queries {
		if _, err := s.db.Exec(query); err != nil {
			return fmt.Errorf("failed to execute migration: %w", err)
		}
	}

	return nil
}

// SessionSequences binds the store to one FIX session identity and
// implements session.SequenceStore
type SessionSequences struct {
	store *Store
	key   string
}

// ForSession returns the sequence store for a session key (for example
// "SENDER->TARGET")
func (s *Store) ForSession(key string) *SessionSequences {
	return &SessionSequences{store: s, key: key}
}

// LoadSequences returns the numbering state saved for day
func (ss *SessionSequences) LoadSequences(ctx context.Context, day string) (session.Sequences, bool, error) {
	var seq session.Sequences
	err := ss.store.db.QueryRowContext(ctx,
		"SELECT out_seq, in_seq, cl_ord_id FROM session_sequences WHERE trading_day = ? AND session_key = ?",
		day, ss.key,
	).Scan(&seq.Out, &seq.In, &seq.ClOrdID)
	if errors.Is(err, sql.ErrNoRows) {
		return session.Sequences{}, false, nil
	}
	if err != nil {
		return session.Sequences{}, false, fmt.Errorf("failed to load sequences: %w", err)
	}
	return seq, true, nil
}

// SaveSequences upserts the numbering state for day. Stored values never
// move backwards.
func (ss *SessionSequences) SaveSequences(ctx context.Context, day string, seq session.Sequences) error {
	_, err := ss.store.db.ExecContext(ctx,
		`INSERT INTO session_sequences (trading_day, session_key, out_seq, in_seq, cl_ord_id, updated_unix_millis)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT (trading_day, session_key) DO UPDATE SET
			out_seq = MAX(out_seq, excluded.out_seq),
			in_seq = MAX(in_seq, excluded.in_seq),
			cl_ord_id = MAX(cl_ord_id, excluded.cl_ord_id),
			updated_unix_millis = excluded.updated_unix_millis`,
		day, ss.key, seq.Out, seq.In, seq.ClOrdID, time.Now().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("failed to save sequences: %w", err)
	}
	return nil
}

// ClaimCommand records an order command by event id. A command seen before is
// reported as a duplicate and must not be sent again.
func (s *Store) ClaimCommand(ctx context.Context, cmd msg.OrderCmdMsg) (ClaimResult, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return ClaimResult{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var status, reason string
	err = tx.QueryRowContext(ctx,
		"SELECT status, reason FROM processed_commands WHERE event_id = ?",
		cmd.EventID,
	).Scan(&status, &reason)
	if err == nil {
		return ClaimResult{Duplicate: true, Status: status, Reason: reason}, nil
	} else if !errors.Is(err, sql.ErrNoRows) {
		return ClaimResult{}, fmt.Errorf("failed to check existing command: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO processed_commands (event_id, action, first_seen_unix_millis, status, reason)
		 VALUES (?, ?, ?, ?, ?)`,
		cmd.EventID, cmd.Action, time.Now().UnixMilli(), StatusReceived, "received",
	)
	if err != nil {
		return ClaimResult{}, fmt.Errorf("failed to insert processed command: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return ClaimResult{}, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return ClaimResult{Status: StatusReceived, Reason: "received"}, nil
}

// CompleteCommand records the outcome of a claimed command
func (s *Store) CompleteCommand(ctx context.Context, eventID, status, reason string) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE processed_commands SET status = ?, reason = ? WHERE event_id = ?",
		status, reason, eventID,
	)
	if err != nil {
		return fmt.Errorf("failed to complete command: %w", err)
	}
	return nil
}

// EnqueueEvent writes an order event to the outbox. Re-enqueueing the same
// event id is a no-op.
func (s *Store) EnqueueEvent(ctx context.Context, ev msg.OrderEventMsg) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal order event: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO outbox_events (cl_ord_id, event_id, topic, key, payload_json, created_unix_millis, published_unix_millis)
		 VALUES (?, ?, ?, ?, ?, ?, NULL)
		 ON CONFLICT (event_id) DO NOTHING`,
		ev.ClOrdID, ev.EventID, msg.TopicOrdersEvents, ev.ClOrdID, string(payload), time.Now().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert outbox event: %w", err)
	}
	return nil
}

// ListUnpublished returns unpublished outbox events
func (s *Store) ListUnpublished(ctx context.Context, limit int) ([]OutboxEvent, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, cl_ord_id, event_id, topic, key, payload_json, created_unix_millis, published_unix_millis
		 FROM outbox_events
		 WHERE published_unix_millis IS NULL
		 ORDER BY id ASC
		 LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query unpublished events: %w", err)
	}
	defer rows.Close()

	var events []OutboxEvent
	for rows.Next() {
		var e OutboxEvent
		err := rows.Scan(
			&e.ID, &e.ClOrdID, &e.EventID, &e.Topic, &e.Key,
			&e.PayloadJSON, &e.CreatedUnixMillis, &e.PublishedUnixMillis,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		events = append(events, e)
	}

	return events, rows.Err()
}

// MarkPublished marks an event as published
func (s *Store) MarkPublished(ctx context.Context, eventID string, nowMillis int64) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE outbox_events SET published_unix_millis = ? WHERE event_id = ?",
		nowMillis, eventID,
	)
	if err != nil {
		return fmt.Errorf("failed to mark event as published: %w", err)
	}
	return nil
}

// Close closes the database connection
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
