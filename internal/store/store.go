package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/agentd-dev/agentd/internal/domain"
	"github.com/google/uuid"

	_ "modernc.org/sqlite"
)

const eventsTable = "events"

// Store is the append-only SQLite event log.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the event database at the given path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// InMemory creates an ephemeral store, useful for testing.
func InMemory() (*Store, error) {
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// Every pooled connection would otherwise see its own empty database.
	db.SetMaxOpenConns(1)
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// NewFromDB creates a Store from an existing *sql.DB and runs migrations.
func NewFromDB(db *sql.DB) (*Store, error) {
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS events (
			id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL,
			timestamp TEXT NOT NULL,
			kind TEXT NOT NULL,
			data TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_events_session
			ON events(session_id, timestamp);
	`)
	return err
}

// Append inserts one event. Events are never updated or deleted.
func (s *Store) Append(ev *domain.Event) error {
	data, err := json.Marshal(ev.Kind)
	if err != nil {
		return fmt.Errorf("encode event data: %w", err)
	}
	_, err = s.db.Exec(
		`INSERT INTO events (id, session_id, timestamp, kind, data) VALUES (?, ?, ?, ?, ?)`,
		ev.ID.String(),
		ev.SessionID.String(),
		ev.Timestamp.Format(time.RFC3339Nano),
		ev.Kind.Kind,
		string(data),
	)
	if err != nil {
		return fmt.Errorf("append event: %w", err)
	}
	return nil
}

// LoadSession returns all events for a session, ordered by timestamp.
func (s *Store) LoadSession(session domain.SessionID) ([]domain.Event, error) {
	return s.LoadEvents(session, "")
}

// LoadEvents returns a session's events in timestamp order, optionally
// filtered by kind. An empty filter returns everything.
func (s *Store) LoadEvents(session domain.SessionID, kindFilter string) ([]domain.Event, error) {
	query := `SELECT id, session_id, timestamp, data FROM events
		WHERE session_id = ? ORDER BY timestamp, id`
	args := []any{session.String()}
	if kindFilter != "" {
		query = `SELECT id, session_id, timestamp, data FROM events
			WHERE session_id = ? AND kind = ? ORDER BY timestamp, id`
		args = append(args, kindFilter)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var events []domain.Event
	for rows.Next() {
		var id, sessionID, timestamp, data string
		if err := rows.Scan(&id, &sessionID, &timestamp, &data); err != nil {
			return nil, fmt.Errorf("scan event row: %w", err)
		}
		ev, err := parseEventRow(id, sessionID, timestamp, data)
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

// SessionSummary describes one session for listing.
type SessionSummary struct {
	ID           domain.SessionID
	StartedAt    time.Time
	EndedAt      *time.Time
	MessageCount int
}

// ListSessions returns all sessions, most recently started first. A session
// without a session_end event has a nil EndedAt.
func (s *Store) ListSessions() ([]SessionSummary, error) {
	rows, err := s.db.Query(`
		SELECT
			session_id,
			MIN(timestamp) AS started_at,
			MAX(CASE WHEN kind = 'session_end' THEN timestamp END) AS ended_at,
			SUM(CASE WHEN kind = 'message' THEN 1 ELSE 0 END) AS message_count
		FROM events
		GROUP BY session_id
		ORDER BY started_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	var sessions []SessionSummary
	for rows.Next() {
		var sessionID, startedAt string
		var endedAt sql.NullString
		var messageCount int
		if err := rows.Scan(&sessionID, &startedAt, &endedAt, &messageCount); err != nil {
			return nil, fmt.Errorf("scan session row: %w", err)
		}
		summary, err := parseSessionRow(sessionID, startedAt, endedAt, messageCount)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, summary)
	}
	return sessions, rows.Err()
}

// CorruptedError reports a row that failed to decode. Corruption is surfaced
// to the caller, never silently dropped.
type CorruptedError struct {
	Table  string
	ID     string
	Reason string
}

func (e *CorruptedError) Error() string {
	return fmt.Sprintf("corrupted row in %s (id %s): %s", e.Table, e.ID, e.Reason)
}

func parseEventRow(id, sessionID, timestamp, data string) (domain.Event, error) {
	parsedID, err := uuid.Parse(id)
	if err != nil {
		return domain.Event{}, &CorruptedError{
			Table: eventsTable, ID: id,
			Reason: fmt.Sprintf("invalid UUID for event id: %s", id),
		}
	}
	parsedSession, err := domain.ParseSessionID(sessionID)
	if err != nil {
		return domain.Event{}, &CorruptedError{
			Table: eventsTable, ID: id,
			Reason: fmt.Sprintf("invalid UUID for session_id: %s", sessionID),
		}
	}
	parsedTimestamp, err := time.Parse(time.RFC3339Nano, timestamp)
	if err != nil {
		return domain.Event{}, &CorruptedError{
			Table: eventsTable, ID: id,
			Reason: fmt.Sprintf("invalid timestamp: %s", timestamp),
		}
	}
	var kind domain.EventKind
	if err := json.Unmarshal([]byte(data), &kind); err != nil {
		return domain.Event{}, &CorruptedError{
			Table: eventsTable, ID: id,
			Reason: fmt.Sprintf("invalid event data: %v", err),
		}
	}
	return domain.Event{
		ID:        parsedID,
		SessionID: parsedSession,
		Timestamp: parsedTimestamp,
		Kind:      kind,
	}, nil
}

func parseSessionRow(sessionID, startedAt string, endedAt sql.NullString, messageCount int) (SessionSummary, error) {
	parsedSession, err := domain.ParseSessionID(sessionID)
	if err != nil {
		return SessionSummary{}, &CorruptedError{
			Table: eventsTable, ID: sessionID,
			Reason: fmt.Sprintf("invalid UUID for session_id: %s", sessionID),
		}
	}
	parsedStarted, err := time.Parse(time.RFC3339Nano, startedAt)
	if err != nil {
		return SessionSummary{}, &CorruptedError{
			Table: eventsTable, ID: sessionID,
			Reason: fmt.Sprintf("invalid started_at timestamp: %s", startedAt),
		}
	}
	var parsedEnded *time.Time
	if endedAt.Valid {
		t, err := time.Parse(time.RFC3339Nano, endedAt.String)
		if err != nil {
			return SessionSummary{}, &CorruptedError{
				Table: eventsTable, ID: sessionID,
				Reason: fmt.Sprintf("invalid ended_at timestamp: %s", endedAt.String),
			}
		}
		parsedEnded = &t
	}
	return SessionSummary{
		ID:           parsedSession,
		StartedAt:    parsedStarted,
		EndedAt:      parsedEnded,
		MessageCount: messageCount,
	}, nil
}
