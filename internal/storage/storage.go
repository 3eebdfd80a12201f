// Package storage persists flushed timeline events in SQLite.
package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/lmeyer/session-scribe/internal/models"
)

// Store wraps the SQLite connection holding the durable timeline.
type Store struct {
	db *sql.DB
}

// Open creates a new database connection and applies the schema.
func Open(dataSourceName string) (*Store, error) {
	db, err := sql.Open("sqlite", dataSourceName)
	if err != nil {
		return nil, err
	}
	if err = db.Ping(); err != nil {
		return nil, err
	}
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the underlying connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate runs the SQL statements to set up the database schema. The payload
// column holds the canonical JSON encoding of the event; seq/kind/timestamp
// are broken out for ordering and queries, screenshot so that references
// resolving after a flush can still land.
func (s *Store) migrate() error {
	const sqlStmt = `
	CREATE TABLE IF NOT EXISTS events (
		seq INTEGER NOT NULL PRIMARY KEY,
		id TEXT NOT NULL,
		timestamp TEXT NOT NULL,
		kind TEXT NOT NULL,
		payload TEXT NOT NULL,
		screenshot TEXT NOT NULL DEFAULT ''
	);

	CREATE INDEX IF NOT EXISTS idx_events_kind ON events(kind);
	`
	_, err := s.db.Exec(sqlStmt)
	return err
}

// InsertEvents writes a batch of events in one transaction. Replayed
// sequences are ignored, so an at-least-once flush never duplicates rows.
func (s *Store) InsertEvents(events []models.Event) error {
	if len(events) == 0 {
		return nil
	}
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare("INSERT OR IGNORE INTO events (seq, id, timestamp, kind, payload, screenshot) VALUES (?, ?, ?, ?, ?, ?)")
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i := range events {
		ev := &events[i]
		payload, err := json.Marshal(ev)
		if err != nil {
			return fmt.Errorf("encode event %d: %w", ev.Sequence, err)
		}
		if _, err := stmt.Exec(ev.Sequence, ev.ID, ev.Timestamp.Format(timeFormat), string(ev.Kind), string(payload), ev.Screenshot); err != nil {
			return fmt.Errorf("insert event %d: %w", ev.Sequence, err)
		}
	}
	return tx.Commit()
}

const timeFormat = "2006-01-02T15:04:05.999999999Z07:00" // RFC 3339 with nanoseconds

// AllEvents returns the full durable timeline in ascending sequence order.
func (s *Store) AllEvents() ([]models.Event, error) {
	rows, err := s.db.Query("SELECT payload, screenshot FROM events ORDER BY seq ASC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEvents(rows)
}

// RecentEvents returns the most recent events, newest first.
func (s *Store) RecentEvents(limit int) ([]models.Event, error) {
	rows, err := s.db.Query("SELECT payload, screenshot FROM events ORDER BY seq DESC LIMIT ?", limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEvents(rows)
}

func scanEvents(rows *sql.Rows) ([]models.Event, error) {
	var events []models.Event
	for rows.Next() {
		var payload, screenshot string
		if err := rows.Scan(&payload, &screenshot); err != nil {
			return nil, err
		}
		var ev models.Event
		if err := json.Unmarshal([]byte(payload), &ev); err != nil {
			return nil, fmt.Errorf("decode event payload: %w", err)
		}
		// The column wins: it may have been updated after the row was written.
		if screenshot != "" {
			ev.Screenshot = screenshot
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

// MaxSequence returns the highest persisted sequence, or zero for an empty
// store. The writer resumes its durable cursor from this after a restart.
func (s *Store) MaxSequence() (uint64, error) {
	var seq sql.NullInt64
	if err := s.db.QueryRow("SELECT MAX(seq) FROM events").Scan(&seq); err != nil {
		return 0, err
	}
	if !seq.Valid {
		return 0, nil
	}
	return uint64(seq.Int64), nil
}

// CountEvents returns the number of persisted events.
func (s *Store) CountEvents() (int64, error) {
	var n int64
	err := s.db.QueryRow("SELECT COUNT(*) FROM events").Scan(&n)
	return n, err
}

// UpdateScreenshot records a screenshot reference that resolved after its
// event was already flushed. Set-once: a row with a reference keeps it.
func (s *Store) UpdateScreenshot(seq uint64, ref string) (bool, error) {
	res, err := s.db.Exec("UPDATE events SET screenshot = ? WHERE seq = ? AND screenshot = ''", ref, seq)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
