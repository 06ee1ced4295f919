package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/worklets/internal/trace"
)

// ErrSessionNotFound is returned when a session id is unknown.
var ErrSessionNotFound = errors.New("session not found")

// ReadSession returns the session with id.
func (s *Store) ReadSession(ctx context.Context, id string) (Session, error) {
	var sess Session
	err := s.db.QueryRowContext(ctx, `SELECT id, name FROM sessions WHERE id = ?`, id).
		Scan(&sess.ID, &sess.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return Session{}, fmt.Errorf("read session %s: %w", id, ErrSessionNotFound)
	}
	if err != nil {
		return Session{}, fmt.Errorf("read session %s: %w", id, err)
	}
	return sess, nil
}

// ListSessions returns every session in insertion order.
// Returns an empty slice (not nil) when the store is empty.
func (s *Store) ListSessions(ctx context.Context) ([]Session, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name FROM sessions ORDER BY ordinal ASC`)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	sessions := []Session{}
	for rows.Next() {
		var sess Session
		if err := rows.Scan(&sess.ID, &sess.Name); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sessions = append(sessions, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}
	return sessions, nil
}

// LatestSession returns the most recently created session.
func (s *Store) LatestSession(ctx context.Context) (Session, error) {
	var sess Session
	err := s.db.QueryRowContext(ctx, `SELECT id, name FROM sessions ORDER BY ordinal DESC LIMIT 1`).
		Scan(&sess.ID, &sess.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return Session{}, fmt.Errorf("latest session: %w", ErrSessionNotFound)
	}
	if err != nil {
		return Session{}, fmt.Errorf("latest session: %w", err)
	}
	return sess, nil
}

// ReadEvents returns a session's events ordered by seq.
// An empty kind returns every kind.
// Returns an empty slice (not nil) if the session has no matching events.
func (s *Store) ReadEvents(ctx context.Context, sessionID string, kind trace.Kind) ([]trace.Event, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, kind, subject, data
		FROM trace_events
		WHERE session_id = ? AND (? = '' OR kind = ?)
		ORDER BY seq ASC
	`, sessionID, string(kind), string(kind))
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	events := []trace.Event{}
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return events, nil
}

// CountEvents returns the number of events stored for a session.
func (s *Store) CountEvents(ctx context.Context, sessionID string) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM trace_events WHERE session_id = ?`, sessionID).Scan(&n); err != nil {
		return 0, fmt.Errorf("count events: %w", err)
	}
	return n, nil
}

func scanEvent(rows *sql.Rows) (trace.Event, error) {
	var (
		ev   trace.Event
		kind string
		data string
	)
	if err := rows.Scan(&ev.Seq, &kind, &ev.Subject, &data); err != nil {
		return trace.Event{}, fmt.Errorf("scan event: %w", err)
	}
	ev.Kind = trace.Kind(kind)

	m, err := unmarshalData(data)
	if err != nil {
		return trace.Event{}, fmt.Errorf("event %d: %w", ev.Seq, err)
	}
	ev.Data = m
	return ev, nil
}
