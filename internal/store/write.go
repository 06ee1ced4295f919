package store

import (
	"context"
	"fmt"

	"github.com/roach88/worklets/internal/trace"
	"github.com/roach88/worklets/internal/value"
)

// Session identifies one engine lifetime in the trace log.
type Session struct {
	ID   string
	Name string
}

// CreateSession inserts a session record.
// Uses ON CONFLICT(id) DO NOTHING for idempotency - an existing session keeps
// its original name and position.
func (s *Store) CreateSession(ctx context.Context, sess Session) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (id, name, ordinal)
		VALUES (?, ?, (SELECT COALESCE(MAX(ordinal), 0) + 1 FROM sessions))
		ON CONFLICT(id) DO NOTHING
	`, sess.ID, sess.Name)
	if err != nil {
		return fmt.Errorf("create session %s: %w", sess.ID, err)
	}
	return nil
}

// WriteEvents appends events to a session in one transaction.
// Rewriting an event with a seq already present is silently ignored, so a
// recording can be persisted more than once.
//
// Note: The session must exist (foreign key constraint).
func (s *Store) WriteEvents(ctx context.Context, sessionID string, events []trace.Event) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("write events: begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO trace_events (session_id, seq, kind, subject, data)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(session_id, seq) DO NOTHING
	`)
	if err != nil {
		return fmt.Errorf("write events: prepare: %w", err)
	}
	defer stmt.Close()

	for _, ev := range events {
		data, err := marshalData(ev.Data)
		if err != nil {
			return fmt.Errorf("write event %d: %w", ev.Seq, err)
		}
		if _, err := stmt.ExecContext(ctx, sessionID, ev.Seq, string(ev.Kind), ev.Subject, data); err != nil {
			return fmt.Errorf("write event %d: %w", ev.Seq, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("write events: commit: %w", err)
	}
	return nil
}

// DeleteSession removes a session and its events. Unknown ids are a no-op.
func (s *Store) DeleteSession(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete session %s: %w", id, err)
	}
	return nil
}

// marshalData converts event data to canonical JSON TEXT for storage.
func marshalData(data map[string]any) (string, error) {
	if len(data) == 0 {
		return "{}", nil
	}
	out, err := value.MarshalCanonical(data)
	if err != nil {
		return "", fmt.Errorf("marshal data: %w", err)
	}
	return string(out), nil
}

// unmarshalData parses canonical JSON TEXT back into plain Go data.
func unmarshalData(text string) (map[string]any, error) {
	if text == "" || text == "{}" {
		return nil, nil
	}
	v, err := value.FromJSON([]byte(text))
	if err != nil {
		return nil, fmt.Errorf("unmarshal data: %w", err)
	}
	m, ok := value.ToGo(v).(map[string]any)
	if !ok {
		return nil, fmt.Errorf("unmarshal data: expected object, got %s", value.Kind(v))
	}
	return m, nil
}
