package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned when a session lookup matches nothing.
var ErrNotFound = errors.New("session not found")

// ErrAmbiguous is returned when an id prefix matches several sessions.
var ErrAmbiguous = errors.New("session id prefix is ambiguous")

// SessionRecord is one journaled learning session.
type SessionRecord struct {
	ID          string // local uuid
	ServerID    string
	Problem     string
	Language    string
	SkillLevel  string
	Model       string
	Stage       string
	StartedAt   time.Time
	CompletedAt time.Time // zero until completed
}

// Completed reports whether learning was completed in this session.
func (r SessionRecord) Completed() bool { return !r.CompletedAt.IsZero() }

// EventKind classifies journal events.
type EventKind string

const (
	EventMessage   EventKind = "message"
	EventStage     EventKind = "stage"
	EventCompleted EventKind = "completed"
)

// Event is one entry of a session's transcript.
type Event struct {
	Seq       int64
	SessionID string
	Kind      EventKind
	Sender    string
	MsgKind   string
	Text      string
	Stage     string
	At        time.Time
}

// CreateSession inserts a session record.
func (s *Store) CreateSession(ctx context.Context, rec SessionRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (id, server_id, problem, language, skill_level, model, stage, started_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.ServerID, rec.Problem, rec.Language, rec.SkillLevel, rec.Model, rec.Stage,
		rec.StartedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

// AppendEvent adds ev to its session's transcript.
func (s *Store) AppendEvent(ctx context.Context, ev Event) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO events (session_id, kind, sender, msg_kind, text, stage, at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		ev.SessionID, string(ev.Kind), ev.Sender, ev.MsgKind, ev.Text, ev.Stage, ev.At.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

// UpdateStage records the session's current stage.
func (s *Store) UpdateStage(ctx context.Context, id, stage string) error {
	if _, err := s.db.ExecContext(ctx, `UPDATE sessions SET stage = ? WHERE id = ?`, stage, id); err != nil {
		return fmt.Errorf("update stage: %w", err)
	}
	return nil
}

// MarkCompleted stamps the session's completion time.
func (s *Store) MarkCompleted(ctx context.Context, id string, at time.Time) error {
	if _, err := s.db.ExecContext(ctx, `UPDATE sessions SET completed_at = ? WHERE id = ?`, at.UnixMilli(), id); err != nil {
		return fmt.Errorf("mark completed: %w", err)
	}
	return nil
}

const sessionColumns = `id, server_id, problem, language, skill_level, model, stage, started_at, completed_at`

func scanSession(row interface{ Scan(...any) error }) (SessionRecord, error) {
	var (
		rec       SessionRecord
		started   int64
		completed sql.NullInt64
	)
	err := row.Scan(&rec.ID, &rec.ServerID, &rec.Problem, &rec.Language, &rec.SkillLevel,
		&rec.Model, &rec.Stage, &started, &completed)
	if err != nil {
		return SessionRecord{}, err
	}
	rec.StartedAt = time.UnixMilli(started)
	if completed.Valid {
		rec.CompletedAt = time.UnixMilli(completed.Int64)
	}
	return rec, nil
}

// ListSessions returns the most recent sessions first. limit <= 0 means
// no limit.
func (s *Store) ListSessions(ctx context.Context, limit int) ([]SessionRecord, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions ORDER BY started_at DESC, rowid DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	var out []SessionRecord
	for rows.Next() {
		rec, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// FindSession resolves a local id, or a unique prefix of one, or a
// server-issued id.
func (s *Store) FindSession(ctx context.Context, ref string) (SessionRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE id LIKE ? || '%' OR server_id = ? LIMIT 2`, ref, ref)
	if err != nil {
		return SessionRecord{}, fmt.Errorf("query session: %w", err)
	}
	defer rows.Close()

	var found []SessionRecord
	for rows.Next() {
		rec, err := scanSession(rows)
		if err != nil {
			return SessionRecord{}, fmt.Errorf("scan session: %w", err)
		}
		found = append(found, rec)
	}
	if err := rows.Err(); err != nil {
		return SessionRecord{}, err
	}
	switch len(found) {
	case 0:
		return SessionRecord{}, ErrNotFound
	case 1:
		return found[0], nil
	default:
		return SessionRecord{}, ErrAmbiguous
	}
}

// Transcript returns the session's events in order.
func (s *Store) Transcript(ctx context.Context, sessionID string) ([]Event, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, session_id, kind, sender, msg_kind, text, stage, at
		FROM events WHERE session_id = ? ORDER BY seq`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var (
			ev   Event
			kind string
			at   int64
		)
		if err := rows.Scan(&ev.Seq, &ev.SessionID, &kind, &ev.Sender, &ev.MsgKind, &ev.Text, &ev.Stage, &at); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		ev.Kind = EventKind(kind)
		ev.At = time.UnixMilli(at)
		out = append(out, ev)
	}
	return out, rows.Err()
}

// DeleteSession removes a session and its events.
func (s *Store) DeleteSession(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// Purge removes every session and returns how many there were.
func (s *Store) Purge(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM sessions`)
	if err != nil {
		return 0, fmt.Errorf("purge sessions: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}
