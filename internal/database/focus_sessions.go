package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/benvon/onetask/internal/backend"
	"github.com/benvon/onetask/internal/models"
	"github.com/google/uuid"
)

const focusSessionColumns = `id, task_id, user_id, duration, start_time, end_time, completed, notes`

type focusSessionRow struct {
	ID        string         `db:"id"`
	TaskID    string         `db:"task_id"`
	UserID    string         `db:"user_id"`
	Duration  int            `db:"duration"`
	StartTime string         `db:"start_time"`
	EndTime   sql.NullString `db:"end_time"`
	Completed bool           `db:"completed"`
	Notes     sql.NullString `db:"notes"`
}

func (r focusSessionRow) session() (models.FocusSession, error) {
	var s models.FocusSession
	var err error

	if s.ID, err = uuid.Parse(r.ID); err != nil {
		return s, fmt.Errorf("invalid session id %q: %w", r.ID, err)
	}
	if s.TaskID, err = uuid.Parse(r.TaskID); err != nil {
		return s, fmt.Errorf("invalid task id %q: %w", r.TaskID, err)
	}
	if s.UserID, err = uuid.Parse(r.UserID); err != nil {
		return s, fmt.Errorf("invalid user id %q: %w", r.UserID, err)
	}
	if s.StartTime, err = parseTime(r.StartTime); err != nil {
		return s, err
	}
	if r.EndTime.Valid {
		end, err := parseTime(r.EndTime.String)
		if err != nil {
			return s, err
		}
		s.EndTime = &end
	}
	if r.Notes.Valid {
		s.Notes = &r.Notes.String
	}
	s.Duration = r.Duration
	s.Completed = r.Completed
	return s, nil
}

// InsertFocusSession records the start of a focus session.
func (db *DB) InsertFocusSession(ctx context.Context, in backend.NewFocusSession) (*models.FocusSession, error) {
	var row focusSessionRow
	query := db.Rebind(`
		INSERT INTO focus_sessions (` + focusSessionColumns + `)
		VALUES (?, ?, ?, ?, ?, NULL, ?, ?)
		RETURNING ` + focusSessionColumns)
	err := db.GetContext(ctx, &row, query,
		uuid.New().String(),
		in.TaskID.String(),
		in.UserID.String(),
		in.Duration,
		formatTime(in.StartTime),
		in.Completed,
		nullString(in.Notes),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert focus session: %w", err)
	}

	s, err := row.session()
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// UpdateFocusSession writes the given fields of the matched session.
func (db *DB) UpdateFocusSession(ctx context.Context, m backend.Match, in models.UpdateFocusSessionInput) (*models.FocusSession, error) {
	cols := backend.FocusSessionColumns(in)
	if len(cols) == 0 {
		return nil, fmt.Errorf("failed to update focus session: nothing to update")
	}

	names := make([]string, 0, len(cols))
	for name := range cols {
		names = append(names, name)
	}
	sort.Strings(names)

	sets := make([]string, 0, len(names))
	args := make([]any, 0, len(names)+2)
	for _, name := range names {
		v := cols[name]
		if t, ok := v.(time.Time); ok {
			v = formatTime(t)
		}
		sets = append(sets, name+" = ?")
		args = append(args, v)
	}
	args = append(args, m.ID.String(), m.UserID.String())

	var row focusSessionRow
	query := db.Rebind(`UPDATE focus_sessions SET ` + strings.Join(sets, ", ") +
		` WHERE id = ? AND user_id = ? RETURNING ` + focusSessionColumns)
	if err := db.GetContext(ctx, &row, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, backend.ErrNoRows
		}
		return nil, fmt.Errorf("failed to update focus session: %w", err)
	}

	s, err := row.session()
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// ListFocusSessions returns a task's sessions, most recent start first.
func (db *DB) ListFocusSessions(ctx context.Context, userID, taskID uuid.UUID) ([]models.FocusSession, error) {
	var rows []focusSessionRow
	query := db.Rebind(`SELECT ` + focusSessionColumns + ` FROM focus_sessions
		WHERE user_id = ? AND task_id = ? ORDER BY start_time DESC`)
	if err := db.SelectContext(ctx, &rows, query, userID.String(), taskID.String()); err != nil {
		return nil, fmt.Errorf("failed to list focus sessions: %w", err)
	}

	sessions := make([]models.FocusSession, 0, len(rows))
	for _, r := range rows {
		s, err := r.session()
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, s)
	}
	return sessions, nil
}
