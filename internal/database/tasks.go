package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/benvon/onetask/internal/backend"
	"github.com/benvon/onetask/internal/models"
	"github.com/google/uuid"
)

const taskColumns = `id, user_id, title, description, priority, status, due_date, tags, created_at, updated_at, ai_priority_score`

type taskRow struct {
	ID              string          `db:"id"`
	UserID          string          `db:"user_id"`
	Title           string          `db:"title"`
	Description     sql.NullString  `db:"description"`
	Priority        int             `db:"priority"`
	Status          string          `db:"status"`
	DueDate         sql.NullString  `db:"due_date"`
	Tags            string          `db:"tags"`
	CreatedAt       string          `db:"created_at"`
	UpdatedAt       string          `db:"updated_at"`
	AIPriorityScore sql.NullFloat64 `db:"ai_priority_score"`
}

func (r taskRow) task() (models.Task, error) {
	var t models.Task
	var err error

	if t.ID, err = uuid.Parse(r.ID); err != nil {
		return t, fmt.Errorf("invalid task id %q: %w", r.ID, err)
	}
	if t.UserID, err = uuid.Parse(r.UserID); err != nil {
		return t, fmt.Errorf("invalid user id %q: %w", r.UserID, err)
	}
	if t.CreatedAt, err = parseTime(r.CreatedAt); err != nil {
		return t, err
	}
	if t.UpdatedAt, err = parseTime(r.UpdatedAt); err != nil {
		return t, err
	}

	t.Title = r.Title
	t.Priority = r.Priority
	t.Status = models.TaskStatus(r.Status)
	if r.Description.Valid {
		t.Description = &r.Description.String
	}
	if r.DueDate.Valid {
		t.DueDate = &r.DueDate.String
	}
	if r.AIPriorityScore.Valid {
		t.AIPriorityScore = &r.AIPriorityScore.Float64
	}

	t.Tags = []string{}
	if r.Tags != "" {
		if err := json.Unmarshal([]byte(r.Tags), &t.Tags); err != nil {
			return t, fmt.Errorf("failed to unmarshal tags: %w", err)
		}
	}
	return t, nil
}

func encodeTags(tags []string) (string, error) {
	if tags == nil {
		tags = []string{}
	}
	b, err := json.Marshal(tags)
	if err != nil {
		return "", fmt.Errorf("failed to marshal tags: %w", err)
	}
	return string(b), nil
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func nullFloat(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}

// matchClause renders the WHERE clause for m with ? placeholders.
func matchClause(m backend.Match) (string, []any) {
	clause := "id = ? AND user_id = ?"
	args := []any{m.ID.String(), m.UserID.String()}
	if m.UpdatedAt != nil {
		clause += " AND updated_at = ?"
		args = append(args, formatTime(*m.UpdatedAt))
	}
	return clause, args
}

// ListTasks returns the user's tasks, newest first.
func (db *DB) ListTasks(ctx context.Context, userID uuid.UUID) ([]models.Task, error) {
	var rows []taskRow
	query := db.Rebind(`SELECT ` + taskColumns + ` FROM tasks WHERE user_id = ? ORDER BY created_at DESC, id`)
	if err := db.SelectContext(ctx, &rows, query, userID.String()); err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}

	tasks := make([]models.Task, 0, len(rows))
	for _, r := range rows {
		t, err := r.task()
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	return tasks, nil
}

// InsertTask stores a new task under a fresh id.
func (db *DB) InsertTask(ctx context.Context, in backend.NewTask) (*models.Task, error) {
	tags, err := encodeTags(in.Tags)
	if err != nil {
		return nil, err
	}

	var row taskRow
	query := db.Rebind(`
		INSERT INTO tasks (` + taskColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING ` + taskColumns)
	err = db.GetContext(ctx, &row, query,
		uuid.New().String(),
		in.UserID.String(),
		in.Title,
		nullString(in.Description),
		in.Priority,
		string(in.Status),
		nullString(in.DueDate),
		tags,
		formatTime(in.CreatedAt),
		formatTime(in.UpdatedAt),
		nullFloat(in.AIPriorityScore),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert task: %w", err)
	}

	t, err := row.task()
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// UpdateTask writes the changed columns of the matched row.
func (db *DB) UpdateTask(ctx context.Context, m backend.Match, changes backend.TaskChanges) (*models.Task, error) {
	cols := changes.Columns()
	names := make([]string, 0, len(cols))
	for name := range cols {
		names = append(names, name)
	}
	sort.Strings(names)

	sets := make([]string, 0, len(names))
	args := make([]any, 0, len(names)+3)
	for _, name := range names {
		v, err := columnValue(name, cols[name])
		if err != nil {
			return nil, err
		}
		sets = append(sets, name+" = ?")
		args = append(args, v)
	}

	where, whereArgs := matchClause(m)
	args = append(args, whereArgs...)

	var row taskRow
	query := db.Rebind(`UPDATE tasks SET ` + strings.Join(sets, ", ") + ` WHERE ` + where + ` RETURNING ` + taskColumns)
	if err := db.GetContext(ctx, &row, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, backend.ErrNoRows
		}
		return nil, fmt.Errorf("failed to update task: %w", err)
	}

	t, err := row.task()
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// columnValue converts a Columns() value to its stored form.
func columnValue(name string, v any) (any, error) {
	switch name {
	case "tags":
		tags, _ := v.([]string)
		return encodeTags(tags)
	case "updated_at":
		if t, ok := v.(time.Time); ok {
			return formatTime(t), nil
		}
	}
	return v, nil
}

// DeleteTask removes the matched row.
func (db *DB) DeleteTask(ctx context.Context, m backend.Match) (int, error) {
	where, args := matchClause(m)
	res, err := db.ExecContext(ctx, db.Rebind(`DELETE FROM tasks WHERE `+where), args...)
	if err != nil {
		return 0, fmt.Errorf("failed to delete task: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count deleted rows: %w", err)
	}
	return int(n), nil
}

var _ backend.Backend = (*DB)(nil)
