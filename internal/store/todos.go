package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"daybrief/internal/model"
)

func (s *Store) CreateTodo(ctx context.Context, todo model.Todo) (*model.Todo, error) {
	now := nowText()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO todos (title, description, due_date, assignee_id, remind_days_before, template_id, completed, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, 0, ?, ?)`,
		todo.Title, todo.Description, dateText(todo.DueDate), todo.AssigneeID,
		todo.RemindDaysBefore, todo.TemplateID, now, now,
	)
	if err != nil {
		return nil, fmt.Errorf("insert todo: %w", err)
	}
	id, _ := res.LastInsertId()
	return s.GetTodo(ctx, id)
}

// CreateFromTemplate inserts a materialized todo and advances the
// template's watermark to fireDate in one transaction. The watermark can
// therefore never move past a fire date whose instance write failed, which
// would silently skip an occurrence forever.
func (s *Store) CreateFromTemplate(ctx context.Context, todo model.Todo, templateID int64, fireDate model.Date) (model.Todo, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return model.Todo{}, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	now := nowText()
	res, err := tx.ExecContext(ctx,
		`INSERT INTO todos (title, description, due_date, assignee_id, remind_days_before, template_id, completed, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, 0, ?, ?)`,
		todo.Title, todo.Description, dateText(todo.DueDate), todo.AssigneeID,
		todo.RemindDaysBefore, templateID, now, now,
	)
	if err != nil {
		return model.Todo{}, fmt.Errorf("insert todo: %w", err)
	}
	id, _ := res.LastInsertId()

	if _, err := tx.ExecContext(ctx,
		`UPDATE recurring_todos SET last_generated = ?, updated_at = ? WHERE id = ?`,
		fireDate.String(), now, templateID,
	); err != nil {
		return model.Todo{}, fmt.Errorf("advance watermark: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return model.Todo{}, fmt.Errorf("commit: %w", err)
	}

	saved, err := s.GetTodo(ctx, id)
	if err != nil {
		return model.Todo{}, err
	}
	return *saved, nil
}

func (s *Store) GetTodo(ctx context.Context, id int64) (*model.Todo, error) {
	row := s.db.QueryRowContext(ctx, todoSelect+` WHERE id = ?`, id)
	todo, err := scanTodo(row)
	if err != nil {
		return nil, fmt.Errorf("get todo %d: %w", id, err)
	}
	return todo, nil
}

// ListOpenTodos returns todos not yet completed.
func (s *Store) ListOpenTodos(ctx context.Context) ([]model.Todo, error) {
	return s.listTodos(ctx, todoSelect+` WHERE completed = 0 ORDER BY due_date IS NULL, due_date, id`)
}

// ListCurrentTodos returns open todos plus todos completed at or after
// completedSince, so the assembler can apply the post-completion
// visibility rule.
func (s *Store) ListCurrentTodos(ctx context.Context, completedSince time.Time) ([]model.Todo, error) {
	return s.listTodos(ctx,
		todoSelect+` WHERE completed = 0 OR (completed_at IS NOT NULL AND completed_at >= ?)
		 ORDER BY completed, due_date IS NULL, due_date, id`,
		completedSince.UTC().Format(time.RFC3339),
	)
}

// OpenTodoForTemplate returns the open instance back-referencing the
// template, or nil when none exists. The recurring engine keeps this at
// most one.
func (s *Store) OpenTodoForTemplate(ctx context.Context, templateID int64) (*model.Todo, error) {
	row := s.db.QueryRowContext(ctx,
		todoSelect+` WHERE template_id = ? AND completed = 0 ORDER BY id LIMIT 1`, templateID)
	todo, err := scanTodo(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open todo for template %d: %w", templateID, err)
	}
	return todo, nil
}

func (s *Store) listTodos(ctx context.Context, query string, args ...any) ([]model.Todo, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list todos: %w", err)
	}
	defer rows.Close()

	var todos []model.Todo
	for rows.Next() {
		todo, err := scanTodo(rows)
		if err != nil {
			return nil, err
		}
		todos = append(todos, *todo)
	}
	return todos, rows.Err()
}

func (s *Store) UpdateTodo(ctx context.Context, todo model.Todo) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE todos SET title = ?, description = ?, due_date = ?, assignee_id = ?, remind_days_before = ?, updated_at = ?
		 WHERE id = ?`,
		todo.Title, todo.Description, dateText(todo.DueDate), todo.AssigneeID,
		todo.RemindDaysBefore, nowText(), todo.ID,
	)
	return err
}

// SetTodoCompleted marks completion state, recording or clearing the
// completion instant the 24-hour visibility rule runs on.
func (s *Store) SetTodoCompleted(ctx context.Context, id int64, completed bool, at time.Time) error {
	var completedAt any
	if completed {
		completedAt = at.UTC().Format(time.RFC3339)
	}
	_, err := s.db.ExecContext(ctx,
		`UPDATE todos SET completed = ?, completed_at = ?, updated_at = ? WHERE id = ?`,
		boolToInt(completed), completedAt, nowText(), id,
	)
	return err
}

func (s *Store) DeleteTodo(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM todos WHERE id = ?`, id)
	return err
}

const todoSelect = `SELECT id, title, description, due_date, assignee_id, remind_days_before, template_id, completed, completed_at, created_at FROM todos`

func scanTodo(row rowScanner) (*model.Todo, error) {
	var todo model.Todo
	var due sql.NullString
	var assignee, template sql.NullInt64
	var remind sql.NullInt64
	var completed int
	var completedAt sql.NullString
	var createdAt string

	if err := row.Scan(&todo.ID, &todo.Title, &todo.Description, &due, &assignee,
		&remind, &template, &completed, &completedAt, &createdAt); err != nil {
		return nil, err
	}

	todo.Completed = completed == 1
	if due.Valid && due.String != "" {
		d, err := model.ParseDate(due.String)
		if err != nil {
			return nil, fmt.Errorf("todo %d: bad due_date: %w", todo.ID, err)
		}
		todo.DueDate = &d
	}
	if assignee.Valid {
		todo.AssigneeID = &assignee.Int64
	}
	if remind.Valid {
		v := int(remind.Int64)
		todo.RemindDaysBefore = &v
	}
	if template.Valid {
		todo.TemplateID = &template.Int64
	}
	if completedAt.Valid && completedAt.String != "" {
		t, err := time.Parse(time.RFC3339, completedAt.String)
		if err != nil {
			return nil, fmt.Errorf("todo %d: bad completed_at: %w", todo.ID, err)
		}
		todo.CompletedAt = &t
	}
	todo.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return &todo, nil
}
