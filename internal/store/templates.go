package store

import (
	"context"
	"database/sql"
	"fmt"

	"daybrief/internal/model"
)

func (s *Store) CreateTemplate(ctx context.Context, tpl model.RecurringTemplate) (*model.RecurringTemplate, error) {
	now := nowText()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO recurring_todos
		 (title, description, kind, anchor, has_due_date, remind_days_before, assignee_id, active, last_generated, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		tpl.Title, tpl.Description, string(tpl.Kind), tpl.Anchor, boolToInt(tpl.HasDueDate),
		tpl.RemindDaysBefore, tpl.AssigneeID, boolToInt(tpl.Active), dateText(tpl.LastGenerated), now, now,
	)
	if err != nil {
		return nil, fmt.Errorf("insert template: %w", err)
	}
	id, _ := res.LastInsertId()
	return s.GetTemplate(ctx, id)
}

func (s *Store) GetTemplate(ctx context.Context, id int64) (*model.RecurringTemplate, error) {
	row := s.db.QueryRowContext(ctx, templateSelect+` WHERE id = ?`, id)
	tpl, err := scanTemplate(row)
	if err != nil {
		return nil, fmt.Errorf("get template %d: %w", id, err)
	}
	return tpl, nil
}

func (s *Store) ListTemplates(ctx context.Context) ([]model.RecurringTemplate, error) {
	return s.listTemplates(ctx, templateSelect+` ORDER BY id`)
}

// ListActiveTemplates returns the templates the recurring engine should
// consider on a run.
func (s *Store) ListActiveTemplates(ctx context.Context) ([]model.RecurringTemplate, error) {
	return s.listTemplates(ctx, templateSelect+` WHERE active = 1 ORDER BY id`)
}

func (s *Store) listTemplates(ctx context.Context, query string, args ...any) ([]model.RecurringTemplate, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list templates: %w", err)
	}
	defer rows.Close()

	var templates []model.RecurringTemplate
	for rows.Next() {
		tpl, err := scanTemplate(rows)
		if err != nil {
			return nil, err
		}
		templates = append(templates, *tpl)
	}
	return templates, rows.Err()
}

func (s *Store) UpdateTemplate(ctx context.Context, tpl model.RecurringTemplate) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE recurring_todos
		 SET title = ?, description = ?, kind = ?, anchor = ?, has_due_date = ?,
		     remind_days_before = ?, assignee_id = ?, active = ?, updated_at = ?
		 WHERE id = ?`,
		tpl.Title, tpl.Description, string(tpl.Kind), tpl.Anchor, boolToInt(tpl.HasDueDate),
		tpl.RemindDaysBefore, tpl.AssigneeID, boolToInt(tpl.Active), nowText(), tpl.ID,
	)
	return err
}

func (s *Store) SetTemplateActive(ctx context.Context, id int64, active bool) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE recurring_todos SET active = ?, updated_at = ? WHERE id = ?`,
		boolToInt(active), nowText(), id,
	)
	return err
}

// UpdateTemplateWatermark advances last_generated on its own. The engine
// normally advances the watermark inside CreateFromTemplate; this exists
// for administrative correction.
func (s *Store) UpdateTemplateWatermark(ctx context.Context, id int64, d model.Date) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE recurring_todos SET last_generated = ?, updated_at = ? WHERE id = ?`,
		d.String(), nowText(), id,
	)
	return err
}

func (s *Store) DeleteTemplate(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM recurring_todos WHERE id = ?`, id)
	return err
}

const templateSelect = `SELECT id, title, description, kind, anchor, has_due_date, remind_days_before, assignee_id, active, last_generated FROM recurring_todos`

func scanTemplate(row rowScanner) (*model.RecurringTemplate, error) {
	var tpl model.RecurringTemplate
	var kind string
	var hasDue, active int
	var remind sql.NullInt64
	var assignee sql.NullInt64
	var lastGen sql.NullString

	if err := row.Scan(&tpl.ID, &tpl.Title, &tpl.Description, &kind, &tpl.Anchor,
		&hasDue, &remind, &assignee, &active, &lastGen); err != nil {
		return nil, err
	}

	tpl.Kind = model.RecurrenceKind(kind)
	tpl.HasDueDate = hasDue == 1
	tpl.Active = active == 1
	if remind.Valid {
		v := int(remind.Int64)
		tpl.RemindDaysBefore = &v
	}
	if assignee.Valid {
		tpl.AssigneeID = &assignee.Int64
	}
	if lastGen.Valid && lastGen.String != "" {
		d, err := model.ParseDate(lastGen.String)
		if err != nil {
			return nil, fmt.Errorf("template %d: bad last_generated: %w", tpl.ID, err)
		}
		tpl.LastGenerated = &d
	}
	return &tpl, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// dateText renders an optional date for storage, nil staying NULL.
func dateText(d *model.Date) any {
	if d == nil {
		return nil
	}
	return d.String()
}
