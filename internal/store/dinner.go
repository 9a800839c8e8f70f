package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"daybrief/internal/model"
)

func (s *Store) CreateDinnerPlan(ctx context.Context, plan model.DinnerPlan) (*model.DinnerPlan, error) {
	attendees, err := json.Marshal(plan.AttendeeIDs)
	if err != nil {
		return nil, fmt.Errorf("marshal attendees: %w", err)
	}
	now := nowText()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO dinner_plans (date, plan, attendee_ids, cook_id, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		plan.Date.String(), plan.Plan, string(attendees), plan.CookID, now, now,
	)
	if err != nil {
		return nil, fmt.Errorf("insert dinner plan: %w", err)
	}
	id, _ := res.LastInsertId()
	return s.GetDinnerPlan(ctx, id)
}

func (s *Store) GetDinnerPlan(ctx context.Context, id int64) (*model.DinnerPlan, error) {
	row := s.db.QueryRowContext(ctx, dinnerSelect+` WHERE id = ?`, id)
	plan, err := scanDinnerPlan(row)
	if err != nil {
		return nil, fmt.Errorf("get dinner plan %d: %w", id, err)
	}
	return plan, nil
}

// ListDinnerPlans returns plans with from <= date < to, date ascending.
// Multiple plans per date are allowed and all returned.
func (s *Store) ListDinnerPlans(ctx context.Context, from, to model.Date) ([]model.DinnerPlan, error) {
	rows, err := s.db.QueryContext(ctx,
		dinnerSelect+` WHERE date >= ? AND date < ? ORDER BY date, id`,
		from.String(), to.String(),
	)
	if err != nil {
		return nil, fmt.Errorf("list dinner plans: %w", err)
	}
	defer rows.Close()

	var plans []model.DinnerPlan
	for rows.Next() {
		plan, err := scanDinnerPlan(rows)
		if err != nil {
			return nil, err
		}
		plans = append(plans, *plan)
	}
	return plans, rows.Err()
}

func (s *Store) UpdateDinnerPlan(ctx context.Context, plan model.DinnerPlan) error {
	attendees, err := json.Marshal(plan.AttendeeIDs)
	if err != nil {
		return fmt.Errorf("marshal attendees: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`UPDATE dinner_plans SET date = ?, plan = ?, attendee_ids = ?, cook_id = ?, updated_at = ? WHERE id = ?`,
		plan.Date.String(), plan.Plan, string(attendees), plan.CookID, nowText(), plan.ID,
	)
	return err
}

func (s *Store) DeleteDinnerPlan(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM dinner_plans WHERE id = ?`, id)
	return err
}

const dinnerSelect = `SELECT id, date, plan, attendee_ids, cook_id FROM dinner_plans`

func scanDinnerPlan(row rowScanner) (*model.DinnerPlan, error) {
	var plan model.DinnerPlan
	var dateStr, attendees string
	var cook sql.NullInt64

	if err := row.Scan(&plan.ID, &dateStr, &plan.Plan, &attendees, &cook); err != nil {
		return nil, err
	}

	d, err := model.ParseDate(dateStr)
	if err != nil {
		return nil, fmt.Errorf("dinner plan %d: bad date: %w", plan.ID, err)
	}
	plan.Date = d

	if attendees != "" {
		if err := json.Unmarshal([]byte(attendees), &plan.AttendeeIDs); err != nil {
			return nil, fmt.Errorf("dinner plan %d: bad attendees: %w", plan.ID, err)
		}
	}
	if cook.Valid {
		plan.CookID = &cook.Int64
	}
	return &plan, nil
}
