package store

import (
	"context"
	"fmt"

	"daybrief/internal/model"
)

func (s *Store) CreateMember(ctx context.Context, name, color string) (*model.FamilyMember, error) {
	if color == "" {
		color = "#333333"
	}
	now := nowText()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO family_members (name, color, created_at, updated_at) VALUES (?, ?, ?, ?)`,
		name, color, now, now,
	)
	if err != nil {
		return nil, fmt.Errorf("insert member: %w", err)
	}
	id, _ := res.LastInsertId()
	return s.GetMember(ctx, id)
}

func (s *Store) GetMember(ctx context.Context, id int64) (*model.FamilyMember, error) {
	m := &model.FamilyMember{}
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, color FROM family_members WHERE id = ?`, id,
	).Scan(&m.ID, &m.Name, &m.Color)
	if err != nil {
		return nil, fmt.Errorf("get member %d: %w", id, err)
	}
	return m, nil
}

func (s *Store) ListMembers(ctx context.Context) ([]model.FamilyMember, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, color FROM family_members ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	defer rows.Close()

	var members []model.FamilyMember
	for rows.Next() {
		var m model.FamilyMember
		if err := rows.Scan(&m.ID, &m.Name, &m.Color); err != nil {
			return nil, err
		}
		members = append(members, m)
	}
	return members, rows.Err()
}

func (s *Store) UpdateMember(ctx context.Context, id int64, name, color string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE family_members SET name = ?, color = ?, updated_at = ? WHERE id = ?`,
		name, color, nowText(), id,
	)
	return err
}

func (s *Store) DeleteMember(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM family_members WHERE id = ?`, id)
	return err
}
