package store

import (
	"context"
	"database/sql"
	"fmt"

	"daybrief/internal/model"
)

func (s *Store) CreateSource(ctx context.Context, src model.CalendarSource) (*model.CalendarSource, error) {
	now := nowText()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO calendar_sources (label, url, owner_email, member_id, position, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		src.Label, src.URL, src.OwnerEmail, src.MemberID, src.Position, now, now,
	)
	if err != nil {
		return nil, fmt.Errorf("insert source: %w", err)
	}
	id, _ := res.LastInsertId()
	return s.GetSource(ctx, id)
}

func (s *Store) GetSource(ctx context.Context, id int64) (*model.CalendarSource, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, label, url, owner_email, member_id, position FROM calendar_sources WHERE id = ?`, id)
	src, err := scanSource(row)
	if err != nil {
		return nil, fmt.Errorf("get source %d: %w", id, err)
	}
	return src, nil
}

// ListSources returns all feed sources in configuration order. That order
// is the dedup tie-break: the first-listed source wins.
func (s *Store) ListSources(ctx context.Context) ([]model.CalendarSource, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, label, url, owner_email, member_id, position FROM calendar_sources ORDER BY position, id`)
	if err != nil {
		return nil, fmt.Errorf("list sources: %w", err)
	}
	defer rows.Close()

	var sources []model.CalendarSource
	for rows.Next() {
		src, err := scanSource(rows)
		if err != nil {
			return nil, err
		}
		sources = append(sources, *src)
	}
	return sources, rows.Err()
}

func (s *Store) UpdateSource(ctx context.Context, src model.CalendarSource) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE calendar_sources SET label = ?, url = ?, owner_email = ?, member_id = ?, position = ?, updated_at = ?
		 WHERE id = ?`,
		src.Label, src.URL, src.OwnerEmail, src.MemberID, src.Position, nowText(), src.ID,
	)
	return err
}

func (s *Store) DeleteSource(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM calendar_sources WHERE id = ?`, id)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSource(row rowScanner) (*model.CalendarSource, error) {
	var src model.CalendarSource
	var memberID sql.NullInt64
	if err := row.Scan(&src.ID, &src.Label, &src.URL, &src.OwnerEmail, &memberID, &src.Position); err != nil {
		return nil, err
	}
	if memberID.Valid {
		src.MemberID = &memberID.Int64
	}
	return &src, nil
}
