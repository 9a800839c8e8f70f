package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"daybrief/internal/model"
)

// WriteAndActivateSnapshot persists a new snapshot and makes it the single
// active one in one transaction: every previously active snapshot is
// deactivated and kept for history. Multiple historical snapshots may
// share a date; only one is ever active.
func (s *Store) WriteAndActivateSnapshot(ctx context.Context, snap model.Snapshot) (*model.Snapshot, error) {
	payload, err := json.Marshal(snap.Payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	var narrative any
	if snap.Narrative != nil {
		data, err := json.Marshal(snap.Narrative)
		if err != nil {
			return nil, fmt.Errorf("marshal narrative: %w", err)
		}
		narrative = string(data)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `UPDATE snapshots SET active = 0 WHERE active = 1`); err != nil {
		return nil, fmt.Errorf("deactivate previous: %w", err)
	}

	generatedAt := snap.GeneratedAt
	if generatedAt.IsZero() {
		generatedAt = time.Now().UTC()
	}

	res, err := tx.ExecContext(ctx,
		`INSERT INTO snapshots (date, generated_at, payload, narrative, active) VALUES (?, ?, ?, ?, 1)`,
		snap.Date.String(), generatedAt.UTC().Format(time.RFC3339), string(payload), narrative,
	)
	if err != nil {
		return nil, fmt.Errorf("insert snapshot: %w", err)
	}
	id, _ := res.LastInsertId()

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	return s.GetSnapshot(ctx, id)
}

// ActiveSnapshot returns the single active snapshot, or nil when none has
// been generated yet.
func (s *Store) ActiveSnapshot(ctx context.Context) (*model.Snapshot, error) {
	row := s.db.QueryRowContext(ctx,
		snapshotSelect+` WHERE active = 1 ORDER BY generated_at DESC LIMIT 1`)
	snap, err := scanSnapshot(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("active snapshot: %w", err)
	}
	return snap, nil
}

func (s *Store) GetSnapshot(ctx context.Context, id int64) (*model.Snapshot, error) {
	row := s.db.QueryRowContext(ctx, snapshotSelect+` WHERE id = ?`, id)
	snap, err := scanSnapshot(row)
	if err != nil {
		return nil, fmt.Errorf("get snapshot %d: %w", id, err)
	}
	return snap, nil
}

// ListSnapshots returns history, newest first.
func (s *Store) ListSnapshots(ctx context.Context, limit int) ([]model.Snapshot, error) {
	if limit <= 0 {
		limit = 30
	}
	rows, err := s.db.QueryContext(ctx,
		snapshotSelect+` ORDER BY generated_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	defer rows.Close()

	var snaps []model.Snapshot
	for rows.Next() {
		snap, err := scanSnapshot(rows)
		if err != nil {
			return nil, err
		}
		snaps = append(snaps, *snap)
	}
	return snaps, rows.Err()
}

const snapshotSelect = `SELECT id, date, generated_at, payload, narrative, active FROM snapshots`

func scanSnapshot(row rowScanner) (*model.Snapshot, error) {
	var snap model.Snapshot
	var dateStr, generatedAt, payload string
	var narrative sql.NullString
	var active int

	if err := row.Scan(&snap.ID, &dateStr, &generatedAt, &payload, &narrative, &active); err != nil {
		return nil, err
	}

	d, err := model.ParseDate(dateStr)
	if err != nil {
		return nil, fmt.Errorf("snapshot %d: bad date: %w", snap.ID, err)
	}
	snap.Date = d
	snap.GeneratedAt, _ = time.Parse(time.RFC3339, generatedAt)
	snap.Active = active == 1

	if err := json.Unmarshal([]byte(payload), &snap.Payload); err != nil {
		return nil, fmt.Errorf("snapshot %d: bad payload: %w", snap.ID, err)
	}
	if narrative.Valid && narrative.String != "" {
		var n model.Narrative
		if err := json.Unmarshal([]byte(narrative.String), &n); err != nil {
			return nil, fmt.Errorf("snapshot %d: bad narrative: %w", snap.ID, err)
		}
		snap.Narrative = &n
	}
	return &snap, nil
}
