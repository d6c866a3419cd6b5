package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"slotbook/internal/model"
	"slotbook/internal/store"
)

const ruleColumns = "id, service_id, weekday, start_time, end_time, timezone, capacity, created_at, updated_at"

func scanRule(row interface{ Scan(...any) error }) (*model.AvailabilityRule, error) {
	var r model.AvailabilityRule
	err := row.Scan(&r.ID, &r.ServiceID, &r.Weekday, &r.StartTime, &r.EndTime,
		&r.Timezone, &r.Capacity, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// CreateRule inserts a weekly availability rule.
func (s *Store) CreateRule(ctx context.Context, r *model.AvailabilityRule) error {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO availability_rules (service_id, weekday, start_time, end_time, timezone, capacity, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ServiceID, r.Weekday, r.StartTime, r.EndTime, r.Timezone, r.Capacity, now, now,
	)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	r.ID = id
	r.CreatedAt = now
	r.UpdatedAt = now
	return nil
}

// GetRule returns a rule by id.
func (s *Store) GetRule(ctx context.Context, id int64) (*model.AvailabilityRule, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+ruleColumns+" FROM availability_rules WHERE id = ?", id)
	r, err := scanRule(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return r, nil
}

// ListRules returns all rules of a service ordered by weekday and start time.
func (s *Store) ListRules(ctx context.Context, serviceID int64) ([]model.AvailabilityRule, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+ruleColumns+" FROM availability_rules WHERE service_id = ? ORDER BY weekday, start_time, id",
		serviceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.AvailabilityRule
	for rows.Next() {
		r, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

// UpdateRule rewrites all mutable fields of a rule.
func (s *Store) UpdateRule(ctx context.Context, r *model.AvailabilityRule) error {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		UPDATE availability_rules
		SET weekday = ?, start_time = ?, end_time = ?, timezone = ?, capacity = ?, updated_at = ?
		WHERE id = ?`,
		r.Weekday, r.StartTime, r.EndTime, r.Timezone, r.Capacity, now, r.ID,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrNotFound
	}
	r.UpdatedAt = now
	return nil
}

// DeleteRule removes a rule. Confirmed bookings made under it are kept.
func (s *Store) DeleteRule(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM availability_rules WHERE id = ?", id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}
