package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"slotbook/internal/model"
	"slotbook/internal/store"
)

// CreateService inserts a service and populates its ID and timestamps.
func (s *Store) CreateService(ctx context.Context, svc *model.Service) error {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO services (name, duration_minutes, active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)`,
		svc.Name, svc.DurationMinutes, svc.Active, now, now,
	)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	svc.ID = id
	svc.CreatedAt = now
	svc.UpdatedAt = now
	return nil
}

// GetService returns a service by id.
func (s *Store) GetService(ctx context.Context, id int64) (*model.Service, error) {
	var svc model.Service
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, duration_minutes, active, created_at, updated_at
		FROM services WHERE id = ?`, id,
	).Scan(&svc.ID, &svc.Name, &svc.DurationMinutes, &svc.Active, &svc.CreatedAt, &svc.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &svc, nil
}

// ListServices returns all services ordered by id.
func (s *Store) ListServices(ctx context.Context) ([]model.Service, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, duration_minutes, active, created_at, updated_at
		FROM services ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Service
	for rows.Next() {
		var svc model.Service
		if err := rows.Scan(&svc.ID, &svc.Name, &svc.DurationMinutes, &svc.Active, &svc.CreatedAt, &svc.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, svc)
	}
	return out, rows.Err()
}

// UpdateService updates name, duration and active flag.
func (s *Store) UpdateService(ctx context.Context, svc *model.Service) error {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		UPDATE services SET name = ?, duration_minutes = ?, active = ?, updated_at = ?
		WHERE id = ?`,
		svc.Name, svc.DurationMinutes, svc.Active, now, svc.ID,
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
	svc.UpdatedAt = now
	return nil
}

// DeactivateService flips the active flag; bookings remain untouched.
func (s *Store) DeactivateService(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE services SET active = 0, updated_at = ? WHERE id = ?",
		time.Now().UTC(), id,
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
	return nil
}
