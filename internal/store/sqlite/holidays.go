package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"slotbook/internal/model"
	"slotbook/internal/store"
)

// CreateHoliday inserts a date exception. The (service_id, holiday_date)
// pair is unique; re-adding the same date is an error surfaced to the admin.
func (s *Store) CreateHoliday(ctx context.Context, h *model.Holiday) error {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO holidays (service_id, holiday_date, note, created_at)
		VALUES (?, ?, ?, ?)`,
		h.ServiceID, h.Date, h.Note, now,
	)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	h.ID = id
	h.CreatedAt = now
	return nil
}

// GetHoliday returns a holiday by id.
func (s *Store) GetHoliday(ctx context.Context, id int64) (*model.Holiday, error) {
	var h model.Holiday
	var note sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT id, service_id, holiday_date, note, created_at
		FROM holidays WHERE id = ?`, id,
	).Scan(&h.ID, &h.ServiceID, &h.Date, &note, &h.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	h.Note = note.String
	return &h, nil
}

// ListHolidays returns all holidays of a service ordered by date.
func (s *Store) ListHolidays(ctx context.Context, serviceID int64) ([]model.Holiday, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, service_id, holiday_date, note, created_at
		FROM holidays WHERE service_id = ? ORDER BY holiday_date`, serviceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Holiday
	for rows.Next() {
		var h model.Holiday
		var note sql.NullString
		if err := rows.Scan(&h.ID, &h.ServiceID, &h.Date, &note, &h.CreatedAt); err != nil {
			return nil, err
		}
		h.Note = note.String
		out = append(out, h)
	}
	return out, rows.Err()
}

// DeleteHoliday removes a date exception.
func (s *Store) DeleteHoliday(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM holidays WHERE id = ?", id)
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
