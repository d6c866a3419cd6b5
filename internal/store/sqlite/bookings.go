package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"slotbook/internal/model"
	"slotbook/internal/store"
)

const bookingColumns = "id, public_id, service_id, customer_name, customer_email, start_time, end_time, status, notes, created_at, updated_at"

func scanBooking(row interface{ Scan(...any) error }) (*model.Booking, error) {
	var b model.Booking
	var notes sql.NullString
	err := row.Scan(&b.ID, &b.PublicID, &b.ServiceID, &b.CustomerName, &b.CustomerEmail,
		&b.StartTime, &b.EndTime, &b.Status, &notes, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return nil, err
	}
	b.Notes = notes.String
	b.StartTime = b.StartTime.UTC()
	b.EndTime = b.EndTime.UTC()
	return &b, nil
}

// GetBooking returns a booking by internal id.
func (s *Store) GetBooking(ctx context.Context, id int64) (*model.Booking, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+bookingColumns+" FROM bookings WHERE id = ?", id)
	b, err := scanBooking(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return b, nil
}

// GetBookingByPublicID returns a booking by its uuid.
func (s *Store) GetBookingByPublicID(ctx context.Context, publicID string) (*model.Booking, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+bookingColumns+" FROM bookings WHERE public_id = ?", publicID)
	b, err := scanBooking(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return b, nil
}

// ListActiveBookings returns capacity-consuming bookings of the service
// overlapping [from, to), ordered by start time.
func (s *Store) ListActiveBookings(ctx context.Context, serviceID int64, from, to time.Time) ([]model.Booking, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+bookingColumns+` FROM bookings
		WHERE service_id = ?
		  AND status IN ('pending', 'confirmed')
		  AND start_time < ? AND end_time > ?
		ORDER BY start_time, id`,
		serviceID, to.UTC(), from.UTC(),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectBookings(rows)
}

// ListBookings returns bookings of every status starting in [from, to).
func (s *Store) ListBookings(ctx context.Context, from, to time.Time) ([]model.Booking, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+bookingColumns+` FROM bookings
		WHERE start_time >= ? AND start_time < ?
		ORDER BY start_time, id`,
		from.UTC(), to.UTC(),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectBookings(rows)
}

func collectBookings(rows *sql.Rows) ([]model.Booking, error) {
	var out []model.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *b)
	}
	return out, rows.Err()
}

// CountOverlapping counts active bookings overlapping [start, end).
func (s *Store) CountOverlapping(ctx context.Context, serviceID int64, start, end time.Time) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM bookings
		WHERE service_id = ?
		  AND status IN ('pending', 'confirmed')
		  AND start_time < ? AND end_time > ?`,
		serviceID, end.UTC(), start.UTC(),
	).Scan(&n)
	return n, err
}

// ReserveBooking runs the capacity check and the insert in one immediate
// transaction. SQLite serializes writers, so once the transaction holds
// the write lock the count cannot be invalidated by a concurrent insert.
// A writer that cannot get the lock within the busy timeout surfaces as
// ErrConflict.
func (s *Store) ReserveBooking(ctx context.Context, b *model.Booking, capacity int) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		if isBusy(err) {
			return store.ErrConflict
		}
		return fmt.Errorf("begin reserve tx: %w", err)
	}
	defer tx.Rollback()

	var booked int
	err = tx.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM bookings
		WHERE service_id = ?
		  AND status IN ('pending', 'confirmed')
		  AND start_time < ? AND end_time > ?`,
		b.ServiceID, b.EndTime.UTC(), b.StartTime.UTC(),
	).Scan(&booked)
	if err != nil {
		if isBusy(err) {
			return store.ErrConflict
		}
		return fmt.Errorf("count overlapping: %w", err)
	}

	if booked >= capacity {
		return store.ErrCapacityExceeded
	}

	now := time.Now().UTC()
	res, err := tx.ExecContext(ctx, `
		INSERT INTO bookings (public_id, service_id, customer_name, customer_email, start_time, end_time, status, notes, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		b.PublicID, b.ServiceID, b.CustomerName, b.CustomerEmail,
		b.StartTime.UTC(), b.EndTime.UTC(), b.Status, b.Notes, now, now,
	)
	if err != nil {
		if isBusy(err) {
			return store.ErrConflict
		}
		return fmt.Errorf("insert booking: %w", err)
	}

	if err := tx.Commit(); err != nil {
		if isBusy(err) {
			return store.ErrConflict
		}
		return fmt.Errorf("commit reserve tx: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	b.ID = id
	b.CreatedAt = now
	b.UpdatedAt = now
	return nil
}

// TransitionBooking conditionally updates the status. Returns rows changed.
func (s *Store) TransitionBooking(ctx context.Context, id int64, allowedFrom []string, to string) (int64, error) {
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(allowedFrom)), ",")
	args := make([]any, 0, len(allowedFrom)+3)
	args = append(args, to, time.Now().UTC(), id)
	for _, st := range allowedFrom {
		args = append(args, st)
	}

	res, err := s.db.ExecContext(ctx,
		"UPDATE bookings SET status = ?, updated_at = ? WHERE id = ? AND status IN ("+placeholders+")",
		args...,
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
