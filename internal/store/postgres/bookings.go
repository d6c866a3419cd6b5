package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"slotbook/internal/model"
	"slotbook/internal/store"
)

const bookingColumns = "id, public_id, service_id, customer_name, customer_email, start_time, end_time, status, notes, created_at, updated_at"

func scanBooking(row pgx.Row) (*model.Booking, error) {
	var b model.Booking
	err := row.Scan(&b.ID, &b.PublicID, &b.ServiceID, &b.CustomerName, &b.CustomerEmail,
		&b.StartTime, &b.EndTime, &b.Status, &b.Notes, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return nil, err
	}
	b.StartTime = b.StartTime.UTC()
	b.EndTime = b.EndTime.UTC()
	return &b, nil
}

func (s *Store) GetBooking(ctx context.Context, id int64) (*model.Booking, error) {
	b, err := scanBooking(s.pool.QueryRow(ctx,
		"SELECT "+bookingColumns+" FROM bookings WHERE id = $1", id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	return b, err
}

func (s *Store) GetBookingByPublicID(ctx context.Context, publicID string) (*model.Booking, error) {
	b, err := scanBooking(s.pool.QueryRow(ctx,
		"SELECT "+bookingColumns+" FROM bookings WHERE public_id = $1", publicID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	return b, err
}

func (s *Store) ListActiveBookings(ctx context.Context, serviceID int64, from, to time.Time) ([]model.Booking, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+bookingColumns+` FROM bookings
		WHERE service_id = $1
		  AND status IN ('pending', 'confirmed')
		  AND start_time < $2 AND end_time > $3
		ORDER BY start_time, id`,
		serviceID, to.UTC(), from.UTC(),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectBookings(rows)
}

func (s *Store) ListBookings(ctx context.Context, from, to time.Time) ([]model.Booking, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+bookingColumns+` FROM bookings
		WHERE start_time >= $1 AND start_time < $2
		ORDER BY start_time, id`,
		from.UTC(), to.UTC(),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectBookings(rows)
}

func collectBookings(rows pgx.Rows) ([]model.Booking, error) {
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

func (s *Store) CountOverlapping(ctx context.Context, serviceID int64, start, end time.Time) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM bookings
		WHERE service_id = $1
		  AND status IN ('pending', 'confirmed')
		  AND start_time < $2 AND end_time > $3`,
		serviceID, end.UTC(), start.UTC(),
	).Scan(&n)
	return n, err
}

// ReserveBooking runs the capacity check and the insert in one
// serializable transaction. Two concurrent reservations for the same
// capacity unit cannot both commit: the loser fails with SQLSTATE 40001
// and is surfaced as store.ErrConflict without retrying, so the caller
// re-queries availability first.
func (s *Store) ReserveBooking(ctx context.Context, b *model.Booking, capacity int) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return fmt.Errorf("begin reserve tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var booked int
	err = tx.QueryRow(ctx, `
		SELECT COUNT(*) FROM bookings
		WHERE service_id = $1
		  AND status IN ('pending', 'confirmed')
		  AND start_time < $2 AND end_time > $3`,
		b.ServiceID, b.EndTime.UTC(), b.StartTime.UTC(),
	).Scan(&booked)
	if err != nil {
		if isSerializationFailure(err) {
			return store.ErrConflict
		}
		return fmt.Errorf("count overlapping: %w", err)
	}

	if booked >= capacity {
		return store.ErrCapacityExceeded
	}

	now := time.Now().UTC()
	err = tx.QueryRow(ctx, `
		INSERT INTO bookings (public_id, service_id, customer_name, customer_email, start_time, end_time, status, notes, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9) RETURNING id`,
		b.PublicID, b.ServiceID, b.CustomerName, b.CustomerEmail,
		b.StartTime.UTC(), b.EndTime.UTC(), b.Status, b.Notes, now,
	).Scan(&b.ID)
	if err != nil {
		if isSerializationFailure(err) {
			return store.ErrConflict
		}
		return fmt.Errorf("insert booking: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		if isSerializationFailure(err) {
			return store.ErrConflict
		}
		return fmt.Errorf("commit reserve tx: %w", err)
	}

	b.CreatedAt = now
	b.UpdatedAt = now
	return nil
}

func (s *Store) TransitionBooking(ctx context.Context, id int64, allowedFrom []string, to string) (int64, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE bookings SET status = $2, updated_at = $3
		WHERE id = $1 AND status = ANY($4)`,
		id, to, time.Now().UTC(), allowedFrom,
	)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// --- audit ---

func (s *Store) AppendAudit(ctx context.Context, e *store.AuditEntry) error {
	now := time.Now().UTC()
	err := s.pool.QueryRow(ctx, `
		INSERT INTO audit_log (booking_id, service_id, from_status, to_status, created_at)
		VALUES ($1, $2, $3, $4, $5) RETURNING id`,
		e.BookingID, e.ServiceID, e.FromStatus, e.ToStatus, now,
	).Scan(&e.ID)
	if err != nil {
		return err
	}
	e.CreatedAt = now
	return nil
}

func (s *Store) ListAudit(ctx context.Context, from, to time.Time) ([]store.AuditEntry, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, booking_id, service_id, from_status, to_status, created_at
		FROM audit_log
		WHERE created_at >= $1 AND created_at < $2
		ORDER BY created_at, id`,
		from.UTC(), to.UTC(),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []store.AuditEntry
	for rows.Next() {
		var e store.AuditEntry
		if err := rows.Scan(&e.ID, &e.BookingID, &e.ServiceID, &e.FromStatus, &e.ToStatus, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
