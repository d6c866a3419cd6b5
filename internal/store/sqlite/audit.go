package sqlite

import (
	"context"
	"time"

	"slotbook/internal/store"
)

// AppendAudit records a booking lifecycle change.
func (s *Store) AppendAudit(ctx context.Context, e *store.AuditEntry) error {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_log (booking_id, service_id, from_status, to_status, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		e.BookingID, e.ServiceID, e.FromStatus, e.ToStatus, now,
	)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	e.ID = id
	e.CreatedAt = now
	return nil
}

// ListAudit returns audit entries created in [from, to).
func (s *Store) ListAudit(ctx context.Context, from, to time.Time) ([]store.AuditEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, booking_id, service_id, from_status, to_status, created_at
		FROM audit_log
		WHERE created_at >= ? AND created_at < ?
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
