// Package postgres is the shared-database storage adapter, backed by a
// pgx connection pool. Reservation atomicity uses serializable
// transactions; a serialization failure maps to store.ErrConflict.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"slotbook/internal/model"
	"slotbook/internal/store"
)

// Store implements store.Store over PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

var _ store.Store = (*Store)(nil)

// Open connects to databaseURL and runs migrations.
func Open(ctx context.Context, databaseURL string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	cfg.MaxConnLifetime = 5 * time.Minute
	cfg.MaxConnIdleTime = 1 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}

	s := &Store{pool: pool}
	if err := s.migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate(ctx context.Context) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS services (
			id BIGSERIAL PRIMARY KEY,
			name TEXT NOT NULL,
			duration_minutes INT NOT NULL,
			active BOOLEAN NOT NULL DEFAULT TRUE,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS availability_rules (
			id BIGSERIAL PRIMARY KEY,
			service_id BIGINT NOT NULL REFERENCES services(id),
			weekday INT NOT NULL,
			start_time TEXT NOT NULL,
			end_time TEXT NOT NULL,
			timezone TEXT NOT NULL,
			capacity INT NOT NULL DEFAULT 1,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS holidays (
			id BIGSERIAL PRIMARY KEY,
			service_id BIGINT NOT NULL REFERENCES services(id),
			holiday_date TEXT NOT NULL,
			note TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL,
			UNIQUE (service_id, holiday_date)
		)`,
		`CREATE TABLE IF NOT EXISTS bookings (
			id BIGSERIAL PRIMARY KEY,
			public_id TEXT NOT NULL UNIQUE,
			service_id BIGINT NOT NULL REFERENCES services(id),
			customer_name TEXT NOT NULL,
			customer_email TEXT NOT NULL,
			start_time TIMESTAMPTZ NOT NULL,
			end_time TIMESTAMPTZ NOT NULL,
			status TEXT NOT NULL DEFAULT 'pending',
			notes TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS audit_log (
			id BIGSERIAL PRIMARY KEY,
			booking_id BIGINT NOT NULL,
			service_id BIGINT NOT NULL,
			from_status TEXT NOT NULL DEFAULT '',
			to_status TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_bookings_service_start ON bookings(service_id, start_time)`,
		`CREATE INDEX IF NOT EXISTS idx_bookings_status ON bookings(status)`,
		`CREATE INDEX IF NOT EXISTS idx_rules_service_weekday ON availability_rules(service_id, weekday)`,
	}
	for _, q := range queries {
		if _, err := s.pool.Exec(ctx, q); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	return s.pool.Ping(ctx)
}

// Close releases the pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// isSerializationFailure reports SQLSTATE 40001, i.e. this transaction
// lost a race against a concurrently committing one.
func isSerializationFailure(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "40001"
}

// --- services ---

func (s *Store) CreateService(ctx context.Context, svc *model.Service) error {
	now := time.Now().UTC()
	err := s.pool.QueryRow(ctx, `
		INSERT INTO services (name, duration_minutes, active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $4) RETURNING id`,
		svc.Name, svc.DurationMinutes, svc.Active, now,
	).Scan(&svc.ID)
	if err != nil {
		return err
	}
	svc.CreatedAt = now
	svc.UpdatedAt = now
	return nil
}

func (s *Store) GetService(ctx context.Context, id int64) (*model.Service, error) {
	var svc model.Service
	err := s.pool.QueryRow(ctx, `
		SELECT id, name, duration_minutes, active, created_at, updated_at
		FROM services WHERE id = $1`, id,
	).Scan(&svc.ID, &svc.Name, &svc.DurationMinutes, &svc.Active, &svc.CreatedAt, &svc.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &svc, nil
}

func (s *Store) ListServices(ctx context.Context) ([]model.Service, error) {
	rows, err := s.pool.Query(ctx, `
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

func (s *Store) UpdateService(ctx context.Context, svc *model.Service) error {
	now := time.Now().UTC()
	tag, err := s.pool.Exec(ctx, `
		UPDATE services SET name = $2, duration_minutes = $3, active = $4, updated_at = $5
		WHERE id = $1`,
		svc.ID, svc.Name, svc.DurationMinutes, svc.Active, now,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	svc.UpdatedAt = now
	return nil
}

func (s *Store) DeactivateService(ctx context.Context, id int64) error {
	tag, err := s.pool.Exec(ctx,
		"UPDATE services SET active = FALSE, updated_at = $2 WHERE id = $1",
		id, time.Now().UTC(),
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

// --- rules ---

func (s *Store) CreateRule(ctx context.Context, r *model.AvailabilityRule) error {
	now := time.Now().UTC()
	err := s.pool.QueryRow(ctx, `
		INSERT INTO availability_rules (service_id, weekday, start_time, end_time, timezone, capacity, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $7) RETURNING id`,
		r.ServiceID, r.Weekday, r.StartTime, r.EndTime, r.Timezone, r.Capacity, now,
	).Scan(&r.ID)
	if err != nil {
		return err
	}
	r.CreatedAt = now
	r.UpdatedAt = now
	return nil
}

func (s *Store) GetRule(ctx context.Context, id int64) (*model.AvailabilityRule, error) {
	var r model.AvailabilityRule
	err := s.pool.QueryRow(ctx, `
		SELECT id, service_id, weekday, start_time, end_time, timezone, capacity, created_at, updated_at
		FROM availability_rules WHERE id = $1`, id,
	).Scan(&r.ID, &r.ServiceID, &r.Weekday, &r.StartTime, &r.EndTime, &r.Timezone, &r.Capacity, &r.CreatedAt, &r.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func (s *Store) ListRules(ctx context.Context, serviceID int64) ([]model.AvailabilityRule, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, service_id, weekday, start_time, end_time, timezone, capacity, created_at, updated_at
		FROM availability_rules WHERE service_id = $1 ORDER BY weekday, start_time, id`, serviceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.AvailabilityRule
	for rows.Next() {
		var r model.AvailabilityRule
		if err := rows.Scan(&r.ID, &r.ServiceID, &r.Weekday, &r.StartTime, &r.EndTime, &r.Timezone, &r.Capacity, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Store) UpdateRule(ctx context.Context, r *model.AvailabilityRule) error {
	now := time.Now().UTC()
	tag, err := s.pool.Exec(ctx, `
		UPDATE availability_rules
		SET weekday = $2, start_time = $3, end_time = $4, timezone = $5, capacity = $6, updated_at = $7
		WHERE id = $1`,
		r.ID, r.Weekday, r.StartTime, r.EndTime, r.Timezone, r.Capacity, now,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	r.UpdatedAt = now
	return nil
}

func (s *Store) DeleteRule(ctx context.Context, id int64) error {
	tag, err := s.pool.Exec(ctx, "DELETE FROM availability_rules WHERE id = $1", id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

// --- holidays ---

func (s *Store) CreateHoliday(ctx context.Context, h *model.Holiday) error {
	now := time.Now().UTC()
	err := s.pool.QueryRow(ctx, `
		INSERT INTO holidays (service_id, holiday_date, note, created_at)
		VALUES ($1, $2, $3, $4) RETURNING id`,
		h.ServiceID, h.Date, h.Note, now,
	).Scan(&h.ID)
	if err != nil {
		return err
	}
	h.CreatedAt = now
	return nil
}

func (s *Store) GetHoliday(ctx context.Context, id int64) (*model.Holiday, error) {
	var h model.Holiday
	err := s.pool.QueryRow(ctx, `
		SELECT id, service_id, holiday_date, note, created_at
		FROM holidays WHERE id = $1`, id,
	).Scan(&h.ID, &h.ServiceID, &h.Date, &h.Note, &h.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &h, nil
}

func (s *Store) ListHolidays(ctx context.Context, serviceID int64) ([]model.Holiday, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, service_id, holiday_date, note, created_at
		FROM holidays WHERE service_id = $1 ORDER BY holiday_date`, serviceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Holiday
	for rows.Next() {
		var h model.Holiday
		if err := rows.Scan(&h.ID, &h.ServiceID, &h.Date, &h.Note, &h.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

func (s *Store) DeleteHoliday(ctx context.Context, id int64) error {
	tag, err := s.pool.Exec(ctx, "DELETE FROM holidays WHERE id = $1", id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}
