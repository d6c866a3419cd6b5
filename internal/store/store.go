// Package store defines the storage port consumed by the slot calculator,
// the reservation coordinator and the HTTP layer. Two adapters implement
// it: sqlite (embedded) and postgres (pgx pool). Business code never
// touches a concrete driver.
package store

import (
	"context"
	"errors"
	"time"

	"slotbook/internal/model"
)

// Sentinel errors shared by all adapters. Adapters translate driver
// failures into these; everything else is treated as a transient
// storage fault by the coordinator's retry loop.
var (
	// ErrNotFound is returned for unknown services, rules, holidays or bookings.
	ErrNotFound = errors.New("not found")

	// ErrCapacityExceeded is returned by ReserveBooking when the interval is
	// already at capacity at the time of the transactional check.
	ErrCapacityExceeded = errors.New("slot capacity exceeded")

	// ErrConflict is returned when a reservation loses a race against a
	// concurrently committing transaction. Callers re-query availability
	// before retrying; adapters never retry on their own.
	ErrConflict = errors.New("reservation conflict")
)

// AuditEntry records a booking lifecycle change.
type AuditEntry struct {
	ID         int64     `json:"id"`
	BookingID  int64     `json:"booking_id"`
	ServiceID  int64     `json:"service_id"`
	FromStatus string    `json:"from_status"` // empty for creation
	ToStatus   string    `json:"to_status"`
	CreatedAt  time.Time `json:"created_at"`
}

// Store is the full storage port.
type Store interface {
	ServiceStore
	RuleStore
	HolidayStore
	BookingStore
	AuditStore

	Ping(ctx context.Context) error
	Close() error
}

// ServiceStore owns model.Service.
type ServiceStore interface {
	CreateService(ctx context.Context, s *model.Service) error
	GetService(ctx context.Context, id int64) (*model.Service, error)
	ListServices(ctx context.Context) ([]model.Service, error)
	UpdateService(ctx context.Context, s *model.Service) error
	// DeactivateService stops new bookings without deleting history.
	DeactivateService(ctx context.Context, id int64) error
}

// RuleStore owns model.AvailabilityRule, keyed by service.
type RuleStore interface {
	CreateRule(ctx context.Context, r *model.AvailabilityRule) error
	GetRule(ctx context.Context, id int64) (*model.AvailabilityRule, error)
	ListRules(ctx context.Context, serviceID int64) ([]model.AvailabilityRule, error)
	UpdateRule(ctx context.Context, r *model.AvailabilityRule) error
	DeleteRule(ctx context.Context, id int64) error
}

// HolidayStore owns model.Holiday, keyed by service.
type HolidayStore interface {
	CreateHoliday(ctx context.Context, h *model.Holiday) error
	GetHoliday(ctx context.Context, id int64) (*model.Holiday, error)
	ListHolidays(ctx context.Context, serviceID int64) ([]model.Holiday, error)
	DeleteHoliday(ctx context.Context, id int64) error
}

// BookingStore owns model.Booking. ReserveBooking is the single atomic
// admission-control primitive; everything else is a plain read or a
// conditional status update.
type BookingStore interface {
	GetBooking(ctx context.Context, id int64) (*model.Booking, error)
	GetBookingByPublicID(ctx context.Context, publicID string) (*model.Booking, error)

	// ListActiveBookings returns pending/confirmed bookings of the service
	// overlapping [from, to), ordered by start time.
	ListActiveBookings(ctx context.Context, serviceID int64, from, to time.Time) ([]model.Booking, error)

	// ListBookings returns bookings of every status starting in [from, to),
	// across all services, ordered by start time. Used for exports.
	ListBookings(ctx context.Context, from, to time.Time) ([]model.Booking, error)

	// CountOverlapping counts active bookings of the service overlapping
	// [start, end) outside of any transaction. Advisory only; the
	// authoritative count happens inside ReserveBooking.
	CountOverlapping(ctx context.Context, serviceID int64, start, end time.Time) (int, error)

	// ReserveBooking atomically counts active bookings overlapping
	// [b.StartTime, b.EndTime) for b.ServiceID and inserts b iff the count
	// is below capacity. On success b.ID and timestamps are populated.
	// Returns ErrCapacityExceeded when full, ErrConflict on a lost race.
	ReserveBooking(ctx context.Context, b *model.Booking, capacity int) error

	// TransitionBooking updates the booking status iff the current status is
	// one of allowedFrom. Returns the number of rows changed (0 or 1) so
	// callers can implement idempotent cancel. Unknown id returns (0, nil);
	// existence checks belong to the caller.
	TransitionBooking(ctx context.Context, id int64, allowedFrom []string, to string) (int64, error)
}

// AuditStore records booking lifecycle changes.
type AuditStore interface {
	AppendAudit(ctx context.Context, e *AuditEntry) error
	ListAudit(ctx context.Context, from, to time.Time) ([]AuditEntry, error)
}
