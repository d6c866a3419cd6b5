package model

import (
	"fmt"
	"time"
)

// Booking statuses. Only pending and confirmed consume capacity;
// canceled is terminal and never counts again.
const (
	StatusPending   = "pending"
	StatusConfirmed = "confirmed"
	StatusCanceled  = "canceled"
)

// ActiveStatuses are the statuses that consume slot capacity.
var ActiveStatuses = []string{StatusPending, StatusConfirmed}

// Booking is a durable reservation of a time interval for a service.
// StartTime/EndTime are always absolute UTC instants.
type Booking struct {
	ID            int64     `json:"id"`
	PublicID      string    `json:"public_id"` // uuid exposed to clients
	ServiceID     int64     `json:"service_id"`
	CustomerName  string    `json:"customer_name"`
	CustomerEmail string    `json:"customer_email"`
	StartTime     time.Time `json:"start_time"`
	EndTime       time.Time `json:"end_time"`
	Status        string    `json:"status"`
	Notes         string    `json:"notes,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// IsActive reports whether the booking consumes capacity.
func (b *Booking) IsActive() bool {
	return b.Status == StatusPending || b.Status == StatusConfirmed
}

// Overlaps checks the booking against a half-open interval [start, end).
func (b *Booking) Overlaps(start, end time.Time) bool {
	return b.StartTime.Before(end) && b.EndTime.After(start)
}

// transitions maps a status to the statuses reachable from it.
// Canceled is terminal.
var transitions = map[string][]string{
	StatusPending:   {StatusConfirmed, StatusCanceled},
	StatusConfirmed: {StatusCanceled},
	StatusCanceled:  {},
}

// ValidStatus reports whether s is a known booking status.
func ValidStatus(s string) bool {
	_, ok := transitions[s]
	return ok
}

// CanTransition reports whether a status change is allowed.
func CanTransition(from, to string) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Validate checks booking fields before persisting.
func (b *Booking) Validate() error {
	if b.ServiceID <= 0 {
		return fmt.Errorf("service_id is required")
	}
	if b.CustomerName == "" {
		return fmt.Errorf("customer_name is required")
	}
	if b.CustomerEmail == "" {
		return fmt.Errorf("customer_email is required")
	}
	if !b.StartTime.Before(b.EndTime) {
		return fmt.Errorf("start_time must be before end_time")
	}
	if !ValidStatus(b.Status) {
		return fmt.Errorf("unknown status %q", b.Status)
	}
	return nil
}
