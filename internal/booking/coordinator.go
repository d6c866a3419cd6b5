// Package booking implements the reservation coordinator, the only
// component that creates or cancels bookings. It re-validates the
// requested interval against rules and holidays exactly the way the
// slot calculator derives them, then delegates the capacity check and
// the insert to the store's single atomic reserve primitive.
package booking

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"slotbook/internal/events"
	"slotbook/internal/metrics"
	"slotbook/internal/model"
	"slotbook/internal/slots"
	"slotbook/internal/store"
)

const (
	retryAttempts = 3
	retryBaseWait = 50 * time.Millisecond
)

// Store is the storage view the coordinator needs.
type Store interface {
	GetService(ctx context.Context, id int64) (*model.Service, error)
	ListRules(ctx context.Context, serviceID int64) ([]model.AvailabilityRule, error)
	ListHolidays(ctx context.Context, serviceID int64) ([]model.Holiday, error)
	GetBooking(ctx context.Context, id int64) (*model.Booking, error)
	ReserveBooking(ctx context.Context, b *model.Booking, capacity int) error
	TransitionBooking(ctx context.Context, id int64, allowedFrom []string, to string) (int64, error)
	AppendAudit(ctx context.Context, e *store.AuditEntry) error
}

// Publisher emits domain events after committed writes.
type Publisher interface {
	Publish(event events.Event)
}

// Policy holds deployment configuration consumed by the coordinator.
type Policy struct {
	// AutoConfirm creates bookings as confirmed instead of pending, for
	// deployments without an approval workflow.
	AutoConfirm bool
	// MinAdvance rejects starts closer to now than this. Zero disables.
	MinAdvance time.Duration
	// MaxAdvance rejects starts further from now than this. Zero disables.
	MaxAdvance time.Duration
	// OpTimeout bounds each reserve/cancel/confirm call. Zero disables.
	OpTimeout time.Duration
}

// Coordinator is the sole writer of bookings.
type Coordinator struct {
	store  Store
	bus    Publisher
	policy Policy
	logger *zerolog.Logger
	now    func() time.Time
}

// New creates a coordinator. bus may be nil when nobody listens.
func New(st Store, bus Publisher, policy Policy, logger *zerolog.Logger) *Coordinator {
	return &Coordinator{
		store:  st,
		bus:    bus,
		policy: policy,
		logger: logger,
		now:    time.Now,
	}
}

// ReserveRequest is a client's chosen slot.
type ReserveRequest struct {
	ServiceID     int64
	Start         time.Time
	End           time.Time
	CustomerName  string
	CustomerEmail string
	Notes         string
}

func (r *ReserveRequest) validate() error {
	if r.ServiceID <= 0 {
		return fmt.Errorf("%w: service_id is required", ErrValidation)
	}
	if strings.TrimSpace(r.CustomerName) == "" {
		return fmt.Errorf("%w: customer_name is required", ErrValidation)
	}
	if strings.TrimSpace(r.CustomerEmail) == "" || !strings.Contains(r.CustomerEmail, "@") {
		return fmt.Errorf("%w: customer_email is required", ErrValidation)
	}
	if r.Start.IsZero() || r.End.IsZero() || !r.Start.Before(r.End) {
		return fmt.Errorf("%w: start_time must be before end_time", ErrValidation)
	}
	return nil
}

// Reserve converts a chosen slot into a durable booking. The interval
// must be fully contained in a rule window on a non-holiday date; the
// capacity check and the insert run atomically in the store, so two
// concurrent calls for the last capacity unit cannot both succeed.
func (c *Coordinator) Reserve(ctx context.Context, req ReserveRequest) (*model.Booking, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	if err := req.validate(); err != nil {
		metrics.IncReserveRejected("validation")
		return nil, err
	}

	if c.policy.MinAdvance > 0 && req.Start.Before(c.now().Add(c.policy.MinAdvance)) {
		metrics.IncReserveRejected("too_soon")
		return nil, fmt.Errorf("%w: start is less than %s from now", ErrSlotNotAvailable, c.policy.MinAdvance)
	}
	if c.policy.MaxAdvance > 0 && req.Start.After(c.now().Add(c.policy.MaxAdvance)) {
		metrics.IncReserveRejected("too_far")
		return nil, fmt.Errorf("%w: start is more than %s from now", ErrSlotNotAvailable, c.policy.MaxAdvance)
	}

	svc, err := c.store.GetService(ctx, req.ServiceID)
	if err != nil {
		return nil, err
	}
	if !svc.Active {
		metrics.IncReserveRejected("inactive_service")
		return nil, store.ErrNotFound
	}

	rules, err := c.store.ListRules(ctx, req.ServiceID)
	if err != nil {
		return nil, c.storageFault("list rules", err)
	}
	holidays, err := c.store.ListHolidays(ctx, req.ServiceID)
	if err != nil {
		return nil, c.storageFault("list holidays", err)
	}

	start := req.Start.UTC()
	end := req.End.UTC()
	rule, err := slots.MatchRule(rules, holidays, start, end)
	if err != nil {
		return nil, fmt.Errorf("match rule: %w", err)
	}
	if rule == nil {
		metrics.IncReserveRejected("outside_window")
		return nil, ErrSlotNotAvailable
	}

	status := model.StatusPending
	if c.policy.AutoConfirm {
		status = model.StatusConfirmed
	}
	b := &model.Booking{
		PublicID:      uuid.NewString(),
		ServiceID:     req.ServiceID,
		CustomerName:  strings.TrimSpace(req.CustomerName),
		CustomerEmail: strings.TrimSpace(req.CustomerEmail),
		StartTime:     start,
		EndTime:       end,
		Status:        status,
		Notes:         req.Notes,
	}

	err = c.withRetry(ctx, func() error {
		return c.store.ReserveBooking(ctx, b, rule.Capacity)
	})
	switch {
	case errors.Is(err, store.ErrCapacityExceeded):
		metrics.IncReserveRejected("capacity")
		return nil, err
	case errors.Is(err, store.ErrConflict):
		metrics.IncReserveRejected("conflict")
		return nil, err
	case err != nil:
		return nil, err
	}

	metrics.IncBookingCreated(status)
	c.audit(ctx, b, "", status)
	c.publish(events.Event{Type: events.BookingCreated, ServiceID: b.ServiceID, BookingID: b.ID})

	c.logger.Info().
		Int64("booking_id", b.ID).
		Int64("service_id", b.ServiceID).
		Time("start", b.StartTime).
		Str("status", status).
		Msg("booking reserved")
	return b, nil
}

// Cancel transitions a booking to canceled and frees its capacity.
// Canceling an already-canceled or nonexistent booking is a no-op
// success so that client retries stay simple; nonexistent ids return
// (nil, nil).
func (c *Coordinator) Cancel(ctx context.Context, id int64) (*model.Booking, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	b, err := c.store.GetBooking(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, c.storageFault("get booking", err)
	}
	if b.Status == model.StatusCanceled {
		return b, nil
	}

	var changed int64
	err = c.withRetry(ctx, func() error {
		var txErr error
		changed, txErr = c.store.TransitionBooking(ctx, id, model.ActiveStatuses, model.StatusCanceled)
		return txErr
	})
	if err != nil {
		return nil, err
	}
	// changed == 0 means someone else canceled concurrently; the outcome
	// is the same either way.
	if changed > 0 {
		metrics.IncBookingCanceled()
		c.audit(ctx, b, b.Status, model.StatusCanceled)
		c.publish(events.Event{Type: events.BookingCanceled, ServiceID: b.ServiceID, BookingID: b.ID})
		c.logger.Info().Int64("booking_id", id).Msg("booking canceled")
	}

	b.Status = model.StatusCanceled
	return b, nil
}

// Confirm transitions a pending booking to confirmed. Confirming an
// already-confirmed booking is accepted; a canceled one is not.
func (c *Coordinator) Confirm(ctx context.Context, id int64) (*model.Booking, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	b, err := c.store.GetBooking(ctx, id)
	if err != nil {
		return nil, err
	}
	switch b.Status {
	case model.StatusConfirmed:
		return b, nil
	case model.StatusCanceled:
		return nil, fmt.Errorf("%w: booking %d is canceled", ErrInvalidTransition, id)
	}

	var changed int64
	err = c.withRetry(ctx, func() error {
		var txErr error
		changed, txErr = c.store.TransitionBooking(ctx, id, []string{model.StatusPending}, model.StatusConfirmed)
		return txErr
	})
	if err != nil {
		return nil, err
	}
	if changed == 0 {
		// Lost a race; re-read to report what actually happened.
		b, err = c.store.GetBooking(ctx, id)
		if err != nil {
			return nil, err
		}
		if b.Status != model.StatusConfirmed {
			return nil, fmt.Errorf("%w: booking %d is %s", ErrInvalidTransition, id, b.Status)
		}
		return b, nil
	}

	b.Status = model.StatusConfirmed
	c.audit(ctx, b, model.StatusPending, model.StatusConfirmed)
	c.publish(events.Event{Type: events.BookingConfirmed, ServiceID: b.ServiceID, BookingID: b.ID})
	c.logger.Info().Int64("booking_id", id).Msg("booking confirmed")
	return b, nil
}

func (c *Coordinator) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.policy.OpTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, c.policy.OpTimeout)
}

// withRetry runs fn, retrying only transient storage faults with
// backoff. Business outcomes (capacity, conflict, not-found) surface
// immediately: retrying them against stale availability could reserve
// an unintended slot.
func (c *Coordinator) withRetry(ctx context.Context, fn func() error) error {
	var lastErr error
	for attempt := 0; attempt < retryAttempts; attempt++ {
		if attempt > 0 {
			wait := retryBaseWait << (attempt - 1)
			select {
			case <-time.After(wait):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		err := fn()
		if err == nil {
			return nil
		}
		if errors.Is(err, store.ErrCapacityExceeded) ||
			errors.Is(err, store.ErrConflict) ||
			errors.Is(err, store.ErrNotFound) ||
			errors.Is(err, context.Canceled) ||
			errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		lastErr = err
		c.logger.Warn().Err(err).Int("attempt", attempt+1).Msg("transient storage fault")
	}
	return fmt.Errorf("%w: %v", ErrUnavailable, lastErr)
}

func (c *Coordinator) storageFault(op string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("%s: %w", op, err)
}

// audit records the transition; failures are logged, never propagated,
// because the booking write has already committed.
func (c *Coordinator) audit(ctx context.Context, b *model.Booking, from, to string) {
	e := &store.AuditEntry{
		BookingID:  b.ID,
		ServiceID:  b.ServiceID,
		FromStatus: from,
		ToStatus:   to,
	}
	if err := c.store.AppendAudit(ctx, e); err != nil {
		c.logger.Warn().Err(err).Int64("booking_id", b.ID).Msg("audit append failed")
	}
}

func (c *Coordinator) publish(e events.Event) {
	if c.bus != nil {
		c.bus.Publish(e)
	}
}
