// Package slots computes offerable time slots from weekly availability
// rules, holiday exceptions and existing bookings. The computation is a
// pure function of those three inputs at call time: it reads once,
// counts in memory and emits nothing but the result, so any number of
// callers may run it concurrently.
package slots

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"slotbook/internal/model"
	"slotbook/internal/store"
)

// ErrInvalidRange is returned for a query range whose end precedes its
// start.
var ErrInvalidRange = errors.New("invalid date range")

// Slot is one offerable interval. Start/End are UTC instants.
type Slot struct {
	Start             time.Time `json:"start"`
	End               time.Time `json:"end"`
	CapacityRemaining int       `json:"capacity_remaining"`
	RuleID            int64     `json:"-"`
}

// Reader is the read-only storage view the calculator needs.
type Reader interface {
	GetService(ctx context.Context, id int64) (*model.Service, error)
	ListRules(ctx context.Context, serviceID int64) ([]model.AvailabilityRule, error)
	ListHolidays(ctx context.Context, serviceID int64) ([]model.Holiday, error)
	ListActiveBookings(ctx context.Context, serviceID int64, from, to time.Time) ([]model.Booking, error)
}

// Calculator expands rules into concrete slots.
type Calculator struct {
	reader Reader
}

// New creates a calculator over the given storage view.
func New(reader Reader) *Calculator {
	return &Calculator{reader: reader}
}

// Compute returns all offerable slots for the service between the
// calendar dates from and to (inclusive), ordered by start time.
// slotLen <= 0 means the service's default duration. Unknown or
// inactive services return store.ErrNotFound. Overlapping rules for
// the same weekday stay independent: each produces its own slot set
// with its own capacity, they are never pooled.
func (c *Calculator) Compute(ctx context.Context, serviceID int64, from, to time.Time, slotLen time.Duration) ([]Slot, error) {
	svc, err := c.reader.GetService(ctx, serviceID)
	if err != nil {
		return nil, err
	}
	if !svc.Active {
		return nil, store.ErrNotFound
	}
	if slotLen <= 0 {
		slotLen = svc.SlotLength()
	}
	if to.Before(from) {
		return nil, fmt.Errorf("%w: %s after %s", ErrInvalidRange,
			from.Format(model.DateFormat), to.Format(model.DateFormat))
	}

	rules, err := c.reader.ListRules(ctx, serviceID)
	if err != nil {
		return nil, fmt.Errorf("list rules: %w", err)
	}
	if len(rules) == 0 {
		return nil, nil
	}

	holidays, err := c.reader.ListHolidays(ctx, serviceID)
	if err != nil {
		return nil, fmt.Errorf("list holidays: %w", err)
	}
	blocked := make(map[string]bool, len(holidays))
	for _, h := range holidays {
		blocked[h.Date] = true
	}

	// One bulk read covers every possible window: a local-time window on
	// date d lies within a day of d's UTC midnight for any timezone.
	rangeStart := time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, time.UTC).AddDate(0, 0, -1)
	rangeEnd := time.Date(to.Year(), to.Month(), to.Day(), 0, 0, 0, 0, time.UTC).AddDate(0, 0, 2)
	bookings, err := c.reader.ListActiveBookings(ctx, serviceID, rangeStart, rangeEnd)
	if err != nil {
		return nil, fmt.Errorf("list bookings: %w", err)
	}

	var out []Slot
	for d := from; !d.After(to); d = d.AddDate(0, 0, 1) {
		dateKey := d.Format(model.DateFormat)
		if blocked[dateKey] {
			// A holiday blocks the whole date, all rules, no partial days.
			continue
		}

		weekday := int(d.Weekday())
		for i := range rules {
			rule := &rules[i]
			if rule.Weekday != weekday {
				continue
			}
			slots, err := expandRule(rule, d, slotLen, bookings)
			if err != nil {
				return nil, fmt.Errorf("rule %d on %s: %w", rule.ID, dateKey, err)
			}
			out = append(out, slots...)
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if !out[i].Start.Equal(out[j].Start) {
			return out[i].Start.Before(out[j].Start)
		}
		return out[i].RuleID < out[j].RuleID
	})
	return out, nil
}

// expandRule partitions one rule window on one date into slots and
// subtracts consumed capacity. A trailing remainder shorter than the
// slot length is dropped.
func expandRule(rule *model.AvailabilityRule, date time.Time, slotLen time.Duration, bookings []model.Booking) ([]Slot, error) {
	loc, err := rule.Location()
	if err != nil {
		return nil, err
	}
	windowStart, windowEnd, err := rule.WindowOn(date.Year(), date.Month(), date.Day(), loc)
	if err != nil {
		return nil, err
	}

	var out []Slot
	for cursor := windowStart; !cursor.Add(slotLen).After(windowEnd); cursor = cursor.Add(slotLen) {
		slotStart := cursor
		slotEnd := cursor.Add(slotLen)

		booked := 0
		for i := range bookings {
			if bookings[i].Overlaps(slotStart, slotEnd) {
				booked++
			}
		}

		remaining := rule.Capacity - booked
		if remaining <= 0 {
			continue
		}
		out = append(out, Slot{
			Start:             slotStart,
			End:               slotEnd,
			CapacityRemaining: remaining,
			RuleID:            rule.ID,
		})
	}
	return out, nil
}

// MatchRule finds the rule whose window on the interval's date fully
// contains [start, end), or nil when no rule matches or the date is a
// holiday. The reservation path uses the exact same window derivation
// as Compute so that an offered slot always re-validates.
func MatchRule(rules []model.AvailabilityRule, holidays []model.Holiday, start, end time.Time) (*model.AvailabilityRule, error) {
	for i := range rules {
		rule := &rules[i]
		loc, err := rule.Location()
		if err != nil {
			return nil, err
		}

		// The rule's calendar date is the booking start in the rule's zone.
		local := start.In(loc)
		if int(local.Weekday()) != rule.Weekday {
			continue
		}
		dateKey := local.Format(model.DateFormat)
		for _, h := range holidays {
			if h.Date == dateKey {
				return nil, nil
			}
		}

		windowStart, windowEnd, err := rule.WindowOn(local.Year(), local.Month(), local.Day(), loc)
		if err != nil {
			return nil, err
		}
		if !start.Before(windowStart) && !end.After(windowEnd) {
			return rule, nil
		}
	}
	return nil, nil
}
