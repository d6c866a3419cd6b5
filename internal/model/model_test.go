package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestAvailabilityRule_Validate(t *testing.T) {
	base := AvailabilityRule{
		ServiceID: 1,
		Weekday:   1,
		StartTime: "09:00",
		EndTime:   "12:00",
		Timezone:  "UTC",
		Capacity:  1,
	}

	tests := []struct {
		name    string
		mutate  func(r *AvailabilityRule)
		wantErr bool
	}{
		{"valid", func(r *AvailabilityRule) {}, false},
		{"weekday too large", func(r *AvailabilityRule) { r.Weekday = 7 }, true},
		{"weekday negative", func(r *AvailabilityRule) { r.Weekday = -1 }, true},
		{"start after end", func(r *AvailabilityRule) { r.StartTime = "13:00" }, true},
		{"start equals end", func(r *AvailabilityRule) { r.StartTime = "12:00" }, true},
		{"bad start format", func(r *AvailabilityRule) { r.StartTime = "9am" }, true},
		{"bad minute", func(r *AvailabilityRule) { r.EndTime = "12:75" }, true},
		{"zero capacity", func(r *AvailabilityRule) { r.Capacity = 0 }, true},
		{"bad timezone", func(r *AvailabilityRule) { r.Timezone = "Mars/Olympus" }, true},
		{"named timezone", func(r *AvailabilityRule) { r.Timezone = "Europe/Berlin" }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rule := base
			tt.mutate(&rule)
			err := rule.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestAvailabilityRule_WindowOn(t *testing.T) {
	rule := AvailabilityRule{
		Weekday:   1,
		StartTime: "09:00",
		EndTime:   "12:00",
		Timezone:  "UTC",
		Capacity:  1,
	}

	t.Run("utc window", func(t *testing.T) {
		loc, err := rule.Location()
		assert.NoError(t, err)
		start, end, err := rule.WindowOn(2025, time.March, 10, loc)
		assert.NoError(t, err)
		assert.Equal(t, time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC), start)
		assert.Equal(t, time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC), end)
	})

	t.Run("dst aware conversion", func(t *testing.T) {
		r := rule
		r.Timezone = "Europe/Berlin"
		loc, err := r.Location()
		assert.NoError(t, err)

		// Winter: Berlin is UTC+1.
		start, _, err := r.WindowOn(2025, time.January, 6, loc)
		assert.NoError(t, err)
		assert.Equal(t, time.Date(2025, 1, 6, 8, 0, 0, 0, time.UTC), start)

		// Summer: Berlin is UTC+2.
		start, _, err = r.WindowOn(2025, time.July, 7, loc)
		assert.NoError(t, err)
		assert.Equal(t, time.Date(2025, 7, 7, 7, 0, 0, 0, time.UTC), start)
	})
}

func TestBooking_Transitions(t *testing.T) {
	assert.True(t, CanTransition(StatusPending, StatusConfirmed))
	assert.True(t, CanTransition(StatusPending, StatusCanceled))
	assert.True(t, CanTransition(StatusConfirmed, StatusCanceled))

	assert.False(t, CanTransition(StatusConfirmed, StatusPending))
	assert.False(t, CanTransition(StatusCanceled, StatusPending))
	assert.False(t, CanTransition(StatusCanceled, StatusConfirmed))
	assert.False(t, CanTransition("unknown", StatusCanceled))
}

func TestBooking_Overlaps(t *testing.T) {
	b := Booking{
		StartTime: time.Date(2025, 3, 10, 10, 0, 0, 0, time.UTC),
		EndTime:   time.Date(2025, 3, 10, 10, 30, 0, 0, time.UTC),
	}

	slot := func(h, m int) time.Time {
		return time.Date(2025, 3, 10, h, m, 0, 0, time.UTC)
	}

	assert.True(t, b.Overlaps(slot(10, 0), slot(10, 30)))
	assert.True(t, b.Overlaps(slot(9, 45), slot(10, 15)))
	assert.True(t, b.Overlaps(slot(10, 15), slot(10, 45)))

	// Half-open: touching boundaries do not overlap.
	assert.False(t, b.Overlaps(slot(9, 30), slot(10, 0)))
	assert.False(t, b.Overlaps(slot(10, 30), slot(11, 0)))
}

func TestBooking_Validate(t *testing.T) {
	b := Booking{
		ServiceID:     1,
		CustomerName:  "Jane Doe",
		CustomerEmail: "jane@example.com",
		StartTime:     time.Date(2025, 3, 10, 10, 0, 0, 0, time.UTC),
		EndTime:       time.Date(2025, 3, 10, 10, 30, 0, 0, time.UTC),
		Status:        StatusPending,
	}
	assert.NoError(t, b.Validate())

	inverted := b
	inverted.StartTime, inverted.EndTime = inverted.EndTime, inverted.StartTime
	assert.Error(t, inverted.Validate())

	empty := b
	empty.EndTime = empty.StartTime
	assert.Error(t, empty.Validate())

	noStatus := b
	noStatus.Status = "held"
	assert.Error(t, noStatus.Validate())
}

func TestService_Validate(t *testing.T) {
	svc := Service{Name: "Haircut", DurationMinutes: 30, Active: true}
	assert.NoError(t, svc.Validate())
	assert.Equal(t, 30*time.Minute, svc.SlotLength())

	svc.DurationMinutes = 0
	assert.Error(t, svc.Validate())

	svc.DurationMinutes = 30
	svc.Name = "  "
	assert.Error(t, svc.Validate())
}

func TestHoliday_Validate(t *testing.T) {
	h := Holiday{ServiceID: 1, Date: "2025-03-10"}
	assert.NoError(t, h.Validate())

	h.Date = "10.03.2025"
	assert.Error(t, h.Validate())
}
