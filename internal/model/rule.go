package model

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// AvailabilityRule is a recurring weekly opening window for a service.
// StartTime/EndTime are local wall-clock times ("HH:MM") in Timezone;
// they are resolved to UTC instants per calendar date at read time.
type AvailabilityRule struct {
	ID        int64     `json:"id"`
	ServiceID int64     `json:"service_id"`
	Weekday   int       `json:"weekday"`    // 0-6 (Sunday-Saturday)
	StartTime string    `json:"start_time"` // "09:00"
	EndTime   string    `json:"end_time"`   // "18:00"
	Timezone  string    `json:"timezone"`   // IANA name, e.g. "Europe/Berlin"
	Capacity  int       `json:"capacity"`   // concurrent bookings per window
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Validate checks rule invariants: weekday range, parseable times,
// start before end within the same day, loadable timezone, capacity >= 1.
func (r *AvailabilityRule) Validate() error {
	if r.Weekday < 0 || r.Weekday > 6 {
		return fmt.Errorf("weekday must be in [0,6], got %d", r.Weekday)
	}
	startMin, err := ParseClock(r.StartTime)
	if err != nil {
		return fmt.Errorf("start_time: %w", err)
	}
	endMin, err := ParseClock(r.EndTime)
	if err != nil {
		return fmt.Errorf("end_time: %w", err)
	}
	if startMin >= endMin {
		return fmt.Errorf("start_time %s must be before end_time %s", r.StartTime, r.EndTime)
	}
	if r.Capacity < 1 {
		return fmt.Errorf("capacity must be at least 1, got %d", r.Capacity)
	}
	if _, err := time.LoadLocation(r.Timezone); err != nil {
		return fmt.Errorf("timezone %q: %w", r.Timezone, err)
	}
	return nil
}

// Location loads the rule's timezone. Callers should have validated the
// rule beforehand; an unloadable zone is surfaced as an error regardless.
func (r *AvailabilityRule) Location() (*time.Location, error) {
	return time.LoadLocation(r.Timezone)
}

// WindowOn resolves the rule to absolute UTC instants on a calendar date.
// The date's weekday match is the caller's concern; the conversion itself
// is DST-correct because time.Date interprets wall-clock time in loc.
func (r *AvailabilityRule) WindowOn(year int, month time.Month, day int, loc *time.Location) (start, end time.Time, err error) {
	sh, sm, err := clockParts(r.StartTime)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("start_time: %w", err)
	}
	eh, em, err := clockParts(r.EndTime)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("end_time: %w", err)
	}
	start = time.Date(year, month, day, sh, sm, 0, 0, loc).UTC()
	end = time.Date(year, month, day, eh, em, 0, 0, loc).UTC()
	return start, end, nil
}

// ParseClock parses "HH:MM" into minutes since midnight.
func ParseClock(s string) (int, error) {
	h, m, err := clockParts(s)
	if err != nil {
		return 0, err
	}
	return h*60 + m, nil
}

func clockParts(s string) (hour, minute int, err error) {
	parts := strings.Split(s, ":")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("invalid time format %q, expected HH:MM", s)
	}
	hour, err = strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, 0, fmt.Errorf("invalid hour in %q", s)
	}
	minute, err = strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("invalid minute in %q", s)
	}
	return hour, minute, nil
}
