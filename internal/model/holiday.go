package model

import (
	"fmt"
	"time"
)

// DateFormat is the wire format for calendar dates.
const DateFormat = "2006-01-02"

// Holiday blocks all rule windows of a service on a single calendar date.
type Holiday struct {
	ID        int64     `json:"id"`
	ServiceID int64     `json:"service_id"`
	Date      string    `json:"holiday_date"` // "YYYY-MM-DD"
	Note      string    `json:"note,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Validate checks the date format.
func (h *Holiday) Validate() error {
	if _, err := time.Parse(DateFormat, h.Date); err != nil {
		return fmt.Errorf("holiday_date %q: expected YYYY-MM-DD", h.Date)
	}
	return nil
}
