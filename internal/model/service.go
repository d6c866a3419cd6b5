package model

import (
	"fmt"
	"strings"
	"time"
)

// Service is a bookable service offered to customers.
type Service struct {
	ID              int64     `json:"id"`
	Name            string    `json:"name"`
	DurationMinutes int       `json:"duration_minutes"` // default slot length
	Active          bool      `json:"active"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Validate checks service fields before persisting.
func (s *Service) Validate() error {
	if strings.TrimSpace(s.Name) == "" {
		return fmt.Errorf("service name is required")
	}
	if s.DurationMinutes <= 0 {
		return fmt.Errorf("duration_minutes must be positive, got %d", s.DurationMinutes)
	}
	return nil
}

// SlotLength returns the default slot length as a duration.
func (s *Service) SlotLength() time.Duration {
	return time.Duration(s.DurationMinutes) * time.Minute
}
