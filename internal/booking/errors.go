package booking

import "errors"

var (
	// ErrValidation is returned for malformed reservation input.
	ErrValidation = errors.New("invalid booking request")

	// ErrSlotNotAvailable is returned when the requested interval lies
	// outside every rule window, on a holiday, or outside the allowed
	// advance-booking range.
	ErrSlotNotAvailable = errors.New("slot not available")

	// ErrInvalidTransition is returned for a disallowed status change.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrUnavailable is returned when storage kept failing after the
	// bounded retries. The underlying fault is wrapped for logs only.
	ErrUnavailable = errors.New("storage unavailable")
)
