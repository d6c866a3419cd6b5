package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"slotbook/internal/booking"
	"slotbook/internal/slots"
	"slotbook/internal/store"
)

// errorResponse is the uniform error body.
type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// errorStatus maps domain errors to HTTP status codes. Malformed input
// is 400, a well-formed interval that no rule offers is 422, and 409 is
// reserved for capacity and race outcomes. Unmapped errors are internal
// faults.
func errorStatus(err error) int {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, booking.ErrValidation),
		errors.Is(err, slots.ErrInvalidRange):
		return http.StatusBadRequest
	case errors.Is(err, booking.ErrSlotNotAvailable):
		return http.StatusUnprocessableEntity
	case errors.Is(err, store.ErrCapacityExceeded),
		errors.Is(err, store.ErrConflict),
		errors.Is(err, booking.ErrInvalidTransition):
		return http.StatusConflict
	case errors.Is(err, booking.ErrUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// writeDomainError renders a mapped error, hiding internals behind a
// generic message for 5xx.
func writeDomainError(w http.ResponseWriter, err error) {
	status := errorStatus(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		msg = "internal error"
	}
	writeError(w, status, msg)
}
