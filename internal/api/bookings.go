package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"slotbook/internal/booking"
	"slotbook/internal/model"
)

// createBookingRequest is the body for POST /bookings.
type createBookingRequest struct {
	ServiceID     int64  `json:"service_id"`
	StartTime     string `json:"start_time"` // RFC 3339
	EndTime       string `json:"end_time"`   // RFC 3339
	CustomerName  string `json:"customer_name"`
	CustomerEmail string `json:"customer_email"`
	Notes         string `json:"notes,omitempty"`
}

// patchBookingRequest is the body for PATCH /bookings/{id}.
type patchBookingRequest struct {
	Status string `json:"status"` // "confirmed" or "canceled"
}

// handleCreateBooking reserves a slot.
// POST /bookings
func (s *Server) handleCreateBooking(w http.ResponseWriter, r *http.Request) {
	var req createBookingRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	start, err := time.Parse(time.RFC3339, req.StartTime)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid start_time; expected RFC 3339")
		return
	}
	end, err := time.Parse(time.RFC3339, req.EndTime)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid end_time; expected RFC 3339")
		return
	}

	b, err := s.coordinator.Reserve(r.Context(), booking.ReserveRequest{
		ServiceID:     req.ServiceID,
		Start:         start,
		End:           end,
		CustomerName:  req.CustomerName,
		CustomerEmail: req.CustomerEmail,
		Notes:         req.Notes,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, b)
}

// handleGetBooking returns a booking by numeric id or public uuid.
// GET /bookings/{id}
func (s *Server) handleGetBooking(w http.ResponseWriter, r *http.Request) {
	b, err := s.resolveBooking(r)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

// handlePatchBooking changes a booking's status. Canceling an already
// canceled booking succeeds.
// PATCH /bookings/{id}
func (s *Server) handlePatchBooking(w http.ResponseWriter, r *http.Request) {
	b, err := s.resolveBooking(r)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	var req patchBookingRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	switch req.Status {
	case model.StatusCanceled:
		b, err = s.coordinator.Cancel(r.Context(), b.ID)
	case model.StatusConfirmed:
		b, err = s.coordinator.Confirm(r.Context(), b.ID)
	default:
		writeError(w, http.StatusBadRequest, `status must be "confirmed" or "canceled"`)
		return
	}
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (s *Server) resolveBooking(r *http.Request) (*model.Booking, error) {
	raw := r.PathValue("id")
	if id, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return s.store.GetBooking(r.Context(), id)
	}
	return s.store.GetBookingByPublicID(r.Context(), raw)
}
