package api

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"slotbook/internal/metrics"
	"slotbook/internal/model"
	"slotbook/internal/slots"
)

// handleAvailability computes offerable slots and returns them as a
// bare JSON array of {start, end, capacity_remaining}.
// GET /availability?service_id=1&from=YYYY-MM-DD&to=YYYY-MM-DD&slot_minutes=30
func (s *Server) handleAvailability(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	serviceID, err := strconv.ParseInt(q.Get("service_id"), 10, 64)
	if err != nil || serviceID <= 0 {
		writeError(w, http.StatusBadRequest, "service_id is required")
		return
	}

	from, to, err := s.parseDateRange(q.Get("from"), q.Get("to"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var slotLen time.Duration
	if raw := q.Get("slot_minutes"); raw != "" {
		minutes, err := strconv.Atoi(raw)
		if err != nil || minutes <= 0 {
			writeError(w, http.StatusBadRequest, "slot_minutes must be a positive integer")
			return
		}
		slotLen = time.Duration(minutes) * time.Minute
	}

	fromKey := from.Format(model.DateFormat)
	toKey := to.Format(model.DateFormat)

	result, cacheKey, ok := s.cachedSlots(r, serviceID, fromKey, toKey, slotLen)
	if !ok {
		result, err = s.calculator.Compute(r.Context(), serviceID, from, to, slotLen)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		metrics.IncSlotsComputed()
		if s.slotCache != nil {
			s.slotCache.Put(r.Context(), cacheKey, result)
		}
	}

	if result == nil {
		result = []slots.Slot{}
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) cachedSlots(r *http.Request, serviceID int64, from, to string, slotLen time.Duration) ([]slots.Slot, string, bool) {
	if s.slotCache == nil {
		return nil, "", false
	}
	return s.slotCache.Get(r.Context(), serviceID, from, to, slotLen)
}

func (s *Server) parseDateRange(fromRaw, toRaw string) (time.Time, time.Time, error) {
	if fromRaw == "" || toRaw == "" {
		return time.Time{}, time.Time{}, fmt.Errorf("from and to are required")
	}
	from, err := time.ParseInLocation(model.DateFormat, fromRaw, time.UTC)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid from date; expected YYYY-MM-DD")
	}
	to, err := time.ParseInLocation(model.DateFormat, toRaw, time.UTC)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid to date; expected YYYY-MM-DD")
	}
	if to.Before(from) {
		return time.Time{}, time.Time{}, fmt.Errorf("to must not be before from")
	}
	if int(to.Sub(from).Hours()/24)+1 > s.cfg.MaxRangeDays {
		return time.Time{}, time.Time{}, fmt.Errorf("date range exceeds %d days", s.cfg.MaxRangeDays)
	}
	return from, to, nil
}
