package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"slotbook/internal/audit"
	"slotbook/internal/events"
	"slotbook/internal/model"
)

func pathID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id")
	}
	return id, nil
}

func decodeBody(r *http.Request, v any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(v)
}

// POST /admin/services
func (s *Server) handleCreateService(w http.ResponseWriter, r *http.Request) {
	var svc model.Service
	if err := decodeBody(r, &svc); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	svc.ID = 0
	svc.Active = true
	if err := svc.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.store.CreateService(r.Context(), &svc); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, svc)
}

// GET /admin/services
func (s *Server) handleListServices(w http.ResponseWriter, r *http.Request) {
	services, err := s.store.ListServices(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if services == nil {
		services = []model.Service{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"services": services})
}

// GET /admin/services/{id}
func (s *Server) handleGetService(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	svc, err := s.store.GetService(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, svc)
}

// PUT /admin/services/{id}
func (s *Server) handleUpdateService(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var svc model.Service
	if err := decodeBody(r, &svc); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	svc.ID = id
	if err := svc.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.store.UpdateService(r.Context(), &svc); err != nil {
		writeDomainError(w, err)
		return
	}
	s.publish(events.ServiceChanged, id)
	writeJSON(w, http.StatusOK, svc)
}

// DELETE /admin/services/{id} deactivates; history is kept.
func (s *Server) handleDeactivateService(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.store.DeactivateService(r.Context(), id); err != nil {
		writeDomainError(w, err)
		return
	}
	s.publish(events.ServiceChanged, id)
	w.WriteHeader(http.StatusNoContent)
}

// GET /admin/services/{id}/rules
func (s *Server) handleListRules(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	rules, err := s.store.ListRules(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if rules == nil {
		rules = []model.AvailabilityRule{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"rules": rules})
}

// POST /admin/services/{id}/rules
func (s *Server) handleCreateRule(w http.ResponseWriter, r *http.Request) {
	serviceID, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if _, err := s.store.GetService(r.Context(), serviceID); err != nil {
		writeDomainError(w, err)
		return
	}

	var rule model.AvailabilityRule
	if err := decodeBody(r, &rule); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	rule.ID = 0
	rule.ServiceID = serviceID
	if err := rule.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.store.CreateRule(r.Context(), &rule); err != nil {
		writeDomainError(w, err)
		return
	}
	s.publish(events.RuleChanged, serviceID)
	writeJSON(w, http.StatusCreated, rule)
}

// PUT /admin/rules/{id}
func (s *Server) handleUpdateRule(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	existing, err := s.store.GetRule(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	var rule model.AvailabilityRule
	if err := decodeBody(r, &rule); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	rule.ID = id
	rule.ServiceID = existing.ServiceID
	if err := rule.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.store.UpdateRule(r.Context(), &rule); err != nil {
		writeDomainError(w, err)
		return
	}
	s.publish(events.RuleChanged, rule.ServiceID)
	writeJSON(w, http.StatusOK, rule)
}

// DELETE /admin/rules/{id}
func (s *Server) handleDeleteRule(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	rule, err := s.store.GetRule(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if err := s.store.DeleteRule(r.Context(), id); err != nil {
		writeDomainError(w, err)
		return
	}
	s.publish(events.RuleChanged, rule.ServiceID)
	w.WriteHeader(http.StatusNoContent)
}

// GET /admin/services/{id}/holidays
func (s *Server) handleListHolidays(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	holidays, err := s.store.ListHolidays(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if holidays == nil {
		holidays = []model.Holiday{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"holidays": holidays})
}

// POST /admin/services/{id}/holidays
func (s *Server) handleCreateHoliday(w http.ResponseWriter, r *http.Request) {
	serviceID, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if _, err := s.store.GetService(r.Context(), serviceID); err != nil {
		writeDomainError(w, err)
		return
	}

	var h model.Holiday
	if err := decodeBody(r, &h); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	h.ID = 0
	h.ServiceID = serviceID
	if err := h.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.store.CreateHoliday(r.Context(), &h); err != nil {
		writeDomainError(w, err)
		return
	}
	s.publish(events.HolidayChanged, serviceID)
	writeJSON(w, http.StatusCreated, h)
}

// DELETE /admin/holidays/{id}
func (s *Server) handleDeleteHoliday(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	h, err := s.store.GetHoliday(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if err := s.store.DeleteHoliday(r.Context(), id); err != nil {
		writeDomainError(w, err)
		return
	}
	s.publish(events.HolidayChanged, h.ServiceID)
	w.WriteHeader(http.StatusNoContent)
}

// GET /admin/bookings/export?from=YYYY-MM-DD&to=YYYY-MM-DD
func (s *Server) handleExportBookings(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	from, err := time.ParseInLocation(model.DateFormat, q.Get("from"), time.UTC)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid from date; expected YYYY-MM-DD")
		return
	}
	to, err := time.ParseInLocation(model.DateFormat, q.Get("to"), time.UTC)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid to date; expected YYYY-MM-DD")
		return
	}
	if to.Before(from) {
		writeError(w, http.StatusBadRequest, "to must not be before from")
		return
	}
	// Include the whole final date.
	to = to.AddDate(0, 0, 1)

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition",
		fmt.Sprintf("attachment; filename=%q", audit.Filename(from, to.AddDate(0, 0, -1))))
	if err := s.exporter.Export(r.Context(), from, to, w); err != nil {
		s.logger.Error().Err(err).Msg("booking export failed")
	}
}
