package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"slotbook/internal/booking"
	"slotbook/internal/events"
	"slotbook/internal/model"
	"slotbook/internal/slots"
	"slotbook/internal/store/sqlite"
)

const testAdminKey = "test-secret"

type testEnv struct {
	store   *sqlite.Store
	handler http.Handler
	service *model.Service
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	st, err := sqlite.Open(filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	svc := &model.Service{Name: "Haircut", DurationMinutes: 30, Active: true}
	require.NoError(t, st.CreateService(t.Context(), svc))
	rule := &model.AvailabilityRule{
		ServiceID: svc.ID, Weekday: 1,
		StartTime: "09:00", EndTime: "12:00",
		Timezone: "UTC", Capacity: 1,
	}
	require.NoError(t, st.CreateRule(t.Context(), rule))

	logger := zerolog.New(io.Discard)
	bus := events.NewBus()
	coord := booking.New(st, bus, booking.Policy{}, &logger)
	calc := slots.New(st)

	srv := New(st, calc, coord, nil, bus, Config{AdminKey: testAdminKey}, &logger)
	return &testEnv{store: st, handler: srv.Handler(), service: svc}
}

func (e *testEnv) do(t *testing.T, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	e.handler.ServeHTTP(w, req)
	return w
}

func adminHeaders() map[string]string {
	return map[string]string{"X-API-Key": testAdminKey}
}

// monday is 2025-03-10, matching the fixture rule's weekday.
const (
	mondayDate  = "2025-03-10"
	mondayStart = "2025-03-10T09:00:00Z"
	mondayEnd   = "2025-03-10T09:30:00Z"
)

func bookingBody(email string) map[string]any {
	return map[string]any{
		"service_id":     int64(1),
		"start_time":     mondayStart,
		"end_time":       mondayEnd,
		"customer_name":  "Alice",
		"customer_email": email,
	}
}

func TestAvailabilityEndpoint(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet,
		fmt.Sprintf("/availability?service_id=%d&from=%s&to=%s", env.service.ID, mondayDate, mondayDate),
		nil, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp []slots.Slot
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Len(t, resp, 6, "09:00-12:00 partitions into six half-hour slots")
	first := resp[0]
	assert.Equal(t, time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC), first.Start.UTC())
	assert.Equal(t, 1, first.CapacityRemaining)
}

func TestAvailabilityValidation(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name string
		path string
		code int
	}{
		{"missing service", "/availability?from=2025-03-10&to=2025-03-10", http.StatusBadRequest},
		{"missing dates", "/availability?service_id=1", http.StatusBadRequest},
		{"bad date", "/availability?service_id=1&from=10-03-2025&to=2025-03-10", http.StatusBadRequest},
		{"inverted range", "/availability?service_id=1&from=2025-03-11&to=2025-03-10", http.StatusBadRequest},
		{"range too wide", "/availability?service_id=1&from=2025-01-01&to=2025-12-31", http.StatusBadRequest},
		{"unknown service", "/availability?service_id=999&from=2025-03-10&to=2025-03-10", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(t, http.MethodGet, tt.path, nil, nil)
			assert.Equal(t, tt.code, w.Code)
		})
	}
}

func TestCreateBooking(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/bookings", bookingBody("alice@example.com"), nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var b model.Booking
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &b))
	assert.Equal(t, model.StatusPending, b.Status)
	assert.NotEmpty(t, b.PublicID)

	// Capacity 1: the same interval is now full.
	w = env.do(t, http.MethodPost, "/bookings", bookingBody("bob@example.com"), nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	// The taken slot disappears from availability.
	w = env.do(t, http.MethodGet,
		fmt.Sprintf("/availability?service_id=%d&from=%s&to=%s", env.service.ID, mondayDate, mondayDate),
		nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var resp []slots.Slot
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Len(t, resp, 5)
}

func TestCreateBookingErrors(t *testing.T) {
	env := newTestEnv(t)

	t.Run("invalid email", func(t *testing.T) {
		body := bookingBody("not-an-email")
		w := env.do(t, http.MethodPost, "/bookings", body, nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("unknown service", func(t *testing.T) {
		body := bookingBody("alice@example.com")
		body["service_id"] = int64(999)
		w := env.do(t, http.MethodPost, "/bookings", body, nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("outside rule window", func(t *testing.T) {
		body := bookingBody("alice@example.com")
		body["start_time"] = "2025-03-10T14:00:00Z"
		body["end_time"] = "2025-03-10T14:30:00Z"
		w := env.do(t, http.MethodPost, "/bookings", body, nil)
		assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
		assert.Contains(t, w.Body.String(), "slot not available")
	})

	t.Run("bad timestamp", func(t *testing.T) {
		body := bookingBody("alice@example.com")
		body["start_time"] = "tomorrow"
		w := env.do(t, http.MethodPost, "/bookings", body, nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("unknown field", func(t *testing.T) {
		body := bookingBody("alice@example.com")
		body["surprise"] = true
		w := env.do(t, http.MethodPost, "/bookings", body, nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestBookingLifecycle(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/bookings", bookingBody("alice@example.com"), nil)
	require.Equal(t, http.StatusCreated, w.Code)
	var created model.Booking
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))

	// Lookup works by numeric id and by public uuid.
	w = env.do(t, http.MethodGet, fmt.Sprintf("/bookings/%d", created.ID), nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	w = env.do(t, http.MethodGet, "/bookings/"+created.PublicID, nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = env.do(t, http.MethodPatch, "/bookings/"+created.PublicID,
		map[string]string{"status": "confirmed"}, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var confirmed model.Booking
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &confirmed))
	assert.Equal(t, model.StatusConfirmed, confirmed.Status)

	// Cancel twice: both succeed.
	for range 2 {
		w = env.do(t, http.MethodPatch, "/bookings/"+created.PublicID,
			map[string]string{"status": "canceled"}, nil)
		require.Equal(t, http.StatusOK, w.Code)
	}

	// A canceled booking cannot be confirmed again.
	w = env.do(t, http.MethodPatch, "/bookings/"+created.PublicID,
		map[string]string{"status": "confirmed"}, nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	// Canceling freed the slot.
	w = env.do(t, http.MethodPost, "/bookings", bookingBody("bob@example.com"), nil)
	assert.Equal(t, http.StatusCreated, w.Code)
}

func TestPatchBookingValidation(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPatch, "/bookings/999", map[string]string{"status": "canceled"}, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	created := env.do(t, http.MethodPost, "/bookings", bookingBody("alice@example.com"), nil)
	require.Equal(t, http.StatusCreated, created.Code)
	var b model.Booking
	require.NoError(t, json.Unmarshal(created.Body.Bytes(), &b))

	w = env.do(t, http.MethodPatch, fmt.Sprintf("/bookings/%d", b.ID),
		map[string]string{"status": "pending"}, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAdminAuth(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/admin/services", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = env.do(t, http.MethodGet, "/admin/services", nil, map[string]string{"X-API-Key": "wrong"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = env.do(t, http.MethodGet, "/admin/services", nil, adminHeaders())
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAdminServiceAndRuleCRUD(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/admin/services",
		map[string]any{"name": "Massage", "duration_minutes": 60}, adminHeaders())
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var svc model.Service
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &svc))
	assert.True(t, svc.Active)

	rulePath := fmt.Sprintf("/admin/services/%d/rules", svc.ID)
	w = env.do(t, http.MethodPost, rulePath, map[string]any{
		"weekday": 3, "start_time": "10:00", "end_time": "16:00",
		"timezone": "Europe/Berlin", "capacity": 2,
	}, adminHeaders())
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var rule model.AvailabilityRule
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &rule))
	assert.Equal(t, svc.ID, rule.ServiceID)

	// Invalid weekday is rejected before storage.
	w = env.do(t, http.MethodPost, rulePath, map[string]any{
		"weekday": 7, "start_time": "10:00", "end_time": "16:00",
		"timezone": "UTC", "capacity": 1,
	}, adminHeaders())
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, http.MethodGet, rulePath, nil, adminHeaders())
	require.Equal(t, http.StatusOK, w.Code)

	w = env.do(t, http.MethodDelete, fmt.Sprintf("/admin/rules/%d", rule.ID), nil, adminHeaders())
	assert.Equal(t, http.StatusNoContent, w.Code)

	// Deactivation hides the service from booking.
	w = env.do(t, http.MethodDelete, fmt.Sprintf("/admin/services/%d", env.service.ID), nil, adminHeaders())
	require.Equal(t, http.StatusNoContent, w.Code)
	w = env.do(t, http.MethodPost, "/bookings", bookingBody("alice@example.com"), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAdminHolidayBlocksBooking(t *testing.T) {
	env := newTestEnv(t)

	path := fmt.Sprintf("/admin/services/%d/holidays", env.service.ID)
	w := env.do(t, http.MethodPost, path,
		map[string]any{"holiday_date": mondayDate, "note": "maintenance"}, adminHeaders())
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = env.do(t, http.MethodPost, "/bookings", bookingBody("alice@example.com"), nil)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w = env.do(t, http.MethodGet,
		fmt.Sprintf("/availability?service_id=%d&from=%s&to=%s", env.service.ID, mondayDate, mondayDate),
		nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var resp []slots.Slot
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Empty(t, resp)
}

func TestExportEndpoint(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/bookings", bookingBody("alice@example.com"), nil)
	require.Equal(t, http.StatusCreated, w.Code)

	w = env.do(t, http.MethodGet,
		"/admin/bookings/export?from=2025-03-01&to=2025-03-31", nil, adminHeaders())
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Disposition"), ".xlsx")

	f, err := excelize.OpenReader(bytes.NewReader(w.Body.Bytes()))
	require.NoError(t, err)
	defer f.Close()
	rows, err := f.GetRows("Bookings")
	require.NoError(t, err)
	require.Len(t, rows, 2, "header plus the created booking")
	assert.Equal(t, "Haircut", rows[1][2])
}

func TestRateLimit(t *testing.T) {
	st, err := sqlite.Open(filepath.Join(t.TempDir(), "rl.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	logger := zerolog.New(io.Discard)
	coord := booking.New(st, nil, booking.Policy{}, &logger)
	srv := New(st, slots.New(st), coord, nil, nil,
		Config{RateLimit: 1, RateBurst: 1}, &logger)
	handler := srv.Handler()

	req := httptest.NewRequest(http.MethodGet, "/availability?service_id=1&from=2025-03-10&to=2025-03-10", nil)
	first := httptest.NewRecorder()
	handler.ServeHTTP(first, req)
	second := httptest.NewRecorder()
	handler.ServeHTTP(second, httptest.NewRequest(http.MethodGet, "/availability?service_id=1&from=2025-03-10&to=2025-03-10", nil))

	assert.NotEqual(t, http.StatusTooManyRequests, first.Code)
	assert.Equal(t, http.StatusTooManyRequests, second.Code)
}

func TestHealthz(t *testing.T) {
	env := newTestEnv(t)
	w := env.do(t, http.MethodGet, "/healthz", nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)
}
