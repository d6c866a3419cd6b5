// Package api exposes the booking engine over HTTP/JSON. The public
// surface reads availability and manages bookings; the /admin surface
// manages services, rules and holidays behind an API key.
package api

import (
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"slotbook/internal/audit"
	"slotbook/internal/booking"
	"slotbook/internal/cache"
	"slotbook/internal/events"
	"slotbook/internal/slots"
	"slotbook/internal/store"
)

// Config holds HTTP-surface settings.
type Config struct {
	// AdminKey is the shared secret for /admin endpoints. Empty disables
	// the admin surface entirely.
	AdminKey string
	// MaxRangeDays caps the availability query range. Zero means the
	// default of 90.
	MaxRangeDays int
	// RateLimit is requests per second across all clients. Zero disables.
	RateLimit float64
	// RateBurst is the token bucket size for RateLimit.
	RateBurst int
}

const defaultMaxRangeDays = 90

// Publisher emits domain events after admin writes so that cached
// availability is invalidated.
type Publisher interface {
	Publish(event events.Event)
}

// Server holds the handler dependencies.
type Server struct {
	store       store.Store
	calculator  *slots.Calculator
	coordinator *booking.Coordinator
	slotCache   *cache.SlotCache
	exporter    *audit.Exporter
	bus         Publisher
	limiter     *rate.Limiter
	cfg         Config
	logger      *zerolog.Logger
}

// New creates the HTTP server. slotCache and bus may be nil.
func New(st store.Store, calc *slots.Calculator, coord *booking.Coordinator,
	slotCache *cache.SlotCache, bus Publisher, cfg Config, logger *zerolog.Logger) *Server {
	if cfg.MaxRangeDays <= 0 {
		cfg.MaxRangeDays = defaultMaxRangeDays
	}
	return &Server{
		store:       st,
		calculator:  calc,
		coordinator: coord,
		slotCache:   slotCache,
		exporter:    audit.NewExporter(st),
		bus:         bus,
		limiter:     newLimiter(cfg.RateLimit, cfg.RateBurst),
		cfg:         cfg,
		logger:      logger,
	}
}

// Handler builds the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	public := func(route string, h http.HandlerFunc) http.HandlerFunc {
		return s.withObservability(route, s.withRateLimit(h))
	}
	admin := func(route string, h http.HandlerFunc) http.HandlerFunc {
		return s.withObservability(route, s.withAdminKey(h))
	}

	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /availability", public("availability", s.handleAvailability))
	mux.HandleFunc("POST /bookings", public("create_booking", s.handleCreateBooking))
	mux.HandleFunc("GET /bookings/{id}", public("get_booking", s.handleGetBooking))
	mux.HandleFunc("PATCH /bookings/{id}", public("patch_booking", s.handlePatchBooking))

	mux.HandleFunc("POST /admin/services", admin("admin_services", s.handleCreateService))
	mux.HandleFunc("GET /admin/services", admin("admin_services", s.handleListServices))
	mux.HandleFunc("GET /admin/services/{id}", admin("admin_service", s.handleGetService))
	mux.HandleFunc("PUT /admin/services/{id}", admin("admin_service", s.handleUpdateService))
	mux.HandleFunc("DELETE /admin/services/{id}", admin("admin_service", s.handleDeactivateService))

	mux.HandleFunc("GET /admin/services/{id}/rules", admin("admin_rules", s.handleListRules))
	mux.HandleFunc("POST /admin/services/{id}/rules", admin("admin_rules", s.handleCreateRule))
	mux.HandleFunc("PUT /admin/rules/{id}", admin("admin_rule", s.handleUpdateRule))
	mux.HandleFunc("DELETE /admin/rules/{id}", admin("admin_rule", s.handleDeleteRule))

	mux.HandleFunc("GET /admin/services/{id}/holidays", admin("admin_holidays", s.handleListHolidays))
	mux.HandleFunc("POST /admin/services/{id}/holidays", admin("admin_holidays", s.handleCreateHoliday))
	mux.HandleFunc("DELETE /admin/holidays/{id}", admin("admin_holiday", s.handleDeleteHoliday))

	mux.HandleFunc("GET /admin/bookings/export", admin("admin_export", s.handleExportBookings))

	return mux
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) publish(eventType string, serviceID int64) {
	if s.bus != nil {
		s.bus.Publish(events.Event{Type: eventType, ServiceID: serviceID, CreatedAt: time.Now().UTC()})
	}
}
