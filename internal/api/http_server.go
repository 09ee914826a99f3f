package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"beautycity/internal/config"
	"beautycity/internal/domain"
	"beautycity/internal/export"
	"beautycity/internal/logging"
	"beautycity/internal/metrics"
	"beautycity/internal/models"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

const (
	healthPath      = "/healthz"
	requestIDHeader = "X-Request-ID"
	xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

// Pinger reports whether the backing store is reachable.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// HTTPDeps are the collaborators of the HTTP API.
// Exporter, BookingLimiter and DB may be nil.
type HTTPDeps struct {
	Booking        domain.BookingService
	Catalog        domain.CatalogStore
	Exporter       *export.Exporter
	BookingLimiter domain.RateLimiter
	DB             Pinger
	Location       *time.Location
}

// HTTPServer exposes the booking API over JSON.
type HTTPServer struct {
	cfg      *config.APIConfig
	deps     HTTPDeps
	location *time.Location
	server   *http.Server
	handler  http.Handler
	auth     *HTTPAuth
	logger   *zerolog.Logger
}

func NewHTTPServer(cfg *config.APIConfig, deps HTTPDeps, logger *zerolog.Logger) *HTTPServer {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	loc := deps.Location
	if loc == nil {
		loc = time.Local
	}

	srv := &HTTPServer{cfg: cfg, deps: deps, location: loc, logger: logger}
	srv.auth = NewHTTPAuth(cfg)

	mux := http.NewServeMux()
	mux.HandleFunc("GET "+healthPath, srv.handleHealth)
	mux.HandleFunc("GET /api/v1/salons", srv.handleSalons)
	mux.HandleFunc("GET /api/v1/specialists", srv.handleSpecialists)
	mux.HandleFunc("GET /api/v1/procedures", srv.handleProcedures)
	mux.HandleFunc("GET /api/v1/slots", srv.handleSlots)
	mux.HandleFunc("POST /api/v1/appointments", srv.handleCreateAppointment)
	mux.HandleFunc("GET /api/v1/appointments/export", srv.handleExport)
	mux.HandleFunc("GET /api/v1/appointments/{id}", srv.handleGetAppointment)
	mux.HandleFunc("POST /api/v1/appointments/{id}/confirm", srv.handleConfirm)
	mux.HandleFunc("POST /api/v1/appointments/{id}/cancel", srv.handleCancel)

	srv.handler = loggingMiddleware(logger, srv.auth.Wrap(mux))

	srv.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:           srv.handler,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
	}

	return srv
}

// Handler returns the fully wrapped router.
func (s *HTTPServer) Handler() http.Handler {
	return s.handler
}

func (s *HTTPServer) Start() error {
	if s.server == nil {
		return errors.New("http server is not initialized")
	}
	s.logger.Info().Str("addr", s.server.Addr).Msg("HTTP API listening")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *HTTPServer) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.deps.DB != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.deps.DB.PingContext(ctx); err != nil {
			s.logger.Warn().Err(err).Msg("health check: database unavailable")
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *HTTPServer) handleSalons(w http.ResponseWriter, r *http.Request) {
	salons, err := s.deps.Catalog.ListSalons(r.Context())
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"salons": salons})
}

func (s *HTTPServer) handleSpecialists(w http.ResponseWriter, r *http.Request) {
	var salonID int64
	if raw := strings.TrimSpace(r.URL.Query().Get("salon")); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			writeError(w, http.StatusBadRequest, "invalid salon")
			return
		}
		salonID = id
	}

	specialists, err := s.deps.Catalog.ListSpecialists(r.Context(), salonID)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"specialists": specialists})
}

func (s *HTTPServer) handleProcedures(w http.ResponseWriter, r *http.Request) {
	procedures, err := s.deps.Catalog.ListProcedures(r.Context())
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"procedures": procedures})
}

func (s *HTTPServer) handleSlots(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	ids := make(map[string]int64, 3)
	for _, name := range []string{"salon", "specialist", "procedure"} {
		id, err := strconv.ParseInt(strings.TrimSpace(q.Get(name)), 10, 64)
		if err != nil || id <= 0 {
			writeError(w, http.StatusBadRequest, name+" is required")
			return
		}
		ids[name] = id
	}

	dateStr := strings.TrimSpace(q.Get("date"))
	if dateStr == "" {
		writeError(w, http.StatusBadRequest, "date is required")
		return
	}
	date, err := time.ParseInLocation(models.DateLayout, dateStr, s.location)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid date format; expected YYYY-MM-DD")
		return
	}

	slots, err := s.deps.Booking.AvailableSlots(r.Context(), ids["salon"], ids["specialist"], ids["procedure"], date)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	out := make([]string, 0, len(slots))
	for _, slot := range slots {
		out = append(out, slot.In(s.location).Format(models.ClockLayout))
	}
	writeJSON(w, http.StatusOK, map[string]any{"date": dateStr, "slots": out})
}

type createAppointmentRequest struct {
	SalonID      int64 `json:"salon_id"`
	SpecialistID int64 `json:"specialist_id"`
	ProcedureID  int64 `json:"procedure_id"`
	// Either start_at (RFC 3339) or date + time in the salon timezone.
	StartAt      string           `json:"start_at"`
	Date         string           `json:"date"`
	Time         string           `json:"time"`
	CustomerName string           `json:"customer_name"`
	Phone        string           `json:"phone"`
	Question     string           `json:"question"`
	PriceFinal   *decimal.Decimal `json:"price_final"`
	Source       string           `json:"source"`
}

func (req createAppointmentRequest) startTime(loc *time.Location) (time.Time, error) {
	if req.StartAt != "" {
		return time.Parse(time.RFC3339, req.StartAt)
	}
	if req.Date == "" || req.Time == "" {
		return time.Time{}, errors.New("start_at or date and time are required")
	}
	return time.ParseInLocation(models.DateLayout+" "+models.ClockLayout, req.Date+" "+req.Time, loc)
}

func (s *HTTPServer) handleCreateAppointment(w http.ResponseWriter, r *http.Request) {
	var body createAppointmentRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	start, err := body.startTime(s.location)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid start time: %v", err))
		return
	}

	if !s.allowBooking(r.Context(), body.Phone) {
		writeError(w, http.StatusTooManyRequests, "too many bookings for this phone")
		return
	}

	appt, err := s.deps.Booking.Admit(r.Context(), domain.AdmitRequest{
		SalonID:      body.SalonID,
		SpecialistID: body.SpecialistID,
		ProcedureID:  body.ProcedureID,
		StartAt:      start,
		Customer: domain.Customer{
			Name:     body.CustomerName,
			Phone:    body.Phone,
			Question: body.Question,
		},
		PriceFinal: body.PriceFinal,
		Source:     models.Source(strings.TrimSpace(body.Source)),
	})
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, appt)
}

// allowBooking limits admissions per customer phone. Limiter errors let the request through.
func (s *HTTPServer) allowBooking(ctx context.Context, phone string) bool {
	limit := s.cfg.RateLimit.BookingsPerPhone
	phone = strings.TrimSpace(phone)
	if s.deps.BookingLimiter == nil || limit <= 0 || phone == "" {
		return true
	}

	ok, err := s.deps.BookingLimiter.CheckRateLimit(ctx, "booking:phone:"+phone, limit, s.cfg.RateLimit.BookingWindow())
	if err != nil {
		s.logger.Warn().Err(err).Msg("booking rate limit check failed")
		return true
	}
	if !ok {
		s.logger.Info().Str("phone", logging.MaskPhone(phone)).Msg("booking limit reached")
	}
	return ok
}

func (s *HTTPServer) handleGetAppointment(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	appt, err := s.deps.Booking.GetAppointment(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, appt)
}

func (s *HTTPServer) handleConfirm(w http.ResponseWriter, r *http.Request) {
	s.handleTransition(w, r, s.deps.Booking.Confirm)
}

func (s *HTTPServer) handleCancel(w http.ResponseWriter, r *http.Request) {
	s.handleTransition(w, r, s.deps.Booking.Cancel)
}

type transitionFunc func(ctx context.Context, id, version int64) (*models.Appointment, error)

func (s *HTTPServer) handleTransition(w http.ResponseWriter, r *http.Request, apply transitionFunc) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	var body struct {
		Version int64 `json:"version"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if body.Version <= 0 {
		writeError(w, http.StatusBadRequest, "version is required")
		return
	}

	appt, err := apply(r.Context(), id, body.Version)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, appt)
}

// handleExport serves an xlsx report for the inclusive date range [from, to].
func (s *HTTPServer) handleExport(w http.ResponseWriter, r *http.Request) {
	if s.deps.Exporter == nil {
		writeError(w, http.StatusNotImplemented, "export is not configured")
		return
	}

	q := r.URL.Query()
	from, err := time.ParseInLocation(models.DateLayout, strings.TrimSpace(q.Get("from")), s.location)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid from; expected YYYY-MM-DD")
		return
	}
	to, err := time.ParseInLocation(models.DateLayout, strings.TrimSpace(q.Get("to")), s.location)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid to; expected YYYY-MM-DD")
		return
	}
	to = to.AddDate(0, 0, 1)

	appts, err := s.deps.Booking.ListAppointments(r.Context(), from, to)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	f, err := s.deps.Exporter.Build(r.Context(), from, to, appts)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	defer f.Close()

	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", export.FileName(from, to)))
	w.WriteHeader(http.StatusOK)
	if err := f.Write(w); err != nil {
		s.logger.Error().Err(err).Msg("write export")
	}
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid appointment id")
		return 0, false
	}
	return id, true
}

// statusFromError maps domain errors to HTTP codes.
func statusFromError(err error) int {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrConflict),
		errors.Is(err, domain.ErrInvalidTransition),
		errors.Is(err, domain.ErrConcurrentModification):
		return http.StatusConflict
	case errors.Is(err, domain.ErrPastTime):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrInvalidInput), errors.Is(err, domain.ErrInvalidShift):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrLockNotAcquired):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (s *HTTPServer) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	code := statusFromError(err)
	if code == http.StatusInternalServerError {
		s.logger.Error().Err(err).Str("method", r.Method).Str("path", r.URL.Path).Msg("request failed")
		writeError(w, code, "internal error")
		return
	}
	writeError(w, code, err.Error())
}

func loggingMiddleware(logger *zerolog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := strings.TrimSpace(r.Header.Get(requestIDHeader))
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, requestID)

		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)

		// Pattern is filled in by the mux; empty when auth rejected the request.
		endpoint := r.Pattern
		if endpoint == "" {
			endpoint = "unmatched"
		}
		metrics.IncHTTP(endpoint)

		logger.Info().
			Str("request_id", requestID).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", recorder.status).
			Dur("duration", time.Since(start)).
			Msg("http request")
	})
}

func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, map[string]string{"error": message})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
