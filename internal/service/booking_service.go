package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"beautycity/internal/domain"
	"beautycity/internal/events"
	"beautycity/internal/logging"
	"beautycity/internal/metrics"
	"beautycity/internal/models"
	"beautycity/internal/schedule"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// SystemClock reads the wall clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// AdmissionKey is the lock key shared by all admissions to one specialist in one salon.
func AdmissionKey(salonID, specialistID int64) string {
	return fmt.Sprintf("admit:%d:%d", salonID, specialistID)
}

type BookingService struct {
	repo           domain.Repository
	engine         *schedule.Engine
	locker         domain.Locker
	clock          domain.Clock
	eventBus       domain.EventPublisher
	sheetsWorker   domain.SyncWorker
	maxBookingDays int
	logger         *zerolog.Logger
}

func NewBookingService(
	repo domain.Repository,
	engine *schedule.Engine,
	locker domain.Locker,
	clock domain.Clock,
	eventBus domain.EventPublisher,
	sheetsWorker domain.SyncWorker,
	maxBookingDays int,
	logger *zerolog.Logger,
) *BookingService {
	if maxBookingDays <= 0 {
		maxBookingDays = models.DefaultMaxBookingDays
	}
	if clock == nil {
		clock = SystemClock{}
	}
	return &BookingService{
		repo:           repo,
		engine:         engine,
		locker:         locker,
		clock:          clock,
		eventBus:       eventBus,
		sheetsWorker:   sheetsWorker,
		maxBookingDays: maxBookingDays,
		logger:         logger,
	}
}

type resolved struct {
	salon      *models.Salon
	specialist *models.Specialist
	procedure  *models.Procedure
	price      decimal.Decimal
}

// resolve loads the booking references. Inactive salons and specialists,
// a specialist outside the salon and a procedure the specialist does not
// perform all read as not found.
func (s *BookingService) resolve(ctx context.Context, salonID, specialistID, procedureID int64) (*resolved, error) {
	salon, err := s.repo.GetSalon(ctx, salonID)
	if err != nil {
		return nil, err
	}
	if !salon.IsActive {
		return nil, fmt.Errorf("salon %d is closed: %w", salonID, domain.ErrNotFound)
	}
	specialist, err := s.repo.GetSpecialist(ctx, specialistID)
	if err != nil {
		return nil, err
	}
	if !specialist.IsActive {
		return nil, fmt.Errorf("specialist %d is inactive: %w", specialistID, domain.ErrNotFound)
	}
	procedure, err := s.repo.GetProcedure(ctx, procedureID)
	if err != nil {
		return nil, err
	}

	if !containsID(specialist.SalonIDs, salonID) {
		return nil, fmt.Errorf("specialist %d does not work in salon %d: %w", specialistID, salonID, domain.ErrNotFound)
	}
	if !containsID(specialist.ProcedureIDs, procedureID) {
		return nil, fmt.Errorf("specialist %d does not perform procedure %d: %w", specialistID, procedureID, domain.ErrNotFound)
	}

	// Цена салона, если задана, иначе базовая
	price := procedure.BasePrice
	offering, err := s.repo.GetOffering(ctx, salonID, procedureID)
	switch {
	case err == nil:
		price = offering.Price
	case !errors.Is(err, domain.ErrNotFound):
		return nil, err
	}

	return &resolved{salon: salon, specialist: specialist, procedure: procedure, price: price}, nil
}

// AvailableSlots returns free start times for the procedure on date.
func (s *BookingService) AvailableSlots(ctx context.Context, salonID, specialistID, procedureID int64, date time.Time) ([]time.Time, error) {
	r, err := s.resolve(ctx, salonID, specialistID, procedureID)
	if err != nil {
		return nil, err
	}

	started := time.Now()
	slots, err := s.engine.ComputeSlots(ctx, schedule.SlotQuery{
		SalonID:      salonID,
		SpecialistID: specialistID,
		Procedure:    r.procedure,
		Date:         date,
	}, s.clock.Now())
	if err != nil {
		s.logger.Error().Err(err).
			Int64("salon_id", salonID).
			Int64("specialist_id", specialistID).
			Str("date", date.Format(models.DateLayout)).
			Msg("slot computation failed")
		return nil, err
	}
	metrics.ObserveSlots(time.Since(started), len(slots))

	return slots, nil
}

// Admit books the procedure at req.StartAt if the interval is still free.
// Errors: domain.ErrNotFound, domain.ErrPastTime, domain.ErrConflict, domain.ErrInvalidInput.
func (s *BookingService) Admit(ctx context.Context, req domain.AdmitRequest) (*models.Appointment, error) {
	appt, err := s.admit(ctx, req)
	switch {
	case err == nil:
		metrics.IncAdmission(metrics.AdmissionAdmitted)
	case errors.Is(err, domain.ErrConflict):
		metrics.IncAdmission(metrics.AdmissionConflict)
	case errors.Is(err, domain.ErrPastTime):
		metrics.IncAdmission(metrics.AdmissionPastTime)
	case errors.Is(err, domain.ErrNotFound), errors.Is(err, domain.ErrInvalidInput):
		metrics.IncAdmission(metrics.AdmissionRejected)
	default:
		metrics.IncAdmission(metrics.AdmissionError)
	}
	return appt, err
}

func (s *BookingService) admit(ctx context.Context, req domain.AdmitRequest) (*models.Appointment, error) {
	name := strings.TrimSpace(req.Customer.Name)
	phone := strings.TrimSpace(req.Customer.Phone)
	if name == "" || phone == "" {
		return nil, fmt.Errorf("customer name and phone are required: %w", domain.ErrInvalidInput)
	}
	source, err := models.ParseSource(string(req.Source))
	if err != nil {
		return nil, fmt.Errorf("%v: %w", err, domain.ErrInvalidInput)
	}
	if req.StartAt.IsZero() {
		return nil, fmt.Errorf("start time is required: %w", domain.ErrInvalidInput)
	}
	// Интервалы хранятся с точностью до секунды, начало только на целую минуту
	if !req.StartAt.Truncate(time.Minute).Equal(req.StartAt) {
		return nil, fmt.Errorf("start time must be a whole minute: %w", domain.ErrInvalidInput)
	}

	r, err := s.resolve(ctx, req.SalonID, req.SpecialistID, req.ProcedureID)
	if err != nil {
		return nil, err
	}
	duration := r.procedure.Duration()
	if duration <= 0 {
		return nil, fmt.Errorf("procedure %d has no duration: %w", r.procedure.ID, domain.ErrInvalidInput)
	}

	now := s.clock.Now()
	if req.StartAt.Before(now) {
		return nil, domain.ErrPastTime
	}
	if req.StartAt.After(now.AddDate(0, 0, s.maxBookingDays)) {
		return nil, fmt.Errorf("start is more than %d days ahead: %w", s.maxBookingDays, domain.ErrInvalidInput)
	}

	priceFinal := r.price
	if req.PriceFinal != nil {
		if req.PriceFinal.IsNegative() {
			return nil, fmt.Errorf("final price is negative: %w", domain.ErrInvalidInput)
		}
		priceFinal = *req.PriceFinal
	}

	appt := &models.Appointment{
		SalonID:       req.SalonID,
		SpecialistID:  req.SpecialistID,
		ProcedureID:   req.ProcedureID,
		CustomerName:  name,
		Phone:         phone,
		Question:      strings.TrimSpace(req.Customer.Question),
		StartAt:       req.StartAt,
		EndAt:         req.StartAt.Add(duration),
		PriceOriginal: r.price,
		PriceFinal:    priceFinal,
		Source:        source,
		Status:        models.StatusNew,
	}

	// Одна запись к мастеру в салоне за раз
	release, err := s.locker.Lock(ctx, AdmissionKey(req.SalonID, req.SpecialistID))
	if err != nil {
		return nil, fmt.Errorf("acquire admission lock: %w", err)
	}
	defer release()

	if err := s.repo.CreateAppointmentWithLock(ctx, appt); err != nil {
		if !errors.Is(err, domain.ErrConflict) {
			s.logger.Error().Err(err).Int64("salon_id", appt.SalonID).Int64("specialist_id", appt.SpecialistID).Msg("admission failed")
		}
		return nil, err
	}

	s.logger.Info().
		Int64("appointment_id", appt.ID).
		Int64("salon_id", appt.SalonID).
		Int64("specialist_id", appt.SpecialistID).
		Time("start_at", appt.StartAt).
		Str("phone", logging.MaskPhone(appt.Phone)).
		Msg("appointment admitted")

	s.publishEvent(events.EventAppointmentCreated, appt)
	s.enqueueSync(ctx, appt, models.SyncTaskUpsert)

	return appt, nil
}

// Confirm moves a new appointment to confirmed, e.g. after a successful payment.
func (s *BookingService) Confirm(ctx context.Context, id int64, version int64) (*models.Appointment, error) {
	return s.transition(ctx, id, version, models.StatusConfirmed, events.EventAppointmentConfirmed)
}

// Cancel releases the appointment's interval.
func (s *BookingService) Cancel(ctx context.Context, id int64, version int64) (*models.Appointment, error) {
	return s.transition(ctx, id, version, models.StatusCanceled, events.EventAppointmentCanceled)
}

func (s *BookingService) transition(ctx context.Context, id, version int64, to models.Status, eventType string) (*models.Appointment, error) {
	appt, err := s.repo.GetAppointment(ctx, id)
	if err != nil {
		return nil, err
	}
	if !models.CanTransition(appt.Status, to) {
		return nil, fmt.Errorf("%s -> %s: %w", appt.Status, to, domain.ErrInvalidTransition)
	}
	if appt.Version != version {
		return nil, domain.ErrConcurrentModification
	}

	if err := s.repo.UpdateAppointmentStatusWithVersion(ctx, id, version, to); err != nil {
		return nil, err
	}
	metrics.IncTransition(string(to))

	updated, err := s.repo.GetAppointment(ctx, id)
	if err != nil {
		return nil, err
	}

	s.logger.Info().Int64("appointment_id", id).Str("status", string(to)).Msg("appointment status changed")
	s.publishEvent(eventType, updated)
	s.enqueueSync(ctx, updated, models.SyncTaskUpdateStatus)

	return updated, nil
}

func (s *BookingService) GetAppointment(ctx context.Context, id int64) (*models.Appointment, error) {
	return s.repo.GetAppointment(ctx, id)
}

func (s *BookingService) ListAppointments(ctx context.Context, from, to time.Time) ([]*models.Appointment, error) {
	if !from.Before(to) {
		return nil, fmt.Errorf("empty range: %w", domain.ErrInvalidInput)
	}
	return s.repo.ListAppointments(ctx, from, to)
}

func (s *BookingService) publishEvent(eventType string, appt *models.Appointment) {
	if s.eventBus == nil {
		return
	}

	if err := s.eventBus.PublishJSON(eventType, events.NewAppointmentPayload(appt)); err != nil {
		s.logger.Error().Err(err).Str("event_type", eventType).Int64("appointment_id", appt.ID).Msg("publish event error")
	}
}

func (s *BookingService) enqueueSync(ctx context.Context, appt *models.Appointment, taskType string) {
	if s.sheetsWorker == nil {
		return
	}

	var status models.Status
	if taskType == models.SyncTaskUpdateStatus {
		status = appt.Status
	}

	if err := s.sheetsWorker.EnqueueTask(ctx, taskType, appt.ID, appt, status); err != nil {
		s.logger.Error().Err(err).Int64("appointment_id", appt.ID).Str("task", taskType).Msg("sheets enqueue error")
	}
}

func containsID(ids []int64, id int64) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
