package domain

import (
	"context"
	"time"

	"beautycity/internal/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

type ShiftStore interface {
	ListShifts(ctx context.Context, salonID, specialistID int64, date time.Time) ([]*models.Shift, error)
}

// AppointmentStore returns non-canceled appointments of a specialist in a salon
// whose interval intersects [from, to).
type AppointmentStore interface {
	ListActiveAppointments(ctx context.Context, salonID, specialistID int64, from, to time.Time) ([]*models.Appointment, error)
}

type CatalogStore interface {
	GetSalon(ctx context.Context, id int64) (*models.Salon, error)
	GetSpecialist(ctx context.Context, id int64) (*models.Specialist, error)
	GetProcedure(ctx context.Context, id int64) (*models.Procedure, error)
	ListSalons(ctx context.Context) ([]*models.Salon, error)
	ListSpecialists(ctx context.Context, salonID int64) ([]*models.Specialist, error)
	ListProcedures(ctx context.Context) ([]*models.Procedure, error)
}

type Repository interface {
	ShiftStore
	AppointmentStore
	CatalogStore
	// GetOffering returns the salon's own price for a procedure or ErrNotFound.
	GetOffering(ctx context.Context, salonID, procedureID int64) (*models.ProcedureOffering, error)
	GetAppointment(ctx context.Context, id int64) (*models.Appointment, error)
	CreateAppointmentWithLock(ctx context.Context, appt *models.Appointment) error
	UpdateAppointmentStatusWithVersion(ctx context.Context, id int64, version int64, status models.Status) error
	ListAppointments(ctx context.Context, from, to time.Time) ([]*models.Appointment, error)
}

type Clock interface {
	Now() time.Time
}

// Locker serializes admissions by key. The returned func releases the lock.
type Locker interface {
	Lock(ctx context.Context, key string) (func(), error)
}

// RateLimiter counts hits per key in a fixed window and reports whether the
// current hit is still within limit.
type RateLimiter interface {
	CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

type EventPublisher interface {
	PublishJSON(eventType string, payload interface{}) error
}

type SheetsWriter interface {
	UpsertAppointment(ctx context.Context, appt *models.Appointment) error
	UpdateAppointmentStatus(ctx context.Context, appointmentID int64, status models.Status) error
}

type SyncWorker interface {
	EnqueueTask(ctx context.Context, taskType string, appointmentID int64, appt *models.Appointment, status models.Status) error
}

type TelegramSender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

type BookingService interface {
	AvailableSlots(ctx context.Context, salonID, specialistID, procedureID int64, date time.Time) ([]time.Time, error)
	Admit(ctx context.Context, req AdmitRequest) (*models.Appointment, error)
	Confirm(ctx context.Context, id int64, version int64) (*models.Appointment, error)
	Cancel(ctx context.Context, id int64, version int64) (*models.Appointment, error)
	GetAppointment(ctx context.Context, id int64) (*models.Appointment, error)
	ListAppointments(ctx context.Context, from, to time.Time) ([]*models.Appointment, error)
}
