package events

import (
	"encoding/json"
	"sync"
	"time"

	"beautycity/internal/models"

	"github.com/rs/zerolog"
)

const (
	EventAppointmentCreated   = "appointment_created"
	EventAppointmentConfirmed = "appointment_confirmed"
	EventAppointmentCanceled  = "appointment_canceled"
)

// AppointmentEventPayload is the appointment snapshot sent to subscribers.
type AppointmentEventPayload struct {
	AppointmentID int64     `json:"appointment_id"`
	SalonID       int64     `json:"salon_id"`
	SpecialistID  int64     `json:"specialist_id"`
	ProcedureID   int64     `json:"procedure_id"`
	CustomerName  string    `json:"customer_name"`
	Phone         string    `json:"phone"`
	Question      string    `json:"question,omitempty"`
	StartAt       time.Time `json:"start_at"`
	EndAt         time.Time `json:"end_at"`
	PriceFinal    string    `json:"price_final"`
	Source        string    `json:"source"`
	Status        string    `json:"status"`
}

func NewAppointmentPayload(a *models.Appointment) AppointmentEventPayload {
	return AppointmentEventPayload{
		AppointmentID: a.ID,
		SalonID:       a.SalonID,
		SpecialistID:  a.SpecialistID,
		ProcedureID:   a.ProcedureID,
		CustomerName:  a.CustomerName,
		Phone:         a.Phone,
		Question:      a.Question,
		StartAt:       a.StartAt,
		EndAt:         a.EndAt,
		PriceFinal:    a.PriceFinal.StringFixed(2),
		Source:        string(a.Source),
		Status:        string(a.Status),
	}
}

// Event represents a lightweight domain event.
type Event struct {
	Type      string
	Payload   []byte
	CreatedAt time.Time
}

// Decode unmarshals the JSON payload into v.
func (e *Event) Decode(v interface{}) error {
	return json.Unmarshal(e.Payload, v)
}

// EventHandler reacts to an event.
type EventHandler func(event *Event) error

// EventBus provides in-process pub/sub for events.
type EventBus struct {
	subscribers map[string][]EventHandler
	mu          sync.RWMutex
	logger      *zerolog.Logger
}

// NewEventBus constructs an empty bus. Handler errors are logged when logger is set.
func NewEventBus(logger *zerolog.Logger) *EventBus {
	return &EventBus{subscribers: make(map[string][]EventHandler), logger: logger}
}

// Subscribe registers a handler for a given event type.
func (b *EventBus) Subscribe(eventType string, handler EventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[eventType] = append(b.subscribers[eventType], handler)
}

// Publish notifies subscribers of the event type.
func (b *EventBus) Publish(event *Event) {
	b.mu.RLock()
	handlers := append([]EventHandler(nil), b.subscribers[event.Type]...)
	b.mu.RUnlock()

	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	// Handlers run synchronously; caller decides concurrency model.
	for _, handler := range handlers {
		if err := handler(event); err != nil && b.logger != nil {
			b.logger.Warn().Err(err).Str("event", event.Type).Msg("Event handler failed")
		}
	}
}

// PublishJSON serializes the payload and publishes an event.
func (b *EventBus) PublishJSON(eventType string, payload interface{}) error {
	if b == nil {
		return nil
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	b.Publish(&Event{Type: eventType, Payload: raw, CreatedAt: time.Now()})
	return nil
}
