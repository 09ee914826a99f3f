package models

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Status is the lifecycle state of an appointment.
type Status string

const (
	StatusNew       Status = "new"
	StatusConfirmed Status = "confirmed"
	StatusCanceled  Status = "canceled"
)

var transitions = map[Status][]Status{
	StatusNew:       {StatusConfirmed, StatusCanceled},
	StatusConfirmed: {StatusCanceled},
}

func ParseStatus(s string) (Status, error) {
	switch st := Status(s); st {
	case StatusNew, StatusConfirmed, StatusCanceled:
		return st, nil
	}
	return "", fmt.Errorf("unknown appointment status %q", s)
}

// CanTransition validates a status change. Canceled is terminal.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Active reports whether the appointment still occupies its interval.
func (s Status) Active() bool {
	return s != StatusCanceled
}

// Source is the channel an appointment came through.
type Source string

const (
	SourceWeb   Source = "web"
	SourcePhone Source = "phone"
)

func ParseSource(s string) (Source, error) {
	switch src := Source(s); src {
	case "":
		return SourceWeb, nil
	case SourceWeb, SourcePhone:
		return src, nil
	}
	return "", fmt.Errorf("unknown appointment source %q", s)
}

type Appointment struct {
	ID            int64           `json:"id"`
	SalonID       int64           `json:"salon_id"`
	SpecialistID  int64           `json:"specialist_id"`
	ProcedureID   int64           `json:"procedure_id"`
	CustomerName  string          `json:"customer_name"`
	Phone         string          `json:"phone"`
	Question      string          `json:"question,omitempty"`
	StartAt       time.Time       `json:"start_at"`
	EndAt         time.Time       `json:"end_at"`
	PriceOriginal decimal.Decimal `json:"price_original"`
	PriceFinal    decimal.Decimal `json:"price_final"`
	Source        Source          `json:"source"`
	Status        Status          `json:"status"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
	Version       int64           `json:"version"`
}

func (a *Appointment) Interval() Interval {
	return Interval{Start: a.StartAt, End: a.EndAt}
}
