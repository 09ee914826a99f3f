package domain

import (
	"time"

	"beautycity/internal/models"

	"github.com/shopspring/decimal"
)

type Customer struct {
	Name     string
	Phone    string
	Question string
}

// AdmitRequest carries everything needed to book a procedure.
// PriceFinal is computed by the caller; nil means the procedure base price.
type AdmitRequest struct {
	SalonID      int64
	SpecialistID int64
	ProcedureID  int64
	StartAt      time.Time
	Customer     Customer
	PriceFinal   *decimal.Decimal
	Source       models.Source
}
