package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type Salon struct {
	ID        int64     `yaml:"id" json:"id"`
	Name      string    `yaml:"name" json:"name"`
	Address   string    `yaml:"address" json:"address"`
	Phone     string    `yaml:"phone" json:"phone"`
	IsActive  bool      `yaml:"is_active" json:"is_active"`
	CreatedAt time.Time `yaml:"-" json:"created_at"`
}

type Specialist struct {
	ID           int64     `yaml:"id" json:"id"`
	FullName     string    `yaml:"full_name" json:"full_name"`
	Bio          string    `yaml:"bio" json:"bio,omitempty"`
	IsActive     bool      `yaml:"is_active" json:"is_active"`
	SalonIDs     []int64   `yaml:"salons" json:"salon_ids,omitempty"`
	ProcedureIDs []int64   `yaml:"procedures" json:"procedure_ids,omitempty"`
	CreatedAt    time.Time `yaml:"-" json:"created_at"`
}

// Procedure is a bookable service with a fixed duration.
type Procedure struct {
	ID              int64           `yaml:"id" json:"id"`
	Title           string          `yaml:"title" json:"title"`
	Description     string          `yaml:"description" json:"description,omitempty"`
	DurationMinutes int             `yaml:"duration_minutes" json:"duration_minutes"`
	BasePrice       decimal.Decimal `yaml:"base_price" json:"base_price"`
}

func (p *Procedure) Duration() time.Duration {
	return time.Duration(p.DurationMinutes) * time.Minute
}

// ProcedureOffering is the price a salon charges for a procedure. It overrides
// the procedure base price; one offering per salon and procedure.
type ProcedureOffering struct {
	SalonID     int64           `json:"salon_id"`
	ProcedureID int64           `json:"procedure_id"`
	Price       decimal.Decimal `json:"price"`
}
