package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"beautycity/internal/models"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// Catalog is the administrative data loaded from catalog YAML at start-up.
type Catalog struct {
	Salons      []models.Salon
	Specialists []models.Specialist
	Procedures  []models.Procedure
	Offerings   []models.ProcedureOffering
	Shifts      []models.Shift
}

type catalogFile struct {
	Salons      []models.Salon      `yaml:"salons"`
	Specialists []models.Specialist `yaml:"specialists"`
	Procedures  []procedureEntry    `yaml:"procedures"`
	Offerings   []offeringEntry     `yaml:"offerings"`
	Shifts      []shiftEntry        `yaml:"shifts"`
}

type procedureEntry struct {
	ID              int64  `yaml:"id"`
	Title           string `yaml:"title"`
	Description     string `yaml:"description"`
	DurationMinutes int    `yaml:"duration_minutes"`
	BasePrice       string `yaml:"base_price"`
}

// offeringEntry is a salon's own price for a procedure.
type offeringEntry struct {
	Salon     int64  `yaml:"salon"`
	Procedure int64  `yaml:"procedure"`
	Price     string `yaml:"price"`
}

// shiftEntry describes one shift or, with Until set, the same shift repeated
// daily through Until. Weekdays narrows the repetition ("mon", "tue", ...).
type shiftEntry struct {
	Salon      int64    `yaml:"salon"`
	Specialist int64    `yaml:"specialist"`
	Date       string   `yaml:"date"`
	Until      string   `yaml:"until"`
	Weekdays   []string `yaml:"weekdays"`
	Start      string   `yaml:"start"`
	End        string   `yaml:"end"`
}

var weekdayNames = map[string]time.Weekday{
	"sun": time.Sunday,
	"mon": time.Monday,
	"tue": time.Tuesday,
	"wed": time.Wednesday,
	"thu": time.Thursday,
	"fri": time.Friday,
	"sat": time.Saturday,
}

// maxShiftRepeatDays caps a single repeated entry.
const maxShiftRepeatDays = 366

func LoadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseCatalog(data)
}

func ParseCatalog(data []byte) (*Catalog, error) {
	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}

	catalog := &Catalog{
		Salons:      file.Salons,
		Specialists: file.Specialists,
	}

	for _, p := range file.Procedures {
		proc, err := p.toModel()
		if err != nil {
			return nil, err
		}
		catalog.Procedures = append(catalog.Procedures, proc)
	}

	for _, o := range file.Offerings {
		offering, err := o.toModel()
		if err != nil {
			return nil, err
		}
		catalog.Offerings = append(catalog.Offerings, offering)
	}

	for i, e := range file.Shifts {
		shifts, err := e.expand()
		if err != nil {
			return nil, fmt.Errorf("shift #%d: %w", i+1, err)
		}
		catalog.Shifts = append(catalog.Shifts, shifts...)
	}

	if err := catalog.Validate(); err != nil {
		return nil, err
	}
	return catalog, nil
}

func (p procedureEntry) toModel() (models.Procedure, error) {
	price := decimal.Zero
	if p.BasePrice != "" {
		var err error
		price, err = decimal.NewFromString(p.BasePrice)
		if err != nil {
			return models.Procedure{}, fmt.Errorf("procedure %d: invalid base_price %q: %w", p.ID, p.BasePrice, err)
		}
	}
	if price.IsNegative() {
		return models.Procedure{}, fmt.Errorf("procedure %d: negative base_price", p.ID)
	}
	return models.Procedure{
		ID:              p.ID,
		Title:           p.Title,
		Description:     p.Description,
		DurationMinutes: p.DurationMinutes,
		BasePrice:       price,
	}, nil
}

func (o offeringEntry) toModel() (models.ProcedureOffering, error) {
	price, err := decimal.NewFromString(o.Price)
	if err != nil {
		return models.ProcedureOffering{}, fmt.Errorf("offering %d/%d: invalid price %q: %w", o.Salon, o.Procedure, o.Price, err)
	}
	if price.IsNegative() {
		return models.ProcedureOffering{}, fmt.Errorf("offering %d/%d: negative price", o.Salon, o.Procedure)
	}
	return models.ProcedureOffering{SalonID: o.Salon, ProcedureID: o.Procedure, Price: price}, nil
}

func (e shiftEntry) expand() ([]models.Shift, error) {
	from, err := time.Parse(models.DateLayout, e.Date)
	if err != nil {
		return nil, fmt.Errorf("invalid date %q: %w", e.Date, err)
	}
	until := from
	if e.Until != "" {
		until, err = time.Parse(models.DateLayout, e.Until)
		if err != nil {
			return nil, fmt.Errorf("invalid until %q: %w", e.Until, err)
		}
		if until.Before(from) {
			return nil, fmt.Errorf("until %s is before date %s", e.Until, e.Date)
		}
		if until.Sub(from) > maxShiftRepeatDays*24*time.Hour {
			return nil, fmt.Errorf("repeat range %s..%s is too long", e.Date, e.Until)
		}
	}

	days := make(map[time.Weekday]bool, len(e.Weekdays))
	for _, name := range e.Weekdays {
		wd, ok := weekdayNames[strings.ToLower(name)]
		if !ok {
			return nil, fmt.Errorf("unknown weekday %q", name)
		}
		days[wd] = true
	}

	var out []models.Shift
	for d := from; !d.After(until); d = d.AddDate(0, 0, 1) {
		if len(days) > 0 && !days[d.Weekday()] {
			continue
		}
		out = append(out, models.Shift{
			SalonID:      e.Salon,
			SpecialistID: e.Specialist,
			Date:         d,
			StartTime:    e.Start,
			EndTime:      e.End,
		})
	}
	return out, nil
}

// Validate checks ids and references. Shift clock values are not checked
// here: a malformed shift is skipped by the slot engine with a warning.
func (c *Catalog) Validate() error {
	salons := make(map[int64]bool)
	for _, s := range c.Salons {
		if s.ID == 0 {
			return fmt.Errorf("salon '%s' has invalid ID 0", s.Name)
		}
		if salons[s.ID] {
			return fmt.Errorf("duplicate salon ID found: %d", s.ID)
		}
		salons[s.ID] = true
	}

	specialists := make(map[int64]bool)
	for _, s := range c.Specialists {
		if s.ID == 0 {
			return fmt.Errorf("specialist '%s' has invalid ID 0", s.FullName)
		}
		if specialists[s.ID] {
			return fmt.Errorf("duplicate specialist ID found: %d", s.ID)
		}
		specialists[s.ID] = true
		for _, salonID := range s.SalonIDs {
			if !salons[salonID] {
				return fmt.Errorf("specialist %d references unknown salon %d", s.ID, salonID)
			}
		}
	}

	procedures := make(map[int64]bool)
	for _, p := range c.Procedures {
		if p.ID == 0 {
			return fmt.Errorf("procedure '%s' has invalid ID 0", p.Title)
		}
		if procedures[p.ID] {
			return fmt.Errorf("duplicate procedure ID found: %d", p.ID)
		}
		if p.DurationMinutes < 0 {
			return fmt.Errorf("procedure %d has negative duration", p.ID)
		}
		procedures[p.ID] = true
	}

	for _, s := range c.Specialists {
		for _, procedureID := range s.ProcedureIDs {
			if !procedures[procedureID] {
				return fmt.Errorf("specialist %d references unknown procedure %d", s.ID, procedureID)
			}
		}
	}

	offered := make(map[[2]int64]bool)
	for _, o := range c.Offerings {
		if !salons[o.SalonID] {
			return fmt.Errorf("offering references unknown salon %d", o.SalonID)
		}
		if !procedures[o.ProcedureID] {
			return fmt.Errorf("offering references unknown procedure %d", o.ProcedureID)
		}
		key := [2]int64{o.SalonID, o.ProcedureID}
		if offered[key] {
			return fmt.Errorf("duplicate offering for salon %d and procedure %d", o.SalonID, o.ProcedureID)
		}
		offered[key] = true
	}

	for _, sh := range c.Shifts {
		if !salons[sh.SalonID] {
			return fmt.Errorf("shift on %s references unknown salon %d", sh.Date.Format(models.DateLayout), sh.SalonID)
		}
		if !specialists[sh.SpecialistID] {
			return fmt.Errorf("shift on %s references unknown specialist %d", sh.Date.Format(models.DateLayout), sh.SpecialistID)
		}
	}
	return nil
}
