package schedule

import (
	"context"
	"fmt"
	"sort"
	"time"

	"beautycity/internal/domain"
	"beautycity/internal/models"

	"github.com/rs/zerolog"
)

type Config struct {
	// Step is the distance between candidate start times.
	Step time.Duration
	// Location places shift wall-clock times and the calendar day.
	Location *time.Location
}

// SlotQuery identifies whose day is being asked for and for what procedure.
type SlotQuery struct {
	SalonID      int64
	SpecialistID int64
	Procedure    *models.Procedure
	Date         time.Time
}

// Engine computes free start times from shifts and active appointments.
// It never writes and never invents availability.
type Engine struct {
	shifts domain.ShiftStore
	appts  domain.AppointmentStore
	cfg    Config
	logger *zerolog.Logger
}

func NewEngine(shifts domain.ShiftStore, appts domain.AppointmentStore, cfg Config, logger *zerolog.Logger) *Engine {
	if cfg.Step <= 0 {
		cfg.Step = models.DefaultSlotStep
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	return &Engine{shifts: shifts, appts: appts, cfg: cfg, logger: logger}
}

func (e *Engine) Step() time.Duration {
	return e.cfg.Step
}

func (e *Engine) Location() *time.Location {
	return e.cfg.Location
}

// DayBounds returns [00:00, next 00:00) of date's calendar day in the engine location.
func (e *Engine) DayBounds(date time.Time) (time.Time, time.Time) {
	y, m, d := date.Date()
	start := time.Date(y, m, d, 0, 0, 0, 0, e.cfg.Location)
	return start, start.AddDate(0, 0, 1)
}

// ComputeSlots returns sorted unique start times on q.Date at which q.Procedure
// fits inside a shift, does not start before now and does not overlap an
// active appointment of the same specialist in the same salon.
func (e *Engine) ComputeSlots(ctx context.Context, q SlotQuery, now time.Time) ([]time.Time, error) {
	slots := []time.Time{}
	if q.Procedure == nil {
		return nil, fmt.Errorf("procedure is required: %w", domain.ErrInvalidInput)
	}
	duration := q.Procedure.Duration()
	if duration <= 0 {
		return slots, nil
	}

	shifts, err := e.shifts.ListShifts(ctx, q.SalonID, q.SpecialistID, q.Date)
	if err != nil {
		return nil, fmt.Errorf("load shifts: %w", err)
	}
	if len(shifts) == 0 {
		return slots, nil
	}

	dayStart, dayEnd := e.DayBounds(q.Date)
	appts, err := e.appts.ListActiveAppointments(ctx, q.SalonID, q.SpecialistID, dayStart, dayEnd)
	if err != nil {
		return nil, fmt.Errorf("load appointments: %w", err)
	}
	busy := make([]models.Interval, 0, len(appts))
	for _, a := range appts {
		if !a.Status.Active() {
			continue
		}
		busy = append(busy, a.Interval())
	}

	seen := make(map[int64]struct{})
	for _, shift := range shifts {
		start, end, err := e.shiftWindow(shift)
		if err != nil {
			e.logger.Warn().
				Err(err).
				Int64("shift_id", shift.ID).
				Int64("salon_id", shift.SalonID).
				Int64("specialist_id", shift.SpecialistID).
				Msg("Skipping shift")
			continue
		}

		for _, c := range Candidates(start, end, duration, e.cfg.Step, busy, now) {
			key := c.UnixNano()
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			slots = append(slots, c)
		}
	}

	sort.Slice(slots, func(i, j int) bool { return slots[i].Before(slots[j]) })
	return slots, nil
}

func (e *Engine) shiftWindow(shift *models.Shift) (time.Time, time.Time, error) {
	start, end, err := shift.Bounds(e.cfg.Location)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: %v", domain.ErrInvalidShift, err)
	}
	if !start.Before(end) {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: start %s is not before end %s",
			domain.ErrInvalidShift, shift.StartTime, shift.EndTime)
	}
	return start, end, nil
}

// Candidates enumerates start times from windowStart in step increments while
// the whole [t, t+duration) still fits before windowEnd, dropping those before
// now and those overlapping busy.
func Candidates(windowStart, windowEnd time.Time, duration, step time.Duration, busy []models.Interval, now time.Time) []time.Time {
	if duration <= 0 || step <= 0 {
		return nil
	}

	var out []time.Time
	for t := windowStart; !t.Add(duration).After(windowEnd); t = t.Add(step) {
		if t.Before(now) {
			continue
		}
		if models.AnyOverlap(models.Interval{Start: t, End: t.Add(duration)}, busy) {
			continue
		}
		out = append(out, t)
	}
	return out
}
