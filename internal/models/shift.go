package models

import (
	"fmt"
	"time"
)

// Shift is a working window of a specialist in a salon on one date.
// StartTime and EndTime are wall-clock values in ClockLayout.
type Shift struct {
	ID           int64     `json:"id"`
	SalonID      int64     `json:"salon_id"`
	SpecialistID int64     `json:"specialist_id"`
	Date         time.Time `json:"date"`
	StartTime    string    `json:"start_time"`
	EndTime      string    `json:"end_time"`
}

// Bounds places the shift on its date in loc.
func (s *Shift) Bounds(loc *time.Location) (time.Time, time.Time, error) {
	start, err := clockOnDate(s.Date, s.StartTime, loc)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("shift %d start: %w", s.ID, err)
	}
	end, err := clockOnDate(s.Date, s.EndTime, loc)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("shift %d end: %w", s.ID, err)
	}
	return start, end, nil
}

func clockOnDate(date time.Time, clock string, loc *time.Location) (time.Time, error) {
	t, err := time.Parse(ClockLayout, clock)
	if err != nil {
		return time.Time{}, err
	}
	y, m, d := date.Date()
	return time.Date(y, m, d, t.Hour(), t.Minute(), 0, 0, loc), nil
}
