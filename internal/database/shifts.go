package database

import (
	"context"
	"fmt"
	"time"

	"beautycity/internal/models"
)

// CreateShift stores a shift; an identical shift already present is reused.
// Windows with start >= end are stored as is and skipped at slot computation.
func (db *DB) CreateShift(ctx context.Context, s *models.Shift) error {
	date := s.Date.Format(models.DateLayout)
	if s.StartTime >= s.EndTime {
		db.logger.Warn().
			Int64("salon_id", s.SalonID).
			Int64("specialist_id", s.SpecialistID).
			Str("date", date).
			Str("start", s.StartTime).
			Str("end", s.EndTime).
			Msg("Storing shift with empty window")
	}

	_, err := db.ExecContext(ctx,
		`INSERT OR IGNORE INTO shifts (salon_id, specialist_id, date, start_time, end_time) VALUES (?, ?, ?, ?, ?)`,
		s.SalonID, s.SpecialistID, date, s.StartTime, s.EndTime)
	if err != nil {
		return fmt.Errorf("failed to create shift: %w", err)
	}

	err = db.QueryRowContext(ctx,
		`SELECT id FROM shifts WHERE salon_id = ? AND specialist_id = ? AND date = ? AND start_time = ? AND end_time = ?`,
		s.SalonID, s.SpecialistID, date, s.StartTime, s.EndTime).Scan(&s.ID)
	if err != nil {
		return fmt.Errorf("failed to read shift id: %w", err)
	}
	return nil
}

func (db *DB) DeleteShift(ctx context.Context, id int64) error {
	if _, err := db.ExecContext(ctx, `DELETE FROM shifts WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete shift %d: %w", id, err)
	}
	return nil
}

// ListShifts returns the shifts of a specialist in a salon on the calendar date.
func (db *DB) ListShifts(ctx context.Context, salonID, specialistID int64, date time.Time) ([]*models.Shift, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT id, salon_id, specialist_id, date, start_time, end_time FROM shifts
         WHERE salon_id = ? AND specialist_id = ? AND date = ?
         ORDER BY start_time, end_time`,
		salonID, specialistID, date.Format(models.DateLayout))
	if err != nil {
		return nil, fmt.Errorf("failed to list shifts: %w", err)
	}
	defer rows.Close()

	var shifts []*models.Shift
	for rows.Next() {
		var (
			s   models.Shift
			day string
		)
		if err := rows.Scan(&s.ID, &s.SalonID, &s.SpecialistID, &day, &s.StartTime, &s.EndTime); err != nil {
			return nil, fmt.Errorf("failed to scan shift: %w", err)
		}
		if s.Date, err = time.Parse(models.DateLayout, day); err != nil {
			return nil, fmt.Errorf("shift %d has malformed date %q: %w", s.ID, day, err)
		}
		shifts = append(shifts, &s)
	}
	return shifts, rows.Err()
}
