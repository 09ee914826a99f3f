package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"beautycity/internal/domain"
	"beautycity/internal/models"

	"github.com/shopspring/decimal"
)

const appointmentColumns = `id, salon_id, specialist_id, procedure_id, customer_name, phone, question,
        start_at, end_at, price_original, price_final, source, status, created_at, updated_at, version`

type querier interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanAppointment(row rowScanner) (*models.Appointment, error) {
	var (
		a                     models.Appointment
		startAt, endAt        int64
		priceOrig, priceFinal string
		source, status        string
	)
	err := row.Scan(
		&a.ID, &a.SalonID, &a.SpecialistID, &a.ProcedureID, &a.CustomerName, &a.Phone, &a.Question,
		&startAt, &endAt, &priceOrig, &priceFinal, &source, &status, &a.CreatedAt, &a.UpdatedAt, &a.Version,
	)
	if err != nil {
		return nil, err
	}

	a.StartAt = time.Unix(startAt, 0)
	a.EndAt = time.Unix(endAt, 0)
	a.Source = models.Source(source)
	if a.Status, err = models.ParseStatus(status); err != nil {
		return nil, fmt.Errorf("appointment %d: %w", a.ID, err)
	}
	if a.PriceOriginal, err = decimal.NewFromString(priceOrig); err != nil {
		return nil, fmt.Errorf("appointment %d price_original: %w", a.ID, err)
	}
	if a.PriceFinal, err = decimal.NewFromString(priceFinal); err != nil {
		return nil, fmt.Errorf("appointment %d price_final: %w", a.ID, err)
	}
	return &a, nil
}

// listActive is the single lookup behind both slot computation and the
// admission check. The SQL range is only a prefilter; callers decide
// overlap with models.AnyOverlap.
func listActive(ctx context.Context, q querier, salonID, specialistID int64, from, to time.Time) ([]*models.Appointment, error) {
	query := `SELECT ` + appointmentColumns + ` FROM appointments
              WHERE salon_id = ? AND specialist_id = ? AND status != ?
              AND start_at < ? AND end_at > ?
              ORDER BY start_at`
	rows, err := q.QueryContext(ctx, query,
		salonID, specialistID, string(models.StatusCanceled), to.Unix(), from.Unix())
	if err != nil {
		return nil, fmt.Errorf("failed to list active appointments: %w", err)
	}
	defer rows.Close()

	var appts []*models.Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan appointment: %w", err)
		}
		appts = append(appts, a)
	}
	return appts, rows.Err()
}

func (db *DB) ListActiveAppointments(ctx context.Context, salonID, specialistID int64, from, to time.Time) ([]*models.Appointment, error) {
	return listActive(ctx, db, salonID, specialistID, from, to)
}

// CreateAppointmentWithLock re-checks the interval and inserts in one
// IMMEDIATE transaction. Returns domain.ErrConflict on overlap.
// Times are stored in whole seconds, so fractional ones are rejected.
func (db *DB) CreateAppointmentWithLock(ctx context.Context, appt *models.Appointment) error {
	if appt.StartAt.Nanosecond() != 0 || appt.EndAt.Nanosecond() != 0 {
		return fmt.Errorf("appointment times must be whole seconds: %w", domain.ErrInvalidInput)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// 1. Check the interval inside the transaction
	active, err := listActive(ctx, tx, appt.SalonID, appt.SpecialistID, appt.StartAt, appt.EndAt)
	if err != nil {
		return fmt.Errorf("failed to check interval in tx: %w", err)
	}
	busy := make([]models.Interval, 0, len(active))
	for _, a := range active {
		busy = append(busy, a.Interval())
	}
	if models.AnyOverlap(appt.Interval(), busy) {
		return domain.ErrConflict
	}

	// 2. Create appointment
	if appt.Status == "" {
		appt.Status = models.StatusNew
	}
	if appt.Source == "" {
		appt.Source = models.SourceWeb
	}
	now := time.Now()
	result, err := tx.ExecContext(ctx, `INSERT INTO appointments (
                salon_id, specialist_id, procedure_id, customer_name, phone, question,
                start_at, end_at, price_original, price_final, source, status, created_at, updated_at, version
            ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		appt.SalonID,
		appt.SpecialistID,
		appt.ProcedureID,
		appt.CustomerName,
		appt.Phone,
		appt.Question,
		appt.StartAt.Unix(),
		appt.EndAt.Unix(),
		appt.PriceOriginal.String(),
		appt.PriceFinal.String(),
		string(appt.Source),
		string(appt.Status),
		now,
		now,
		1,
	)
	if err != nil {
		return fmt.Errorf("failed to insert appointment in tx: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id in tx: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit appointment: %w", err)
	}

	appt.ID = id
	appt.CreatedAt = now
	appt.UpdatedAt = now
	appt.Version = 1
	return nil
}

func (db *DB) GetAppointment(ctx context.Context, id int64) (*models.Appointment, error) {
	row := db.QueryRowContext(ctx, `SELECT `+appointmentColumns+` FROM appointments WHERE id = ?`, id)
	a, err := scanAppointment(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("appointment %d: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get appointment: %w", err)
	}
	return a, nil
}

func (db *DB) UpdateAppointmentStatusWithVersion(ctx context.Context, id, fromVersion int64, status models.Status) error {
	query := `UPDATE appointments SET status = ?, version = version + 1, updated_at = ? WHERE id = ? AND version = ?`
	result, err := db.ExecContext(ctx, query, string(status), time.Now(), id, fromVersion)
	if err != nil {
		return fmt.Errorf("failed to update appointment status: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return domain.ErrConcurrentModification
	}
	return nil
}

// ListAppointments returns all appointments starting in [from, to), canceled included.
func (db *DB) ListAppointments(ctx context.Context, from, to time.Time) ([]*models.Appointment, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT `+appointmentColumns+` FROM appointments WHERE start_at >= ? AND start_at < ? ORDER BY start_at, id`,
		from.Unix(), to.Unix())
	if err != nil {
		return nil, fmt.Errorf("failed to list appointments: %w", err)
	}
	defer rows.Close()

	var appts []*models.Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan appointment: %w", err)
		}
		appts = append(appts, a)
	}
	return appts, rows.Err()
}
