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

func (db *DB) UpsertSalon(ctx context.Context, s *models.Salon) error {
	query := `INSERT INTO salons (id, name, address, phone, is_active) VALUES (?, ?, ?, ?, ?)
              ON CONFLICT(id) DO UPDATE SET name = excluded.name, address = excluded.address,
              phone = excluded.phone, is_active = excluded.is_active`
	if _, err := db.ExecContext(ctx, query, s.ID, s.Name, s.Address, s.Phone, s.IsActive); err != nil {
		return fmt.Errorf("failed to upsert salon %d: %w", s.ID, err)
	}
	return nil
}

// UpsertSpecialist stores the specialist and replaces its salons and procedures.
func (db *DB) UpsertSpecialist(ctx context.Context, s *models.Specialist) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	query := `INSERT INTO specialists (id, full_name, bio, is_active) VALUES (?, ?, ?, ?)
              ON CONFLICT(id) DO UPDATE SET full_name = excluded.full_name, bio = excluded.bio,
              is_active = excluded.is_active`
	if _, err := tx.ExecContext(ctx, query, s.ID, s.FullName, s.Bio, s.IsActive); err != nil {
		return fmt.Errorf("failed to upsert specialist %d: %w", s.ID, err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM specialist_salons WHERE specialist_id = ?`, s.ID); err != nil {
		return fmt.Errorf("failed to reset salons of specialist %d: %w", s.ID, err)
	}
	for _, salonID := range s.SalonIDs {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO specialist_salons (specialist_id, salon_id) VALUES (?, ?)`, s.ID, salonID); err != nil {
			return fmt.Errorf("failed to link specialist %d to salon %d: %w", s.ID, salonID, err)
		}
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM specialist_procedures WHERE specialist_id = ?`, s.ID); err != nil {
		return fmt.Errorf("failed to reset procedures of specialist %d: %w", s.ID, err)
	}
	for _, procedureID := range s.ProcedureIDs {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO specialist_procedures (specialist_id, procedure_id) VALUES (?, ?)`, s.ID, procedureID); err != nil {
			return fmt.Errorf("failed to link specialist %d to procedure %d: %w", s.ID, procedureID, err)
		}
	}

	return tx.Commit()
}

func (db *DB) UpsertProcedure(ctx context.Context, p *models.Procedure) error {
	minutes := p.DurationMinutes
	if minutes == 0 {
		minutes = models.DefaultProcedureMinutes
	}
	query := `INSERT INTO procedures (id, title, description, duration_minutes, base_price) VALUES (?, ?, ?, ?, ?)
              ON CONFLICT(id) DO UPDATE SET title = excluded.title, description = excluded.description,
              duration_minutes = excluded.duration_minutes, base_price = excluded.base_price`
	if _, err := db.ExecContext(ctx, query, p.ID, p.Title, p.Description, minutes, p.BasePrice.String()); err != nil {
		return fmt.Errorf("failed to upsert procedure %d: %w", p.ID, err)
	}
	p.DurationMinutes = minutes
	return nil
}

func (db *DB) UpsertOffering(ctx context.Context, o *models.ProcedureOffering) error {
	query := `INSERT INTO procedure_offerings (salon_id, procedure_id, price) VALUES (?, ?, ?)
              ON CONFLICT(salon_id, procedure_id) DO UPDATE SET price = excluded.price`
	if _, err := db.ExecContext(ctx, query, o.SalonID, o.ProcedureID, o.Price.String()); err != nil {
		return fmt.Errorf("failed to upsert offering %d/%d: %w", o.SalonID, o.ProcedureID, err)
	}
	return nil
}

// GetOffering returns the salon's own price for a procedure, ErrNotFound when
// the salon charges the base price.
func (db *DB) GetOffering(ctx context.Context, salonID, procedureID int64) (*models.ProcedureOffering, error) {
	var price string
	err := db.QueryRowContext(ctx,
		`SELECT price FROM procedure_offerings WHERE salon_id = ? AND procedure_id = ?`, salonID, procedureID).
		Scan(&price)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("offering %d/%d: %w", salonID, procedureID, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get offering: %w", err)
	}

	o := &models.ProcedureOffering{SalonID: salonID, ProcedureID: procedureID}
	if o.Price, err = decimal.NewFromString(price); err != nil {
		return nil, fmt.Errorf("offering %d/%d has malformed price %q: %w", salonID, procedureID, price, err)
	}
	return o, nil
}

func (db *DB) GetSalon(ctx context.Context, id int64) (*models.Salon, error) {
	var s models.Salon
	err := db.QueryRowContext(ctx,
		`SELECT id, name, address, phone, is_active, created_at FROM salons WHERE id = ?`, id).
		Scan(&s.ID, &s.Name, &s.Address, &s.Phone, &s.IsActive, &s.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("salon %d: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get salon: %w", err)
	}
	return &s, nil
}

func (db *DB) GetSpecialist(ctx context.Context, id int64) (*models.Specialist, error) {
	var s models.Specialist
	err := db.QueryRowContext(ctx,
		`SELECT id, full_name, bio, is_active, created_at FROM specialists WHERE id = ?`, id).
		Scan(&s.ID, &s.FullName, &s.Bio, &s.IsActive, &s.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("specialist %d: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get specialist: %w", err)
	}

	if s.SalonIDs, err = db.queryIDs(ctx,
		`SELECT salon_id FROM specialist_salons WHERE specialist_id = ? ORDER BY salon_id`, id); err != nil {
		return nil, fmt.Errorf("failed to get salons of specialist: %w", err)
	}
	if s.ProcedureIDs, err = db.queryIDs(ctx,
		`SELECT procedure_id FROM specialist_procedures WHERE specialist_id = ? ORDER BY procedure_id`, id); err != nil {
		return nil, fmt.Errorf("failed to get procedures of specialist: %w", err)
	}
	return &s, nil
}

func (db *DB) queryIDs(ctx context.Context, query string, args ...interface{}) ([]int64, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (db *DB) GetProcedure(ctx context.Context, id int64) (*models.Procedure, error) {
	var (
		p     models.Procedure
		price string
	)
	err := db.QueryRowContext(ctx,
		`SELECT id, title, description, duration_minutes, base_price FROM procedures WHERE id = ?`, id).
		Scan(&p.ID, &p.Title, &p.Description, &p.DurationMinutes, &price)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("procedure %d: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get procedure: %w", err)
	}
	if p.BasePrice, err = decimal.NewFromString(price); err != nil {
		return nil, fmt.Errorf("procedure %d has malformed price %q: %w", id, price, err)
	}
	return &p, nil
}

// ListSalons возвращает активные салоны
func (db *DB) ListSalons(ctx context.Context) ([]*models.Salon, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT id, name, address, phone, is_active, created_at FROM salons WHERE is_active = 1 ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list salons: %w", err)
	}
	defer rows.Close()

	var salons []*models.Salon
	for rows.Next() {
		var s models.Salon
		if err := rows.Scan(&s.ID, &s.Name, &s.Address, &s.Phone, &s.IsActive, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan salon: %w", err)
		}
		salons = append(salons, &s)
	}
	return salons, rows.Err()
}

// ListSpecialists возвращает активных мастеров; salonID=0 означает все салоны
func (db *DB) ListSpecialists(ctx context.Context, salonID int64) ([]*models.Specialist, error) {
	query := `SELECT id, full_name, bio, is_active, created_at FROM specialists WHERE is_active = 1 ORDER BY full_name`
	args := []interface{}{}
	if salonID != 0 {
		query = `SELECT s.id, s.full_name, s.bio, s.is_active, s.created_at
                 FROM specialists s JOIN specialist_salons ss ON ss.specialist_id = s.id
                 WHERE s.is_active = 1 AND ss.salon_id = ? ORDER BY s.full_name`
		args = append(args, salonID)
	}

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list specialists: %w", err)
	}
	defer rows.Close()

	var specialists []*models.Specialist
	for rows.Next() {
		var s models.Specialist
		if err := rows.Scan(&s.ID, &s.FullName, &s.Bio, &s.IsActive, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan specialist: %w", err)
		}
		specialists = append(specialists, &s)
	}
	return specialists, rows.Err()
}

func (db *DB) ListProcedures(ctx context.Context) ([]*models.Procedure, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT id, title, description, duration_minutes, base_price FROM procedures ORDER BY title`)
	if err != nil {
		return nil, fmt.Errorf("failed to list procedures: %w", err)
	}
	defer rows.Close()

	var procedures []*models.Procedure
	for rows.Next() {
		var (
			p     models.Procedure
			price string
		)
		if err := rows.Scan(&p.ID, &p.Title, &p.Description, &p.DurationMinutes, &price); err != nil {
			return nil, fmt.Errorf("failed to scan procedure: %w", err)
		}
		if p.BasePrice, err = decimal.NewFromString(price); err != nil {
			return nil, fmt.Errorf("procedure %d has malformed price %q: %w", p.ID, price, err)
		}
		procedures = append(procedures, &p)
	}
	return procedures, rows.Err()
}

// SyncCatalog upserts salons, procedures, specialists and salon prices and adds
// missing shifts. Procedures go before specialists, whose links reference them.
func (db *DB) SyncCatalog(
	ctx context.Context,
	salons []models.Salon,
	specialists []models.Specialist,
	procedures []models.Procedure,
	offerings []models.ProcedureOffering,
	shifts []models.Shift,
) error {
	for i := range salons {
		if err := db.UpsertSalon(ctx, &salons[i]); err != nil {
			return err
		}
	}
	for i := range procedures {
		if err := db.UpsertProcedure(ctx, &procedures[i]); err != nil {
			return err
		}
	}
	for i := range specialists {
		if err := db.UpsertSpecialist(ctx, &specialists[i]); err != nil {
			return err
		}
	}
	for i := range offerings {
		if err := db.UpsertOffering(ctx, &offerings[i]); err != nil {
			return err
		}
	}
	for i := range shifts {
		if err := db.CreateShift(ctx, &shifts[i]); err != nil {
			return err
		}
	}

	db.logger.Info().
		Int("salons", len(salons)).
		Int("specialists", len(specialists)).
		Int("procedures", len(procedures)).
		Int("offerings", len(offerings)).
		Int("shifts", len(shifts)).
		Time("synced_at", time.Now()).
		Msg("Catalog synced")
	return nil
}
