package database

import (
	"context"
	"io"
	"path/filepath"
	"testing"
	"time"

	"beautycity/internal/domain"
	"beautycity/internal/models"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestDB(t *testing.T) *DB {
	logger := zerolog.New(io.Discard)
	db, err := NewDB(":memory:", &logger)
	require.NoError(t, err)
	return db
}

// seedCatalog creates salon 1, specialist 10 working there and a 60 minute procedure 100.
// Salon 2 charges its own price for procedure 101.
func seedCatalog(t *testing.T, db *DB) {
	ctx := context.Background()
	require.NoError(t, db.SyncCatalog(ctx,
		[]models.Salon{
			{ID: 1, Name: "BeautyCity Пушкинская", Address: "ул. Пушкинская, 78А", IsActive: true},
			{ID: 2, Name: "BeautyCity Ленина", IsActive: true},
		},
		[]models.Specialist{
			{ID: 10, FullName: "Ольга", IsActive: true, SalonIDs: []int64{1}, ProcedureIDs: []int64{100}},
			{ID: 11, FullName: "Татьяна", IsActive: true, SalonIDs: []int64{1, 2}, ProcedureIDs: []int64{100, 101}},
		},
		[]models.Procedure{
			{ID: 100, Title: "Маникюр", DurationMinutes: 60, BasePrice: decimal.NewFromInt(1400)},
			{ID: 101, Title: "Макияж", DurationMinutes: 30, BasePrice: decimal.RequireFromString("1500.50")},
		},
		[]models.ProcedureOffering{
			{SalonID: 2, ProcedureID: 101, Price: decimal.NewFromInt(1700)},
		},
		nil,
	))
}

func TestNewDB_DirectoryCreation(t *testing.T) {
	tempDir := t.TempDir()
	dbPath := filepath.Join(tempDir, "nested", "dir", "test.db")
	logger := zerolog.Nop()

	db, err := NewDB(dbPath, &logger)
	require.NoError(t, err)
	defer db.Close()

	assert.FileExists(t, dbPath)
	assert.Equal(t, dbPath, db.Path())
}

func TestDB_Ping(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	assert.NoError(t, db.PingContext(context.Background()))
}

func TestCatalog(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	seedCatalog(t, db)

	ctx := context.Background()

	t.Run("GetSalon", func(t *testing.T) {
		s, err := db.GetSalon(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, "BeautyCity Пушкинская", s.Name)
		assert.True(t, s.IsActive)
	})

	t.Run("GetSpecialistWithSalons", func(t *testing.T) {
		s, err := db.GetSpecialist(ctx, 11)
		require.NoError(t, err)
		assert.Equal(t, []int64{1, 2}, s.SalonIDs)
		assert.Equal(t, []int64{100, 101}, s.ProcedureIDs)
	})

	t.Run("Offerings", func(t *testing.T) {
		o, err := db.GetOffering(ctx, 2, 101)
		require.NoError(t, err)
		assert.True(t, decimal.NewFromInt(1700).Equal(o.Price))

		_, err = db.GetOffering(ctx, 1, 101)
		assert.ErrorIs(t, err, domain.ErrNotFound)

		require.NoError(t, db.UpsertOffering(ctx, &models.ProcedureOffering{SalonID: 2, ProcedureID: 101, Price: decimal.NewFromInt(1800)}))
		o, err = db.GetOffering(ctx, 2, 101)
		require.NoError(t, err)
		assert.True(t, decimal.NewFromInt(1800).Equal(o.Price))
	})

	t.Run("ResyncReplacesProcedures", func(t *testing.T) {
		require.NoError(t, db.UpsertSpecialist(ctx, &models.Specialist{
			ID: 11, FullName: "Татьяна", IsActive: true, SalonIDs: []int64{1, 2}, ProcedureIDs: []int64{101},
		}))
		s, err := db.GetSpecialist(ctx, 11)
		require.NoError(t, err)
		assert.Equal(t, []int64{101}, s.ProcedureIDs)
	})

	t.Run("GetProcedureKeepsPrice", func(t *testing.T) {
		p, err := db.GetProcedure(ctx, 101)
		require.NoError(t, err)
		assert.True(t, decimal.RequireFromString("1500.5").Equal(p.BasePrice))
		assert.Equal(t, 30*time.Minute, p.Duration())
	})

	t.Run("NotFound", func(t *testing.T) {
		_, err := db.GetSalon(ctx, 404)
		assert.ErrorIs(t, err, domain.ErrNotFound)
		_, err = db.GetSpecialist(ctx, 404)
		assert.ErrorIs(t, err, domain.ErrNotFound)
		_, err = db.GetProcedure(ctx, 404)
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("ListSpecialistsBySalon", func(t *testing.T) {
		all, err := db.ListSpecialists(ctx, 0)
		require.NoError(t, err)
		assert.Len(t, all, 2)

		inSecond, err := db.ListSpecialists(ctx, 2)
		require.NoError(t, err)
		require.Len(t, inSecond, 1)
		assert.Equal(t, int64(11), inSecond[0].ID)
	})

	t.Run("ResyncUpdates", func(t *testing.T) {
		require.NoError(t, db.UpsertSalon(ctx, &models.Salon{ID: 2, Name: "Closed", IsActive: false}))
		salons, err := db.ListSalons(ctx)
		require.NoError(t, err)
		assert.Len(t, salons, 1)

		procedures, err := db.ListProcedures(ctx)
		require.NoError(t, err)
		assert.Len(t, procedures, 2)
	})

	t.Run("DefaultDuration", func(t *testing.T) {
		p := &models.Procedure{ID: 102, Title: "Пилинг"}
		require.NoError(t, db.UpsertProcedure(ctx, p))
		stored, err := db.GetProcedure(ctx, 102)
		require.NoError(t, err)
		assert.Equal(t, models.DefaultProcedureMinutes, stored.DurationMinutes)
	})
}

func TestShifts(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	seedCatalog(t, db)

	ctx := context.Background()
	day := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)

	s := &models.Shift{SalonID: 1, SpecialistID: 10, Date: day, StartTime: "09:00", EndTime: "13:00"}
	require.NoError(t, db.CreateShift(ctx, s))
	assert.NotZero(t, s.ID)

	dup := &models.Shift{SalonID: 1, SpecialistID: 10, Date: day, StartTime: "09:00", EndTime: "13:00"}
	require.NoError(t, db.CreateShift(ctx, dup))
	assert.Equal(t, s.ID, dup.ID)

	require.NoError(t, db.CreateShift(ctx, &models.Shift{SalonID: 1, SpecialistID: 10, Date: day, StartTime: "14:00", EndTime: "18:00"}))
	require.NoError(t, db.CreateShift(ctx, &models.Shift{SalonID: 2, SpecialistID: 10, Date: day, StartTime: "09:00", EndTime: "18:00"}))
	require.NoError(t, db.CreateShift(ctx, &models.Shift{SalonID: 1, SpecialistID: 10, Date: day.AddDate(0, 0, 1), StartTime: "09:00", EndTime: "18:00"}))

	shifts, err := db.ListShifts(ctx, 1, 10, day)
	require.NoError(t, err)
	require.Len(t, shifts, 2)
	assert.Equal(t, "09:00", shifts[0].StartTime)
	assert.Equal(t, "14:00", shifts[1].StartTime)
	assert.Equal(t, day, shifts[0].Date)

	require.NoError(t, db.DeleteShift(ctx, s.ID))
	shifts, err = db.ListShifts(ctx, 1, 10, day)
	require.NoError(t, err)
	assert.Len(t, shifts, 1)

	none, err := db.ListShifts(ctx, 1, 11, day)
	require.NoError(t, err)
	assert.Empty(t, none)
}
