package schedule

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"beautycity/internal/domain"
	"beautycity/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockStore struct {
	mock.Mock
}

func (m *MockStore) ListShifts(ctx context.Context, salonID, specialistID int64, date time.Time) ([]*models.Shift, error) {
	args := m.Called(ctx, salonID, specialistID, date)
	shifts, _ := args.Get(0).([]*models.Shift)
	return shifts, args.Error(1)
}

func (m *MockStore) ListActiveAppointments(ctx context.Context, salonID, specialistID int64, from, to time.Time) ([]*models.Appointment, error) {
	args := m.Called(ctx, salonID, specialistID, from, to)
	appts, _ := args.Get(0).([]*models.Appointment)
	return appts, args.Error(1)
}

var (
	msk = time.FixedZone("MSK", 3*60*60)
	day = time.Date(2025, 3, 10, 0, 0, 0, 0, msk)
)

func clock(h, m int) time.Time {
	return time.Date(2025, 3, 10, h, m, 0, 0, msk)
}

func shift(id int64, start, end string) *models.Shift {
	return &models.Shift{ID: id, SalonID: 1, SpecialistID: 7, Date: day, StartTime: start, EndTime: end}
}

func booked(start time.Time, minutes int, status models.Status) *models.Appointment {
	return &models.Appointment{
		SalonID: 1, SpecialistID: 7,
		StartAt: start, EndAt: start.Add(time.Duration(minutes) * time.Minute),
		Status: status,
	}
}

func newTestEngine(store *MockStore) *Engine {
	logger := zerolog.New(io.Discard)
	return NewEngine(store, store, Config{Step: 30 * time.Minute, Location: msk}, &logger)
}

func query(minutes int) SlotQuery {
	return SlotQuery{SalonID: 1, SpecialistID: 7, Procedure: &models.Procedure{ID: 3, DurationMinutes: minutes}, Date: day}
}

func expectDay(store *MockStore, shifts []*models.Shift, appts []*models.Appointment) {
	store.On("ListShifts", mock.Anything, int64(1), int64(7), day).Return(shifts, nil)
	store.On("ListActiveAppointments", mock.Anything, int64(1), int64(7), day, day.AddDate(0, 0, 1)).Return(appts, nil)
}

func TestComputeSlots_AdjacencyIsNotConflict(t *testing.T) {
	store := new(MockStore)
	expectDay(store,
		[]*models.Shift{shift(1, "09:00", "18:00")},
		[]*models.Appointment{booked(clock(10, 0), 30, models.StatusNew)},
	)

	slots, err := newTestEngine(store).ComputeSlots(context.Background(), query(30), clock(0, 0))
	require.NoError(t, err)

	assert.Contains(t, slots, clock(9, 30))
	assert.Contains(t, slots, clock(10, 30))
	assert.NotContains(t, slots, clock(10, 0))
	assert.Len(t, slots, 17)
	assert.Equal(t, clock(9, 0), slots[0])
	assert.Equal(t, clock(17, 30), slots[len(slots)-1])
}

func TestComputeSlots_NoShiftsMeansNoSlots(t *testing.T) {
	store := new(MockStore)
	store.On("ListShifts", mock.Anything, int64(1), int64(7), day).Return(nil, nil)

	slots, err := newTestEngine(store).ComputeSlots(context.Background(), query(60), clock(0, 0))
	require.NoError(t, err)
	assert.NotNil(t, slots)
	assert.Empty(t, slots)

	// nothing else is consulted and nothing is made up
	store.AssertNotCalled(t, "ListActiveAppointments", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	store.AssertExpectations(t)
}

func TestComputeSlots_PastCandidatesDropped(t *testing.T) {
	store := new(MockStore)
	expectDay(store, []*models.Shift{shift(1, "09:00", "18:00")}, nil)

	slots, err := newTestEngine(store).ComputeSlots(context.Background(), query(30), clock(14, 5))
	require.NoError(t, err)
	require.NotEmpty(t, slots)
	assert.Equal(t, clock(14, 30), slots[0])
	for _, s := range slots {
		assert.False(t, s.Before(clock(14, 5)))
	}
}

func TestComputeSlots_StartEqualToNowIsKept(t *testing.T) {
	store := new(MockStore)
	expectDay(store, []*models.Shift{shift(1, "09:00", "11:00")}, nil)

	slots, err := newTestEngine(store).ComputeSlots(context.Background(), query(30), clock(10, 0))
	require.NoError(t, err)
	assert.Equal(t, []time.Time{clock(10, 0), clock(10, 30)}, slots)
}

func TestComputeSlots_DurationLongerThanShift(t *testing.T) {
	store := new(MockStore)
	expectDay(store, []*models.Shift{shift(1, "09:00", "10:00")}, nil)

	slots, err := newTestEngine(store).ComputeSlots(context.Background(), query(90), clock(0, 0))
	require.NoError(t, err)
	assert.Empty(t, slots)
}

func TestComputeSlots_LastCandidateEndsAtShiftEnd(t *testing.T) {
	store := new(MockStore)
	expectDay(store, []*models.Shift{shift(1, "09:00", "11:00")}, nil)

	slots, err := newTestEngine(store).ComputeSlots(context.Background(), query(60), clock(0, 0))
	require.NoError(t, err)
	assert.Equal(t, []time.Time{clock(9, 0), clock(9, 30), clock(10, 0)}, slots)
}

func TestComputeSlots_OverlappingShiftsDeduplicated(t *testing.T) {
	store := new(MockStore)
	expectDay(store,
		[]*models.Shift{shift(2, "10:00", "12:00"), shift(1, "09:00", "11:00")},
		nil,
	)

	slots, err := newTestEngine(store).ComputeSlots(context.Background(), query(60), clock(0, 0))
	require.NoError(t, err)
	assert.Equal(t, []time.Time{clock(9, 0), clock(9, 30), clock(10, 0), clock(10, 30), clock(11, 0)}, slots)
}

func TestComputeSlots_InvalidShiftSkipped(t *testing.T) {
	store := new(MockStore)
	expectDay(store,
		[]*models.Shift{
			shift(1, "18:00", "09:00"),
			shift(2, "12:00", "12:00"),
			shift(3, "nine", "10:00"),
			shift(4, "14:00", "15:00"),
		},
		nil,
	)

	slots, err := newTestEngine(store).ComputeSlots(context.Background(), query(30), clock(0, 0))
	require.NoError(t, err)
	assert.Equal(t, []time.Time{clock(14, 0), clock(14, 30)}, slots)
}

func TestComputeSlots_CanceledAppointmentsIgnored(t *testing.T) {
	store := new(MockStore)
	expectDay(store,
		[]*models.Shift{shift(1, "09:00", "10:00")},
		[]*models.Appointment{booked(clock(9, 0), 60, models.StatusCanceled)},
	)

	slots, err := newTestEngine(store).ComputeSlots(context.Background(), query(30), clock(0, 0))
	require.NoError(t, err)
	assert.Equal(t, []time.Time{clock(9, 0), clock(9, 30)}, slots)
}

func TestComputeSlots_StoreErrorIsNotMasked(t *testing.T) {
	boom := errors.New("disk I/O error")

	t.Run("Shifts", func(t *testing.T) {
		store := new(MockStore)
		store.On("ListShifts", mock.Anything, int64(1), int64(7), day).Return(nil, boom)

		slots, err := newTestEngine(store).ComputeSlots(context.Background(), query(30), clock(0, 0))
		assert.ErrorIs(t, err, boom)
		assert.Nil(t, slots)
	})

	t.Run("Appointments", func(t *testing.T) {
		store := new(MockStore)
		store.On("ListShifts", mock.Anything, int64(1), int64(7), day).Return([]*models.Shift{shift(1, "09:00", "18:00")}, nil)
		store.On("ListActiveAppointments", mock.Anything, int64(1), int64(7), day, day.AddDate(0, 0, 1)).Return(nil, boom)

		slots, err := newTestEngine(store).ComputeSlots(context.Background(), query(30), clock(0, 0))
		assert.ErrorIs(t, err, boom)
		assert.Nil(t, slots)
	})
}

func TestComputeSlots_NoProcedure(t *testing.T) {
	store := new(MockStore)
	q := query(30)
	q.Procedure = nil

	_, err := newTestEngine(store).ComputeSlots(context.Background(), q, clock(0, 0))
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestComputeSlots_ZeroDuration(t *testing.T) {
	store := new(MockStore)

	slots, err := newTestEngine(store).ComputeSlots(context.Background(), query(0), clock(0, 0))
	require.NoError(t, err)
	assert.Empty(t, slots)
	store.AssertNotCalled(t, "ListShifts", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

// Every grid point of every shift is reported iff it is free: soundness and completeness.
func TestComputeSlots_SoundAndComplete(t *testing.T) {
	appts := []*models.Appointment{
		booked(clock(9, 15), 45, models.StatusConfirmed),
		booked(clock(12, 0), 90, models.StatusNew),
		booked(clock(16, 40), 10, models.StatusNew),
	}
	busy := []models.Interval{}
	for _, a := range appts {
		busy = append(busy, a.Interval())
	}

	store := new(MockStore)
	expectDay(store, []*models.Shift{shift(1, "08:00", "13:00"), shift(2, "15:00", "19:00")}, appts)

	now := clock(8, 10)
	duration := 45 * time.Minute
	slots, err := newTestEngine(store).ComputeSlots(context.Background(), query(45), now)
	require.NoError(t, err)

	reported := map[time.Time]bool{}
	for _, s := range slots {
		reported[s] = true
	}

	for _, window := range [][2]time.Time{{clock(8, 0), clock(13, 0)}, {clock(15, 0), clock(19, 0)}} {
		for c := window[0]; !c.Add(duration).After(window[1]); c = c.Add(30 * time.Minute) {
			free := !c.Before(now) && !models.AnyOverlap(models.Interval{Start: c, End: c.Add(duration)}, busy)
			assert.Equal(t, free, reported[c], "candidate %s", c.Format("15:04"))
		}
	}

	for i := 1; i < len(slots); i++ {
		assert.True(t, slots[i-1].Before(slots[i]), "slots must be strictly increasing")
	}
}

func TestComputeSlots_Idempotent(t *testing.T) {
	store := new(MockStore)
	expectDay(store,
		[]*models.Shift{shift(1, "09:00", "18:00")},
		[]*models.Appointment{booked(clock(11, 0), 60, models.StatusNew)},
	)
	engine := newTestEngine(store)

	first, err := engine.ComputeSlots(context.Background(), query(60), clock(0, 0))
	require.NoError(t, err)
	second, err := engine.ComputeSlots(context.Background(), query(60), clock(0, 0))
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestNewEngineDefaults(t *testing.T) {
	logger := zerolog.Nop()
	e := NewEngine(nil, nil, Config{}, &logger)
	assert.Equal(t, models.DefaultSlotStep, e.Step())
	assert.Equal(t, time.Local, e.Location())
}

func TestCandidates(t *testing.T) {
	busy := []models.Interval{{Start: clock(10, 0), End: clock(10, 30)}}

	got := Candidates(clock(9, 0), clock(11, 0), 30*time.Minute, 15*time.Minute, busy, clock(0, 0))
	assert.Equal(t, []time.Time{clock(9, 0), clock(9, 15), clock(9, 30), clock(10, 30)}, got)

	assert.Nil(t, Candidates(clock(9, 0), clock(11, 0), 0, 15*time.Minute, nil, clock(0, 0)))
	assert.Nil(t, Candidates(clock(9, 0), clock(11, 0), 30*time.Minute, 0, nil, clock(0, 0)))
}
