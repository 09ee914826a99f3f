package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func at(h, m int) time.Time {
	return time.Date(2025, 3, 10, h, m, 0, 0, time.UTC)
}

func TestIntervalOverlaps(t *testing.T) {
	tests := []struct {
		name string
		a, b Interval
		want bool
	}{
		{"disjoint", Interval{at(9, 0), at(9, 30)}, Interval{at(10, 0), at(10, 30)}, false},
		{"touching end", Interval{at(9, 30), at(10, 0)}, Interval{at(10, 0), at(10, 30)}, false},
		{"touching start", Interval{at(10, 30), at(11, 0)}, Interval{at(10, 0), at(10, 30)}, false},
		{"same", Interval{at(10, 0), at(10, 30)}, Interval{at(10, 0), at(10, 30)}, true},
		{"partial", Interval{at(9, 45), at(10, 15)}, Interval{at(10, 0), at(10, 30)}, true},
		{"contains", Interval{at(9, 0), at(12, 0)}, Interval{at(10, 0), at(10, 30)}, true},
		{"inside", Interval{at(10, 10), at(10, 20)}, Interval{at(10, 0), at(10, 30)}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.a.Overlaps(tt.b))
			assert.Equal(t, tt.want, tt.b.Overlaps(tt.a))
		})
	}
}

func TestAnyOverlap(t *testing.T) {
	busy := []Interval{
		{at(10, 0), at(10, 30)},
		{at(12, 0), at(13, 0)},
	}
	assert.False(t, AnyOverlap(Interval{at(10, 30), at(12, 0)}, busy))
	assert.True(t, AnyOverlap(Interval{at(11, 30), at(12, 30)}, busy))
	assert.False(t, AnyOverlap(Interval{at(9, 0), at(10, 0)}, nil))
}

func TestCanTransition(t *testing.T) {
	all := []Status{StatusNew, StatusConfirmed, StatusCanceled}
	allowed := map[[2]Status]bool{
		{StatusNew, StatusConfirmed}:      true,
		{StatusNew, StatusCanceled}:       true,
		{StatusConfirmed, StatusCanceled}: true,
	}

	for _, from := range all {
		for _, to := range all {
			assert.Equal(t, allowed[[2]Status{from, to}], CanTransition(from, to), "%s -> %s", from, to)
		}
	}
}

func TestParseStatus(t *testing.T) {
	st, err := ParseStatus("confirmed")
	require.NoError(t, err)
	assert.Equal(t, StatusConfirmed, st)
	assert.True(t, st.Active())
	assert.False(t, StatusCanceled.Active())

	_, err = ParseStatus("cancelled")
	assert.Error(t, err)
}

func TestParseSource(t *testing.T) {
	src, err := ParseSource("")
	require.NoError(t, err)
	assert.Equal(t, SourceWeb, src)

	src, err = ParseSource("phone")
	require.NoError(t, err)
	assert.Equal(t, SourcePhone, src)

	_, err = ParseSource("fax")
	assert.Error(t, err)
}

func TestShiftBounds(t *testing.T) {
	loc := time.FixedZone("MSK", 3*60*60)
	s := Shift{ID: 1, Date: time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC), StartTime: "09:00", EndTime: "18:30"}

	start, end, err := s.Bounds(loc)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 3, 10, 9, 0, 0, 0, loc), start)
	assert.Equal(t, time.Date(2025, 3, 10, 18, 30, 0, 0, loc), end)

	s.EndTime = "25:00"
	_, _, err = s.Bounds(loc)
	assert.Error(t, err)
}

func TestProcedureDuration(t *testing.T) {
	p := Procedure{DurationMinutes: 90}
	assert.Equal(t, 90*time.Minute, p.Duration())
}
