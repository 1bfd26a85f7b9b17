package availability

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"secretary-ai/internal/domain"
)

// 2025-06-02 is a Monday.
func at(day, h, m int) time.Time {
	return time.Date(2025, 6, day, h, m, 0, 0, time.UTC)
}

func newRecordingFinder(seen *[]time.Time, opts ...Option) *Finder {
	opts = append([]Option{
		WithLocation(time.UTC),
		WithCandidateObserver(func(c time.Time) { *seen = append(*seen, c) }),
	}, opts...)
	return New(opts...)
}

func TestCheckAvailability_HalfOpenOverlap(t *testing.T) {
	f := New(WithLocation(time.UTC))
	busy := []domain.BusyInterval{{Start: at(2, 10, 0), End: at(2, 10, 30)}}

	res, err := f.CheckAvailability("2025-06-02", "10:15", 30, busy)
	require.NoError(t, err)
	assert.False(t, res.Available)
	require.Len(t, res.Conflicts, 1)
	assert.Equal(t, at(2, 10, 0), res.Conflicts[0].Start)
	assert.Equal(t, at(2, 10, 30), res.Conflicts[0].End)
	assert.Equal(t, "Mon Jun 2, 10:00 AM", res.Conflicts[0].StartDisplay)
	assert.Equal(t, "Mon Jun 2, 10:30 AM", res.Conflicts[0].EndDisplay)

	res, err = f.CheckAvailability("2025-06-02", "10:30", 30, busy)
	require.NoError(t, err)
	assert.True(t, res.Available)
	assert.Empty(t, res.Conflicts)
	assert.Equal(t, at(2, 10, 30), res.RequestedStart)
	assert.Equal(t, at(2, 11, 0), res.RequestedEnd)
}

func TestCheckAvailability_UnsortedOverlappingInput(t *testing.T) {
	f := New(WithLocation(time.UTC))
	busy := []domain.BusyInterval{
		{Start: at(2, 14, 0), End: at(2, 15, 0)},
		{Start: at(2, 9, 0), End: at(2, 9, 30)},
		{Start: at(2, 13, 30), End: at(2, 14, 30)},
		{Start: at(2, 16, 0), End: at(2, 17, 0)},
	}

	res, err := f.CheckAvailability("2025-06-02", "13:45", 60, busy)
	require.NoError(t, err)
	assert.False(t, res.Available)
	require.Len(t, res.Conflicts, 2)
	assert.Equal(t, at(2, 14, 0), res.Conflicts[0].Start)
	assert.Equal(t, at(2, 13, 30), res.Conflicts[1].Start)
}

func TestCheckAvailability_InvalidInput(t *testing.T) {
	f := New(WithLocation(time.UTC))

	_, err := f.CheckAvailability("June 2", "10:00", 30, nil)
	assert.True(t, errors.Is(err, domain.ErrInvalidInput))

	_, err = f.CheckAvailability("2025-06-02", "10:00", 0, nil)
	assert.True(t, errors.Is(err, domain.ErrInvalidInput))
}

func TestParseSlotStart_UsesLocation(t *testing.T) {
	loc := time.FixedZone("UTC+2", 2*3600)
	f := New(WithLocation(loc))

	got, err := f.ParseSlotStart("2025-06-02", "10:00:00")
	require.NoError(t, err)
	assert.Equal(t, at(2, 8, 0), got.UTC())
}

func TestFindNextAvailableSlot_RoundsUp(t *testing.T) {
	var seen []time.Time
	f := newRecordingFinder(&seen)

	res := f.FindNextAvailableSlot(30*time.Minute, at(2, 10, 7), nil)
	require.True(t, res.Available)
	require.NotEmpty(t, seen)
	assert.Equal(t, at(2, 10, 30), seen[0])
	assert.Equal(t, at(2, 10, 30), *res.SuggestedTime)
	assert.Equal(t, at(2, 11, 0), *res.SuggestedEnd)
}

func TestFindNextAvailableSlot_BoundaryNotMoved(t *testing.T) {
	var seen []time.Time
	f := newRecordingFinder(&seen)

	res := f.FindNextAvailableSlot(30*time.Minute, at(2, 10, 30), nil)
	require.True(t, res.Available)
	assert.Equal(t, at(2, 10, 30), seen[0])

	seen = nil
	res = f.FindNextAvailableSlot(30*time.Minute, at(2, 10, 0).Add(time.Second), nil)
	require.True(t, res.Available)
	assert.Equal(t, at(2, 10, 30), seen[0])
}

func TestFindNextAvailableSlot_AfterHoursJumpsToNextMorning(t *testing.T) {
	var seen []time.Time
	f := newRecordingFinder(&seen)

	res := f.FindNextAvailableSlot(30*time.Minute, at(2, 19, 0), nil)
	require.True(t, res.Available)
	assert.Equal(t, at(3, 9, 0), seen[0])
	assert.Equal(t, at(3, 9, 0), *res.SuggestedTime)
}

func TestFindNextAvailableSlot_BeforeHoursJumpsToNine(t *testing.T) {
	var seen []time.Time
	f := newRecordingFinder(&seen)

	res := f.FindNextAvailableSlot(time.Hour, at(2, 6, 40), nil)
	require.True(t, res.Available)
	assert.Equal(t, at(2, 9, 0), seen[0])
}

func TestFindNextAvailableSlot_SkipsConflicts(t *testing.T) {
	var seen []time.Time
	f := newRecordingFinder(&seen)
	busy := []domain.BusyInterval{
		{Start: at(2, 11, 0), End: at(2, 11, 15)},
		{Start: at(2, 10, 30), End: at(2, 11, 0)},
	}

	res := f.FindNextAvailableSlot(30*time.Minute, at(2, 10, 7), busy)
	require.True(t, res.Available)
	assert.Equal(t, at(2, 11, 30), *res.SuggestedTime)
	assert.Equal(t, []time.Time{at(2, 10, 30), at(2, 11, 0), at(2, 11, 30)}, seen)
}

func TestFindNextAvailableSlot_EndOfDayRollsOver(t *testing.T) {
	var seen []time.Time
	f := newRecordingFinder(&seen)
	busy := []domain.BusyInterval{{Start: at(2, 17, 0), End: at(2, 19, 0)}}

	res := f.FindNextAvailableSlot(30*time.Minute, at(2, 17, 0), busy)
	require.True(t, res.Available)
	assert.Equal(t, []time.Time{at(2, 17, 0), at(2, 17, 30), at(3, 9, 0)}, seen)
}

func TestFindNextAvailableSlot_HorizonCutoff(t *testing.T) {
	var seen []time.Time
	f := newRecordingFinder(&seen)

	start := at(2, 9, 0)
	var busy []domain.BusyInterval
	for d := 0; d < 7; d++ {
		busy = append(busy, domain.BusyInterval{Start: at(2+d, 9, 0), End: at(2+d, 18, 0)})
	}

	res := f.FindNextAvailableSlot(30*time.Minute, start, busy)
	assert.False(t, res.Available)
	assert.Nil(t, res.SuggestedTime)
	assert.Equal(t, ExhaustedMessage, res.Message)

	limit := start.Add(7 * 24 * time.Hour)
	assert.Len(t, seen, 7*18)
	for _, c := range seen {
		assert.True(t, c.Before(limit), "candidate %s beyond horizon", c)
		assert.True(t, c.Hour() >= 9 && c.Hour() < 18, "candidate %s outside business hours", c)
	}
}

func TestFindNextAvailableSlot_LocalBusinessHours(t *testing.T) {
	loc := time.FixedZone("UTC-5", -5*3600)
	var seen []time.Time
	f := newRecordingFinder(&seen, WithLocation(loc))

	// 13:00 UTC is 08:00 in UTC-5.
	res := f.FindNextAvailableSlot(30*time.Minute, at(2, 13, 0), nil)
	require.True(t, res.Available)
	assert.Equal(t, 9, res.SuggestedTime.Hour())
	assert.Equal(t, at(2, 14, 0), res.SuggestedTime.UTC())
	assert.Equal(t, "Mon Jun 2, 9:00 AM", res.Display)
}
