package availability

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/room-reservation/internal/calendar"
	"github.com/iliyamo/room-reservation/internal/model"
)

type stubLister struct {
	bookings []model.Booking
	err      error
	calls    int
}

func (s *stubLister) ListActiveInRange(_ context.Context, _ uint64, from, to time.Time) ([]model.Booking, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	var out []model.Booking
	for _, b := range s.bookings {
		if b.StartAt.Before(to) && b.EndAt.After(from) {
			out = append(out, b)
		}
	}
	return out, nil
}

var cal = calendar.MustResolver("")

func at(day, hour int) time.Time {
	return time.Date(2026, 10, day, hour, 0, 0, 0, cal.Location())
}

func fixedNow() time.Time { return at(15, 8) }

func TestConflictsThreeWay(t *testing.T) {
	es, ee := at(20, 10), at(20, 12)
	cases := []struct {
		name       string
		start, end time.Time
		buffer     time.Duration
		want       bool
	}{
		{"starts during", at(20, 11), at(20, 13), 0, true},
		{"ends during", at(20, 9), at(20, 11), 0, true},
		{"encloses", at(20, 9), at(20, 13), 0, true},
		{"inside", at(20, 10), at(20, 11), 0, true},
		{"back to back after", at(20, 12), at(20, 13), 0, false},
		{"back to back before", at(20, 8), at(20, 10), 0, false},
		{"buffer blocks next hour", at(20, 12), at(20, 13), 30 * time.Minute, true},
		{"buffer leaves later hour", at(20, 13), at(20, 14), 30 * time.Minute, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Conflicts(es, ee, tc.start, tc.end, tc.buffer))
		})
	}
}

func TestIsAvailable(t *testing.T) {
	lister := &stubLister{bookings: []model.Booking{
		{ID: 7, RoomID: 1, StartAt: at(20, 10), EndAt: at(20, 12), Status: model.BookingConfirmed},
		{ID: 8, RoomID: 1, StartAt: at(20, 14), EndAt: at(20, 15), Status: model.BookingCancelled},
	}}
	c := NewChecker(lister, cal, Options{MinAdvance: time.Hour, Now: fixedNow})
	ctx := context.Background()

	ok, err := c.IsAvailable(ctx, 1, at(20, 11), at(20, 12), nil)
	require.NoError(t, err)
	assert.False(t, ok, "overlaps a confirmed booking")

	excluded := uint64(7)
	ok, err = c.IsAvailable(ctx, 1, at(20, 11), at(20, 12), &excluded)
	require.NoError(t, err)
	assert.True(t, ok, "the edited booking does not conflict with itself")

	ok, err = c.IsAvailable(ctx, 1, at(20, 14), at(20, 15), nil)
	require.NoError(t, err)
	assert.True(t, ok, "cancelled bookings free their slot")

	ok, err = c.IsAvailable(ctx, 1, at(15, 8).Add(30*time.Minute), at(15, 10), nil)
	require.NoError(t, err)
	assert.False(t, ok, "inside minimum advance notice")

	ok, err = c.IsAvailable(ctx, 1, at(20, 12), at(20, 11), nil)
	require.NoError(t, err)
	assert.False(t, ok, "inverted interval")
}

func TestIsAvailablePropagatesStorageErrors(t *testing.T) {
	c := NewChecker(&stubLister{err: errors.New("db down")}, cal, Options{Now: fixedNow})
	_, err := c.IsAvailable(context.Background(), 1, at(20, 9), at(20, 10), nil)
	require.Error(t, err)
}

func TestGrid(t *testing.T) {
	lister := &stubLister{bookings: []model.Booking{
		{ID: 1, RoomID: 1, StartAt: at(20, 9), EndAt: at(20, 11), Status: model.BookingPending},
	}}
	c := NewChecker(lister, cal, Options{CleaningBuffer: 30 * time.Minute, Now: fixedNow})

	slots, err := c.Grid(context.Background(), 1, at(20, 0))
	require.NoError(t, err)
	require.Len(t, slots, calendar.CloseHour-calendar.OpenHour)
	assert.Equal(t, 1, lister.calls)

	byHour := map[int]bool{}
	for _, s := range slots {
		byHour[s.Hour] = s.Available
	}
	assert.True(t, byHour[8])
	assert.False(t, byHour[9])
	assert.False(t, byHour[10])
	assert.False(t, byHour[11], "cleaning buffer")
	assert.True(t, byHour[12])
	assert.True(t, byHour[19])
}
