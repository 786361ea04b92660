package calendar

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolverUsesBusinessZone(t *testing.T) {
	r := MustResolver("America/Sao_Paulo")
	// 02:30 UTC on a Saturday is still Friday 23:30 in Sao Paulo (UTC-3).
	instant := time.Date(2026, 10, 17, 2, 30, 0, 0, time.UTC)
	assert.Equal(t, time.Friday, r.Weekday(instant))
	assert.Equal(t, 23, r.Hour(instant))
	assert.True(t, r.IsShiftDay(instant))
	assert.False(t, r.IsSaturday(instant))
}

func TestNewResolverRejectsUnknownZone(t *testing.T) {
	_, err := NewResolver("Mars/Olympus_Mons")
	require.Error(t, err)
}

func TestDaysBetweenCountsCivilDays(t *testing.T) {
	r := MustResolver("")
	from := time.Date(2026, 10, 15, 23, 0, 0, 0, r.Location())
	to := time.Date(2026, 10, 16, 1, 0, 0, 0, r.Location())
	assert.Equal(t, 1, r.DaysBetween(from, to))
	assert.Equal(t, 0, r.DaysBetween(from, from.Add(30*time.Minute)))
	assert.Equal(t, -1, r.DaysBetween(to, from))
}

func TestMatchBlock(t *testing.T) {
	r := MustResolver("")
	day := time.Date(2026, 10, 19, 0, 0, 0, 0, r.Location())

	b, ok := r.MatchBlock(r.At(day, 12), r.At(day, 16))
	require.True(t, ok)
	assert.Equal(t, Block{12, 16}, b)

	_, ok = r.MatchBlock(r.At(day, 9), r.At(day, 13))
	assert.False(t, ok)

	_, ok = r.MatchBlock(r.At(day, 8).Add(time.Minute), r.At(day, 12))
	assert.False(t, ok)
}
