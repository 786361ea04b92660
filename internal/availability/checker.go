// Package availability decides whether a room is free over an interval.
// It never writes; a conflict is a normal false result.
package availability

import (
	"context"
	"time"

	"github.com/iliyamo/room-reservation/internal/calendar"
	"github.com/iliyamo/room-reservation/internal/model"
)

// BookingLister loads the active (PENDING or CONFIRMED) bookings of a room
// that start before `to` and end after `from`.
type BookingLister interface {
	ListActiveInRange(ctx context.Context, roomID uint64, from, to time.Time) ([]model.Booking, error)
}

// Options tune the checker.  Zero values mean no buffer and no advance rule.
type Options struct {
	CleaningBuffer time.Duration
	MinAdvance     time.Duration
	Now            func() time.Time
}

// Slot is one hour of the calendar grid.
type Slot struct {
	Hour      int       `json:"hour"`
	StartAt   time.Time `json:"start_at"`
	Available bool      `json:"available"`
}

// Checker answers availability questions for rooms.
type Checker struct {
	bookings   BookingLister
	cal        *calendar.Resolver
	buffer     time.Duration
	minAdvance time.Duration
	now        func() time.Time
}

// NewChecker builds a Checker.
func NewChecker(bookings BookingLister, cal *calendar.Resolver, opts Options) *Checker {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Checker{
		bookings:   bookings,
		cal:        cal,
		buffer:     opts.CleaningBuffer,
		minAdvance: opts.MinAdvance,
		now:        now,
	}
}

// CleaningBuffer returns the gap kept free after each booking.
func (c *Checker) CleaningBuffer() time.Duration { return c.buffer }

// Conflicts reports whether a candidate [start, end) collides with an
// existing booking whose end is extended by buffer.  It applies the
// three-way test: the candidate starts during, ends during, or encloses
// the existing booking.
func Conflicts(existingStart, existingEnd, start, end time.Time, buffer time.Duration) bool {
	busyUntil := existingEnd.Add(buffer)
	startsDuring := !start.Before(existingStart) && start.Before(busyUntil)
	endsDuring := end.After(existingStart) && !end.After(busyUntil)
	encloses := !start.After(existingStart) && !end.Before(busyUntil)
	return startsDuring || endsDuring || encloses
}

// IsAvailable reports whether the room is free over [start, end).
// excludeID skips one booking, used when editing it.
func (c *Checker) IsAvailable(ctx context.Context, roomID uint64, start, end time.Time, excludeID *uint64) (bool, error) {
	if !end.After(start) {
		return false, nil
	}
	if !c.meetsAdvance(start) {
		return false, nil
	}
	existing, err := c.bookings.ListActiveInRange(ctx, roomID, start.Add(-c.buffer), end)
	if err != nil {
		return false, err
	}
	for _, b := range existing {
		if excludeID != nil && b.ID == *excludeID {
			continue
		}
		if !b.Status.Active() {
			continue
		}
		if Conflicts(b.StartAt, b.EndAt, start, end, c.buffer) {
			return false, nil
		}
	}
	return true, nil
}

// Grid returns one slot per opening hour of the civil day containing day.
func (c *Checker) Grid(ctx context.Context, roomID uint64, day time.Time) ([]Slot, error) {
	first := c.cal.At(day, calendar.OpenHour)
	last := c.cal.At(day, calendar.CloseHour)
	existing, err := c.bookings.ListActiveInRange(ctx, roomID, first.Add(-c.buffer), last)
	if err != nil {
		return nil, err
	}
	slots := make([]Slot, 0, calendar.CloseHour-calendar.OpenHour)
	for h := calendar.OpenHour; h < calendar.CloseHour; h++ {
		start := c.cal.At(day, h)
		end := c.cal.At(day, h+1)
		free := c.meetsAdvance(start)
		for _, b := range existing {
			if !free {
				break
			}
			if b.Status.Active() && Conflicts(b.StartAt, b.EndAt, start, end, c.buffer) {
				free = false
			}
		}
		slots = append(slots, Slot{Hour: h, StartAt: start, Available: free})
	}
	return slots, nil
}

func (c *Checker) meetsAdvance(start time.Time) bool {
	return start.Sub(c.now()) >= c.minAdvance
}
