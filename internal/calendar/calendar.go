// Package calendar classifies instants into the business's civil calendar.
// Every day-of-week and hour decision in the engine goes through a Resolver
// so results never depend on the server's local timezone.
package calendar

import (
	"fmt"
	"time"
	_ "time/tzdata" // zone database embedded for minimal containers
)

// DefaultTimezone is the zone the business operates in.
const DefaultTimezone = "America/Sao_Paulo"

// Opening hours of every room, in civil hours.
const (
	OpenHour  = 8
	CloseHour = 20
)

// Block is a canonical fixed shift expressed in civil hours [Start, End).
type Block struct {
	Start int
	End   int
}

// ShiftBlocks lists the canonical 4-hour shifts in the order they occur.
var ShiftBlocks = []Block{{8, 12}, {12, 16}, {16, 20}}

// MorningBlock is the only shift sold on Saturdays.
var MorningBlock = ShiftBlocks[0]

// Resolver converts instants to civil dates and hours in a fixed location.
type Resolver struct {
	loc *time.Location
}

// NewResolver loads the IANA zone name. An empty name selects DefaultTimezone.
func NewResolver(name string) (*Resolver, error) {
	if name == "" {
		name = DefaultTimezone
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", name, err)
	}
	return &Resolver{loc: loc}, nil
}

// MustResolver is NewResolver for static zone names; it panics on failure.
func MustResolver(name string) *Resolver {
	r, err := NewResolver(name)
	if err != nil {
		panic(err)
	}
	return r
}

// Location returns the business location.
func (r *Resolver) Location() *time.Location { return r.loc }

// In returns t expressed in the business location.
func (r *Resolver) In(t time.Time) time.Time { return t.In(r.loc) }

// Hour returns the civil hour of t.
func (r *Resolver) Hour(t time.Time) int { return t.In(r.loc).Hour() }

// Weekday returns the civil weekday of t.
func (r *Resolver) Weekday(t time.Time) time.Weekday { return t.In(r.loc).Weekday() }

// Date returns civil midnight of the day containing t.
func (r *Resolver) Date(t time.Time) time.Time {
	y, m, d := t.In(r.loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, r.loc)
}

// At returns the instant of the given civil hour on the day containing date.
func (r *Resolver) At(date time.Time, hour int) time.Time {
	y, m, d := date.In(r.loc).Date()
	return time.Date(y, m, d, hour, 0, 0, 0, r.loc)
}

// IsShiftDay reports whether t falls on Monday through Friday.
func (r *Resolver) IsShiftDay(t time.Time) bool {
	wd := r.Weekday(t)
	return wd >= time.Monday && wd <= time.Friday
}

// IsSaturday reports whether t falls on a Saturday.
func (r *Resolver) IsSaturday(t time.Time) bool { return r.Weekday(t) == time.Saturday }

// DaysBetween counts civil days from the day of `from` to the day of `to`.
// DST transitions do not shift the result.
func (r *Resolver) DaysBetween(from, to time.Time) int {
	fy, fm, fd := from.In(r.loc).Date()
	ty, tm, td := to.In(r.loc).Date()
	a := time.Date(fy, fm, fd, 0, 0, 0, 0, time.UTC)
	b := time.Date(ty, tm, td, 0, 0, 0, 0, time.UTC)
	return int(b.Sub(a).Hours() / 24)
}

// MatchBlock returns the canonical shift exactly covering [start, end), if any.
// Both ends must sit on the hour and on the same civil day.
func (r *Resolver) MatchBlock(start, end time.Time) (Block, bool) {
	s, e := start.In(r.loc), end.In(r.loc)
	if s.Minute() != 0 || s.Second() != 0 || e.Minute() != 0 || e.Second() != 0 {
		return Block{}, false
	}
	if r.DaysBetween(s, e) != 0 {
		return Block{}, false
	}
	for _, b := range ShiftBlocks {
		if s.Hour() == b.Start && e.Hour() == b.End {
			return b, true
		}
	}
	return Block{}, false
}
