// Package shiftwindow keeps far-future weekdays free for shift customers.
// Plain hourly purchases on a Monday–Friday more than Days away are
// refused; shift and day-pass products and weekends are never refused.
package shiftwindow

import (
	"time"

	"github.com/iliyamo/room-reservation/internal/calendar"
	"github.com/iliyamo/room-reservation/internal/model"
)

// DefaultDays is the protection horizon in civil days.
const DefaultDays = 30

// CodeProtected is returned when an hourly purchase falls past the horizon.
const CodeProtected = "SHIFT_DAY_PROTECTION_WINDOW"

// Decision is the outcome for one candidate date.
type Decision struct {
	Blocked bool   `json:"blocked"`
	Code    string `json:"code,omitempty"`
	Days    int    `json:"window_days"`
}

// Guard evaluates the protection window.  It holds no mutable state.
type Guard struct {
	cal  *calendar.Resolver
	days int
	now  func() time.Time
}

// NewGuard builds a Guard.  days <= 0 selects DefaultDays; nil now uses time.Now.
func NewGuard(cal *calendar.Resolver, days int, now func() time.Time) *Guard {
	if days <= 0 {
		days = DefaultDays
	}
	if now == nil {
		now = time.Now
	}
	return &Guard{cal: cal, days: days, now: now}
}

// Days returns the configured horizon.
func (g *Guard) Days() int { return g.days }

// ShouldBlockHourlyPurchase decides whether buying product on date is refused.
func (g *Guard) ShouldBlockHourlyPurchase(date time.Time, product model.ProductType) Decision {
	d := Decision{Days: g.days}
	if product != model.ProductHourly {
		return d
	}
	if !g.cal.IsShiftDay(date) {
		return d
	}
	if g.cal.DaysBetween(g.now(), date) > g.days {
		d.Blocked = true
		d.Code = CodeProtected
	}
	return d
}
