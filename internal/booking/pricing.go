package booking

import (
	"time"

	"github.com/iliyamo/room-reservation/internal/calendar"
	"github.com/iliyamo/room-reservation/internal/model"
)

// checkShape verifies that [start, end) is a sellable slot for product.
func checkShape(cal *calendar.Resolver, product model.ProductType, start, end time.Time) error {
	if !product.Valid() {
		return fail(CodeInvalidProduct, "%q", product)
	}
	if !end.After(start) {
		return fail(CodeInvalidInterval, "end must be after start")
	}
	s, e := cal.In(start), cal.In(end)
	if s.Minute() != 0 || s.Second() != 0 || e.Minute() != 0 || e.Second() != 0 || cal.DaysBetween(s, e) != 0 {
		return fail(CodeInvalidInterval, "slots start and end on the hour of one day")
	}
	if s.Hour() < calendar.OpenHour || e.Hour() > calendar.CloseHour {
		return fail(CodeOutsideOpeningHours, "open %02d:00-%02d:00", calendar.OpenHour, calendar.CloseHour)
	}
	switch product {
	case model.ProductShift:
		b, ok := cal.MatchBlock(start, end)
		if !ok {
			return fail(CodeProductShapeMismatch, "a shift is one of 08-12, 12-16, 16-20")
		}
		if cal.IsSaturday(start) && b != calendar.MorningBlock {
			return fail(CodeProductShapeMismatch, "only the morning shift is sold on Saturdays")
		}
	case model.ProductDayPass:
		if s.Hour() != calendar.OpenHour || e.Hour() != calendar.CloseHour {
			return fail(CodeProductShapeMismatch, "a day pass covers opening to closing")
		}
	}
	return nil
}

// grossPrice prices a slot in cents.  Hourly slots are charged pro rata by
// minute; shift and day pass products have flat prices.
func grossPrice(room *model.Room, product model.ProductType, start, end time.Time) int64 {
	switch product {
	case model.ProductShift:
		return room.ShiftPriceCents
	case model.ProductDayPass:
		return room.DayPriceCents
	}
	minutes := int64(end.Sub(start) / time.Minute)
	return room.HourlyPriceCents * minutes / 60
}
