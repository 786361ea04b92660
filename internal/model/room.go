package model

import "time"

// Room is a bookable physical space.  Tier ranks rooms so credits bought
// for a higher-tier room can be spent on lower tiers.
//
// Fields:
//  ID               – primary key identifier.
//  Name             – display name.
//  Tier             – ranking (1 is the entry tier).
//  HourlyPriceCents – price of one hour in cents.
//  ShiftPriceCents  – price of one 4-hour shift in cents.
//  DayPriceCents    – price of a full-day pass in cents.
type Room struct {
	ID               uint64    // rooms.id
	Name             string    // rooms.name
	Tier             int       // rooms.tier
	HourlyPriceCents int64     // rooms.hourly_price_cents
	ShiftPriceCents  int64     // rooms.shift_price_cents
	DayPriceCents    int64     // rooms.day_price_cents
	CreatedAt        time.Time // rooms.created_at
}

// ProductType is what the customer is buying for a slot.
type ProductType string

const (
	ProductHourly  ProductType = "HOURLY"
	ProductShift   ProductType = "SHIFT"
	ProductDayPass ProductType = "DAY_PASS"
)

// Valid reports whether p is one of the known products.
func (p ProductType) Valid() bool {
	switch p {
	case ProductHourly, ProductShift, ProductDayPass:
		return true
	}
	return false
}
