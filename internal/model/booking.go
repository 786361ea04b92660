package model

import "time"

// BookingStatus is the lifecycle state of a booking.
type BookingStatus string

const (
	BookingPending   BookingStatus = "PENDING"
	BookingConfirmed BookingStatus = "CONFIRMED"
	BookingCancelled BookingStatus = "CANCELLED"
	BookingCompleted BookingStatus = "COMPLETED"
	BookingNoShow    BookingStatus = "NO_SHOW"
)

// Active reports whether a booking in this status holds its slot.
func (s BookingStatus) Active() bool {
	return s == BookingPending || s == BookingConfirmed
}

// PaymentMethod is how the cash part of a booking is paid.
type PaymentMethod string

const (
	PaymentCash PaymentMethod = "CASH"
	PaymentPix  PaymentMethod = "PIX"
	PaymentCard PaymentMethod = "CARD"
)

// Valid reports whether m is a known cash payment method.
func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentCash, PaymentPix, PaymentCard:
		return true
	}
	return false
}

// Booking records a reservation of a room over [StartAt, EndAt).  Bookings
// are never deleted; cancellation is a status transition.
//
// Amount invariants:
//  GrossCents = NetCents + DiscountCents
//  NetCents   = CashCents + CreditsCents
type Booking struct {
	ID            uint64         // bookings.id
	UserID        uint64         // bookings.user_id
	RoomID        uint64         // bookings.room_id
	Product       ProductType    // bookings.product_type
	StartAt       time.Time      // bookings.start_at
	EndAt         time.Time      // bookings.end_at
	Status        BookingStatus  // bookings.status
	GrossCents    int64          // bookings.gross_cents
	DiscountCents int64          // bookings.discount_cents
	NetCents      int64          // bookings.net_cents
	CashCents     int64          // bookings.cash_cents
	CreditsCents  int64          // bookings.credits_cents
	CouponCode    *string        // bookings.coupon_code (nullable)
	PaymentMethod *PaymentMethod // bookings.payment_method (nullable)
	PaymentRef    *string        // bookings.payment_ref (nullable)
	PaidAt        *time.Time     // bookings.paid_at (nullable)
	CreatedAt     time.Time      // bookings.created_at
	UpdatedAt     time.Time      // bookings.updated_at
}

// WasPaid reports whether payment for the booking was completed.
func (b *Booking) WasPaid() bool { return b.PaidAt != nil }

// CreditConsumption records how much of one credit grant a booking spent.
type CreditConsumption struct {
	BookingID   uint64 // booking_credit_consumptions.booking_id
	CreditID    uint64 // booking_credit_consumptions.credit_id
	AmountCents int64  // booking_credit_consumptions.amount_cents
}
