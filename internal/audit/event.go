// Package audit ships ledger events (bookings, credit movements, coupon
// redemptions) to RabbitMQ and writes them to a rotated audit log on the
// consuming side.  Emitting never blocks or fails a caller's transaction.
package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Event types.
const (
	BookingCreated          = "booking.created"
	BookingPaid             = "booking.paid"
	BookingCancelled        = "booking.cancelled"
	CreditsConsumed         = "credits.consumed"
	CreditsRefunded         = "credits.refunded"
	CreditPurchased         = "credit.purchased"
	CreditPurchaseConfirmed = "credit.purchase_confirmed"
	CreditPurchaseCancelled = "credit.purchase_cancelled"
	CouponRedeemed          = "coupon.redeemed"
	CouponRestored          = "coupon.restored"
)

// Event is one audit record.
type Event struct {
	ID          string    `json:"id"`
	Type        string    `json:"type"`
	UserID      uint64    `json:"user_id"`
	BookingID   *uint64   `json:"booking_id,omitempty"`
	CreditID    *uint64   `json:"credit_id,omitempty"`
	AmountCents int64     `json:"amount_cents,omitempty"`
	CouponCode  string    `json:"coupon_code,omitempty"`
	Detail      string    `json:"detail,omitempty"`
	OccurredAt  time.Time `json:"occurred_at"`
}

// NewEvent stamps a fresh id and the current UTC time.
func NewEvent(typ string, userID uint64) Event {
	return Event{ID: uuid.NewString(), Type: typ, UserID: userID, OccurredAt: time.Now().UTC()}
}

// ForBooking sets BookingID.
func (e Event) ForBooking(id uint64) Event { e.BookingID = &id; return e }

// ForCredit sets CreditID.
func (e Event) ForCredit(id uint64) Event { e.CreditID = &id; return e }

// WithAmount sets AmountCents.
func (e Event) WithAmount(cents int64) Event { e.AmountCents = cents; return e }

// WithCoupon sets CouponCode.
func (e Event) WithCoupon(code string) Event { e.CouponCode = code; return e }

// Sink receives audit events.  Implementations must not block for long
// and must swallow their own failures.
type Sink interface {
	Emit(ctx context.Context, ev Event)
}

// Nop discards every event.
type Nop struct{}

func (Nop) Emit(context.Context, Event) {}
