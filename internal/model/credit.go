package model

import "time"

// UsageType restricts which booking shapes a credit can pay for.  A nil
// usage type marks a legacy credit.
type UsageType string

const (
	UsageHourly         UsageType = "HOURLY"
	UsageShift          UsageType = "SHIFT"
	UsageSaturdayHourly UsageType = "SATURDAY_HOURLY"
	UsageSaturdayShift  UsageType = "SATURDAY_SHIFT"
)

// Valid reports whether u is a known usage type.
func (u UsageType) Valid() bool {
	switch u {
	case UsageHourly, UsageShift, UsageSaturdayHourly, UsageSaturdayShift:
		return true
	}
	return false
}

// CreditKind is the base type of a grant.  Legacy credits are classified
// by kind alone.
type CreditKind string

const (
	CreditManual         CreditKind = "MANUAL"
	CreditManualSaturday CreditKind = "MANUAL_SATURDAY"
	CreditPurchase       CreditKind = "PURCHASE"
	CreditRefund         CreditKind = "REFUND"
)

// CreditStatus is the lifecycle state of a grant.
type CreditStatus string

const (
	CreditPending   CreditStatus = "PENDING"
	CreditConfirmed CreditStatus = "CONFIRMED"
	CreditUsed      CreditStatus = "USED"
)

// Credit is a pre-paid balance grant owned by a user.  RemainingCents only
// ever decreases, and only through a conditional decrement.
type Credit struct {
	ID             uint64       // credits.id
	UserID         uint64       // credits.user_id
	RoomID         *uint64      // credits.room_id (nullable scope)
	RoomTier       *int         // tier of credits.room_id, loaded by join
	UsageType      *UsageType   // credits.usage_type (nullable: legacy)
	Kind           CreditKind   // credits.kind
	OriginalCents  int64        // credits.original_cents
	RemainingCents int64        // credits.remaining_cents
	PriceCents     int64        // credits.price_cents, what the buyer pays
	CouponCode     *string      // credits.coupon_code (nullable)
	Status         CreditStatus // credits.status
	ExpiresAt      *time.Time   // credits.expires_at (nullable)
	CreatedAt      time.Time    // credits.created_at
}

// Exhausted reports whether nothing is left to spend, whatever the status.
func (c *Credit) Exhausted() bool { return c.RemainingCents <= 0 }

// ExpiredAt reports whether the grant is expired at now.
func (c *Credit) ExpiredAt(now time.Time) bool {
	return c.ExpiresAt != nil && !c.ExpiresAt.After(now)
}
