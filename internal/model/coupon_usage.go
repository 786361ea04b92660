package model

import "time"

// CouponContext scopes a redemption to the business process using it.
type CouponContext string

const (
	CouponContextBooking        CouponContext = "BOOKING"
	CouponContextCreditPurchase CouponContext = "CREDIT_PURCHASE"
)

// Valid reports whether c is a known context.
func (c CouponContext) Valid() bool {
	return c == CouponContextBooking || c == CouponContextCreditPurchase
}

// CouponUsageStatus is the state of a redemption row.
type CouponUsageStatus string

const (
	CouponUsed     CouponUsageStatus = "USED"
	CouponRestored CouponUsageStatus = "RESTORED"
)

// CouponUsage is the single row per (UserID, Code, Context).  The unique
// key on that triple guarantees at most one USED row at any time.
type CouponUsage struct {
	ID         uint64            // coupon_usages.id
	UserID     uint64            // coupon_usages.user_id
	Code       string            // coupon_usages.coupon_code
	Context    CouponContext     // coupon_usages.context
	Status     CouponUsageStatus // coupon_usages.status
	BookingID  *uint64           // coupon_usages.booking_id (nullable)
	CreditID   *uint64           // coupon_usages.credit_id (nullable)
	UsedAt     time.Time         // coupon_usages.used_at
	RestoredAt *time.Time        // coupon_usages.restored_at (nullable)
}
