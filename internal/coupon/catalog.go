// Package coupon validates and redeems discount codes.  A code is
// redeemable once per (user, code, context); a redemption released by a
// cancellation before payment can be claimed again.
package coupon

import (
	"strings"
	"time"

	"github.com/iliyamo/room-reservation/internal/model"
)

// DiscountKind says how Definition.Value is interpreted.
type DiscountKind string

const (
	DiscountPercent DiscountKind = "PERCENT" // Value is whole percent points
	DiscountFixed   DiscountKind = "FIXED"   // Value is cents
)

// Definition is one catalog entry.
type Definition struct {
	Code       string                `json:"code"`
	Kind       DiscountKind          `json:"kind"`
	Value      int64                 `json:"value"`
	Contexts   []model.CouponContext `json:"contexts"`
	ValidUntil *time.Time            `json:"valid_until,omitempty"`
}

// Allows reports whether the definition may be used in ctx at now.
func (d Definition) Allows(ctx model.CouponContext, now time.Time) bool {
	if d.ValidUntil != nil && !now.Before(*d.ValidUntil) {
		return false
	}
	for _, c := range d.Contexts {
		if c == ctx {
			return true
		}
	}
	return false
}

// DefaultDefinitions is the code table shipped with the service.
var DefaultDefinitions = []Definition{
	{Code: "BEMVINDO10", Kind: DiscountPercent, Value: 10,
		Contexts: []model.CouponContext{model.CouponContextBooking, model.CouponContextCreditPurchase}},
	{Code: "PRIMEIRAHORA", Kind: DiscountFixed, Value: 1500,
		Contexts: []model.CouponContext{model.CouponContextBooking}},
	{Code: "CREDITO15", Kind: DiscountPercent, Value: 15,
		Contexts: []model.CouponContext{model.CouponContextCreditPurchase}},
	{Code: "CORTESIA", Kind: DiscountPercent, Value: 100,
		Contexts: []model.CouponContext{model.CouponContextBooking}},
}

// Catalog is an immutable lookup table of definitions.
type Catalog struct {
	defs map[string]Definition
}

// NewCatalog indexes defs by normalized code.
func NewCatalog(defs []Definition) *Catalog {
	m := make(map[string]Definition, len(defs))
	for _, d := range defs {
		d.Code = Normalize(d.Code)
		m[d.Code] = d
	}
	return &Catalog{defs: m}
}

// Lookup returns the definition for code.
func (c *Catalog) Lookup(code string) (Definition, bool) {
	d, ok := c.defs[Normalize(code)]
	return d, ok
}

// Normalize upper-cases and trims a code as typed by a customer.
func Normalize(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
