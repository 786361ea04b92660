package coupon

// DefaultMinimumPayable is the lowest amount, in cents, a discounted charge
// may reach.
const DefaultMinimumPayable int64 = 100

// Quote splits a gross amount into final and discount.
// Gross == Final + Discount always holds.
type Quote struct {
	Gross    int64 `json:"gross"`
	Discount int64 `json:"discount"`
	Final    int64 `json:"final"`
}

// Apply prices gross with d.  The discount never pushes the final amount
// under floor, and an amount already at or below floor gets no discount.
func Apply(gross int64, d Definition, floor int64) Quote {
	q := Quote{Gross: gross, Final: gross}
	if gross <= 0 || gross <= floor {
		return q
	}
	var discount int64
	switch d.Kind {
	case DiscountPercent:
		pct := d.Value
		if pct > 100 {
			pct = 100
		}
		discount = gross * pct / 100
	case DiscountFixed:
		discount = d.Value
	}
	if discount < 0 {
		discount = 0
	}
	if gross-discount < floor {
		discount = gross - floor
	}
	q.Discount = discount
	q.Final = gross - discount
	return q
}
