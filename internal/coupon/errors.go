package coupon

// Stable coupon failure codes.  All of them are raised before any write.
const (
	CodeInvalid             = "COUPON_INVALID"
	CodeAlreadyUsed         = "COUPON_ALREADY_USED"
	CodeRequiresCashPayment = "COUPON_REQUIRES_CASH_PAYMENT"
)

// Error is a coupon refusal.
type Error struct {
	Code string
}

func (e *Error) Error() string { return e.Code }

// Is matches on Code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

var (
	ErrInvalid             = &Error{Code: CodeInvalid}
	ErrAlreadyUsed         = &Error{Code: CodeAlreadyUsed}
	ErrRequiresCashPayment = &Error{Code: CodeRequiresCashPayment}
)
