package booking

import "fmt"

// Stable booking failure codes.
const (
	CodeInvalidInterval      = "INVALID_INTERVAL"
	CodeInvalidProduct       = "INVALID_PRODUCT"
	CodeProductShapeMismatch = "PRODUCT_SHAPE_MISMATCH"
	CodeOutsideOpeningHours  = "OUTSIDE_OPENING_HOURS"
	CodeRoomNotFound         = "ROOM_NOT_FOUND"
	CodeSlotUnavailable      = "SLOT_UNAVAILABLE"
	CodeBookingNotFound      = "BOOKING_NOT_FOUND"
	CodeCreditNotFound       = "CREDIT_NOT_FOUND"
	CodeInvalidState         = "INVALID_STATE"
	CodeInvalidPayment       = "INVALID_PAYMENT_METHOD"
	CodeInvalidAmount        = "INVALID_AMOUNT"
	CodeInvalidUsageType     = "INVALID_USAGE_TYPE"
)

// Error is a refused booking operation.  No state was changed.
type Error struct {
	Code   string
	Detail string
}

func (e *Error) Error() string {
	if e.Detail == "" {
		return e.Code
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Detail)
}

// Is matches on Code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

func fail(code, format string, args ...any) *Error {
	return &Error{Code: code, Detail: fmt.Sprintf(format, args...)}
}

var (
	ErrSlotUnavailable = &Error{Code: CodeSlotUnavailable}
	ErrBookingNotFound = &Error{Code: CodeBookingNotFound}
	ErrCreditNotFound  = &Error{Code: CodeCreditNotFound}
	ErrInvalidState    = &Error{Code: CodeInvalidState}
)
