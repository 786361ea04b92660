package credit

import "fmt"

// Stable failure codes surfaced to clients.
const (
	CodeInsufficientCredits = "INSUFFICIENT_CREDITS"
	CodeConsumedByAnother   = "CREDIT_CONSUMED_BY_ANOTHER"
	CodePartialConsumption  = "PARTIAL_CONSUMPTION"
)

// Error is a ledger failure.  Every Error means the surrounding transaction
// must be rolled back.
type Error struct {
	Code      string
	Available int64  // INSUFFICIENT_CREDITS
	Required  int64  // INSUFFICIENT_CREDITS
	CreditID  uint64 // CREDIT_CONSUMED_BY_ANOTHER
	Consumed  int64  // PARTIAL_CONSUMPTION
	Expected  int64  // PARTIAL_CONSUMPTION
}

func (e *Error) Error() string {
	switch e.Code {
	case CodeInsufficientCredits:
		return fmt.Sprintf("%s: available %d, required %d", e.Code, e.Available, e.Required)
	case CodeConsumedByAnother:
		return fmt.Sprintf("%s: credit %d", e.Code, e.CreditID)
	case CodePartialConsumption:
		return fmt.Sprintf("%s: consumed %d, expected %d", e.Code, e.Consumed, e.Expected)
	}
	return e.Code
}

// Is matches on Code so callers can use errors.Is with the sentinels below.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// Sentinels for errors.Is comparisons.
var (
	ErrInsufficientCredits = &Error{Code: CodeInsufficientCredits}
	ErrConsumedByAnother   = &Error{Code: CodeConsumedByAnother}
	ErrPartialConsumption  = &Error{Code: CodePartialConsumption}
)

func insufficient(available, required int64) *Error {
	return &Error{Code: CodeInsufficientCredits, Available: available, Required: required}
}
