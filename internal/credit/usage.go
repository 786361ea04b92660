package credit

import (
	"time"

	"github.com/iliyamo/room-reservation/internal/calendar"
	"github.com/iliyamo/room-reservation/internal/model"
)

// Usage validation codes.  Clients key their messages on these values.
const (
	UsageInvalidInterval = "USAGE_INVALID_INTERVAL"
	UsageWrongDuration   = "USAGE_WRONG_DURATION"
	UsageWrongDay        = "USAGE_WRONG_DAY"
	UsageUnalignedBlock  = "USAGE_UNALIGNED_BLOCK"
)

// UsageResult is the outcome of validating one credit against one booking.
type UsageResult struct {
	Valid bool   `json:"valid"`
	Code  string `json:"code,omitempty"`
}

type dayRule int

const (
	weekdaysOnly dayRule = iota
	saturdayOnly
)

type shapeRule int

const (
	anyDuration shapeRule = iota
	exactlyOneHour
	anyShiftBlock
	morningBlock
)

type usageRule struct {
	day   dayRule
	shape shapeRule
}

var usageRules = map[model.UsageType]usageRule{
	model.UsageHourly:         {weekdaysOnly, exactlyOneHour},
	model.UsageShift:          {weekdaysOnly, anyShiftBlock},
	model.UsageSaturdayHourly: {saturdayOnly, exactlyOneHour},
	model.UsageSaturdayShift:  {saturdayOnly, morningBlock},
}

// Untagged credits are judged by kind.  Any duration is accepted on purpose;
// older grants were sold without shape restrictions.
var legacyRules = map[model.CreditKind]usageRule{
	model.CreditManual:         {weekdaysOnly, anyDuration},
	model.CreditManualSaturday: {saturdayOnly, anyDuration},
}

var defaultLegacyRule = usageRule{weekdaysOnly, anyDuration}

const shiftLength = 4 * time.Hour

// UsageValidator checks credit usage types against booking shapes.
type UsageValidator struct {
	cal *calendar.Resolver
}

// NewUsageValidator builds a validator working in the business calendar.
func NewUsageValidator(cal *calendar.Resolver) *UsageValidator {
	return &UsageValidator{cal: cal}
}

// Validate decides whether c may pay for a booking over [start, end).
func (v *UsageValidator) Validate(c *model.Credit, start, end time.Time) UsageResult {
	if !end.After(start) {
		return UsageResult{Code: UsageInvalidInterval}
	}
	rule := ruleFor(c)

	switch rule.day {
	case weekdaysOnly:
		if !v.cal.IsShiftDay(start) {
			return UsageResult{Code: UsageWrongDay}
		}
	case saturdayOnly:
		if !v.cal.IsSaturday(start) {
			return UsageResult{Code: UsageWrongDay}
		}
	}

	d := end.Sub(start)
	switch rule.shape {
	case exactlyOneHour:
		if d != time.Hour {
			return UsageResult{Code: UsageWrongDuration}
		}
	case anyShiftBlock:
		if d != shiftLength {
			return UsageResult{Code: UsageWrongDuration}
		}
		if _, ok := v.cal.MatchBlock(start, end); !ok {
			return UsageResult{Code: UsageUnalignedBlock}
		}
	case morningBlock:
		if d != shiftLength {
			return UsageResult{Code: UsageWrongDuration}
		}
		if b, ok := v.cal.MatchBlock(start, end); !ok || b != calendar.MorningBlock {
			return UsageResult{Code: UsageUnalignedBlock}
		}
	}
	return UsageResult{Valid: true}
}

func ruleFor(c *model.Credit) usageRule {
	if c.UsageType != nil {
		if r, ok := usageRules[*c.UsageType]; ok {
			return r
		}
	}
	if r, ok := legacyRules[c.Kind]; ok {
		return r
	}
	return defaultLegacyRule
}
