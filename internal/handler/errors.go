package handler

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/room-reservation/internal/booking"
	"github.com/iliyamo/room-reservation/internal/coupon"
	"github.com/iliyamo/room-reservation/internal/credit"
	"github.com/iliyamo/room-reservation/internal/repository"
	"github.com/iliyamo/room-reservation/internal/shiftwindow"
)

var bookingStatus = map[string]int{
	booking.CodeInvalidInterval:      http.StatusBadRequest,
	booking.CodeInvalidProduct:       http.StatusBadRequest,
	booking.CodeProductShapeMismatch: http.StatusBadRequest,
	booking.CodeOutsideOpeningHours:  http.StatusBadRequest,
	booking.CodeInvalidPayment:       http.StatusBadRequest,
	booking.CodeInvalidAmount:        http.StatusBadRequest,
	booking.CodeInvalidUsageType:     http.StatusBadRequest,
	booking.CodeRoomNotFound:         http.StatusNotFound,
	booking.CodeBookingNotFound:      http.StatusNotFound,
	booking.CodeCreditNotFound:       http.StatusNotFound,
	booking.CodeSlotUnavailable:      http.StatusConflict,
	booking.CodeInvalidState:         http.StatusConflict,
	shiftwindow.CodeProtected:        http.StatusUnprocessableEntity,
}

var creditStatus = map[string]int{
	credit.CodeInsufficientCredits: http.StatusUnprocessableEntity,
	credit.CodeConsumedByAnother:   http.StatusConflict,
	credit.CodePartialConsumption:  http.StatusConflict,
}

var couponStatus = map[string]int{
	coupon.CodeInvalid:             http.StatusBadRequest,
	coupon.CodeAlreadyUsed:         http.StatusConflict,
	coupon.CodeRequiresCashPayment: http.StatusUnprocessableEntity,
}

// writeError renders a domain failure as {"error": CODE, ...}.  Anything
// unrecognised is a 500 without details; the cause is left under "error"
// for the request logger.
func writeError(c echo.Context, err error) error {
	var be *booking.Error
	var ce *credit.Error
	var ke *coupon.Error
	switch {
	case errors.As(err, &be):
		body := echo.Map{"error": be.Code}
		if be.Detail != "" {
			body["message"] = be.Detail
		}
		return c.JSON(statusOr(bookingStatus, be.Code), body)
	case errors.As(err, &ce):
		body := echo.Map{"error": ce.Code}
		switch ce.Code {
		case credit.CodeInsufficientCredits:
			body["available"], body["required"] = ce.Available, ce.Required
		case credit.CodePartialConsumption:
			body["consumed"], body["expected"] = ce.Consumed, ce.Expected
		}
		return c.JSON(statusOr(creditStatus, ce.Code), body)
	case errors.As(err, &ke):
		return c.JSON(statusOr(couponStatus, ke.Code), echo.Map{"error": ke.Code})
	case repository.IsDuplicateKey(err), errors.Is(err, repository.ErrConflict):
		return c.JSON(http.StatusConflict, echo.Map{"error": "CONFLICT"})
	case errors.Is(err, repository.ErrNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "NOT_FOUND"})
	case errors.Is(err, repository.ErrForbidden):
		return c.JSON(http.StatusForbidden, echo.Map{"error": "FORBIDDEN"})
	}
	c.Set("error", err)
	return c.JSON(http.StatusInternalServerError, echo.Map{"error": "INTERNAL"})
}

func statusOr(m map[string]int, code string) int {
	if s, ok := m[code]; ok {
		return s
	}
	return http.StatusBadRequest
}

func badRequest(c echo.Context, msg string) error {
	return c.JSON(http.StatusBadRequest, echo.Map{"error": "BAD_REQUEST", "message": msg})
}

func unauthorized(c echo.Context) error {
	return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
}
