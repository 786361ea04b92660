package handler

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/room-reservation/internal/booking"
	"github.com/iliyamo/room-reservation/internal/middleware"
	"github.com/iliyamo/room-reservation/internal/model"
)

// CreditLister lists a user's grants.
type CreditLister interface {
	ListByUser(ctx context.Context, userID uint64) ([]model.Credit, error)
}

// CreditHandler serves the credit endpoints.
type CreditHandler struct {
	Service BookingService
	Credits CreditLister
}

// Validate handles POST /v1/credits/validate: can the caller's credit pay
// for the booking in the body?
func (h *CreditHandler) Validate(c echo.Context) error {
	userID, ok := middleware.UserID(c)
	if !ok {
		return unauthorized(c)
	}
	var body bookingRequest
	if ok, err := bindValid(c, &body); !ok {
		return err
	}
	req := body.toCreate(userID)
	req.UseCredits = true
	req.CouponCode, req.RequireCoupon = "", false
	q, err := h.Service.Preview(c.Request().Context(), req)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{
		"required_cents": q.GrossCents,
		"credits_cents":  q.CreditsCents,
		"cash_cents":     q.CashCents,
		"covered":        q.CreditsCents == q.GrossCents,
	})
}

// Balance handles GET /v1/credits/balance.  With room_id, start and end it
// returns what could be spent on that slot; without, every grant.
func (h *CreditHandler) Balance(c echo.Context) error {
	userID, ok := middleware.UserID(c)
	if !ok {
		return unauthorized(c)
	}
	ctx := c.Request().Context()
	if raw := c.QueryParam("room_id"); raw != "" {
		roomID, ok := parseUint(raw)
		if !ok {
			return badRequest(c, "invalid room_id")
		}
		start, err := queryTime(c, "start")
		if err != nil {
			return badRequest(c, err.Error())
		}
		end, err := queryTime(c, "end")
		if err != nil {
			return badRequest(c, err.Error())
		}
		n, err := h.Service.CreditBalance(ctx, userID, roomID, start, end)
		if err != nil {
			return writeError(c, err)
		}
		return c.JSON(http.StatusOK, echo.Map{"room_id": roomID, "available_cents": n})
	}

	credits, err := h.Credits.ListByUser(ctx, userID)
	if err != nil {
		return writeError(c, err)
	}
	var total int64
	for _, cr := range credits {
		if cr.Status == model.CreditConfirmed {
			total += cr.RemainingCents
		}
	}
	if credits == nil {
		credits = []model.Credit{}
	}
	return c.JSON(http.StatusOK, echo.Map{"total_cents": total, "credits": credits})
}

type purchaseRequest struct {
	UsageType   string  `json:"usage_type" validate:"required,oneof=HOURLY SHIFT SATURDAY_HOURLY SATURDAY_SHIFT"`
	RoomID      *uint64 `json:"room_id" validate:"omitempty,gt=0"`
	AmountCents int64   `json:"amount_cents" validate:"required,gt=0"`
	CouponCode  string  `json:"coupon_code" validate:"omitempty,max=64"`
}

// Purchase handles POST /v1/credits/purchase.
func (h *CreditHandler) Purchase(c echo.Context) error {
	userID, ok := middleware.UserID(c)
	if !ok {
		return unauthorized(c)
	}
	var body purchaseRequest
	if ok, err := bindValid(c, &body); !ok {
		return err
	}
	res, err := h.Service.PurchaseCredits(c.Request().Context(), booking.PurchaseRequest{
		UserID:      userID,
		UsageType:   model.UsageType(body.UsageType),
		RoomID:      body.RoomID,
		AmountCents: body.AmountCents,
		CouponCode:  body.CouponCode,
	})
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, res)
}

// Confirm handles POST /v1/credits/:id/confirm (admin).
func (h *CreditHandler) Confirm(c echo.Context) error {
	id, ok := pathID(c, "id")
	if !ok {
		return badRequest(c, "invalid credit id")
	}
	cr, err := h.Service.ConfirmCreditPurchase(c.Request().Context(), id)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, cr)
}

// Cancel handles POST /v1/credits/:id/cancel.
func (h *CreditHandler) Cancel(c echo.Context) error {
	userID, ok := middleware.UserID(c)
	if !ok {
		return unauthorized(c)
	}
	id, ok := pathID(c, "id")
	if !ok {
		return badRequest(c, "invalid credit id")
	}
	cr, err := h.Service.CancelCreditPurchase(c.Request().Context(), id, userID)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, cr)
}
