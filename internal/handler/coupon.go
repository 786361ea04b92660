package handler

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/room-reservation/internal/coupon"
	"github.com/iliyamo/room-reservation/internal/middleware"
	"github.com/iliyamo/room-reservation/internal/model"
)

// CouponChecker is implemented by *coupon.Manager.
type CouponChecker interface {
	Check(ctx context.Context, userID uint64, code string, cctx model.CouponContext) (coupon.CheckResult, error)
}

// CouponHandler serves coupon eligibility.
type CouponHandler struct {
	Coupons CouponChecker
}

// Check handles GET /v1/coupons/:code/check?context=BOOKING.
func (h *CouponHandler) Check(c echo.Context) error {
	userID, ok := middleware.UserID(c)
	if !ok {
		return unauthorized(c)
	}
	cctx := model.CouponContext(c.QueryParam("context"))
	if cctx == "" {
		cctx = model.CouponContextBooking
	}
	if !cctx.Valid() {
		return badRequest(c, "invalid context")
	}
	res, err := h.Coupons.Check(c.Request().Context(), userID, c.Param("code"), cctx)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, res)
}
