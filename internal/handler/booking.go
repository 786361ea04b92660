package handler

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/room-reservation/internal/booking"
	"github.com/iliyamo/room-reservation/internal/middleware"
	"github.com/iliyamo/room-reservation/internal/model"
)

// BookingService is implemented by *booking.Service.
type BookingService interface {
	Create(ctx context.Context, req booking.CreateRequest) (*booking.CreateResult, error)
	Preview(ctx context.Context, req booking.CreateRequest) (booking.Quote, error)
	ConfirmPayment(ctx context.Context, bookingID uint64, method model.PaymentMethod, ref string) (*model.Booking, error)
	Cancel(ctx context.Context, bookingID, userID uint64) (*booking.CancelResult, error)
	CreditBalance(ctx context.Context, userID, roomID uint64, start, end time.Time) (int64, error)
	PurchaseCredits(ctx context.Context, req booking.PurchaseRequest) (*booking.PurchaseResult, error)
	ConfirmCreditPurchase(ctx context.Context, creditID uint64) (*model.Credit, error)
	CancelCreditPurchase(ctx context.Context, creditID, userID uint64) (*model.Credit, error)
}

// BookingLister lists a user's bookings, newest first.
type BookingLister interface {
	ListByUser(ctx context.Context, userID uint64, limit int) ([]model.Booking, error)
}

// BookingHandler serves the booking endpoints.  JWTAuth runs first.
type BookingHandler struct {
	Service  BookingService
	Bookings BookingLister
}

type bookingRequest struct {
	RoomID        uint64    `json:"room_id" validate:"required"`
	Product       string    `json:"product_type" validate:"required,oneof=HOURLY SHIFT DAY_PASS"`
	StartAt       time.Time `json:"start_at" validate:"required"`
	EndAt         time.Time `json:"end_at" validate:"required,gtfield=StartAt"`
	UseCredits    bool      `json:"use_credits"`
	CouponCode    string    `json:"coupon_code" validate:"omitempty,max=64"`
	RequireCoupon bool      `json:"require_coupon"`
	PaymentMethod string    `json:"payment_method" validate:"omitempty,oneof=CASH PIX CARD"`
}

func (r bookingRequest) toCreate(userID uint64) booking.CreateRequest {
	return booking.CreateRequest{
		UserID:        userID,
		RoomID:        r.RoomID,
		Product:       model.ProductType(r.Product),
		Start:         r.StartAt,
		End:           r.EndAt,
		UseCredits:    r.UseCredits,
		CouponCode:    r.CouponCode,
		RequireCoupon: r.RequireCoupon,
		PaymentMethod: model.PaymentMethod(r.PaymentMethod),
	}
}

// Create handles POST /v1/bookings.
func (h *BookingHandler) Create(c echo.Context) error {
	userID, ok := middleware.UserID(c)
	if !ok {
		return unauthorized(c)
	}
	var body bookingRequest
	if ok, err := bindValid(c, &body); !ok {
		return err
	}
	res, err := h.Service.Create(c.Request().Context(), body.toCreate(userID))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, res)
}

// Quote handles POST /v1/bookings/quote.  It prices a booking without
// writing anything.
func (h *BookingHandler) Quote(c echo.Context) error {
	userID, ok := middleware.UserID(c)
	if !ok {
		return unauthorized(c)
	}
	var body bookingRequest
	if ok, err := bindValid(c, &body); !ok {
		return err
	}
	q, err := h.Service.Preview(c.Request().Context(), body.toCreate(userID))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, q)
}

// Cancel handles POST /v1/bookings/:id/cancel.
func (h *BookingHandler) Cancel(c echo.Context) error {
	userID, ok := middleware.UserID(c)
	if !ok {
		return unauthorized(c)
	}
	id, ok := pathID(c, "id")
	if !ok {
		return badRequest(c, "invalid booking id")
	}
	res, err := h.Service.Cancel(c.Request().Context(), id, userID)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, res)
}

type confirmPaymentRequest struct {
	Method string `json:"payment_method" validate:"required,oneof=CASH PIX CARD"`
	Ref    string `json:"payment_ref" validate:"max=128"`
}

// ConfirmPayment handles POST /v1/bookings/:id/confirm-payment (admin).
func (h *BookingHandler) ConfirmPayment(c echo.Context) error {
	id, ok := pathID(c, "id")
	if !ok {
		return badRequest(c, "invalid booking id")
	}
	var body confirmPaymentRequest
	if ok, err := bindValid(c, &body); !ok {
		return err
	}
	b, err := h.Service.ConfirmPayment(c.Request().Context(), id, model.PaymentMethod(body.Method), body.Ref)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, b)
}

// ListMine handles GET /v1/bookings?limit=.
func (h *BookingHandler) ListMine(c echo.Context) error {
	userID, ok := middleware.UserID(c)
	if !ok {
		return unauthorized(c)
	}
	limit := 50
	if raw := c.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > 200 {
			return badRequest(c, "limit must be 1..200")
		}
		limit = n
	}
	items, err := h.Bookings.ListByUser(c.Request().Context(), userID, limit)
	if err != nil {
		return writeError(c, err)
	}
	if items == nil {
		items = []model.Booking{}
	}
	return c.JSON(http.StatusOK, echo.Map{"items": items})
}
