package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/room-reservation/internal/availability"
	"github.com/iliyamo/room-reservation/internal/calendar"
	"github.com/iliyamo/room-reservation/internal/model"
	"github.com/iliyamo/room-reservation/internal/shiftwindow"
)

// AvailabilityChecker is implemented by *availability.Checker.
type AvailabilityChecker interface {
	IsAvailable(ctx context.Context, roomID uint64, start, end time.Time, excludeID *uint64) (bool, error)
	Grid(ctx context.Context, roomID uint64, day time.Time) ([]availability.Slot, error)
}

// ShiftGuard is implemented by *shiftwindow.Guard.
type ShiftGuard interface {
	ShouldBlockHourlyPurchase(date time.Time, product model.ProductType) shiftwindow.Decision
}

// AvailabilityHandler serves the read-only calendar endpoints.
type AvailabilityHandler struct {
	Checker  AvailabilityChecker
	Guard    ShiftGuard
	Calendar *calendar.Resolver
}

// Check handles GET /v1/rooms/:id/availability?start=&end=[&exclude=].
func (h *AvailabilityHandler) Check(c echo.Context) error {
	roomID, ok := pathID(c, "id")
	if !ok {
		return badRequest(c, "invalid room id")
	}
	start, err := queryTime(c, "start")
	if err != nil {
		return badRequest(c, err.Error())
	}
	end, err := queryTime(c, "end")
	if err != nil {
		return badRequest(c, err.Error())
	}
	var exclude *uint64
	if raw := c.QueryParam("exclude"); raw != "" {
		id, ok := parseUint(raw)
		if !ok {
			return badRequest(c, "invalid exclude")
		}
		exclude = &id
	}
	free, err := h.Checker.IsAvailable(c.Request().Context(), roomID, start, end, exclude)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"room_id": roomID, "start_at": start, "end_at": end, "available": free})
}

// Grid handles GET /v1/rooms/:id/availability/grid?date=YYYY-MM-DD.
func (h *AvailabilityHandler) Grid(c echo.Context) error {
	roomID, ok := pathID(c, "id")
	if !ok {
		return badRequest(c, "invalid room id")
	}
	day, err := queryDate(c, h.Calendar, "date")
	if err != nil {
		return badRequest(c, err.Error())
	}
	slots, err := h.Checker.Grid(c.Request().Context(), roomID, day)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"room_id": roomID, "date": day.Format(time.DateOnly), "slots": slots})
}

// ShiftWindow handles GET /v1/shift-window?date=YYYY-MM-DD&product=HOURLY.
func (h *AvailabilityHandler) ShiftWindow(c echo.Context) error {
	day, err := queryDate(c, h.Calendar, "date")
	if err != nil {
		return badRequest(c, err.Error())
	}
	product := model.ProductType(c.QueryParam("product"))
	if product == "" {
		product = model.ProductHourly
	}
	if !product.Valid() {
		return badRequest(c, "invalid product")
	}
	// Judge the day at opening time so the civil date is unambiguous.
	d := h.Guard.ShouldBlockHourlyPurchase(h.Calendar.At(day, calendar.OpenHour), product)
	return c.JSON(http.StatusOK, d)
}
