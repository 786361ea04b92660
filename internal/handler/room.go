package handler

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/room-reservation/internal/model"
)

// RoomLister is implemented by *repository.RoomRepo.
type RoomLister interface {
	List(ctx context.Context) ([]model.Room, error)
}

// RoomHandler serves the public room catalogue.
type RoomHandler struct {
	Rooms RoomLister
}

type roomView struct {
	ID               uint64 `json:"id"`
	Name             string `json:"name"`
	Tier             int    `json:"tier"`
	HourlyPriceCents int64  `json:"hourly_price_cents"`
	ShiftPriceCents  int64  `json:"shift_price_cents"`
	DayPriceCents    int64  `json:"day_price_cents"`
}

// List handles GET /v1/rooms.
func (h *RoomHandler) List(c echo.Context) error {
	rooms, err := h.Rooms.List(c.Request().Context())
	if err != nil {
		return writeError(c, err)
	}
	out := make([]roomView, 0, len(rooms))
	for _, r := range rooms {
		out = append(out, roomView{
			ID:               r.ID,
			Name:             r.Name,
			Tier:             r.Tier,
			HourlyPriceCents: r.HourlyPriceCents,
			ShiftPriceCents:  r.ShiftPriceCents,
			DayPriceCents:    r.DayPriceCents,
		})
	}
	return c.JSON(http.StatusOK, echo.Map{"items": out})
}
