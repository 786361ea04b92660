// Package router registers the HTTP routes on an echo instance.
package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/room-reservation/internal/handler"
	"github.com/iliyamo/room-reservation/internal/middleware"
)

// Deps are the handlers and route middleware.  Cache and Limit may be nil.
type Deps struct {
	JWTSecret    string
	DB           handler.Pinger
	Rooms        *handler.RoomHandler
	Availability *handler.AvailabilityHandler
	Bookings     *handler.BookingHandler
	Credits      *handler.CreditHandler
	Coupons      *handler.CouponHandler
	Cache        echo.MiddlewareFunc
	Limit        echo.MiddlewareFunc
}

// Register wires every route.
//
//	public     /healthz /readyz /v1/rooms /v1/rooms/:id/availability[/grid] /v1/shift-window
//	customer   /v1/bookings... /v1/credits... /v1/coupons/:code/check
//	admin      /v1/admin/bookings/:id/confirm-payment /v1/admin/credits/:id/confirm
func Register(e *echo.Echo, d Deps) {
	e.Validator = handler.NewValidator()

	e.GET("/healthz", handler.Health)
	e.GET("/readyz", handler.Ready(d.DB))

	cache := d.Cache
	if cache == nil {
		cache = passThrough
	}
	limit := d.Limit
	if limit == nil {
		limit = passThrough
	}

	pub := e.Group("/v1")
	pub.GET("/rooms", d.Rooms.List, cache)
	pub.GET("/rooms/:id/availability", d.Availability.Check)
	pub.GET("/rooms/:id/availability/grid", d.Availability.Grid, cache)
	pub.GET("/shift-window", d.Availability.ShiftWindow)

	auth := e.Group("/v1", middleware.JWTAuth(d.JWTSecret), limit)
	customer := auth.Group("", middleware.RequireRole(middleware.RoleCustomer, middleware.RoleAdmin))
	customer.GET("/bookings", d.Bookings.ListMine)
	customer.POST("/bookings", d.Bookings.Create)
	customer.POST("/bookings/quote", d.Bookings.Quote)
	customer.POST("/bookings/:id/cancel", d.Bookings.Cancel)
	customer.POST("/credits/validate", d.Credits.Validate)
	customer.GET("/credits/balance", d.Credits.Balance)
	customer.POST("/credits/purchase", d.Credits.Purchase)
	customer.POST("/credits/:id/cancel", d.Credits.Cancel)
	customer.GET("/coupons/:code/check", d.Coupons.Check)

	admin := auth.Group("/admin", middleware.RequireRole(middleware.RoleAdmin))
	admin.POST("/bookings/:id/confirm-payment", d.Bookings.ConfirmPayment)
	admin.POST("/credits/:id/confirm", d.Credits.Confirm)
}

func passThrough(next echo.HandlerFunc) echo.HandlerFunc { return next }
