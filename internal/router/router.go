// Package router wires HTTP routes to their handlers and middleware.
package router

import (
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"github.com/libreserve/library-seat-reservation/internal/config"
	"github.com/libreserve/library-seat-reservation/internal/handler"
	"github.com/libreserve/library-seat-reservation/internal/middleware"
)

// RegisterRoutes registers routes that do not require
// authentication: the health check, the websocket entry point and
// the public browse surface clients need to render a seat map before
// logging in.  The slot snapshot endpoint sits behind the response
// cache because it is the hottest read in the system.
func RegisterRoutes(e *echo.Echo, ws *handler.WSHandler, pub *handler.PublicHandler, res *handler.ReservationHandler, rdb *redis.Client) {
	e.GET("/healthz", handler.Health)
	e.GET("/v1/ws", ws.Serve)

	cacheCfg := config.LoadCacheConfig()
	e.GET("/v1/seats", pub.GetSeats, middleware.ResponseCache(cacheCfg, rdb))
	e.GET("/v1/time-slots", pub.GetTimeSlots, middleware.ResponseCache(cacheCfg, rdb))
	e.GET("/v1/reservations", res.ListBySlot, middleware.ResponseCache(cacheCfg, rdb))
}

// RegisterReservations registers the authenticated reservation
// endpoints.  All routes require a valid access token; finalization
// and self-service listing are open to members and admins alike,
// cancellation authorization (owner or admin) is decided in the
// handler because it depends on the row.
func RegisterReservations(e *echo.Echo, h *handler.ReservationHandler, jwtSecret string) {
	g := e.Group(
		"/v1",
		middleware.JWTAuth(jwtSecret),
		middleware.RequireRole("MEMBER", "ADMIN"),
	)
	g.POST("/reservations", h.Create)
	g.PATCH("/reservations/:id/cancel", h.Cancel)
	g.GET("/reservations/:id", h.Get)
	g.GET("/my-reservations", h.ListMine)
}
