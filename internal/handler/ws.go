package handler

import (
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/libreserve/library-seat-reservation/internal/hub"
)

// upgrader promotes plain HTTP requests to websocket connections.
// Origin checking is left to the reverse proxy in front of the
// service, matching how the REST surface trusts X-Forwarded headers.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// WSHandler exposes the hub over GET /v1/ws.
type WSHandler struct {
	Hub *hub.Hub
}

// Serve upgrades the request and hands the connection to the hub,
// which assigns the connection id and starts the pumps.  After a
// successful upgrade the connection owns the socket; returning nil
// keeps Echo from writing to it again.
func (h *WSHandler) Serve(c echo.Context) error {
	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "websocket upgrade failed"})
	}
	h.Hub.Attach(conn)
	return nil
}
