// This file defines handlers for the public browsing API: the seat
// and time-slot catalogs guests need to render the seating map
// before authenticating.  Timestamps and admin flags are filtered
// from responses.

package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/libreserve/library-seat-reservation/internal/repository"
)

// PublicHandler aggregates the read-only reference-data repositories
// exposed without authentication.
type PublicHandler struct {
	Seats *repository.SeatRepo     // provides access to seat data
	Slots *repository.TimeSlotRepo // provides access to time slot data
}

// PublicSeat represents a seat exposed via the public API.  It
// contains only safe fields.
type PublicSeat struct {
	ID         uint64 `json:"id"`
	RoomName   string `json:"room_name"`
	RowLabel   string `json:"row_label"`
	SeatNumber uint32 `json:"seat_number"`
}

// PublicTimeSlot represents a time slot exposed via the public API.
type PublicTimeSlot struct {
	ID       uint64 `json:"id"`
	StartsAt string `json:"starts_at"`
	EndsAt   string `json:"ends_at"`
}

// GetSeats handles GET /v1/seats and returns all active seats
// ordered the way a seat map is rendered.
func (h *PublicHandler) GetSeats(c echo.Context) error {
	seats, err := h.Seats.ListActive(c.Request().Context())
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
	}
	out := make([]PublicSeat, 0, len(seats))
	for _, s := range seats {
		out = append(out, PublicSeat{ID: s.ID, RoomName: s.RoomName, RowLabel: s.RowLabel, SeatNumber: s.SeatNumber})
	}
	return c.JSON(http.StatusOK, echo.Map{"seats": out})
}

// GetTimeSlots handles GET /v1/time-slots and returns the active
// slots in chronological order.
func (h *PublicHandler) GetTimeSlots(c echo.Context) error {
	slots, err := h.Slots.ListActive(c.Request().Context())
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
	}
	out := make([]PublicTimeSlot, 0, len(slots))
	for _, t := range slots {
		out = append(out, PublicTimeSlot{ID: t.ID, StartsAt: t.StartsAt, EndsAt: t.EndsAt})
	}
	return c.JSON(http.StatusOK, echo.Map{"time_slots": out})
}
