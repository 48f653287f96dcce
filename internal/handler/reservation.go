package handler

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/libreserve/library-seat-reservation/internal/model"
	"github.com/libreserve/library-seat-reservation/internal/queue"
	"github.com/libreserve/library-seat-reservation/internal/repository"
	"github.com/libreserve/library-seat-reservation/internal/service"
	"github.com/libreserve/library-seat-reservation/internal/store"
)

// connectionIDHeader carries the websocket connection identifier so
// the finalization endpoint can match the caller against the hold
// store's recorded holder.  Clients receive the id in the hub's
// welcome frame.
const connectionIDHeader = "X-Connection-Id"

// ReservationStore is the durable-repository surface the handler
// needs.  repository.ReservationRepo implements it; tests substitute
// a fake.
type ReservationStore interface {
	CreateActive(ctx context.Context, accountID, seatID, timeSlotID uint64, reservationDate string) (*model.Reservation, error)
	GetByID(ctx context.Context, id uint64) (*model.Reservation, error)
	Cancel(ctx context.Context, id, accountID uint64, isAdmin bool) (*model.Reservation, error)
	ListActiveBySlot(ctx context.Context, reservationDate string, timeSlotID uint64) ([]model.Reservation, error)
	ListByAccount(ctx context.Context, accountID uint64) ([]model.Reservation, error)
}

// SeatCatalog and TimeSlotCatalog are the reference-data lookups
// used to answer 404 for unknown seats and slots.
type SeatCatalog interface {
	GetActiveByID(ctx context.Context, id uint64) (*model.Seat, error)
}

type TimeSlotCatalog interface {
	GetActiveByID(ctx context.Context, id uint64) (*model.TimeSlot, error)
}

// Broadcaster is the hub surface the handler pushes events through.
type Broadcaster interface {
	BroadcastReserved(key model.SeatLookupKey)
	BroadcastCancelled(key model.SeatLookupKey)
}

// ReservationHandler implements the reservation REST surface: the
// finalization gate that converts a live hold into a durable ACTIVE
// reservation, the cancellation path, and the read endpoints used to
// render seat maps and reservation lists.
type ReservationHandler struct {
	Reservations ReservationStore
	Seats        SeatCatalog
	Slots        TimeSlotCatalog
	Holds        store.HoldStore
	Hub          Broadcaster
	Publisher    service.Publisher // optional; nil skips broker events
}

// NewReservationHandler constructs a ReservationHandler.  All
// dependencies except Publisher must be non-nil.
func NewReservationHandler(reservations ReservationStore, seats SeatCatalog, slots TimeSlotCatalog, holds store.HoldStore, hub Broadcaster, publisher service.Publisher) *ReservationHandler {
	if reservations == nil || seats == nil || slots == nil || holds == nil || hub == nil {
		panic("nil dependency passed to NewReservationHandler")
	}
	return &ReservationHandler{
		Reservations: reservations,
		Seats:        seats,
		Slots:        slots,
		Holds:        holds,
		Hub:          hub,
		Publisher:    publisher,
	}
}

// reservationResponse is the JSON shape returned for a reservation.
type reservationResponse struct {
	ID              uint64 `json:"id"`
	AccountID       uint64 `json:"account_id"`
	SeatID          uint64 `json:"seat_id"`
	TimeSlotID      uint64 `json:"time_slot_id"`
	ReservationDate string `json:"reservation_date"`
	Status          string `json:"status"`
	CreatedAt       string `json:"created_at"`
	UpdatedAt       string `json:"updated_at"`
}

func toResponse(r *model.Reservation) reservationResponse {
	return reservationResponse{
		ID:              r.ID,
		AccountID:       r.AccountID,
		SeatID:          r.SeatID,
		TimeSlotID:      r.TimeSlotID,
		ReservationDate: r.ReservationDate,
		Status:          r.Status,
		CreatedAt:       r.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:       r.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

// Create handles POST /v1/reservations, the finalization gate.  The
// caller must still be the legitimate holder of the seat at the
// moment of commit: the hold store's recorded holder is compared
// against the connection id presented in X-Connection-Id before
// anything is persisted.  On success the hold is released (it has
// served its purpose), the slot's group is told the seat is
// reserved, and a confirmation event goes to the broker.
//
// Responses: 201 with the created reservation; 400 for a malformed
// body or missing connection id; 404 for an unknown seat or slot;
// 409 with a distinct reason for "held by someone else", "hold
// expired" and "already reserved"; 500 when the durable write fails,
// in which case the hold is left intact so the user can retry.
func (h *ReservationHandler) Create(c echo.Context) error {
	accountID, err := getAccountID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	connID := c.Request().Header.Get(connectionIDHeader)
	if connID == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "missing " + connectionIDHeader + " header"})
	}
	var body struct {
		SeatID          uint64 `json:"seat_id"`
		ReservationDate string `json:"reservation_date"`
		TimeSlotID      uint64 `json:"time_slot_id"`
	}
	if err := c.Bind(&body); err != nil || body.SeatID == 0 || body.TimeSlotID == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "seat_id, reservation_date and time_slot_id are required"})
	}
	date, err := model.NormalizeDate(body.ReservationDate)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	}
	ctx := c.Request().Context()

	if _, err := h.Seats.GetActiveByID(ctx, body.SeatID); err != nil {
		if errors.Is(err, repository.ErrSeatNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "seat not found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
	}
	if _, err := h.Slots.GetActiveByID(ctx, body.TimeSlotID); err != nil {
		if errors.Is(err, repository.ErrTimeSlotNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "time slot not found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
	}

	key := model.SeatLookupKey{SeatID: body.SeatID, ReservationDate: date, TimeSlotID: body.TimeSlotID}

	// Holder identity check.  A request arriving after expiry finds
	// no holder and is rejected rather than silently succeeding.
	holder, held := h.Holds.GetSeatHolder(key)
	if !held {
		return c.JSON(http.StatusConflict, echo.Map{"error": "hold_expired"})
	}
	if holder != connID {
		return c.JSON(http.StatusConflict, echo.Map{"error": "seat_held_by_other"})
	}

	res, err := h.Reservations.CreateActive(ctx, accountID, body.SeatID, body.TimeSlotID, date)
	if err != nil {
		if errors.Is(err, repository.ErrDuplicateReservation) {
			return c.JSON(http.StatusConflict, echo.Map{"error": "already_reserved"})
		}
		// Hold stays intact: the user can retry until the countdown
		// runs out.
		log.Printf("reservation: durable write failed for seat=%d date=%s slot=%d: %v",
			key.SeatID, key.ReservationDate, key.TimeSlotID, err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to create reservation"})
	}

	h.Holds.ReleaseSeat(key, connID)
	h.Hub.BroadcastReserved(key)

	if h.Publisher != nil {
		_ = h.Publisher.ReservationConfirmed(ctx, queue.ReservationConfirmedEvent{
			ReservationID:   res.ID,
			AccountID:       res.AccountID,
			SeatID:          res.SeatID,
			TimeSlotID:      res.TimeSlotID,
			ReservationDate: res.ReservationDate,
			ConfirmedAt:     time.Now().UTC().Format(time.RFC3339),
		})
	}
	return c.JSON(http.StatusCreated, toResponse(res))
}

// Cancel handles PATCH /v1/reservations/:id/cancel.  The owning
// account or an administrator moves an ACTIVE reservation to
// CANCELLED; the slot's group is then told so open seat maps free
// the seat immediately.  No hold is involved, the seat was already
// confirmed.
func (h *ReservationHandler) Cancel(c echo.Context) error {
	accountID, err := getAccountID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid reservation id"})
	}
	admin := isAdmin(c)
	ctx := c.Request().Context()

	res, err := h.Reservations.Cancel(ctx, id, accountID, admin)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrReservationNotFound):
			return c.JSON(http.StatusNotFound, echo.Map{"error": "reservation not found"})
		case errors.Is(err, repository.ErrForbidden):
			return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
		case errors.Is(err, repository.ErrConflict):
			return c.JSON(http.StatusConflict, echo.Map{"error": "reservation is not active"})
		default:
			return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to cancel reservation"})
		}
	}

	h.Hub.BroadcastCancelled(res.Key())

	if h.Publisher != nil {
		by := "owner"
		if admin && res.AccountID != accountID {
			by = "admin"
		}
		_ = h.Publisher.ReservationCancelled(ctx, queue.ReservationCancelledEvent{
			ReservationID:   res.ID,
			AccountID:       res.AccountID,
			SeatID:          res.SeatID,
			TimeSlotID:      res.TimeSlotID,
			ReservationDate: res.ReservationDate,
			CancelledBy:     by,
			CancelledAt:     time.Now().UTC().Format(time.RFC3339),
		})
	}
	return c.JSON(http.StatusOK, toResponse(res))
}

// ListBySlot handles GET /v1/reservations?date=&time_slot_id=.  It
// returns the ACTIVE reservations for one slot, the durable half of
// the seat map; clients combine it with the hub's hold snapshot.
func (h *ReservationHandler) ListBySlot(c echo.Context) error {
	date, err := model.NormalizeDate(c.QueryParam("date"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	}
	slotID, err := strconv.ParseUint(c.QueryParam("time_slot_id"), 10, 64)
	if err != nil || slotID == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid time_slot_id"})
	}
	reservations, err := h.Reservations.ListActiveBySlot(c.Request().Context(), date, slotID)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
	}
	out := make([]reservationResponse, 0, len(reservations))
	for i := range reservations {
		out = append(out, toResponse(&reservations[i]))
	}
	return c.JSON(http.StatusOK, echo.Map{"reservations": out})
}

// ListMine handles GET /v1/my-reservations, returning the caller's
// reservations newest first.
func (h *ReservationHandler) ListMine(c echo.Context) error {
	accountID, err := getAccountID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	reservations, err := h.Reservations.ListByAccount(c.Request().Context(), accountID)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
	}
	out := make([]reservationResponse, 0, len(reservations))
	for i := range reservations {
		out = append(out, toResponse(&reservations[i]))
	}
	return c.JSON(http.StatusOK, echo.Map{"reservations": out})
}

// Get handles GET /v1/reservations/:id for the owning account or an
// administrator.
func (h *ReservationHandler) Get(c echo.Context) error {
	accountID, err := getAccountID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid reservation id"})
	}
	res, err := h.Reservations.GetByID(c.Request().Context(), id)
	if err != nil {
		if errors.Is(err, repository.ErrReservationNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "reservation not found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
	}
	if res.AccountID != accountID && !isAdmin(c) {
		return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
	}
	return c.JSON(http.StatusOK, toResponse(res))
}
