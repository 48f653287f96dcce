// Package hub implements the real-time broadcast hub: it owns the
// set of live websocket connections, groups them by date and time
// slot, and fans seat events out to every member of a group.  The
// hub is an explicit component created at server start and torn down
// at shutdown so tests can run isolated instances.
package hub

import "github.com/libreserve/library-seat-reservation/internal/model"

// Client-to-server actions carried in the "action" field of a frame.
const (
	ActionJoinGroup   = "join_group"
	ActionLeaveGroup  = "leave_group"
	ActionSelectSeat  = "select_seat"
	ActionReleaseSeat = "release_seat"
)

// Server-to-client events carried in the "event" field of a frame.
const (
	EventWelcome             = "welcome"
	EventGroupSnapshot       = "group_snapshot"
	EventSeatSelected        = "seat_selected"
	EventSeatReleased        = "seat_released"
	EventSeatReserved        = "seat_reserved"
	EventSeatCancelled       = "seat_cancelled"
	EventSeatAlreadySelected = "seat_already_selected"
	EventError               = "error"
)

// ClientFrame is the single JSON shape clients send over the
// websocket.  The action field selects the operation; the remaining
// fields are interpreted per action (join/leave use the date and
// slot, select/release additionally use the seat id).
type ClientFrame struct {
	Action          string `json:"action"`
	SeatID          uint64 `json:"seat_id,omitempty"`
	ReservationDate string `json:"reservation_date,omitempty"`
	TimeSlotID      uint64 `json:"time_slot_id,omitempty"`
}

// ServerFrame is the single JSON shape the server pushes to clients
// for everything except the join snapshot.  Empty fields are
// omitted, so a seat_selected frame carries only the seat, date,
// slot and holder while a welcome frame carries only the connection
// id.
type ServerFrame struct {
	Event           string `json:"event"`
	ConnectionID    string `json:"connection_id,omitempty"`
	SeatID          uint64 `json:"seat_id,omitempty"`
	ReservationDate string `json:"reservation_date,omitempty"`
	TimeSlotID      uint64 `json:"time_slot_id,omitempty"`
	HolderID        string `json:"holder_id,omitempty"`
	Message         string `json:"message,omitempty"`
}

// SnapshotFrame answers a join_group immediately with the full seat
// map state for the slot.  Held (tentative holds) and Reserved
// (durable active reservations) are intentionally separate lists so
// the client can visually distinguish "someone is deciding" from
// "booked".  Both are always present, even when empty.  YourSeat is
// the seat this connection itself currently holds, if any, so a tab
// rejoining a group can restore its selection and countdown without
// guessing which held seat is its own.
type SnapshotFrame struct {
	Event           string                `json:"event"`
	ReservationDate string                `json:"reservation_date"`
	TimeSlotID      uint64                `json:"time_slot_id"`
	Held            []model.SeatLookupKey `json:"held"`
	Reserved        []model.SeatLookupKey `json:"reserved"`
	YourSeat        *model.SeatLookupKey  `json:"your_seat,omitempty"`
}
