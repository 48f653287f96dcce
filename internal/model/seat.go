package model

import "time"

// Seat describes a physical seat in a reading room.  Seats are
// static reference data maintained by administrators; the
// reservation core only reads them to validate requests and to
// render seat maps.
//
// Fields:
//  ID         – primary key identifier.
//  RoomName   – reading room the seat belongs to.
//  RowLabel   – letter or string designating the row.
//  SeatNumber – number of the seat within the row.
//  IsActive   – whether the seat can currently be reserved.
//  CreatedAt  – creation timestamp.
//  UpdatedAt  – last update timestamp.
type Seat struct {
	ID         uint64    // seats.id
	RoomName   string    // seats.room_name
	RowLabel   string    // seats.row_label
	SeatNumber uint32    // seats.seat_number
	IsActive   bool      // seats.is_active
	CreatedAt  time.Time // seats.created_at
	UpdatedAt  time.Time // seats.updated_at
}
