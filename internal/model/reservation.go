package model

import "time"

// Reservation status values.  A reservation is created directly in
// ACTIVE by the finalization endpoint.  ACTIVE transitions to
// CANCELLED through user or admin action and to COMPLETED when the
// background sweep notices the slot's end time has passed.  No
// transition leads back to ACTIVE.
const (
	ReservationStatusActive    = "ACTIVE"
	ReservationStatusCancelled = "CANCELLED"
	ReservationStatusCompleted = "COMPLETED"
	ReservationStatusExpired   = "EXPIRED"
)

// Reservation records a confirmed claim on one seat for one date and
// time slot.  Tentative holds never reach this table; they live only
// in the in-memory hold store until finalization.
//
// Fields:
//  ID              – primary key identifier.
//  AccountID       – account that owns the reservation.
//  SeatID          – seat being reserved.
//  TimeSlotID      – slot being reserved.
//  ReservationDate – calendar date ("2006-01-02") the reservation is for.
//  Status          – state of the reservation (see constants above).
//  CreatedAt       – creation timestamp.
//  UpdatedAt       – last update timestamp.
type Reservation struct {
	ID              uint64    // reservations.id
	AccountID       uint64    // reservations.account_id
	SeatID          uint64    // reservations.seat_id
	TimeSlotID      uint64    // reservations.time_slot_id
	ReservationDate string    // reservations.reservation_date
	Status          string    // reservations.status
	CreatedAt       time.Time // reservations.created_at
	UpdatedAt       time.Time // reservations.updated_at
}

// Key returns the lookup key this reservation occupies.
func (r *Reservation) Key() SeatLookupKey {
	return SeatLookupKey{
		SeatID:          r.SeatID,
		ReservationDate: r.ReservationDate,
		TimeSlotID:      r.TimeSlotID,
	}
}
