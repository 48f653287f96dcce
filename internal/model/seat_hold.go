package model

import "time"

// SeatLookupKey identifies the unit of contention: one seat on one
// date in one time slot.  The struct is comparable so it can be used
// directly as a map key; equality is structural.  ReservationDate is
// a normalized "2006-01-02" string so that two representations of
// the same calendar day always compare equal.
type SeatLookupKey struct {
	SeatID          uint64 `json:"seat_id"`
	ReservationDate string `json:"reservation_date"`
	TimeSlotID      uint64 `json:"time_slot_id"`
}

// SeatHold is a temporary, exclusive claim on a seat while a client
// fills in the confirmation dialog.  Holds live only in the in-memory
// hold store and expire automatically; nothing about them is
// persisted.  HolderID is the websocket connection identifier, not
// the account id, because one user may have several open tabs.
//
// Fields:
//  Key       – the seat/date/slot being held.
//  HolderID  – connection that owns the hold.
//  ExpiresAt – when the hold lapses unless refreshed or finalized.
type SeatHold struct {
	Key       SeatLookupKey
	HolderID  string
	ExpiresAt time.Time
}
